package controller

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"Talos/internal/broker"
	"Talos/internal/history"
	"Talos/internal/metrics"
	"Talos/internal/scaler"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// Mock broker client for testing
type mockBroker struct {
	stats broker.QueueStats
	err   error
}

func (m *mockBroker) GetQueueStats(ctx context.Context) (broker.QueueStats, error) {
	if m.err != nil {
		return broker.QueueStats{}, m.err
	}
	return m.stats, nil
}

// Mock worker counter for testing
type mockCounter struct {
	active int
	err    error
}

func (m *mockCounter) ActiveWorkers(ctx context.Context) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.active, nil
}

type mockPoolController struct {
	growCalls   []int
	shrinkCalls []int
}

func (m *mockPoolController) Grow(ctx context.Context, n int) error {
	m.growCalls = append(m.growCalls, n)
	return nil
}

func (m *mockPoolController) Shrink(ctx context.Context, n int) error {
	m.shrinkCalls = append(m.shrinkCalls, n)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestController(t *testing.T, cfg scaler.Config, b *mockBroker, c *mockCounter, pc *mockPoolController) (*Controller, *metrics.Metrics, *history.History) {
	t.Helper()

	source := NewQueueSource(b, c, nil)
	a, err := scaler.New(cfg, source, scaler.RealClock{}, pc, testLogger())
	if err != nil {
		t.Fatalf("scaler.New() failed: %v", err)
	}

	registry := prometheus.NewRegistry()
	met := metrics.NewMetrics(registry)
	hist := history.New()

	ctrl := New(a, source, hist, met, testLogger(), 30*time.Second, cfg.Enabled)
	return ctrl, met, hist
}

func TestQueueSourceCombinesBrokerAndPool(t *testing.T) {
	source := NewQueueSource(
		&mockBroker{stats: broker.QueueStats{Messages: 17, Consumers: 2}},
		&mockCounter{active: 3},
		nil,
	)

	m, err := source.GetMetrics(context.Background())
	if err != nil {
		t.Fatalf("GetMetrics() failed: %v", err)
	}

	if m.QueueDepth != 17 {
		t.Errorf("QueueDepth = %d, want 17", m.QueueDepth)
	}
	if m.ActiveWorkers != 3 {
		t.Errorf("ActiveWorkers = %d, want 3", m.ActiveWorkers)
	}

	if last := source.Last(); last != m {
		t.Errorf("Last() = %+v, want %+v", last, m)
	}
}

func TestQueueSourcePropagatesBrokerError(t *testing.T) {
	brokerErr := errors.New("broker down")
	source := NewQueueSource(&mockBroker{err: brokerErr}, &mockCounter{}, nil)

	if _, err := source.GetMetrics(context.Background()); !errors.Is(err, brokerErr) {
		t.Errorf("error = %v, want %v", err, brokerErr)
	}
}

func TestQueueSourcePropagatesPoolError(t *testing.T) {
	poolErr := errors.New("provider down")
	source := NewQueueSource(&mockBroker{}, &mockCounter{err: poolErr}, nil)

	if _, err := source.GetMetrics(context.Background()); !errors.Is(err, poolErr) {
		t.Errorf("error = %v, want %v", err, poolErr)
	}
}

func TestTickScalesAndRecords(t *testing.T) {
	pc := &mockPoolController{}
	ctrl, met, hist := newTestController(t, scaler.Config{
		MinWorkers:           1,
		MaxWorkers:           10,
		TargetTasksPerWorker: 10,
		Enabled:              true,
	}, &mockBroker{stats: broker.QueueStats{Messages: 40}}, &mockCounter{active: 2}, pc)

	ctrl.tick(context.Background())

	if len(pc.growCalls) != 1 || pc.growCalls[0] != 2 {
		t.Errorf("Grow calls = %v, want [2]", pc.growCalls)
	}

	records := hist.Recent(10)
	if len(records) != 1 {
		t.Fatalf("expected 1 history record, got %d", len(records))
	}
	if records[0].TargetWorkers != 4 || !records[0].Scaled || records[0].Direction != "grow" {
		t.Errorf("unexpected record: %+v", records[0])
	}
	if records[0].ActiveWorkers != 2 {
		t.Errorf("record ActiveWorkers = %d, want 2", records[0].ActiveWorkers)
	}

	if got := testutil.ToFloat64(met.ScaleUpEvents); got != 1 {
		t.Errorf("scale up events = %v, want 1", got)
	}
	if got := testutil.ToFloat64(met.QueueDepth); got != 40 {
		t.Errorf("queue depth gauge = %v, want 40", got)
	}
	if got := testutil.ToFloat64(met.WorkersDesired); got != 4 {
		t.Errorf("workers desired gauge = %v, want 4", got)
	}
}

func TestTickCountsEvaluationErrors(t *testing.T) {
	pc := &mockPoolController{}
	ctrl, met, hist := newTestController(t, scaler.Config{
		MinWorkers:           1,
		MaxWorkers:           10,
		TargetTasksPerWorker: 10,
		Enabled:              true,
	}, &mockBroker{err: errors.New("broker down")}, &mockCounter{}, pc)

	ctrl.tick(context.Background())

	if len(pc.growCalls) != 0 || len(pc.shrinkCalls) != 0 {
		t.Error("failed tick must not actuate")
	}
	if len(hist.Recent(10)) != 0 {
		t.Error("failed tick must not be recorded in history")
	}
	if got := testutil.ToFloat64(met.EvaluationErrors.WithLabelValues("evaluation")); got != 1 {
		t.Errorf("evaluation errors = %v, want 1", got)
	}
}

func TestTickCountsCooldownDeferrals(t *testing.T) {
	b := &mockBroker{stats: broker.QueueStats{Messages: 40}}
	c := &mockCounter{active: 2}
	pc := &mockPoolController{}
	ctrl, met, _ := newTestController(t, scaler.Config{
		MinWorkers:           1,
		MaxWorkers:           10,
		TargetTasksPerWorker: 10,
		Cooldown:             time.Hour,
		Enabled:              true,
	}, b, c, pc)

	// First tick actuates and opens the cooldown window.
	ctrl.tick(context.Background())

	// Queue grows while the window is open: change wanted but deferred.
	b.stats.Messages = 90
	c.active = 4
	ctrl.tick(context.Background())

	if got := testutil.ToFloat64(met.CooldownDeferrals); got != 1 {
		t.Errorf("cooldown deferrals = %v, want 1", got)
	}
	if len(pc.growCalls) != 1 {
		t.Errorf("Grow calls = %v, want exactly one", pc.growCalls)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	ctrl, _, _ := newTestController(t, scaler.Config{
		MinWorkers:           1,
		MaxWorkers:           10,
		TargetTasksPerWorker: 10,
		Enabled:              true,
	}, &mockBroker{}, &mockCounter{active: 1}, &mockPoolController{})

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- ctrl.Run(ctx)
	}()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop after context cancellation")
	}
}
