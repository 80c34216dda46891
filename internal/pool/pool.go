package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"Talos/internal/metrics"
	"Talos/internal/provider"
)

// Options configure how workers are provisioned.
type Options struct {
	Queue       string
	BrokerURL   string
	BrokerToken string
	DryRun      bool
}

// Pool applies grow/shrink deltas to a worker provider. It satisfies the
// autoscaler's pool controller seam.
type Pool struct {
	provider provider.Provider
	opts     Options
	met      *metrics.Metrics // optional
	logger   *slog.Logger
}

func New(prov provider.Provider, opts Options, met *metrics.Metrics, logger *slog.Logger) *Pool {
	return &Pool{
		provider: prov,
		opts:     opts,
		met:      met,
		logger:   logger.With("component", "pool"),
	}
}

// Grow provisions n new workers.
func (p *Pool) Grow(ctx context.Context, n int) error {
	if n < 1 {
		return fmt.Errorf("grow delta must be >= 1, got %d", n)
	}

	if p.opts.DryRun {
		p.logger.Info("dry run: would create workers", "count", n)
		return nil
	}

	for i := 0; i < n; i++ {
		req := &provider.CreateWorkerRequest{
			Name:        workerName(),
			Queue:       p.opts.Queue,
			BrokerURL:   p.opts.BrokerURL,
			BrokerToken: p.opts.BrokerToken,
		}

		start := time.Now()
		_, err := p.provider.CreateWorker(ctx, req)
		p.observe("create", start, err)
		if err != nil {
			return fmt.Errorf("failed to create worker %d of %d: %w", i+1, n, err)
		}
	}

	return nil
}

// Shrink removes n workers, youngest first, so long-lived workers with warm
// caches survive scale-down.
func (p *Pool) Shrink(ctx context.Context, n int) error {
	if n < 1 {
		return fmt.Errorf("shrink delta must be >= 1, got %d", n)
	}

	if p.opts.DryRun {
		p.logger.Info("dry run: would remove workers", "count", n)
		return nil
	}

	workers, err := p.provider.ListWorkers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list workers: %w", err)
	}

	var candidates []*provider.Worker
	for _, w := range workers {
		if !w.Status.Terminal() {
			candidates = append(candidates, w)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})

	if n > len(candidates) {
		n = len(candidates)
	}

	for i := 0; i < n; i++ {
		start := time.Now()
		err := p.provider.RemoveWorker(ctx, candidates[i].ID, true)
		p.observe("remove", start, err)
		if err != nil {
			return fmt.Errorf("failed to remove worker %s: %w", candidates[i].ID, err)
		}
	}

	return nil
}

// ActiveWorkers counts workers currently provisioned against the pool.
func (p *Pool) ActiveWorkers(ctx context.Context) (int, error) {
	workers, err := p.provider.ListWorkers(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list workers: %w", err)
	}

	count := 0
	for _, w := range workers {
		if !w.Status.Terminal() {
			count++
		}
	}

	return count, nil
}

func (p *Pool) observe(op string, start time.Time, err error) {
	if p.met == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	p.met.ProviderOperations.WithLabelValues(p.provider.Name(), op, status).Inc()
	p.met.ProviderDuration.WithLabelValues(p.provider.Name(), op).Observe(time.Since(start).Seconds())
}

func workerName() string {
	return fmt.Sprintf("worker-%d", time.Now().UnixNano())
}
