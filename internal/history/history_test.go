package history

import (
	"testing"
	"time"

	"Talos/internal/scaler"
)

func TestNew(t *testing.T) {
	h := New()
	if h == nil {
		t.Fatal("New() returned nil")
	}

	if h.records == nil {
		t.Error("records should be initialized")
	}
}

func TestRecord(t *testing.T) {
	h := New()

	now := time.Unix(1000, 0)
	h.Record(scaler.Decision{
		QueueDepth:    10,
		TargetWorkers: 3,
		Scaled:        true,
		Direction:     scaler.DirectionGrow,
	}, 1, now)

	records := h.Recent(10)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	if records[0].Direction != "grow" {
		t.Errorf("expected direction=grow, got %s", records[0].Direction)
	}

	if records[0].ActiveWorkers != 1 {
		t.Errorf("expected ActiveWorkers=1, got %d", records[0].ActiveWorkers)
	}

	if !records[0].Timestamp.Equal(now) {
		t.Errorf("expected timestamp %v, got %v", now, records[0].Timestamp)
	}
}

func TestRecentLimit(t *testing.T) {
	h := New()

	// Add 10 records
	for i := 0; i < 10; i++ {
		h.Record(scaler.Decision{TargetWorkers: i}, i, time.Unix(int64(i), 0))
	}

	// Test limit
	records := h.Recent(5)
	if len(records) != 5 {
		t.Errorf("expected 5 records, got %d", len(records))
	}

	// Test getting all
	records = h.Recent(0)
	if len(records) != 10 {
		t.Errorf("expected 10 records, got %d", len(records))
	}

	// Test getting more than available
	records = h.Recent(20)
	if len(records) != 10 {
		t.Errorf("expected 10 records, got %d", len(records))
	}
}

func TestCapacity(t *testing.T) {
	h := New()

	// Add 150 records (more than the 100 limit)
	for i := 0; i < 150; i++ {
		h.Record(scaler.Decision{TargetWorkers: i}, i, time.Unix(int64(i), 0))
	}

	records := h.Recent(0)
	if len(records) != 100 {
		t.Errorf("expected history limited to 100, got %d", len(records))
	}

	// Verify oldest entries were evicted (should start at 50, not 0)
	if records[0].TargetWorkers != 50 {
		t.Errorf("expected oldest record TargetWorkers=50, got %d", records[0].TargetWorkers)
	}
}

func TestConcurrentAccess(t *testing.T) {
	h := New()

	done := make(chan bool)

	// Concurrent writes
	go func() {
		for i := 0; i < 50; i++ {
			h.Record(scaler.Decision{Scaled: true, Direction: scaler.DirectionGrow}, i, time.Now())
		}
		done <- true
	}()

	// Concurrent reads
	go func() {
		for i := 0; i < 50; i++ {
			h.Recent(10)
		}
		done <- true
	}()

	<-done
	<-done
}
