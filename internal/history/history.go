package history

import (
	"sync"
	"time"

	"Talos/internal/scaler"
)

const maxRecords = 100

// Record is one evaluated decision with the time it was made.
type Record struct {
	Timestamp     time.Time `json:"timestamp"`
	QueueDepth    int       `json:"queue_depth"`
	ActiveWorkers int       `json:"active_workers"`
	TargetWorkers int       `json:"target_workers"`
	Scaled        bool      `json:"scaled"`
	Direction     string    `json:"direction"`
}

// History keeps a bounded in-memory log of recent scaling decisions for the
// operational API. Nothing is persisted across restarts.
type History struct {
	mu      sync.RWMutex
	records []Record
}

// New creates an empty decision history
func New() *History {
	return &History{
		records: make([]Record, 0, maxRecords),
	}
}

// Record appends a decision, evicting the oldest entry past capacity
func (h *History) Record(decision scaler.Decision, activeWorkers int, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, Record{
		Timestamp:     at,
		QueueDepth:    decision.QueueDepth,
		ActiveWorkers: activeWorkers,
		TargetWorkers: decision.TargetWorkers,
		Scaled:        decision.Scaled,
		Direction:     decision.Direction.String(),
	})

	if len(h.records) > maxRecords {
		h.records = h.records[1:]
	}
}

// Recent returns up to limit most recent records, oldest first. A limit of
// zero or less returns everything.
func (h *History) Recent(limit int) []Record {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if limit <= 0 || limit > len(h.records) {
		limit = len(h.records)
	}

	start := len(h.records) - limit
	result := make([]Record, limit)
	copy(result, h.records[start:])
	return result
}
