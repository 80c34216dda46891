package controller

import (
	"context"
	"sync"
	"time"

	"Talos/internal/broker"
	"Talos/internal/metrics"
	"Talos/internal/scaler"
)

// QueueStatsClient is the broker-side half of the metrics snapshot.
type QueueStatsClient interface {
	GetQueueStats(ctx context.Context) (broker.QueueStats, error)
}

// WorkerCounter is the pool-side half of the metrics snapshot.
type WorkerCounter interface {
	ActiveWorkers(ctx context.Context) (int, error)
}

// QueueSource combines broker queue depth with the provider's worker count
// into one snapshot per call. It remembers the last snapshot so the control
// loop can report observed state without a second read.
type QueueSource struct {
	broker QueueStatsClient
	pool   WorkerCounter
	met    *metrics.Metrics // optional

	mu   sync.Mutex
	last scaler.QueueMetrics
}

func NewQueueSource(b QueueStatsClient, p WorkerCounter, met *metrics.Metrics) *QueueSource {
	return &QueueSource{broker: b, pool: p, met: met}
}

func (s *QueueSource) GetMetrics(ctx context.Context) (scaler.QueueMetrics, error) {
	start := time.Now()
	stats, err := s.broker.GetQueueStats(ctx)
	if s.met != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		s.met.BrokerAPIRequests.WithLabelValues(status).Inc()
		s.met.BrokerAPIDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return scaler.QueueMetrics{}, err
	}

	active, err := s.pool.ActiveWorkers(ctx)
	if err != nil {
		return scaler.QueueMetrics{}, err
	}

	metrics := scaler.QueueMetrics{
		QueueDepth:    stats.Messages,
		ActiveWorkers: active,
	}

	s.mu.Lock()
	s.last = metrics
	s.mu.Unlock()

	return metrics, nil
}

// Last returns the most recent snapshot handed out by GetMetrics.
func (s *QueueSource) Last() scaler.QueueMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
