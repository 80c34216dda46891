package scaler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// MetricsSource supplies one consistent queue/pool snapshot per call.
type MetricsSource interface {
	GetMetrics(ctx context.Context) (QueueMetrics, error)
}

// PoolController applies scaling deltas to the worker pool. n is always a
// strictly positive number of workers to add or remove.
type PoolController interface {
	Grow(ctx context.Context, n int) error
	Shrink(ctx context.Context, n int) error
}

// Autoscaler runs one control-loop tick at a time: fetch metrics, compute
// the desired worker count, and actuate the pool controller unless the
// kill-switch is off, the pool is already at target, or the cooldown window
// since the last actuation has not elapsed.
type Autoscaler struct {
	cfg    Config
	source MetricsSource
	clock  Clock
	pool   PoolController
	logger *slog.Logger

	mu             sync.Mutex
	lastActionTime time.Time // zero until the first successful actuation
}

// New creates an Autoscaler. The configuration is validated here; an
// invalid policy is a construction error, never a runtime clamp.
func New(cfg Config, source MetricsSource, clock Clock, pool PoolController, logger *slog.Logger) (*Autoscaler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid autoscaler config: %w", err)
	}
	if source == nil || clock == nil || pool == nil {
		return nil, fmt.Errorf("metrics source, clock and pool controller are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Autoscaler{
		cfg:    cfg,
		source: source,
		clock:  clock,
		pool:   pool,
		logger: logger.With("component", "autoscaler"),
	}, nil
}

// EvaluateAndScale performs one tick. Metrics are read exactly once; the
// pool controller is called at most once. Dependency errors propagate to
// the caller unchanged, with no retry and no actuation on that tick.
func (a *Autoscaler) EvaluateAndScale(ctx context.Context) (Decision, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	metrics, err := a.source.GetMetrics(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to fetch queue metrics: %w", err)
	}

	desired := DesiredWorkers(metrics, a.cfg)

	decision := Decision{
		QueueDepth:    metrics.QueueDepth,
		TargetWorkers: desired,
		Scaled:        false,
		Direction:     DirectionNone,
	}

	if !a.cfg.Enabled {
		return decision, nil
	}

	if desired == metrics.ActiveWorkers {
		// Already at target. Does not consume cooldown.
		return decision, nil
	}

	direction := DirectionGrow
	if desired < metrics.ActiveWorkers {
		direction = DirectionShrink
	}

	if !a.lastActionTime.IsZero() && a.clock.Now().Sub(a.lastActionTime) < a.cfg.Cooldown {
		a.logger.Debug("scaling deferred by cooldown",
			"queue_depth", metrics.QueueDepth,
			"active_workers", metrics.ActiveWorkers,
			"target_workers", desired,
			"direction", direction.String(),
		)
		return decision, nil
	}

	if direction == DirectionGrow {
		delta := desired - metrics.ActiveWorkers
		if err := a.pool.Grow(ctx, delta); err != nil {
			return Decision{}, fmt.Errorf("failed to grow pool by %d: %w", delta, err)
		}
	} else {
		delta := metrics.ActiveWorkers - desired
		if err := a.pool.Shrink(ctx, delta); err != nil {
			return Decision{}, fmt.Errorf("failed to shrink pool by %d: %w", delta, err)
		}
	}

	// Cooldown starts only after a successful actuation, so a failed
	// attempt can be retried on the next tick.
	a.lastActionTime = a.clock.Now()

	a.logger.Info("pool scaled",
		"queue_depth", metrics.QueueDepth,
		"active_workers", metrics.ActiveWorkers,
		"target_workers", desired,
		"direction", direction.String(),
	)

	decision.Scaled = true
	decision.Direction = direction
	return decision, nil
}
