package controller

import (
	"context"
	"log/slog"
	"time"

	"Talos/internal/history"
	"Talos/internal/metrics"
	"Talos/internal/scaler"
)

// Controller is the periodic trigger that drives the autoscaler: one
// evaluation per tick, decisions logged and recorded, errors counted but
// never fatal to the loop.
type Controller struct {
	autoscaler    *scaler.Autoscaler
	source        *QueueSource
	hist          *history.History
	met           *metrics.Metrics
	logger        *slog.Logger
	checkInterval time.Duration
	enabled       bool
}

func New(
	autoscaler *scaler.Autoscaler,
	source *QueueSource,
	hist *history.History,
	met *metrics.Metrics,
	logger *slog.Logger,
	checkInterval time.Duration,
	enabled bool,
) *Controller {
	return &Controller{
		autoscaler:    autoscaler,
		source:        source,
		hist:          hist,
		met:           met,
		logger:        logger.With("component", "controller"),
		checkInterval: checkInterval,
		enabled:       enabled,
	}
}

// Run evaluates once per check interval until the context is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("controller starting", "check_interval", c.checkInterval, "enabled", c.enabled)

	ticker := time.NewTicker(c.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("controller stopped")
			return nil
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

func (c *Controller) tick(ctx context.Context) {
	start := time.Now()

	decision, err := c.autoscaler.EvaluateAndScale(ctx)
	duration := time.Since(start)

	if err != nil {
		c.met.EvaluationsTotal.WithLabelValues("error").Inc()
		c.met.EvaluationDuration.WithLabelValues("error").Observe(duration.Seconds())
		c.met.EvaluationErrors.WithLabelValues("evaluation").Inc()
		c.logger.Error("evaluation failed", "error", err)
		return
	}

	c.met.EvaluationsTotal.WithLabelValues("success").Inc()
	c.met.EvaluationDuration.WithLabelValues("success").Observe(duration.Seconds())

	observed := c.source.Last()
	c.met.QueueDepth.Set(float64(decision.QueueDepth))
	c.met.QueueDepthSamples.Observe(float64(decision.QueueDepth))
	c.met.WorkersDesired.Set(float64(decision.TargetWorkers))
	c.met.WorkersActive.Set(float64(observed.ActiveWorkers))

	switch {
	case decision.Scaled && decision.Direction == scaler.DirectionGrow:
		c.met.ScaleUpEvents.Inc()
	case decision.Scaled && decision.Direction == scaler.DirectionShrink:
		c.met.ScaleDownEvents.Inc()
	case c.enabled && decision.TargetWorkers != observed.ActiveWorkers:
		// Change wanted but not actuated: the cooldown window held it back.
		c.met.CooldownDeferrals.Inc()
	}

	c.hist.Record(decision, observed.ActiveWorkers, time.Now())

	c.logger.Info("evaluation complete",
		"queue_depth", decision.QueueDepth,
		"active_workers", observed.ActiveWorkers,
		"target_workers", decision.TargetWorkers,
		"scaled", decision.Scaled,
		"direction", decision.Direction.String(),
		"duration_ms", duration.Milliseconds(),
	)
}
