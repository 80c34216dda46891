package scaler

// DesiredWorkers computes the worker count the pool should converge on for
// the given snapshot. Pure function: no I/O, no state.
//
// A backlog at or below the scale-down threshold always maps to the minimum,
// so an idle queue returns the pool to minimum cost regardless of the sizing
// ratio. Above the threshold the backlog is divided by the per-worker target
// with ceiling semantics: under-provisioning is the failure mode to avoid,
// so any remainder rounds up to a whole extra worker. The result is clamped
// to [MinWorkers, MaxWorkers].
func DesiredWorkers(m QueueMetrics, cfg Config) int {
	if m.QueueDepth <= cfg.ScaleDownQueueThreshold {
		return cfg.MinWorkers
	}

	desired := (m.QueueDepth + cfg.TargetTasksPerWorker - 1) / cfg.TargetTasksPerWorker

	if desired < cfg.MinWorkers {
		desired = cfg.MinWorkers
	}
	if desired > cfg.MaxWorkers {
		desired = cfg.MaxWorkers
	}
	return desired
}
