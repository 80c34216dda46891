package scaler

import (
	"fmt"
	"time"
)

// QueueMetrics is a point-in-time snapshot of the queue and the pool.
type QueueMetrics struct {
	QueueDepth    int `json:"queue_depth"`
	ActiveWorkers int `json:"active_workers"`
}

// Direction indicates which way an evaluation decided to scale.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionGrow
	DirectionShrink
)

func (d Direction) String() string {
	switch d {
	case DirectionGrow:
		return "grow"
	case DirectionShrink:
		return "shrink"
	default:
		return "none"
	}
}

// Decision is the outcome of one evaluation tick.
type Decision struct {
	QueueDepth    int       `json:"queue_depth"`
	TargetWorkers int       `json:"target_workers"`
	Scaled        bool      `json:"scaled"`
	Direction     Direction `json:"direction"`
}

// Config holds the sizing and cooldown policy. It is read-only for the
// lifetime of an Autoscaler; construct a new instance to change it.
type Config struct {
	MinWorkers              int
	MaxWorkers              int
	TargetTasksPerWorker    int
	ScaleDownQueueThreshold int
	Cooldown                time.Duration
	Enabled                 bool
}

// Validate rejects configurations the policy cannot operate on.
func (c Config) Validate() error {
	if c.MinWorkers < 1 {
		return fmt.Errorf("min_workers must be >= 1")
	}
	if c.MaxWorkers < c.MinWorkers {
		return fmt.Errorf("max_workers must be >= min_workers")
	}
	if c.TargetTasksPerWorker < 1 {
		return fmt.Errorf("target_tasks_per_worker must be >= 1")
	}
	if c.ScaleDownQueueThreshold < 0 {
		return fmt.Errorf("scale_down_queue_threshold must be >= 0")
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("cooldown must be >= 0")
	}
	return nil
}
