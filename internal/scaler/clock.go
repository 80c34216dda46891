package scaler

import "time"

// Clock supplies wall-clock time. Injected so cooldown behavior can be
// tested without sleeping.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock backed by time.Now.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}
