package timeutil

import "time"

// Clock abstracts wall time so the tick loops in the executors and the
// chamber stabilization wait can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time        { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// System returns the real wall clock.
func System() Clock {
	return systemClock{}
}

// StepClock is a fake clock for tests: Sleep advances time instantly.
// Not safe for concurrent use.
type StepClock struct {
	now time.Time
}

func NewStepClock(start time.Time) *StepClock {
	return &StepClock{now: start}
}

func (c *StepClock) Now() time.Time { return c.now }

func (c *StepClock) Sleep(d time.Duration) {
	if d > 0 {
		c.now = c.now.Add(d)
	}
}

// Advance moves the clock forward without a sleep.
func (c *StepClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}
