package chamber

import (
	"sync"
	"time"

	"cycletester/internal/timeutil"
)

// SimSensor models a chamber converging toward its set-point at a fixed
// rate, advancing lazily on each read against the injected clock.
type SimSensor struct {
	mu       sync.Mutex
	clock    timeutil.Clock
	current  float64
	target   float64
	ratePerS float64
	last     time.Time
}

func NewSimSensor(initialC, ratePerS float64, clock timeutil.Clock) *SimSensor {
	return &SimSensor{
		clock:    clock,
		current:  initialC,
		target:   initialC,
		ratePerS: ratePerS,
		last:     clock.Now(),
	}
}

func (s *SimSensor) SetTarget(targetC float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	s.target = targetC
	return nil
}

func (s *SimSensor) ReadTemperature() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	return s.current, nil
}

func (s *SimSensor) advance() {
	now := s.clock.Now()
	dt := now.Sub(s.last).Seconds()
	s.last = now
	if dt <= 0 {
		return
	}
	step := s.ratePerS * dt
	diff := s.target - s.current
	switch {
	case diff > step:
		s.current += step
	case diff < -step:
		s.current -= step
	default:
		s.current = s.target
	}
}
