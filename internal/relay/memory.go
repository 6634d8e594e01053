package relay

import (
	"sync"
	"time"

	"cycletester/internal/timeutil"
)

// Memory is the in-process relay board used for simulation runs and tests.
// It mirrors the Deditec cache semantics, including failure injection so the
// write-through contract can be exercised.
type Memory struct {
	mu      sync.Mutex
	on      map[int]bool
	clock   timeutil.Clock
	nextErr error
	pulses  []Pulsed
}

// Pulsed records one Pulse call, for test assertions.
type Pulsed struct {
	Pins     []int
	Duration time.Duration
}

func NewMemory(clock timeutil.Clock) *Memory {
	return &Memory{on: make(map[int]bool), clock: clock}
}

// FailNextSet makes the next SetGroup fail with err, leaving the cache
// untouched.
func (m *Memory) FailNextSet(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextErr = err
}

func (m *Memory) SetGroup(pins []int, on bool) error {
	if err := validatePins(pins); err != nil {
		return &SetError{Pins: pins, On: on, Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nextErr != nil {
		err := m.nextErr
		m.nextErr = nil
		return &SetError{Pins: pins, On: on, Err: err}
	}
	for _, pin := range pins {
		m.on[pin] = on
	}
	return nil
}

func (m *Memory) States() map[int]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := make(map[int]bool, len(m.on))
	for pin, v := range m.on {
		snapshot[pin] = v
	}
	return snapshot
}

func (m *Memory) AllOff() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.on = make(map[int]bool)
	return nil
}

func (m *Memory) Pulse(pins []int, dur time.Duration) error {
	if err := m.SetGroup(pins, true); err != nil {
		return err
	}
	m.clock.Sleep(dur)
	if err := m.SetGroup(pins, false); err != nil {
		return err
	}
	m.mu.Lock()
	m.pulses = append(m.pulses, Pulsed{Pins: pins, Duration: dur})
	m.mu.Unlock()
	return nil
}

// Pulses returns the recorded Pulse calls.
func (m *Memory) Pulses() []Pulsed {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Pulsed(nil), m.pulses...)
}

func (m *Memory) Close() error { return nil }
