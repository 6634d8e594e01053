package relay

import (
	"fmt"
	"time"
)

// MaxPin is the highest relay number on the 16-channel board.
const MaxPin = 16

// Controller drives named groups of relay pins. The underlying board has no
// readback, so implementations keep a last-known-state cache with a
// read-your-writes contract: a pin is reported on only if the last set that
// included it succeeded.
type Controller interface {
	// SetGroup switches every pin in the group at once. The call is
	// all-or-nothing: on error the cache reflects only confirmed state.
	SetGroup(pins []int, on bool) error
	// States returns a snapshot of the cached pin states.
	States() map[int]bool
	// AllOff de-energizes every relay on the board.
	AllOff() error
	// Pulse switches the group on for the given duration, then off.
	Pulse(pins []int, d time.Duration) error
	Close() error
}

// SetError is a failed relay set operation.
type SetError struct {
	Pins []int
	On   bool
	Err  error
}

func (e *SetError) Error() string {
	return fmt.Sprintf("setting relay pins %v to %v: %v", e.Pins, e.On, e.Err)
}

func (e *SetError) Unwrap() error { return e.Err }

func validatePins(pins []int) error {
	for _, pin := range pins {
		if pin < 1 || pin > MaxPin {
			return fmt.Errorf("pin %d out of range 1-%d", pin, MaxPin)
		}
	}
	return nil
}
