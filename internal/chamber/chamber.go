package chamber

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cycletester/internal/notify"
	"cycletester/internal/timeutil"
)

// ErrStabilizationTimeout means the chamber never settled at the target
// temperature; the orchestrator skips the affected temperature block.
var ErrStabilizationTimeout = errors.New("temperature did not stabilize before the timeout")

// Chamber is the temperature handoff: block until the device environment is
// at the target temperature.
type Chamber interface {
	WaitStable(targetC float64) error
	Close() error
}

// Manual is the operator-paced variant: alert, then block on acknowledgement
// with no timeout.
type Manual struct {
	Notifier notify.Notifier
	Log      *zap.SugaredLogger
}

func (m *Manual) WaitStable(targetC float64) error {
	msg := fmt.Sprintf(":warning: *MANUAL ACTION NEEDED* :warning:\nSet the chamber to `%.1f C` and press *Enter* in the console when stable.", targetC)
	if err := m.Notifier.Alert(msg); err != nil {
		// Alerting is best effort; the acknowledgement path stays open.
		m.Log.Warnw("operator alert failed", "error", err)
	}
	if err := m.Notifier.AwaitAck(); err != nil {
		return fmt.Errorf("waiting for operator confirmation: %w", err)
	}
	m.Log.Infow("operator confirmed chamber temperature", "target_c", targetC)
	return nil
}

func (m *Manual) Close() error { return nil }

// Sensor reads the current chamber temperature.
type Sensor interface {
	ReadTemperature() (float64, error)
}

// Automatic polls the chamber sensor until the temperature holds within
// tolerance for a confirmation window, bounded by the stabilization timeout.
type Automatic struct {
	Sensor    Sensor
	SetPoint  func(targetC float64) error
	Tolerance float64
	Timeout   time.Duration
	Clock     timeutil.Clock
	Log       *zap.SugaredLogger

	// Poll and confirm cadence; zero values take the chamber defaults.
	PollInterval  time.Duration
	ConfirmWindow time.Duration
}

const (
	defaultPollInterval  = 5 * time.Second
	defaultConfirmWindow = 10 * time.Second
	confirmStep          = time.Second
)

func (a *Automatic) poll() time.Duration {
	if a.PollInterval > 0 {
		return a.PollInterval
	}
	return defaultPollInterval
}

func (a *Automatic) confirm() time.Duration {
	if a.ConfirmWindow > 0 {
		return a.ConfirmWindow
	}
	return defaultConfirmWindow
}

func (a *Automatic) WaitStable(targetC float64) error {
	if a.SetPoint != nil {
		if err := a.SetPoint(targetC); err != nil {
			return fmt.Errorf("sending chamber set-point: %w", err)
		}
	}
	a.Log.Infow("waiting for chamber stabilization", "target_c", targetC, "timeout", a.Timeout)

	deadline := a.Clock.Now().Add(a.Timeout)
	for a.Clock.Now().Before(deadline) {
		current, err := a.Sensor.ReadTemperature()
		if err != nil {
			a.Log.Warnw("chamber temperature read failed", "error", err)
			a.Clock.Sleep(a.poll())
			continue
		}
		if abs(current-targetC) <= a.Tolerance {
			if a.holdsStable(targetC) {
				a.Log.Infow("chamber temperature stabilized", "target_c", targetC)
				return nil
			}
			continue
		}
		a.Clock.Sleep(a.poll())
	}
	return ErrStabilizationTimeout
}

// holdsStable re-reads through the confirmation window to reject transient
// crossings of the tolerance band.
func (a *Automatic) holdsStable(targetC float64) bool {
	until := a.Clock.Now().Add(a.confirm())
	for a.Clock.Now().Before(until) {
		current, err := a.Sensor.ReadTemperature()
		if err != nil || abs(current-targetC) > a.Tolerance {
			a.Log.Debugw("chamber drifted during confirmation", "target_c", targetC)
			return false
		}
		a.Clock.Sleep(confirmStep)
	}
	return true
}

func (a *Automatic) Close() error { return nil }

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
