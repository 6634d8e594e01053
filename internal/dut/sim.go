package dut

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"cycletester/internal/config"
	"cycletester/internal/timeutil"
)

// taperFloorMA is the charge current the model converges to at full charge.
const taperFloorMA = 50.0

// cvWindowV is the voltage span below max where charge current tapers off.
const cvWindowV = 0.1

// Sim is the simulated DUT. It accepts the same command and field vocabulary
// as the real link and produces monotonic trends: vbat climbs under charge
// with a taper current near full, falls under discharge, and self-drains at
// idle, so the mode executors are exercised identically to the real path.
//
// The model advances lazily on every read, using the injected clock, which
// keeps simulation runs deterministic under a step clock.
type Sim struct {
	mu    sync.Mutex
	clock timeutil.Clock
	opt   config.Simulation

	vbat        float64
	ntc         float64
	die         float64
	charging    bool
	discharging bool
	last        time.Time

	failReads map[string]int
}

func NewSim(opt config.Simulation, clock timeutil.Clock) *Sim {
	return &Sim{
		clock:     clock,
		opt:       opt,
		vbat:      opt.InitialVoltage,
		ntc:       opt.AmbientCelsius,
		die:       opt.AmbientCelsius + 5,
		last:      clock.Now(),
		failReads: make(map[string]int),
	}
}

// FailNextReads makes the next n reads of field fail, to exercise the
// sentinel and escalation paths.
func (s *Sim) FailNextReads(field string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failReads[field] = n
}

func (s *Sim) SendCommand(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	switch name {
	case CmdEnableCharging:
		s.charging = true
		s.discharging = false
	case CmdDisableCharging:
		s.charging = false
	case CmdEnableDischarge:
		s.discharging = true
		s.charging = false
	case CmdDisableDischarge:
		s.discharging = false
	default:
		return &CommandError{Name: name, Err: errors.New("unknown command")}
	}
	return nil
}

func (s *Sim) ReadField(field string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injectedFailure(field); err != nil {
		return 0, err
	}
	s.advance()
	switch field {
	case FieldVBat:
		return s.vbat, nil
	case FieldIBat:
		return s.currentMA(), nil
	case FieldNTCTemp:
		return s.ntc, nil
	case FieldVSys:
		return math.Max(s.vbat, 3.3), nil
	case FieldDieTemp:
		return s.die, nil
	default:
		return 0, &ReadError{Field: field, Err: errors.New("unknown numeric field")}
	}
}

func (s *Sim) ReadText(field string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injectedFailure(field); err != nil {
		return "", err
	}
	s.advance()
	switch field {
	case FieldMode:
		return s.mode(), nil
	case FieldIBAMeasStatus:
		return "0x18", nil
	case FieldBuckStatus:
		return "0x00", nil
	default:
		return "", &ReadError{Field: field, Err: errors.New("unknown text field")}
	}
}

func (s *Sim) Close() error { return nil }

func (s *Sim) injectedFailure(field string) error {
	if n := s.failReads[field]; n > 0 {
		s.failReads[field] = n - 1
		return &ReadError{Field: field, Err: fmt.Errorf("simulated read failure (%d left)", n-1)}
	}
	return nil
}

// advance integrates the battery model over the time elapsed since the last
// touch. Callers hold the lock.
func (s *Sim) advance() {
	now := s.clock.Now()
	dt := now.Sub(s.last).Seconds()
	s.last = now
	if dt <= 0 {
		return
	}

	switch s.mode() {
	case "CHARGING":
		s.vbat = math.Min(s.vbat+s.opt.ChargeRateVPerS*dt, s.opt.MaxVoltage)
		s.heat(0.02*dt, 0.03*dt)
	case "DISCHARGING":
		s.vbat = math.Max(s.vbat-s.opt.DischargeRateVPerS*dt, s.opt.MinVoltage)
		s.heat(0.01*dt, 0.015*dt)
	default:
		// idle self-drain
		s.vbat = math.Max(s.vbat-0.00002*dt, s.opt.MinVoltage)
		s.cool(dt)
	}
}

func (s *Sim) mode() string {
	if s.charging && s.vbat < s.opt.MaxVoltage {
		return "CHARGING"
	}
	if s.discharging && s.vbat > s.opt.MinVoltage {
		return "DISCHARGING"
	}
	return "IDLE"
}

func (s *Sim) currentMA() float64 {
	switch s.mode() {
	case "CHARGING":
		cvStart := s.opt.MaxVoltage - cvWindowV
		if s.vbat < cvStart {
			return s.opt.ChargeCurrentMA
		}
		completion := (s.opt.MaxVoltage - s.vbat) / cvWindowV
		return taperFloorMA + (s.opt.ChargeCurrentMA-taperFloorMA)*math.Pow(completion, 1.5)
	case "DISCHARGING":
		return s.opt.DischargeCurrentMA
	default:
		return -1.5
	}
}

func (s *Sim) heat(ntcRate, dieRate float64) {
	s.ntc += ntcRate
	s.die += dieRate
}

func (s *Sim) cool(dt float64) {
	s.ntc += (s.opt.AmbientCelsius - s.ntc) * 0.005 * dt
	s.die += (s.opt.AmbientCelsius + 5 - s.die) * 0.005 * dt
}
