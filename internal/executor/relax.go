package executor

import (
	"time"

	"cycletester/internal/dut"
)

// Relax lets the cell rest with charging and discharging disabled, logging
// telemetry the whole time. A zero-duration rest still emits one sample so
// the rest window is visible in the record.
type Relax struct {
	Duration time.Duration
}

func (Relax) Name() string { return "relaxation" }

func (r Relax) Run(env *Env) []PhaseRecord {
	return []PhaseRecord{runLeg(env, "main", r.run)}
}

func (r Relax) run(s *sampler) (string, error) {
	env := s.env
	env.Log.Infow("relaxation started", "duration", r.Duration)
	if err := env.DUT.SendCommand(dut.CmdDisableCharging); err != nil {
		return OutcomeErrored, err
	}
	if err := env.DUT.SendCommand(dut.CmdDisableDischarge); err != nil {
		return OutcomeErrored, err
	}

	end := env.Clock.Now().Add(r.Duration)
	for {
		if _, err := s.collect("relaxation"); err != nil {
			return OutcomeErrored, err
		}
		if !env.Clock.Now().Before(end) {
			return OutcomeCompleted, nil
		}
		env.Clock.Sleep(env.Interval)
	}
}
