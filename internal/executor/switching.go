package executor

import (
	"time"

	"cycletester/internal/dut"
)

// Switching is the load-transient stress mode: duration bounded, no
// voltage-based termination. The active command flips every Interval and the
// phase label flips every PhaseDuration.
type Switching struct {
	PhaseDuration    time.Duration
	Interval         time.Duration
	ChargeCommand    string
	DischargeCommand string
	// Repeat is the number of charge/discharge phase pairs. 1 means a
	// single pass of PhaseDuration.
	Repeat int
}

func (Switching) Name() string { return "switching" }

func (sw Switching) Run(env *Env) []PhaseRecord {
	return []PhaseRecord{runLeg(env, "main", sw.run)}
}

func (sw Switching) run(s *sampler) (string, error) {
	env := s.env
	total := sw.PhaseDuration
	if sw.Repeat > 1 {
		total = 2 * time.Duration(sw.Repeat) * sw.PhaseDuration
	}
	env.Log.Infow("switching started",
		"total", total, "phase_duration", sw.PhaseDuration, "toggle_interval", sw.Interval)

	start := env.Clock.Now()
	end := start.Add(total)

	charging := true
	if err := env.DUT.SendCommand(sw.ChargeCommand); err != nil {
		return OutcomeErrored, err
	}
	defer env.DUT.SendCommand(dut.CmdDisableCharging)
	defer env.DUT.SendCommand(dut.CmdDisableDischarge)

	nextToggle := start.Add(sw.Interval)
	for {
		now := env.Clock.Now()
		if !now.Before(nextToggle) {
			charging = !charging
			cmd := sw.DischargeCommand
			if charging {
				cmd = sw.ChargeCommand
			}
			if err := env.DUT.SendCommand(cmd); err != nil {
				return OutcomeErrored, err
			}
			nextToggle = nextToggle.Add(sw.Interval)
		}

		tag := "switching_discharge"
		if charging {
			tag = "switching_charge"
		}
		if _, err := s.collect(tag); err != nil {
			return OutcomeErrored, err
		}

		if !env.Clock.Now().Before(end) {
			env.Log.Infow("switching duration reached", "elapsed", env.Clock.Now().Sub(start))
			return OutcomeCompleted, nil
		}
		env.Clock.Sleep(env.Interval)
	}
}
