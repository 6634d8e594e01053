package executor

import (
	"math/rand"
	"time"

	"cycletester/internal/dut"
)

// RandomWonder stresses the charger with randomized charge/discharge phases
// while enforcing voltage safety bounds on every tick.
type RandomWonder struct {
	Duration          time.Duration
	MinPhase          time.Duration
	MaxPhase          time.Duration
	ChargeProbability float64
	MinVoltage        float64
	MaxVoltage        float64
	// Rand supplies every draw. Seed it for a reproducible run.
	Rand *rand.Rand
}

func (RandomWonder) Name() string { return "random" }

func (rw RandomWonder) Run(env *Env) []PhaseRecord {
	return []PhaseRecord{runLeg(env, "main", rw.run)}
}

func (rw RandomWonder) run(s *sampler) (string, error) {
	env := s.env
	env.Log.Infow("random wonder started",
		"duration", rw.Duration, "charge_probability", rw.ChargeProbability,
		"vbat_bounds", []float64{rw.MinVoltage, rw.MaxVoltage})

	defer env.DUT.SendCommand(dut.CmdDisableCharging)
	defer env.DUT.SendCommand(dut.CmdDisableDischarge)

	start := env.Clock.Now()
	end := start.Add(rw.Duration)

	for env.Clock.Now().Before(end) {
		charging := rw.Rand.Float64() < rw.ChargeProbability
		span := rw.MinPhase
		if rw.MaxPhase > rw.MinPhase {
			span += time.Duration(rw.Rand.Int63n(int64(rw.MaxPhase - rw.MinPhase)))
		}
		env.Log.Infow("random phase drawn", "charging", charging, "span", span,
			"elapsed", env.Clock.Now().Sub(start))

		if err := rw.direct(env, charging); err != nil {
			return OutcomeErrored, err
		}

		phaseEnd := env.Clock.Now().Add(span)
		for env.Clock.Now().Before(phaseEnd) && env.Clock.Now().Before(end) {
			overridden, err := rw.checkBounds(env, &charging)
			if err != nil {
				if overridden {
					// A bound was breached and the corrective command
					// could not be issued.
					return OutcomeSafetyAborted, err
				}
				return OutcomeErrored, err
			}
			tag := "random_discharge"
			switch {
			case overridden:
				tag = "random_safety_override"
				phaseEnd = env.Clock.Now()
			case charging:
				tag = "random_charge"
			}
			if _, err := s.collect(tag); err != nil {
				return OutcomeErrored, err
			}
			env.Clock.Sleep(env.Interval)
			if overridden {
				break
			}
		}
	}
	env.Log.Infow("random wonder finished", "elapsed", env.Clock.Now().Sub(start))
	return OutcomeCompleted, nil
}

// checkBounds reads vbat before the tick's sample and forces the corrective
// direction when a bound is hit, so the logged row never sits outside the
// configured window.
func (rw *RandomWonder) checkBounds(env *Env, charging *bool) (bool, error) {
	vbat, err := env.DUT.ReadField(dut.FieldVBat)
	if err != nil {
		// The sampler tracks read failures; a failed pre-check is not a
		// bound breach.
		return false, nil
	}
	switch {
	case vbat >= rw.MaxVoltage && *charging:
		env.Log.Warnw("upper voltage bound hit, forcing discharge", "vbat", vbat, "max", rw.MaxVoltage)
		*charging = false
	case vbat <= rw.MinVoltage && !*charging:
		env.Log.Warnw("lower voltage bound hit, forcing charge", "vbat", vbat, "min", rw.MinVoltage)
		*charging = true
	default:
		return false, nil
	}
	return true, rw.direct(env, *charging)
}

func (rw *RandomWonder) direct(env *Env, charging bool) error {
	if charging {
		if err := env.DUT.SendCommand(dut.CmdDisableDischarge); err != nil {
			return err
		}
		return env.DUT.SendCommand(dut.CmdEnableCharging)
	}
	if err := env.DUT.SendCommand(dut.CmdDisableCharging); err != nil {
		return err
	}
	return env.DUT.SendCommand(dut.CmdEnableDischarge)
}
