package executor

import (
	"math"
	"time"

	"cycletester/internal/dut"
)

// idleDebounceSamples is how many consecutive idle-current samples end the
// charge leg. One sample is too noisy to trust.
const idleDebounceSamples = 2

// Linear is the capacity-measurement mode: discharge to the voltage limit,
// then charge until the current tapers to idle.
type Linear struct {
	DischargeVoltageLimit  float64
	IdleCurrentThresholdMA float64
	MaxChargeTime          time.Duration
}

func (Linear) Name() string { return "linear" }

func (l Linear) Run(env *Env) []PhaseRecord {
	discharge := runLeg(env, "discharge", l.runDischarge)
	records := []PhaseRecord{discharge}
	if discharge.Outcome != OutcomeCompleted {
		return records
	}
	return append(records, runLeg(env, "charge", l.runCharge))
}

func (l Linear) runDischarge(s *sampler) (string, error) {
	env := s.env
	env.Log.Infow("linear discharge started", "limit_v", l.DischargeVoltageLimit)
	if err := env.DUT.SendCommand(dut.CmdDisableCharging); err != nil {
		return OutcomeErrored, err
	}
	if err := env.DUT.SendCommand(dut.CmdEnableDischarge); err != nil {
		return OutcomeErrored, err
	}
	defer env.DUT.SendCommand(dut.CmdDisableDischarge)

	for {
		smp, err := s.collect("linear_discharge")
		if err != nil {
			return OutcomeErrored, err
		}
		if validNum(smp.VBat) && smp.VBat <= l.DischargeVoltageLimit {
			env.Log.Infow("discharge limit reached", "vbat", smp.VBat)
			return OutcomeCompleted, nil
		}
		env.Clock.Sleep(env.Interval)
	}
}

func (l Linear) runCharge(s *sampler) (string, error) {
	env := s.env
	env.Log.Infow("linear charge started",
		"idle_threshold_ma", l.IdleCurrentThresholdMA, "max_charge_time", l.MaxChargeTime)
	if err := env.DUT.SendCommand(dut.CmdEnableCharging); err != nil {
		return OutcomeErrored, err
	}
	defer env.DUT.SendCommand(dut.CmdDisableCharging)

	deadline := env.Clock.Now().Add(l.MaxChargeTime)
	idleStreak := 0
	for {
		smp, err := s.collect("linear_charge")
		if err != nil {
			return OutcomeErrored, err
		}
		if validNum(smp.IBat) {
			if math.Abs(smp.IBat) <= l.IdleCurrentThresholdMA {
				idleStreak++
				if idleStreak >= idleDebounceSamples {
					env.Log.Infow("charge termination stable", "ibat_ma", smp.IBat)
					return OutcomeCompleted, nil
				}
			} else {
				idleStreak = 0
			}
		}
		if !env.Clock.Now().Before(deadline) {
			// Timing out the charge is a normal exit, not a failure.
			env.Log.Warnw("charge window elapsed", "max_charge_time", l.MaxChargeTime)
			return OutcomeCompleted, nil
		}
		env.Clock.Sleep(env.Interval)
	}
}
