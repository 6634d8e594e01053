package session

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cycletester/internal/chamber"
	"cycletester/internal/config"
	"cycletester/internal/dut"
	"cycletester/internal/executor"
	"cycletester/internal/relay"
	"cycletester/internal/telemetry"
	"cycletester/internal/timeutil"
)

// Orchestrator drives the temperatures x cycles x modes matrix. It is the
// only component that touches relays; executors get the DUT link and a log
// opener and nothing else.
type Orchestrator struct {
	Config  *config.Config
	DUT     dut.Link
	Relays  relay.Controller
	Chamber chamber.Chamber
	Clock   timeutil.Clock
	Log     *zap.SugaredLogger
	Rand    *rand.Rand
	// Dir is the session output directory, usually from CreateSessionDir.
	Dir string
}

// Run executes the whole plan and always leaves the relay board de-energized
// before returning. The summary is persisted even for aborted sessions.
func (o *Orchestrator) Run() (*Result, error) {
	res := &Result{ID: uuid.NewString(), Started: o.Clock.Now()}
	plan := &o.Config.TestPlan
	o.Log.Infow("session started", "id", res.ID, "dir", o.Dir,
		"temperatures_c", plan.TemperaturesCelsius,
		"cycles", plan.CyclesPerTemperature, "modes", plan.TestModes)

temperatures:
	for _, temp := range plan.TemperaturesCelsius {
		if err := o.Chamber.WaitStable(temp); err != nil {
			o.Log.Errorw("temperature unavailable, skipping", "target_c", temp, "error", err)
			res.Skipped = append(res.Skipped, SkippedTemperature{Temperature: temp, Reason: err.Error()})
			continue
		}
		for cycle := 0; cycle < plan.CyclesPerTemperature; cycle++ {
			runs := o.runCycle(temp, cycle)
			res.Phases = append(res.Phases, runs...)
			if o.Config.General.FailFast && hasFailure(runs) {
				o.Log.Errorw("failure with fail_fast set, aborting session",
					"temperature_c", temp, "cycle", cycle)
				res.Aborted = true
				break temperatures
			}
		}
	}

	if err := o.Relays.AllOff(); err != nil {
		o.Log.Errorw("releasing relay board", "error", err)
	}
	res.Ended = o.Clock.Now()
	if err := o.Chamber.Close(); err != nil {
		o.Log.Warnw("closing chamber", "error", err)
	}
	if err := WriteSummary(o.Dir, res); err != nil {
		return res, err
	}
	return res, nil
}

// runCycle powers the DUT, runs relaxation plus every configured mode, and
// powers back down. Executor failures never propagate as errors; they come
// back as non-completed phase records.
func (o *Orchestrator) runCycle(temp float64, cycle int) []PhaseRun {
	o.Log.Infow("cycle started", "temperature_c", temp, "cycle", cycle)
	if err := o.powerOn(); err != nil {
		o.Log.Errorw("energizing DUT power", "error", err)
		now := o.Clock.Now()
		return []PhaseRun{{
			Temperature: temp, Cycle: cycle, Mode: "power", Phase: "main",
			Outcome: executor.OutcomeErrored, Error: err.Error(),
			Started: now, Ended: now,
		}}
	}
	defer o.powerOff()

	var runs []PhaseRun
	for _, mode := range o.modes() {
		env := &executor.Env{
			DUT:      o.DUT,
			Clock:    o.Clock,
			Log:      o.Log.With("temperature_c", temp, "cycle", cycle, "mode", mode.Name()),
			Interval: seconds(o.Config.General.LogIntervalSeconds),
			OpenLog: func(phase string) (*telemetry.Logger, error) {
				return telemetry.Open(PhasePath(o.Dir, temp, cycle, mode.Name(), phase))
			},
		}
		failed := false
		for _, rec := range mode.Run(env) {
			run := PhaseRun{
				Temperature: temp,
				Cycle:       cycle,
				Mode:        mode.Name(),
				Phase:       rec.Phase,
				Outcome:     rec.Outcome,
				File:        rec.File,
				Samples:     rec.Samples,
				Started:     rec.Started,
				Ended:       rec.Ended,
			}
			if rec.Err != nil {
				run.Error = rec.Err.Error()
			}
			if err := WritePhaseMeta(run); err != nil {
				o.Log.Warnw("writing phase meta", "file", run.File, "error", err)
			}
			o.Log.Infow("phase finished", "mode", run.Mode, "phase", run.Phase,
				"outcome", run.Outcome, "samples", run.Samples)
			runs = append(runs, run)
			failed = failed || run.Outcome != executor.OutcomeCompleted
		}
		if o.Config.General.FailFast && failed {
			break
		}
	}
	return runs
}

// modes builds fresh single-use executors for one cycle, relaxation first.
func (o *Orchestrator) modes() []executor.Mode {
	p := &o.Config.TestPlan
	var ms []executor.Mode
	if p.RelaxationSeconds > 0 {
		ms = append(ms, executor.Relax{Duration: seconds(p.RelaxationSeconds)})
	}
	for _, name := range p.TestModes {
		switch name {
		case "linear":
			ms = append(ms, executor.Linear{
				DischargeVoltageLimit:  p.LinearDischargeVoltageLimit,
				IdleCurrentThresholdMA: p.LinearChargeIdleCurrentThresholdMA,
				MaxChargeTime:          time.Duration(p.MaxChargeTimeHours * float64(time.Hour)),
			})
		case "switching":
			ms = append(ms, executor.Switching{
				PhaseDuration:    seconds(p.SwitchingPhaseDurationS),
				Interval:         seconds(p.SwitchingIntervalS),
				ChargeCommand:    p.SwitchingChargeCommand,
				DischargeCommand: p.SwitchingDischargeCommand,
				Repeat:           p.SwitchingRepeatCount,
			})
		case "random":
			ms = append(ms, executor.RandomWonder{
				Duration:          seconds(p.RandomDurationS),
				MinPhase:          seconds(p.RandomMinPhaseS),
				MaxPhase:          seconds(p.RandomMaxPhaseS),
				ChargeProbability: p.RandomChargeProbability,
				MinVoltage:        p.RandomMinVoltage,
				MaxVoltage:        p.RandomMaxVoltage,
				Rand:              o.Rand,
			})
		}
	}
	return ms
}

func (o *Orchestrator) powerOn() error {
	if err := o.Relays.SetGroup(o.Config.Relay.USBPowerPins, true); err != nil {
		return err
	}
	if len(o.Config.Relay.ChargerEnablePins) > 0 {
		return o.Relays.SetGroup(o.Config.Relay.ChargerEnablePins, true)
	}
	return nil
}

func (o *Orchestrator) powerOff() {
	for _, pins := range [][]int{o.Config.Relay.ChargerEnablePins, o.Config.Relay.USBPowerPins} {
		if len(pins) == 0 {
			continue
		}
		if err := o.Relays.SetGroup(pins, false); err != nil {
			o.Log.Errorw("de-energizing DUT power", "pins", pins, "error", err)
		}
	}
	if err := o.DUT.SendCommand(dut.CmdDisableCharging); err != nil {
		o.Log.Warnw("disabling charging after cycle", "error", err)
	}
	if err := o.DUT.SendCommand(dut.CmdDisableDischarge); err != nil {
		o.Log.Warnw("disabling discharge after cycle", "error", err)
	}
}

func hasFailure(runs []PhaseRun) bool {
	for _, r := range runs {
		if r.Outcome != executor.OutcomeCompleted {
			return true
		}
	}
	return false
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
