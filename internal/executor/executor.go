package executor

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"cycletester/internal/dut"
	"cycletester/internal/telemetry"
	"cycletester/internal/timeutil"
)

// Phase outcomes.
const (
	OutcomeCompleted     = "completed"
	OutcomeSafetyAborted = "safety_aborted"
	OutcomeErrored       = "errored"
)

// maxConsecutiveReadFailures is how many times the same field may fail in a
// row before the phase escalates to errored. Single failures become sentinel
// rows and the run continues.
const maxConsecutiveReadFailures = 3

// Env is the environment the orchestrator hands a mode executor for one
// invocation. Executors never touch relays; power sequencing stays with the
// orchestrator.
type Env struct {
	DUT      dut.Link
	Clock    timeutil.Clock
	Log      *zap.SugaredLogger
	Interval time.Duration
	// OpenLog creates the telemetry logger for one phase leg. The
	// orchestrator supplies it so path layout stays in one place.
	OpenLog func(phase string) (*telemetry.Logger, error)
}

// PhaseRecord is the result of one phase leg: one CSV file, one outcome.
type PhaseRecord struct {
	Phase   string
	File    string
	Samples int
	Outcome string
	Err     error
	Started time.Time
	Ended   time.Time
}

// Mode runs one test mode to completion. Implementations are single-use
// state machines: the orchestrator constructs a fresh value per invocation.
type Mode interface {
	Name() string
	Run(env *Env) []PhaseRecord
}

// runLeg opens the phase log, runs body, and guarantees the log is closed on
// every exit path.
func runLeg(env *Env, phase string, body func(s *sampler) (string, error)) PhaseRecord {
	started := env.Clock.Now()
	log, err := env.OpenLog(phase)
	if err != nil {
		return PhaseRecord{
			Phase:   phase,
			Outcome: OutcomeErrored,
			Err:     err,
			Started: started,
			Ended:   env.Clock.Now(),
		}
	}
	defer log.Close()

	s := &sampler{env: env, out: log, start: started, failures: make(map[string]int)}
	outcome, bodyErr := body(s)

	if closeErr := log.Close(); closeErr != nil && bodyErr == nil {
		outcome, bodyErr = OutcomeErrored, closeErr
	}
	return PhaseRecord{
		Phase:   phase,
		File:    log.Path(),
		Samples: log.Rows(),
		Outcome: outcome,
		Err:     bodyErr,
		Started: started,
		Ended:   env.Clock.Now(),
	}
}

// sampler takes one telemetry row per tick: every field is read after the
// tick's commands were issued, failed reads become sentinels, and repeated
// failures of one field escalate.
type sampler struct {
	env      *Env
	out      *telemetry.Logger
	start    time.Time
	failures map[string]int
}

func (s *sampler) collect(modeTag string) (telemetry.Sample, error) {
	smp := telemetry.Sample{
		Time: s.env.Clock.Now().Sub(s.start).Seconds(),
		Mode: modeTag,
	}
	var escalated error

	readNum := func(field string, dst *float64) {
		v, err := s.env.DUT.ReadField(field)
		if err != nil {
			*dst = telemetry.Missing()
			escalated = s.recordFailure(field, err, escalated)
			return
		}
		s.failures[field] = 0
		*dst = v
	}
	readText := func(field string, dst *string) {
		v, err := s.env.DUT.ReadText(field)
		if err != nil {
			*dst = ""
			escalated = s.recordFailure(field, err, escalated)
			return
		}
		s.failures[field] = 0
		*dst = v
	}

	readNum(dut.FieldVBat, &smp.VBat)
	readNum(dut.FieldIBat, &smp.IBat)
	readNum(dut.FieldNTCTemp, &smp.NTCTemp)
	readNum(dut.FieldVSys, &smp.VSys)
	readNum(dut.FieldDieTemp, &smp.DieTemp)
	readText(dut.FieldIBAMeasStatus, &smp.IBAMeasStatus)
	readText(dut.FieldBuckStatus, &smp.BuckStatus)

	// A row with sentinel fields is still information; write it before
	// deciding whether the phase survives.
	if err := s.out.Append(smp); err != nil {
		return smp, err
	}
	return smp, escalated
}

func (s *sampler) recordFailure(field string, err error, escalated error) error {
	s.failures[field]++
	s.env.Log.Warnw("telemetry read failed", "field", field, "consecutive", s.failures[field], "error", err)
	if escalated == nil && s.failures[field] >= maxConsecutiveReadFailures {
		return fmt.Errorf("field %s failed %d consecutive reads: %w", field, s.failures[field], err)
	}
	return escalated
}

func validNum(v float64) bool { return !math.IsNaN(v) }
