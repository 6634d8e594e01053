package executor_test

import (
	"bytes"
	"encoding/csv"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"

	"cycletester/internal/config"
	"cycletester/internal/dut"
	"cycletester/internal/executor"
	"cycletester/internal/telemetry"
	"cycletester/internal/timeutil"
)

const (
	colTime = 0
	colVBat = 1
	colIBat = 2
	colMode = 8
)

func simOpts() config.Simulation {
	return config.Simulation{
		InitialVoltage:     4.0,
		MaxVoltage:         4.2,
		MinVoltage:         3.0,
		ChargeRateVPerS:    0.05,
		DischargeRateVPerS: 0.1,
		ChargeCurrentMA:    500,
		DischargeCurrentMA: -300,
		AmbientCelsius:     25,
	}
}

func newEnv(link dut.Link, clock timeutil.Clock, dir string) *executor.Env {
	return &executor.Env{
		DUT:      link,
		Clock:    clock,
		Log:      zap.NewNop().Sugar(),
		Interval: time.Second,
		OpenLog: func(phase string) (*telemetry.Logger, error) {
			return telemetry.Open(filepath.Join(dir, phase+".csv"))
		},
	}
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) == 0 {
		t.Fatal("empty telemetry file")
	}
	return rows[1:] // drop header
}

func parseField(t *testing.T, row []string, col int) float64 {
	t.Helper()
	v, err := strconv.ParseFloat(row[col], 64)
	if err != nil {
		t.Fatalf("parsing column %d of %v: %v", col, row, err)
	}
	return v
}

func requireIncreasingTime(t *testing.T, rows [][]string) {
	t.Helper()
	prev := -1.0
	for _, row := range rows {
		cur := parseField(t, row, colTime)
		if cur <= prev {
			t.Fatalf("time not strictly increasing: %g after %g", cur, prev)
		}
		prev = cur
	}
}

func TestLinearDischargeThenCharge(t *testing.T) {
	clock := timeutil.NewStepClock(time.Unix(0, 0))
	sim := dut.NewSim(simOpts(), clock)
	dir := t.TempDir()

	lin := executor.Linear{
		DischargeVoltageLimit:  3.0,
		IdleCurrentThresholdMA: 50,
		MaxChargeTime:          time.Hour,
	}
	records := lin.Run(newEnv(sim, clock, dir))
	if len(records) != 2 {
		t.Fatalf("got %d phase records, want discharge + charge", len(records))
	}

	discharge := records[0]
	if discharge.Phase != "discharge" || discharge.Outcome != executor.OutcomeCompleted {
		t.Fatalf("discharge record = %+v", discharge)
	}
	if discharge.Samples < 10 {
		t.Errorf("discharge samples = %d, want >= 10", discharge.Samples)
	}
	rows := readRows(t, discharge.File)
	requireIncreasingTime(t, rows)
	for i, row := range rows {
		if row[colMode] != "linear_discharge" {
			t.Fatalf("row %d mode = %q", i, row[colMode])
		}
		vbat := parseField(t, row, colVBat)
		if i < len(rows)-1 && vbat <= 3.0 {
			t.Fatalf("row %d below the limit before the final sample: %g", i, vbat)
		}
	}
	if last := parseField(t, rows[len(rows)-1], colVBat); last > 3.0 {
		t.Errorf("final discharge vbat = %g, want <= 3.0", last)
	}

	charge := records[1]
	if charge.Phase != "charge" || charge.Outcome != executor.OutcomeCompleted {
		t.Fatalf("charge record = %+v", charge)
	}
	crows := readRows(t, charge.File)
	if len(crows) < 2 {
		t.Fatalf("charge rows = %d, want at least the debounce window", len(crows))
	}
	for _, row := range crows[len(crows)-2:] {
		ibat := parseField(t, row, colIBat)
		if ibat > 50 || ibat < -50 {
			t.Errorf("terminating ibat = %g, want within idle threshold", ibat)
		}
	}
}

func TestLinearChargeTimeoutIsNormalExit(t *testing.T) {
	clock := timeutil.NewStepClock(time.Unix(0, 0))
	opts := simOpts()
	opts.InitialVoltage = 3.05
	sim := dut.NewSim(opts, clock)

	lin := executor.Linear{
		DischargeVoltageLimit:  3.0,
		IdleCurrentThresholdMA: 1, // below even the idle floor, never satisfied
		MaxChargeTime:          5 * time.Second,
	}
	records := lin.Run(newEnv(sim, clock, t.TempDir()))
	if len(records) != 2 {
		t.Fatalf("got %d records", len(records))
	}
	charge := records[1]
	if charge.Outcome != executor.OutcomeCompleted || charge.Err != nil {
		t.Fatalf("timeout exit = %+v, want completed with no error", charge)
	}
}

func TestSwitchingAlternation(t *testing.T) {
	clock := timeutil.NewStepClock(time.Unix(0, 0))
	sim := dut.NewSim(simOpts(), clock)

	sw := executor.Switching{
		PhaseDuration:    20 * time.Second,
		Interval:         5 * time.Second,
		ChargeCommand:    dut.CmdEnableCharging,
		DischargeCommand: dut.CmdDisableCharging,
		Repeat:           1,
	}
	records := sw.Run(newEnv(sim, clock, t.TempDir()))
	if len(records) != 1 {
		t.Fatalf("got %d records", len(records))
	}
	rec := records[0]
	if rec.Outcome != executor.OutcomeCompleted {
		t.Fatalf("record = %+v", rec)
	}
	rows := readRows(t, rec.File)
	if len(rows) != 21 {
		t.Fatalf("rows = %d, want 21 for a 20s pass at 1s ticks", len(rows))
	}
	requireIncreasingTime(t, rows)
	for i, row := range rows {
		want := "switching_charge"
		if (i/5)%2 == 1 {
			want = "switching_discharge"
		}
		if row[colMode] != want {
			t.Fatalf("row %d mode = %q, want %q", i, row[colMode], want)
		}
	}
}

func TestSwitchingRepeatExtendsDuration(t *testing.T) {
	clock := timeutil.NewStepClock(time.Unix(0, 0))
	sim := dut.NewSim(simOpts(), clock)

	sw := executor.Switching{
		PhaseDuration:    10 * time.Second,
		Interval:         5 * time.Second,
		ChargeCommand:    dut.CmdEnableCharging,
		DischargeCommand: dut.CmdDisableCharging,
		Repeat:           2,
	}
	records := sw.Run(newEnv(sim, clock, t.TempDir()))
	if got := records[0].Samples; got != 41 {
		t.Errorf("samples = %d, want 41 for two phase pairs", got)
	}
}

func TestRandomStaysWithinBounds(t *testing.T) {
	clock := timeutil.NewStepClock(time.Unix(0, 0))
	opts := simOpts()
	opts.InitialVoltage = 4.15
	sim := dut.NewSim(opts, clock)

	rw := executor.RandomWonder{
		Duration:          40 * time.Second,
		MinPhase:          5 * time.Second,
		MaxPhase:          5 * time.Second,
		ChargeProbability: 1.0,
		MinVoltage:        3.0,
		MaxVoltage:        4.2,
		Rand:              rand.New(rand.NewSource(1)),
	}
	records := rw.Run(newEnv(sim, clock, t.TempDir()))
	rec := records[0]
	if rec.Outcome != executor.OutcomeCompleted {
		t.Fatalf("record = %+v", rec)
	}
	rows := readRows(t, rec.File)
	requireIncreasingTime(t, rows)

	overrides := 0
	for i, row := range rows {
		if row[colVBat] == "" {
			continue
		}
		vbat := parseField(t, row, colVBat)
		if vbat < 3.0 || vbat > 4.2 {
			t.Fatalf("row %d vbat = %g outside bounds", i, vbat)
		}
		if row[colMode] == "random_safety_override" {
			overrides++
		}
	}
	if overrides == 0 {
		t.Error("charging against the upper bound never produced a safety override")
	}
}

func TestRandomReproducibleWithSeed(t *testing.T) {
	run := func(dir string) string {
		clock := timeutil.NewStepClock(time.Unix(0, 0))
		sim := dut.NewSim(simOpts(), clock)
		rw := executor.RandomWonder{
			Duration:          60 * time.Second,
			MinPhase:          5 * time.Second,
			MaxPhase:          15 * time.Second,
			ChargeProbability: 0.5,
			MinVoltage:        3.0,
			MaxVoltage:        4.2,
			Rand:              rand.New(rand.NewSource(42)),
		}
		records := rw.Run(newEnv(sim, clock, dir))
		if records[0].Outcome != executor.OutcomeCompleted {
			t.Fatalf("record = %+v", records[0])
		}
		return records[0].File
	}

	a, err := os.ReadFile(run(t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(run(t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("same seed produced different telemetry")
	}
}

func TestConsecutiveReadFailuresEscalate(t *testing.T) {
	clock := timeutil.NewStepClock(time.Unix(0, 0))
	sim := dut.NewSim(simOpts(), clock)
	sim.FailNextReads(dut.FieldVBat, 3)

	records := executor.Relax{Duration: 30 * time.Second}.Run(newEnv(sim, clock, t.TempDir()))
	rec := records[0]
	if rec.Outcome != executor.OutcomeErrored || rec.Err == nil {
		t.Fatalf("record = %+v, want errored", rec)
	}
	if rec.Samples != 3 {
		t.Errorf("samples = %d, want 3 sentinel rows before escalation", rec.Samples)
	}
	rows := readRows(t, rec.File)
	for i, row := range rows {
		if row[colVBat] != "" {
			t.Errorf("row %d vbat = %q, want empty sentinel", i, row[colVBat])
		}
		if row[colMode] != "relaxation" {
			t.Errorf("row %d mode = %q", i, row[colMode])
		}
	}
}

func TestSingleReadFailureRecovers(t *testing.T) {
	clock := timeutil.NewStepClock(time.Unix(0, 0))
	sim := dut.NewSim(simOpts(), clock)
	sim.FailNextReads(dut.FieldIBat, 1)

	records := executor.Relax{Duration: 3 * time.Second}.Run(newEnv(sim, clock, t.TempDir()))
	rec := records[0]
	if rec.Outcome != executor.OutcomeCompleted {
		t.Fatalf("record = %+v, want completed", rec)
	}
	rows := readRows(t, rec.File)
	if rows[0][colIBat] != "" {
		t.Errorf("first ibat = %q, want sentinel", rows[0][colIBat])
	}
	if rows[1][colIBat] == "" {
		t.Error("second ibat still sentinel after recovery")
	}
}
