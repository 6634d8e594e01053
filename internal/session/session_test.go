package session_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cycletester/internal/session"
)

func TestPhasePath(t *testing.T) {
	cases := []struct {
		temp  float64
		cycle int
		mode  string
		phase string
		want  string
	}{
		{25, 0, "linear", "discharge", "temp_25C/cycle_0/25C_cycle0_linear_discharge.csv"},
		{-10, 2, "switching", "main", "temp_-10C/cycle_2/-10C_cycle2_switching_main.csv"},
		{42.5, 1, "random", "main", "temp_42.5C/cycle_1/42.5C_cycle1_random_main.csv"},
	}
	for _, tc := range cases {
		got := session.PhasePath("/out", tc.temp, tc.cycle, tc.mode, tc.phase)
		require.Equal(t, filepath.Join("/out", tc.want), got)
	}
}

func TestCreateSessionDirPointsLatest(t *testing.T) {
	base := t.TempDir()
	dir, err := session.CreateSessionDir(base)
	require.NoError(t, err)
	require.DirExists(t, dir)

	latest, err := filepath.EvalSymlinks(filepath.Join(base, "latest"))
	require.NoError(t, err)
	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	require.Equal(t, resolved, latest)
}

func TestPhaseMetaRoundTrip(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "25C_cycle0_linear_charge.csv")
	run := session.PhaseRun{
		Temperature: 25,
		Cycle:       0,
		Mode:        "linear",
		Phase:       "charge",
		Outcome:     "completed",
		File:        csvPath,
		Samples:     42,
		Started:     time.Unix(100, 0).UTC(),
		Ended:       time.Unix(200, 0).UTC(),
	}
	require.NoError(t, session.WritePhaseMeta(run))

	metaPath := filepath.Join(dir, "25C_cycle0_linear_charge.json")
	got, err := session.ReadPhaseMeta(metaPath)
	require.NoError(t, err)
	require.Equal(t, run, *got)
}

func TestPhaseMetaSkippedWithoutFile(t *testing.T) {
	require.NoError(t, session.WritePhaseMeta(session.PhaseRun{Outcome: "errored"}))
}

func TestSummaryRoundTrip(t *testing.T) {
	dir := t.TempDir()
	res := &session.Result{
		ID:      "abc",
		Started: time.Unix(0, 0).UTC(),
		Ended:   time.Unix(60, 0).UTC(),
		Phases: []session.PhaseRun{
			{Mode: "linear", Phase: "discharge", Outcome: "completed"},
			{Mode: "random", Phase: "main", Outcome: "errored", Error: "dut went away"},
		},
	}
	require.NoError(t, session.WriteSummary(dir, res))
	_, err := os.Stat(filepath.Join(dir, "session.json"))
	require.NoError(t, err)

	got, err := session.ReadSummary(dir)
	require.NoError(t, err)
	require.Equal(t, res, got)

	failures := got.Failures()
	require.Len(t, failures, 1)
	require.Equal(t, "random", failures[0].Mode)
}
