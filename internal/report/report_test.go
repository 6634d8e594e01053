package report_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cycletester/internal/report"
	"cycletester/internal/session"
)

func seedSession(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	runs := []session.PhaseRun{
		{Temperature: 25, Cycle: 0, Mode: "linear", Phase: "discharge", Outcome: "completed", Samples: 120},
		{Temperature: 25, Cycle: 0, Mode: "linear", Phase: "charge", Outcome: "completed", Samples: 300},
		{Temperature: 25, Cycle: 0, Mode: "random", Phase: "main", Outcome: "safety_aborted", Samples: 40},
		{Temperature: 45, Cycle: 0, Mode: "random", Phase: "main", Outcome: "errored", Samples: 5, Error: "dut gone"},
	}
	for _, r := range runs {
		r.File = session.PhasePath(dir, r.Temperature, r.Cycle, r.Mode, r.Phase)
		r.Started = time.Unix(0, 0).UTC()
		r.Ended = r.Started.Add(time.Duration(r.Samples) * time.Second)
		require.NoError(t, writeMeta(r))
	}
	require.NoError(t, session.WriteSummary(dir, &session.Result{ID: "x"}))
	return dir
}

func writeMeta(r session.PhaseRun) error {
	if err := os.MkdirAll(filepath.Dir(r.File), 0o755); err != nil {
		return err
	}
	return session.WritePhaseMeta(r)
}

func TestGenerateTable(t *testing.T) {
	dir := seedSession(t)

	var buf bytes.Buffer
	require.NoError(t, report.Generate(dir, "table", &buf))
	out := buf.String()
	require.Contains(t, out, "linear")
	require.Contains(t, out, "random")
}

func TestGenerateJSON(t *testing.T) {
	dir := seedSession(t)

	var buf bytes.Buffer
	require.NoError(t, report.Generate(dir, "json", &buf))

	var summaries []report.ModeSummary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &summaries))
	require.Len(t, summaries, 2)

	byMode := map[string]report.ModeSummary{}
	for _, s := range summaries {
		byMode[s.Mode] = s
	}
	require.Equal(t, 2, byMode["linear"].Completed)
	require.Equal(t, 420, byMode["linear"].Samples)
	require.Equal(t, 1, byMode["random"].SafetyAborted)
	require.Equal(t, 1, byMode["random"].Errored)
}

func TestGenerateMarkdown(t *testing.T) {
	dir := seedSession(t)

	var buf bytes.Buffer
	require.NoError(t, report.Generate(dir, "markdown", &buf))
	require.True(t, strings.HasPrefix(buf.String(), "| Mode |"))
}

func TestGenerateEmptySession(t *testing.T) {
	err := report.Generate(t.TempDir(), "table", &bytes.Buffer{})
	require.Error(t, err)
}
