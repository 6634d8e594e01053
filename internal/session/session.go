package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// PhaseRun is the finalized record of one phase leg: one CSV file, one
// outcome. It is persisted as a JSON sidecar next to the CSV so reports can
// be built without reparsing telemetry.
type PhaseRun struct {
	Temperature float64   `json:"temperature_c"`
	Cycle       int       `json:"cycle"`
	Mode        string    `json:"mode"`
	Phase       string    `json:"phase"`
	Outcome     string    `json:"outcome"`
	File        string    `json:"file,omitempty"`
	Samples     int       `json:"samples"`
	Error       string    `json:"error,omitempty"`
	Started     time.Time `json:"started"`
	Ended       time.Time `json:"ended"`
}

// Result summarizes one full session.
type Result struct {
	ID      string    `json:"id"`
	Started time.Time `json:"started"`
	Ended   time.Time `json:"ended"`
	Aborted bool      `json:"aborted"`
	// Skipped lists temperatures whose chamber never stabilized.
	Skipped []SkippedTemperature `json:"skipped_temperatures,omitempty"`
	Phases  []PhaseRun           `json:"phases"`
}

type SkippedTemperature struct {
	Temperature float64 `json:"temperature_c"`
	Reason      string  `json:"reason"`
}

// Failures returns every phase that did not complete.
func (r *Result) Failures() []PhaseRun {
	var out []PhaseRun
	for _, p := range r.Phases {
		if p.Outcome != "completed" {
			out = append(out, p)
		}
	}
	return out
}

// CreateSessionDir makes a timestamped directory under baseDir/sessions and
// repoints the baseDir/latest symlink at it.
func CreateSessionDir(baseDir string) (string, error) {
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05")
	dir := filepath.Join(baseDir, "sessions", stamp)
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving session dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating session dir: %w", err)
	}
	latest := filepath.Join(baseDir, "latest")
	os.Remove(latest)
	if err := os.Symlink(dir, latest); err != nil {
		return "", fmt.Errorf("creating latest symlink: %w", err)
	}
	return dir, nil
}

// PhasePath builds the CSV path for one phase leg, for example
// temp_25C/cycle_0/25C_cycle0_linear_discharge.csv under sessionDir.
func PhasePath(sessionDir string, tempC float64, cycle int, mode, phase string) string {
	t := formatTemp(tempC)
	name := fmt.Sprintf("%sC_cycle%d_%s_%s.csv", t, cycle, mode, phase)
	return filepath.Join(sessionDir,
		fmt.Sprintf("temp_%sC", t), fmt.Sprintf("cycle_%d", cycle), name)
}

func formatTemp(t float64) string {
	return strconv.FormatFloat(t, 'f', -1, 64)
}

// WritePhaseMeta drops the JSON sidecar next to the phase CSV. Phases that
// never opened a file get no sidecar.
func WritePhaseMeta(run PhaseRun) error {
	if run.File == "" {
		return nil
	}
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling phase meta: %w", err)
	}
	path := strings.TrimSuffix(run.File, ".csv") + ".json"
	return os.WriteFile(path, data, 0o644)
}

func ReadPhaseMeta(path string) (*PhaseRun, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading phase meta: %w", err)
	}
	var run PhaseRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("parsing phase meta %s: %w", path, err)
	}
	return &run, nil
}

// WriteSummary persists the session-level result as session.json.
func WriteSummary(sessionDir string, res *Result) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling summary: %w", err)
	}
	return os.WriteFile(filepath.Join(sessionDir, "session.json"), data, 0o644)
}

func ReadSummary(sessionDir string) (*Result, error) {
	data, err := os.ReadFile(filepath.Join(sessionDir, "session.json"))
	if err != nil {
		return nil, fmt.Errorf("reading summary: %w", err)
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("parsing summary: %w", err)
	}
	return &res, nil
}
