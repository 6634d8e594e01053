package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"cycletester/internal/session"
)

type ModeSummary struct {
	Mode          string  `json:"mode"`
	Phases        int     `json:"phases"`
	Completed     int     `json:"completed"`
	SafetyAborted int     `json:"safety_aborted"`
	Errored       int     `json:"errored"`
	Samples       int     `json:"samples"`
	MeanDurationS float64 `json:"mean_duration_s"`
}

// Generate reads every phase sidecar under sessionDir and writes a per-mode
// summary in the requested format.
func Generate(sessionDir, format string, w io.Writer) error {
	runs, err := collectRuns(sessionDir)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		return fmt.Errorf("no phase records under %s", sessionDir)
	}

	summaries := aggregate(runs)

	switch format {
	case "markdown":
		return writeMarkdown(summaries, w)
	case "json":
		return writeJSON(summaries, w)
	default:
		return writeTable(summaries, w)
	}
}

func collectRuns(sessionDir string) ([]*session.PhaseRun, error) {
	var runs []*session.PhaseRun
	err := filepath.Walk(sessionDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		name := info.Name()
		if info.IsDir() || !strings.HasSuffix(name, ".json") || name == "session.json" {
			return nil
		}
		run, err := session.ReadPhaseMeta(path)
		if err != nil {
			return nil
		}
		runs = append(runs, run)
		return nil
	})
	return runs, err
}

func aggregate(runs []*session.PhaseRun) []ModeSummary {
	type accum struct {
		phases        int
		completed     int
		safetyAborted int
		errored       int
		samples       int
		duration      float64
	}
	byMode := map[string]*accum{}

	for _, r := range runs {
		a, ok := byMode[r.Mode]
		if !ok {
			a = &accum{}
			byMode[r.Mode] = a
		}
		a.phases++
		a.samples += r.Samples
		a.duration += r.Ended.Sub(r.Started).Seconds()
		switch r.Outcome {
		case "completed":
			a.completed++
		case "safety_aborted":
			a.safetyAborted++
		default:
			a.errored++
		}
	}

	var summaries []ModeSummary
	for mode, a := range byMode {
		summaries = append(summaries, ModeSummary{
			Mode:          mode,
			Phases:        a.phases,
			Completed:     a.completed,
			SafetyAborted: a.safetyAborted,
			Errored:       a.errored,
			Samples:       a.samples,
			MeanDurationS: a.duration / float64(a.phases),
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Mode < summaries[j].Mode
	})
	return summaries
}

func writeTable(summaries []ModeSummary, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODE\tPHASES\tCOMPLETED\tSAFETY ABORTED\tERRORED\tSAMPLES\tMEAN DURATION")
	fmt.Fprintln(tw, strings.Repeat("-", 80))
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%.0fs\n",
			s.Mode, s.Phases, s.Completed, s.SafetyAborted, s.Errored, s.Samples, s.MeanDurationS)
	}
	return tw.Flush()
}

func writeMarkdown(summaries []ModeSummary, w io.Writer) error {
	fmt.Fprintln(w, "| Mode | Phases | Completed | Safety Aborted | Errored | Samples | Mean Duration |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|---|")
	for _, s := range summaries {
		fmt.Fprintf(w, "| %s | %d | %d | %d | %d | %d | %.0fs |\n",
			s.Mode, s.Phases, s.Completed, s.SafetyAborted, s.Errored, s.Samples, s.MeanDurationS)
	}
	return nil
}

func writeJSON(summaries []ModeSummary, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summaries)
}
