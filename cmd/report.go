package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"cycletester/internal/config"
	"cycletester/internal/report"
)

var flagFormat string

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [session-dir]",
		Short: "Summarize a stored session by mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			dir := filepath.Join(cfg.General.OutputDirectory, "latest")
			if len(args) > 0 {
				dir = args[0]
			}
			resolved, err := filepath.EvalSymlinks(dir)
			if err != nil {
				return fmt.Errorf("resolving session dir: %w", err)
			}
			return report.Generate(resolved, flagFormat, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&flagFormat, "format", "table", "output format (table, markdown, json)")
	return cmd
}
