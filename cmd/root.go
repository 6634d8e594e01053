package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cycletester/internal/config"
)

var cfgFile string

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cycletester",
		Short: "Battery charge/discharge cycle test runner",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "cycletester.yaml", "config file path")
	root.AddCommand(newRunCmd())
	root.AddCommand(newPlanCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newCheckCmd())
	return root
}

// newLogger builds the run logger: console on stderr, plus the configured
// log file when one is set. The returned func flushes buffered entries.
func newLogger(cfg *config.Config) (*zap.SugaredLogger, func(), error) {
	zc := zap.NewDevelopmentConfig()
	zc.OutputPaths = []string{"stderr"}
	if cfg.General.RunLogFile != "" {
		zc.OutputPaths = append(zc.OutputPaths, cfg.General.RunLogFile)
	}
	logger, err := zc.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("building logger: %w", err)
	}
	return logger.Sugar(), func() { logger.Sync() }, nil
}
