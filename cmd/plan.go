package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"cycletester/internal/config"
)

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show the temperature/cycle/mode matrix the config would run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			p := cfg.TestPlan
			fmt.Printf("DUT: %s", cfg.General.DUTSerialPort)
			if cfg.General.SimulateDUT {
				fmt.Print(" (simulated)")
			}
			fmt.Println()
			fmt.Printf("Output: %s\n", cfg.General.OutputDirectory)
			fmt.Printf("Log interval: %gs, relaxation: %gs\n\n",
				cfg.General.LogIntervalSeconds, p.RelaxationSeconds)

			phases := 0
			for _, temp := range p.TemperaturesCelsius {
				fmt.Printf("Temperature %gC:\n", temp)
				for cycle := 0; cycle < p.CyclesPerTemperature; cycle++ {
					fmt.Printf("  cycle %d: %v\n", cycle, p.TestModes)
					phases += len(p.TestModes)
				}
			}
			fmt.Printf("\n%d temperatures x %d cycles = %d phase runs\n",
				len(p.TemperaturesCelsius), p.CyclesPerTemperature, phases)
			return nil
		},
	}
}
