package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"cycletester/internal/config"
	"cycletester/internal/dut"
	"cycletester/internal/relay"
	"cycletester/internal/timeutil"
)

// check probes every configured peripheral without starting a session, so
// wiring problems show up before a multi-hour run.
func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Probe relay board and DUT connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			log, flush, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer flush()

			failed := false

			if cfg.Relay.IPAddress == "" {
				fmt.Println("relay: in-memory (no board configured)")
			} else {
				board := relay.NewDeditec(cfg.Relay.IPAddress, timeutil.System(), log)
				if err := board.CheckConnection(); err != nil {
					fmt.Printf("relay: FAIL (%v)\n", err)
					failed = true
				} else {
					fmt.Printf("relay: ok (%s)\n", cfg.Relay.IPAddress)
				}
			}

			if cfg.General.SimulateDUT {
				fmt.Println("dut: simulated (no port probed)")
			} else {
				link, err := dut.OpenSerial(cfg.General.DUTSerialPort, cfg.DUTCommands, log)
				if err != nil {
					fmt.Printf("dut: FAIL (%v)\n", err)
					failed = true
				} else {
					if v, err := link.ReadField(dut.FieldVBat); err != nil {
						fmt.Printf("dut: port open, vbat read FAIL (%v)\n", err)
						failed = true
					} else {
						fmt.Printf("dut: ok (vbat %.3f V)\n", v)
					}
					link.Close()
				}
			}

			if failed {
				return fmt.Errorf("peripheral check failed")
			}
			return nil
		},
	}
}
