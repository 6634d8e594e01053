package cmd

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cycletester/internal/chamber"
	"cycletester/internal/config"
	"cycletester/internal/dut"
	"cycletester/internal/notify"
	"cycletester/internal/relay"
	"cycletester/internal/report"
	"cycletester/internal/session"
	"cycletester/internal/timeutil"
)

var (
	flagSimulate bool
	flagFailFast bool
	flagSeed     int64
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the configured test session",
		RunE:  runSession,
	}
	cmd.Flags().BoolVar(&flagSimulate, "simulate", false, "use the simulated DUT regardless of config")
	cmd.Flags().BoolVar(&flagFailFast, "fail-fast", false, "abort the session on the first failed phase")
	cmd.Flags().Int64Var(&flagSeed, "seed", 0, "seed for random mode draws (0 = from config or entropy)")
	return cmd
}

func runSession(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if flagSimulate {
		cfg.General.SimulateDUT = true
	}
	if flagFailFast {
		cfg.General.FailFast = true
	}
	if cmd.Flags().Changed("seed") {
		cfg.TestPlan.RandomSeed = flagSeed
	}

	log, flush, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer flush()

	clock := timeutil.System()

	link, err := openDUT(cfg, clock, log)
	if err != nil {
		return err
	}
	defer link.Close()

	relays, err := openRelays(cfg, clock, log)
	if err != nil {
		return err
	}
	defer relays.Close()

	ack := notify.NewAckSource(os.Stdin)
	notifier := notify.ForMode(cfg.Notify.ManualTempMode, relays,
		cfg.Relay.BeeperPins, cfg.Notify.SlackWebhookURL, ack, log)

	dir, err := session.CreateSessionDir(cfg.General.OutputDirectory)
	if err != nil {
		return err
	}
	fmt.Printf("Session directory: %s\n", dir)

	seed := cfg.TestPlan.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	log.Infow("random seed", "seed", seed)

	orch := &session.Orchestrator{
		Config:  cfg,
		DUT:     link,
		Relays:  relays,
		Chamber: buildChamber(cfg, link, notifier, clock, log),
		Clock:   clock,
		Log:     log,
		Rand:    rand.New(rand.NewSource(seed)),
		Dir:     dir,
	}
	res, err := orch.Run()
	if err != nil {
		return err
	}

	fmt.Println("\n--- Results ---")
	if err := report.Generate(dir, "table", os.Stdout); err != nil {
		fmt.Printf("no report: %v\n", err)
	}
	for _, f := range res.Failures() {
		fmt.Printf("FAILED %gC cycle %d %s/%s: %s %s\n",
			f.Temperature, f.Cycle, f.Mode, f.Phase, f.Outcome, f.Error)
	}
	if res.Aborted {
		return fmt.Errorf("session aborted after %d phases", len(res.Phases))
	}
	return nil
}

func openDUT(cfg *config.Config, clock timeutil.Clock, log *zap.SugaredLogger) (dut.Link, error) {
	if cfg.General.SimulateDUT {
		log.Infow("using simulated DUT")
		return dut.NewSim(cfg.Simulation, clock), nil
	}
	link, err := dut.OpenSerial(cfg.General.DUTSerialPort, cfg.DUTCommands, log)
	if err != nil {
		return nil, fmt.Errorf("opening DUT port %s: %w", cfg.General.DUTSerialPort, err)
	}
	return link, nil
}

func openRelays(cfg *config.Config, clock timeutil.Clock, log *zap.SugaredLogger) (relay.Controller, error) {
	if cfg.Relay.IPAddress == "" {
		log.Infow("using in-memory relay board")
		return relay.NewMemory(clock), nil
	}
	board := relay.NewDeditec(cfg.Relay.IPAddress, clock, log)
	if err := board.CheckConnection(); err != nil {
		return nil, fmt.Errorf("relay board %s unreachable: %w", cfg.Relay.IPAddress, err)
	}
	return board, nil
}

// buildChamber picks the temperature handoff strategy. Automatic mode polls
// the DUT's NTC sensor until it settles at the target; manual mode alerts the
// operator and waits for acknowledgement.
func buildChamber(cfg *config.Config, link dut.Link, notifier notify.Notifier,
	clock timeutil.Clock, log *zap.SugaredLogger) chamber.Chamber {
	if !cfg.Chamber.Enabled {
		return &chamber.Manual{Notifier: notifier, Log: log}
	}
	return &chamber.Automatic{
		Sensor:    ntcSensor{link},
		Tolerance: cfg.Chamber.ToleranceCelsius,
		Timeout:   time.Duration(cfg.Chamber.StabilizationTimeoutSeconds * float64(time.Second)),
		Clock:     clock,
		Log:       log,
	}
}

// ntcSensor reads chamber temperature off the DUT's own NTC thermistor.
type ntcSensor struct {
	link dut.Link
}

func (s ntcSensor) ReadTemperature() (float64, error) {
	return s.link.ReadField(dut.FieldNTCTemp)
}
