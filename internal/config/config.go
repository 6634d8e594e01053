package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full test configuration. It is loaded once at startup and
// treated as immutable for the rest of the session.
type Config struct {
	General     General           `yaml:"general"`
	Relay       Relay             `yaml:"relay"`
	Chamber     Chamber           `yaml:"temperature_chamber"`
	TestPlan    TestPlan          `yaml:"test_plan"`
	Notify      Notifications     `yaml:"notifications"`
	DUTCommands map[string]string `yaml:"dut_commands"`
	Simulation  Simulation        `yaml:"simulation"`
}

type General struct {
	DUTSerialPort      string  `yaml:"dut_serial_port"`
	OutputDirectory    string  `yaml:"output_directory"`
	LogIntervalSeconds float64 `yaml:"log_interval_seconds"`
	SimulateDUT        bool    `yaml:"simulate_dut"`
	FailFast           bool    `yaml:"fail_fast"`
	RunLogFile         string  `yaml:"run_log_file"`
}

type Relay struct {
	// Empty IPAddress selects the in-memory relay board.
	IPAddress         string `yaml:"ip_address"`
	USBPowerPins      []int  `yaml:"usb_power_relay_pins"`
	ChargerEnablePins []int  `yaml:"charger_enable_relay_pins"`
	BeeperPins        []int  `yaml:"beeper_pins"`
}

type Chamber struct {
	Enabled                     bool    `yaml:"enabled"`
	StabilizationTimeoutSeconds float64 `yaml:"stabilization_timeout_seconds"`
	ToleranceCelsius            float64 `yaml:"tolerance_celsius"`
}

// TestPlan describes the temperatures x cycles x modes matrix and the
// per-mode parameter bundles.
type TestPlan struct {
	TemperaturesCelsius  []float64 `yaml:"temperatures_celsius"`
	TestModes            []string  `yaml:"test_modes"`
	CyclesPerTemperature int       `yaml:"cycles_per_temperature"`
	RelaxationSeconds    float64   `yaml:"relaxation_time_seconds"`

	LinearDischargeVoltageLimit        float64 `yaml:"linear_discharge_voltage_limit"`
	LinearChargeIdleCurrentThresholdMA float64 `yaml:"linear_charge_idle_current_threshold_ma"`
	MaxChargeTimeHours                 float64 `yaml:"max_charge_time_hours"`

	SwitchingPhaseDurationS   float64 `yaml:"switching_phase_duration_s"`
	SwitchingIntervalS        float64 `yaml:"switching_interval_s"`
	SwitchingChargeCommand    string  `yaml:"switching_charge_command"`
	SwitchingDischargeCommand string  `yaml:"switching_discharge_command"`
	SwitchingRepeatCount      int     `yaml:"switching_repeat_count"`

	RandomDurationS         float64 `yaml:"random_duration_s"`
	RandomMinPhaseS         float64 `yaml:"random_min_phase_s"`
	RandomMaxPhaseS         float64 `yaml:"random_max_phase_s"`
	RandomChargeProbability float64 `yaml:"random_charge_probability"`
	RandomMinVoltage        float64 `yaml:"random_min_voltage"`
	RandomMaxVoltage        float64 `yaml:"random_max_voltage"`
	RandomSeed              int64   `yaml:"random_seed"`
}

type Notifications struct {
	ManualTempMode  string `yaml:"manual_temp_mode"`
	SlackWebhookURL string `yaml:"slack_webhook_url"`
}

// Simulation tunes the simulated DUT battery model.
type Simulation struct {
	InitialVoltage     float64 `yaml:"initial_voltage"`
	MaxVoltage         float64 `yaml:"max_voltage"`
	MinVoltage         float64 `yaml:"min_voltage"`
	ChargeRateVPerS    float64 `yaml:"charge_rate_v_per_s"`
	DischargeRateVPerS float64 `yaml:"discharge_rate_v_per_s"`
	ChargeCurrentMA    float64 `yaml:"charge_current_ma"`
	DischargeCurrentMA float64 `yaml:"discharge_current_ma"`
	AmbientCelsius     float64 `yaml:"ambient_celsius"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.General.OutputDirectory == "" {
		c.General.OutputDirectory = "./results"
	}
	if c.General.LogIntervalSeconds <= 0 {
		c.General.LogIntervalSeconds = 1
	}
	if c.Chamber.StabilizationTimeoutSeconds <= 0 {
		c.Chamber.StabilizationTimeoutSeconds = 1800
	}
	if c.Chamber.ToleranceCelsius <= 0 {
		c.Chamber.ToleranceCelsius = 1.0
	}

	p := &c.TestPlan
	if len(p.TemperaturesCelsius) == 0 {
		p.TemperaturesCelsius = []float64{25}
	}
	if len(p.TestModes) == 0 {
		p.TestModes = []string{"linear"}
	}
	if p.CyclesPerTemperature < 1 {
		p.CyclesPerTemperature = 1
	}
	if p.MaxChargeTimeHours <= 0 {
		p.MaxChargeTimeHours = 10
	}
	if p.SwitchingPhaseDurationS <= 0 {
		p.SwitchingPhaseDurationS = 300
	}
	if p.SwitchingIntervalS <= 0 {
		p.SwitchingIntervalS = 5
	}
	if p.SwitchingChargeCommand == "" {
		p.SwitchingChargeCommand = "enable_charging"
	}
	if p.SwitchingDischargeCommand == "" {
		p.SwitchingDischargeCommand = "disable_charging"
	}
	if p.SwitchingRepeatCount < 1 {
		p.SwitchingRepeatCount = 1
	}
	if p.RandomDurationS <= 0 {
		p.RandomDurationS = 1800
	}
	if p.RandomMinPhaseS <= 0 {
		p.RandomMinPhaseS = 10
	}
	if p.RandomMaxPhaseS <= 0 {
		p.RandomMaxPhaseS = 120
	}
	if p.RandomChargeProbability == 0 {
		p.RandomChargeProbability = 0.6
	}
	if p.RandomMaxVoltage == 0 {
		p.RandomMaxVoltage = 4.25
	}
	if p.RandomMinVoltage == 0 {
		p.RandomMinVoltage = 2.9
	}

	if c.Notify.ManualTempMode == "" {
		c.Notify.ManualTempMode = "beeper"
	}

	s := &c.Simulation
	if s.InitialVoltage == 0 {
		s.InitialVoltage = 3.7
	}
	if s.MaxVoltage == 0 {
		s.MaxVoltage = 4.2
	}
	if s.MinVoltage == 0 {
		s.MinVoltage = 3.0
	}
	if s.ChargeRateVPerS == 0 {
		s.ChargeRateVPerS = 0.05
	}
	if s.DischargeRateVPerS == 0 {
		s.DischargeRateVPerS = 0.08
	}
	if s.ChargeCurrentMA == 0 {
		s.ChargeCurrentMA = 500
	}
	if s.DischargeCurrentMA == 0 {
		s.DischargeCurrentMA = -300
	}
	if s.AmbientCelsius == 0 {
		s.AmbientCelsius = 25
	}
}

func validate(cfg *Config) error {
	if !cfg.General.SimulateDUT && cfg.General.DUTSerialPort == "" {
		return fmt.Errorf("general.dut_serial_port is required unless simulate_dut is set")
	}
	for _, group := range []struct {
		name string
		pins []int
	}{
		{"usb_power_relay_pins", cfg.Relay.USBPowerPins},
		{"charger_enable_relay_pins", cfg.Relay.ChargerEnablePins},
		{"beeper_pins", cfg.Relay.BeeperPins},
	} {
		for _, pin := range group.pins {
			if pin < 1 || pin > 16 {
				return fmt.Errorf("relay.%s: pin %d out of range 1-16", group.name, pin)
			}
		}
	}

	p := &cfg.TestPlan
	for _, mode := range p.TestModes {
		switch mode {
		case "linear", "switching", "random":
		default:
			return fmt.Errorf("test_plan.test_modes: unknown mode %q", mode)
		}
	}
	if containsMode(p.TestModes, "linear") {
		if p.LinearDischargeVoltageLimit <= 0 {
			return fmt.Errorf("test_plan.linear_discharge_voltage_limit is required for linear mode")
		}
		if p.LinearChargeIdleCurrentThresholdMA <= 0 {
			return fmt.Errorf("test_plan.linear_charge_idle_current_threshold_ma is required for linear mode")
		}
	}
	if p.RandomChargeProbability < 0 || p.RandomChargeProbability > 1 {
		return fmt.Errorf("test_plan.random_charge_probability must be within [0,1]")
	}
	if p.RandomMinPhaseS > p.RandomMaxPhaseS {
		return fmt.Errorf("test_plan.random_min_phase_s exceeds random_max_phase_s")
	}
	if p.RandomMinVoltage >= p.RandomMaxVoltage {
		return fmt.Errorf("test_plan.random_min_voltage must be below random_max_voltage")
	}

	switch cfg.Notify.ManualTempMode {
	case "beeper", "slack", "both", "none":
	default:
		return fmt.Errorf("notifications.manual_temp_mode: unknown mode %q", cfg.Notify.ManualTempMode)
	}
	if needsSlack(cfg.Notify.ManualTempMode) && cfg.Notify.SlackWebhookURL == "" {
		return fmt.Errorf("notifications.slack_webhook_url is required for manual_temp_mode %q", cfg.Notify.ManualTempMode)
	}

	if !cfg.General.SimulateDUT {
		for _, key := range requiredCommands {
			if cfg.DUTCommands[key] == "" {
				return fmt.Errorf("dut_commands.%s is required", key)
			}
		}
	}
	return nil
}

// requiredCommands is the logical command vocabulary a real DUT run needs.
var requiredCommands = []string{
	"enable_charging", "disable_charging",
	"enable_discharge", "disable_discharge",
	"get_voltage", "get_current", "get_status",
	"get_ntc_temp", "get_vsys", "get_die_temp",
	"get_iba_meas_status", "get_buck_status",
}

func containsMode(modes []string, mode string) bool {
	for _, m := range modes {
		if m == mode {
			return true
		}
	}
	return false
}

func needsSlack(mode string) bool {
	return mode == "slack" || mode == "both"
}
