package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cycletester/internal/config"
)

const validYAML = `
general:
  dut_serial_port: /dev/ttyACM0
  output_directory: /tmp/cycles
  simulate_dut: true
relay:
  usb_power_relay_pins: [1, 2]
  beeper_pins: [5]
test_plan:
  temperatures_celsius: [25]
  test_modes: [linear]
  cycles_per_temperature: 2
  linear_discharge_voltage_limit: 3.0
  linear_charge_idle_current_threshold_ma: 50
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cycletester.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValid(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TestPlan.CyclesPerTemperature != 2 {
		t.Errorf("cycles = %d, want 2", cfg.TestPlan.CyclesPerTemperature)
	}
	if got := cfg.General.LogIntervalSeconds; got != 1 {
		t.Errorf("default log interval = %g, want 1", got)
	}
	if got := cfg.TestPlan.MaxChargeTimeHours; got != 10 {
		t.Errorf("default max charge time = %g, want 10", got)
	}
	if got := cfg.Notify.ManualTempMode; got != "beeper" {
		t.Errorf("default manual temp mode = %q, want beeper", got)
	}
	if got := cfg.Simulation.InitialVoltage; got != 3.7 {
		t.Errorf("default sim initial voltage = %g, want 3.7", got)
	}
}

func TestLoadRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing serial port for real run",
			yaml: `
general:
  output_directory: /tmp/cycles
`,
			want: "dut_serial_port",
		},
		{
			name: "pin out of range",
			yaml: strings.Replace(validYAML,
				"beeper_pins: [5]", "beeper_pins: [17]", 1),
			want: "out of range",
		},
		{
			name: "unknown mode",
			yaml: strings.Replace(validYAML, "[linear]", "[teleport]", 1),
			want: "unknown mode",
		},
		{
			name: "linear params missing",
			yaml: strings.Replace(validYAML, "linear_discharge_voltage_limit: 3.0", "", 1),
			want: "linear_discharge_voltage_limit",
		},
		{
			name: "slack url missing",
			yaml: validYAML + `
notifications:
  manual_temp_mode: slack
`,
			want: "slack_webhook_url",
		},
		{
			name: "bad charge probability",
			yaml: validYAML + `
  random_charge_probability: 1.5
`,
			want: "random_charge_probability",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tc.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadRequiresCommandTableForRealRuns(t *testing.T) {
	real := strings.Replace(validYAML, "simulate_dut: true", "simulate_dut: false", 1)
	_, err := config.Load(writeConfig(t, real))
	if err == nil || !strings.Contains(err.Error(), "dut_commands") {
		t.Fatalf("expected dut_commands error, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
