package dut

import "fmt"

// Logical command names. The wire text for each comes from the configured
// dut_commands table; the engine never hardcodes it.
const (
	CmdEnableCharging   = "enable_charging"
	CmdDisableCharging  = "disable_charging"
	CmdEnableDischarge  = "enable_discharge"
	CmdDisableDischarge = "disable_discharge"
)

// Telemetry field names, one per CSV column sourced from the DUT.
const (
	FieldVBat          = "vbat"
	FieldIBat          = "ibat"
	FieldNTCTemp       = "ntc_temp"
	FieldVSys          = "vsys"
	FieldDieTemp       = "die_temp"
	FieldIBAMeasStatus = "iba_meas_status"
	FieldBuckStatus    = "buck_status"
	FieldMode          = "mode"
)

// fieldCommands maps a telemetry field to the logical command that reads it.
var fieldCommands = map[string]string{
	FieldVBat:          "get_voltage",
	FieldIBat:          "get_current",
	FieldNTCTemp:       "get_ntc_temp",
	FieldVSys:          "get_vsys",
	FieldDieTemp:       "get_die_temp",
	FieldIBAMeasStatus: "get_iba_meas_status",
	FieldBuckStatus:    "get_buck_status",
	FieldMode:          "get_status",
}

// Link is the capability surface of the device under test. The real serial
// link and the simulator implement identical behavior behind it.
type Link interface {
	// SendCommand issues a control command by logical name.
	SendCommand(name string) error
	// ReadField reads one numeric telemetry field.
	ReadField(field string) (float64, error)
	// ReadText reads one textual telemetry field (status registers, mode).
	ReadText(field string) (string, error)
	Close() error
}

// ReadError is one failed telemetry read. The executors log a sentinel for
// the tick and retry; repeated failures of the same field escalate.
type ReadError struct {
	Field string
	Err   error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("reading dut field %q: %v", e.Field, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// CommandError is a failed or rejected control command.
type CommandError struct {
	Name string
	Err  error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("dut command %q: %v", e.Name, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }
