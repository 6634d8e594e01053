package telemetry

import (
	"fmt"
	"math"
)

// Columns is the fixed CSV schema shared by every phase and mode, so
// downstream analysis can concatenate files blindly.
var Columns = []string{
	"time", "vbat", "ibat", "ntc_temp", "vsys",
	"die_temp", "iba_meas_status", "buck_status", "mode",
}

// Sample is one logged telemetry row. Numeric fields use NaN as the
// missing-read marker; it is written as an empty CSV field, never dropped.
type Sample struct {
	Time          float64 // seconds since phase start
	VBat          float64 // V
	IBat          float64 // mA, positive = charge
	NTCTemp       float64 // degC
	VSys          float64 // V
	DieTemp       float64 // degC
	IBAMeasStatus string
	BuckStatus    string
	Mode          string
}

// Missing is the sentinel for a failed numeric read.
func Missing() float64 { return math.NaN() }

func (s Sample) record() []string {
	return []string{
		fmt.Sprintf("%.1f", s.Time),
		formatNum(s.VBat, 3),
		formatNum(s.IBat, 3),
		formatNum(s.NTCTemp, 3),
		formatNum(s.VSys, 3),
		formatNum(s.DieTemp, 3),
		s.IBAMeasStatus,
		s.BuckStatus,
		s.Mode,
	}
}

func formatNum(v float64, prec int) string {
	if math.IsNaN(v) {
		return ""
	}
	return fmt.Sprintf("%.*f", prec, v)
}
