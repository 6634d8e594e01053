package dut

import "testing"

func TestParseFloatPayload(t *testing.T) {
	cases := []struct {
		payload string
		want    float64
		wantErr bool
	}{
		{"3.912", 3.912, false},
		{"VBAT=4.05", 4.05, false},
		{"ibat=-312.5 mA", -312.5, false},
		{"VBAT= 3.9", 0, true},
		{"", 0, true},
		{"charging", 0, true},
	}
	for _, tc := range cases {
		got, err := parseFloatPayload(tc.payload)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseFloatPayload(%q): expected error, got %g", tc.payload, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseFloatPayload(%q): %v", tc.payload, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseFloatPayload(%q) = %g, want %g", tc.payload, got, tc.want)
		}
	}
}

func TestParseTextPayload(t *testing.T) {
	cases := []struct {
		payload string
		want    string
	}{
		{"0x18", "0x18"},
		{"IBA_MEAS=0x18", "0x18"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := parseTextPayload(tc.payload); got != tc.want {
			t.Errorf("parseTextPayload(%q) = %q, want %q", tc.payload, got, tc.want)
		}
	}
}

func TestParseModePayload(t *testing.T) {
	cases := []struct {
		payload string
		want    string
	}{
		{"STATUS: CHARGING", "CHARGING"},
		{"status=discharging vbat=3.9", "DISCHARGING"},
		{"idle", "IDLE"},
		// DISCHARGING must win over its CHARGING substring.
		{"DISCHARGING", "DISCHARGING"},
		{"MODE=0x02", "0x02"},
	}
	for _, tc := range cases {
		if got := parseModePayload(tc.payload); got != tc.want {
			t.Errorf("parseModePayload(%q) = %q, want %q", tc.payload, got, tc.want)
		}
	}
}
