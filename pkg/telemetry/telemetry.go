// Package telemetry defines point-in-time vehicle readings.
//
// Every field of a Snapshot is independently optional: an autopilot without a
// GPS fix still reports mode and armed state, and a fresh link may not have
// received any position or HUD messages yet. Absent readings are nil pointers
// and serialize as missing JSON fields rather than zero values.
package telemetry

import "fmt"

// Snapshot is a point-in-time set of vehicle readings.
type Snapshot struct {
	// Mode is the autopilot flight mode name, e.g. "GUIDED".
	Mode *string `json:"mode,omitempty"`

	// Armed reports whether the vehicle motors are armed.
	Armed *bool `json:"armed,omitempty"`

	Latitude  *float64 `json:"lat,omitempty"` // degrees
	Longitude *float64 `json:"lon,omitempty"` // degrees

	// AltitudeMSL is the altitude above mean sea level in meters.
	AltitudeMSL *float64 `json:"alt,omitempty"`

	// RelativeAltitude is the altitude above the home position in meters.
	RelativeAltitude *float64 `json:"relative_alt,omitempty"`

	Airspeed    *float64 `json:"airspeed,omitempty"`    // m/s
	Groundspeed *float64 `json:"groundspeed,omitempty"` // m/s

	// Heading is the vehicle yaw in degrees, [0, 360).
	Heading *float64 `json:"heading,omitempty"`

	// BatteryVoltage is the main battery voltage in volts.
	BatteryVoltage *float64 `json:"battery_voltage,omitempty"`

	// BatteryLevel is the remaining battery percentage.
	BatteryLevel *int `json:"battery_level,omitempty"`
}

// String returns a pointer to s, for populating optional Snapshot fields.
func String(s string) *string { return &s }

// Bool returns a pointer to b, for populating optional Snapshot fields.
func Bool(b bool) *bool { return &b }

// Float returns a pointer to f, for populating optional Snapshot fields.
func Float(f float64) *float64 { return &f }

// Int returns a pointer to i, for populating optional Snapshot fields.
func Int(i int) *int { return &i }

func (s *Snapshot) String() string {
	mode := "?"
	if s.Mode != nil {
		mode = *s.Mode
	}
	armed := "?"
	if s.Armed != nil {
		armed = fmt.Sprintf("%t", *s.Armed)
	}
	return fmt.Sprintf("mode=%s armed=%s", mode, armed)
}
