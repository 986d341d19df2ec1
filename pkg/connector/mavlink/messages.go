package mavlink

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Message IDs consumed or emitted by this driver.
const (
	msgHeartbeat         = 0
	msgSysStatus         = 1
	msgGlobalPositionInt = 33
	msgVFRHUD            = 74
)

// Wire lengths of the full (untruncated) payloads.
const (
	lenHeartbeat         = 9
	lenSysStatus         = 31
	lenGlobalPositionInt = 28
	lenVFRHUD            = 20
)

const (
	// modeFlagCustomModeEnabled marks customMode as carrying an autopilot-specific flight
	// mode.
	modeFlagCustomModeEnabled = 0x01
	// modeFlagSafetyArmed marks the motors as armed.
	modeFlagSafetyArmed = 0x80

	mavTypeGCS          = 6
	mavAutopilotInvalid = 8
	mavStateActive      = 4
	mavlinkVersion      = 3

	// headingUnknown is the sentinel an autopilot reports when it has no heading estimate.
	headingUnknown = math.MaxUint16
)

// copterModes names ArduPilot multicopter custom modes, the common case for the vehicles this
// gateway fronts. Unknown modes render as MODE(n) rather than failing.
var copterModes = map[uint32]string{
	0:  "STABILIZE",
	1:  "ACRO",
	2:  "ALT_HOLD",
	3:  "AUTO",
	4:  "GUIDED",
	5:  "LOITER",
	6:  "RTL",
	7:  "CIRCLE",
	9:  "LAND",
	16: "POSHOLD",
	17: "BRAKE",
	20: "GUIDED_NOGPS",
	21: "SMART_RTL",
}

// payloadReader walks a little-endian payload, zero-extending reads past the end. v2 senders
// truncate trailing zero bytes, so short payloads are valid.
type payloadReader struct {
	buf []byte
	off int
}

func (r *payloadReader) take(n int) []byte {
	out := make([]byte, n)
	if r.off < len(r.buf) {
		copy(out, r.buf[r.off:])
	}
	r.off += n
	return out
}

func (r *payloadReader) u8() uint8   { return r.take(1)[0] }
func (r *payloadReader) i8() int8    { return int8(r.u8()) }
func (r *payloadReader) u16() uint16 { return binary.LittleEndian.Uint16(r.take(2)) }
func (r *payloadReader) i16() int16  { return int16(r.u16()) }
func (r *payloadReader) u32() uint32 { return binary.LittleEndian.Uint32(r.take(4)) }
func (r *payloadReader) i32() int32  { return int32(r.u32()) }
func (r *payloadReader) f32() float64 {
	return float64(math.Float32frombits(r.u32()))
}

type heartbeat struct {
	customMode   uint32
	vehicleType  uint8
	autopilot    uint8
	baseMode     uint8
	systemStatus uint8
}

func decodeHeartbeat(payload []byte) heartbeat {
	r := payloadReader{buf: payload}
	return heartbeat{
		customMode:   r.u32(),
		vehicleType:  r.u8(),
		autopilot:    r.u8(),
		baseMode:     r.u8(),
		systemStatus: r.u8(),
	}
}

func (h heartbeat) armed() bool {
	return h.baseMode&modeFlagSafetyArmed != 0
}

func (h heartbeat) modeName() string {
	if h.baseMode&modeFlagCustomModeEnabled != 0 {
		if name, ok := copterModes[h.customMode]; ok {
			return name
		}
		return fmt.Sprintf("MODE(%d)", h.customMode)
	}
	return fmt.Sprintf("BASE_MODE(%d)", h.baseMode)
}

type sysStatus struct {
	voltageBattery   uint16 // millivolts, 0 when unknown
	batteryRemaining int8   // percent, -1 when unknown
}

func decodeSysStatus(payload []byte) sysStatus {
	r := payloadReader{buf: payload}
	r.take(12) // sensor present/enabled/health bitmasks
	r.u16()    // load
	voltage := r.u16()
	r.i16()    // current
	r.take(12) // comm drop rate and error counters
	return sysStatus{
		voltageBattery:   voltage,
		batteryRemaining: r.i8(),
	}
}

type globalPositionInt struct {
	lat         int32 // degE7
	lon         int32 // degE7
	alt         int32 // mm MSL
	relativeAlt int32 // mm above home
	hdg         uint16
}

func decodeGlobalPositionInt(payload []byte) globalPositionInt {
	r := payloadReader{buf: payload}
	r.u32() // time_boot_ms
	msg := globalPositionInt{
		lat:         r.i32(),
		lon:         r.i32(),
		alt:         r.i32(),
		relativeAlt: r.i32(),
	}
	r.take(6) // vx, vy, vz
	msg.hdg = r.u16()
	return msg
}

type vfrHUD struct {
	airspeed    float64
	groundspeed float64
	heading     int16
}

func decodeVFRHUD(payload []byte) vfrHUD {
	r := payloadReader{buf: payload}
	msg := vfrHUD{
		airspeed:    r.f32(),
		groundspeed: r.f32(),
	}
	r.f32() // alt
	r.f32() // climb
	msg.heading = r.i16()
	return msg
}

// gcsHeartbeatPayload is the heartbeat this driver emits so the autopilot knows a ground
// station is listening.
func gcsHeartbeatPayload() []byte {
	payload := make([]byte, lenHeartbeat)
	// custom_mode stays zero
	payload[4] = mavTypeGCS
	payload[5] = mavAutopilotInvalid
	// base_mode stays zero
	payload[7] = mavStateActive
	payload[8] = mavlinkVersion
	return payload
}
