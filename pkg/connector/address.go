package connector

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/openmav/mavgate/pkg/protocol"
)

// Transport identifies the carrier underneath a vehicle link.
type Transport string

const (
	TransportUDP    Transport = "udp"
	TransportTCP    Transport = "tcp"
	TransportSerial Transport = "serial"
)

// DefaultBaud is used for serial addresses that omit a baud rate. Matches the rate most
// telemetry radios ship with.
const DefaultBaud = 57600

// Address is a parsed vehicle connection string.
type Address struct {
	Transport Transport

	// Host and Port are set for udp and tcp transports.
	Host string
	Port int

	// Device and Baud are set for the serial transport.
	Device string
	Baud   int
}

// ParseAddress parses connection strings of the forms
//
//	udp:host:port
//	tcp:host:port
//	serial:device[:baud]
//
// e.g. "udp:127.0.0.1:14550" or "serial:/dev/ttyUSB0:57600". Malformed input returns
// protocol.ErrInvalidAddress.
func ParseAddress(s string) (Address, error) {
	scheme, rest, ok := strings.Cut(s, ":")
	if !ok || rest == "" {
		return Address{}, fmt.Errorf("%w: %q", protocol.ErrInvalidAddress, s)
	}

	switch Transport(scheme) {
	case TransportUDP, TransportTCP:
		host, portStr, ok := strings.Cut(rest, ":")
		if !ok || host == "" {
			return Address{}, fmt.Errorf("%w: %q needs host:port", protocol.ErrInvalidAddress, s)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil || port < 1 || port > 65535 {
			return Address{}, fmt.Errorf("%w: bad port in %q", protocol.ErrInvalidAddress, s)
		}
		return Address{Transport: Transport(scheme), Host: host, Port: port}, nil
	case TransportSerial:
		device := rest
		baud := DefaultBaud
		if idx := strings.LastIndex(rest, ":"); idx >= 0 {
			b, err := strconv.Atoi(rest[idx+1:])
			if err == nil {
				if b <= 0 {
					return Address{}, fmt.Errorf("%w: bad baud rate in %q", protocol.ErrInvalidAddress, s)
				}
				device = rest[:idx]
				baud = b
			}
		}
		if device == "" {
			return Address{}, fmt.Errorf("%w: %q needs a device path", protocol.ErrInvalidAddress, s)
		}
		return Address{Transport: TransportSerial, Device: device, Baud: baud}, nil
	}
	return Address{}, fmt.Errorf("%w: unsupported scheme %q", protocol.ErrInvalidAddress, scheme)
}

func (a Address) String() string {
	if a.Transport == TransportSerial {
		return fmt.Sprintf("serial:%s:%d", a.Device, a.Baud)
	}
	return fmt.Sprintf("%s:%s:%d", a.Transport, a.Host, a.Port)
}
