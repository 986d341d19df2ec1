package connector

import (
	"errors"
	"testing"

	"github.com/openmav/mavgate/pkg/protocol"
)

func TestParseAddress(t *testing.T) {
	cases := []struct {
		input string
		want  Address
	}{
		{"udp:127.0.0.1:14550", Address{Transport: TransportUDP, Host: "127.0.0.1", Port: 14550}},
		{"tcp:10.0.0.2:5760", Address{Transport: TransportTCP, Host: "10.0.0.2", Port: 5760}},
		{"serial:/dev/ttyUSB0:115200", Address{Transport: TransportSerial, Device: "/dev/ttyUSB0", Baud: 115200}},
		{"serial:/dev/ttyACM0", Address{Transport: TransportSerial, Device: "/dev/ttyACM0", Baud: DefaultBaud}},
	}
	for _, c := range cases {
		got, err := ParseAddress(c.input)
		if err != nil {
			t.Errorf("ParseAddress(%q) returned error: %s", c.input, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseAddress(%q) = %+v, want %+v", c.input, got, c.want)
		}
	}
}

func TestParseAddressRejectsMalformedInput(t *testing.T) {
	inputs := []string{
		"",
		"not-a-valid-address",
		"udp:",
		"udp:127.0.0.1",
		"udp::14550",
		"udp:127.0.0.1:0",
		"udp:127.0.0.1:999999",
		"udp:127.0.0.1:sitl",
		"tcp:host:",
		"serial:",
		"serial::57600",
		"serial:/dev/ttyUSB0:0",
		"ble:aa:bb:cc",
	}
	for _, input := range inputs {
		if _, err := ParseAddress(input); !errors.Is(err, protocol.ErrInvalidAddress) {
			t.Errorf("ParseAddress(%q) = %v, want ErrInvalidAddress", input, err)
		}
	}
}

func TestAddressRoundTrip(t *testing.T) {
	for _, input := range []string{"udp:127.0.0.1:14550", "serial:/dev/ttyUSB0:57600"} {
		addr, err := ParseAddress(input)
		if err != nil {
			t.Fatalf("ParseAddress(%q): %s", input, err)
		}
		if addr.String() != input {
			t.Errorf("round trip of %q produced %q", input, addr.String())
		}
	}
}
