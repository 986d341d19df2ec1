package protocol

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelCategories(t *testing.T) {
	transient := []error{ErrConnectInProgress, ErrTimeout, ErrLinkLost}
	for _, err := range transient {
		if !Temporary(err) {
			t.Errorf("expected %q to be temporary", err)
		}
	}
	permanent := []error{ErrInvalidAddress, ErrNotConnected}
	for _, err := range permanent {
		if Temporary(err) {
			t.Errorf("expected %q to be permanent", err)
		}
	}
}

func TestTemporaryIgnoresForeignErrors(t *testing.T) {
	if Temporary(errors.New("some transport hiccup")) {
		t.Error("errors outside the taxonomy should not be treated as temporary")
	}
	if Temporary(nil) {
		t.Error("nil is not temporary")
	}
}

func TestTemporaryUnwrapsContext(t *testing.T) {
	wrapped := fmt.Errorf("connect: %w", ErrTimeout)
	if !Temporary(wrapped) {
		t.Error("Temporary should unwrap to find categorized errors")
	}
}

func TestDriverFaultPreservesDetail(t *testing.T) {
	detail := errors.New("heartbeat decode failed")
	err := &DriverFault{Detail: detail}
	if !errors.Is(err, detail) {
		t.Error("DriverFault should unwrap to the driver's diagnostic")
	}
	if Temporary(err) {
		t.Error("driver faults are not retried automatically")
	}
}

func TestUnknownFaultWithoutDetail(t *testing.T) {
	err := &UnknownFault{}
	if err.Error() == "" {
		t.Error("UnknownFault must render a message even without detail")
	}
}
