package protocol

import (
	"errors"
	"fmt"
)

// Error exposes methods useful for categorizing link failures.
type Error interface {
	error

	// Temporary returns true if the Error might be the result of a transient condition. For
	// example, a connect attempt that timed out may succeed if the vehicle link comes up a
	// moment later, so callers may reasonably retry.
	Temporary() bool
}

var (
	// ErrInvalidAddress indicates a connection string that does not match any supported
	// transport scheme. Link state is never modified when this error is returned.
	ErrInvalidAddress = NewError("address is not valid for any supported transport", false)

	// ErrConnectInProgress indicates a connect attempt arrived while another attempt was
	// still negotiating the link. The in-flight attempt is left undisturbed.
	ErrConnectInProgress = NewError("a connection attempt is already in progress", true)

	// ErrTimeout indicates the link did not come up before the connect deadline.
	ErrTimeout = NewError("timed out waiting for vehicle link", true)

	// ErrLinkLost indicates a telemetry query failed on a link that was believed live. The
	// manager does not tear the session down on its own; callers decide whether to
	// disconnect.
	ErrLinkLost = NewError("vehicle link lost", true)

	// ErrNotConnected indicates an operation that requires a live link was invoked without
	// one.
	ErrNotConnected = NewError("no vehicle connected", false)
)

// LinkError is the concrete type behind the sentinel errors above.
type LinkError struct {
	Err       error
	Transient bool
}

// NewError returns a categorized link error.
func NewError(message string, temporary bool) error {
	return &LinkError{Err: errors.New(message), Transient: temporary}
}

func (e *LinkError) Error() string {
	return e.Err.Error()
}

func (e *LinkError) Unwrap() error {
	return e.Err
}

func (e *LinkError) Temporary() bool {
	return e.Transient
}

// DriverFault wraps an error surfaced by the underlying protocol driver during link
// negotiation. The driver's diagnostic is preserved for operators, but callers should branch
// on the type, not the text.
type DriverFault struct {
	Detail error
}

func (e *DriverFault) Error() string {
	return fmt.Sprintf("driver error: %s", e.Detail)
}

func (e *DriverFault) Unwrap() error {
	return e.Detail
}

func (e *DriverFault) Temporary() bool {
	return false
}

// UnknownFault wraps a connect failure that fits no other category, including a driver that
// returns a nil session without an error.
type UnknownFault struct {
	Detail error
}

func (e *UnknownFault) Error() string {
	if e.Detail == nil {
		return "unknown link failure"
	}
	return fmt.Sprintf("unknown link failure: %s", e.Detail)
}

func (e *UnknownFault) Unwrap() error {
	return e.Detail
}

func (e *UnknownFault) Temporary() bool {
	return false
}

// Temporary returns true if err indicates a transient condition that does not require user
// action to resolve.
func Temporary(err error) bool {
	var linkErr Error
	if errors.As(err, &linkErr) {
		return linkErr.Temporary()
	}
	return false
}
