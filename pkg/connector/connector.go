package connector

import (
	"context"

	"github.com/openmav/mavgate/pkg/telemetry"
)

// Driver opens sessions with a vehicle over some transport. Implementations negotiate the
// link (for MAVLink, wait for a first heartbeat) before returning.
type Driver interface {
	// Open establishes a session with the vehicle at addr. Open blocks until the link is
	// negotiated or ctx expires; a ctx deadline is the only bound on the attempt.
	//
	// Implementations must be thread safe.
	Open(ctx context.Context, addr Address) (Session, error)
}

// Session is a live link to a vehicle, owned exclusively by the link manager.
type Session interface {
	// Telemetry returns the most recent vehicle readings. Individual readings the vehicle has
	// not supplied yet are absent from the snapshot; that is not an error. Telemetry returns
	// an error only when the link itself can no longer be trusted.
	//
	// Implementations must be thread safe.
	Telemetry(ctx context.Context) (*telemetry.Snapshot, error)

	// Close terminates the link.
	//
	// Repeated calls to Close() must be idempotent, but the behavior of the interface is
	// otherwise undefined after calling this method.
	Close() error
}
