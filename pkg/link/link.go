// Package link supervises the single live connection to a vehicle.
//
// A Manager owns at most one session at a time and serializes every state transition. The
// blocking link negotiation itself runs outside the manager lock, so status queries stay
// responsive while a connect attempt is in flight.
package link

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/openmav/mavgate/internal/log"
	"github.com/openmav/mavgate/pkg/connector"
	"github.com/openmav/mavgate/pkg/protocol"
	"github.com/openmav/mavgate/pkg/telemetry"
)

// DefaultConnectTimeout bounds link negotiation when the caller does not supply a timeout.
const DefaultConnectTimeout = 60 * time.Second

// baselineQueryTimeout bounds the best-effort telemetry query performed right after a
// successful connect. It must be short: Disconnect waits for the whole attempt to resolve.
const baselineQueryTimeout = 2 * time.Second

// State enumerates the observable lifecycle states of the vehicle connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateFailed
)

var stateNames = map[State]string{
	StateDisconnected: "disconnected",
	StateConnecting:   "connecting",
	StateConnected:    "connected",
	StateFailed:       "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// ConnectAck acknowledges a Connect call.
type ConnectAck struct {
	// AlreadyConnected is true when Connect short-circuited because a live session existed.
	// No new session is opened in that case.
	AlreadyConnected bool `json:"already_connected"`

	// Telemetry holds a baseline snapshot taken right after a fresh link came up. Absent when
	// AlreadyConnected, and best-effort otherwise.
	Telemetry *telemetry.Snapshot `json:"telemetry,omitempty"`
}

// DisconnectAck acknowledges a Disconnect call.
type DisconnectAck struct {
	// WasConnected is true if a live session was actually torn down.
	WasConnected bool `json:"was_connected"`
}

// Status reports the current connection state, with telemetry when a link is live.
type Status struct {
	Connected bool                `json:"is_connected"`
	State     string              `json:"state"`
	Address   string              `json:"address,omitempty"`
	LastError string              `json:"last_error,omitempty"`
	Telemetry *telemetry.Snapshot `json:"telemetry,omitempty"`
}

// Manager owns the zero-or-one active vehicle connection.
type Manager struct {
	driver connector.Driver

	mu      sync.Mutex
	state   State
	address connector.Address
	session connector.Session
	lastErr error
	attempt chan struct{} // non-nil while Connecting, closed when the attempt resolves
}

// NewManager creates a Manager that opens sessions through driver.
func NewManager(driver connector.Driver) *Manager {
	return &Manager{driver: driver}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastError returns the most recent connect failure, or nil. Cleared by a successful connect
// and by Disconnect.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Connect establishes a link to the vehicle at address, waiting up to timeout for the link to
// negotiate. A non-positive timeout selects DefaultConnectTimeout.
//
// Connecting while already connected is not an error: the live session is left untouched and
// the ack reports AlreadyConnected. A concurrent attempt returns
// protocol.ErrConnectInProgress. All failures land the manager in the failed state, from
// which both Connect and Disconnect remain valid.
func (m *Manager) Connect(ctx context.Context, address string, timeout time.Duration) (*ConnectAck, error) {
	addr, err := connector.ParseAddress(address)
	if err != nil {
		// Malformed addresses never disturb the current connection.
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	m.mu.Lock()
	switch m.state {
	case StateConnected:
		m.mu.Unlock()
		log.Info("Already connected to %s", m.address)
		return &ConnectAck{AlreadyConnected: true}, nil
	case StateConnecting:
		m.mu.Unlock()
		return nil, protocol.ErrConnectInProgress
	}
	m.state = StateConnecting
	m.address = addr
	m.attempt = make(chan struct{})
	m.mu.Unlock()

	log.Info("Connecting to %s (timeout %s)...", addr, timeout)
	session, baseline, err := m.negotiate(ctx, addr, timeout)

	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.resolveAttempt()
	if err != nil {
		m.state = StateFailed
		m.lastErr = err
		log.Error("Connection to %s failed: %s", addr, err)
		return nil, err
	}
	m.state = StateConnected
	m.session = session
	m.lastErr = nil
	log.Info("Connected to %s", addr)
	return &ConnectAck{Telemetry: baseline}, nil
}

// negotiate performs the blocking link negotiation. It runs without the manager lock held and
// returns a classified error on failure.
func (m *Manager) negotiate(ctx context.Context, addr connector.Address, timeout time.Duration) (connector.Session, *telemetry.Snapshot, error) {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	session, err := m.driver.Open(dialCtx, addr)
	if err != nil {
		return nil, nil, classifyOpenError(err)
	}
	if session == nil {
		// A nil session with a nil error violates the driver contract.
		return nil, nil, &protocol.UnknownFault{}
	}

	queryCtx, cancelQuery := context.WithTimeout(ctx, baselineQueryTimeout)
	defer cancelQuery()
	baseline, err := session.Telemetry(queryCtx)
	if err != nil {
		// A link that negotiated but has no readings yet is still a live link.
		log.Warning("No baseline telemetry from %s yet: %s", addr, err)
		baseline = nil
	}
	return session, baseline, nil
}

func classifyOpenError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, protocol.ErrTimeout):
		return protocol.ErrTimeout
	case errors.Is(err, context.Canceled):
		return &protocol.UnknownFault{Detail: err}
	default:
		return &protocol.DriverFault{Detail: err}
	}
}

// resolveAttempt wakes anything blocked on the in-flight connect. Callers must hold the lock.
func (m *Manager) resolveAttempt() {
	close(m.attempt)
	m.attempt = nil
}

// Disconnect tears down the live session if there is one. It is always valid and always
// leaves the manager disconnected, clearing any recorded failure. If a connect attempt is in
// flight, Disconnect waits for it to resolve and then tears down whatever it produced.
func (m *Manager) Disconnect() DisconnectAck {
	m.mu.Lock()
	for m.state == StateConnecting {
		attempt := m.attempt
		m.mu.Unlock()
		<-attempt
		m.mu.Lock()
	}

	if m.state != StateConnected {
		m.state = StateDisconnected
		m.lastErr = nil
		m.mu.Unlock()
		return DisconnectAck{WasConnected: false}
	}

	session := m.session
	m.session = nil
	m.state = StateDisconnected
	m.lastErr = nil
	m.mu.Unlock()

	// Close failures are logged, not surfaced: the session is gone either way.
	if err := session.Close(); err != nil {
		log.Warning("Error closing vehicle session: %s", err)
	}
	log.Info("Vehicle connection closed")
	return DisconnectAck{WasConnected: true}
}

// Status reports the current connection state. With a live link it queries the driver for
// current telemetry; a query failure is surfaced as protocol.ErrLinkLost without demoting the
// connection, so the caller decides whether to force a Disconnect.
func (m *Manager) Status(ctx context.Context) (*Status, error) {
	m.mu.Lock()
	if m.state != StateConnected {
		status := &Status{Connected: false, State: m.state.String()}
		if m.lastErr != nil {
			status.LastError = m.lastErr.Error()
		}
		m.mu.Unlock()
		return status, nil
	}
	session := m.session
	addr := m.address
	m.mu.Unlock()

	snapshot, err := session.Telemetry(ctx)
	if err != nil {
		log.Warning("Telemetry query on %s failed: %s", addr, err)
		return nil, protocol.ErrLinkLost
	}
	return &Status{
		Connected: true,
		State:     StateConnected.String(),
		Address:   addr.String(),
		Telemetry: snapshot,
	}, nil
}
