// Package mavlink implements connector.Driver over a MAVLink telemetry link.
//
// The driver dials UDP, TCP, or serial transports, considers the link negotiated when the
// first valid autopilot heartbeat arrives, and from then on accumulates the latest telemetry
// readings while emitting ground-station heartbeats so the autopilot keeps streaming.
package mavlink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/tarm/serial"

	"github.com/openmav/mavgate/internal/log"
	"github.com/openmav/mavgate/pkg/connector"
	"github.com/openmav/mavgate/pkg/telemetry"
)

const (
	// gcsSystemID identifies this ground station on the link.
	gcsSystemID    = 255
	gcsComponentID = 190

	// DefaultHeartbeatInterval is the rate at which the driver announces itself.
	DefaultHeartbeatInterval = time.Second

	// DefaultStaleAfter is how long the driver trusts a link that has gone silent. Autopilots
	// send heartbeats at 1 Hz, so several missed beats mean the link is gone.
	DefaultStaleAfter = 5 * time.Second
)

var errNoPeer = errors.New("no peer has sent a datagram yet")

// Driver opens MAVLink sessions.
type Driver struct {
	// HeartbeatInterval overrides DefaultHeartbeatInterval when positive.
	HeartbeatInterval time.Duration

	// StaleAfter overrides DefaultStaleAfter when positive.
	StaleAfter time.Duration
}

// New creates a Driver with default timing.
func New() *Driver {
	return &Driver{}
}

func (d *Driver) heartbeatInterval() time.Duration {
	if d.HeartbeatInterval > 0 {
		return d.HeartbeatInterval
	}
	return DefaultHeartbeatInterval
}

func (d *Driver) staleAfter() time.Duration {
	if d.StaleAfter > 0 {
		return d.StaleAfter
	}
	return DefaultStaleAfter
}

// Open dials addr and blocks until the first autopilot heartbeat arrives or ctx expires.
func (d *Driver) Open(ctx context.Context, addr connector.Address) (connector.Session, error) {
	conn, err := dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	s := &Session{
		addr:       addr,
		conn:       conn,
		staleAfter: d.staleAfter(),
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
	}
	go s.readLoop()
	go s.heartbeatLoop(d.heartbeatInterval())

	select {
	case <-s.ready:
		log.Debug("Heartbeat received from %s", addr)
		return s, nil
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	}
}

// transport is the byte stream underneath a session.
type transport interface {
	io.ReadWriteCloser
}

func dial(ctx context.Context, addr connector.Address) (transport, error) {
	switch addr.Transport {
	case connector.TransportUDP:
		// MAVLink over UDP is peer-initiated: bind locally and learn the autopilot's address
		// from its first datagram.
		udpAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(addr.Host, strconv.Itoa(addr.Port)))
		if err != nil {
			return nil, err
		}
		conn, err := net.ListenUDP("udp", udpAddr)
		if err != nil {
			return nil, err
		}
		return &udpTransport{conn: conn}, nil
	case connector.TransportTCP:
		var dialer net.Dialer
		conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(addr.Host, strconv.Itoa(addr.Port)))
		if err != nil {
			return nil, err
		}
		return conn, nil
	case connector.TransportSerial:
		// The read timeout keeps the reader responsive to Close on platforms where closing a
		// serial device does not interrupt a blocked read.
		port, err := serial.OpenPort(&serial.Config{
			Name:        addr.Device,
			Baud:        addr.Baud,
			ReadTimeout: time.Second,
		})
		if err != nil {
			return nil, err
		}
		return port, nil
	}
	return nil, fmt.Errorf("unsupported transport %q", addr.Transport)
}

// udpTransport adapts a bound UDP socket to a byte stream, tracking the most recent peer so
// outbound heartbeats reach the autopilot.
type udpTransport struct {
	conn *net.UDPConn

	mu   sync.Mutex
	peer *net.UDPAddr
}

func (u *udpTransport) Read(p []byte) (int, error) {
	n, peer, err := u.conn.ReadFromUDP(p)
	if peer != nil {
		u.mu.Lock()
		u.peer = peer
		u.mu.Unlock()
	}
	return n, err
}

func (u *udpTransport) Write(p []byte) (int, error) {
	u.mu.Lock()
	peer := u.peer
	u.mu.Unlock()
	if peer == nil {
		return 0, errNoPeer
	}
	return u.conn.WriteToUDP(p, peer)
}

func (u *udpTransport) Close() error {
	return u.conn.Close()
}

// Session is a live MAVLink link.
type Session struct {
	addr       connector.Address
	conn       transport
	staleAfter time.Duration

	readyOnce sync.Once
	ready     chan struct{}

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}

	mu            sync.Mutex
	seq           byte
	closed        bool
	readErr       error
	lastHeartbeat time.Time
	current       telemetry.Snapshot
}

// Telemetry returns the latest accumulated readings. It fails when the session is closed, the
// reader has died, or the autopilot has been silent past the stale window.
func (s *Session) Telemetry(ctx context.Context) (*telemetry.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("session closed")
	}
	if s.readErr != nil {
		return nil, fmt.Errorf("link read failed: %w", s.readErr)
	}
	if silent := time.Since(s.lastHeartbeat); silent > s.staleAfter {
		return nil, fmt.Errorf("no heartbeat from %s for %s", s.addr, silent.Round(time.Millisecond))
	}
	snapshot := s.current
	return &snapshot, nil
}

// Close terminates the link. Safe to call repeatedly.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

func (s *Session) readLoop() {
	var decoder Decoder
	buf := make([]byte, 4096)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			decoder.Write(buf[:n])
			for {
				frame, ok := decoder.Next()
				if !ok {
					break
				}
				s.handle(frame)
			}
		}
		if err != nil {
			s.mu.Lock()
			if !s.closed {
				s.readErr = err
				log.Warning("Link %s reader stopped: %s", s.addr, err)
			}
			s.mu.Unlock()
			return
		}
		select {
		case <-s.done:
			return
		default:
		}
	}
}

func (s *Session) handle(frame Frame) {
	// Another ground station on the same link is not the vehicle.
	if frame.SysID == gcsSystemID {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch frame.MsgID {
	case msgHeartbeat:
		h := decodeHeartbeat(frame.Payload)
		if h.vehicleType == mavTypeGCS {
			return
		}
		s.lastHeartbeat = time.Now()
		s.current.Mode = telemetry.String(h.modeName())
		s.current.Armed = telemetry.Bool(h.armed())
		s.readyOnce.Do(func() { close(s.ready) })
	case msgSysStatus:
		m := decodeSysStatus(frame.Payload)
		if m.voltageBattery != 0 {
			s.current.BatteryVoltage = telemetry.Float(float64(m.voltageBattery) / 1000)
		}
		if m.batteryRemaining >= 0 {
			s.current.BatteryLevel = telemetry.Int(int(m.batteryRemaining))
		}
	case msgGlobalPositionInt:
		m := decodeGlobalPositionInt(frame.Payload)
		s.current.Latitude = telemetry.Float(float64(m.lat) / 1e7)
		s.current.Longitude = telemetry.Float(float64(m.lon) / 1e7)
		s.current.AltitudeMSL = telemetry.Float(float64(m.alt) / 1000)
		s.current.RelativeAltitude = telemetry.Float(float64(m.relativeAlt) / 1000)
		if m.hdg != headingUnknown {
			s.current.Heading = telemetry.Float(float64(m.hdg) / 100)
		}
	case msgVFRHUD:
		m := decodeVFRHUD(frame.Payload)
		s.current.Airspeed = telemetry.Float(m.airspeed)
		s.current.Groundspeed = telemetry.Float(m.groundspeed)
		if s.current.Heading == nil && m.heading >= 0 {
			s.current.Heading = telemetry.Float(float64(m.heading))
		}
	}
}

func (s *Session) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		s.sendHeartbeat()
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}
	}
}

func (s *Session) sendHeartbeat() {
	s.mu.Lock()
	seq := s.seq
	s.seq++
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	frame := encodeV1(seq, gcsSystemID, gcsComponentID, msgHeartbeat, gcsHeartbeatPayload())
	if _, err := s.conn.Write(frame); err != nil && !errors.Is(err, errNoPeer) {
		log.Debug("Heartbeat send on %s failed: %s", s.addr, err)
	}
}
