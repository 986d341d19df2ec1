// Package gateway exposes the link manager over a small JSON HTTP API.
//
// The gateway owns no link state of its own: it parses requests, invokes the manager, and
// maps the error taxonomy onto transport status codes.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/openmav/mavgate/internal/log"
	"github.com/openmav/mavgate/pkg/link"
	"github.com/openmav/mavgate/pkg/protocol"
)

const (
	// DefaultTimeout bounds telemetry queries issued by the status endpoint.
	DefaultTimeout = 10 * time.Second

	// DefaultVehicleAddress is where a SITL simulator presents itself.
	DefaultVehicleAddress = "udp:127.0.0.1:14550"

	maxRequestBodyBytes = 512
)

// Gateway exposes an HTTP API for managing the vehicle link.
type Gateway struct {
	// Timeout bounds telemetry queries issued by the status endpoint.
	Timeout time.Duration

	manager        *link.Manager
	defaultAddress string
	connectTimeout time.Duration
	verifier       *tokenVerifier
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithDefaultAddress sets the vehicle address used when a connect request omits one.
func WithDefaultAddress(address string) Option {
	return func(g *Gateway) { g.defaultAddress = address }
}

// WithConnectTimeout sets the link negotiation timeout used when a connect request omits one.
func WithConnectTimeout(timeout time.Duration) Option {
	return func(g *Gateway) { g.connectTimeout = timeout }
}

// WithAuthSecret requires every /api/1 request to carry a bearer token signed with secret.
func WithAuthSecret(secret []byte) Option {
	return func(g *Gateway) { g.verifier = &tokenVerifier{secret: secret} }
}

// New creates a Gateway fronting manager.
func New(manager *link.Manager, opts ...Option) *Gateway {
	g := &Gateway{
		Timeout:        DefaultTimeout,
		manager:        manager,
		defaultAddress: DefaultVehicleAddress,
		connectTimeout: link.DefaultConnectTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Response contains the server's response to a client request.
type Response struct {
	Response   interface{} `json:"response"`
	Error      string      `json:"error,omitempty"`
	ErrDetails string      `json:"error_description,omitempty"`
}

func writeJSONError(w http.ResponseWriter, code int, err error) {
	reply := Response{}
	if err == nil {
		reply.Error = http.StatusText(code)
	} else {
		reply.Error = err.Error()
	}
	jsonBytes, marshalErr := json.Marshal(&reply)
	if marshalErr != nil {
		log.Error("Error serializing reply %+v: %s", &reply, marshalErr)
		code = http.StatusInternalServerError
		jsonBytes = []byte(`{"error": "internal server error"}`)
	}
	if code != http.StatusOK {
		log.Error("Returning error %s: %s", http.StatusText(code), reply.Error)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	jsonBytes = append(jsonBytes, '\n')
	w.Write(jsonBytes)
}

func writeJSONResponse(w http.ResponseWriter, payload interface{}) {
	jsonBytes, err := json.Marshal(&Response{Response: payload})
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	jsonBytes = append(jsonBytes, '\n')
	w.Write(jsonBytes)
}

// statusCodeFor maps the error taxonomy onto HTTP status codes: client mistakes are 4xx, and
// upstream link trouble is a gateway problem.
func statusCodeFor(err error) int {
	switch {
	case errors.Is(err, protocol.ErrInvalidAddress):
		return http.StatusBadRequest
	case errors.Is(err, protocol.ErrConnectInProgress):
		return http.StatusConflict
	case errors.Is(err, protocol.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		// DriverFault, UnknownFault, LinkLost
		return http.StatusBadGateway
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	log.Info("Received %s request for %s", req.Method, req.URL.Path)

	switch req.URL.Path {
	case "/":
		writeJSONResponse(w, "vehicle link gateway running")
		return
	case "/api/1/connect", "/api/1/disconnect", "/api/1/status":
	default:
		writeJSONError(w, http.StatusNotFound, nil)
		return
	}

	if g.verifier != nil {
		if err := g.verifier.verify(req); err != nil {
			writeJSONError(w, http.StatusForbidden, err)
			return
		}
	}

	switch req.URL.Path {
	case "/api/1/connect":
		g.handleConnect(w, req)
	case "/api/1/disconnect":
		g.handleDisconnect(w, req)
	case "/api/1/status":
		g.handleStatus(w, req)
	}
}

type connectRequest struct {
	Address   string `json:"address"`
	TimeoutMs int    `json:"timeout_ms"`
}

func (g *Gateway) handleConnect(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, nil)
		return
	}
	body, err := io.ReadAll(io.LimitReader(req.Body, maxRequestBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, errors.New("could not read request body"))
		return
	}
	var params connectRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &params); err != nil {
			writeJSONError(w, http.StatusBadRequest, errors.New("error occurred while parsing request parameters"))
			return
		}
	}
	address := params.Address
	if address == "" {
		address = g.defaultAddress
	}
	timeout := g.connectTimeout
	if params.TimeoutMs > 0 {
		timeout = time.Duration(params.TimeoutMs) * time.Millisecond
	}

	// The connect call below blocks for up to the negotiation timeout; the request context
	// keeps client disconnects from leaking the attempt's goroutine.
	ack, err := g.manager.Connect(req.Context(), address, timeout)
	if err != nil {
		writeJSONError(w, statusCodeFor(err), err)
		return
	}
	writeJSONResponse(w, ack)
}

func (g *Gateway) handleDisconnect(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, nil)
		return
	}
	ack := g.manager.Disconnect()
	writeJSONResponse(w, ack)
}

func (g *Gateway) handleStatus(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, nil)
		return
	}
	ctx, cancel := context.WithTimeout(req.Context(), g.Timeout)
	defer cancel()
	status, err := g.manager.Status(ctx)
	if err != nil {
		writeJSONError(w, statusCodeFor(err), err)
		return
	}
	writeJSONResponse(w, status)
}
