package gateway_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/golang-jwt/jwt/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/openmav/mavgate/mocks"
	"github.com/openmav/mavgate/pkg/connector"
	"github.com/openmav/mavgate/pkg/gateway"
	"github.com/openmav/mavgate/pkg/link"
	"github.com/openmav/mavgate/pkg/telemetry"
)

const vehicleAddress = "udp:127.0.0.1:14550"

var _ = Describe("Gateway", func() {
	var (
		ctrl       *gomock.Controller
		mockDriver *mocks.MockDriver
		manager    *link.Manager
		g          *gateway.Gateway
	)

	sendRequest := func(method, path string, body []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewReader(body))
		rr := httptest.NewRecorder()
		g.ServeHTTP(rr, req)
		return rr
	}

	newSession := func() *mocks.MockSession {
		session := mocks.NewMockSession(ctrl)
		session.EXPECT().Telemetry(gomock.Any()).Return(&telemetry.Snapshot{
			Mode:  telemetry.String("GUIDED"),
			Armed: telemetry.Bool(false),
		}, nil).AnyTimes()
		session.EXPECT().Close().Return(nil).AnyTimes()
		return session
	}

	BeforeEach(func() {
		ctrl = gomock.NewController(GinkgoT())
		mockDriver = mocks.NewMockDriver(ctrl)
		manager = link.NewManager(mockDriver)
		g = gateway.New(manager, gateway.WithConnectTimeout(time.Second))
		DeferCleanup(func() {
			ctrl.Finish()
		})
	})

	Describe("health banner", func() {
		It("responds on the root path", func() {
			rr := sendRequest(http.MethodGet, "/", nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(rr.Body.String()).To(MatchJSON(`{"response":"vehicle link gateway running"}`))
		})

		It("rejects unknown paths", func() {
			rr := sendRequest(http.MethodGet, "/api/1/arm", nil)
			Expect(rr.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("connect", func() {
		It("establishes a link and returns baseline telemetry", func() {
			mockDriver.EXPECT().Open(gomock.Any(), gomock.Any()).Return(newSession(), nil)

			rr := sendRequest(http.MethodPost, "/api/1/connect",
				[]byte(`{"address": "`+vehicleAddress+`", "timeout_ms": 1000}`))
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(rr.Body.String()).To(MatchJSON(
				`{"response":{"already_connected":false,"telemetry":{"mode":"GUIDED","armed":false}}}`))
		})

		It("uses the configured default address when the body is empty", func() {
			mockDriver.EXPECT().Open(gomock.Any(), gomock.Any()).DoAndReturn(
				func(ctx context.Context, addr connector.Address) (connector.Session, error) {
					Expect(addr.String()).To(Equal(gateway.DefaultVehicleAddress))
					return newSession(), nil
				})

			rr := sendRequest(http.MethodPost, "/api/1/connect", nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
		})

		It("short-circuits when already connected", func() {
			mockDriver.EXPECT().Open(gomock.Any(), gomock.Any()).Return(newSession(), nil).Times(1)

			Expect(sendRequest(http.MethodPost, "/api/1/connect", nil).Code).To(Equal(http.StatusOK))
			rr := sendRequest(http.MethodPost, "/api/1/connect", nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(rr.Body.String()).To(MatchJSON(`{"response":{"already_connected":true}}`))
		})

		It("maps malformed addresses to bad request", func() {
			rr := sendRequest(http.MethodPost, "/api/1/connect",
				[]byte(`{"address": "not-a-valid-address"}`))
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
		})

		It("maps negotiation timeouts to gateway timeout", func() {
			mockDriver.EXPECT().Open(gomock.Any(), gomock.Any()).DoAndReturn(
				func(ctx context.Context, addr connector.Address) (connector.Session, error) {
					<-ctx.Done()
					return nil, ctx.Err()
				})

			rr := sendRequest(http.MethodPost, "/api/1/connect",
				[]byte(`{"timeout_ms": 20}`))
			Expect(rr.Code).To(Equal(http.StatusGatewayTimeout))
		})

		It("maps driver failures to bad gateway", func() {
			mockDriver.EXPECT().Open(gomock.Any(), gomock.Any()).
				Return(nil, errors.New("heartbeat never decoded"))

			rr := sendRequest(http.MethodPost, "/api/1/connect", nil)
			Expect(rr.Code).To(Equal(http.StatusBadGateway))
			Expect(rr.Body.String()).To(ContainSubstring("heartbeat never decoded"))
		})

		It("rejects unparseable bodies", func() {
			rr := sendRequest(http.MethodPost, "/api/1/connect", []byte(`{"address": 42`))
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
		})

		It("rejects non-POST methods", func() {
			rr := sendRequest(http.MethodGet, "/api/1/connect", nil)
			Expect(rr.Code).To(Equal(http.StatusMethodNotAllowed))
		})
	})

	Describe("disconnect", func() {
		It("tears down an established link", func() {
			session := newSession()
			mockDriver.EXPECT().Open(gomock.Any(), gomock.Any()).Return(session, nil)
			Expect(sendRequest(http.MethodPost, "/api/1/connect", nil).Code).To(Equal(http.StatusOK))

			rr := sendRequest(http.MethodPost, "/api/1/disconnect", nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(rr.Body.String()).To(MatchJSON(`{"response":{"was_connected":true}}`))
		})

		It("is a safe no-op without a link", func() {
			rr := sendRequest(http.MethodPost, "/api/1/disconnect", nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(rr.Body.String()).To(MatchJSON(`{"response":{"was_connected":false}}`))
		})
	})

	Describe("status", func() {
		It("reports not connected without a link", func() {
			rr := sendRequest(http.MethodGet, "/api/1/status", nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(rr.Body.String()).To(MatchJSON(
				`{"response":{"is_connected":false,"state":"disconnected"}}`))
		})

		It("reports telemetry on a live link", func() {
			mockDriver.EXPECT().Open(gomock.Any(), gomock.Any()).Return(newSession(), nil)
			Expect(sendRequest(http.MethodPost, "/api/1/connect", nil).Code).To(Equal(http.StatusOK))

			rr := sendRequest(http.MethodGet, "/api/1/status", nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(rr.Body.String()).To(MatchJSON(
				`{"response":{"is_connected":true,"state":"connected","address":"` +
					gateway.DefaultVehicleAddress + `","telemetry":{"mode":"GUIDED","armed":false}}}`))
		})

		It("maps a lost link to bad gateway without tearing it down", func() {
			session := mocks.NewMockSession(ctrl)
			gomock.InOrder(
				session.EXPECT().Telemetry(gomock.Any()).Return(&telemetry.Snapshot{}, nil),
				session.EXPECT().Telemetry(gomock.Any()).Return(nil, errors.New("read on closed socket")),
			)
			session.EXPECT().Close().Return(nil).AnyTimes()
			mockDriver.EXPECT().Open(gomock.Any(), gomock.Any()).Return(session, nil)
			Expect(sendRequest(http.MethodPost, "/api/1/connect", nil).Code).To(Equal(http.StatusOK))

			rr := sendRequest(http.MethodGet, "/api/1/status", nil)
			Expect(rr.Code).To(Equal(http.StatusBadGateway))
			Expect(manager.State()).To(Equal(link.StateConnected))
		})

		It("rejects non-GET methods", func() {
			rr := sendRequest(http.MethodPost, "/api/1/status", nil)
			Expect(rr.Code).To(Equal(http.StatusMethodNotAllowed))
		})
	})

	Describe("authentication", func() {
		secret := []byte("gateway-test-secret")

		signToken := func(key []byte) string {
			token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
				"sub": "operator",
			}).SignedString(key)
			Expect(err).NotTo(HaveOccurred())
			return token
		}

		sendAuthed := func(token string) *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodGet, "/api/1/status", nil)
			if token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}
			rr := httptest.NewRecorder()
			g.ServeHTTP(rr, req)
			return rr
		}

		BeforeEach(func() {
			g = gateway.New(manager, gateway.WithAuthSecret(secret))
		})

		It("rejects requests without a token", func() {
			Expect(sendAuthed("").Code).To(Equal(http.StatusForbidden))
		})

		It("rejects tokens signed with the wrong secret", func() {
			Expect(sendAuthed(signToken([]byte("other-secret"))).Code).To(Equal(http.StatusForbidden))
		})

		It("accepts tokens signed with the shared secret", func() {
			Expect(sendAuthed(signToken(secret)).Code).To(Equal(http.StatusOK))
		})

		It("leaves the health banner unauthenticated", func() {
			Expect(sendRequest(http.MethodGet, "/", nil).Code).To(Equal(http.StatusOK))
		})
	})
})
