package http

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/matchbox-server/internal/app"
	"github.com/dkeye/matchbox-server/internal/attestation"
	"github.com/dkeye/matchbox-server/internal/domain"
)

type stubAttestor struct {
	report *attestation.Report
	err    error
}

func (s stubAttestor) Attest(context.Context) (*attestation.Report, error) {
	return s.report, s.err
}

func serve(h *Handlers, method, path string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/health", h.Health)
	r.GET("/stats", h.Stats)
	r.GET("/ice-servers", h.ICEServers)
	r.GET("/attestation", h.Attestation)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := serve(&Handlers{}, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestStats(t *testing.T) {
	state := app.NewServerState()
	state.AddWaitingClient("a", domain.RequestedRoom{ID: "lobby"})
	state.AddWaitingClient("b", domain.RequestedRoom{ID: "lobby"})
	state.AssignIDToWaitingClient("a", "p1")

	w := serve(&Handlers{State: state}, http.MethodGet, "/stats")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"rooms":1,"peers":1,"pending":1}`, w.Body.String())
}

func TestICEServers(t *testing.T) {
	h := &Handlers{ICE: webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.example.org:3478"}}},
	}}
	w := serve(h, http.MethodGet, "/ice-servers")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		ICEServers []struct {
			URLs []string `json:"urls"`
		} `json:"iceServers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.ICEServers, 1)
	assert.Equal(t, []string{"stun:stun.example.org:3478"}, body.ICEServers[0].URLs)
}

func TestAttestation_Success(t *testing.T) {
	quote := []byte{0xde, 0xad, 0xbe, 0xef}
	h := &Handlers{Attestor: stubAttestor{report: &attestation.Report{TEE: attestation.TeeTdx, Quote: quote}}}

	w := serve(h, http.MethodGet, "/attestation")
	require.Equal(t, http.StatusOK, w.Code)

	var resp AttestationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "tdx", resp.TEE)
	raw, err := base64.StdEncoding.DecodeString(resp.Quote)
	require.NoError(t, err)
	assert.Equal(t, quote, raw)
}

func TestAttestation_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{"no tee", attestation.ErrNoTeeDetected, http.StatusServiceUnavailable, "NoTeeDetected"},
		{"quote", fmt.Errorf("%w: tdx: ioctl", attestation.ErrQuoteUnavailable), http.StatusInternalServerError, "QuoteUnavailable"},
		{"parse", fmt.Errorf("%w: sgx", attestation.ErrQuoteParseFailed), http.StatusInternalServerError, "QuoteParseFailed"},
		{"other", context.DeadlineExceeded, http.StatusInternalServerError, "Internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(&Handlers{Attestor: stubAttestor{err: tt.err}}, http.MethodGet, "/attestation")
			require.Equal(t, tt.wantStatus, w.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantKind, resp.Error)
			assert.Equal(t, tt.err.Error(), resp.Detail)
		})
	}
}

func TestAttestation_NoAttestor(t *testing.T) {
	w := serve(&Handlers{}, http.MethodGet, "/attestation")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
