package http

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/dkeye/matchbox-server/internal/app"
	"github.com/dkeye/matchbox-server/internal/attestation"
	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type Attestor interface {
	Attest(ctx context.Context) (*attestation.Report, error)
}

type Handlers struct {
	State    *app.ServerState
	Attestor Attestor
	ICE      webrtc.Configuration
}

type AttestationResponse struct {
	TEE   string `json:"tee"`
	Quote string `json:"quote"`
}

type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func (h *Handlers) Health(c *gin.Context) {
	c.Status(http.StatusOK)
}

func (h *Handlers) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.State.Stats())
}

func (h *Handlers) ICEServers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"iceServers": h.ICE.ICEServers})
}

// Attestation returns the base64 quote of the TEE the server runs in.
func (h *Handlers) Attestation(c *gin.Context) {
	if h.Attestor == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "NoTeeDetected"})
		return
	}
	report, err := h.Attestor.Attest(c.Request.Context())
	if err != nil {
		status, kind := attestationError(err)
		log.Warn().Err(err).Str("module", "transport.http").Int("status", status).Msg("attestation failed")
		c.JSON(status, ErrorResponse{Error: kind, Detail: err.Error()})
		return
	}
	c.JSON(http.StatusOK, AttestationResponse{
		TEE:   report.TEE.String(),
		Quote: base64.StdEncoding.EncodeToString(report.Quote),
	})
}

func attestationError(err error) (int, string) {
	switch {
	case errors.Is(err, attestation.ErrNoTeeDetected):
		return http.StatusServiceUnavailable, "NoTeeDetected"
	case errors.Is(err, attestation.ErrQuoteUnavailable):
		return http.StatusInternalServerError, "QuoteUnavailable"
	case errors.Is(err, attestation.ErrQuoteParseFailed):
		return http.StatusInternalServerError, "QuoteParseFailed"
	default:
		return http.StatusInternalServerError, "Internal"
	}
}
