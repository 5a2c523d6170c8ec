// Package attestation produces a hardware attestation quote for the
// trusted execution environment the server runs in. Detection, quote
// acquisition and parsing are separate collaborators so each can be
// replaced; parsing is only used for diagnostics and never changes the
// quote handed to callers.
package attestation

//go:generate mockgen -source=attestation.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

var (
	ErrNoTeeDetected    = errors.New("no TEE detected")
	ErrQuoteUnavailable = errors.New("quote unavailable")
	ErrQuoteParseFailed = errors.New("quote parse failed")
)

type TeeType int

const (
	TeeUnknown TeeType = iota
	TeeSev
	TeeTdx
	TeeSgx
)

func (t TeeType) String() string {
	switch t {
	case TeeSev:
		return "sev-snp"
	case TeeTdx:
		return "tdx"
	case TeeSgx:
		return "sgx"
	default:
		return "unknown"
	}
}

// Detector reports which TEE the process runs in.
type Detector interface {
	Detect() (TeeType, error)
}

// QuoteProvider fetches a raw quote binding reportData.
type QuoteProvider interface {
	Quote(tee TeeType, reportData [64]byte) ([]byte, error)
}

// QuoteParser decodes a raw quote into a human-readable summary.
type QuoteParser interface {
	Parse(raw []byte) (string, error)
}

type Report struct {
	TEE   TeeType
	Quote []byte
}

type Attestor struct {
	Detector Detector
	Provider QuoteProvider
	Parsers  map[TeeType]QuoteParser
}

// NewAttestor wires the device-backed collaborators rooted at "/".
func NewAttestor() *Attestor {
	return &Attestor{
		Detector: DeviceDetector{Root: "/"},
		Provider: DeviceQuoteProvider{Root: "/"},
		Parsers: map[TeeType]QuoteParser{
			TeeSev: SevParser{},
			TeeTdx: TdxParser{},
			TeeSgx: SgxParser{},
		},
	}
}

// Attest detects the TEE, fetches a quote with zero report data and parses
// it for the log. Errors wrap ErrNoTeeDetected, ErrQuoteUnavailable or
// ErrQuoteParseFailed.
func (a *Attestor) Attest(ctx context.Context) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tee, err := a.Detector.Detect()
	if err != nil {
		if errors.Is(err, ErrNoTeeDetected) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrNoTeeDetected, err)
	}

	var reportData [64]byte
	raw, err := a.Provider.Quote(tee, reportData)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrQuoteUnavailable, tee, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: %s: empty quote", ErrQuoteUnavailable, tee)
	}

	parser, ok := a.Parsers[tee]
	if !ok {
		return nil, fmt.Errorf("%w: no parser for %s", ErrQuoteParseFailed, tee)
	}
	summary, err := parser.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrQuoteParseFailed, tee, err)
	}
	log.Info().Str("module", "attestation").Str("tee", tee.String()).Int("quote_len", len(raw)).Str("report", summary).Msg("quote acquired")

	return &Report{TEE: tee, Quote: raw}, nil
}
