package attestation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	sevclient "github.com/google/go-sev-guest/client"
	tdxclient "github.com/google/go-tdx-guest/client"
)

// Guest device nodes, relative to the detector root. The SGX entries are
// the Gramine pseudo-files exposed inside an enclave.
const (
	sevGuestDevice    = "dev/sev-guest"
	tdxGuestDevice    = "dev/tdx_guest"
	tdxGuestDeviceAlt = "dev/tdx-guest"
	sgxQuoteFile      = "dev/attestation/quote"
	sgxReportDataFile = "dev/attestation/user_report_data"
)

var teeDevices = []struct {
	path string
	tee  TeeType
}{
	{sevGuestDevice, TeeSev},
	{tdxGuestDevice, TeeTdx},
	{tdxGuestDeviceAlt, TeeTdx},
	{sgxQuoteFile, TeeSgx},
}

// DeviceDetector looks for the guest device node each TEE exposes.
type DeviceDetector struct {
	Root string
}

func (d DeviceDetector) Detect() (TeeType, error) {
	for _, dev := range teeDevices {
		_, err := os.Stat(filepath.Join(d.Root, dev.path))
		if err == nil {
			return dev.tee, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return TeeUnknown, fmt.Errorf("stat %s: %w", dev.path, err)
		}
	}
	return TeeUnknown, ErrNoTeeDetected
}

type rawQuoter interface {
	GetRawQuote(reportData [64]byte) ([]byte, error)
}

// DeviceQuoteProvider asks the guest kernel (SEV-SNP, TDX) or the Gramine
// runtime (SGX) for a quote.
type DeviceQuoteProvider struct {
	Root string
}

func (p DeviceQuoteProvider) Quote(tee TeeType, reportData [64]byte) ([]byte, error) {
	switch tee {
	case TeeSev:
		qp, err := sevclient.GetQuoteProvider()
		if err != nil {
			return nil, fmt.Errorf("sev quote provider: %w", err)
		}
		return getRawQuote(qp, reportData)
	case TeeTdx:
		qp, err := tdxclient.GetQuoteProvider()
		if err != nil {
			return nil, fmt.Errorf("tdx quote provider: %w", err)
		}
		return getRawQuote(qp, reportData)
	case TeeSgx:
		return p.sgxQuote(reportData)
	default:
		return nil, fmt.Errorf("unsupported tee %s", tee)
	}
}

func getRawQuote(qp rawQuoter, reportData [64]byte) ([]byte, error) {
	return qp.GetRawQuote(reportData)
}

// sgxQuote follows the Gramine protocol: write the report data, then read
// the quote back.
func (p DeviceQuoteProvider) sgxQuote(reportData [64]byte) ([]byte, error) {
	if err := os.WriteFile(filepath.Join(p.Root, sgxReportDataFile), reportData[:], 0); err != nil {
		return nil, fmt.Errorf("write user report data: %w", err)
	}
	quote, err := os.ReadFile(filepath.Join(p.Root, sgxQuoteFile))
	if err != nil {
		return nil, fmt.Errorf("read quote: %w", err)
	}
	return quote, nil
}
