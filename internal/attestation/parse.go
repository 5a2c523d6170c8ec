package attestation

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	sevabi "github.com/google/go-sev-guest/abi"
	tdxabi "github.com/google/go-tdx-guest/abi"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// SevParser decodes an SEV-SNP attestation report. Certificates appended
// after the report are ignored.
type SevParser struct{}

func (SevParser) Parse(raw []byte) (string, error) {
	if len(raw) < sevabi.ReportSize {
		return "", fmt.Errorf("report is %d bytes, want at least %d", len(raw), sevabi.ReportSize)
	}
	report, err := sevabi.ReportToProto(raw[:sevabi.ReportSize])
	if err != nil {
		return "", err
	}
	return renderProto(report)
}

// TdxParser decodes a TDX DCAP quote.
type TdxParser struct{}

func (TdxParser) Parse(raw []byte) (string, error) {
	quote, err := tdxabi.QuoteToProto(raw)
	if err != nil {
		return "", err
	}
	msg, ok := quote.(proto.Message)
	if !ok {
		return "", fmt.Errorf("unexpected quote type %T", quote)
	}
	return renderProto(msg)
}

func renderProto(m proto.Message) (string, error) {
	b, err := protojson.MarshalOptions{UseProtoNames: true}.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

const sgxQuoteVersion = 3

type sgxQuoteHeader struct {
	Version    uint16
	AttKeyType uint16
	_          uint32
	QeSvn      uint16
	PceSvn     uint16
	QeVendorID [16]byte
	UserData   [20]byte
}

type sgxReportBody struct {
	CPUSvn     [16]byte
	MiscSelect uint32
	_          [28]byte
	Attributes [16]byte
	MrEnclave  [32]byte
	_          [32]byte
	MrSigner   [32]byte
	_          [96]byte
	IsvProdID  uint16
	IsvSvn     uint16
	_          [60]byte
	ReportData [64]byte
}

// SgxQuote is the part of an SGX DCAP v3 quote the server logs.
type SgxQuote struct {
	Version   uint16
	MrEnclave [32]byte
	MrSigner  [32]byte
	IsvProdID uint16
	IsvSvn    uint16
}

var errShortQuote = errors.New("quote too short")

func ParseSgxQuote(raw []byte) (*SgxQuote, error) {
	var (
		hdr  sgxQuoteHeader
		body sgxReportBody
	)
	if len(raw) < binary.Size(hdr)+binary.Size(body) {
		return nil, errShortQuote
	}
	r := bytes.NewReader(raw)
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if hdr.Version != sgxQuoteVersion {
		return nil, fmt.Errorf("unsupported quote version %d", hdr.Version)
	}
	if err := binary.Read(r, binary.LittleEndian, &body); err != nil {
		return nil, fmt.Errorf("read report body: %w", err)
	}
	return &SgxQuote{
		Version:   hdr.Version,
		MrEnclave: body.MrEnclave,
		MrSigner:  body.MrSigner,
		IsvProdID: body.IsvProdID,
		IsvSvn:    body.IsvSvn,
	}, nil
}

// SgxParser decodes the header and report body of an SGX DCAP v3 quote.
type SgxParser struct{}

func (SgxParser) Parse(raw []byte) (string, error) {
	q, err := ParseSgxQuote(raw)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("version=%d mrenclave=%x mrsigner=%x isv_prod_id=%d isv_svn=%d",
		q.Version, q.MrEnclave, q.MrSigner, q.IsvProdID, q.IsvSvn), nil
}
