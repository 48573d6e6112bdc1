// Package attestation produces and verifies hardware-signed attestation
// documents that bind an ephemeral public key and a caller-supplied nonce
// to the measurement vector of the code currently running.
package attestation

import (
	"crypto/hmac"
	"crypto/sha256"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/quietpush/enclavecore/errs"
)

// Document is the CBOR-encoded attestation payload exchanged over the
// wire. It is the Go analogue of the hardware module's native attestation
// format, carrying the fields spec.md names: pcrs, public_key, user_data,
// timestamp, signature-chain.
type Document struct {
	PCRs           map[int][]byte `cbor:"pcrs"`
	PublicKey      []byte         `cbor:"public_key"`
	UserData       []byte         `cbor:"user_data"`
	TimestampUnix  int64          `cbor:"timestamp"`
	SignatureChain []byte         `cbor:"signature_chain"`
}

// Backend produces and verifies raw attestation signatures. Production
// wires a hardware-backed implementation; tests wire StubBackend.
type Backend interface {
	// Available reports whether this backend is backed by real attestation
	// hardware. Attest and GenerateKeypair-style operations that require
	// production guarantees check this before proceeding.
	Available() bool
	// Measurements returns this backend's current PCR vector.
	Measurements() (map[int][]byte, error)
	// Sign produces a signature chain binding doc's other fields together.
	Sign(doc *Document) ([]byte, error)
	// CheckSignature validates doc.SignatureChain against doc's other fields.
	CheckSignature(doc *Document) error
}

// Attest asks backend to sign a document binding publicKey and nonce to the
// current measurement vector and current time. Fails with
// errs.HardwareUnavailable when backend reports it is not hardware-backed
// and requireHardware is set.
func Attest(backend Backend, publicKey, nonce []byte, requireHardware bool) (*Document, error) {
	if requireHardware && !backend.Available() {
		return nil, errs.New(errs.HardwareUnavailable, "no attestation hardware backend configured")
	}
	pcrs, err := backend.Measurements()
	if err != nil {
		return nil, err
	}
	doc := &Document{
		PCRs:          pcrs,
		PublicKey:     publicKey,
		UserData:      nonce,
		TimestampUnix: time.Now().Unix(),
	}
	sig, err := backend.Sign(doc)
	if err != nil {
		return nil, err
	}
	doc.SignatureChain = sig
	return doc, nil
}

// Verified is the result of a successful Verify call.
type Verified struct {
	PublicKey []byte
	Nonce     []byte
	IssuedAt  time.Time
}

// Verify validates a document's signature chain, checks its measurement
// vector against expectedMeasurements field-by-field over the configured
// PCR indices, and checks its age against maxAge. now is injected so tests
// can exercise the freshness boundary deterministically.
func Verify(backend Backend, doc *Document, expectedMeasurements map[int][]byte, pcrIndices []int, maxAge time.Duration, now time.Time) (*Verified, error) {
	if doc == nil || len(doc.SignatureChain) == 0 {
		return nil, errs.New(errs.PeerAttestationInvalid, "malformed document")
	}
	if err := backend.CheckSignature(doc); err != nil {
		return nil, errs.New(errs.PeerAttestationInvalid, "%v", err)
	}
	for _, idx := range pcrIndices {
		want, ok := expectedMeasurements[idx]
		if !ok {
			return nil, errs.New(errs.MeasurementMismatch, "no expected measurement for PCR%d", idx)
		}
		got, ok := doc.PCRs[idx]
		if !ok || !hmac.Equal(got, want) {
			return nil, errs.New(errs.MeasurementMismatch, "PCR%d mismatch", idx)
		}
	}
	issuedAt := time.Unix(doc.TimestampUnix, 0)
	if now.Sub(issuedAt) > maxAge {
		return nil, errs.New(errs.Expired, "attestation issued %v ago exceeds max age %v", now.Sub(issuedAt), maxAge)
	}
	return &Verified{PublicKey: doc.PublicKey, Nonce: doc.UserData, IssuedAt: issuedAt}, nil
}

// Encode serializes a Document to CBOR for transmission over the wire.
func Encode(doc *Document) ([]byte, error) {
	return cbor.Marshal(doc)
}

// Decode parses a CBOR-encoded Document.
func Decode(b []byte) (*Document, error) {
	var doc Document
	if err := cbor.Unmarshal(b, &doc); err != nil {
		return nil, errs.New(errs.PeerAttestationInvalid, "malformed document: %v", err)
	}
	return &doc, nil
}

func hmacTag(key []byte, doc *Document) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(doc.PublicKey)
	mac.Write(doc.UserData)
	var tsBuf [8]byte
	for i := range tsBuf {
		tsBuf[i] = byte(doc.TimestampUnix >> (8 * (7 - i)))
	}
	mac.Write(tsBuf[:])
	for _, idx := range []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9} {
		if pcr, ok := doc.PCRs[idx]; ok {
			mac.Write(pcr)
		}
	}
	return mac.Sum(nil)
}
