package attestation

import (
	"crypto/hmac"
	"fmt"
)

// StubBackend is a test double producing documents whose "signature" is a
// fixed HMAC tag over the bound fields, rather than a real hardware
// signature chain. Measurements, and whether the backend reports itself as
// hardware-backed, are configurable so tests can exercise matched and
// mismatched measurement scenarios (S2, S3).
type StubBackend struct {
	HMACKey          []byte
	Measurement      map[int][]byte
	ReportsAvailable bool
}

var _ Backend = (*StubBackend)(nil)

// NewStubBackend returns a StubBackend with the given PCR measurement
// vector and a fixed HMAC key, reporting itself as not hardware-backed.
func NewStubBackend(measurement map[int][]byte) *StubBackend {
	return &StubBackend{
		HMACKey:     []byte("stub-attestation-backend-fixed-key"),
		Measurement: measurement,
	}
}

func (s *StubBackend) Available() bool { return s.ReportsAvailable }

func (s *StubBackend) Measurements() (map[int][]byte, error) {
	return s.Measurement, nil
}

func (s *StubBackend) Sign(doc *Document) ([]byte, error) {
	return hmacTag(s.HMACKey, doc), nil
}

func (s *StubBackend) CheckSignature(doc *Document) error {
	want := hmacTag(s.HMACKey, doc)
	if !hmac.Equal(doc.SignatureChain, want) {
		return fmt.Errorf("stub signature mismatch")
	}
	return nil
}
