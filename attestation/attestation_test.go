package attestation

import (
	"testing"
	"time"
)

func measurement(tag byte) map[int][]byte {
	return map[int][]byte{0: {tag}, 1: {tag, 1}, 2: {tag, 2}}
}

func TestVerifySucceedsOnMatchingMeasurements(t *testing.T) {
	backend := NewStubBackend(measurement(0xAA))
	doc, err := Attest(backend, []byte("pubkey"), []byte("nonce"), false)
	if err != nil {
		t.Fatalf("Attest: %v", err)
	}
	now := time.Unix(doc.TimestampUnix, 0).Add(time.Minute)
	v, err := Verify(backend, doc, measurement(0xAA), []int{0, 1, 2}, 5*time.Minute, now)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if string(v.PublicKey) != "pubkey" {
		t.Errorf("PublicKey = %q, want %q", v.PublicKey, "pubkey")
	}
}

func TestVerifyRejectsMeasurementMismatch(t *testing.T) {
	backend := NewStubBackend(measurement(0xAA))
	doc, err := Attest(backend, []byte("pubkey"), []byte("nonce"), false)
	if err != nil {
		t.Fatalf("Attest: %v", err)
	}
	now := time.Unix(doc.TimestampUnix, 0)
	if _, err := Verify(backend, doc, measurement(0xBB), []int{0, 1, 2}, 5*time.Minute, now); err == nil {
		t.Fatalf("Verify with mismatched measurements succeeded, want error")
	}
}

func TestVerifyRejectsExpiredDocument(t *testing.T) {
	backend := NewStubBackend(measurement(0xAA))
	doc, err := Attest(backend, []byte("pubkey"), []byte("nonce"), false)
	if err != nil {
		t.Fatalf("Attest: %v", err)
	}
	tenMinutesLater := time.Unix(doc.TimestampUnix, 0).Add(10 * time.Minute)
	if _, err := Verify(backend, doc, measurement(0xAA), []int{0, 1, 2}, 5*time.Minute, tenMinutesLater); err == nil {
		t.Fatalf("Verify on stale document succeeded, want error")
	}
}

func TestVerifyRejectsForgedSignature(t *testing.T) {
	backend := NewStubBackend(measurement(0xAA))
	doc, err := Attest(backend, []byte("pubkey"), []byte("nonce"), false)
	if err != nil {
		t.Fatalf("Attest: %v", err)
	}
	doc.SignatureChain[0] ^= 0xFF
	now := time.Unix(doc.TimestampUnix, 0)
	if _, err := Verify(backend, doc, measurement(0xAA), []int{0, 1, 2}, 5*time.Minute, now); err == nil {
		t.Fatalf("Verify with forged signature succeeded, want error")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	backend := NewStubBackend(measurement(0xAA))
	doc, err := Attest(backend, []byte("pubkey"), []byte("nonce"), false)
	if err != nil {
		t.Fatalf("Attest: %v", err)
	}
	encoded, err := Encode(doc)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(decoded.PublicKey) != string(doc.PublicKey) {
		t.Errorf("decoded PublicKey = %q, want %q", decoded.PublicKey, doc.PublicKey)
	}
}

func TestAttestFailsWithoutHardwareWhenRequired(t *testing.T) {
	backend := NewStubBackend(measurement(0xAA))
	if _, err := Attest(backend, []byte("pubkey"), []byte("nonce"), true); err == nil {
		t.Fatalf("Attest with requireHardware=true on non-hardware backend succeeded, want error")
	}
}
