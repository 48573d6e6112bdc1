package cryptocore

import (
	"bytes"
	"testing"
)

func TestHybridDecryptRoundTrip(t *testing.T) {
	trackSecret, trackPublic, err := GenerateKeypair(true, false)
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	pushID := []byte("abc123")
	enc, err := EncryptPushID(trackPublic, pushID)
	if err != nil {
		t.Fatalf("EncryptPushID: %v", err)
	}

	got, err := HybridDecrypt(trackSecret, enc)
	if err != nil {
		t.Fatalf("HybridDecrypt: %v", err)
	}
	if !bytes.Equal(got, pushID) {
		t.Errorf("HybridDecrypt = %q, want %q", got, pushID)
	}
}

func TestHybridDecryptRejectsCorruption(t *testing.T) {
	trackSecret, trackPublic, err := GenerateKeypair(true, false)
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	enc, err := EncryptPushID(trackPublic, []byte("abc123"))
	if err != nil {
		t.Fatalf("EncryptPushID: %v", err)
	}
	enc[len(enc)-1] ^= 0xFF

	if _, err := HybridDecrypt(trackSecret, enc); err == nil {
		t.Fatalf("HybridDecrypt on corrupted ciphertext succeeded, want error")
	}
}

func TestSealTrackSecretRoundTrip(t *testing.T) {
	secretA, publicA, err := GenerateKeypair(true, false)
	if err != nil {
		t.Fatalf("GenerateKeypair A: %v", err)
	}
	secretB, publicB, err := GenerateKeypair(true, false)
	if err != nil {
		t.Fatalf("GenerateKeypair B: %v", err)
	}

	trackSecret, _, err := GenerateKeypair(true, false)
	if err != nil {
		t.Fatalf("GenerateKeypair track: %v", err)
	}

	sharedA, err := Agree(secretA, publicB)
	if err != nil {
		t.Fatalf("Agree A: %v", err)
	}
	sharedB, err := Agree(secretB, publicA)
	if err != nil {
		t.Fatalf("Agree B: %v", err)
	}
	if !bytes.Equal(sharedA, sharedB) {
		t.Fatalf("shared secrets diverged")
	}

	sealed, err := SealTrackSecret(sharedA, trackSecret)
	if err != nil {
		t.Fatalf("SealTrackSecret: %v", err)
	}
	recovered, err := OpenTrackSecret(sharedB, sealed)
	if err != nil {
		t.Fatalf("OpenTrackSecret: %v", err)
	}
	if recovered != trackSecret {
		t.Errorf("recovered secret mismatch")
	}
}

func TestGenerateKeypairRequiresHardwareInProduction(t *testing.T) {
	if _, _, err := GenerateKeypair(false, true); err == nil {
		t.Fatalf("GenerateKeypair(hwReady=false, requireHardware=true) succeeded, want error")
	}
}
