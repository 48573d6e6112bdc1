// Package cryptocore implements the key agreement and authenticated
// encryption primitives the enclave service uses to generate a track's
// keypair, seal it for export to a joining peer, and recover plaintext push
// identifiers from encrypted ciphertexts.
package cryptocore

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/quietpush/enclavecore/errs"
)

const (
	// KeySize is the length in bytes of an X25519 private scalar or public point.
	KeySize   = curve25519.PointSize
	nonceSize = chacha20poly1305.NonceSizeX
)

// SecretKey is an X25519 private scalar.
type SecretKey [KeySize]byte

// PublicKey is an X25519 public point.
type PublicKey [KeySize]byte

// RandReader is the source of cryptographic randomness, crypto/rand.Reader
// by default and swappable in tests. The hardware-availability gate is not
// applied here but by GenerateKeypair's hwReady/requireHardware arguments.
var RandReader io.Reader = rand.Reader

// GenerateKeypair produces a fresh X25519 keypair using RandReader. hwReady
// gates production use: when false and requireHardware is true, it fails
// closed with errs.HardwareUnavailable rather than proceeding on an
// unattested RNG.
func GenerateKeypair(hwReady, requireHardware bool) (SecretKey, PublicKey, error) {
	if requireHardware && !hwReady {
		return SecretKey{}, PublicKey{}, errs.New(errs.HardwareUnavailable, "no hardware RNG backend configured")
	}
	var secret SecretKey
	if _, err := io.ReadFull(RandReader, secret[:]); err != nil {
		return SecretKey{}, PublicKey{}, fmt.Errorf("reading random scalar: %w", err)
	}
	pub, err := publicFromSecret(secret)
	if err != nil {
		return SecretKey{}, PublicKey{}, err
	}
	return secret, pub, nil
}

func publicFromSecret(secret SecretKey) (PublicKey, error) {
	pubBytes, err := curve25519.X25519(secret[:], curve25519.Basepoint)
	if err != nil {
		return PublicKey{}, fmt.Errorf("deriving public point: %w", err)
	}
	var pub PublicKey
	copy(pub[:], pubBytes)
	return pub, nil
}

// PublicFromSecret exposes the basepoint multiplication used by public_key.
func PublicFromSecret(secret SecretKey) (PublicKey, error) { return publicFromSecret(secret) }

// Agree performs X25519 scalar multiplication, producing the shared secret
// used as HKDF input key material.
func Agree(local SecretKey, remote PublicKey) ([]byte, error) {
	shared, err := curve25519.X25519(local[:], remote[:])
	if err != nil {
		return nil, fmt.Errorf("x25519 agreement: %w", err)
	}
	return shared, nil
}

// deriveAEADKey expands a shared secret into a ChaCha20-Poly1305 key, bound
// to a context label so the same shared secret can't be reused across
// different message types.
func deriveAEADKey(sharedSecret []byte, info string) ([]byte, error) {
	kdf := hkdf.New(sha256.New, sharedSecret, nil, []byte(info))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("hkdf expand: %w", err)
	}
	return key, nil
}

// Seal derives an AEAD key from sharedSecret/info and encrypts plaintext,
// returning nonce||ciphertext+tag.
func Seal(sharedSecret []byte, info string, plaintext []byte) ([]byte, error) {
	key, err := deriveAEADKey(sharedSecret, info)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("constructing aead: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(RandReader, nonce); err != nil {
		return nil, fmt.Errorf("reading nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open reverses Seal, failing with errs.DecryptionFailed on any tamper or
// key mismatch.
func Open(sharedSecret []byte, info string, sealed []byte) ([]byte, error) {
	key, err := deriveAEADKey(sharedSecret, info)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("constructing aead: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return nil, errs.New(errs.DecryptionFailed, "ciphertext shorter than nonce")
	}
	nonce, ct := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, errs.New(errs.DecryptionFailed, "%v", err)
	}
	return plaintext, nil
}

// EncryptedPushID is the wire format clients use to encrypt a push-provider
// device token against a track's PublicKey: ephemeral X25519 public key
// (32 bytes) || AEAD nonce || ciphertext+tag.
type EncryptedPushID []byte

// EncryptPushID is the client-side counterpart used by tests to produce
// fixtures without needing a second process; production clients perform
// this same construction outside this module.
func EncryptPushID(trackPublic PublicKey, pushID []byte) (EncryptedPushID, error) {
	ephemeralSecret, ephemeralPublic, err := GenerateKeypair(true, false)
	if err != nil {
		return nil, err
	}
	shared, err := Agree(ephemeralSecret, trackPublic)
	if err != nil {
		return nil, err
	}
	sealed, err := Seal(shared, "enclavecore/push-id/v1", pushID)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, KeySize+len(sealed))
	out = append(out, ephemeralPublic[:]...)
	out = append(out, sealed...)
	return EncryptedPushID(out), nil
}

// HybridDecrypt recovers the plaintext push identifier bytes from an
// EncryptedPushID using the track's SecretKey: it splits out the sender's
// ephemeral public key, re-derives the shared secret via Agree, and opens
// the AEAD envelope.
func HybridDecrypt(trackSecret SecretKey, enc EncryptedPushID) ([]byte, error) {
	if len(enc) < KeySize+nonceSize {
		return nil, errs.New(errs.DecryptionFailed, "encrypted push id too short")
	}
	var ephemeralPublic PublicKey
	copy(ephemeralPublic[:], enc[:KeySize])
	shared, err := Agree(trackSecret, ephemeralPublic)
	if err != nil {
		return nil, err
	}
	return Open(shared, "enclavecore/push-id/v1", enc[KeySize:])
}

// SealTrackSecret wraps the track's SecretKey for transfer to a joining
// peer under a key agreed between the exporting enclave's ephemeral keypair
// and the joiner's bound ephemeral public key.
func SealTrackSecret(sharedSecret []byte, trackSecret SecretKey) ([]byte, error) {
	return Seal(sharedSecret, "enclavecore/export-keys/v1", trackSecret[:])
}

// OpenTrackSecret reverses SealTrackSecret.
func OpenTrackSecret(sharedSecret []byte, sealed []byte) (SecretKey, error) {
	plaintext, err := Open(sharedSecret, "enclavecore/export-keys/v1", sealed)
	if err != nil {
		return SecretKey{}, err
	}
	if len(plaintext) != KeySize {
		return SecretKey{}, errs.New(errs.DecryptionFailed, "unexpected track secret length %d", len(plaintext))
	}
	var secret SecretKey
	copy(secret[:], plaintext)
	return secret, nil
}
