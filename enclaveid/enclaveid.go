// Package enclaveid provides the EnclaveID type. The parent coordinator
// identifies enclave instances participating in key exchange by their
// EnclaveID, a 256 bit random value that coordinator.Run generates afresh
// each time it starts. Coordinators map EnclaveIDs to the actual
// network endpoints used to reach a peer's relay socket.
package enclaveid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

type EnclaveID [32]byte

func Make(s []byte) (EnclaveID, error) {
	if len(s) != 32 {
		return EnclaveID{}, fmt.Errorf("incorrect enclave id length %v", len(s))
	}
	var out EnclaveID
	copy(out[:], s)
	return out, nil
}

// NewRandom generates a fresh EnclaveID. The coordinator calls this once at
// startup, before the enclave has a track key to identify itself by, so it
// has something to register itself under in the peer registry and to use as
// the genesis lock holder name.
func NewRandom() (EnclaveID, error) {
	var out EnclaveID
	if _, err := rand.Read(out[:]); err != nil {
		return EnclaveID{}, fmt.Errorf("generating enclave id: %w", err)
	}
	return out, nil
}

// FromHex parses a hexadecimal formatted EnclaveID.
func FromHex(s string) (EnclaveID, error) {
	if len(s) != 64 {
		return EnclaveID{}, fmt.Errorf("must provide 32-byte value as hex (64 characters)")
	}
	bs, err := hex.DecodeString(s)
	if err != nil {
		return EnclaveID{}, err
	}
	return Make(bs)
}

// String returns a hexadecimal formatted EnclaveID (just an 8-char prefix).
func (e EnclaveID) String() string {
	return hex.EncodeToString(e[:4])
}

// Set implements flag.Value and sets the EnclaveID from a hex string.
func (e *EnclaveID) Set(in string) error {
	eid, err := FromHex(in)
	if err != nil {
		return err
	}
	*e = eid
	return nil
}
