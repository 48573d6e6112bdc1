// Package handlers provides the coordinator's control-plane HTTP handlers.
package handlers

import (
	"context"

	"github.com/quietpush/enclavecore/enclaveproto"
)

// EnclaveRequester is the narrow surface the control-plane handlers need
// against the host-to-enclave socket.
type EnclaveRequester interface {
	// PublicKey returns the enclave's current public key and a fresh
	// attestation binding it, or an error if the enclave is unreachable or
	// not yet initialized.
	PublicKey(ctx context.Context) (enclaveproto.PublicKeyResponse, error)
	// SetLogLevel reconfigures the enclave's log verbosity.
	SetLogLevel(ctx context.Context, level string) error
}
