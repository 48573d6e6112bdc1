// Package errs defines the closed taxonomy of error kinds that flow across
// the enclave/coordinator boundary and out to notification delivery.
package errs

import "fmt"

// Kind is a closed enum of error categories. Call sites switch on Kind
// rather than matching error strings, mirroring how the host-to-enclave
// wire protocol reports enclave failures as a status code rather than a
// free-form message.
type Kind int

const (
	// Unknown is the zero value. ParseKind returns it for an unrecognized
	// name, and callers use it for failures that fit no other category.
	Unknown Kind = iota
	// AlreadyInitialized: initialize called on a cell that is no longer Uninitialized.
	AlreadyInitialized
	// HardwareUnavailable: no attestation/RNG hardware backend is configured in production mode.
	HardwareUnavailable
	// PeerUnreachable: a peer's relay socket could not be dialed or timed out; the caller should retry another peer.
	PeerUnreachable
	// PeerAttestationInvalid: a peer's attestation document failed verification; fatal for that join attempt.
	PeerAttestationInvalid
	// MeasurementMismatch: a verified attestation document's PCR vector does not match the expected measurement set.
	MeasurementMismatch
	// Expired: an attestation document or credential is outside its freshness window.
	Expired
	// DecryptionFailed: AEAD open failed (HybridDecrypt, or opening a sealed track secret during join).
	DecryptionFailed
	// PushTransient: push-provider delivery failed with a retryable status (e.g. 5xx, network error).
	PushTransient
	// PushPermanent: push-provider delivery failed with a non-retryable status for this recipient (e.g. 4xx other than auth).
	PushPermanent
	// PushAuthFailure: push-provider delivery failed with an auth error (401/403); fatal for the batch.
	PushAuthFailure
)

var kindNames = map[Kind]string{
	Unknown:                "Unknown",
	AlreadyInitialized:     "AlreadyInitialized",
	HardwareUnavailable:    "HardwareUnavailable",
	PeerUnreachable:        "PeerUnreachable",
	PeerAttestationInvalid: "PeerAttestationInvalid",
	MeasurementMismatch:    "MeasurementMismatch",
	Expired:                "Expired",
	DecryptionFailed:       "DecryptionFailed",
	PushTransient:          "PushTransient",
	PushPermanent:          "PushPermanent",
	PushAuthFailure:        "PushAuthFailure",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("UnknownErrorKind(%d)", int(k))
}

var kindByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, name := range kindNames {
		m[name] = k
	}
	return m
}()

// ParseKind looks up a Kind by its String() name, returning Unknown if name
// does not match any known kind. Used to rehydrate errs.Kind values
// carried as strings across the wire.
func ParseKind(name string) Kind {
	if k, ok := kindByName[name]; ok {
		return k
	}
	return Unknown
}

// Error is an error carrying a Kind plus contextual detail. It implements
// the `error` interface; the Is helper below matches it by Kind (without
// unwrapping).
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// New constructs an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Is reports whether err is an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}
