// Package enclaveproto defines the message types exchanged over the
// host-to-enclave socket and between a joining enclave and an existing
// peer's relay. All types are encoded with github.com/fxamacker/cbor/v2 and
// framed by package wire.
package enclaveproto

// InitMode selects how initialize should bring up the track secret.
type InitMode string

const (
	ModeGenesis InitMode = "genesis"
	ModeJoin    InitMode = "join"
)

// PeerAddress identifies a relay socket to dial for a join attempt.
type PeerAddress struct {
	Host string `cbor:"host"`
	Port uint32 `cbor:"port"`
}

// InitializeRequest is the `initialize` RPC request.
type InitializeRequest struct {
	Mode  InitMode     `cbor:"mode"`
	Track string       `cbor:"track"`
	Peer  *PeerAddress `cbor:"peer,omitempty"`
}

// InitializeResponse is the `initialize` RPC response.
type InitializeResponse struct {
	PublicKey   []byte `cbor:"public_key"`
	Attestation []byte `cbor:"attestation"`
}

// PublicKeyRequest is the `public_key` RPC request (no fields).
type PublicKeyRequest struct{}

// PublicKeyResponse is the `public_key` RPC response.
type PublicKeyResponse struct {
	PublicKey   []byte `cbor:"public_key"`
	Attestation []byte `cbor:"attestation"`
}

// ExportKeysRequest is the `export_keys` RPC request, sent by a joining
// enclave to an existing peer's coordinator, whose relay.Server forwards it
// to that peer's enclave.
type ExportKeysRequest struct {
	Attestation []byte `cbor:"attestation"`
}

// ExportKeysResponse is the `export_keys` RPC response.
type ExportKeysResponse struct {
	SealedSecret    []byte `cbor:"sealed_secret"`
	EphemeralPublic []byte `cbor:"ephemeral_public"`
	Attestation     []byte `cbor:"attestation"`
}

// SendNotificationRequest is the `send_notification` RPC request.
type SendNotificationRequest struct {
	Topic      string   `cbor:"topic"`
	Recipients [][]byte `cbor:"recipients"`
	Payload    []byte   `cbor:"payload"`
}

// SendNotificationResponse is the `send_notification` RPC response.
type SendNotificationResponse struct {
	Delivered uint32 `cbor:"delivered"`
	Failed    uint32 `cbor:"failed"`
}

// SetLogLevelRequest dynamically reconfigures the enclave's log verbosity.
type SetLogLevelRequest struct {
	Level string `cbor:"level"`
}

// Method names used on the wire frame's Method field.
const (
	MethodInitialize       = "initialize"
	MethodPublicKey        = "public_key"
	MethodExportKeys       = "export_keys"
	MethodSendNotification = "send_notification"
	MethodSetLogLevel      = "set_log_level"
)

// Frame is the envelope carried inside a length-prefixed wire message. Body
// holds the CBOR-encoded request or response for Method, re-encoded by the
// caller into a nested byte string so that a generic relay (package relay)
// can forward frames without understanding their contents.
type Frame struct {
	RequestID uint64 `cbor:"request_id"`
	Method    string `cbor:"method"`
	Body      []byte `cbor:"body"`
	// Err is set on a failure response; Kind/Msg mirror errs.Kind/errs.Error.
	ErrKind string `cbor:"err_kind,omitempty"`
	ErrMsg  string `cbor:"err_msg,omitempty"`
}
