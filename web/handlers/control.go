package handlers

import (
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/quietpush/enclavecore/logger"
)

// NewControl returns a handler serving /control/status: the enclave's
// current public key and attestation document, hex-encoded, or an error if
// the enclave could not be reached.
func NewControl(enclave EnclaveRequester) http.Handler {
	return &controlHandler{enclave}
}

type controlHandler struct {
	enclave EnclaveRequester
}

type statusResponse struct {
	PublicKeyHex   string `json:"public_key_hex"`
	AttestationHex string `json:"attestation_hex"`
}

func (c *controlHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	resp, err := c.enclave.PublicKey(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out, err := json.Marshal(statusResponse{
		PublicKeyHex:   hex.EncodeToString(resp.PublicKey),
		AttestationHex: hex.EncodeToString(resp.Attestation),
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(out); err != nil {
		logger.Warnw("error writing control response", "err", err)
	}
}
