package handlers

import (
	"fmt"
	"net/http"

	"github.com/quietpush/enclavecore/logger"
)

// NewSetLogLevel returns a handler that dynamically reconfigures log
// verbosity on both the coordinator host process and the enclave. The
// desired level is provided in a POST request with
// "Content-Type: application/x-www-form-urlencoded" body, e.g. level=debug.
func NewSetLogLevel(enclave EnclaveRequester) http.Handler {
	return &setLogLevelHandler{enclave}
}

type setLogLevelHandler struct {
	enclave EnclaveRequester
}

func (s *setLogLevelHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, fmt.Sprintf("bad body: %v", err), http.StatusBadRequest)
		return
	}

	level := r.PostForm.Get("level")
	if level == "" {
		http.Error(w, "must provide log level", http.StatusBadRequest)
		return
	}

	if err := logger.SetLevel(level); err != nil {
		http.Error(w, fmt.Sprintf("invalid log level %q: %v", level, err), http.StatusBadRequest)
		return
	}
	if err := s.enclave.SetLogLevel(r.Context(), level); err != nil {
		logger.Errorw("failed to set enclave log level", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	logger.Infof("successfully set host and enclave log level to %v", level)
	w.WriteHeader(http.StatusOK)
}
