package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/quietpush/enclavecore/enclaveproto"
)

type niceEnclave struct{ level string }

func (n *niceEnclave) PublicKey(context.Context) (enclaveproto.PublicKeyResponse, error) {
	return enclaveproto.PublicKeyResponse{PublicKey: []byte("pub"), Attestation: []byte("doc")}, nil
}
func (n *niceEnclave) SetLogLevel(_ context.Context, level string) error {
	n.level = level
	return nil
}

type errorEnclave struct{}

func (*errorEnclave) PublicKey(context.Context) (enclaveproto.PublicKeyResponse, error) {
	return enclaveproto.PublicKeyResponse{}, errors.New("unreachable")
}
func (*errorEnclave) SetLogLevel(context.Context, string) error {
	return errors.New("unreachable")
}

func TestSetLogLevelEnclaveError(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/control/loglevel", NewSetLogLevel(&errorEnclave{}))
	ts := httptest.NewServer(mux)
	defer ts.Close()

	resp, err := http.PostForm(fmt.Sprintf("%v/control/loglevel", ts.URL), url.Values{"level": {"info"}})
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %v, want %v", resp.StatusCode, http.StatusInternalServerError)
	}
}

func TestSetLogLevelMissingLevel(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/control/loglevel", NewSetLogLevel(&niceEnclave{}))
	ts := httptest.NewServer(mux)
	defer ts.Close()

	resp, err := http.PostForm(fmt.Sprintf("%v/control/loglevel", ts.URL), url.Values{})
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %v, want %v", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestSetLogLevelInvalidLevel(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/control/loglevel", NewSetLogLevel(&niceEnclave{}))
	ts := httptest.NewServer(mux)
	defer ts.Close()

	resp, err := http.PostForm(fmt.Sprintf("%v/control/loglevel", ts.URL), url.Values{"level": {"not-a-level"}})
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %v, want %v", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestSetLogLevelSucceeds(t *testing.T) {
	enclave := &niceEnclave{}
	mux := http.NewServeMux()
	mux.Handle("/control/loglevel", NewSetLogLevel(enclave))
	ts := httptest.NewServer(mux)
	defer ts.Close()

	resp, err := http.PostForm(fmt.Sprintf("%v/control/loglevel", ts.URL), url.Values{"level": {"debug"}})
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %v, want %v", resp.StatusCode, http.StatusOK)
	}
	if enclave.level != "debug" {
		t.Errorf("enclave.level = %q, want %q", enclave.level, "debug")
	}
}
