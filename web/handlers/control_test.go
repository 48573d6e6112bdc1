package handlers

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestControlReturnsEnclaveStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/control/status", NewControl(&niceEnclave{}))
	ts := httptest.NewServer(mux)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/control/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %v, want %v", resp.StatusCode, http.StatusOK)
	}

	var got statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got.PublicKeyHex != hex.EncodeToString([]byte("pub")) {
		t.Errorf("PublicKeyHex = %q, want hex of %q", got.PublicKeyHex, "pub")
	}
}

func TestControlPropagatesEnclaveError(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/control/status", NewControl(&errorEnclave{}))
	ts := httptest.NewServer(mux)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/control/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %v, want %v", resp.StatusCode, http.StatusInternalServerError)
	}
}
