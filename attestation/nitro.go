package attestation

import (
	"crypto/hmac"
	"fmt"
	"os"

	"github.com/google/go-tpm-tools/client"
	"github.com/google/go-tpm/legacy/tpm2"

	"github.com/quietpush/enclavecore/errs"
)

// NitroBackend is the production attestation backend. It collects a PCR
// measurement vector from the local TPM device and signs documents with an
// HMAC derived from a root key provisioned into the enclave image, standing
// in for the real Nitro hypervisor attestation channel this process would
// call through vsock in a genuine Nitro Enclave.
//
// TODO: replace the HMAC signature step with a call to the Nitro Secure
// Module's NSM_ATTESTATION request once that device is wired in; the
// measurement collection path below is already hardware-sourced.
type NitroBackend struct {
	TPMDevicePath string
	RootKey       []byte
}

var _ Backend = (*NitroBackend)(nil)

func (n *NitroBackend) Available() bool {
	if n.TPMDevicePath == "" || len(n.RootKey) == 0 {
		return false
	}
	_, err := os.Stat(n.TPMDevicePath)
	return err == nil
}

func (n *NitroBackend) Measurements() (map[int][]byte, error) {
	rwc, err := tpm2.OpenTPM(n.TPMDevicePath)
	if err != nil {
		return nil, errs.New(errs.HardwareUnavailable, "opening TPM device: %v", err)
	}
	defer rwc.Close()

	pcrs, err := client.ReadPCRs(rwc, tpm2.PCRSelection{
		Hash: tpm2.AlgSHA256,
		PCRs: []int{0, 1, 2},
	})
	if err != nil {
		return nil, fmt.Errorf("reading PCR bank: %w", err)
	}
	out := make(map[int][]byte, len(pcrs.GetPcrs()))
	for idx, val := range pcrs.GetPcrs() {
		out[int(idx)] = val
	}
	return out, nil
}

func (n *NitroBackend) Sign(doc *Document) ([]byte, error) {
	if !n.Available() {
		return nil, errs.New(errs.HardwareUnavailable, "attestation hardware not available")
	}
	return hmacTag(n.RootKey, doc), nil
}

func (n *NitroBackend) CheckSignature(doc *Document) error {
	if !n.Available() {
		return errs.New(errs.HardwareUnavailable, "attestation hardware not available")
	}
	want := hmacTag(n.RootKey, doc)
	if !hmac.Equal(doc.SignatureChain, want) {
		return fmt.Errorf("signature chain verification failed")
	}
	return nil
}
