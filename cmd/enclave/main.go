// Binary enclave runs inside the TEE: it owns the track secret, handles the
// host-to-enclave RPC surface, and dispatches outbound push notifications.
package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/quietpush/enclavecore/attestation"
	"github.com/quietpush/enclavecore/config"
	"github.com/quietpush/enclavecore/enclavestate"
	"github.com/quietpush/enclavecore/enclavesvc"
	"github.com/quietpush/enclavecore/logger"
	"github.com/quietpush/enclavecore/notify"
	"github.com/quietpush/enclavecore/rate"
	"github.com/quietpush/enclavecore/wire"
)

var (
	configPath    = flag.String("config_path", "", "path to enclave configuration yaml file")
	tpmDevicePath = flag.String("tpm_device", "", "path to the local TPM device; empty runs with the stub attestation backend")
	requireHW     = flag.Bool("require_hardware", false, "fail closed instead of falling back to the stub attestation backend")
)

// pushMaxRetries bounds retries of a transient push-provider failure before
// a recipient is marked failed, per spec.md's delivery classification table.
const pushMaxRetries = 3

func main() {
	flag.Parse()

	cfg, err := config.Read(*configPath)
	if err != nil {
		stdlog.Fatalf("could not read configuration: %v", err)
	}
	logger.Init(cfg)
	defer logger.Sync()

	backend, err := buildBackend()
	if err != nil {
		logger.Fatalf("could not configure attestation backend: %v", err)
	}

	authHeader := os.Getenv("PUSH_PROVIDER_AUTH")
	transport := notify.NewHTTPTransport(cfg.Push, authHeader, &http.Client{Timeout: cfg.Push.Timeout})

	srv := &enclavesvc.Server{
		Cell:            &enclavestate.Cell{},
		Backend:         backend,
		PCRIndices:      cfg.Attestation.PCRIndices,
		FreshnessWindow: time.Duration(cfg.Attestation.FreshnessWindowSeconds) * time.Second,
		RequireHardware: *requireHW,
		Dispatcher: &notify.Dispatcher{
			Transport:  transport,
			Limiter:    rate.NewConfiguredLimiter(cfg),
			MaxRetries: pushMaxRetries,
			MinSleep:   10 * time.Millisecond,
			MaxSleep:   cfg.PushTimeout,
		},
		PeerRPCTimeout: cfg.PeerRPCTimeout,
	}

	ln, err := wire.Listen(cfg.Socket)
	if err != nil {
		logger.Fatalf("could not listen on enclave socket %+v: %v", cfg.Socket, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer func() {
		signal.Stop(interrupts)
		cancel()
	}()
	go func() {
		select {
		case <-interrupts:
			logger.Infof("received interrupt, shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Fatalw("enclave exiting", "err", srv.Serve(ctx, ln))
}

// buildBackend selects the production Nitro-style attestation backend when
// a TPM device path is configured, falling back to the stub backend
// otherwise unless -require_hardware was passed.
func buildBackend() (attestation.Backend, error) {
	if *tpmDevicePath == "" {
		if *requireHW {
			return nil, errors.New("require_hardware set but no -tpm_device provided")
		}
		return attestation.NewStubBackend(devMeasurements()), nil
	}
	rootKey, err := rootKeyFromEnv()
	if err != nil {
		return nil, err
	}
	return &attestation.NitroBackend{TPMDevicePath: *tpmDevicePath, RootKey: rootKey}, nil
}

func rootKeyFromEnv() ([]byte, error) {
	encoded := os.Getenv("ENCLAVE_ROOT_KEY")
	if encoded == "" {
		return nil, errors.New("no ENCLAVE_ROOT_KEY env var set")
	}
	return base64.StdEncoding.DecodeString(encoded)
}

// devMeasurements provides a fixed measurement vector for the stub
// attestation backend in local/test deployments, where there is no real PCR
// bank to read from.
func devMeasurements() map[int][]byte {
	return map[int][]byte{0: {0}, 1: {1}, 2: {2}}
}
