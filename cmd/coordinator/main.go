// Binary coordinator runs the host-side process: it supervises the enclave
// binary, runs the genesis-election/join protocol, brokers export_keys
// requests from peers, and serves the control-plane HTTP endpoints.
package main

import (
	"context"
	"encoding/base64"
	"flag"
	stdlog "log"
	"os"
	"os/signal"

	"github.com/hashicorp/go-metrics/datadog"
	metrics "github.com/hashicorp/go-metrics"

	"github.com/quietpush/enclavecore/auth"
	"github.com/quietpush/enclavecore/config"
	"github.com/quietpush/enclavecore/coordinator"
	"github.com/quietpush/enclavecore/logger"
)

var (
	enclavePath = flag.String("enclave_path", "", "path to the enclave binary to supervise")
	configPath  = flag.String("config_path", "", "path to coordinator configuration yaml file")
)

func main() {
	flag.Parse()

	cfg, err := config.Read(*configPath)
	if err != nil {
		stdlog.Fatalf("could not read configuration: %v", err)
	}
	logger.Init(cfg)
	defer logger.Sync()

	if cfg.DatadogAgentHost != "" {
		logger.Infof("initializing datadog at %v", cfg.DatadogAgentHost)
		sink, err := datadog.NewDogStatsdSink(cfg.DatadogAgentHost, "")
		if err != nil {
			logger.Fatalf("error initializing statsd client: %v", err)
		}
		defer sink.Shutdown()

		mcfg := metrics.DefaultConfig("enclavecore")
		mcfg.EnableHostname = false
		mcfg.EnableHostnameLabel = false
		if _, err := metrics.NewGlobal(mcfg, sink); err != nil {
			logger.Fatalf("error initializing metrics: %v", err)
		}
	}

	authSecret, ok := os.LookupEnv("AUTH_SECRET")
	if !ok {
		logger.Fatalf("no auth secret env (AUTH_SECRET)")
	}
	authBytes, err := base64.StdEncoding.DecodeString(authSecret)
	if err != nil {
		logger.Fatalf("auth secret invalid base64: %v", err)
	}
	authenticator := auth.New(authBytes, cfg.Track)

	if *enclavePath == "" {
		logger.Fatalf("must provide -enclave_path")
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

	code, err := coordinator.Run(ctx, cfg, *enclavePath, authenticator)
	if err != nil {
		logger.Errorw("coordinator exiting", "code", code, "err", err)
	} else {
		logger.Infow("coordinator exiting", "code", code)
	}
	os.Exit(int(code))
}
