package coordinator

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	metrics "github.com/hashicorp/go-metrics"
	"golang.org/x/sync/errgroup"

	"github.com/quietpush/enclavecore/auth"
	"github.com/quietpush/enclavecore/config"
	"github.com/quietpush/enclavecore/coordination"
	"github.com/quietpush/enclavecore/enclaveid"
	"github.com/quietpush/enclavecore/genesis"
	"github.com/quietpush/enclavecore/health"
	"github.com/quietpush/enclavecore/relay"
	"github.com/quietpush/enclavecore/web/handlers"
	"github.com/quietpush/enclavecore/web/middleware"
)

// ExitCode values returned from cmd/coordinator/main.go, matching the
// startup exit-code table: 0 success, 2 misconfiguration, 3 join failed
// after retries, 4 enclave binary exited, 5 coordination store unavailable.
type ExitCode int

const (
	ExitSuccess            ExitCode = 0
	ExitMisconfigured      ExitCode = 2
	ExitJoinFailed         ExitCode = 3
	ExitEnclaveExited      ExitCode = 4
	ExitCoordinationFailed ExitCode = 5
)

var genesisAttempts = []string{"genesis", "attempts"}

// Run wires up the coordinator process end to end: the enclave process
// supervisor, the export_keys relay server, the control-plane HTTP server,
// and the genesis-election/join protocol. It blocks until ctx is cancelled
// or an unrecoverable error occurs.
func Run(ctx context.Context, cfg *config.Config, enclaveBinaryPath string, authenticator auth.Auth) (ExitCode, error) {
	store := coordination.NewRedisStore(cfg.Redis)
	defer store.Close()

	client := &EnclaveClient{Socket: cfg.Socket, Timeout: cfg.PeerRPCTimeout}

	// Liveness is tracked per subsystem by the Supervisor ("process", "rpc");
	// seeding "rpc" keeps /health/live failing until the first successful poll.
	live := health.New(nil)
	live.SetSubsystem("rpc", fmt.Errorf("starting up"))
	ready := health.New(fmt.Errorf("starting up"))

	sup := &Supervisor{
		BinaryPath:           enclaveBinaryPath,
		Client:               client,
		Live:                 live,
		Ready:                ready,
		LivenessCheckPeriod:  cfg.LocalLivenessCheckPeriod,
		LivenessCheckTimeout: cfg.LocalLivenessCheckTimeout,
		RestartBackoff:       cfg.PeerRPCTimeout,
	}

	relayLn, err := net.Listen("tcp", cfg.RelayAddr)
	if err != nil {
		return ExitMisconfigured, fmt.Errorf("listening on relay address %q: %w", cfg.RelayAddr, err)
	}
	controlLn, err := net.Listen("tcp", cfg.ControlListenAddr)
	if err != nil {
		return ExitMisconfigured, fmt.Errorf("listening on control address %q: %w", cfg.ControlListenAddr, err)
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return sup.Run(gctx) })

	relaySrv := &relay.Server{EnclaveSocket: cfg.Socket}
	g.Go(func() error { return relaySrv.Serve(gctx, relayLn) })

	controlSrv := &http.Server{Handler: buildControlMux(client, live, ready, authenticator)}
	g.Go(func() error {
		go func() {
			<-gctx.Done()
			controlSrv.Close()
		}()
		if err := controlSrv.Serve(controlLn); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	selfID, err := enclaveid.NewRandom()
	if err != nil {
		return ExitMisconfigured, err
	}
	host, port, err := splitHostPort(cfg.RelayAddr)
	if err != nil {
		return ExitMisconfigured, fmt.Errorf("parsing relay address %q: %w", cfg.RelayAddr, err)
	}

	mgr := &genesis.Manager{
		Store:      store,
		Enclave:    client,
		Track:      cfg.Track,
		SelfID:     selfID.String(),
		SelfHost:   host,
		SelfPort:   port,
		LeaseTTL:   cfg.Genesis.LeaseDuration,
		MaxJoin:    cfg.Genesis.MaxJoinAttempts,
		JoinMin:    cfg.Genesis.JoinRetryMinSleep,
		JoinMax:    cfg.Genesis.JoinRetryMaxSleep,
		RefreshTTL: cfg.RecurringPeerTTL,
	}

	metrics.IncrCounter(genesisAttempts, 1)
	if err := mgr.Run(ctx); err != nil {
		code := classifyStartupError(err)
		cancelRun()
		g.Wait()
		return code, fmt.Errorf("startup protocol failed: %w", err)
	}
	ready.Set(nil)

	g.Go(func() error { return mgr.RunRefresher(gctx, cfg.Genesis.RefreshStatusDuration) })

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return ExitEnclaveExited, err
	}
	return ExitSuccess, nil
}

// classifyStartupError maps a genesis.Manager.Run failure to an exit code.
// The manager wraps errors by phase ("acquiring genesis lock" for the
// coordination store, "join"/"initialize" for the enclave RPC and peer
// protocol), so the phase name in the error chain is enough to classify it
// without genesis exposing a richer error type.
func classifyStartupError(err error) ExitCode {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "acquiring genesis lock") || strings.Contains(msg, "discovering joinable peer"):
		return ExitCoordinationFailed
	case strings.Contains(msg, "join"):
		return ExitJoinFailed
	default:
		return ExitMisconfigured
	}
}

func splitHostPort(addr string) (string, uint32, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	var port uint32
	for _, c := range portStr {
		if c < '0' || c > '9' {
			return "", 0, fmt.Errorf("invalid port %q", portStr)
		}
		port = port*10 + uint32(c-'0')
	}
	return host, port, nil
}

func buildControlMux(client *EnclaveClient, live, ready *health.Health, authenticator auth.Auth) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/health/live", middleware.Instrument(live))
	mux.Handle("/health/ready", middleware.Instrument(ready))
	mux.Handle("/control/loglevel", middleware.Instrument(middleware.AuthCheck(authenticator, handlers.NewSetLogLevel(client))))
	mux.Handle("/control/status", middleware.Instrument(middleware.AuthCheck(authenticator, handlers.NewControl(client))))
	return mux
}
