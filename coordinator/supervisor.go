package coordinator

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quietpush/enclavecore/health"
	"github.com/quietpush/enclavecore/logger"
)

// Supervisor owns the enclave process's lifecycle: it starts the binary,
// restarts it if it exits, and polls it over the host-to-enclave socket to
// drive liveness and readiness reporting for the control-plane endpoints.
type Supervisor struct {
	BinaryPath string
	Args       []string

	Client *EnclaveClient

	Live  *health.Health
	Ready *health.Health

	LivenessCheckPeriod  time.Duration
	LivenessCheckTimeout time.Duration
	RestartBackoff       time.Duration
}

// Run supervises the enclave process and polls its liveness until ctx is
// cancelled, at which point both background loops are stopped.
func (s *Supervisor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.superviseProcess(ctx) })
	g.Go(func() error { return s.livenessLoop(ctx) })
	return g.Wait()
}

func (s *Supervisor) superviseProcess(ctx context.Context) error {
	for {
		cmd := exec.CommandContext(ctx, s.BinaryPath, s.Args...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		logger.Infow("starting enclave process", "path", s.BinaryPath, "args", s.Args)
		s.Live.SetSubsystem("process", nil)
		err := cmd.Run()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Errorw("enclave process exited, restarting", "err", err)
		s.Live.SetSubsystem("process", fmt.Errorf("enclave process exited: %w", err))
		select {
		case <-time.After(s.RestartBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Supervisor) livenessLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.LivenessCheckPeriod)
	defer ticker.Stop()

	s.runLivenessCheck(ctx)
	for {
		select {
		case <-ctx.Done():
			s.Live.SetSubsystem("rpc", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			s.runLivenessCheck(ctx)
		}
	}
}

func (s *Supervisor) runLivenessCheck(ctx context.Context) {
	err := s.livenessCheck(ctx)
	s.Live.SetSubsystem("rpc", err)
	if err == nil {
		s.Ready.Set(nil)
	}
}

func (s *Supervisor) livenessCheck(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, s.LivenessCheckTimeout)
	defer cancel()
	if _, err := s.Client.PublicKey(checkCtx); err != nil {
		return fmt.Errorf("enclave liveness check: %w", err)
	}
	return nil
}
