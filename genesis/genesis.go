// Package genesis implements the coordinator's startup protocol: elect a
// genesis node for a track via a distributed lock, or discover and join an
// existing one, then keep the peer registry entry alive for as long as the
// process runs.
package genesis

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/quietpush/enclavecore/coordination"
	"github.com/quietpush/enclavecore/enclaveproto"
	"github.com/quietpush/enclavecore/errs"
	"github.com/quietpush/enclavecore/logger"
	"github.com/quietpush/enclavecore/util"
)

// EnclaveClient is the subset of the host-to-enclave RPC surface the
// genesis protocol needs. The coordinator's RPC client implements this.
type EnclaveClient interface {
	Initialize(ctx context.Context, req enclaveproto.InitializeRequest) (enclaveproto.InitializeResponse, error)
}

// Manager runs the genesis-election-or-join protocol for one track and
// keeps this host's peer registry entry refreshed afterward.
type Manager struct {
	Store      coordination.Store
	Enclave    EnclaveClient
	Track      string
	SelfID     string
	SelfHost   string
	SelfPort   uint32
	LeaseTTL   time.Duration
	MaxJoin    int
	JoinMin    time.Duration
	JoinMax    time.Duration
	RefreshTTL time.Duration
}

// Run executes the startup protocol: try to become genesis, otherwise
// discover and join an existing peer. On success the enclave has completed
// `initialize` and this host's peer registry entry has been written.
func (m *Manager) Run(ctx context.Context) error {
	acquired, err := m.Store.AcquireLock(ctx, m.Track, m.SelfID, m.LeaseTTL)
	if err != nil {
		return fmt.Errorf("acquiring genesis lock: %w", err)
	}
	if acquired {
		return m.runGenesis(ctx)
	}
	return m.runJoin(ctx)
}

func (m *Manager) runGenesis(ctx context.Context) error {
	defer func() {
		if err := m.Store.ReleaseLock(ctx, m.Track, m.SelfID); err != nil {
			logger.Warnw("failed to release genesis lock", "track", m.Track, "err", err)
		}
	}()

	logger.Infow("elected genesis, initializing enclave", "track", m.Track)
	_, err := m.Enclave.Initialize(ctx, enclaveproto.InitializeRequest{
		Mode:  enclaveproto.ModeGenesis,
		Track: m.Track,
	})
	if err != nil {
		return fmt.Errorf("genesis initialize: %w", err)
	}
	return m.register(ctx, true)
}

func (m *Manager) runJoin(ctx context.Context) error {
	peer, err := m.findJoinablePeer(ctx)
	if err != nil {
		return fmt.Errorf("discovering joinable peer: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < m.MaxJoin; attempt++ {
		logger.Infow("attempting to join existing track", "track", m.Track, "peer", peer, "attempt", attempt+1)
		_, err := m.Enclave.Initialize(ctx, enclaveproto.InitializeRequest{
			Mode:  enclaveproto.ModeJoin,
			Track: m.Track,
			Peer:  &peer,
		})
		if err == nil {
			return m.register(ctx, true)
		}
		if errs.Is(err, errs.PeerAttestationInvalid) {
			return fmt.Errorf("join rejected due to measurement mismatch, not retrying with another peer: %w", err)
		}
		lastErr = err
		if !errs.Is(err, errs.PeerUnreachable) {
			return err
		}
		logger.Warnw("peer unreachable, picking another", "peer", peer, "err", err)
		peer, err = m.findJoinablePeer(ctx)
		if err != nil {
			return fmt.Errorf("discovering joinable peer after retry: %w", err)
		}
	}
	return fmt.Errorf("exhausted %d join attempts: %w", m.MaxJoin, lastErr)
}

// findJoinablePeer polls the peer registry with exponential backoff until
// at least one peer for the track is visible, then returns one at random.
func (m *Manager) findJoinablePeer(ctx context.Context) (enclaveproto.PeerAddress, error) {
	return util.RetrySupplierWithBackoff(ctx, func() (enclaveproto.PeerAddress, error) {
		peers, err := m.Store.Read(ctx, m.Track)
		if err != nil {
			return enclaveproto.PeerAddress{}, err
		}
		var candidates []coordination.PeerEntry
		for id, entry := range peers {
			if id == m.SelfID || !entry.Joined {
				continue
			}
			candidates = append(candidates, entry)
		}
		if len(candidates) == 0 {
			return enclaveproto.PeerAddress{}, errs.New(errs.PeerUnreachable, "no joinable peers registered for track %q", m.Track)
		}
		pick, err := randomIndex(len(candidates))
		if err != nil {
			return enclaveproto.PeerAddress{}, err
		}
		chosen := candidates[pick]
		return enclaveproto.PeerAddress{Host: chosen.Host, Port: chosen.Port}, nil
	}, m.JoinMin, m.JoinMax)
}

func randomIndex(n int) (int, error) {
	if n == 1 {
		return 0, nil
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("choosing random peer: %w", err)
	}
	return int(v.Int64()), nil
}

// register writes or refreshes this host's own peer registry entry.
func (m *Manager) register(ctx context.Context, joined bool) error {
	now := time.Now().Unix()
	entry := coordination.PeerEntry{
		Host:         m.SelfHost,
		Port:         m.SelfPort,
		LastUpdateTs: now,
		Joined:       joined,
	}
	if joined {
		entry.JoinTs = now
	}
	return m.Store.Write(ctx, m.Track, m.SelfID, entry, m.RefreshTTL)
}

// RunRefresher periodically re-writes this host's peer registry entry so
// its TTL does not expire while the process is healthy. It returns when
// ctx is cancelled.
func (m *Manager) RunRefresher(ctx context.Context, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := m.register(ctx, true); err != nil {
				logger.Warnw("failed to refresh peer registry entry", "track", m.Track, "err", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
