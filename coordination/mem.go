package coordination

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memLock struct {
	holder  string
	expires time.Time
}

type memPeer struct {
	entry   PeerEntry
	expires time.Time
}

// MemStore is an in-memory Store for tests. Expired locks and peer entries
// are reaped lazily on access rather than by a background sweep.
type MemStore struct {
	mu    sync.Mutex
	locks map[string]memLock
	peers map[string]map[string]memPeer
	now   func() time.Time
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty MemStore using time.Now for expiry checks.
func NewMemStore() *MemStore {
	return &MemStore{
		locks: make(map[string]memLock),
		peers: make(map[string]map[string]memPeer),
		now:   time.Now,
	}
}

func (m *MemStore) AcquireLock(_ context.Context, track string, holder string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if cur, ok := m.locks[track]; ok && now.Before(cur.expires) {
		return false, nil
	}
	m.locks[track] = memLock{holder: holder, expires: now.Add(ttl)}
	return true, nil
}

func (m *MemStore) ReleaseLock(_ context.Context, track string, holder string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.locks[track]
	if !ok {
		return nil
	}
	if cur.holder != holder {
		return fmt.Errorf("genesis lock for track %q is held by a different holder", track)
	}
	delete(m.locks, track)
	return nil
}

func (m *MemStore) Write(_ context.Context, track, peerID string, entry PeerEntry, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.peers[track] == nil {
		m.peers[track] = make(map[string]memPeer)
	}
	m.peers[track][peerID] = memPeer{entry: entry, expires: m.now().Add(ttl)}
	return nil
}

func (m *MemStore) Read(_ context.Context, track string) (map[string]PeerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	out := make(map[string]PeerEntry)
	for id, p := range m.peers[track] {
		if now.Before(p.expires) {
			out[id] = p.entry
		}
	}
	return out, nil
}

func (m *MemStore) Close() error { return nil }
