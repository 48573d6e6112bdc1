// Package coordination provides the distributed state a coordinator uses
// to elect a genesis node and discover peers for a track: a lock keyed by
// track name, and a per-peer registry entry with a TTL.
package coordination

import (
	"context"
	"time"
)

// PeerEntry is a single registered peer's address and status, stored under
// enclave/peers/{track}/{peer_id}.
type PeerEntry struct {
	Host         string `json:"host"`
	Port         uint32 `json:"port"`
	LastUpdateTs int64  `json:"last_update_ts"`
	JoinTs       int64  `json:"join_ts,omitempty"`
	Joined       bool   `json:"joined"`
}

// Store is the coordination primitive a genesis.Manager depends on: a
// single exclusive lock per track (enclave/genesis-lock/{track}) used to
// decide who gets to be genesis, and a peer registry
// (enclave/peers/{track}/{peer_id}) used for discovery.
type Store interface {
	// AcquireLock attempts to take the genesis lock for track, holding it
	// for ttl. Returns true if the lock was acquired, false if another
	// coordinator already holds it.
	AcquireLock(ctx context.Context, track string, holder string, ttl time.Duration) (bool, error)
	// ReleaseLock releases the genesis lock for track if held by holder.
	ReleaseLock(ctx context.Context, track string, holder string) error
	// Write upserts this peer's registry entry with a TTL.
	Write(ctx context.Context, track, peerID string, entry PeerEntry, ttl time.Duration) error
	// Read returns all currently registered peer entries for track, keyed
	// by peer ID.
	Read(ctx context.Context, track string) (map[string]PeerEntry, error)
	// Close releases any resources held by the store.
	Close() error
}
