// Package enclavestate holds the single piece of mutable state an enclave
// process owns: the track secret key, guarded by one mutex for the
// lifetime of the process. It never returns to uninitialized once
// initialized, matching the state diagram of the enclave service.
package enclavestate

import (
	"sync"

	"github.com/quietpush/enclavecore/cryptocore"
	"github.com/quietpush/enclavecore/errs"
)

// Snapshot is a read-only copy of the initialized state, safe to hold and
// use after the cell's lock has been released.
type Snapshot struct {
	Secret cryptocore.SecretKey
	Public cryptocore.PublicKey
	Track  string
}

// Cell is the guarded state cell. The zero value is ready to use and starts
// Uninitialized.
type Cell struct {
	mu          sync.Mutex
	initialized bool
	secret      cryptocore.SecretKey
	public      cryptocore.PublicKey
	track       string
}

// Initialize transitions Uninitialized to Initialized by calling fn while
// holding the lock. fn computes the secret/public/track to store; it
// receives nothing and returns the triple to commit, or an error to leave
// the cell Uninitialized (e.g. a cancelled or failed join). Initialize
// itself fails with errs.AlreadyInitialized if the cell has already been
// initialized by a prior call, without invoking fn.
func (c *Cell) Initialize(fn func() (cryptocore.SecretKey, cryptocore.PublicKey, string, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return errs.New(errs.AlreadyInitialized, "enclave already initialized for track %q", c.track)
	}
	secret, public, track, err := fn()
	if err != nil {
		return err
	}
	c.secret = secret
	c.public = public
	c.track = track
	c.initialized = true
	return nil
}

// Snapshot returns a copy of the current state and true, or a zero
// Snapshot and false if Initialize has not yet succeeded.
func (c *Cell) Snapshot() (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return Snapshot{}, false
	}
	return Snapshot{Secret: c.secret, Public: c.public, Track: c.track}, true
}

// IsInitialized reports whether Initialize has already succeeded.
func (c *Cell) IsInitialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}
