package session

import (
	"context"
	"sync"

	"github.com/adred-codev/indexer-sessiond/internal/collaborators"
)

// estimatefeeKey identifies one distinct estimatefee/relayfee request
// shape the daemon can answer (spec.md §4.5 "estimatefee cache is
// single-flight").
type estimatefeeKey struct {
	blocks int
	mode   string
}

// estimatefeeEntry is the cached answer for one key, stamped with the
// chain tip it was computed against so a reorg invalidates it.
type estimatefeeEntry struct {
	tip     [32]byte
	feerate float64
	ok      bool
	err     error
}

// estimatefeeCache coalesces concurrent identical estimatefee calls
// into a single daemon round-trip (spec.md §4.5): callers racing on
// the same (blocks, mode) key share one in-flight request; a cached
// answer is reused as long as the chain tip hasn't moved.
type estimatefeeCache struct {
	daemon collaborators.Daemon

	mu      sync.Mutex
	entries map[estimatefeeKey]*estimatefeeEntry
	inFlight map[estimatefeeKey]chan struct{}
}

func newEstimatefeeCache(daemon collaborators.Daemon) *estimatefeeCache {
	return &estimatefeeCache{
		daemon:   daemon,
		entries:  make(map[estimatefeeKey]*estimatefeeEntry),
		inFlight: make(map[estimatefeeKey]chan struct{}),
	}
}

// EstimateFee returns the daemon's fee estimate for blocks/mode,
// reusing a cached value for the current tip and single-flighting
// concurrent misses for the same key onto one daemon call.
func (c *estimatefeeCache) EstimateFee(ctx context.Context, tip [32]byte, blocks int, mode string) (feerate float64, ok bool, err error) {
	key := estimatefeeKey{blocks: blocks, mode: mode}

	for {
		c.mu.Lock()
		if e, found := c.entries[key]; found && e.tip == tip {
			c.mu.Unlock()
			return e.feerate, e.ok, e.err
		}
		if wait, pending := c.inFlight[key]; pending {
			c.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return 0, false, ctx.Err()
			}
		}

		done := make(chan struct{})
		c.inFlight[key] = done
		c.mu.Unlock()

		feerate, ok, err = c.daemon.EstimateSmartFee(ctx, blocks, mode)

		c.mu.Lock()
		c.entries[key] = &estimatefeeEntry{tip: tip, feerate: feerate, ok: ok, err: err}
		delete(c.inFlight, key)
		c.mu.Unlock()
		close(done)

		return feerate, ok, err
	}
}

// Invalidate drops every cached entry, called on a chain reorg so the
// next estimatefee call always refetches against the new tip.
func (c *estimatefeeCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[estimatefeeKey]*estimatefeeEntry)
}
