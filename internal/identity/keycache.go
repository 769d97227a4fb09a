// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/auraswarm/swarmctl/lib/clock"
)

// ErrKeyNotFound is returned by KeyCache.Lookup when a fresh refresh
// completed successfully but the requested key-id is not in the
// upstream key set.
var ErrKeyNotFound = errors.New("identity: key not found")

// KeyFetcher retrieves signing-key material from the external identity
// service. Implementations may fetch a single key by ID (on cache
// miss) or the full current key set (on a scheduled refresh); both
// calls return the complete currently-valid set so that rotation is
// graceful: a key due to be retired is still present until it
// actually expires upstream, so tokens signed with it just before
// rotation still verify.
type KeyFetcher interface {
	FetchKeys(ctx context.Context) (map[string]ed25519.PublicKey, error)
}

// keyCacheRefreshInterval is the maximum time a cached key set is
// trusted before a background refresh is required, per the 300s floor
// the Identity Adapter's key cache must meet.
const keyCacheRefreshInterval = 300 * time.Second

// KeyCache holds the current set of signing public keys, indexed by
// key-id, refreshed from a KeyFetcher on miss and no less often than
// every keyCacheRefreshInterval. Safe for concurrent use.
type KeyCache struct {
	fetcher KeyFetcher
	clock   clock.Clock

	mu          sync.RWMutex
	keys        map[string]ed25519.PublicKey
	lastRefresh time.Time
}

// NewKeyCache constructs an empty KeyCache backed by fetcher. The
// first lookup always triggers a fetch.
func NewKeyCache(fetcher KeyFetcher, clk clock.Clock) *KeyCache {
	return &KeyCache{
		fetcher: fetcher,
		clock:   clk,
		keys:    make(map[string]ed25519.PublicKey),
	}
}

// Lookup returns the public key for keyID, refreshing the cache first
// if it is stale or the key is not yet present. A miss after refresh
// means the key genuinely does not exist upstream.
func (c *KeyCache) Lookup(ctx context.Context, keyID string) (ed25519.PublicKey, error) {
	if key, ok := c.cachedKey(keyID); ok {
		return key, nil
	}
	if err := c.refresh(ctx); err != nil {
		return nil, err
	}
	key, ok := c.cachedKey(keyID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, keyID)
	}
	return key, nil
}

func (c *KeyCache) cachedKey(keyID string) (ed25519.PublicKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.clock.Now().Sub(c.lastRefresh) > keyCacheRefreshInterval {
		return nil, false
	}
	key, ok := c.keys[keyID]
	return key, ok
}

// refresh fetches the full current key set and replaces the cache
// wholesale. Rotation is graceful because FetchKeys is expected to
// return every key still valid upstream, including one scheduled for
// retirement but not yet expired — so a concurrent Lookup for the old
// key-id during this call still succeeds against the pre-refresh
// cache, and succeeds again afterward as long as the upstream key set
// still contains it.
func (c *KeyCache) refresh(ctx context.Context) error {
	keys, err := c.fetcher.FetchKeys(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = keys
	c.lastRefresh = c.clock.Now()
	return nil
}
