// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"sync"
	"time"

	"github.com/auraswarm/swarmctl/lib/clock"
	"github.com/auraswarm/swarmctl/lib/ids"
)

// endpointCacheTTL is how long a cached endpoint is trusted before a
// fresh query to the scheduler is required, per the specification.
const endpointCacheTTL = 60 * time.Second

// endpointCacheEntry holds one agent's last-known endpoint and the
// time it was learned.
type endpointCacheEntry struct {
	endpoint  string
	fetchedAt time.Time
}

// EndpointCache is the in-memory agent_id → "ip:8080" cache the
// Orchestrator Driver consults before querying the scheduler directly.
// Safe for concurrent use.
type EndpointCache struct {
	clock clock.Clock

	mu      sync.RWMutex
	entries map[ids.AgentID]endpointCacheEntry
}

// NewEndpointCache constructs an empty EndpointCache.
func NewEndpointCache(clk clock.Clock) *EndpointCache {
	return &EndpointCache{clock: clk, entries: make(map[ids.AgentID]endpointCacheEntry)}
}

// Get returns the cached endpoint for agentID if present and not
// expired.
func (c *EndpointCache) Get(agentID ids.AgentID) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[agentID]
	if !ok {
		return "", false
	}
	if c.clock.Now().Sub(entry.fetchedAt) > endpointCacheTTL {
		return "", false
	}
	return entry.endpoint, true
}

// Set records endpoint as the current endpoint for agentID, observed
// now.
func (c *EndpointCache) Set(agentID ids.AgentID, endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[agentID] = endpointCacheEntry{endpoint: endpoint, fetchedAt: c.clock.Now()}
}

// Evict removes any cached endpoint for agentID. Called on pod
// deletion (watch-observed or explicit terminate_agent), pod-IP
// change, and TTL expiry is handled implicitly by Get's staleness
// check rather than an active evict.
func (c *EndpointCache) Evict(agentID ids.AgentID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, agentID)
}
