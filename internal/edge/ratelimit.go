// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

package edge

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/auraswarm/swarmctl/lib/ids"
)

// defaultMaxConnectionsPerOwner is §4.5's connection-fairness limit: 10
// concurrent streaming connections per owner across all their agents.
const defaultMaxConnectionsPerOwner = 10

// connectionFairness tracks concurrent streaming connections per
// owner, grounded on the same lazily-populated-map-guarded-by-one-
// mutex shape as lib/agentlock (itself grounded on lib/github's etag
// cache) — here counting rather than locking.
type connectionFairness struct {
	mu    sync.Mutex
	count map[ids.OwnerID]int
	max   int
}

func newConnectionFairness(max int) *connectionFairness {
	return &connectionFairness{count: make(map[ids.OwnerID]int), max: max}
}

// Acquire reserves one connection slot for ownerID. Returns false
// (reserving nothing) if the owner is already at the limit.
func (f *connectionFairness) Acquire(ownerID ids.OwnerID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.count[ownerID] >= f.max {
		return false
	}
	f.count[ownerID]++
	return true
}

// Release frees one connection slot for ownerID.
func (f *connectionFairness) Release(ownerID ids.OwnerID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count[ownerID]--
	if f.count[ownerID] <= 0 {
		delete(f.count, ownerID)
	}
}

// inboundMessageRate is §4.5's per-session inbound rate limit: 100
// msg/s, with a small burst allowance so a client that briefly catches
// up after a pause is not punished for its prior idleness.
const inboundMessagesPerSecond = 100
const inboundBurst = 20

func newInboundLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(inboundMessagesPerSecond), inboundBurst)
}

// streamIdleTimeout and streamKeepalivePing implement §4.5's
// per-connection limits: no ping/pong observed within the idle window
// closes the connection; a keepalive ping is sent on this cadence to
// keep ordinary idle-but-open connections alive.
const (
	streamIdleTimeout   = 5 * time.Minute
	streamKeepalivePing = 30 * time.Second
)
