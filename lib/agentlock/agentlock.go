// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

// Package agentlock serializes read-modify-write operations against a
// single agent_id. The Registry guarantees storage-level atomicity for
// each individual call, but a lifecycle operation like hibernate or
// wake reads an Agent, makes a decision, and writes it back across
// several Registry calls; without per-agent serialization above the
// storage layer, two concurrent requests for the same agent_id could
// interleave and leave the agent in a state neither request intended.
package agentlock

import (
	"sync"

	"github.com/auraswarm/swarmctl/lib/ids"
)

// Table holds one mutex per agent_id seen so far. Mutexes are created
// lazily on first use and never removed — like an etag cache, it has
// no eviction policy and is bounded by the number of distinct agents
// the process has handled a request for.
type Table struct {
	mu    sync.Mutex
	locks map[ids.AgentID]*sync.Mutex
}

// New constructs an empty Table.
func New() *Table {
	return &Table{locks: make(map[ids.AgentID]*sync.Mutex)}
}

func (t *Table) lockFor(agentID ids.AgentID) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.locks[agentID]
	if !ok {
		m = &sync.Mutex{}
		t.locks[agentID] = m
	}
	return m
}

// Lock acquires the mutex for agentID, blocking until it is available,
// and returns a function that releases it. Callers should defer the
// returned function.
func (t *Table) Lock(agentID ids.AgentID) func() {
	m := t.lockFor(agentID)
	m.Lock()
	return m.Unlock
}
