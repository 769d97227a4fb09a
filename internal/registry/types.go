// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry implements the control plane's durable, owner-scoped
// store of Agent, Session, and cached-user records. It is the single
// source of truth: the Control Core and the Orchestrator Driver are its
// only writers.
package registry

import (
	"time"

	"github.com/auraswarm/swarmctl/lib/ids"
)

// AgentStatus is one of the seven agent lifecycle states. Encoded as a
// fixed-width integer so that the agents_by_status index sorts
// deterministically by status, matching the encoding contract in §3.
type AgentStatus uint8

const (
	// AgentStatusUnspecified is the zero value and is never persisted;
	// its presence on a decoded record indicates a data-model bug.
	AgentStatusUnspecified AgentStatus = 0
	AgentStatusProvisioning AgentStatus = 1
	AgentStatusRunning      AgentStatus = 2
	AgentStatusIdle         AgentStatus = 3
	AgentStatusHibernating  AgentStatus = 4
	AgentStatusStopping     AgentStatus = 5
	AgentStatusStopped      AgentStatus = 6
	AgentStatusError        AgentStatus = 7
)

// String renders the status the way it appears in the public HTTP
// surface (lowercase, matching §6's JSON examples).
func (s AgentStatus) String() string {
	switch s {
	case AgentStatusProvisioning:
		return "provisioning"
	case AgentStatusRunning:
		return "running"
	case AgentStatusIdle:
		return "idle"
	case AgentStatusHibernating:
		return "hibernating"
	case AgentStatusStopping:
		return "stopping"
	case AgentStatusStopped:
		return "stopped"
	case AgentStatusError:
		return "error"
	default:
		return "unspecified"
	}
}

// SessionStatus is one of the two session states.
type SessionStatus uint8

const (
	SessionStatusUnspecified SessionStatus = 0
	SessionStatusActive      SessionStatus = 1
	SessionStatusClosed      SessionStatus = 2
)

func (s SessionStatus) String() string {
	switch s {
	case SessionStatusActive:
		return "active"
	case SessionStatusClosed:
		return "closed"
	default:
		return "unspecified"
	}
}

// Spec is the resource and runtime-version request for an Agent,
// validated at create_agent time (§3 boundaries: cpu in [100,4000],
// memory in [128,8192]).
type Spec struct {
	CPUMillicores  int    `cbor:"1,keyasint"`
	MemoryMB       int    `cbor:"2,keyasint"`
	RuntimeVersion string `cbor:"3,keyasint"`
}

// Agent is a long-lived logical workload owned by exactly one owner.
type Agent struct {
	AgentID ids.AgentID `cbor:"1,keyasint"`
	OwnerID ids.OwnerID `cbor:"2,keyasint"`
	Name    string      `cbor:"3,keyasint"`
	Status  AgentStatus `cbor:"4,keyasint"`
	Spec    Spec        `cbor:"5,keyasint"`

	CreatedAt       time.Time  `cbor:"6,keyasint"`
	UpdatedAt       time.Time  `cbor:"7,keyasint"`
	LastHeartbeatAt *time.Time `cbor:"8,keyasint,omitempty"`

	// LastError carries the most recent heartbeat-reported failure when
	// Status is Error. Advisory only; not part of any invariant.
	LastError string `cbor:"9,keyasint,omitempty"`

	// RecentEvents is a capped ring of lifecycle-transition log lines,
	// newest last, serving GET /v1/agents/{id}/logs (§6) without
	// reaching into the agent pod. Capped at maxRecentEvents entries.
	RecentEvents []AgentEvent `cbor:"10,keyasint,omitempty"`
}

// AgentEvent is one entry in an Agent's operational log.
type AgentEvent struct {
	At      time.Time `cbor:"1,keyasint"`
	Message string    `cbor:"2,keyasint"`
}

// maxRecentEvents bounds the RecentEvents ring so a chatty agent cannot
// grow its registry record without bound.
const maxRecentEvents = 200

// AppendEvent appends a log line to the agent's event ring, evicting
// the oldest entry once the ring is full.
func (a *Agent) AppendEvent(at time.Time, message string) {
	a.RecentEvents = append(a.RecentEvents, AgentEvent{At: at, Message: message})
	if overflow := len(a.RecentEvents) - maxRecentEvents; overflow > 0 {
		a.RecentEvents = a.RecentEvents[overflow:]
	}
}

// Session is an attachment of a client to an Agent.
type Session struct {
	SessionID ids.SessionID `cbor:"1,keyasint"`
	AgentID   ids.AgentID   `cbor:"2,keyasint"`
	OwnerID   ids.OwnerID   `cbor:"3,keyasint"`
	Status    SessionStatus `cbor:"4,keyasint"`
	CreatedAt time.Time     `cbor:"5,keyasint"`
	ClosedAt  *time.Time    `cbor:"6,keyasint,omitempty"`
}

// UserCacheRecord is a denormalized snapshot of the last successful
// identity validation for an owner. It is a soft cache only — the
// Identity Adapter, not the Registry, is authoritative.
type UserCacheRecord struct {
	OwnerID     ids.OwnerID `cbor:"1,keyasint"`
	NamespaceID string      `cbor:"2,keyasint"`
	LastSeenAt  time.Time   `cbor:"3,keyasint"`
}
