// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import "github.com/auraswarm/swarmctl/internal/registry"

// Operation is one of the caller-initiated (as opposed to
// observation-driven) lifecycle operations of §4.4. Observation-driven
// transitions (pod_ready, pod_fail, health_fail, pod_gone, idle_tick)
// are applied directly by the Orchestrator Driver's reconciler and the
// idle detector respectively and do not pass through this gate.
type Operation int

const (
	OpUnspecified Operation = iota
	OpStart
	OpStop
	OpHibernate
	OpWake
	OpRestart
	OpDelete
)

func (op Operation) String() string {
	switch op {
	case OpStart:
		return "start"
	case OpStop:
		return "stop"
	case OpHibernate:
		return "hibernate"
	case OpWake:
		return "wake"
	case OpRestart:
		return "restart"
	case OpDelete:
		return "delete"
	default:
		return "unspecified"
	}
}

// isRemoval operations delete the agent record entirely rather than
// transitioning it to a new status.
func (op Operation) isRemoval() bool { return op == OpDelete }

// transitions is the literal table of §4.4's *italicized* (caller-
// initiated) edges. A (state, operation) pair absent from this table
// fails with InvalidState.
var transitions = map[registry.AgentStatus]map[Operation]registry.AgentStatus{
	registry.AgentStatusRunning: {
		OpStop:      registry.AgentStatusStopping,
		OpHibernate: registry.AgentStatusHibernating,
	},
	registry.AgentStatusIdle: {
		OpStart:     registry.AgentStatusRunning,
		OpStop:      registry.AgentStatusStopping,
		OpHibernate: registry.AgentStatusHibernating,
	},
	registry.AgentStatusHibernating: {
		OpWake: registry.AgentStatusProvisioning,
		OpStop: registry.AgentStatusStopping,
	},
	registry.AgentStatusStopped: {
		OpStart:  registry.AgentStatusProvisioning,
		OpDelete: registry.AgentStatusUnspecified, // removal; target unused
	},
	registry.AgentStatusError: {
		OpRestart: registry.AgentStatusProvisioning,
		OpStop:    registry.AgentStatusStopping,
		OpDelete:  registry.AgentStatusUnspecified,
	},
}

// allowedOperations lists the operations permitted from a state, for
// InvalidState's error detail.
func allowedOperations(current registry.AgentStatus) []Operation {
	ops := make([]Operation, 0, len(transitions[current]))
	for op := range transitions[current] {
		ops = append(ops, op)
	}
	return ops
}

// applyOperation looks up the (current, op) pair in the transition
// table. remove is true when op is a removal (delete) rather than a
// status change.
func applyOperation(current registry.AgentStatus, op Operation) (next registry.AgentStatus, remove bool, ok bool) {
	byOp, exists := transitions[current]
	if !exists {
		return registry.AgentStatusUnspecified, false, false
	}
	next, ok = byOp[op]
	if !ok {
		return registry.AgentStatusUnspecified, false, false
	}
	return next, op.isRemoval(), true
}
