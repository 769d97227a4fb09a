// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

// Package orchestrator implements the control plane's Orchestrator
// Driver: the abstraction over the underlying microVM scheduler that
// turns agent_id/spec pairs into running pods, tracks their observed
// state via a watch stream, and resolves agent_id to a reachable
// network endpoint.
package orchestrator

import (
	"context"

	"github.com/auraswarm/swarmctl/internal/registry"
	"github.com/auraswarm/swarmctl/lib/ids"
)

// PodPhase mirrors the scheduler's coarse pod lifecycle phase.
type PodPhase string

const (
	PodPhasePending PodPhase = "Pending"
	PodPhaseRunning PodPhase = "Running"
	PodPhaseFailed  PodPhase = "Failed"
)

// PodSpec is the resource and identity request for a single agent pod.
type PodSpec struct {
	AgentID ids.AgentID
	OwnerID ids.OwnerID
	Spec    registry.Spec
}

// PodInfo is the scheduler's current view of one agent's pod.
type PodInfo struct {
	AgentID ids.AgentID
	Phase   PodPhase
	Ready   bool

	// PodIP is empty until the scheduler has assigned one.
	PodIP string
}

// PodEventType distinguishes the two watch-stream event shapes the
// Orchestrator Driver reacts to.
type PodEventType int

const (
	PodEventApplied PodEventType = iota
	PodEventDeleted
)

// PodEvent is one observation from the pod watch stream.
type PodEvent struct {
	Type PodEventType
	Pod  PodInfo
}

// PodScheduler is the abstraction over the underlying microVM
// scheduler. The production implementation talks to the orchestrator's
// REST/watch API; tests use an in-memory double.
type PodScheduler interface {
	// CreatePod is idempotent create: if a pod for agent_id already
	// exists, implementations must return nil without attempting an
	// update-in-place.
	CreatePod(ctx context.Context, spec PodSpec) error

	// DeletePod deletes the pod for agent_id. A pod that does not
	// exist is success, not an error.
	DeletePod(ctx context.Context, agentID ids.AgentID) error

	// GetPod queries the scheduler directly for one pod's current
	// state. Used on endpoint-cache miss. Returns ErrPodNotFound if
	// absent.
	GetPod(ctx context.Context, agentID ids.AgentID) (PodInfo, error)

	// WatchPods opens the reconciliation watch stream over pods
	// labeled as swarm agents. The returned channel is closed when the
	// stream ends (including on error); callers distinguish clean
	// closure from disruption via the returned error channel semantics
	// of their own watch-loop driver, not this interface.
	WatchPods(ctx context.Context) (<-chan PodEvent, error)

	// ListPods performs a one-shot listing, used for list-and-diff
	// resume after a watch-stream reconnect.
	ListPods(ctx context.Context) ([]PodInfo, error)
}

// ErrPodNotFound is returned by GetPod when no pod exists for the
// given agent_id.
var ErrPodNotFound = errPodNotFound{}

type errPodNotFound struct{}

func (errPodNotFound) Error() string { return "orchestrator: pod not found" }
