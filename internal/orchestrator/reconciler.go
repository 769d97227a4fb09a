// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"time"

	"github.com/auraswarm/swarmctl/internal/registry"
	"github.com/auraswarm/swarmctl/lib/ids"
)

// reconcilerMaxBackoff caps the watch-stream reconnect backoff.
const reconcilerMaxBackoff = 30 * time.Second

// StatusUpdater is the subset of the Registry's interface the
// reconciler needs, so it can be driven against a fake in tests
// without a real SQLite store.
type StatusUpdater interface {
	GetAgent(ctx context.Context, agentID ids.AgentID) (registry.Agent, error)
	UpdateAgentStatus(ctx context.Context, agentID ids.AgentID, newStatus registry.AgentStatus) (registry.Agent, error)
}

// Reconciler drives agent registry state from the pod watch stream,
// reconnecting with exponential backoff and resuming with a
// list-and-diff whenever the stream is disrupted.
type Reconciler struct {
	driver   *Driver
	registry StatusUpdater
	logger   sinkLogger
}

// sinkLogger is the minimal logging surface the reconciler uses,
// satisfied by *slog.Logger.
type sinkLogger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NewReconciler constructs a Reconciler.
func NewReconciler(driver *Driver, reg StatusUpdater, logger sinkLogger) *Reconciler {
	return &Reconciler{driver: driver, registry: reg, logger: logger}
}

// Run blocks, watching the pod stream and reconciling registry state
// until ctx is cancelled. On stream disruption it reconnects with
// exponential backoff (1s doubling, capped at reconcilerMaxBackoff)
// and resumes with a one-shot list-and-diff so events observed during
// the outage are not missed.
func (r *Reconciler) Run(ctx context.Context) {
	backoff := time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		if err := r.resumeFromList(ctx); err != nil {
			r.logger.Error("reconciler: list-and-diff resume failed", "error", err)
		}

		events, err := r.driver.scheduler.WatchPods(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Warn("reconciler: watch stream failed to open, retrying", "error", err, "backoff", backoff)
			if !r.sleep(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		backoff = time.Second
		r.drain(ctx, events)

		if ctx.Err() != nil {
			return
		}
		r.logger.Warn("reconciler: watch stream closed, reconnecting", "backoff", backoff)
		if !r.sleep(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > reconcilerMaxBackoff {
		next = reconcilerMaxBackoff
	}
	return next
}

func (r *Reconciler) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-r.driver.clock.After(d):
		return true
	}
}

// resumeFromList lists every pod directly and reconciles registry
// state from that snapshot, independent of any watch event. Called
// once before (re)opening the watch stream so a disruption never
// drops an Applied/Deleted transition that happened while disconnected.
func (r *Reconciler) resumeFromList(ctx context.Context) error {
	pods, err := r.driver.scheduler.ListPods(ctx)
	if err != nil {
		return err
	}
	for _, pod := range pods {
		r.reconcileApplied(ctx, pod)
	}
	return nil
}

func (r *Reconciler) drain(ctx context.Context, events <-chan PodEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			switch event.Type {
			case PodEventApplied:
				r.reconcileApplied(ctx, event.Pod)
			case PodEventDeleted:
				r.reconcileDeleted(ctx, event.Pod.AgentID)
			}
		}
	}
}

// derivedStatus maps a pod's (phase, ready) observation to an agent
// lifecycle status, per the specification's reconciliation table.
// The zero AgentStatus return means "no-op": the observation does not
// correspond to any status transition.
func derivedStatus(phase PodPhase, ready bool) registry.AgentStatus {
	switch {
	case phase == PodPhaseRunning && ready:
		return registry.AgentStatusRunning
	case phase == PodPhaseRunning && !ready:
		return registry.AgentStatusProvisioning
	case phase == PodPhasePending:
		return registry.AgentStatusProvisioning
	case phase == PodPhaseFailed:
		return registry.AgentStatusError
	default:
		return registry.AgentStatusUnspecified
	}
}

func (r *Reconciler) reconcileApplied(ctx context.Context, pod PodInfo) {
	if pod.PodIP != "" {
		r.driver.cache.Set(pod.AgentID, pod.PodIP+":8080")
	}

	next := derivedStatus(pod.Phase, pod.Ready)
	if next == registry.AgentStatusUnspecified {
		return
	}

	agent, err := r.registry.GetAgent(ctx, pod.AgentID)
	if err != nil {
		r.logger.Warn("reconciler: observed pod for unknown agent", "agent_id", pod.AgentID.String(), "error", err)
		return
	}

	// Hibernation is authoritative: the pod is expected to be absent
	// while an agent is Hibernating, so a stray Applied observation
	// (e.g. a slow-to-terminate pod) must not override it.
	if agent.Status == registry.AgentStatusHibernating {
		return
	}
	if agent.Status == next {
		return
	}

	if _, err := r.registry.UpdateAgentStatus(ctx, pod.AgentID, next); err != nil {
		r.logger.Error("reconciler: updating agent status from pod observation", "agent_id", pod.AgentID.String(), "error", err)
	}
}

func (r *Reconciler) reconcileDeleted(ctx context.Context, agentID ids.AgentID) {
	r.driver.cache.Evict(agentID)

	agent, err := r.registry.GetAgent(ctx, agentID)
	if err != nil {
		return
	}
	if agent.Status == registry.AgentStatusHibernating {
		return
	}
	if _, err := r.registry.UpdateAgentStatus(ctx, agentID, registry.AgentStatusStopped); err != nil {
		r.logger.Error("reconciler: marking agent stopped after pod deletion", "agent_id", agentID.String(), "error", err)
	}
}
