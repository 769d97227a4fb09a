// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

// Package lifecycle implements the control plane's Control Core: the
// seven-state agent lifecycle machine, ownership and quota
// enforcement, the hibernate/wake sequences, session issuance, and
// heartbeat ingestion. It is the only component that mutates Agent
// and Session status; the Registry is a dumb store and the
// Orchestrator Driver is a dumb pod-shepherd.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/auraswarm/swarmctl/internal/registry"
	"github.com/auraswarm/swarmctl/lib/agentlock"
	"github.com/auraswarm/swarmctl/lib/clock"
	"github.com/auraswarm/swarmctl/lib/ids"
)

const (
	defaultMaxAgentsPerOwner = 10
	defaultWakeTimeout       = 60 * time.Second
	// defaultIdleTimeout has no literal default in the specification
	// (only idle_timeout_seconds is named as a configuration knob); 15
	// minutes is chosen as a conservative bias toward keeping an agent
	// Running through ordinary think-time gaps between chat turns.
	defaultIdleTimeout = 15 * time.Minute

	hibernateNoticeTimeout = 3 * time.Second
)

// Registry is the subset of *registry.Store the Control Core needs.
// Narrowed to an interface so tests can substitute a fake without a
// real SQLite store.
type Registry interface {
	PutAgent(ctx context.Context, agent registry.Agent) error
	GetAgent(ctx context.Context, agentID ids.AgentID) (registry.Agent, error)
	ListAgentsByOwner(ctx context.Context, ownerID ids.OwnerID) ([]registry.Agent, error)
	CountAgentsByOwner(ctx context.Context, ownerID ids.OwnerID) (int, error)
	UpdateAgentStatus(ctx context.Context, agentID ids.AgentID, newStatus registry.AgentStatus) (registry.Agent, error)
	DeleteAgent(ctx context.Context, agentID ids.AgentID) error
	ListAllAgents(ctx context.Context) ([]registry.Agent, error)
	PutSession(ctx context.Context, session registry.Session) error
	GetSession(ctx context.Context, sessionID ids.SessionID) (registry.Session, error)
	UpdateSessionStatus(ctx context.Context, sessionID ids.SessionID, newStatus registry.SessionStatus) (registry.Session, error)
	ListSessionsByAgent(ctx context.Context, agentID ids.AgentID) ([]registry.Session, error)
}

// PodDriver is the subset of *orchestrator.Driver the Control Core
// needs.
type PodDriver interface {
	ScheduleAgent(ctx context.Context, agentID ids.AgentID, ownerID ids.OwnerID, spec registry.Spec) error
	TerminateAgent(ctx context.Context, agentID ids.AgentID) error
	GetPodEndpoint(ctx context.Context, agentID ids.AgentID) (string, bool, error)
}

// Core is the Control Core.
type Core struct {
	registry Registry
	driver   PodDriver
	clock    clock.Clock
	logger   *slog.Logger
	locks    *agentlock.Table
	client   *http.Client

	maxAgentsPerOwner int
	wakeTimeout       time.Duration
	idleTimeout       time.Duration
}

// Config holds the parameters for constructing a Core.
type Config struct {
	Registry Registry
	Driver   PodDriver
	Clock    clock.Clock
	Logger   *slog.Logger

	// MaxAgentsPerOwner defaults to 10 if zero.
	MaxAgentsPerOwner int
	// WakeTimeout defaults to 60s if zero.
	WakeTimeout time.Duration
	// IdleTimeout defaults to 15m if zero.
	IdleTimeout time.Duration
}

// NewCore constructs a Core.
func NewCore(cfg Config) (*Core, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("lifecycle: Registry is required")
	}
	if cfg.Driver == nil {
		return nil, fmt.Errorf("lifecycle: Driver is required")
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("lifecycle: Clock is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	maxAgents := cfg.MaxAgentsPerOwner
	if maxAgents == 0 {
		maxAgents = defaultMaxAgentsPerOwner
	}
	wakeTimeout := cfg.WakeTimeout
	if wakeTimeout == 0 {
		wakeTimeout = defaultWakeTimeout
	}
	idleTimeout := cfg.IdleTimeout
	if idleTimeout == 0 {
		idleTimeout = defaultIdleTimeout
	}

	return &Core{
		registry:          cfg.Registry,
		driver:            cfg.Driver,
		clock:             cfg.Clock,
		logger:            logger,
		locks:             agentlock.New(),
		client:            &http.Client{Timeout: 5 * time.Second},
		maxAgentsPerOwner: maxAgents,
		wakeTimeout:       wakeTimeout,
		idleTimeout:       idleTimeout,
	}, nil
}

// readOwned loads an agent and enforces §4.4's ownership rule. A
// mismatch logs a warning and fails with NotOwner; an absent agent
// fails with NotFound.
func (c *Core) readOwned(ctx context.Context, callerOwner ids.OwnerID, agentID ids.AgentID) (registry.Agent, error) {
	agent, err := c.registry.GetAgent(ctx, agentID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return registry.Agent{}, NotFound(fmt.Sprintf("agent %s not found", agentID))
		}
		return registry.Agent{}, Internal("reading agent", err)
	}
	if agent.OwnerID != callerOwner {
		c.logger.Warn("lifecycle: ownership mismatch", "agent_id", agentID.String(), "caller_owner", callerOwner.String(), "resource_owner", agent.OwnerID.String())
		return registry.Agent{}, NotOwner(agentID)
	}
	return agent, nil
}

// recordEvent appends an operational log line to an already-updated
// agent and persists it, logging (but not surfacing) a failure — the
// operation itself already succeeded; losing a log line must not turn
// that into a caller-visible error.
func (c *Core) recordEvent(ctx context.Context, agent *registry.Agent, message string) {
	agent.AppendEvent(c.clock.Now(), message)
	if err := c.registry.PutAgent(ctx, *agent); err != nil {
		c.logger.Warn("lifecycle: recording operational event failed", "agent_id", agent.AgentID.String(), "event", message, "error", err)
	}
}

// CreateAgent implements create_agent: validates the request, enforces
// the per-owner quota, persists a new Provisioning Agent, and schedules
// its pod.
func (c *Core) CreateAgent(ctx context.Context, ownerID ids.OwnerID, name string, spec registry.Spec) (registry.Agent, error) {
	if err := validateCreate(name, spec); err != nil {
		return registry.Agent{}, err
	}

	count, err := c.registry.CountAgentsByOwner(ctx, ownerID)
	if err != nil {
		return registry.Agent{}, Internal("counting agents by owner", err)
	}
	if count >= c.maxAgentsPerOwner {
		return registry.Agent{}, QuotaExceeded(ownerID, c.maxAgentsPerOwner)
	}

	agentID, err := ids.NewAgentID()
	if err != nil {
		return registry.Agent{}, Internal("generating agent id", err)
	}
	now := c.clock.Now()
	agent := registry.Agent{
		AgentID:   agentID,
		OwnerID:   ownerID,
		Name:      name,
		Status:    registry.AgentStatusProvisioning,
		Spec:      spec,
		CreatedAt: now,
		UpdatedAt: now,
	}
	agent.AppendEvent(now, "created")

	if err := c.registry.PutAgent(ctx, agent); err != nil {
		return registry.Agent{}, Internal("persisting new agent", err)
	}
	if err := c.driver.ScheduleAgent(ctx, agentID, ownerID, spec); err != nil {
		return registry.Agent{}, Upstream("scheduling new agent's pod", err)
	}
	return agent, nil
}

// GetAgent implements get_agent with ownership enforcement.
func (c *Core) GetAgent(ctx context.Context, callerOwner ids.OwnerID, agentID ids.AgentID) (registry.Agent, error) {
	return c.readOwned(ctx, callerOwner, agentID)
}

// ListAgents returns every agent owned by callerOwner.
func (c *Core) ListAgents(ctx context.Context, callerOwner ids.OwnerID) ([]registry.Agent, error) {
	agents, err := c.registry.ListAgentsByOwner(ctx, callerOwner)
	if err != nil {
		return nil, Internal("listing agents", err)
	}
	return agents, nil
}

// StartAgent implements the *start* operation: Idle→Running (no pod
// action; the pod is already running) or Stopped→Provisioning
// (reschedule the pod).
func (c *Core) StartAgent(ctx context.Context, callerOwner ids.OwnerID, agentID ids.AgentID) (registry.Agent, error) {
	unlock := c.locks.Lock(agentID)
	defer unlock()

	agent, err := c.readOwned(ctx, callerOwner, agentID)
	if err != nil {
		return registry.Agent{}, err
	}
	next, _, ok := applyOperation(agent.Status, OpStart)
	if !ok {
		return registry.Agent{}, InvalidState(agent.Status, allowedOperations(agent.Status))
	}

	if agent.Status == registry.AgentStatusStopped {
		if err := c.driver.ScheduleAgent(ctx, agentID, agent.OwnerID, agent.Spec); err != nil {
			return registry.Agent{}, Upstream("scheduling agent's pod on start", err)
		}
	}
	updated, err := c.registry.UpdateAgentStatus(ctx, agentID, next)
	if err != nil {
		return registry.Agent{}, Internal("updating agent status", err)
	}
	c.recordEvent(ctx, &updated, "start")
	return updated, nil
}

// StopAgent implements the *stop* operation: commands the orchestrator
// to terminate the pod and marks the agent Stopping. The reconciler
// later observes pod_gone and marks it Stopped.
func (c *Core) StopAgent(ctx context.Context, callerOwner ids.OwnerID, agentID ids.AgentID) (registry.Agent, error) {
	unlock := c.locks.Lock(agentID)
	defer unlock()

	agent, err := c.readOwned(ctx, callerOwner, agentID)
	if err != nil {
		return registry.Agent{}, err
	}
	next, _, ok := applyOperation(agent.Status, OpStop)
	if !ok {
		return registry.Agent{}, InvalidState(agent.Status, allowedOperations(agent.Status))
	}

	if err := c.driver.TerminateAgent(ctx, agentID); err != nil {
		return registry.Agent{}, Upstream("terminating agent's pod on stop", err)
	}
	updated, err := c.registry.UpdateAgentStatus(ctx, agentID, next)
	if err != nil {
		return registry.Agent{}, Internal("updating agent status", err)
	}
	c.recordEvent(ctx, &updated, "stop")
	return updated, nil
}

// RestartAgent implements the *restart* operation: only valid from
// Error. The specification does not itemize restart's sub-steps the
// way it does hibernate's; this best-effort-terminates any pod that
// might still exist (ignoring failure, since Error commonly means the
// pod is already gone) before scheduling a fresh one.
func (c *Core) RestartAgent(ctx context.Context, callerOwner ids.OwnerID, agentID ids.AgentID) (registry.Agent, error) {
	unlock := c.locks.Lock(agentID)
	defer unlock()

	agent, err := c.readOwned(ctx, callerOwner, agentID)
	if err != nil {
		return registry.Agent{}, err
	}
	next, _, ok := applyOperation(agent.Status, OpRestart)
	if !ok {
		return registry.Agent{}, InvalidState(agent.Status, allowedOperations(agent.Status))
	}

	if err := c.driver.TerminateAgent(ctx, agentID); err != nil {
		c.logger.Warn("lifecycle: best-effort terminate before restart failed", "agent_id", agentID.String(), "error", err)
	}
	if err := c.driver.ScheduleAgent(ctx, agentID, agent.OwnerID, agent.Spec); err != nil {
		return registry.Agent{}, Upstream("scheduling agent's pod on restart", err)
	}
	updated, err := c.registry.UpdateAgentStatus(ctx, agentID, next)
	if err != nil {
		return registry.Agent{}, Internal("updating agent status", err)
	}
	c.recordEvent(ctx, &updated, "restart")
	return updated, nil
}

// DeleteAgent implements the *delete* operation: only valid from
// Stopped or Error. Removes the registry record entirely.
func (c *Core) DeleteAgent(ctx context.Context, callerOwner ids.OwnerID, agentID ids.AgentID) error {
	unlock := c.locks.Lock(agentID)
	defer unlock()

	agent, err := c.readOwned(ctx, callerOwner, agentID)
	if err != nil {
		return err
	}
	if _, _, ok := applyOperation(agent.Status, OpDelete); !ok {
		return InvalidState(agent.Status, allowedOperations(agent.Status))
	}

	if err := c.driver.TerminateAgent(ctx, agentID); err != nil {
		c.logger.Warn("lifecycle: best-effort terminate before delete failed", "agent_id", agentID.String(), "error", err)
	}
	if err := c.registry.DeleteAgent(ctx, agentID); err != nil {
		return Internal("deleting agent", err)
	}
	return nil
}

// HibernateAgent implements the five-step hibernate sequence of §4.4.
// Step ordering is load-bearing: the orchestrator terminate command
// (step 4) must complete before the Hibernating status write (step 5)
// so the reconciler's delete-observer does not race a not-yet-written
// status and incorrectly conclude the agent was stopped, not
// hibernated.
func (c *Core) HibernateAgent(ctx context.Context, callerOwner ids.OwnerID, agentID ids.AgentID) (registry.Agent, error) {
	unlock := c.locks.Lock(agentID)
	defer unlock()

	agent, err := c.readOwned(ctx, callerOwner, agentID)
	if err != nil {
		return registry.Agent{}, err
	}
	next, _, ok := applyOperation(agent.Status, OpHibernate)
	if !ok {
		return registry.Agent{}, InvalidState(agent.Status, allowedOperations(agent.Status))
	}

	sessions, err := c.registry.ListSessionsByAgent(ctx, agentID)
	if err != nil {
		return registry.Agent{}, Internal("listing sessions before hibernate", err)
	}
	for _, session := range sessions {
		if session.Status != registry.SessionStatusActive {
			continue
		}
		if _, err := c.registry.UpdateSessionStatus(ctx, session.SessionID, registry.SessionStatusClosed); err != nil {
			return registry.Agent{}, Internal("closing session before hibernate", err)
		}
	}

	c.notifyPodHibernate(ctx, agentID)

	if err := c.driver.TerminateAgent(ctx, agentID); err != nil {
		return registry.Agent{}, Upstream("terminating agent's pod on hibernate", err)
	}

	updated, err := c.registry.UpdateAgentStatus(ctx, agentID, next)
	if err != nil {
		return registry.Agent{}, Internal("updating agent status", err)
	}
	c.recordEvent(ctx, &updated, "hibernate")
	return updated, nil
}

// notifyPodHibernate best-effort-notifies the pod that it is about to
// be torn down. Failure (including the pod already being unreachable)
// is logged, never surfaced — per §4.4 this step is explicitly
// non-blocking.
func (c *Core) notifyPodHibernate(ctx context.Context, agentID ids.AgentID) {
	endpoint, ok, err := c.driver.GetPodEndpoint(ctx, agentID)
	if err != nil || !ok {
		return
	}
	noticeCtx, cancel := context.WithTimeout(ctx, hibernateNoticeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(noticeCtx, http.MethodPost, "http://"+endpoint+"/hibernate", nil)
	if err != nil {
		return
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("lifecycle: best-effort hibernate notice failed", "agent_id", agentID.String(), "error", err)
		return
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()
}

// WakeAgent implements the wake operation: steps 1-2 of §4.4's
// wake/auto-wake sequence (issuing a session against a Hibernating
// agent triggers the same sequence internally via wakeLocked, called
// directly from IssueSession rather than through this exported entry
// point).
func (c *Core) WakeAgent(ctx context.Context, callerOwner ids.OwnerID, agentID ids.AgentID) (registry.Agent, error) {
	unlock := c.locks.Lock(agentID)
	defer unlock()

	agent, err := c.readOwned(ctx, callerOwner, agentID)
	if err != nil {
		return registry.Agent{}, err
	}
	if _, _, ok := applyOperation(agent.Status, OpWake); !ok {
		return registry.Agent{}, InvalidState(agent.Status, allowedOperations(agent.Status))
	}
	return c.wakeLocked(ctx, agent)
}

// wakeLocked assumes the caller already holds agentID's lock. It
// writes status=Provisioning, issues schedule_agent, then polls the
// registry once per second for up to wakeTimeout waiting for Running
// (success) or Error (failure).
func (c *Core) wakeLocked(ctx context.Context, agent registry.Agent) (registry.Agent, error) {
	if _, err := c.registry.UpdateAgentStatus(ctx, agent.AgentID, registry.AgentStatusProvisioning); err != nil {
		return registry.Agent{}, Internal("updating agent status to provisioning for wake", err)
	}
	if err := c.driver.ScheduleAgent(ctx, agent.AgentID, agent.OwnerID, agent.Spec); err != nil {
		return registry.Agent{}, Upstream("scheduling agent's pod on wake", err)
	}

	deadline := c.clock.Now().Add(c.wakeTimeout)
	for {
		current, err := c.registry.GetAgent(ctx, agent.AgentID)
		if err != nil {
			return registry.Agent{}, Internal("polling agent status during wake", err)
		}
		switch current.Status {
		case registry.AgentStatusRunning:
			return current, nil
		case registry.AgentStatusError:
			return registry.Agent{}, Upstream("agent entered error state while waking", nil)
		}
		if !c.clock.Now().Before(deadline) {
			return registry.Agent{}, SchedulerTimeout(fmt.Sprintf("agent %s did not become running within wake_timeout", agent.AgentID))
		}
		select {
		case <-ctx.Done():
			return registry.Agent{}, Internal("context cancelled during wake", ctx.Err())
		case <-c.clock.After(time.Second):
		}
	}
}

// IssueSession implements the five-step session issuance sequence of
// §4.4, including implicit auto-wake when the agent is Hibernating.
func (c *Core) IssueSession(ctx context.Context, callerOwner ids.OwnerID, agentID ids.AgentID) (registry.Session, error) {
	unlock := c.locks.Lock(agentID)
	defer unlock()

	agent, err := c.readOwned(ctx, callerOwner, agentID)
	if err != nil {
		return registry.Session{}, err
	}

	if agent.Status == registry.AgentStatusHibernating {
		agent, err = c.wakeLocked(ctx, agent)
		if err != nil {
			return registry.Session{}, err
		}
	}

	if agent.Status != registry.AgentStatusRunning && agent.Status != registry.AgentStatusIdle {
		return registry.Session{}, InvalidState(agent.Status, []Operation{})
	}

	sessionID, err := ids.NewSessionID()
	if err != nil {
		return registry.Session{}, Internal("generating session id", err)
	}
	session := registry.Session{
		SessionID: sessionID,
		AgentID:   agentID,
		OwnerID:   callerOwner,
		Status:    registry.SessionStatusActive,
		CreatedAt: c.clock.Now(),
	}
	if err := c.registry.PutSession(ctx, session); err != nil {
		return registry.Session{}, Internal("persisting session", err)
	}

	if agent.Status == registry.AgentStatusIdle {
		if _, err := c.registry.UpdateAgentStatus(ctx, agentID, registry.AgentStatusRunning); err != nil {
			return registry.Session{}, Internal("transitioning agent out of idle for new session", err)
		}
	}
	return session, nil
}

// GetSession implements get_session with ownership enforcement on the
// session's owner_id, per invariant 4 (session-agent linkage).
func (c *Core) GetSession(ctx context.Context, callerOwner ids.OwnerID, sessionID ids.SessionID) (registry.Session, error) {
	session, err := c.registry.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return registry.Session{}, NotFound(fmt.Sprintf("session %s not found", sessionID))
		}
		return registry.Session{}, Internal("reading session", err)
	}
	if session.OwnerID != callerOwner {
		c.logger.Warn("lifecycle: session ownership mismatch", "session_id", sessionID.String(), "caller_owner", callerOwner.String())
		return registry.Session{}, NotOwner(sessionID)
	}
	return session, nil
}

// HeartbeatReport is the body the agent pod posts to the internal
// heartbeat endpoint.
type HeartbeatReport struct {
	AgentID        ids.AgentID
	OwnerID        ids.OwnerID
	Status         registry.AgentStatus
	Uptime         time.Duration
	ActiveSessions int
	LastError      string
}

// Heartbeat implements heartbeat ingestion per §4.4: updates
// last_heartbeat_at and, if the reported status differs, the stored
// status — except it never moves an agent out of Hibernating,
// Stopping, or Stopped, since those are control-plane-authoritative.
// A heartbeat for an unknown agent_id, or one whose owner_id does not
// match, is logged and otherwise ignored (not an error — the pod
// cannot observe the effect either way).
func (c *Core) Heartbeat(ctx context.Context, report HeartbeatReport) error {
	unlock := c.locks.Lock(report.AgentID)
	defer unlock()

	agent, err := c.registry.GetAgent(ctx, report.AgentID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			c.logger.Warn("lifecycle: heartbeat for unknown agent", "agent_id", report.AgentID.String())
			return nil
		}
		return Internal("reading agent for heartbeat", err)
	}
	if agent.OwnerID != report.OwnerID {
		c.logger.Warn("lifecycle: heartbeat owner mismatch", "agent_id", report.AgentID.String(), "reported_owner", report.OwnerID.String(), "actual_owner", agent.OwnerID.String())
		return nil
	}

	now := c.clock.Now()
	agent.LastHeartbeatAt = &now
	if report.LastError != "" {
		agent.LastError = report.LastError
	}

	authoritative := agent.Status == registry.AgentStatusHibernating ||
		agent.Status == registry.AgentStatusStopping ||
		agent.Status == registry.AgentStatusStopped
	if !authoritative && report.Status != registry.AgentStatusUnspecified && report.Status != agent.Status {
		agent.Status = report.Status
	}
	agent.UpdatedAt = now

	if err := c.registry.PutAgent(ctx, agent); err != nil {
		return Internal("persisting heartbeat", err)
	}
	return nil
}

// ResolveAgentEndpoint implements endpoint resolution for the Edge
// Proxy: get_agent → check status=Running → get_pod_endpoint. Any
// failure along the way is reported uniformly as EndpointUnavailable.
func (c *Core) ResolveAgentEndpoint(ctx context.Context, agentID ids.AgentID) (string, error) {
	agent, err := c.registry.GetAgent(ctx, agentID)
	if err != nil {
		return "", EndpointUnavailable(fmt.Sprintf("agent %s not found", agentID))
	}
	if agent.Status != registry.AgentStatusRunning {
		return "", EndpointUnavailable(fmt.Sprintf("agent %s is not running", agentID))
	}
	endpoint, ok, err := c.driver.GetPodEndpoint(ctx, agentID)
	if err != nil || !ok {
		return "", EndpointUnavailable(fmt.Sprintf("agent %s has no resolvable endpoint", agentID))
	}
	return endpoint, nil
}
