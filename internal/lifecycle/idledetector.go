// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"context"
	"time"

	"github.com/auraswarm/swarmctl/internal/registry"
	"github.com/auraswarm/swarmctl/lib/ids"
)

// idleDetectorPeriod is the fixed 60s tick of §4.4's idle detector.
const idleDetectorPeriod = 60 * time.Second

// RunIdleDetector blocks, ticking every idleDetectorPeriod, until ctx
// is cancelled. Each tick scans every Running agent and transitions it
// to Idle if it has no Active session and has not been updated for
// longer than the Core's configured idle timeout. This is purely
// advisory (it biases later hibernation policy) and never fails the
// tick loop on an individual agent's error — it logs and continues.
func (c *Core) RunIdleDetector(ctx context.Context) {
	ticker := c.clock.NewTicker(idleDetectorPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.idleTick(ctx)
		}
	}
}

func (c *Core) idleTick(ctx context.Context) {
	agents, err := c.registry.ListAllAgents(ctx)
	if err != nil {
		c.logger.Error("lifecycle: idle detector: listing agents failed", "error", err)
		return
	}

	now := c.clock.Now()
	for _, agent := range agents {
		if agent.Status != registry.AgentStatusRunning {
			continue
		}
		if now.Sub(agent.UpdatedAt) <= c.idleTimeout {
			continue
		}
		if c.hasActiveSession(ctx, agent.AgentID) {
			continue
		}

		unlock := c.locks.Lock(agent.AgentID)
		if _, err := c.registry.UpdateAgentStatus(ctx, agent.AgentID, registry.AgentStatusIdle); err != nil {
			c.logger.Error("lifecycle: idle detector: marking agent idle failed", "agent_id", agent.AgentID.String(), "error", err)
		}
		unlock()
	}
}

func (c *Core) hasActiveSession(ctx context.Context, agentID ids.AgentID) bool {
	sessions, err := c.registry.ListSessionsByAgent(ctx, agentID)
	if err != nil {
		c.logger.Error("lifecycle: idle detector: listing sessions failed", "agent_id", agentID.String(), "error", err)
		return true // fail safe: assume active rather than risk a spurious idle transition
	}
	for _, session := range sessions {
		if session.Status == registry.SessionStatusActive {
			return true
		}
	}
	return false
}
