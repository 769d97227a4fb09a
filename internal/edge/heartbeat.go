// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

package edge

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/auraswarm/swarmctl/internal/lifecycle"
	"github.com/auraswarm/swarmctl/internal/registry"
	"github.com/auraswarm/swarmctl/lib/ids"
)

// heartbeatRequest is the body an agent pod posts to the internal
// heartbeat endpoint, per §4.4/§6.
type heartbeatRequest struct {
	AgentID        string `json:"agent_id"`
	OwnerID        string `json:"owner_id"`
	Status         string `json:"status"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	ActiveSessions int    `json:"active_sessions"`
	LastError      string `json:"last_error"`
}

type heartbeatResponse struct {
	Ack      bool     `json:"ack"`
	Commands []string `json:"commands"`
}

// handleHeartbeat is unauthenticated by bearer credential — the agent
// pod is not an identity-service-backed caller — but is restricted to
// reporting on its own agent_id/owner_id pair, which the Control Core
// cross-checks against the registry record and silently ignores on
// mismatch (never an error the pod can observe, per §4.4).
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid", "malformed heartbeat body")
		return
	}

	agentID, err := ids.ParseAgentID(req.AgentID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid", "malformed agent_id")
		return
	}
	ownerID, err := ids.ParseOwnerID(req.OwnerID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid", "malformed owner_id")
		return
	}

	report := lifecycle.HeartbeatReport{
		AgentID:        agentID,
		OwnerID:        ownerID,
		Status:         statusFromString(req.Status),
		Uptime:         time.Duration(req.UptimeSeconds) * time.Second,
		ActiveSessions: req.ActiveSessions,
		LastError:      req.LastError,
	}
	if err := s.core.Heartbeat(r.Context(), report); err != nil {
		s.writeControlError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, heartbeatResponse{Ack: true, Commands: []string{}})
}

func statusFromString(raw string) registry.AgentStatus {
	switch raw {
	case "provisioning":
		return registry.AgentStatusProvisioning
	case "running":
		return registry.AgentStatusRunning
	case "idle":
		return registry.AgentStatusIdle
	case "hibernating":
		return registry.AgentStatusHibernating
	case "stopping":
		return registry.AgentStatusStopping
	case "stopped":
		return registry.AgentStatusStopped
	case "error":
		return registry.AgentStatusError
	default:
		return registry.AgentStatusUnspecified
	}
}
