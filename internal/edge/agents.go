// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

package edge

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/auraswarm/swarmctl/internal/identity"
	"github.com/auraswarm/swarmctl/internal/registry"
	"github.com/auraswarm/swarmctl/lib/ids"
)

// agentView is the JSON representation of an Agent on the public
// surface. A dedicated view type, rather than serializing
// registry.Agent directly, keeps the wire format stable independent of
// the registry's CBOR field tags and omits RecentEvents (served
// separately by GET /v1/agents/{id}/logs).
type agentView struct {
	AgentID   string   `json:"agent_id"`
	OwnerID   string   `json:"owner_id"`
	Name      string   `json:"name"`
	Status    string   `json:"status"`
	Spec      specView `json:"spec"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

type specView struct {
	CPUMillicores  int    `json:"cpu_millicores"`
	MemoryMB       int    `json:"memory_mb"`
	RuntimeVersion string `json:"runtime_version"`
}

func toAgentView(a registry.Agent) agentView {
	return agentView{
		AgentID: a.AgentID.String(),
		OwnerID: a.OwnerID.String(),
		Name:    a.Name,
		Status:  a.Status.String(),
		Spec: specView{
			CPUMillicores:  a.Spec.CPUMillicores,
			MemoryMB:       a.Spec.MemoryMB,
			RuntimeVersion: a.Spec.RuntimeVersion,
		},
		CreatedAt: a.CreatedAt.Format(timeLayout),
		UpdatedAt: a.UpdatedAt.Format(timeLayout),
	}
}

const timeLayout = "2006-01-02T15:04:05.999999999Z07:00"

func parseAgentID(r *http.Request) (ids.AgentID, bool) {
	raw := r.PathValue("id")
	agentID, err := ids.ParseAgentID(raw)
	if err != nil {
		return ids.AgentID{}, false
	}
	return agentID, true
}

type listAgentsResponse struct {
	Agents []agentView `json:"agents"`
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request, claims identity.Claims) {
	agents, err := s.core.ListAgents(r.Context(), claims.OwnerID)
	if err != nil {
		s.writeControlError(w, err)
		return
	}
	views := make([]agentView, 0, len(agents))
	for _, a := range agents {
		views = append(views, toAgentView(a))
	}
	writeJSON(w, http.StatusOK, listAgentsResponse{Agents: views})
}

type createAgentRequest struct {
	Name string    `json:"name"`
	Spec *specView `json:"spec"`
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request, claims identity.Claims) {
	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid", "malformed request body")
		return
	}

	spec := registry.Spec{RuntimeVersion: "default"}
	if req.Spec != nil {
		spec = registry.Spec{
			CPUMillicores:  req.Spec.CPUMillicores,
			MemoryMB:       req.Spec.MemoryMB,
			RuntimeVersion: req.Spec.RuntimeVersion,
		}
	}

	agent, err := s.core.CreateAgent(r.Context(), claims.OwnerID, req.Name, spec)
	if err != nil {
		s.writeControlError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAgentView(agent))
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request, claims identity.Claims) {
	agentID, ok := parseAgentID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid", "malformed agent_id")
		return
	}
	agent, err := s.core.GetAgent(r.Context(), claims.OwnerID, agentID)
	if err != nil {
		s.writeControlError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAgentView(agent))
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request, claims identity.Claims) {
	agentID, ok := parseAgentID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid", "malformed agent_id")
		return
	}
	if err := s.core.DeleteAgent(r.Context(), claims.OwnerID, agentID); err != nil {
		s.writeControlError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request, claims identity.Claims) {
	s.dispatchTransition(w, r, claims, s.core.StartAgent)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request, claims identity.Claims) {
	s.dispatchTransition(w, r, claims, s.core.StopAgent)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request, claims identity.Claims) {
	s.dispatchTransition(w, r, claims, s.core.RestartAgent)
}

func (s *Server) handleHibernate(w http.ResponseWriter, r *http.Request, claims identity.Claims) {
	s.dispatchTransition(w, r, claims, s.core.HibernateAgent)
}

func (s *Server) handleWake(w http.ResponseWriter, r *http.Request, claims identity.Claims) {
	s.dispatchTransition(w, r, claims, s.core.WakeAgent)
}

// dispatchTransition is shared by every single-agent lifecycle
// transition endpoint: they all take (ctx, owner, agent_id) and return
// (registry.Agent, error), differing only in which Control Core method
// is called.
func (s *Server) dispatchTransition(
	w http.ResponseWriter,
	r *http.Request,
	claims identity.Claims,
	op func(ctx context.Context, ownerID ids.OwnerID, agentID ids.AgentID) (registry.Agent, error),
) {
	agentID, ok := parseAgentID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid", "malformed agent_id")
		return
	}
	agent, err := op(r.Context(), claims.OwnerID, agentID)
	if err != nil {
		s.writeControlError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAgentView(agent))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, claims identity.Claims) {
	s.handleGetAgent(w, r, claims)
}

type logsResponse struct {
	Events []logEventView `json:"events"`
}

type logEventView struct {
	At      string `json:"at"`
	Message string `json:"message"`
}

// handleLogs serves GET /v1/agents/{id}/logs from the agent's own
// RecentEvents ring rather than reaching into the pod — the runtime's
// internal log surface is an external collaborator outside this
// repository's scope. Supports ?tail= (last N events) and ?since=
// (RFC 3339 timestamp, exclusive).
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request, claims identity.Claims) {
	agentID, ok := parseAgentID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid", "malformed agent_id")
		return
	}
	agent, err := s.core.GetAgent(r.Context(), claims.OwnerID, agentID)
	if err != nil {
		s.writeControlError(w, err)
		return
	}

	events := agent.RecentEvents
	if since := r.URL.Query().Get("since"); since != "" {
		if cutoff, err := parseTime(since); err == nil {
			filtered := events[:0:0]
			for _, e := range events {
				if e.At.After(cutoff) {
					filtered = append(filtered, e)
				}
			}
			events = filtered
		}
	}
	if tail := r.URL.Query().Get("tail"); tail != "" {
		if n, err := parseTail(tail); err == nil && n >= 0 && n < len(events) {
			events = events[len(events)-n:]
		}
	}

	views := make([]logEventView, 0, len(events))
	for _, e := range events {
		views = append(views, logEventView{At: e.At.Format(timeLayout), Message: e.Message})
	}
	writeJSON(w, http.StatusOK, logsResponse{Events: views})
}
