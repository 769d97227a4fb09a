// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

package edge

import (
	"fmt"
	"net/http"

	"github.com/auraswarm/swarmctl/internal/identity"
	"github.com/auraswarm/swarmctl/internal/registry"
	"github.com/auraswarm/swarmctl/lib/ids"
)

type sessionView struct {
	SessionID string `json:"session_id"`
	AgentID   string `json:"agent_id"`
	OwnerID   string `json:"owner_id"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

func toSessionView(s registry.Session) sessionView {
	return sessionView{
		SessionID: s.SessionID.String(),
		AgentID:   s.AgentID.String(),
		OwnerID:   s.OwnerID.String(),
		Status:    s.Status.String(),
		CreatedAt: s.CreatedAt.Format(timeLayout),
	}
}

// createSessionResponse matches §6's documented shape: the session
// plus a ready-to-dial ws_url for the streaming upgrade.
type createSessionResponse struct {
	SessionID string `json:"session_id"`
	WSURL     string `json:"ws_url"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request, claims identity.Claims) {
	agentID, ok := parseAgentID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid", "malformed agent_id")
		return
	}
	session, err := s.core.IssueSession(r.Context(), claims.OwnerID, agentID)
	if err != nil {
		s.writeControlError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createSessionResponse{
		SessionID: session.SessionID.String(),
		WSURL:     fmt.Sprintf("/v1/sessions/%s/ws", session.SessionID.String()),
	})
}

func parseSessionID(r *http.Request) (ids.SessionID, bool) {
	raw := r.PathValue("sid")
	sessionID, err := ids.ParseSessionID(raw)
	if err != nil {
		return ids.SessionID{}, false
	}
	return sessionID, true
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, claims identity.Claims) {
	sessionID, ok := parseSessionID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid", "malformed session_id")
		return
	}
	session, err := s.core.GetSession(r.Context(), claims.OwnerID, sessionID)
	if err != nil {
		s.writeControlError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionView(session))
}
