// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

// Package edge implements the control plane's Edge Proxy: the public
// HTTP/JSON surface of §6, bearer authentication against the Identity
// Adapter, request validation, dispatch into the Control Core, and the
// bidirectional streaming proxy between a client and an agent pod's
// chat endpoint.
package edge

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/auraswarm/swarmctl/internal/identity"
	"github.com/auraswarm/swarmctl/internal/lifecycle"
	"github.com/auraswarm/swarmctl/lib/clock"
)

// Config holds the parameters for constructing a Server.
type Config struct {
	Core     *lifecycle.Core
	Verifier *identity.Verifier
	Clock    clock.Clock
	Logger   *slog.Logger

	// MaxConnectionsPerOwner bounds concurrent streaming connections per
	// owner across all their agents. Defaults to 10.
	MaxConnectionsPerOwner int

	// HealthVersion is reported verbatim in GET /health's version field.
	HealthVersion string
}

// Server is the Edge Proxy. It holds no state of its own beyond what
// request handling needs — the Control Core remains the only mutator
// of Agent and Session records.
type Server struct {
	core     *lifecycle.Core
	verifier *identity.Verifier
	clock    clock.Clock
	logger   *slog.Logger

	fairness *connectionFairness

	healthVersion string
}

// NewServer constructs a Server and its routed http.Handler.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Core == nil {
		return nil, errRequired("Core")
	}
	if cfg.Verifier == nil {
		return nil, errRequired("Verifier")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	maxConns := cfg.MaxConnectionsPerOwner
	if maxConns == 0 {
		maxConns = defaultMaxConnectionsPerOwner
	}
	version := cfg.HealthVersion
	if version == "" {
		version = "dev"
	}

	return &Server{
		core:          cfg.Core,
		verifier:      cfg.Verifier,
		clock:         clk,
		logger:        logger,
		fairness:      newConnectionFairness(maxConns),
		healthVersion: version,
	}, nil
}

func errRequired(field string) error {
	return &configError{field: field}
}

type configError struct{ field string }

func (e *configError) Error() string { return "edge: " + e.field + " is required" }

// Handler builds the routed http.Handler for the public surface: the
// owner-facing API plus the unauthenticated health check. It does not
// include /internal/heartbeat — that endpoint is only reachable from
// agent pods on the internal listener built by InternalHandler, per
// §6's split between the public and internal HTTP surfaces. Per §4.5
// step 1-4: extract bearer, parse/validate, dispatch, map errors.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /v1/agents", s.withAuth(s.handleListAgents))
	mux.HandleFunc("POST /v1/agents", s.withAuth(s.handleCreateAgent))
	mux.HandleFunc("GET /v1/agents/{id}", s.withAuth(s.handleGetAgent))
	mux.HandleFunc("DELETE /v1/agents/{id}", s.withAuth(s.handleDeleteAgent))
	mux.HandleFunc("POST /v1/agents/{id}:start", s.withAuth(s.handleStart))
	mux.HandleFunc("POST /v1/agents/{id}:stop", s.withAuth(s.handleStop))
	mux.HandleFunc("POST /v1/agents/{id}:restart", s.withAuth(s.handleRestart))
	mux.HandleFunc("POST /v1/agents/{id}:hibernate", s.withAuth(s.handleHibernate))
	mux.HandleFunc("POST /v1/agents/{id}:wake", s.withAuth(s.handleWake))
	mux.HandleFunc("GET /v1/agents/{id}/logs", s.withAuth(s.handleLogs))
	mux.HandleFunc("GET /v1/agents/{id}/status", s.withAuth(s.handleStatus))
	mux.HandleFunc("POST /v1/agents/{id}/sessions", s.withAuth(s.handleCreateSession))

	mux.HandleFunc("GET /v1/sessions/{sid}", s.withAuth(s.handleGetSession))
	mux.HandleFunc("GET /v1/sessions/{sid}/ws", s.withAuth(s.handleStream))

	return mux
}

// InternalHandler builds the routed http.Handler for the internal-only
// surface: just /internal/heartbeat, which agent pods call to report
// liveness. It carries no bearer auth of its own — the network
// topology (a listener bound to an address reachable only from agent
// pods, never exposed publicly) is what restricts access to it.
func (s *Server) InternalHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /internal/heartbeat", s.handleHeartbeat)
	return mux
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Version: s.healthVersion})
}

// outboundTimeout bounds outbound calls this package itself issues
// beyond what the Control Core already deadlines (§5: "5s default").
const outboundTimeout = 5 * time.Second

func (s *Server) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, outboundTimeout)
}
