// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/auraswarm/swarmctl/internal/registry"
	"github.com/auraswarm/swarmctl/lib/clock"
	"github.com/auraswarm/swarmctl/lib/ids"
)

// checkHealthTimeout bounds how long check_health waits for the
// agent's /health endpoint to answer.
const checkHealthTimeout = 5 * time.Second

// Driver is the Orchestrator Driver: schedule_agent, terminate_agent,
// get_pod_endpoint, check_health, plus the endpoint cache and
// reconciliation loop that keep it current.
type Driver struct {
	scheduler PodScheduler
	cache     *EndpointCache
	clock     clock.Clock
	logger    *slog.Logger
	client    *http.Client

	// lastSpecHash records the most recently scheduled spec hash per
	// agent, so a repeat schedule_agent call can detect (and log) a
	// spec that changed underneath an already-running pod without
	// attempting an update-in-place.
	specHashMu   sync.Mutex
	lastSpecHash map[ids.AgentID][32]byte
}

// Config holds the parameters for constructing a Driver.
type Config struct {
	Scheduler PodScheduler
	Clock     clock.Clock
	Logger    *slog.Logger

	// HTTPClient is used for check_health probes. Defaults to
	// http.DefaultClient with checkHealthTimeout applied per-request
	// via context, if nil.
	HTTPClient *http.Client
}

// NewDriver constructs a Driver from Config.
func NewDriver(cfg Config) (*Driver, error) {
	if cfg.Scheduler == nil {
		return nil, fmt.Errorf("orchestrator: Scheduler is required")
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("orchestrator: Clock is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &Driver{
		scheduler:    cfg.Scheduler,
		cache:        NewEndpointCache(cfg.Clock),
		clock:        cfg.Clock,
		logger:       logger,
		client:       client,
		lastSpecHash: make(map[ids.AgentID][32]byte),
	}, nil
}

// ScheduleAgent is an idempotent create: if the pod already exists,
// logs and returns success rather than attempting an update-in-place.
func (d *Driver) ScheduleAgent(ctx context.Context, agentID ids.AgentID, ownerID ids.OwnerID, spec registry.Spec) error {
	hash, err := podSpecHash(agentID, ownerID, spec)
	if err != nil {
		return fmt.Errorf("orchestrator: hashing pod spec: %w", err)
	}

	d.specHashMu.Lock()
	if prior, ok := d.lastSpecHash[agentID]; ok && prior != hash {
		d.logger.Warn("schedule_agent observed a changed spec for an agent with a prior schedule call",
			"agent_id", agentID.String())
	}
	d.specHashMu.Unlock()

	err = d.scheduler.CreatePod(ctx, PodSpec{AgentID: agentID, OwnerID: ownerID, Spec: spec})
	if err != nil {
		return fmt.Errorf("orchestrator: scheduling agent %s: %w", agentID, err)
	}

	d.specHashMu.Lock()
	d.lastSpecHash[agentID] = hash
	d.specHashMu.Unlock()
	d.logger.Info("scheduled agent pod", "agent_id", agentID.String())
	return nil
}

// TerminateAgent deletes the agent's pod. A 404 from the scheduler is
// success. The endpoint cache entry is evicted immediately,
// independent of whether the watch stream has yet observed the
// deletion.
func (d *Driver) TerminateAgent(ctx context.Context, agentID ids.AgentID) error {
	err := d.scheduler.DeletePod(ctx, agentID)
	d.cache.Evict(agentID)
	d.specHashMu.Lock()
	delete(d.lastSpecHash, agentID)
	d.specHashMu.Unlock()
	if err != nil && !errors.Is(err, ErrPodNotFound) {
		return fmt.Errorf("orchestrator: terminating agent %s: %w", agentID, err)
	}
	return nil
}

// GetPodEndpoint returns "ip:8080" for the agent, checking the cache
// first and querying the scheduler directly on miss.
func (d *Driver) GetPodEndpoint(ctx context.Context, agentID ids.AgentID) (string, bool, error) {
	if endpoint, ok := d.cache.Get(agentID); ok {
		return endpoint, true, nil
	}

	pod, err := d.scheduler.GetPod(ctx, agentID)
	if err != nil {
		if errors.Is(err, ErrPodNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("orchestrator: querying pod for agent %s: %w", agentID, err)
	}
	if pod.PodIP == "" {
		return "", false, nil
	}

	endpoint := pod.PodIP + ":8080"
	d.cache.Set(agentID, endpoint)
	return endpoint, true, nil
}

// CheckHealth performs a bounded GET against the agent's /health
// endpoint, resolving the endpoint first if necessary.
func (d *Driver) CheckHealth(ctx context.Context, agentID ids.AgentID) (bool, error) {
	endpoint, ok, err := d.GetPodEndpoint(ctx, agentID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, checkHealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+endpoint+"/health", nil)
	if err != nil {
		return false, fmt.Errorf("orchestrator: building health check request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return false, nil
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK, nil
}
