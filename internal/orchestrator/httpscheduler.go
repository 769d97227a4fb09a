// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/auraswarm/swarmctl/lib/ids"
)

// createPodTimeout, deletePodTimeout, and getPodTimeout bound the
// plain create/delete/get REST calls, matching the 5s default deadline
// applied to every boundary crossing elsewhere in the control plane.
// WatchPods has no timeout of its own — it is a long-lived GET, torn
// down by context cancellation, same as the chat stream's deadline-less
// idle-timeout design.
const (
	createPodTimeout = 5 * time.Second
	deletePodTimeout = 5 * time.Second
	getPodTimeout    = 5 * time.Second
)

// HTTPScheduler implements PodScheduler against a real orchestrator's
// plain REST API: CreatePod/DeletePod/GetPod/ListPods are ordinary
// request/response calls, and WatchPods opens a long-lived GET that
// streams newline-delimited JSON pod-event objects.
type HTTPScheduler struct {
	client   *http.Client
	baseURL  string
	template TemplateConfig
}

// NewHTTPScheduler builds a scheduler against the orchestrator's
// baseURL (e.g. "https://orchestrator.internal"), resolving every
// CreatePod call's full pod body from template (loaded once at
// startup via LoadTemplateConfig). A nil client defaults to
// http.DefaultClient.
func NewHTTPScheduler(baseURL string, template TemplateConfig, client *http.Client) *HTTPScheduler {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPScheduler{client: client, baseURL: baseURL, template: template}
}

// podWire is the orchestrator API's wire shape for a single pod,
// shared by the create request body and the get/list/watch responses.
type podWire struct {
	Name             string            `json:"name,omitempty"`
	RuntimeClassName string            `json:"runtime_class_name,omitempty"`
	Image            string            `json:"image,omitempty"`
	Env              map[string]string `json:"env,omitempty"`

	CPUMillicores int `json:"cpu_millicores,omitempty"`
	MemoryMB      int `json:"memory_mb,omitempty"`

	VolumeClaimName string `json:"volume_claim_name,omitempty"`
	VolumeSubpath   string `json:"volume_subpath,omitempty"`

	ReadinessInitialDelaySeconds int    `json:"readiness_initial_delay_seconds,omitempty"`
	ReadinessPeriodSeconds       int    `json:"readiness_period_seconds,omitempty"`
	LivenessInitialDelaySeconds  int    `json:"liveness_initial_delay_seconds,omitempty"`
	LivenessPeriodSeconds        int    `json:"liveness_period_seconds,omitempty"`
	HealthPath                   string `json:"health_path,omitempty"`

	RunAsNonRoot           bool `json:"run_as_non_root,omitempty"`
	RunAsUID               int  `json:"run_as_uid,omitempty"`
	ReadOnlyRootFilesystem bool `json:"read_only_root_filesystem,omitempty"`
	DropAllCapabilities    bool `json:"drop_all_capabilities,omitempty"`

	AgentID string `json:"agent_id"`
	OwnerID string `json:"owner_id"`

	Phase string `json:"phase,omitempty"`
	Ready bool   `json:"ready,omitempty"`
	PodIP string `json:"pod_ip,omitempty"`
}

// toCreateWire renders a fully-resolved PodTemplate as the orchestrator
// API's create-pod request body.
func toCreateWire(agentID ids.AgentID, ownerID ids.OwnerID, tmpl PodTemplate) podWire {
	return podWire{
		Name:                         tmpl.Name,
		RuntimeClassName:             tmpl.RuntimeClassName,
		Image:                        tmpl.Image,
		Env:                          tmpl.Env,
		CPUMillicores:                tmpl.CPUMillicores,
		MemoryMB:                     tmpl.MemoryMB,
		VolumeClaimName:              tmpl.VolumeClaimName,
		VolumeSubpath:                tmpl.VolumeSubpath,
		ReadinessInitialDelaySeconds: tmpl.ReadinessInitialDelaySeconds,
		ReadinessPeriodSeconds:       tmpl.ReadinessPeriodSeconds,
		LivenessInitialDelaySeconds:  tmpl.LivenessInitialDelaySeconds,
		LivenessPeriodSeconds:        tmpl.LivenessPeriodSeconds,
		HealthPath:                   tmpl.HealthPath,
		RunAsNonRoot:                 tmpl.RunAsNonRoot,
		RunAsUID:                     tmpl.RunAsUID,
		ReadOnlyRootFilesystem:       tmpl.ReadOnlyRootFilesystem,
		DropAllCapabilities:          tmpl.DropAllCapabilities,
		AgentID:                      agentID.String(),
		OwnerID:                      ownerID.String(),
	}
}

func (p podWire) toPodInfo() (PodInfo, error) {
	agentID, err := ids.ParseAgentID(p.AgentID)
	if err != nil {
		return PodInfo{}, fmt.Errorf("orchestrator: invalid agent_id in pod response: %w", err)
	}
	return PodInfo{
		AgentID: agentID,
		Phase:   PodPhase(p.Phase),
		Ready:   p.Ready,
		PodIP:   p.PodIP,
	}, nil
}

// CreatePod implements PodScheduler.
func (s *HTTPScheduler) CreatePod(ctx context.Context, spec PodSpec) error {
	ctx, cancel := context.WithTimeout(ctx, createPodTimeout)
	defer cancel()

	tmpl := BuildPodTemplate(s.template, spec.AgentID, spec.OwnerID, spec.Spec)
	body := toCreateWire(spec.AgentID, spec.OwnerID, tmpl)
	resp, err := s.doJSON(ctx, http.MethodPost, "/v1/pods", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Idempotent create: a 409 means the pod already exists, which is
	// success, not an error — the caller never attempts update-in-place.
	if resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusConflict {
		return nil
	}
	return fmt.Errorf("orchestrator: create pod %s returned status %d", spec.AgentID.PodName(), resp.StatusCode)
}

// DeletePod implements PodScheduler.
func (s *HTTPScheduler) DeletePod(ctx context.Context, agentID ids.AgentID) error {
	ctx, cancel := context.WithTimeout(ctx, deletePodTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.baseURL+"/v1/pods/"+agentID.PodName(), nil)
	if err != nil {
		return fmt.Errorf("orchestrator: building delete request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("orchestrator: deleting pod %s: %w", agentID.PodName(), err)
	}
	defer resp.Body.Close()

	// A pod that does not exist is success, not an error.
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return fmt.Errorf("orchestrator: delete pod %s returned status %d", agentID.PodName(), resp.StatusCode)
}

// GetPod implements PodScheduler.
func (s *HTTPScheduler) GetPod(ctx context.Context, agentID ids.AgentID) (PodInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, getPodTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1/pods/"+agentID.PodName(), nil)
	if err != nil {
		return PodInfo{}, fmt.Errorf("orchestrator: building get request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return PodInfo{}, fmt.Errorf("orchestrator: getting pod %s: %w", agentID.PodName(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return PodInfo{}, ErrPodNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return PodInfo{}, fmt.Errorf("orchestrator: get pod %s returned status %d", agentID.PodName(), resp.StatusCode)
	}

	var wire podWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return PodInfo{}, fmt.Errorf("orchestrator: decoding pod %s: %w", agentID.PodName(), err)
	}
	return wire.toPodInfo()
}

// ListPods implements PodScheduler.
func (s *HTTPScheduler) ListPods(ctx context.Context) ([]PodInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, getPodTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1/pods", nil)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: building list request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: listing pods: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("orchestrator: list pods returned status %d", resp.StatusCode)
	}

	var wire []podWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("orchestrator: decoding pod list: %w", err)
	}
	pods := make([]PodInfo, 0, len(wire))
	for _, w := range wire {
		info, err := w.toPodInfo()
		if err != nil {
			return nil, err
		}
		pods = append(pods, info)
	}
	return pods, nil
}

// podEventWire is the watch stream's newline-delimited wire shape: one
// JSON object per line, each naming its event type plus the pod it
// describes.
type podEventWire struct {
	Type string  `json:"type"`
	Pod  podWire `json:"pod"`
}

// WatchPods implements PodScheduler. It opens one long-lived GET and
// decodes the response body as newline-delimited JSON, emitting one
// PodEvent per line until the connection ends or ctx is cancelled; the
// caller (Reconciler.Run) owns reconnect-with-backoff, this call only
// owns a single connection's lifetime.
func (s *HTTPScheduler) WatchPods(ctx context.Context) (<-chan PodEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1/pods/watch", nil)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: building watch request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: opening pod watch stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("orchestrator: pod watch stream returned status %d", resp.StatusCode)
	}

	events := make(chan PodEvent)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var wire podEventWire
			if err := json.Unmarshal(line, &wire); err != nil {
				continue
			}
			info, err := wire.Pod.toPodInfo()
			if err != nil {
				continue
			}
			eventType := PodEventApplied
			if wire.Type == "deleted" {
				eventType = PodEventDeleted
			}
			select {
			case events <- PodEvent{Type: eventType, Pod: info}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

// doJSON issues a request with a JSON-encoded body against the
// scheduler's base URL.
func (s *HTTPScheduler) doJSON(ctx context.Context, method, path string, body any) (*http.Response, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: encoding request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("orchestrator: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: request to %s failed: %w", path, err)
	}
	return resp, nil
}
