// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/auraswarm/swarmctl/internal/registry"
	"github.com/auraswarm/swarmctl/lib/ids"
)

func TestHTTPSchedulerCreatePodSendsResolvedTemplate(t *testing.T) {
	var received podWire
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/pods" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decoding request body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	tmpl := TemplateConfig{RuntimeClassName: "microvm", Image: "agent-runtime:v1"}
	scheduler := NewHTTPScheduler(server.URL, tmpl, server.Client())

	agentID, _ := ids.NewAgentID()
	ownerID, _ := ids.NewOwnerID()
	err := scheduler.CreatePod(t.Context(), PodSpec{
		AgentID: agentID,
		OwnerID: ownerID,
		Spec:    registry.Spec{CPUMillicores: 500, MemoryMB: 512},
	})
	if err != nil {
		t.Fatalf("CreatePod: %v", err)
	}
	if received.RuntimeClassName != "microvm" {
		t.Errorf("runtime_class_name = %q, want microvm", received.RuntimeClassName)
	}
	if received.CPUMillicores != 500 {
		t.Errorf("cpu_millicores = %d, want 500", received.CPUMillicores)
	}
	if received.AgentID != agentID.String() {
		t.Errorf("agent_id = %q, want %q", received.AgentID, agentID.String())
	}
}

func TestHTTPSchedulerCreatePodTreatsConflictAsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()

	scheduler := NewHTTPScheduler(server.URL, TemplateConfig{}, server.Client())
	agentID, _ := ids.NewAgentID()
	ownerID, _ := ids.NewOwnerID()
	if err := scheduler.CreatePod(t.Context(), PodSpec{AgentID: agentID, OwnerID: ownerID}); err != nil {
		t.Fatalf("CreatePod should treat 409 as success, got: %v", err)
	}
}

func TestHTTPSchedulerGetPodNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	scheduler := NewHTTPScheduler(server.URL, TemplateConfig{}, server.Client())
	agentID, _ := ids.NewAgentID()
	_, err := scheduler.GetPod(t.Context(), agentID)
	if err != ErrPodNotFound {
		t.Fatalf("GetPod error = %v, want ErrPodNotFound", err)
	}
}

func TestHTTPSchedulerDeletePodTreatsNotFoundAsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	scheduler := NewHTTPScheduler(server.URL, TemplateConfig{}, server.Client())
	agentID, _ := ids.NewAgentID()
	if err := scheduler.DeletePod(t.Context(), agentID); err != nil {
		t.Fatalf("DeletePod should treat 404 as success, got: %v", err)
	}
}

func TestHTTPSchedulerListPods(t *testing.T) {
	agentID, _ := ids.NewAgentID()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]podWire{
			{AgentID: agentID.String(), Phase: "Running", Ready: true, PodIP: "10.0.0.5"},
		})
	}))
	defer server.Close()

	scheduler := NewHTTPScheduler(server.URL, TemplateConfig{}, server.Client())
	pods, err := scheduler.ListPods(t.Context())
	if err != nil {
		t.Fatalf("ListPods: %v", err)
	}
	if len(pods) != 1 || pods[0].PodIP != "10.0.0.5" {
		t.Fatalf("ListPods = %+v", pods)
	}
}

func TestHTTPSchedulerWatchPodsDecodesNDJSON(t *testing.T) {
	agentID, _ := ids.NewAgentID()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("response writer does not support flushing")
		}
		line, _ := json.Marshal(podEventWire{Type: "applied", Pod: podWire{AgentID: agentID.String(), Phase: "Running", Ready: true}})
		w.Write(line)
		w.Write([]byte("\n"))
		flusher.Flush()
	}))
	defer server.Close()

	scheduler := NewHTTPScheduler(server.URL, TemplateConfig{}, server.Client())
	events, err := scheduler.WatchPods(t.Context())
	if err != nil {
		t.Fatalf("WatchPods: %v", err)
	}

	event, ok := <-events
	if !ok {
		t.Fatal("expected one event, channel closed immediately")
	}
	if event.Type != PodEventApplied || event.Pod.AgentID != agentID {
		t.Fatalf("event = %+v", event)
	}
}
