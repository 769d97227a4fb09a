// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

package edge

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/auraswarm/swarmctl/lib/ids"
)

func TestCreateAgentRequiresBearer(t *testing.T) {
	h := newTestHarness(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/agents", nil)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestCreateAndGetAgentRoundTrip(t *testing.T) {
	h := newTestHarness(t)
	owner, _ := ids.NewOwnerID()
	token := h.mintToken(t, owner)

	body, _ := json.Marshal(createAgentRequest{
		Name: "demo",
		Spec: &specView{CPUMillicores: 500, MemoryMB: 512, RuntimeVersion: "v1"},
	})
	req := newAuthedRequest(t, http.MethodPost, "/v1/agents", body, token)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", rec.Code, rec.Body.String())
	}

	var created agentView
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding create response: %v", err)
	}
	if created.Status != "provisioning" {
		t.Fatalf("status = %q, want provisioning", created.Status)
	}

	getReq := newAuthedRequest(t, http.MethodGet, "/v1/agents/"+created.AgentID, nil, token)
	getRec := httptest.NewRecorder()
	h.handler.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get status = %d body=%s", getRec.Code, getRec.Body.String())
	}
}

func TestGetAgentCrossOwnerReturnsForbidden(t *testing.T) {
	h := newTestHarness(t)
	ownerA, _ := ids.NewOwnerID()
	ownerB, _ := ids.NewOwnerID()
	tokenA := h.mintToken(t, ownerA)
	tokenB := h.mintToken(t, ownerB)

	body, _ := json.Marshal(createAgentRequest{Name: "demo", Spec: &specView{CPUMillicores: 500, MemoryMB: 512, RuntimeVersion: "v1"}})
	createReq := newAuthedRequest(t, http.MethodPost, "/v1/agents", body, tokenA)
	createRec := httptest.NewRecorder()
	h.handler.ServeHTTP(createRec, createReq)
	var created agentView
	if err := json.Unmarshal(createRec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding create response: %v", err)
	}

	getReq := newAuthedRequest(t, http.MethodGet, "/v1/agents/"+created.AgentID, nil, tokenB)
	getRec := httptest.NewRecorder()
	h.handler.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", getRec.Code)
	}
}

func TestStopOnProvisioningAgentReturnsConflict(t *testing.T) {
	h := newTestHarness(t)
	owner, _ := ids.NewOwnerID()
	token := h.mintToken(t, owner)

	body, _ := json.Marshal(createAgentRequest{Name: "demo", Spec: &specView{CPUMillicores: 500, MemoryMB: 512, RuntimeVersion: "v1"}})
	createReq := newAuthedRequest(t, http.MethodPost, "/v1/agents", body, token)
	createRec := httptest.NewRecorder()
	h.handler.ServeHTTP(createRec, createReq)
	var created agentView
	if err := json.Unmarshal(createRec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding create response: %v", err)
	}

	stopReq := newAuthedRequest(t, http.MethodPost, "/v1/agents/"+created.AgentID+":stop", []byte{}, token)
	stopRec := httptest.NewRecorder()
	h.handler.ServeHTTP(stopRec, stopReq)
	if stopRec.Code != http.StatusConflict {
		t.Fatalf("status = %d body=%s, want 409", stopRec.Code, stopRec.Body.String())
	}
}

func TestCreateAgentQuotaExceededReturns429(t *testing.T) {
	h := newTestHarness(t)
	owner, _ := ids.NewOwnerID()
	token := h.mintToken(t, owner)

	spec := &specView{CPUMillicores: 500, MemoryMB: 512, RuntimeVersion: "v1"}
	for i := 0; i < 10; i++ {
		body, _ := json.Marshal(createAgentRequest{Name: "demo", Spec: spec})
		req := newAuthedRequest(t, http.MethodPost, "/v1/agents", body, token)
		rec := httptest.NewRecorder()
		h.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("create #%d status = %d body=%s", i, rec.Code, rec.Body.String())
		}
	}

	body, _ := json.Marshal(createAgentRequest{Name: "overflow", Spec: spec})
	req := newAuthedRequest(t, http.MethodPost, "/v1/agents", body, token)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
}

func TestHealthIsUnauthenticated(t *testing.T) {
	h := newTestHarness(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding health response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Fatalf("status = %q, want healthy", resp.Status)
	}
}

func TestHeartbeatForUnknownAgentIsAcked(t *testing.T) {
	h := newTestHarness(t)
	unknownAgent, _ := ids.NewAgentID()
	unknownOwner, _ := ids.NewOwnerID()

	body, _ := json.Marshal(heartbeatRequest{
		AgentID: unknownAgent.String(),
		OwnerID: unknownOwner.String(),
		Status:  "running",
	})
	req := httptest.NewRequest(http.MethodPost, "/internal/heartbeat", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.internalHandler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s, want 200", rec.Code, rec.Body.String())
	}
}
