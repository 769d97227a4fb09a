// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

package registry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/auraswarm/swarmctl/internal/registry"
	"github.com/auraswarm/swarmctl/lib/clock"
	"github.com/auraswarm/swarmctl/lib/ids"
)

func openTestStore(t *testing.T) (*registry.Store, *clock.FakeClock) {
	t.Helper()
	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	store, err := registry.Open(registry.Config{
		Path:     ":memory:",
		PoolSize: 1,
		Clock:    fake,
	})
	if err != nil {
		t.Fatalf("registry.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, fake
}

func newTestAgent(t *testing.T, owner ids.OwnerID, status registry.AgentStatus, at time.Time) registry.Agent {
	t.Helper()
	agentID, err := ids.NewAgentID()
	if err != nil {
		t.Fatalf("NewAgentID: %v", err)
	}
	return registry.Agent{
		AgentID:   agentID,
		OwnerID:   owner,
		Name:      "demo",
		Status:    status,
		Spec:      registry.Spec{CPUMillicores: 500, MemoryMB: 512, RuntimeVersion: "v1"},
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func TestPutGetAgentRoundTrip(t *testing.T) {
	store, clk := openTestStore(t)
	ctx := context.Background()
	owner, err := ids.NewOwnerID()
	if err != nil {
		t.Fatalf("NewOwnerID: %v", err)
	}
	agent := newTestAgent(t, owner, registry.AgentStatusProvisioning, clk.Now())

	if err := store.PutAgent(ctx, agent); err != nil {
		t.Fatalf("PutAgent: %v", err)
	}

	got, err := store.GetAgent(ctx, agent.AgentID)
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if got.AgentID != agent.AgentID || got.OwnerID != agent.OwnerID || got.Name != agent.Name {
		t.Fatalf("GetAgent round trip mismatch: got %+v, want %+v", got, agent)
	}
}

func TestGetAgentNotFound(t *testing.T) {
	store, _ := openTestStore(t)
	missing, err := ids.NewAgentID()
	if err != nil {
		t.Fatalf("NewAgentID: %v", err)
	}
	_, err = store.GetAgent(context.Background(), missing)
	if !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("GetAgent(missing) error = %v, want ErrNotFound", err)
	}
}

func TestUpdateAgentStatusMaintainsIndex(t *testing.T) {
	store, clk := openTestStore(t)
	ctx := context.Background()
	owner, _ := ids.NewOwnerID()
	agent := newTestAgent(t, owner, registry.AgentStatusProvisioning, clk.Now())
	if err := store.PutAgent(ctx, agent); err != nil {
		t.Fatalf("PutAgent: %v", err)
	}

	clk.Advance(time.Minute)
	updated, err := store.UpdateAgentStatus(ctx, agent.AgentID, registry.AgentStatusRunning)
	if err != nil {
		t.Fatalf("UpdateAgentStatus: %v", err)
	}
	if updated.Status != registry.AgentStatusRunning {
		t.Fatalf("Status = %v, want Running", updated.Status)
	}
	if !updated.UpdatedAt.After(agent.UpdatedAt) {
		t.Fatalf("UpdatedAt did not advance")
	}

	owners, err := store.ListAgentsByOwner(ctx, owner)
	if err != nil {
		t.Fatalf("ListAgentsByOwner: %v", err)
	}
	if len(owners) != 1 || owners[0].Status != registry.AgentStatusRunning {
		t.Fatalf("ListAgentsByOwner = %+v, want one Running agent", owners)
	}
}

func TestListAndCountAgentsByOwner(t *testing.T) {
	store, clk := openTestStore(t)
	ctx := context.Background()
	owner, _ := ids.NewOwnerID()
	other, _ := ids.NewOwnerID()

	for i := 0; i < 3; i++ {
		agent := newTestAgent(t, owner, registry.AgentStatusRunning, clk.Now())
		if err := store.PutAgent(ctx, agent); err != nil {
			t.Fatalf("PutAgent: %v", err)
		}
	}
	otherAgent := newTestAgent(t, other, registry.AgentStatusRunning, clk.Now())
	if err := store.PutAgent(ctx, otherAgent); err != nil {
		t.Fatalf("PutAgent: %v", err)
	}

	count, err := store.CountAgentsByOwner(ctx, owner)
	if err != nil {
		t.Fatalf("CountAgentsByOwner: %v", err)
	}
	if count != 3 {
		t.Fatalf("CountAgentsByOwner = %d, want 3", count)
	}

	list, err := store.ListAgentsByOwner(ctx, owner)
	if err != nil {
		t.Fatalf("ListAgentsByOwner: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("ListAgentsByOwner returned %d agents, want 3", len(list))
	}
	for _, a := range list {
		if a.OwnerID != owner {
			t.Fatalf("ListAgentsByOwner leaked agent from another owner: %+v", a)
		}
	}
}

func TestDeleteAgentRemovesIndexEntry(t *testing.T) {
	store, clk := openTestStore(t)
	ctx := context.Background()
	owner, _ := ids.NewOwnerID()
	agent := newTestAgent(t, owner, registry.AgentStatusStopped, clk.Now())
	if err := store.PutAgent(ctx, agent); err != nil {
		t.Fatalf("PutAgent: %v", err)
	}

	if err := store.DeleteAgent(ctx, agent.AgentID); err != nil {
		t.Fatalf("DeleteAgent: %v", err)
	}

	if _, err := store.GetAgent(ctx, agent.AgentID); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("GetAgent after delete = %v, want ErrNotFound", err)
	}
	count, err := store.CountAgentsByOwner(ctx, owner)
	if err != nil {
		t.Fatalf("CountAgentsByOwner: %v", err)
	}
	if count != 0 {
		t.Fatalf("CountAgentsByOwner after delete = %d, want 0", count)
	}
}

func TestSessionLifecycle(t *testing.T) {
	store, clk := openTestStore(t)
	ctx := context.Background()
	owner, _ := ids.NewOwnerID()
	agent := newTestAgent(t, owner, registry.AgentStatusRunning, clk.Now())
	if err := store.PutAgent(ctx, agent); err != nil {
		t.Fatalf("PutAgent: %v", err)
	}

	sessionID, err := ids.NewSessionID()
	if err != nil {
		t.Fatalf("NewSessionID: %v", err)
	}
	session := registry.Session{
		SessionID: sessionID,
		AgentID:   agent.AgentID,
		OwnerID:   owner,
		Status:    registry.SessionStatusActive,
		CreatedAt: clk.Now(),
	}
	if err := store.PutSession(ctx, session); err != nil {
		t.Fatalf("PutSession: %v", err)
	}

	sessions, err := store.ListSessionsByAgent(ctx, agent.AgentID)
	if err != nil {
		t.Fatalf("ListSessionsByAgent: %v", err)
	}
	if len(sessions) != 1 || sessions[0].SessionID != sessionID {
		t.Fatalf("ListSessionsByAgent = %+v, want one session %s", sessions, sessionID)
	}

	closed, err := store.UpdateSessionStatus(ctx, sessionID, registry.SessionStatusClosed)
	if err != nil {
		t.Fatalf("UpdateSessionStatus: %v", err)
	}
	if closed.Status != registry.SessionStatusClosed || closed.ClosedAt == nil {
		t.Fatalf("closed session = %+v, want Closed with ClosedAt set", closed)
	}
}

func TestUserCacheRoundTrip(t *testing.T) {
	store, clk := openTestStore(t)
	ctx := context.Background()
	owner, _ := ids.NewOwnerID()
	record := registry.UserCacheRecord{OwnerID: owner, NamespaceID: "ns-1", LastSeenAt: clk.Now()}

	if err := store.PutUser(ctx, record); err != nil {
		t.Fatalf("PutUser: %v", err)
	}
	got, err := store.GetUser(ctx, owner)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.NamespaceID != record.NamespaceID {
		t.Fatalf("GetUser.NamespaceID = %q, want %q", got.NamespaceID, record.NamespaceID)
	}
}
