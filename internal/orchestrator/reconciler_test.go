// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/auraswarm/swarmctl/internal/orchestrator"
	"github.com/auraswarm/swarmctl/internal/registry"
	"github.com/auraswarm/swarmctl/lib/clock"
	"github.com/auraswarm/swarmctl/lib/ids"
)

func newTestRegistry(t *testing.T, clk clock.Clock) *registry.Store {
	t.Helper()
	store, err := registry.Open(registry.Config{Path: ":memory:", PoolSize: 1, Clock: clk})
	if err != nil {
		t.Fatalf("registry.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestReconcilerAppliedTransitionsToRunning(t *testing.T) {
	ctx := context.Background()
	clk := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	reg := newTestRegistry(t, clk)
	scheduler := orchestrator.NewFakeScheduler()
	driver, err := orchestrator.NewDriver(orchestrator.Config{Scheduler: scheduler, Clock: clk})
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}

	owner, _ := ids.NewOwnerID()
	agentID, _ := ids.NewAgentID()
	agent := registry.Agent{
		AgentID: agentID, OwnerID: owner, Name: "demo",
		Status: registry.AgentStatusProvisioning, CreatedAt: clk.Now(), UpdatedAt: clk.Now(),
	}
	if err := reg.PutAgent(ctx, agent); err != nil {
		t.Fatalf("PutAgent: %v", err)
	}

	reconciler := orchestrator.NewReconciler(driver, reg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	runCtx, cancel := context.WithCancel(ctx)
	go reconciler.Run(runCtx)
	defer cancel()

	// Give the reconciler's first list-and-diff pass and watch
	// registration a moment to complete before emitting the event it
	// needs to observe; the fake scheduler only broadcasts to watchers
	// registered at broadcast time.
	time.Sleep(20 * time.Millisecond)
	scheduler.SetPodState(agentID, orchestrator.PodPhaseRunning, true, "10.0.0.1")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := reg.GetAgent(ctx, agentID)
		if err != nil {
			t.Fatalf("GetAgent: %v", err)
		}
		if got.Status == registry.AgentStatusRunning {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("agent did not transition to Running within deadline")
}

func TestReconcilerDeletedMarksStoppedUnlessHibernating(t *testing.T) {
	ctx := context.Background()
	clk := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	reg := newTestRegistry(t, clk)
	scheduler := orchestrator.NewFakeScheduler()
	driver, err := orchestrator.NewDriver(orchestrator.Config{Scheduler: scheduler, Clock: clk})
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}

	owner, _ := ids.NewOwnerID()
	agentID, _ := ids.NewAgentID()
	agent := registry.Agent{
		AgentID: agentID, OwnerID: owner, Name: "demo",
		Status: registry.AgentStatusHibernating, CreatedAt: clk.Now(), UpdatedAt: clk.Now(),
	}
	if err := reg.PutAgent(ctx, agent); err != nil {
		t.Fatalf("PutAgent: %v", err)
	}

	if err := driver.ScheduleAgent(ctx, agentID, owner, registry.Spec{}); err != nil {
		t.Fatalf("ScheduleAgent: %v", err)
	}

	reconciler := orchestrator.NewReconciler(driver, reg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	runCtx, cancel := context.WithCancel(ctx)
	go reconciler.Run(runCtx)
	defer cancel()

	if err := scheduler.DeletePod(ctx, agentID); err != nil {
		t.Fatalf("DeletePod: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	got, err := reg.GetAgent(ctx, agentID)
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if got.Status != registry.AgentStatusHibernating {
		t.Fatalf("status = %v, want Hibernating to be preserved across pod deletion", got.Status)
	}
}
