// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

package edge

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/auraswarm/swarmctl/internal/identity"
	"github.com/auraswarm/swarmctl/internal/lifecycle"
	"github.com/auraswarm/swarmctl/internal/orchestrator"
	"github.com/auraswarm/swarmctl/internal/registry"
	"github.com/auraswarm/swarmctl/lib/clock"
	"github.com/auraswarm/swarmctl/lib/ids"
)

const (
	testKeyID    = "test-key"
	testIssuer   = "test-issuer"
	testAudience = "swarmctl"
)

type testHarness struct {
	server          *Server
	handler         http.Handler
	internalHandler http.Handler
	fake            *identity.FakeIdentityService
	clock           *clock.FakeClock
	scheduler       *orchestrator.FakeScheduler
	store           *registry.Store
	core            *lifecycle.Core
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	clk := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	store, err := registry.Open(registry.Config{Path: ":memory:", PoolSize: 1, Clock: clk})
	if err != nil {
		t.Fatalf("registry.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	scheduler := orchestrator.NewFakeScheduler()
	driver, err := orchestrator.NewDriver(orchestrator.Config{Scheduler: scheduler, Clock: clk})
	if err != nil {
		t.Fatalf("orchestrator.NewDriver: %v", err)
	}

	core, err := lifecycle.NewCore(lifecycle.Config{
		Registry:    store,
		Driver:      driver,
		Clock:       clk,
		WakeTimeout: 3 * time.Second,
	})
	if err != nil {
		t.Fatalf("lifecycle.NewCore: %v", err)
	}

	fake := identity.NewFakeIdentityService([]byte("test-master-secret-test-master!!"), testKeyID)
	verifier, err := identity.NewVerifier(identity.Config{
		Fetcher:          fake,
		Clock:            clk,
		ExpectedIssuer:   testIssuer,
		ExpectedAudience: testAudience,
	})
	if err != nil {
		t.Fatalf("identity.NewVerifier: %v", err)
	}

	server, err := NewServer(Config{Core: core, Verifier: verifier, Clock: clk})
	if err != nil {
		t.Fatalf("edge.NewServer: %v", err)
	}

	return &testHarness{
		server:          server,
		handler:         server.Handler(),
		internalHandler: server.InternalHandler(),
		fake:            fake,
		clock:           clk,
		scheduler:       scheduler,
		store:           store,
		core:            core,
	}
}

func (h *testHarness) mintToken(t *testing.T, ownerID ids.OwnerID) []byte {
	t.Helper()
	token, err := h.fake.MintCredential(testKeyID, identity.CredentialParams{
		Issuer:        testIssuer,
		Audience:      testAudience,
		OwnerID:       ownerID,
		IssuedAtUnix:  h.clock.Now().Unix(),
		ExpiresAtUnix: h.clock.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("MintCredential: %v", err)
	}
	return token
}

func newAuthedRequest(t *testing.T, method, path string, body []byte, token []byte) *http.Request {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+string(token))
	return req
}
