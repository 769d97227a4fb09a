// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"sync"

	"github.com/auraswarm/swarmctl/lib/ids"
)

// FakeScheduler is an in-memory PodScheduler for tests. Safe for
// concurrent use.
type FakeScheduler struct {
	mu   sync.Mutex
	pods map[ids.AgentID]PodInfo

	watchers []chan PodEvent
}

// NewFakeScheduler constructs an empty FakeScheduler.
func NewFakeScheduler() *FakeScheduler {
	return &FakeScheduler{pods: make(map[ids.AgentID]PodInfo)}
}

func (f *FakeScheduler) CreatePod(ctx context.Context, spec PodSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.pods[spec.AgentID]; exists {
		return nil
	}
	pod := PodInfo{AgentID: spec.AgentID, Phase: PodPhasePending, Ready: false}
	f.pods[spec.AgentID] = pod
	f.broadcastLocked(PodEvent{Type: PodEventApplied, Pod: pod})
	return nil
}

func (f *FakeScheduler) DeletePod(ctx context.Context, agentID ids.AgentID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.pods[agentID]; !exists {
		return ErrPodNotFound
	}
	delete(f.pods, agentID)
	f.broadcastLocked(PodEvent{Type: PodEventDeleted, Pod: PodInfo{AgentID: agentID}})
	return nil
}

func (f *FakeScheduler) GetPod(ctx context.Context, agentID ids.AgentID) (PodInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pod, ok := f.pods[agentID]
	if !ok {
		return PodInfo{}, ErrPodNotFound
	}
	return pod, nil
}

func (f *FakeScheduler) ListPods(ctx context.Context) ([]PodInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pods := make([]PodInfo, 0, len(f.pods))
	for _, pod := range f.pods {
		pods = append(pods, pod)
	}
	return pods, nil
}

func (f *FakeScheduler) WatchPods(ctx context.Context) (<-chan PodEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan PodEvent, 16)
	f.watchers = append(f.watchers, ch)
	return ch, nil
}

func (f *FakeScheduler) broadcastLocked(event PodEvent) {
	for _, ch := range f.watchers {
		select {
		case ch <- event:
		default:
		}
	}
}

// SetPodState directly mutates a pod's observed phase/ready/IP and
// broadcasts an Applied event, simulating a scheduler-side transition
// a test wants the reconciler to observe.
func (f *FakeScheduler) SetPodState(agentID ids.AgentID, phase PodPhase, ready bool, podIP string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pod := PodInfo{AgentID: agentID, Phase: phase, Ready: ready, PodIP: podIP}
	f.pods[agentID] = pod
	f.broadcastLocked(PodEvent{Type: PodEventApplied, Pod: pod})
}
