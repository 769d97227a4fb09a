// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"testing"

	"github.com/auraswarm/swarmctl/internal/registry"
)

func TestApplyOperationMatchesTransitionTable(t *testing.T) {
	cases := []struct {
		current registry.AgentStatus
		op      Operation
		wantOK  bool
		wantNext registry.AgentStatus
		wantRemove bool
	}{
		{registry.AgentStatusRunning, OpStop, true, registry.AgentStatusStopping, false},
		{registry.AgentStatusRunning, OpHibernate, true, registry.AgentStatusHibernating, false},
		{registry.AgentStatusRunning, OpStart, false, 0, false},
		{registry.AgentStatusRunning, OpWake, false, 0, false},
		{registry.AgentStatusRunning, OpRestart, false, 0, false},
		{registry.AgentStatusRunning, OpDelete, false, 0, false},

		{registry.AgentStatusIdle, OpStart, true, registry.AgentStatusRunning, false},
		{registry.AgentStatusIdle, OpStop, true, registry.AgentStatusStopping, false},
		{registry.AgentStatusIdle, OpHibernate, true, registry.AgentStatusHibernating, false},
		{registry.AgentStatusIdle, OpWake, false, 0, false},

		{registry.AgentStatusHibernating, OpWake, true, registry.AgentStatusProvisioning, false},
		{registry.AgentStatusHibernating, OpStop, true, registry.AgentStatusStopping, false},
		{registry.AgentStatusHibernating, OpStart, false, 0, false},
		{registry.AgentStatusHibernating, OpHibernate, false, 0, false},

		{registry.AgentStatusStopped, OpStart, true, registry.AgentStatusProvisioning, false},
		{registry.AgentStatusStopped, OpDelete, true, 0, true},
		{registry.AgentStatusStopped, OpStop, false, 0, false},
		{registry.AgentStatusStopped, OpRestart, false, 0, false},

		{registry.AgentStatusError, OpRestart, true, registry.AgentStatusProvisioning, false},
		{registry.AgentStatusError, OpStop, true, registry.AgentStatusStopping, false},
		{registry.AgentStatusError, OpDelete, true, 0, true},
		{registry.AgentStatusError, OpStart, false, 0, false},
		{registry.AgentStatusError, OpWake, false, 0, false},

		{registry.AgentStatusProvisioning, OpStart, false, 0, false},
		{registry.AgentStatusProvisioning, OpStop, false, 0, false},
		{registry.AgentStatusProvisioning, OpDelete, false, 0, false},

		{registry.AgentStatusStopping, OpStart, false, 0, false},
		{registry.AgentStatusStopping, OpStop, false, 0, false},
		{registry.AgentStatusStopping, OpDelete, false, 0, false},
	}

	for _, tc := range cases {
		next, remove, ok := applyOperation(tc.current, tc.op)
		if ok != tc.wantOK {
			t.Errorf("applyOperation(%v, %v) ok = %v, want %v", tc.current, tc.op, ok, tc.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if remove != tc.wantRemove {
			t.Errorf("applyOperation(%v, %v) remove = %v, want %v", tc.current, tc.op, remove, tc.wantRemove)
		}
		if !remove && next != tc.wantNext {
			t.Errorf("applyOperation(%v, %v) next = %v, want %v", tc.current, tc.op, next, tc.wantNext)
		}
	}
}
