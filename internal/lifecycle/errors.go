// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"fmt"

	"github.com/auraswarm/swarmctl/internal/registry"
)

// Kind is the abstract error taxonomy of §7, shared across the Control
// Core and the Edge Proxy. The Edge Proxy maps Kind to an HTTP status;
// the Control Core never does HTTP itself.
type Kind int

const (
	KindUnspecified Kind = iota
	KindInvalid
	KindForbidden
	KindNotFound
	KindConflict
	KindQuotaExceeded
	KindInternal
	KindUpstream
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindInternal:
		return "internal"
	case KindUpstream:
		return "upstream"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unspecified"
	}
}

// ControlError is the error type every Control Core operation returns
// on failure. Detail is safe to show a caller; the wrapped error is
// not — it may carry registry or orchestrator internals and is
// truncated at this boundary (§7: "outer error chains are truncated at
// the boundary").
type ControlError struct {
	Kind   Kind
	Detail string
	err    error
}

func (e *ControlError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("lifecycle: %s: %s: %v", e.Kind, e.Detail, e.err)
	}
	return fmt.Sprintf("lifecycle: %s: %s", e.Kind, e.Detail)
}

func (e *ControlError) Unwrap() error { return e.err }

func newControlError(kind Kind, detail string, err error) *ControlError {
	return &ControlError{Kind: kind, Detail: detail, err: err}
}

// NotOwner is returned by ownership enforcement when the caller's
// owner_id does not match the resource's owner_id. It always carries
// KindForbidden.
func NotOwner(agentID fmt.Stringer) *ControlError {
	return newControlError(KindForbidden, fmt.Sprintf("caller does not own agent %s", agentID), nil)
}

// NotFound wraps registry.ErrNotFound (or an absent resource generally)
// as KindNotFound.
func NotFound(detail string) *ControlError {
	return newControlError(KindNotFound, detail, registry.ErrNotFound)
}

// InvalidState reports an operation attempted against a state that
// does not permit it, per the §4.4 transition table.
func InvalidState(current registry.AgentStatus, allowed []Operation) *ControlError {
	return newControlError(KindConflict, fmt.Sprintf("operation not valid from state %s (allowed: %v)", current, allowed), nil)
}

// QuotaExceeded reports that the owner has reached max_agents_per_owner.
func QuotaExceeded(ownerID fmt.Stringer, limit int) *ControlError {
	return newControlError(KindQuotaExceeded, fmt.Sprintf("owner %s at agent quota %d", ownerID, limit), nil)
}

// Internal wraps an unexpected registry or encoding failure.
func Internal(detail string, err error) *ControlError {
	return newControlError(KindInternal, detail, err)
}

// Upstream wraps an orchestrator driver failure.
func Upstream(detail string, err error) *ControlError {
	return newControlError(KindUpstream, detail, err)
}

// EndpointUnavailable reports that get_pod_endpoint could not resolve
// a reachable address for the agent, or that a wake attempt timed out.
func EndpointUnavailable(detail string) *ControlError {
	return newControlError(KindUnavailable, detail, nil)
}

// SchedulerTimeout reports that a wake sequence did not observe
// Running or Error within wake_timeout.
func SchedulerTimeout(detail string) *ControlError {
	return newControlError(KindUnavailable, detail, nil)
}
