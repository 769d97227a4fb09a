// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import "fmt"

// FailureKind enumerates the typed ways a credential can fail to
// validate. The Edge Proxy maps each kind to an HTTP response without
// inspecting error strings.
type FailureKind int

const (
	FailureUnspecified FailureKind = iota
	FailureExpired
	FailureBadSignature
	FailureBadIssuer
	FailureBadAudience
	FailureMalformedClaims
	FailureKeyNotFound
	FailureUpstreamFailure
)

func (k FailureKind) String() string {
	switch k {
	case FailureExpired:
		return "expired"
	case FailureBadSignature:
		return "bad_signature"
	case FailureBadIssuer:
		return "bad_issuer"
	case FailureBadAudience:
		return "bad_audience"
	case FailureMalformedClaims:
		return "malformed_claims"
	case FailureKeyNotFound:
		return "key_not_found"
	case FailureUpstreamFailure:
		return "upstream_failure"
	default:
		return "unspecified"
	}
}

// ValidationError is the typed failure returned by Verify. Callers
// switch on Kind, never on the error string.
type ValidationError struct {
	Kind FailureKind
	err  error
}

func (e *ValidationError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("identity: %s: %v", e.Kind, e.err)
	}
	return fmt.Sprintf("identity: %s", e.Kind)
}

func (e *ValidationError) Unwrap() error { return e.err }

func failure(kind FailureKind, err error) *ValidationError {
	return &ValidationError{Kind: kind, err: err}
}
