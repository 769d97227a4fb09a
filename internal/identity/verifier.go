// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/auraswarm/swarmctl/lib/clock"
)

// Verifier validates bearer credentials into Claims. It holds no
// durable state: the KeyCache is the only thing that survives between
// calls, and it is itself just a cache of upstream-issued truth.
type Verifier struct {
	keys             *KeyCache
	clock            clock.Clock
	expectedIssuer   string
	expectedAudience string
}

// Config holds the parameters for constructing a Verifier.
type Config struct {
	Fetcher KeyFetcher
	Clock   clock.Clock

	// ExpectedIssuer is the issuer string every accepted credential
	// must carry. Verify returns FailureBadIssuer on a mismatch.
	ExpectedIssuer string

	// ExpectedAudience is the service audience this control plane
	// deployment presents to the identity service. A credential minted
	// for a different audience is rejected with FailureBadAudience,
	// even if the signature and issuer both check out.
	ExpectedAudience string
}

// NewVerifier constructs a Verifier from Config.
func NewVerifier(cfg Config) (*Verifier, error) {
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("identity: Fetcher is required")
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("identity: Clock is required")
	}
	if cfg.ExpectedIssuer == "" {
		return nil, fmt.Errorf("identity: ExpectedIssuer is required")
	}
	if cfg.ExpectedAudience == "" {
		return nil, fmt.Errorf("identity: ExpectedAudience is required")
	}
	return &Verifier{
		keys:             NewKeyCache(cfg.Fetcher, cfg.Clock),
		clock:            cfg.Clock,
		expectedIssuer:   cfg.ExpectedIssuer,
		expectedAudience: cfg.ExpectedAudience,
	}, nil
}

// Verify validates a bearer credential string (the raw wire bytes
// after stripping any "Bearer " prefix) into Claims, or a
// *ValidationError carrying one of the typed failure kinds.
func (v *Verifier) Verify(ctx context.Context, tokenBytes []byte) (Claims, error) {
	payload, signature, err := splitToken(tokenBytes)
	if err != nil {
		return Claims{}, err
	}

	token, err := decodePayload(payload)
	if err != nil {
		return Claims{}, err
	}

	publicKey, err := v.keys.Lookup(ctx, token.KeyID)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return Claims{}, failure(FailureKeyNotFound, err)
		}
		return Claims{}, failure(FailureUpstreamFailure, err)
	}

	if !ed25519.Verify(publicKey, payload, signature) {
		return Claims{}, failure(FailureBadSignature, nil)
	}

	if token.Issuer != v.expectedIssuer {
		return Claims{}, failure(FailureBadIssuer, fmt.Errorf("got %q, want %q", token.Issuer, v.expectedIssuer))
	}
	if token.Audience != v.expectedAudience {
		return Claims{}, failure(FailureBadAudience, fmt.Errorf("got %q, want %q", token.Audience, v.expectedAudience))
	}

	return token.toClaims(v.clock.Now())
}
