// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/auraswarm/swarmctl/lib/codec"
	"github.com/auraswarm/swarmctl/lib/ids"
)

// signatureSize is the fixed size of an Ed25519 signature appended to
// every wire token.
const signatureSize = ed25519.SignatureSize

// wireToken is the CBOR-encoded payload of a bearer credential. The
// KeyID is carried inside the signed payload itself rather than as an
// unsigned prefix: decoding it before signature verification only
// tells the verifier which key to check against, it never substitutes
// for checking the signature.
type wireToken struct {
	KeyID            string      `cbor:"1,keyasint"`
	Issuer           string      `cbor:"2,keyasint"`
	Audience         string      `cbor:"3,keyasint"`
	OwnerID          ids.OwnerID `cbor:"4,keyasint"`
	NamespaceID      string      `cbor:"5,keyasint"`
	SessionContextID string      `cbor:"6,keyasint"`
	MFAFlag          bool        `cbor:"7,keyasint"`
	IssuedAt         int64       `cbor:"8,keyasint"`
	ExpiresAt        int64       `cbor:"9,keyasint"`
}

// splitToken separates the trailing Ed25519 signature from the CBOR
// payload. Returns FailureMalformedClaims if the input is too short
// to contain a signature at all.
func splitToken(tokenBytes []byte) (payload, signature []byte, err error) {
	if len(tokenBytes) <= signatureSize {
		return nil, nil, failure(FailureMalformedClaims, fmt.Errorf("token is %d bytes, need more than %d", len(tokenBytes), signatureSize))
	}
	splitPoint := len(tokenBytes) - signatureSize
	return tokenBytes[:splitPoint], tokenBytes[splitPoint:], nil
}

// decodePayload CBOR-decodes a token payload without verifying
// anything about its authenticity. Callers must verify the signature
// before trusting the result.
func decodePayload(payload []byte) (*wireToken, error) {
	var token wireToken
	if err := codec.Unmarshal(payload, &token); err != nil {
		return nil, failure(FailureMalformedClaims, err)
	}
	return &token, nil
}

// toClaims converts a signature-verified wireToken into the public
// Claims type, checking expiry against now.
func (t *wireToken) toClaims(now time.Time) (Claims, error) {
	expiresAt := time.Unix(t.ExpiresAt, 0).UTC()
	if !now.Before(expiresAt) {
		return Claims{}, failure(FailureExpired, nil)
	}
	return Claims{
		OwnerID:          t.OwnerID,
		NamespaceID:      t.NamespaceID,
		SessionContextID: t.SessionContextID,
		MFAFlag:          t.MFAFlag,
		ExpiresAt:        expiresAt,
	}, nil
}

// mintToken is the test-fixture counterpart to Verify: it CBOR-encodes
// a wireToken and appends an Ed25519 signature. Production credential
// minting happens entirely in the external identity service; this
// function exists so the in-memory verifier double used by tests can
// manufacture well-formed bearer tokens.
func mintToken(privateKey ed25519.PrivateKey, token *wireToken) ([]byte, error) {
	payload, err := codec.Marshal(token)
	if err != nil {
		return nil, fmt.Errorf("identity: encoding token payload: %w", err)
	}
	signature := ed25519.Sign(privateKey, payload)
	result := make([]byte, len(payload)+signatureSize)
	copy(result, payload)
	copy(result[len(payload):], signature)
	return result, nil
}
