// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/auraswarm/swarmctl/lib/ids"
)

// hkdfInfoSigningKey domain-separates Ed25519 seed derivation from any
// other use of the same master secret.
var hkdfInfoSigningKey = []byte("swarmctl.identity.signingkey.v1")

// FakeIdentityService is a deterministic, in-memory stand-in for the
// external identity service, for tests and local development. It
// derives an Ed25519 keypair per key-id from a master secret via
// HKDF-SHA256 rather than storing generated keys, so the same key-id
// always yields the same keypair within a process.
type FakeIdentityService struct {
	masterSecret []byte
	activeKeyIDs []string
}

// NewFakeIdentityService constructs a service whose currently-active
// key-ids are activeKeyIDs. Callers rotate keys by changing which
// key-ids are "active" between calls to FetchKeys — both the old and
// new key-id can be active simultaneously to exercise graceful
// rotation.
func NewFakeIdentityService(masterSecret []byte, activeKeyIDs ...string) *FakeIdentityService {
	return &FakeIdentityService{masterSecret: masterSecret, activeKeyIDs: activeKeyIDs}
}

// SigningKey derives the deterministic Ed25519 private key for keyID.
func (f *FakeIdentityService) SigningKey(keyID string) (ed25519.PrivateKey, error) {
	info := make([]byte, len(hkdfInfoSigningKey)+len(keyID))
	copy(info, hkdfInfoSigningKey)
	copy(info[len(hkdfInfoSigningKey):], keyID)

	reader := hkdf.New(sha256.New, f.masterSecret, nil, info)
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(reader, seed); err != nil {
		return nil, fmt.Errorf("identity: deriving signing key for %q: %w", keyID, err)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// FetchKeys implements KeyFetcher, returning the public keys for every
// currently-active key-id.
func (f *FakeIdentityService) FetchKeys(ctx context.Context) (map[string]ed25519.PublicKey, error) {
	keys := make(map[string]ed25519.PublicKey, len(f.activeKeyIDs))
	for _, keyID := range f.activeKeyIDs {
		signingKey, err := f.SigningKey(keyID)
		if err != nil {
			return nil, err
		}
		keys[keyID] = signingKey.Public().(ed25519.PublicKey)
	}
	return keys, nil
}

// SetActiveKeyIDs replaces the set of active key-ids, for tests that
// exercise rotation.
func (f *FakeIdentityService) SetActiveKeyIDs(keyIDs ...string) {
	f.activeKeyIDs = keyIDs
}

// CredentialParams is the exported shape tests fill in to mint a fake
// bearer credential. It mirrors Claims plus the fields the wire format
// carries but Claims does not (Issuer, Audience, IssuedAt).
type CredentialParams struct {
	Issuer           string
	Audience         string
	OwnerID          ids.OwnerID
	NamespaceID      string
	SessionContextID string
	MFAFlag          bool
	IssuedAtUnix     int64
	ExpiresAtUnix    int64
}

// MintCredential produces a well-formed bearer credential signed with
// keyID's derived key, for use as test fixture input to Verifier.Verify.
func (f *FakeIdentityService) MintCredential(keyID string, params CredentialParams) ([]byte, error) {
	signingKey, err := f.SigningKey(keyID)
	if err != nil {
		return nil, err
	}
	token := wireToken{
		KeyID:            keyID,
		Issuer:           params.Issuer,
		Audience:         params.Audience,
		OwnerID:          params.OwnerID,
		NamespaceID:      params.NamespaceID,
		SessionContextID: params.SessionContextID,
		MFAFlag:          params.MFAFlag,
		IssuedAt:         params.IssuedAtUnix,
		ExpiresAt:        params.ExpiresAtUnix,
	}
	return mintToken(signingKey, &token)
}
