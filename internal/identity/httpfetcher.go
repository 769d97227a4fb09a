// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// fetchKeysTimeout bounds the outbound call to the external identity
// service, matching the 5s default deadline applied to every boundary
// crossing elsewhere in the control plane.
const fetchKeysTimeout = 5 * time.Second

// keySetResponse is the wire shape returned by the identity service's
// signing-key endpoint: a flat map of key-id to base64-encoded raw
// Ed25519 public key bytes.
type keySetResponse struct {
	Keys map[string]string `json:"keys"`
}

// HTTPKeyFetcher implements KeyFetcher against a real identity
// service's signing-key endpoint over HTTP, the same bounded-GET-and-
// decode shape as the orchestrator driver's health check.
type HTTPKeyFetcher struct {
	client   *http.Client
	endpoint string
}

// NewHTTPKeyFetcher builds a fetcher against endpoint, the identity
// service's key-set URL (e.g. "https://identity.internal/v1/keys"). A
// nil client defaults to http.DefaultClient.
func NewHTTPKeyFetcher(endpoint string, client *http.Client) *HTTPKeyFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPKeyFetcher{client: client, endpoint: endpoint}
}

// FetchKeys implements KeyFetcher.
func (f *HTTPKeyFetcher) FetchKeys(ctx context.Context) (map[string]ed25519.PublicKey, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchKeysTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("identity: building key fetch request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity: fetching signing keys: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("identity: key fetch returned status %d", resp.StatusCode)
	}

	var wire keySetResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("identity: decoding key set: %w", err)
	}

	keys := make(map[string]ed25519.PublicKey, len(wire.Keys))
	for keyID, encoded := range wire.Keys {
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("identity: decoding key %q: %w", keyID, err)
		}
		if len(raw) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("identity: key %q has invalid length %d", keyID, len(raw))
		}
		keys[keyID] = ed25519.PublicKey(raw)
	}
	return keys, nil
}
