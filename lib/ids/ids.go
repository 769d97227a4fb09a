// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

// Package ids defines the opaque identifier types shared across the
// control plane: AgentID, OwnerID, and SessionID. All three are
// immutable, fixed-size value types with validated text encodings, so
// they can be used as map keys, CBOR/JSON field values, and SQLite blob
// keys without further conversion.
package ids

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// AgentID uniquely identifies an Agent for the lifetime of the control
// plane's registry. Generated once at agent creation; never reused.
// 32 bytes, matching the Registry's key-layout contract.
type AgentID struct {
	raw [32]byte
}

// OwnerID identifies the tenant (end user or organization) that owns a
// set of Agents. The control plane never interprets OwnerID beyond
// equality and use as a Registry key prefix — ownership resolution
// happens in the Identity Adapter. 32 bytes, matching the Registry's
// key-layout contract.
type OwnerID struct {
	raw [32]byte
}

// SessionID identifies one issued streaming session for an Agent.
// Session IDs are bearer-equivalent: possession of a valid SessionID
// plus the session's credential is sufficient to attach to the
// session's stream, so they are generated with a cryptographic RNG
// exactly like AgentID and OwnerID rather than being sequential.
type SessionID struct {
	raw [16]byte
}

// NewAgentID generates a random AgentID using a cryptographic RNG.
func NewAgentID() (AgentID, error) {
	var id AgentID
	if _, err := rand.Read(id.raw[:]); err != nil {
		return AgentID{}, fmt.Errorf("ids: generating agent id: %w", err)
	}
	return id, nil
}

// NewOwnerID generates a random OwnerID using a cryptographic RNG. The
// control plane itself never mints OwnerIDs in production — owners are
// assigned by the external identity service — but tests and the
// in-memory identity double use this to synthesize fixtures.
func NewOwnerID() (OwnerID, error) {
	var id OwnerID
	if _, err := rand.Read(id.raw[:]); err != nil {
		return OwnerID{}, fmt.Errorf("ids: generating owner id: %w", err)
	}
	return id, nil
}

// NewSessionID generates a random SessionID using a cryptographic RNG.
func NewSessionID() (SessionID, error) {
	var id SessionID
	if _, err := rand.Read(id.raw[:]); err != nil {
		return SessionID{}, fmt.Errorf("ids: generating session id: %w", err)
	}
	return id, nil
}

// ParseAgentID decodes a 64-character lowercase hex string into an AgentID.
func ParseAgentID(raw string) (AgentID, error) {
	var id AgentID
	if err := parseHexN(raw, id.raw[:]); err != nil {
		return AgentID{}, fmt.Errorf("ids: parsing agent id: %w", err)
	}
	return id, nil
}

// ParseOwnerID decodes a 64-character lowercase hex string into an OwnerID.
func ParseOwnerID(raw string) (OwnerID, error) {
	var id OwnerID
	if err := parseHexN(raw, id.raw[:]); err != nil {
		return OwnerID{}, fmt.Errorf("ids: parsing owner id: %w", err)
	}
	return id, nil
}

// ParseSessionID decodes a 32-character lowercase hex string into a SessionID.
func ParseSessionID(raw string) (SessionID, error) {
	var id SessionID
	if err := parseHexN(raw, id.raw[:]); err != nil {
		return SessionID{}, fmt.Errorf("ids: parsing session id: %w", err)
	}
	return id, nil
}

// MustParseAgentID is like ParseAgentID but panics on error. Use in
// tests and static initialization where the input is known-valid.
func MustParseAgentID(raw string) AgentID {
	id, err := ParseAgentID(raw)
	if err != nil {
		panic(fmt.Sprintf("ids.MustParseAgentID(%q): %v", raw, err))
	}
	return id
}

// MustParseOwnerID is like ParseOwnerID but panics on error.
func MustParseOwnerID(raw string) OwnerID {
	id, err := ParseOwnerID(raw)
	if err != nil {
		panic(fmt.Sprintf("ids.MustParseOwnerID(%q): %v", raw, err))
	}
	return id
}

func parseHexN(raw string, out []byte) error {
	if len(raw) != len(out)*2 {
		return fmt.Errorf("want %d hex characters, got %d", len(out)*2, len(raw))
	}
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return err
	}
	copy(out, decoded)
	return nil
}

func (a AgentID) String() string   { return hex.EncodeToString(a.raw[:]) }
func (o OwnerID) String() string   { return hex.EncodeToString(o.raw[:]) }
func (s SessionID) String() string { return hex.EncodeToString(s.raw[:]) }

func (a AgentID) IsZero() bool   { return a.raw == [32]byte{} }
func (o OwnerID) IsZero() bool   { return o.raw == [32]byte{} }
func (s SessionID) IsZero() bool { return s.raw == [16]byte{} }

// Bytes returns the raw 16-byte identifier, suitable for use as (part
// of) a Registry key. The caller must not mutate the returned slice.
func (a AgentID) Bytes() []byte   { return a.raw[:] }
func (o OwnerID) Bytes() []byte   { return o.raw[:] }
func (s SessionID) Bytes() []byte { return s.raw[:] }

func (a AgentID) MarshalText() ([]byte, error) {
	if a.IsZero() {
		return nil, nil
	}
	return []byte(a.String()), nil
}

func (a *AgentID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*a = AgentID{}
		return nil
	}
	parsed, err := ParseAgentID(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (o OwnerID) MarshalText() ([]byte, error) {
	if o.IsZero() {
		return nil, nil
	}
	return []byte(o.String()), nil
}

func (o *OwnerID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*o = OwnerID{}
		return nil
	}
	parsed, err := ParseOwnerID(string(data))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

func (s SessionID) MarshalText() ([]byte, error) {
	if s.IsZero() {
		return nil, nil
	}
	return []byte(s.String()), nil
}

func (s *SessionID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*s = SessionID{}
		return nil
	}
	parsed, err := ParseSessionID(string(data))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// PodName derives the orchestrator pod name for an Agent: "agent-"
// followed by the first 16 hex characters (8 bytes) of the AgentID.
// Pod names must fit Kubernetes-style DNS label limits (63 chars), so
// only a prefix of the full identifier is used; collisions within that
// prefix are astronomically unlikely for a 64-bit truncation and are,
// in any case, detected by the orchestrator's own name-uniqueness
// enforcement.
func (a AgentID) PodName() string {
	return "agent-" + hex.EncodeToString(a.raw[:8])
}
