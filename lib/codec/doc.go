// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the control plane's standard CBOR encoding
// configuration.
//
// The control plane uses two serialization formats with a clear
// boundary:
//
//   - JSON for the external HTTP API: the Edge Proxy's request and
//     response bodies, defined by their own `json`-tagged view types
//     in internal/edge rather than the domain types stored below.
//   - CBOR for on-disk registry state: Agent and Session records
//     persisted in the Registry's SQLite store.
//
// This package provides the shared CBOR encoding and decoding modes so
// that every stored record encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes, which keeps the registry's stored rows diffable and its tests
// deterministic.
//
// For buffer-oriented operations (the registry's SQLite BLOB columns):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Stream-oriented NewEncoder/NewDecoder are provided for callers that
// read or write CBOR incrementally rather than as a single buffer.
//
// # Struct Tag Rules
//
// Domain types stored via this package (internal/registry's Agent,
// Session, Spec) use `cbor:"N,keyasint"` tags exclusively: compact
// integer keys instead of field-name strings, since these records are
// never exposed as JSON directly. The Edge Proxy never serializes a
// domain type over the wire — it maps domain types to separate
// `json`-tagged view structs for the public API, so a registry
// record's on-disk shape can evolve independently of its field names.
package codec
