// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides shared HTTP server scaffolding for
// swarmctl's control plane binary.
//
// [HTTPServer] binds a TCP listener, serves a caller-provided
// http.Handler, and performs graceful shutdown with a bounded drain
// timeout when its context is cancelled. The control plane binary
// uses two of them: one for the public API, one for the internal
// agent-pod-facing heartbeat endpoint.
package service
