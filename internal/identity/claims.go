// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity implements the control plane's Identity Adapter: a
// stateless validator that turns a bearer credential into Claims or a
// typed failure. It never mints credentials and persists nothing —
// the external identity service is authoritative; this package only
// verifies what that service issued.
package identity

import (
	"time"

	"github.com/auraswarm/swarmctl/lib/ids"
)

// Claims is the validated result of a successful credential check.
type Claims struct {
	OwnerID ids.OwnerID

	// NamespaceID scopes the owner within the identity service's own
	// tenancy model. Opaque to the control plane beyond pass-through
	// into registry user-cache records.
	NamespaceID string

	// SessionContextID identifies the identity service's notion of
	// session, distinct from a swarmctl SessionID. Carried through for
	// audit correlation only.
	SessionContextID string

	// MFAFlag is true when the credential's issuing session completed
	// multi-factor authentication. No Control Core operation gates on
	// this today; it is carried end-to-end so a future policy can
	// require it without a wire-format change.
	MFAFlag bool

	ExpiresAt time.Time
}
