// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

package edge

import (
	"net/http"
	"strings"

	"github.com/auraswarm/swarmctl/internal/identity"
)

// bearerToken extracts the credential from an Authorization: Bearer
// header. Returns an empty slice if the header is absent or malformed.
func bearerToken(r *http.Request) []byte {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return nil
	}
	return []byte(strings.TrimPrefix(header, prefix))
}

// withAuth wraps a handler so that every request extracts and verifies
// a bearer credential before the wrapped handler runs, per §4.5 step 1.
// On failure it writes 401 and never calls the wrapped handler.
func (s *Server) withAuth(next func(w http.ResponseWriter, r *http.Request, claims identity.Claims)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if len(token) == 0 {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer credential")
			return
		}
		claims, err := s.verifier.Verify(r.Context(), token)
		if err != nil {
			s.logger.Warn("edge: bearer verification failed", "error", err)
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired credential")
			return
		}
		next(w, r, claims)
	}
}
