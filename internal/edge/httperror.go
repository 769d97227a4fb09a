// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

package edge

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/auraswarm/swarmctl/internal/lifecycle"
)

// errorResponse is the JSON body written on any non-2xx response. Code
// is the stable machine-readable discriminant from §7's Kind table
// (lowercased); Message is safe to show the caller — it never carries
// a wrapped internal error (§7: "outer error chains are truncated at
// the boundary").
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// writeControlError maps a lifecycle.ControlError's Kind to the §7 HTTP
// table and writes the response. A non-ControlError is treated as an
// unexpected internal failure and logged with its full chain — only
// the ControlError's Detail, never a wrapped error, ever reaches the
// client.
func (s *Server) writeControlError(w http.ResponseWriter, err error) {
	var controlErr *lifecycle.ControlError
	if !errors.As(err, &controlErr) {
		s.logger.Error("edge: unexpected non-control error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	status, code := statusForKind(controlErr.Kind)
	if status >= 500 {
		s.logger.Error("edge: control core operation failed", "kind", controlErr.Kind.String(), "detail", controlErr.Detail, "error", err)
	}
	writeError(w, status, code, controlErr.Detail)
}

func statusForKind(kind lifecycle.Kind) (status int, code string) {
	switch kind {
	case lifecycle.KindInvalid:
		return http.StatusBadRequest, "invalid"
	case lifecycle.KindForbidden:
		return http.StatusForbidden, "forbidden"
	case lifecycle.KindNotFound:
		return http.StatusNotFound, "not_found"
	case lifecycle.KindConflict:
		return http.StatusConflict, "conflict"
	case lifecycle.KindQuotaExceeded:
		return http.StatusTooManyRequests, "quota_exceeded"
	case lifecycle.KindUpstream:
		return http.StatusBadGateway, "upstream"
	case lifecycle.KindUnavailable:
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
