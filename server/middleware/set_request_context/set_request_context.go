// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package set_request_context

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"codeberg.org/quickai/quickai/core/idgen"
	"codeberg.org/quickai/quickai/server/request_context"
)

// RequestIDHeader carries the request ID. A well-formed ID sent by the web
// app prefixes ours so both sides can be correlated.
const RequestIDHeader = "QuickAI-Request-ID"

const maxIncomingIDLength = 64

// WithRequestContext attaches a RequestContext and a logger tagged with the
// request ID to each request, and echoes the ID in the response.
func WithRequestContext(w http.ResponseWriter, r *http.Request, next http.Handler) {
	id := idgen.Child(incomingID(r))

	ctx := request_context.WithRequestID(r.Context(), id)
	ctx = log.Logger.With().Str("request_id", id).Logger().WithContext(ctx)

	w.Header().Set(RequestIDHeader, id)

	next.ServeHTTP(w, r.WithContext(ctx))
}

// incomingID returns the client's request ID, or "" when it is missing or
// could forge log fields.
func incomingID(r *http.Request) string {
	id := r.Header.Get(RequestIDHeader)
	if len(id) > maxIncomingIDLength || strings.ContainsFunc(id, invalidIDRune) {
		return ""
	}

	return id
}

func invalidIDRune(c rune) bool {
	return !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_')
}
