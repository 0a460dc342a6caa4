// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package middleware

import (
	"net/http"
	"strings"
)

// NormalizeURL serves "/api/ai/generate-article/" as "/api/ai/generate-article".
//
// The path is rewritten in place rather than redirected: browsers do not
// follow redirects of CORS preflight requests.
func NormalizeURL(w http.ResponseWriter, r *http.Request, next http.Handler) {
	if hasTrailingSlash(r) {
		r2 := r.Clone(r.Context())
		r2.URL.Path = strings.TrimRight(r.URL.Path, "/")

		if r2.URL.Path == "" {
			r2.URL.Path = "/"
		}

		if r.URL.RawPath != "" {
			r2.URL.RawPath = strings.TrimRight(r.URL.RawPath, "/")
		}

		r = r2
	}

	next.ServeHTTP(w, r)
}

// hasTrailingSlash checks if a request path has a trailing slash (except root).
func hasTrailingSlash(r *http.Request) bool {
	return r.URL.Path != "/" && strings.HasSuffix(r.URL.Path, "/")
}
