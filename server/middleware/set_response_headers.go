// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package middleware

import (
	"maps"
	"net/http"
	"strconv"
	"strings"

	"codeberg.org/quickai/quickai/config"
)

const corsMaxAge = 600 // seconds

var (
	// baseHeaders defines the default headers to be set in responses.
	baseHeaders = http.Header{
		"Referrer-Policy":         {"no-referrer"},
		"X-Frame-Options":         {"DENY"},
		"X-Content-Type-Options":  {"nosniff"},
		"Content-Security-Policy": {"default-src 'none'; frame-ancestors 'none'"},
	}

	corsAllowMethods  = strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodOptions}, ", ")
	corsAllowHeaders  = strings.Join([]string{"Authorization", "Content-Type"}, ", ")
	corsExposeHeaders = strings.Join([]string{
		"QuickAI-Request-ID",
		"RateLimit-Limit",
		"RateLimit-Remaining",
		"RateLimit-Reset",
		"Retry-After",
	}, ", ")
)

// SetResponseHeaders adds default headers to HTTP responses and answers
// CORS preflight requests from the allowed origins.
func SetResponseHeaders(w http.ResponseWriter, r *http.Request, next http.Handler) {
	headers := w.Header()

	maps.Insert(headers, maps.All(baseHeaders))

	headers.Set("QuickAI-Version", config.BuildVersion)
	headers.Set("Cache-Control", "no-store")

	origin := r.Header.Get("Origin")
	if origin != "" {
		headers.Add("Vary", "Origin")

		if config.Global.IsOriginAllowed(origin) {
			headers.Set("Access-Control-Allow-Origin", origin)
			headers.Set("Access-Control-Allow-Credentials", "true")
			headers.Set("Access-Control-Expose-Headers", corsExposeHeaders)
		}
	}

	if isPreflight(r) {
		headers.Add("Vary", "Access-Control-Request-Method")
		headers.Add("Vary", "Access-Control-Request-Headers")

		if headers.Get("Access-Control-Allow-Origin") != "" {
			headers.Set("Access-Control-Allow-Methods", corsAllowMethods)
			headers.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			headers.Set("Access-Control-Max-Age", strconv.Itoa(corsMaxAge))
		}

		w.WriteHeader(http.StatusNoContent)

		return
	}

	next.ServeHTTP(w, r)
}

func isPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
}
