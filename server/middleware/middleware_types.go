// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package middleware

import "net/http"

// Middleware runs around next and decides whether to call it.
type Middleware func(w http.ResponseWriter, r *http.Request, next http.Handler)

// FallibleHandler is a handler whose errors are rendered by CatchError.
type FallibleHandler = func(w http.ResponseWriter, r *http.Request) error

func Wrap(m Middleware, next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m(w, r, next)
	}
}
