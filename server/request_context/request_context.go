// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

/*
Package request_context holds the mutable state of one API request.

Middleware and handlers share a single *RequestContext through the
request's context. It lives in its own package so that core packages can
read the request ID without importing the server.
*/
package request_context

import (
	"context"
	"net/http"

	"codeberg.org/quickai/quickai/core/idgen"
)

// RequestContext carries request-scoped data through the middleware chain.
type RequestContext struct {
	// RequestID correlates log lines. Upstream calls derive their IDs from it.
	RequestID string

	// RequestError is the error the handler returned, set by middleware.CatchError.
	RequestError error

	// StatusCode is the status sent to the caller.
	StatusCode int

	// UserID is the authenticated caller, empty on public routes.
	UserID string
}

type requestContextKeyType struct{}

var requestContextKey = requestContextKeyType{}

// WithRequestContext attaches a fresh RequestContext with a new ID to ctx.
func WithRequestContext(ctx context.Context) context.Context {
	return WithRequestID(ctx, idgen.Make())
}

// WithRequestID attaches a fresh RequestContext with the given ID to ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestContextKey, &RequestContext{
		RequestID:  id,
		StatusCode: http.StatusOK,
	})
}

// FromContext returns the RequestContext of ctx. Outside of a request it
// returns a detached zero value, so callers never check for nil.
func FromContext(ctx context.Context) *RequestContext {
	if rc, ok := ctx.Value(requestContextKey).(*RequestContext); ok {
		return rc
	}

	return &RequestContext{}
}

// FromRequest is FromContext(r.Context()).
func FromRequest(r *http.Request) *RequestContext {
	return FromContext(r.Context())
}
