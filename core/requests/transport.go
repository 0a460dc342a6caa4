// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package requests

import (
	"net/http"

	"codeberg.org/quickai/quickai/core/audit"
	"codeberg.org/quickai/quickai/core/idgen"
	"codeberg.org/quickai/quickai/server/request_context"
)

// Transport logs an audit span for every round trip. It is used for
// clients owned by SDKs, which never go through Do.
type Transport struct {
	Destination audit.TrafficDestination
	Base        http.RoundTripper
}

// NewClient returns an *http.Client sharing HTTPClient's settings whose
// requests are logged as going to destination.
func NewClient(destination audit.TrafficDestination) *http.Client {
	return &http.Client{
		Timeout:   HTTPClient.Timeout,
		Transport: &Transport{Destination: destination, Base: HTTPClient.Transport},
	}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	span := audit.Span{
		Destination: t.Destination,
		RequestID:   idgen.Child(request_context.FromContext(req.Context()).RequestID),
		Method:      req.Method,
		URL:         redactURL(req),
	}

	_ = span.Begin(req.Context())

	resp, err := base.RoundTrip(req)

	span.End()
	span.Error = err

	if resp != nil {
		span.StatusCode = resp.StatusCode
	}

	span.Log()

	return resp, err
}
