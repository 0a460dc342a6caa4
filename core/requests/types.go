// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package requests

import (
	"net/http"
	"net/url"

	"codeberg.org/quickai/quickai/core/audit"
)

// RequestOptions are parameters for Do and JSON.
//
// At most one of JSON, Form, Multipart and Body should be set.
type RequestOptions struct {
	Method      string
	URL         string
	Destination audit.TrafficDestination
	Header      http.Header

	// JSON is encoded as the request body with Content-Type application/json.
	JSON any
	// Form is sent as application/x-www-form-urlencoded.
	Form url.Values
	// Multipart is sent as multipart/form-data.
	Multipart *Multipart
	// Body is sent as is with ContentType.
	Body        []byte
	ContentType string
}

// Multipart describes a multipart/form-data payload.
type Multipart struct {
	Fields map[string]string
	Files  []FilePart
}

// FilePart is a single file field of a multipart payload.
type FilePart struct {
	Field       string
	Filename    string
	ContentType string
	Data        []byte
}
