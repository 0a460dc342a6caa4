// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package utils

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// UpstreamTimeout bounds one upstream call. Long article generation is the
// slowest path.
const UpstreamTimeout = 2 * time.Minute

// HTTPClient is shared by every upstream integration so that Gemini,
// ClipDrop, Cloudinary and Clerk reuse pooled connections.
var HTTPClient = &http.Client{
	Timeout:   UpstreamTimeout,
	Transport: NewTransport(),
}

// NewTransport returns the transport behind HTTPClient. Upstreams are few,
// so idle connections are capped per host only.
func NewTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			ClientSessionCache: tls.NewLRUClientSessionCache(32),
			MinVersion:         tls.VersionTLS12,
		},
		ForceAttemptHTTP2:     true,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}
