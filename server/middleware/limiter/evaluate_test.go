// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package limiter

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"

	"codeberg.org/quickai/quickai/config"
	"codeberg.org/quickai/quickai/server/middleware"
	"codeberg.org/quickai/quickai/server/request_context"
)

func serve(method, path, remoteAddr string) (*httptest.ResponseRecorder, bool) {
	called := false

	handler := middleware.Wrap(Evaluate, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true

		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(method, path, nil)
	r.RemoteAddr = remoteAddr

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, r)

	return rr, called
}

func TestEvaluate(t *testing.T) {
	setupLimiterTest(t)

	tests := []struct {
		name           string
		method         string
		path           string
		ip             string
		filterLocal    bool
		expectedStatus int
		shouldCallNext bool
	}{
		{
			name:           "non-API path bypasses the limiter",
			method:         http.MethodGet,
			path:           "/healthz",
			ip:             "198.51.100.20:1",
			expectedStatus: http.StatusOK,
			shouldCallNext: true,
		},
		{
			name:           "preflight bypasses the limiter",
			method:         http.MethodOptions,
			path:           "/api/ai/generate-article",
			ip:             "198.51.100.20:1",
			expectedStatus: http.StatusOK,
			shouldCallNext: true,
		},
		{
			name:           "pass-listed IP",
			method:         http.MethodPost,
			path:           "/api/ai/generate-article",
			ip:             "203.0.113.7:1",
			expectedStatus: http.StatusOK,
			shouldCallNext: true,
		},
		{
			name:           "block-listed IP",
			method:         http.MethodPost,
			path:           "/api/ai/generate-article",
			ip:             "198.51.100.20:1",
			expectedStatus: http.StatusForbidden,
			shouldCallNext: false,
		},
		{
			name:           "local address is not filtered",
			method:         http.MethodPost,
			path:           "/api/ai/generate-article",
			ip:             "169.254.0.9:1",
			expectedStatus: http.StatusOK,
			shouldCallNext: true,
		},
		{
			name:           "local address is limited when filtering",
			method:         http.MethodPost,
			path:           "/api/ai/generate-article",
			ip:             "169.254.0.9:1",
			filterLocal:    true,
			expectedStatus: http.StatusOK,
			shouldCallNext: true,
		},
		{
			name:           "regular API request",
			method:         http.MethodGet,
			path:           "/api/user/get-published-creations",
			ip:             "192.0.2.1:1",
			expectedStatus: http.StatusOK,
			shouldCallNext: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config.Global.Limiter.FilterLocal = tt.filterLocal

			rr, called := serve(tt.method, tt.path, tt.ip)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Equal(t, tt.shouldCallNext, called)

			if tt.expectedStatus == http.StatusForbidden {
				assert.Equal(t, blockedMessage, gjson.Get(rr.Body.String(), "message").String())
			}
		})
	}
}

// TestEvaluateRateLimits exhausts a network's bucket. Neighbours in the
// same /24 share it; other networks do not.
func TestEvaluateRateLimits(t *testing.T) {
	setupLimiterTest(t)

	for i := range 3 {
		rr, called := serve(http.MethodPost, "/api/ai/generate-article", "192.0.2.1:1")

		assert.True(t, called, "request %d", i+1)
		assert.Equal(t, "3", rr.Header().Get(HeaderRateLimitLimit))
		assert.NotEmpty(t, rr.Header().Get(HeaderRateLimitRemaining))
	}

	rr, called := serve(http.MethodPost, "/api/ai/generate-article", "192.0.2.200:1")

	assert.False(t, called)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "0", rr.Header().Get(HeaderRateLimitRemaining))
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	assert.False(t, gjson.Get(rr.Body.String(), "success").Bool())
	assert.Equal(t, rateLimitedMessage, gjson.Get(rr.Body.String(), "message").String())

	_, called = serve(http.MethodPost, "/api/ai/generate-article", "192.0.3.1:1")
	assert.True(t, called)
}

func TestPerUser(t *testing.T) {
	setupLimiterTest(t)

	calls := 0
	handler := middleware.CatchError(PerUser(func(w http.ResponseWriter, _ *http.Request) error {
		calls++

		w.WriteHeader(http.StatusOK)

		return nil
	}))

	request := func(userID string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/api/ai/generate-article", nil)
		r = r.WithContext(request_context.WithRequestContext(r.Context()))
		request_context.FromRequest(r).UserID = userID

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, r)

		return rr
	}

	for range 3 {
		assert.Equal(t, http.StatusOK, request("user_1").Code)
	}

	rr := request("user_1")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, rateLimitedMessage, gjson.Get(rr.Body.String(), "message").String())
	assert.Equal(t, "3", rr.Header().Get(HeaderRateLimitLimit))

	assert.Equal(t, http.StatusOK, request("user_2").Code)
	assert.Equal(t, http.StatusOK, request("").Code, "anonymous requests are not keyed per user")
	assert.Equal(t, 5, calls)

	config.Global.Limiter.Enabled = false

	assert.Equal(t, http.StatusOK, request("user_1").Code)
}
