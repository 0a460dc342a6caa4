// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

//go:build integration

/*
To run these tests, specify `-tags=integration` when running `go test`.

The server is configured from the environment as usual and must reach a
PostgreSQL database. Set QUICKAI_TEST_TOKEN to a token minted with
cmd/devtoken to exercise the authenticated routes with the local identity
provider.
*/
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"
)

const (
	// Server configuration constants.
	host      = "127.0.0.1:8282"
	authority = "http://127.0.0.1:8282"

	// Polling constants.
	retryCount  = 20
	dialTimeout = 250 * time.Millisecond
)

var testToken = os.Getenv("QUICKAI_TEST_TOKEN")

// httpTestCase defines a test case.
type httpTestCase struct {
	URL                string
	Method             string
	Body               string
	ExpectedStatusCode int
	// ExpectedSuccess is checked against the JSON success flag when set.
	ExpectedSuccess *bool
}

// setDefault sets the default values for the test case.
func (c *httpTestCase) setDefault() {
	if c.ExpectedStatusCode == 0 {
		c.ExpectedStatusCode = http.StatusOK
	}
}

// TestMain starts the server and waits for it to be available before running tests.
func TestMain(m *testing.M) {
	_ = os.Setenv("QUICKAI_HOST", "127.0.0.1")
	_ = os.Setenv("QUICKAI_PORT", "8282")

	go func() {
		if err := run(); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	if !waitForServerReady() {
		log.Fatalf("Server did not start in time")
	}

	os.Exit(m.Run())
}

// waitForServerReady polls the server until it's available or the retries are exhausted.
func waitForServerReady() bool {
	for range retryCount {
		conn, err := net.DialTimeout("tcp", host, dialTimeout)
		if err == nil {
			_ = conn.Close()

			return true
		}

		time.Sleep(dialTimeout)
	}

	return false
}

func TestPublicRoutes(t *testing.T) {
	t.Parallel()

	testCases := []httpTestCase{
		{URL: "/", Method: http.MethodGet},
		{URL: "/healthz", Method: http.MethodGet},
		{URL: "/nope", Method: http.MethodGet, ExpectedStatusCode: http.StatusNotFound},
		{URL: "/api/user/get-user-creations", Method: http.MethodGet, ExpectedStatusCode: http.StatusUnauthorized},
		{URL: "/api/ai/generate-article", Method: http.MethodPost, ExpectedStatusCode: http.StatusUnauthorized},
	}

	runCases(t, testCases, "")
}

func TestAuthenticatedRoutes(t *testing.T) {
	t.Parallel()

	if testToken == "" {
		t.Skip("QUICKAI_TEST_TOKEN is not set, not testing authenticated routes")
	}

	yes := true

	testCases := []httpTestCase{
		{URL: "/api/user/get-user-creations", Method: http.MethodGet, ExpectedSuccess: &yes},
		{URL: "/api/user/get-published-creations", Method: http.MethodGet, ExpectedSuccess: &yes},
		{
			URL:                "/api/user/toggle-like-creation",
			Method:             http.MethodPost,
			Body:               `{"id": 2147483647}`,
			ExpectedStatusCode: http.StatusNotFound,
		},
		{
			URL:                "/api/ai/generate-article",
			Method:             http.MethodPost,
			Body:               `{"prompt": ""}`,
			ExpectedStatusCode: http.StatusBadRequest,
		},
	}

	runCases(t, testCases, testToken)
}

func runCases(t *testing.T, testCases []httpTestCase, token string) {
	t.Helper()

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%s %s", tc.Method, tc.URL), func(t *testing.T) {
			t.Parallel()
			tc.setDefault()

			resp := makeRequest(t, buildRequest(t, authority+tc.URL, tc.Method, tc.Body, token))
			defer resp.Body.Close()

			if resp.StatusCode != tc.ExpectedStatusCode {
				t.Errorf("expected status %d, got %d", tc.ExpectedStatusCode, resp.StatusCode)
			}

			if tc.ExpectedSuccess != nil {
				body, err := io.ReadAll(resp.Body)
				if err != nil {
					t.Fatalf("Failed to read body: %v", err)
				}

				if got := gjson.GetBytes(body, "success").Bool(); got != *tc.ExpectedSuccess {
					t.Errorf("expected success %v, got %v: %s", *tc.ExpectedSuccess, got, body)
				}
			}
		})
	}
}

func buildRequest(t *testing.T, link, method, body, token string) *http.Request {
	t.Helper()

	req, err := http.NewRequestWithContext(context.TODO(), method, link, strings.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}

func makeRequest(t *testing.T, req *http.Request) *http.Response {
	t.Helper()

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}

	return resp
}
