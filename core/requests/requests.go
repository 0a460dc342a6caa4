// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package requests

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"codeberg.org/quickai/quickai/core/audit"
	"codeberg.org/quickai/quickai/core/idgen"
	"codeberg.org/quickai/quickai/server/request_context"
	"codeberg.org/quickai/quickai/server/utils"
)

var (
	errInvalidJSON      = errors.New("response contained invalid JSON")
	errAPIResponseError = errors.New("API response indicated error")
	errConflictingBody  = errors.New("request options set more than one body")
)

// HTTPClient sends every upstream request. Tests may point it elsewhere.
var HTTPClient = utils.HTTPClient

// messagePaths are probed in order to find a human readable message in an
// upstream error body. They cover Cloudinary, Clerk, ClipDrop and Google APIs.
var messagePaths = []string{
	"error.message",
	"errors.0.long_message",
	"errors.0.message",
	"message",
	"error",
	"detail",
}

// APIError represents an error returned from an upstream API.
type APIError struct {
	// StatusCode is the HTTP status code from the response.
	// Always >= 400 for API errors.
	StatusCode int

	// Message contains the error message from the API response.
	Message string

	// Body is the raw response body, kept for callers that relay it.
	Body []byte

	// Err is the underlying error cause.
	Err error
}

// Error returns a formatted error message including the status code and API message if available.
func (e *APIError) Error() string {
	var b strings.Builder

	b.WriteString(e.Err.Error())

	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}

	fmt.Fprintf(&b, " (status code: %d)", e.StatusCode)

	return b.String()
}

// Unwrap returns the underlying error for use with errors.Is and errors.As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// StatusOf returns the upstream status code carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}

	return 0
}

// JSON performs a request and parses the response as JSON.
//
// Returns an *APIError when the upstream answers with a status >= 400.
func JSON(ctx context.Context, opts RequestOptions) (gjson.Result, error) {
	resp, body, err := Do(ctx, opts)
	if err != nil {
		return gjson.Result{}, err
	}

	if err := checkStatus(resp, body); err != nil {
		return gjson.Result{}, err
	}

	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("%w: %s", errInvalidJSON, truncate(body))
	}

	return gjson.ParseBytes(body), nil
}

// Do sends an HTTP request and returns the *http.Response and the response body as a byte slice.
//
// The Body field of the returned *http.Response is a NopCloser over the same bytes.
//
// This function does not check for non-OK status codes, leaving that task to the caller.
func Do(ctx context.Context, opts RequestOptions) (*http.Response, []byte, error) {
	req, err := newRequest(ctx, opts)
	if err != nil {
		return nil, nil, err
	}

	return sendRequest(ctx, req, opts.Destination)
}

// IsContextCanceled returns true if the error is due to context cancellation or deadline exceeded.
// In these cases, we should simply stop processing and return, as the client has disconnected.
func IsContextCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func checkStatus(resp *http.Response, body []byte) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}

	message := ""

	if gjson.ValidBytes(body) {
		for _, p := range messagePaths {
			if v := gjson.GetBytes(body, p); v.Type == gjson.String && v.String() != "" {
				message = v.String()

				break
			}
		}
	}

	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	if message == "" {
		message = "An unknown API error occurred"
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Body:       body,
		Err:        errAPIResponseError,
	}
}

// newRequest constructs an *http.Request from RequestOptions.
func newRequest(ctx context.Context, opts RequestOptions) (*http.Request, error) {
	var (
		reqBody     io.Reader
		contentType string
		bodies      int
	)

	if opts.JSON != nil {
		bodies++

		encoded, err := json.Marshal(opts.JSON)
		if err != nil {
			return nil, fmt.Errorf("failed to encode JSON payload: %w", err)
		}

		reqBody = bytes.NewReader(encoded)
		contentType = "application/json"
	}

	if opts.Form != nil {
		bodies++
		reqBody = strings.NewReader(opts.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	if opts.Multipart != nil {
		bodies++

		body, formContentType, err := createMultipartFormData(*opts.Multipart)
		if err != nil {
			return nil, err
		}

		reqBody = body
		contentType = formContentType
	}

	if opts.Body != nil {
		bodies++
		reqBody = bytes.NewReader(opts.Body)
		contentType = opts.ContentType
	}

	if bodies > 1 {
		return nil, errConflictingBody
	}

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, opts.URL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for name, values := range opts.Header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	req.Header.Set("User-Agent", "QuickAI-Server")

	return req, nil
}

// sendRequest executes the HTTP request, reads the body for auditing, and returns the response
// with a new, readable body stream, along with the raw body bytes.
func sendRequest(
	ctx context.Context,
	req *http.Request,
	destination audit.TrafficDestination,
) (_ *http.Response, _ []byte, err error) {
	span := audit.Span{
		Destination: destination,
		RequestID:   idgen.Child(request_context.FromContext(ctx).RequestID),
		Method:      req.Method,
		URL:         redactURL(req),
	}

	defer func() {
		span.Error = err
		span.End()
		span.Log()
	}()

	_ = span.Begin(ctx)

	resp, err := HTTPClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to make HTTP request: %w", err)
	}
	defer resp.Body.Close()

	span.StatusCode = resp.StatusCode

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	span.Body = body

	// Replace the consumed body with a new reader so the caller can still read it.
	resp.Body = io.NopCloser(bytes.NewReader(body))

	return resp, body, nil
}

// redactURL drops the query string, which may carry API keys.
func redactURL(req *http.Request) string {
	u := *req.URL
	u.RawQuery = ""
	u.User = nil

	return u.String()
}

// createMultipartFormData constructs multipart form data from fields and files.
func createMultipartFormData(payload Multipart) (*bytes.Buffer, string, error) {
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)

	// fields are written in key order
	keys := make([]string, 0, len(payload.Fields))
	for k := range payload.Fields {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, k := range keys {
		if err := writer.WriteField(k, payload.Fields[k]); err != nil {
			_ = writer.Close()

			return nil, "", fmt.Errorf("failed to write multipart form field %q: %w", k, err)
		}
	}

	for _, file := range payload.Files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name=%q; filename=%q`, file.Field, file.Filename))

		contentType := file.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		header.Set("Content-Type", contentType)

		part, err := writer.CreatePart(header)
		if err != nil {
			_ = writer.Close()

			return nil, "", fmt.Errorf("failed to create multipart file %q: %w", file.Field, err)
		}

		if _, err := part.Write(file.Data); err != nil {
			_ = writer.Close()

			return nil, "", fmt.Errorf("failed to write multipart file %q: %w", file.Field, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return body, writer.FormDataContentType(), nil
}

const maxErrorBodyPreview = 256

func truncate(body []byte) string {
	if len(body) > maxErrorBodyPreview {
		return string(body[:maxErrorBodyPreview]) + "..."
	}

	return string(body)
}
