// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package routes

import (
	"fmt"
	"net/http"
)

// HTTPError is an error with a status code and a message that is safe to
// show to the user.
//
// The error handling middleware renders it as a JSON error body.
type HTTPError struct {
	StatusCode int
	Message    string
	// Err is the underlying cause. It is logged, never sent.
	Err error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.StatusCode, e.Message, e.Err)
	}

	return fmt.Sprintf("%d %s", e.StatusCode, e.Message)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// NewHTTPError returns an *HTTPError.
func NewHTTPError(statusCode int, message string, err error) error {
	return &HTTPError{StatusCode: statusCode, Message: message, Err: err}
}

func badRequest(message string, err error) error {
	return NewHTTPError(http.StatusBadRequest, message, err)
}

func internalError(message string, err error) error {
	return NewHTTPError(http.StatusInternalServerError, message, err)
}
