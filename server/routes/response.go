// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package routes

import (
	"encoding/json"
	"fmt"
	"net/http"

	"codeberg.org/quickai/quickai/core/creations"
)

// Response is the body of every API reply. The web app branches on Success.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Content string `json:"content,omitempty"`
}

// CreationsResponse lists creations.
type CreationsResponse struct {
	Success   bool                 `json:"success"`
	Creations []creations.Creation `json:"creations"`
}

// UpstreamErrorResponse reports a provider reply that was not an image.
type UpstreamErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details string `json:"details"`
}

// WriteJSON writes v with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}

	return nil
}

// WriteError writes a failed Response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, Response{Success: false, Message: message})
}

// reject answers a request the caller is not entitled to. The web app only
// reads the body, so the status stays 200.
func reject(w http.ResponseWriter, err error) error {
	return WriteError(w, http.StatusOK, err.Error())
}

func content(w http.ResponseWriter, text string) error {
	return WriteJSON(w, http.StatusOK, Response{Success: true, Content: text})
}
