// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package routes

import (
	"context"
	"net/http"
	"time"
)

const healthTimeout = 2 * time.Second

// Index answers uptime probes of the web app's host.
func Index(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	_, err := w.Write([]byte("Server is Live!"))

	return err
}

// Healthz reports whether the datastore answers.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) error {
	if h.Ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		if err := h.Ping(ctx); err != nil {
			if writeErr := WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"}); writeErr != nil {
				return writeErr
			}

			return err
		}
	}

	return WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// NotFound answers paths no route matched.
func NotFound(http.ResponseWriter, *http.Request) error {
	return NewHTTPError(http.StatusNotFound, "Route not found", nil)
}
