// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package middleware

import (
	"errors"
	"maps"
	"net/http"
	"net/http/httptest"

	"github.com/rs/zerolog/log"

	"codeberg.org/quickai/quickai/config"
	"codeberg.org/quickai/quickai/core/audit"
	"codeberg.org/quickai/quickai/core/requests"
	"codeberg.org/quickai/quickai/server/request_context"
	"codeberg.org/quickai/quickai/server/routes"
)

// genericErrorMessage is shown for errors that carry no user-facing message.
const genericErrorMessage = "Something went wrong. Please try again."

// CatchError wraps HTTP handlers that return an error, providing centralized error handling,
// response buffering, and request logging.
//
// The handler's output is buffered. After it returns:
//   - A *routes.HTTPError replaces the buffered response with a JSON error
//     body carrying its status and message.
//   - Any other error returned without an error status written replaces the
//     buffered response with a 500 JSON error body.
//   - Otherwise the buffered response is sent as is. Handlers that wrote an
//     error status themselves keep their body; the error is only logged.
//
// Finally, it logs the completed request through the audit package.
func CatchError(handler func(w http.ResponseWriter, r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := request_context.FromRequest(r)

		span := audit.Span{
			Destination: audit.ToUser,
			RequestID:   ctx.RequestID,
			Method:      r.Method,
			URL:         r.URL.String(),
		}

		_ = span.Begin(r.Context())
		defer span.End()

		recorder := httptest.NewRecorder()

		err := handler(recorder, r)

		ctx.RequestError = err

		var httpErr *routes.HTTPError

		switch {
		case errors.As(err, &httpErr):
			ctx.StatusCode = httpErr.StatusCode
			writeError(w, r, httpErr.StatusCode, httpErr.Message)

		case err != nil && recorder.Code < http.StatusBadRequest:
			ctx.StatusCode = http.StatusInternalServerError
			writeError(w, r, ctx.StatusCode, publicMessage(err))

		default:
			if recorder.Code == 0 {
				recorder.Code = http.StatusOK
			}

			ctx.StatusCode = recorder.Code
			maps.Copy(w.Header(), recorder.Header())
			w.WriteHeader(recorder.Code)

			if _, err := recorder.Body.WriteTo(w); err != nil {
				log.Ctx(r.Context()).Err(err).Msg("Failed to write response body")
			}
		}

		span.End()
		span.StatusCode = ctx.StatusCode
		span.Error = ctx.RequestError

		if !config.Global.ShouldSkipServerLogging(r.URL.Path) {
			span.Log()
		}
	}
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	if err := routes.WriteError(w, statusCode, message); err != nil {
		log.Ctx(r.Context()).Err(err).Msg("Failed to write error response")
	}
}

// publicMessage picks the message shown for an unexpected error. Upstream
// API errors carry a message written for humans; anything else is hidden.
func publicMessage(err error) string {
	var apiErr *requests.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}

	return genericErrorMessage
}
