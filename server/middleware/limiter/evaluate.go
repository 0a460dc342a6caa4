// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package limiter

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"codeberg.org/quickai/quickai/config"
	"codeberg.org/quickai/quickai/server/middleware"
	"codeberg.org/quickai/quickai/server/request_context"
	"codeberg.org/quickai/quickai/server/routes"
)

// Rate limiting header names.
//
// ref: https://www.ietf.org/archive/id/draft-polli-ratelimit-headers-02.html
const (
	HeaderRateLimitLimit     string = "RateLimit-Limit"
	HeaderRateLimitRemaining string = "RateLimit-Remaining"
	HeaderRateLimitReset     string = "RateLimit-Reset"
)

// limitedPrefix is the only path prefix the limiter filters.
const limitedPrefix = "/api/"

const (
	blockedMessage     = "Access denied."
	rateLimitedMessage = "Too many requests. Please try again later."
)

var errRateLimited = errors.New("user rate limit exceeded")

// Evaluate is the network-level limiter middleware.
//
// Order of checks: path and preflight exclusions, pass list, block list,
// local addresses, then the network's token bucket.
func Evaluate(w http.ResponseWriter, r *http.Request, next http.Handler) {
	defer maybeSweep()

	if !strings.HasPrefix(r.URL.Path, limitedPrefix) || r.Method == http.MethodOptions {
		next.ServeHTTP(w, r)

		return
	}

	logger := log.Ctx(r.Context())

	client, err := newClientInfo(r)
	if err != nil {
		logger.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("Could not determine client network")
		writeError(w, r, http.StatusBadRequest, "Could not determine client address.")

		return
	}

	if allowed, blocked := client.checkIPLists(); allowed {
		next.ServeHTTP(w, r)

		return
	} else if blocked {
		logger.Warn().
			Str("ip", client.ip.String()).
			Str("network", client.network.String()).
			Msg("Request blocked, IP in block-list")

		writeError(w, r, http.StatusForbidden, blockedMessage)

		return
	}

	if !config.Global.Limiter.FilterLocal && client.isLocal() {
		next.ServeHTTP(w, r)

		return
	}

	b := bucketFor(client.network.String())
	allowed := b.take()

	b.writeHeaders(w.Header())

	if !allowed {
		logger.Warn().
			Str("ip", client.ip.String()).
			Str("network", client.network.String()).
			Msg("Request blocked, exceeded rate limit")

		writeError(w, r, http.StatusTooManyRequests, rateLimitedMessage)

		return
	}

	next.ServeHTTP(w, r)
}

// PerUser limits an authenticated handler per caller, on top of the network
// bucket. It must run inside the auth middleware.
func PerUser(handler middleware.FallibleHandler) middleware.FallibleHandler {
	return func(w http.ResponseWriter, r *http.Request) error {
		userID := request_context.FromRequest(r).UserID
		if !config.Global.Limiter.Enabled || userID == "" {
			return handler(w, r)
		}

		if b := bucketFor(userKeyPrefix + userID); !b.take() {
			b.writeHeaders(w.Header())

			if err := routes.WriteError(w, http.StatusTooManyRequests, rateLimitedMessage); err != nil {
				return err
			}

			return errRateLimited
		}

		return handler(w, r)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	if err := routes.WriteError(w, statusCode, message); err != nil {
		log.Ctx(r.Context()).Err(err).Msg("Failed to write limiter response")
	}
}
