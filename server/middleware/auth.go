// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"codeberg.org/quickai/quickai/core/identity"
	"codeberg.org/quickai/quickai/core/quota"
	"codeberg.org/quickai/quickai/server/request_context"
	"codeberg.org/quickai/quickai/server/routes"
)

// UsageResolver loads the free usage of a verified caller.
type UsageResolver interface {
	Resolve(ctx context.Context, p identity.Principal) (quota.Usage, error)
}

// Authenticator verifies the bearer token of API requests.
type Authenticator struct {
	Identity identity.Provider
	Quota    UsageResolver
}

// Require runs handler only for authenticated callers. The caller's
// principal and usage are attached to the request context.
func (a *Authenticator) Require(handler FallibleHandler) FallibleHandler {
	return func(w http.ResponseWriter, r *http.Request) error {
		ctx := r.Context()

		token, ok := identity.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			return routes.NewHTTPError(http.StatusUnauthorized, "Not authenticated", identity.ErrUnauthenticated)
		}

		principal, err := a.Identity.Authenticate(ctx, token)
		if errors.Is(err, identity.ErrUnauthenticated) || errors.Is(err, identity.ErrInvalidToken) {
			return routes.NewHTTPError(http.StatusUnauthorized, "Not authenticated", err)
		} else if err != nil {
			return routes.NewHTTPError(http.StatusInternalServerError, "Authentication failed. Please try again.", err)
		}

		usage, err := a.Quota.Resolve(ctx, principal)
		if err != nil {
			return routes.NewHTTPError(http.StatusInternalServerError, "Failed to load your usage.", err)
		}

		request_context.FromContext(ctx).UserID = principal.UserID

		ctx = identity.WithPrincipal(ctx, principal)
		ctx = quota.WithUsage(ctx, usage)
		ctx = log.Ctx(ctx).With().Str("user_id", principal.UserID).Logger().WithContext(ctx)

		return handler(w, r.WithContext(ctx))
	}
}
