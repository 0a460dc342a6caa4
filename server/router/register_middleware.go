// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package router

import (
	"codeberg.org/quickai/quickai/config"
	"codeberg.org/quickai/quickai/server/middleware"
	"codeberg.org/quickai/quickai/server/middleware/limiter"
	"codeberg.org/quickai/quickai/server/middleware/set_request_context"
)

// RegisterMiddleware installs the global middleware chain. The limiter
// state file is loaded here when the limiter is enabled.
func (router *Router) RegisterMiddleware() {
	// the first middleware is the most outer / first executed one
	router.Use(middleware.WithServerTiming)
	router.Use(middleware.NormalizeURL)                // trailing slashes
	router.Use(set_request_context.WithRequestContext) // needed for everything else
	router.Use(middleware.SetResponseHeaders)          // security headers, CORS and preflight

	if config.Global.Limiter.Enabled {
		limiter.Init()

		router.Use(limiter.Evaluate)
	}
}
