// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package router

import (
	"net/http"
	"net/http/pprof"
	"runtime/trace"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"codeberg.org/quickai/quickai/config"
	"codeberg.org/quickai/quickai/server/middleware"
	"codeberg.org/quickai/quickai/server/middleware/limiter"
	"codeberg.org/quickai/quickai/server/routes"
)

// DefineRoutes registers every route of the API on router.
//
// Routes under /api/ require a signed-in caller; auth resolves the caller
// and their usage before the handler runs.
func (router *Router) DefineRoutes(h *routes.Handlers, auth *middleware.Authenticator) {
	api := func(handler middleware.FallibleHandler) http.HandlerFunc {
		return middleware.CatchError(auth.Require(limiter.PerUser(handler)))
	}

	// /{$} matches only the root path
	router.HandleFunc("GET /{$}", middleware.CatchError(routes.Index))
	router.HandleFunc("GET /healthz", middleware.CatchError(h.Healthz))

	// AI routes
	router.HandleFunc("POST /api/ai/generate-article", api(h.GenerateArticle))
	router.HandleFunc("POST /api/ai/generate-blog-title", api(h.GenerateBlogTitle))
	router.HandleFunc("POST /api/ai/generate-image", api(h.GenerateImage))
	router.HandleFunc("POST /api/ai/remove-image-background", api(h.RemoveImageBackground))
	router.HandleFunc("POST /api/ai/remove-image-object", api(h.RemoveImageObject))
	router.HandleFunc("POST /api/ai/resume-review", api(h.ResumeReview))

	// User routes
	router.HandleFunc("GET /api/user/get-user-creations", api(h.GetUserCreations))
	router.HandleFunc("GET /api/user/get-published-creations", api(h.GetPublishedCreations))
	router.HandleFunc("POST /api/user/toggle-like-creation", api(h.ToggleLikeCreation))

	if config.Global.Development.InDevelopment {
		registerDebugRoutes(router)
	}

	router.HandleFunc("/", middleware.CatchError(routes.NotFound))
}

var (
	flightRecorder     = trace.NewFlightRecorder(trace.FlightRecorderConfig{MinAge: time.Minute})
	flightRecorderOnce sync.Once
)

func registerDebugRoutes(router *Router) {
	flightRecorderOnce.Do(func() {
		if err := flightRecorder.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start flight recorder")
		}
	})

	router.HandleFunc("GET /debug/pprof/", pprof.Index)
	router.HandleFunc("GET /debug/pprof/cmdline", pprof.Cmdline)
	router.HandleFunc("GET /debug/pprof/profile", pprof.Profile)
	router.HandleFunc("GET /debug/pprof/symbol", pprof.Symbol)
	router.HandleFunc("GET /debug/pprof/trace", pprof.Trace)
	router.HandleFunc("GET /debug/flight", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = flightRecorder.WriteTo(w)
	})
}
