// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package router

import (
	"net/http"
	"sync"

	"codeberg.org/quickai/quickai/server/middleware"
)

// Router is an http.ServeMux behind a global middleware chain.
//
// The chain is composed on the first request; Use has no effect after that.
type Router struct {
	*http.ServeMux

	chain   []middleware.Middleware
	once    sync.Once
	handler http.Handler
}

func NewRouter() *Router {
	return &Router{ServeMux: http.NewServeMux()}
}

// Use appends m to the chain. Middleware added first runs outermost.
func (router *Router) Use(m middleware.Middleware) {
	router.chain = append(router.chain, m)
}

func (router *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	router.once.Do(func() {
		var next http.Handler = router.ServeMux

		for i := len(router.chain) - 1; i >= 0; i-- {
			next = middleware.Wrap(router.chain[i], next)
		}

		router.handler = next
	})

	router.handler.ServeHTTP(w, r)
}
