// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

/*
QuickAI is the API server behind the QuickAI writing and image tools.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"codeberg.org/quickai/quickai/config"
	"codeberg.org/quickai/quickai/core/audit"
	"codeberg.org/quickai/quickai/server/router"
)

// http.Server timeouts. Article and resume generation hold a response open
// for a while, hence the long write timeout.
const (
	readHeaderTimeout = 15 * time.Second
	readTimeout       = time.Minute
	writeTimeout      = 3 * time.Minute
	idleTimeout       = 30 * time.Second

	startupDeadline  = time.Minute
	shutdownDeadline = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("QuickAI stopped")
	}
}

// run serves until SIGINT or SIGTERM, then drains in-flight requests and
// releases the app's resources.
func run() error {
	audit.SetDefaultLogger()

	if err := config.Global.LoadConfig(); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancelStart := context.WithTimeout(ctx, startupDeadline)
	app, err := newApp(startCtx, &config.Global)

	cancelStart()

	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}

	defer func() {
		if err := app.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to release resources cleanly")
		}
	}()

	mux := router.NewRouter()
	mux.DefineRoutes(app.handlers, app.auth)
	mux.RegisterMiddleware()

	listener, err := listen(ctx, &config.Global)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownDeadline)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info().Msg("Server exited gracefully")

	return nil
}
