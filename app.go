// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"codeberg.org/quickai/quickai/config"
	"codeberg.org/quickai/quickai/core/creations"
	"codeberg.org/quickai/quickai/core/database"
	"codeberg.org/quickai/quickai/core/events"
	"codeberg.org/quickai/quickai/core/feedcache"
	"codeberg.org/quickai/quickai/core/identity"
	"codeberg.org/quickai/quickai/core/imagegen"
	"codeberg.org/quickai/quickai/core/keypool"
	"codeberg.org/quickai/quickai/core/media"
	"codeberg.org/quickai/quickai/core/quota"
	"codeberg.org/quickai/quickai/core/textgen"
	"codeberg.org/quickai/quickai/core/uploads"
	"codeberg.org/quickai/quickai/server/middleware"
	"codeberg.org/quickai/quickai/server/middleware/limiter"
	"codeberg.org/quickai/quickai/server/routes"
)

// app holds the long-lived components built from the configuration.
type app struct {
	handlers  *routes.Handlers
	auth      *middleware.Authenticator
	db        *gorm.DB
	publisher events.Publisher
	limiter   bool
}

// migrator is implemented by stores that own tables.
type migrator interface {
	Migrate(ctx context.Context) error
}

//nolint:funlen
func newApp(ctx context.Context, cfg *config.ServerConfig) (*app, error) {
	db, err := database.Open(ctx, database.Options{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}

	a := &app{db: db}

	fail := func(err error) (*app, error) {
		if closeErr := a.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to release resources after a startup error")
		}

		return nil, err
	}

	var feed *feedcache.Feed

	if cfg.FeedCache.Enabled {
		feed, err = feedcache.New(cfg.FeedCache.Size, cfg.FeedCache.TTL)
		if err != nil {
			return fail(fmt.Errorf("feed cache: %w", err))
		}
	}

	store := creations.NewStore(db, feed)

	provider, err := newIdentity(cfg, db)
	if err != nil {
		return fail(err)
	}

	if cfg.Database.AutoMigrate {
		toMigrate := []migrator{store}
		if local, ok := provider.(*identity.Local); ok {
			toMigrate = append(toMigrate, local)
		}

		for _, m := range toMigrate {
			if err := m.Migrate(ctx); err != nil {
				return fail(err)
			}
		}

		log.Info().Msg("Database schema is up to date")
	}

	pool := keypool.New(
		cfg.Gemini.APIKeys,
		cfg.Gemini.KeyMaxRetries,
		cfg.Gemini.KeyBaseTimeout,
		cfg.Gemini.KeyMaxBackoff,
		cfg.Gemini.KeyLoadBalancing,
	)

	text := textgen.New(pool, textgen.Options{
		Model:       cfg.Gemini.Model,
		Temperature: float32(cfg.Gemini.Temperature),
		BaseURL:     cfg.Gemini.BaseURL,
	})

	var images imagegen.Provider

	switch cfg.ImageGen.Provider {
	case config.ImageProviderGemini:
		images = &imagegen.Gemini{Generator: text, Model: cfg.Gemini.ImageModel}
	default:
		images = &imagegen.Clipdrop{APIKey: cfg.Clipdrop.APIKey, BaseURL: cfg.Clipdrop.BaseURL}
	}

	uploadStore, err := uploads.New(ctx, uploads.Options{
		Backend: cfg.Uploads.Backend,
		Dir:     cfg.Uploads.Dir,
		Bucket:  cfg.Uploads.Bucket,
		Prefix:  cfg.Uploads.Prefix,
	})
	if err != nil {
		return fail(fmt.Errorf("uploads: %w", err))
	}

	a.publisher, err = events.New(ctx, events.Options{
		Backend:   cfg.Events.Backend,
		Brokers:   cfg.Events.Brokers,
		Topic:     cfg.Events.Topic,
		QueueName: cfg.Events.QueueName,
	})
	if err != nil {
		return fail(fmt.Errorf("events: %w", err))
	}

	quotas := quota.New(provider, cfg.Quota.FreeUsageLimit)

	a.handlers = &routes.Handlers{
		Text:   text,
		Images: images,
		Media: &media.Cloudinary{
			CloudName:   cfg.Cloudinary.CloudName,
			APIKey:      cfg.Cloudinary.APIKey,
			APISecret:   cfg.Cloudinary.APISecret,
			UploadURL:   cfg.Cloudinary.UploadURL,
			DeliveryURL: cfg.Cloudinary.DeliveryURL,
			Folder:      cfg.Cloudinary.Folder,
		},
		Creations: store,
		Quota:     quotas,
		Uploads:   uploadStore,
		Events:    a.publisher,
		Ping: func(ctx context.Context) error {
			return database.Ping(ctx, db)
		},
		ResumeMaxBytes: cfg.Quota.ResumeMaxBytes,
		UploadMaxBytes: cfg.Quota.UploadMaxBytes,
	}

	a.auth = &middleware.Authenticator{Identity: provider, Quota: quotas}
	a.limiter = cfg.Limiter.Enabled

	log.Info().
		Str("identity", cfg.Identity.Provider).
		Str("image_provider", cfg.ImageGen.Provider).
		Str("uploads", cfg.Uploads.Backend).
		Str("events", cfg.Events.Backend).
		Int("gemini_keys", pool.Len()).
		Bool("feed_cache", feed != nil).
		Msg("Initialized components")

	return a, nil
}

func newIdentity(cfg *config.ServerConfig, db *gorm.DB) (identity.Provider, error) {
	if cfg.Identity.Provider == config.IdentityProviderLocal {
		local, err := identity.NewLocal(db, cfg.Identity.LocalSecret)
		if err != nil {
			return nil, fmt.Errorf("local identity: %w", err)
		}

		return local, nil
	}

	return identity.NewClerk(identity.ClerkOptions{
		SecretKey:         cfg.Identity.ClerkSecretKey,
		APIURL:            cfg.Identity.ClerkAPIURL,
		JWKSURL:           cfg.Identity.ClerkJWKSURL,
		Issuer:            cfg.Identity.ClerkIssuer,
		AuthorizedParties: cfg.Identity.AuthorizedParties,
	}), nil
}

// Close flushes the event publisher, closes the database and saves the
// limiter state concurrently.
func (a *app) Close() error {
	var g errgroup.Group

	if a.publisher != nil {
		g.Go(a.publisher.Close)
	}

	if a.db != nil {
		g.Go(func() error {
			return database.Close(a.db)
		})
	}

	if a.limiter {
		g.Go(limiter.Fini)
	}

	return g.Wait()
}
