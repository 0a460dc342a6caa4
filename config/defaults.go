// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package config

import "time"

const (
	defaultConfigFilePath = "./config.yaml"

	// Matches the free plan of the web app.
	defaultFreeUsageLimit = 10

	defaultResumeMaxBytes = 5 << 20
	defaultUploadMaxBytes = 10 << 20

	defaultKeyBaseTimeoutMs    = 1000
	defaultKeyMaxBackoffTimeMs = 32000

	defaultFeedCacheTTLSeconds = 30
)

// SetDefaults populates the configuration with default values.
func (cfg *ServerConfig) SetDefaults() {
	cfg.Basic.Host = "localhost"
	cfg.Basic.Port = "3000"
	cfg.Basic.AllowedOrigins = []string{"http://localhost:5173"}

	cfg.Gemini.BaseURL = "https://generativelanguage.googleapis.com/"
	cfg.Gemini.Model = "gemini-2.0-flash"
	cfg.Gemini.ImageModel = "gemini-2.0-flash-preview-image-generation"
	cfg.Gemini.Temperature = 0.7
	cfg.Gemini.KeyLoadBalancing = "round-robin"
	cfg.Gemini.KeyMaxRetries = 3
	cfg.Gemini.KeyBaseTimeout = defaultKeyBaseTimeoutMs * time.Millisecond
	cfg.Gemini.KeyMaxBackoff = defaultKeyMaxBackoffTimeMs * time.Millisecond

	cfg.ImageGen.Provider = ImageProviderClipdrop

	cfg.Clipdrop.BaseURL = "https://clipdrop-api.co"

	cfg.Cloudinary.UploadURL = "https://api.cloudinary.com"
	cfg.Cloudinary.DeliveryURL = "https://res.cloudinary.com"
	cfg.Cloudinary.Folder = "quickai"

	cfg.Identity.Provider = IdentityProviderClerk
	cfg.Identity.ClerkAPIURL = "https://api.clerk.com/v1"

	cfg.Database.MaxOpenConns = 10
	cfg.Database.MaxIdleConns = 5
	cfg.Database.ConnMaxLifetime = time.Hour
	cfg.Database.AutoMigrate = true

	cfg.Quota.FreeUsageLimit = defaultFreeUsageLimit
	cfg.Quota.ResumeMaxBytes = defaultResumeMaxBytes
	cfg.Quota.UploadMaxBytes = defaultUploadMaxBytes

	cfg.Uploads.Backend = UploadBackendDisk
	cfg.Uploads.Dir = "./data/uploads"
	cfg.Uploads.Prefix = "uploads/"

	cfg.Events.Backend = EventBackendNone
	cfg.Events.Topic = "quickai.creations"

	cfg.FeedCache.Enabled = true
	cfg.FeedCache.Size = 16
	cfg.FeedCache.TTL = defaultFeedCacheTTLSeconds * time.Second

	cfg.Development.SaveResponses = false
	cfg.Development.ResponseSaveLocation = "/tmp/quickai/responses"

	cfg.Log.Level = "info"
	cfg.Log.Outputs = []string{"/dev/stderr"}
	cfg.Log.Format = "console"

	cfg.Limiter.Enabled = false
	cfg.Limiter.StateFilepath = "./data/limiter_state.json"
	cfg.Limiter.FilterLocal = false
	cfg.Limiter.IPv4Prefix = 24
	cfg.Limiter.IPv6Prefix = 48
	cfg.Limiter.Rate = 1
	cfg.Limiter.Burst = 20
}
