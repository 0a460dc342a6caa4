// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// baseEnv is the smallest environment that passes validation.
func baseEnv() map[string]string {
	return map[string]string{
		"QUICKAI_HOST":                  "localhost",
		"QUICKAI_PORT":                  "3000",
		"QUICKAI_GEMINI_API_KEYS":       "key1,key2",
		"QUICKAI_CLIPDROP_API_KEY":      "clip",
		"QUICKAI_CLOUDINARY_CLOUD_NAME": "demo",
		"QUICKAI_CLOUDINARY_API_KEY":    "123",
		"QUICKAI_CLOUDINARY_API_SECRET": "shh",
		"QUICKAI_CLERK_SECRET_KEY":      "sk_test_x",
		"QUICKAI_DATABASE_URL":          "postgres://quickai@localhost/quickai",
	}
}

// TestLoadConfig checks fallbacks and validation. Subtests are sequential
// because they modify the process environment.
func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		unset   []string
		wantErr error
	}{
		{
			name: "Valid configuration",
		},
		{
			name:    "Missing Gemini key",
			unset:   []string{"QUICKAI_GEMINI_API_KEYS"},
			wantErr: errNoGeminiKey,
		},
		{
			name:    "Invalid key load balancing",
			env:     map[string]string{"QUICKAI_GEMINI_KEY_LOAD_BALANCING": "sticky"},
			wantErr: errInvalidKeyLoadBalancing,
		},
		{
			name:    "Temperature out of range",
			env:     map[string]string{"QUICKAI_GEMINI_TEMPERATURE": "2.5"},
			wantErr: errInvalidTemperature,
		},
		{
			name:    "Clipdrop provider without key",
			unset:   []string{"QUICKAI_CLIPDROP_API_KEY"},
			wantErr: errClipdropKeyRequired,
		},
		{
			name:  "Gemini image provider needs no Clipdrop key",
			env:   map[string]string{"QUICKAI_IMAGE_PROVIDER": "gemini"},
			unset: []string{"QUICKAI_CLIPDROP_API_KEY"},
		},
		{
			name:    "Missing database",
			unset:   []string{"QUICKAI_DATABASE_URL"},
			wantErr: errDatabaseDSNRequired,
		},
		{
			name:    "Local identity without secret",
			env:     map[string]string{"QUICKAI_IDENTITY_PROVIDER": "local"},
			wantErr: errLocalSecretRequired,
		},
		{
			name: "Local identity with malformed secret",
			env: map[string]string{
				"QUICKAI_IDENTITY_PROVIDER":     "local",
				"QUICKAI_LOCAL_IDENTITY_SECRET": "not-hex",
			},
			wantErr: errLocalSecretInvalid,
		},
		{
			name:    "Kafka without brokers",
			env:     map[string]string{"QUICKAI_EVENTS_BACKEND": "kafka"},
			wantErr: errKafkaIncomplete,
		},
		{
			name:    "Resume limit above upload limit",
			env:     map[string]string{"QUICKAI_RESUME_MAX_BYTES": "20971520"},
			wantErr: errInvalidUploadLimits,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range baseEnv() {
				t.Setenv(k, v)
			}

			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			for _, k := range tt.unset {
				t.Setenv(k, "")
				os.Unsetenv(k)
			}

			cfg := &ServerConfig{}
			err := cfg.LoadConfig()

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, "localhost", cfg.Basic.Host)
			assert.Equal(t, "3000", cfg.Basic.Port)
			assert.Equal(t, []string{"key1", "key2"}, cfg.Gemini.APIKeys)
			assert.Equal(t, "https://api.clerk.com/v1/jwks", cfg.Identity.ClerkJWKSURL)
			assert.Equal(t, 10, cfg.Quota.FreeUsageLimit)
			assert.InDelta(t, 0.7, cfg.Gemini.Temperature, 0.0001)
		})
	}
}

func TestReadEnv(t *testing.T) {
	t.Setenv("QUICKAI_GEMINI_TEMPERATURE", "1.25")
	t.Setenv("QUICKAI_FEED_CACHE_TTL", "90s")
	t.Setenv("QUICKAI_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("QUICKAI_CLERK_SECRET_KEY", "from-env")
	t.Setenv("QUICKAI_FEED_CACHE", "false")

	cfg := &ServerConfig{}
	cfg.SetDefaults()
	cfg.Identity.ClerkSecretKey = "from-yaml"

	require.NoError(t, readEnv(cfg))

	assert.InDelta(t, 1.25, cfg.Gemini.Temperature, 0.0001)
	assert.Equal(t, 90*time.Second, cfg.FeedCache.TTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Basic.AllowedOrigins)
	// No overwrite option: the value read from YAML stays.
	assert.Equal(t, "from-yaml", cfg.Identity.ClerkSecretKey)
	assert.False(t, cfg.FeedCache.Enabled)
}

func TestReadEnvRejectsMalformedValues(t *testing.T) {
	t.Setenv("QUICKAI_FREE_USAGE_LIMIT", "ten")

	cfg := &ServerConfig{}
	err := readEnv(cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUICKAI_FREE_USAGE_LIMIT")
}

func TestApplyLegacyEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "legacy-key")
	t.Setenv("CLERK_SECRET_KEY", "legacy-clerk")
	t.Setenv("QUICKAI_CLERK_SECRET_KEY", "current-clerk")
	t.Setenv("QUICKAI_GEMINI_API_KEYS", "")
	os.Unsetenv("QUICKAI_GEMINI_API_KEYS")

	applyLegacyEnv()

	assert.Equal(t, "legacy-key", os.Getenv("QUICKAI_GEMINI_API_KEYS"))
	assert.Equal(t, "current-clerk", os.Getenv("QUICKAI_CLERK_SECRET_KEY"))
}

func TestReadYAML(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := []byte(`
basic:
  port: "4000"
gemini:
  apiKeys: ["a"]
  keyBaseTimeout: 2s
quota:
  freeUsageLimit: 3
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg := &ServerConfig{}
	cfg.SetDefaults()
	require.NoError(t, cfg.readYAML(path))

	assert.Equal(t, "4000", cfg.Basic.Port)
	assert.Equal(t, []string{"a"}, cfg.Gemini.APIKeys)
	assert.Equal(t, 2*time.Second, cfg.Gemini.KeyBaseTimeout)
	assert.Equal(t, 3, cfg.Quota.FreeUsageLimit)
	// untouched keys keep their defaults
	assert.Equal(t, "gemini-2.0-flash", cfg.Gemini.Model)

	require.NoError(t, cfg.readYAML(filepath.Join(dir, "missing.yaml")))
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	t.Parallel()

	cfg := &ServerConfig{}
	cfg.SetDefaults()

	var buf bytes.Buffer
	require.NoError(t, cfg.WriteYAML(&buf))
	assert.Contains(t, buf.String(), "ttl: 30s")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	loaded := &ServerConfig{}
	require.NoError(t, loaded.readYAML(path))
	assert.Equal(t, cfg.FeedCache, loaded.FeedCache)
	assert.Equal(t, cfg.Quota, loaded.Quota)
}

func TestRedacted(t *testing.T) {
	t.Parallel()

	cfg := &ServerConfig{}
	cfg.Gemini.APIKeys = []string{"k1", "k2"}
	cfg.Clipdrop.APIKey = "clip"
	cfg.Cloudinary.APISecret = "secret"
	cfg.Database.DSN = "postgres://user:pass@db/quickai"

	printable := cfg.Redacted()

	assert.Equal(t, []string{"[redacted] (2 keys)"}, printable.Gemini.APIKeys)
	assert.Equal(t, redactedValue, printable.Clipdrop.APIKey)
	assert.Equal(t, redactedValue, printable.Cloudinary.APISecret)
	assert.Equal(t, redactedValue, printable.Database.DSN)
	assert.Empty(t, printable.Identity.LocalSecret)
	// the original is untouched
	assert.Equal(t, "clip", cfg.Clipdrop.APIKey)
}

func TestIsOriginAllowed(t *testing.T) {
	t.Parallel()

	cfg := &ServerConfig{}
	cfg.Basic.AllowedOrigins = []string{"http://localhost:5173"}

	assert.True(t, cfg.IsOriginAllowed("http://localhost:5173"))
	assert.True(t, cfg.IsOriginAllowed("HTTP://LOCALHOST:5173/"))
	assert.False(t, cfg.IsOriginAllowed("https://evil.example"))
	assert.False(t, cfg.IsOriginAllowed(""))

	cfg.Basic.AllowedOrigins = []string{"*"}
	assert.True(t, cfg.IsOriginAllowed("https://anything.example"))
}

func TestShouldSkipServerLogging(t *testing.T) {
	t.Parallel()

	cfg := &ServerConfig{}
	assert.True(t, cfg.ShouldSkipServerLogging("/healthz"))
	assert.False(t, cfg.ShouldSkipServerLogging("/api/ai/generate-article"))
}
