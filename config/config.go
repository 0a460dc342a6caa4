// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/rs/zerolog/log"

	_ "codeberg.org/quickai/quickai/core/audit" // setup better logging format
)

// Global exposes the server configuration.
var Global ServerConfig

// Possible values for ImageGen.Provider.
const (
	ImageProviderClipdrop = "clipdrop"
	ImageProviderGemini   = "gemini"
)

// Possible values for Identity.Provider.
const (
	IdentityProviderClerk = "clerk"
	IdentityProviderLocal = "local"
)

// Possible values for Uploads.Backend.
const (
	UploadBackendDisk = "disk"
	UploadBackendS3   = "s3"
)

// Possible values for Events.Backend.
const (
	EventBackendNone  = "none"
	EventBackendKafka = "kafka"
	EventBackendSQS   = "sqs"
)

// ServerConfig holds the application configuration.
type ServerConfig struct {
	Build buildInfo `yaml:"-"`

	Basic struct {
		Host                     string      `env:"QUICKAI_HOST,overwrite" yaml:"host"`
		Port                     string      `env:"QUICKAI_PORT,overwrite" yaml:"port"`
		UnixSocket               string      `env:"QUICKAI_UNIXSOCKET" yaml:"unixSocket"`
		RawUnixSocketPermissions string      `env:"QUICKAI_UNIXSOCKET_PERMISSIONS" yaml:"unixSocketPermissions"`
		UnixSocketPermissions    os.FileMode `yaml:"-"`
		UnixSocketUser           string      `env:"QUICKAI_UNIXSOCKET_USER" yaml:"unixSocketUser"`
		UnixSocketGroup          string      `env:"QUICKAI_UNIXSOCKET_GROUP" yaml:"unixSocketGroup"`
		// Origins of the web app allowed to call the API. "*" allows any origin.
		AllowedOrigins []string `env:"QUICKAI_ALLOWED_ORIGINS,overwrite" yaml:"allowedOrigins"`
	} `yaml:"basic"`

	Gemini struct {
		APIKeys          []string      `env:"QUICKAI_GEMINI_API_KEYS" yaml:"apiKeys"`
		BaseURL          string        `env:"QUICKAI_GEMINI_BASE_URL,overwrite" yaml:"baseUrl"`
		Model            string        `env:"QUICKAI_GEMINI_MODEL,overwrite" yaml:"model"`
		ImageModel       string        `env:"QUICKAI_GEMINI_IMAGE_MODEL,overwrite" yaml:"imageModel"`
		Temperature      float64       `env:"QUICKAI_GEMINI_TEMPERATURE,overwrite" yaml:"temperature"`
		KeyLoadBalancing string        `env:"QUICKAI_GEMINI_KEY_LOAD_BALANCING,overwrite" yaml:"keyLoadBalancing"`
		KeyMaxRetries    int           `env:"QUICKAI_GEMINI_KEY_MAX_RETRIES,overwrite" yaml:"keyMaxRetries"`
		KeyBaseTimeout   time.Duration `env:"QUICKAI_GEMINI_KEY_BASE_TIMEOUT,overwrite" yaml:"keyBaseTimeout"`
		KeyMaxBackoff    time.Duration `env:"QUICKAI_GEMINI_KEY_MAX_BACKOFF_TIME,overwrite" yaml:"keyMaxBackoffTime"`
	} `yaml:"gemini"`

	ImageGen struct {
		Provider string `env:"QUICKAI_IMAGE_PROVIDER,overwrite" yaml:"provider"`
	} `yaml:"imageGen"`

	Clipdrop struct {
		APIKey  string `env:"QUICKAI_CLIPDROP_API_KEY" yaml:"apiKey"`
		BaseURL string `env:"QUICKAI_CLIPDROP_BASE_URL,overwrite" yaml:"baseUrl"`
	} `yaml:"clipdrop"`

	Cloudinary struct {
		CloudName   string `env:"QUICKAI_CLOUDINARY_CLOUD_NAME,overwrite" yaml:"cloudName"`
		APIKey      string `env:"QUICKAI_CLOUDINARY_API_KEY,overwrite" yaml:"apiKey"`
		APISecret   string `env:"QUICKAI_CLOUDINARY_API_SECRET" yaml:"apiSecret"`
		UploadURL   string `env:"QUICKAI_CLOUDINARY_UPLOAD_URL,overwrite" yaml:"uploadUrl"`
		DeliveryURL string `env:"QUICKAI_CLOUDINARY_DELIVERY_URL,overwrite" yaml:"deliveryUrl"`
		Folder      string `env:"QUICKAI_CLOUDINARY_FOLDER,overwrite" yaml:"folder"`
	} `yaml:"cloudinary"`

	Identity struct {
		Provider          string   `env:"QUICKAI_IDENTITY_PROVIDER,overwrite" yaml:"provider"`
		ClerkSecretKey    string   `env:"QUICKAI_CLERK_SECRET_KEY" yaml:"clerkSecretKey"`
		ClerkAPIURL       string   `env:"QUICKAI_CLERK_API_URL,overwrite" yaml:"clerkApiUrl"`
		ClerkJWKSURL      string   `env:"QUICKAI_CLERK_JWKS_URL,overwrite" yaml:"clerkJwksUrl"`
		ClerkIssuer       string   `env:"QUICKAI_CLERK_ISSUER,overwrite" yaml:"clerkIssuer"`
		AuthorizedParties []string `env:"QUICKAI_CLERK_AUTHORIZED_PARTIES,overwrite" yaml:"authorizedParties"`
		// hex of a v4.public secret key, see cmd/devtoken
		LocalSecret string `env:"QUICKAI_LOCAL_IDENTITY_SECRET" yaml:"localSecret"`
	} `yaml:"identity"`

	Database struct {
		DSN             string        `env:"QUICKAI_DATABASE_URL" yaml:"dsn"`
		MaxOpenConns    int           `env:"QUICKAI_DATABASE_MAX_OPEN_CONNS,overwrite" yaml:"maxOpenConns"`
		MaxIdleConns    int           `env:"QUICKAI_DATABASE_MAX_IDLE_CONNS,overwrite" yaml:"maxIdleConns"`
		ConnMaxLifetime time.Duration `env:"QUICKAI_DATABASE_CONN_MAX_LIFETIME,overwrite" yaml:"connMaxLifetime"`
		AutoMigrate     bool          `env:"QUICKAI_DATABASE_AUTO_MIGRATE,overwrite" yaml:"autoMigrate"`
	} `yaml:"database"`

	Quota struct {
		FreeUsageLimit int   `env:"QUICKAI_FREE_USAGE_LIMIT,overwrite" yaml:"freeUsageLimit"`
		ResumeMaxBytes int64 `env:"QUICKAI_RESUME_MAX_BYTES,overwrite" yaml:"resumeMaxBytes"`
		UploadMaxBytes int64 `env:"QUICKAI_UPLOAD_MAX_BYTES,overwrite" yaml:"uploadMaxBytes"`
	} `yaml:"quota"`

	Uploads struct {
		Backend string `env:"QUICKAI_UPLOADS_BACKEND,overwrite" yaml:"backend"`
		Dir     string `env:"QUICKAI_UPLOADS_DIR,overwrite" yaml:"dir"`
		Bucket  string `env:"QUICKAI_UPLOADS_BUCKET,overwrite" yaml:"bucket"`
		Prefix  string `env:"QUICKAI_UPLOADS_PREFIX,overwrite" yaml:"prefix"`
	} `yaml:"uploads"`

	Events struct {
		Backend   string   `env:"QUICKAI_EVENTS_BACKEND,overwrite" yaml:"backend"`
		Brokers   []string `env:"QUICKAI_EVENTS_KAFKA_BROKERS,overwrite" yaml:"kafkaBrokers"`
		Topic     string   `env:"QUICKAI_EVENTS_KAFKA_TOPIC,overwrite" yaml:"kafkaTopic"`
		QueueName string   `env:"QUICKAI_EVENTS_SQS_QUEUE,overwrite" yaml:"sqsQueue"`
	} `yaml:"events"`

	FeedCache struct {
		Enabled bool          `env:"QUICKAI_FEED_CACHE,overwrite" yaml:"enabled"`
		Size    int           `env:"QUICKAI_FEED_CACHE_SIZE,overwrite" yaml:"size"`
		TTL     time.Duration `env:"QUICKAI_FEED_CACHE_TTL,overwrite" yaml:"ttl"`
	} `yaml:"feedCache"`

	Development struct {
		InDevelopment        bool   `env:"QUICKAI_DEV" yaml:"inDevelopment"`
		SaveResponses        bool   `env:"QUICKAI_SAVE_RESPONSES,overwrite" yaml:"saveResponses"`
		ResponseSaveLocation string `env:"QUICKAI_RESPONSE_SAVE_LOCATION,overwrite" yaml:"responseSaveLocation"`
	} `yaml:"development"`

	Log struct {
		Level   string   `env:"QUICKAI_LOG_LEVEL,overwrite" yaml:"logLevel"`
		Outputs []string `env:"QUICKAI_LOG_OUTPUTS,overwrite" yaml:"logOutputs"`
		Format  string   `env:"QUICKAI_LOG_FORMAT,overwrite" yaml:"logFormat"`
	} `yaml:"log"`

	Limiter struct {
		Enabled       bool     `env:"QUICKAI_LIMITER,overwrite" yaml:"enabled"`
		StateFilepath string   `env:"QUICKAI_LIMITER_STATE_FILEPATH,overwrite" yaml:"stateFilepath"`
		PassIPs       []string `env:"QUICKAI_LIMITER_PASS_IPS,overwrite" yaml:"passList"`
		BlockIPs      []string `env:"QUICKAI_LIMITER_BLOCK_IPS,overwrite" yaml:"blockList"`
		FilterLocal   bool     `env:"QUICKAI_LIMITER_FILTER_LOCAL,overwrite" yaml:"filterLocal"`
		IPv4Prefix    int      `env:"QUICKAI_LIMITER_IPV4_PREFIX,overwrite" yaml:"ipv4Prefix"`
		IPv6Prefix    int      `env:"QUICKAI_LIMITER_IPV6_PREFIX,overwrite" yaml:"ipv6Prefix"`
		Rate          float64  `env:"QUICKAI_LIMITER_RATE,overwrite" yaml:"rate"`
		Burst         int      `env:"QUICKAI_LIMITER_BURST,overwrite" yaml:"burst"`
	} `yaml:"limiter"`
}

// LoadConfig loads the configuration from various sources.
func (cfg *ServerConfig) LoadConfig() error {
	configFilePath := configFilePath()

	cfg.SetDefaults()

	cfg.Build.load()

	if err := cfg.readYAML(configFilePath); err != nil {
		return fmt.Errorf("error loading YAML config: %w", err)
	}

	if err := useDotEnv(); err != nil {
		return fmt.Errorf("error using .env file: %w", err)
	}

	applyLegacyEnv()

	if err := readEnv(cfg); err != nil {
		return fmt.Errorf("error loading environment variables: %w", err)
	}

	if err := cfg.validateAndSet(); err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	if err := cfg.setupAudit(); err != nil {
		return fmt.Errorf("error setting up logging: %w", err)
	}

	cfg.print()

	// Heuristically check for containerized environment and warn if host is not a wildcard address.
	if cfg.Basic.UnixSocket == "" && isContainerized() && cfg.Basic.Host != "0.0.0.0" && cfg.Basic.Host != "::" {
		log.Warn().
			Str("host", cfg.Basic.Host).
			Msg("Running in a containerized environment but host is not a wildcard address (e.g., '0.0.0.0' or '::'). This may prevent the service from being accessible outside the container.")
	}

	return nil
}

var skippedLogPaths = []string{"/healthz"}

// ShouldSkipServerLogging determines if a request should bypass the logging middleware.
func (cfg *ServerConfig) ShouldSkipServerLogging(path string) bool {
	for _, skipped := range skippedLogPaths {
		if path == skipped {
			return true
		}
	}

	return false
}

// IsOriginAllowed reports whether a browser origin may call the API.
func (cfg *ServerConfig) IsOriginAllowed(origin string) bool {
	if origin == "" {
		return false
	}

	origin = strings.ToLower(strings.TrimSuffix(origin, "/"))

	for _, allowed := range cfg.Basic.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	return false
}

// isContainerized checks for common indicators of a containerized environment.
//
// This is a heuristic and may not be 100% accurate.
func isContainerized() bool {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return true
	}

	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}

	if _, err := os.Stat("/.containerenv"); err == nil {
		return true
	}

	// #nosec G304 -- We are checking for the existence and content of a well-known system file for heuristics.
	cgroup, err := os.ReadFile("/proc/self/cgroup")
	if err == nil {
		content := string(cgroup)

		return strings.Contains(content, "docker") ||
			strings.Contains(content, "kubepods") ||
			strings.Contains(content, "containerd") ||
			strings.Contains(content, "lxc") ||
			strings.Contains(content, "crio") ||
			// systemd-nspawn containers
			strings.Contains(content, ".machine")
	}

	return false
}

// GetDurationEncoderOption returns a YAML encoder option that marshals
// time.Duration into a human-readable string format (e.g., "30m", "1h").
func GetDurationEncoderOption() yaml.EncodeOption {
	return yaml.CustomMarshaler[time.Duration](
		func(d time.Duration) ([]byte, error) {
			return yaml.Marshal(d.String())
		},
	)
}
