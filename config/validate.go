// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package config

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"regexp"
	"strconv"
	"strings"

	"aidanwoods.dev/go-paseto"
	"github.com/rs/zerolog/log"

	"codeberg.org/quickai/quickai/server/utils"
)

// validation errors.
var (
	errUnixSocketWithHostPort       = errors.New("unix socket configured - cannot specify Host and Port simultaneously")
	errUnixSocketInvalidPermissions = errors.New("invalid Basic.UnixSocketPermissions value")
	errUnixSocketUserDoesNotExist   = errors.New("user does not exist")
	errUnixSocketGroupDoesNotExist  = errors.New("group does not exist")
	errNoGeminiKey                  = errors.New("no Gemini API key supplied. Please supply at least one key")
	errInvalidKeyLoadBalancing      = errors.New("invalid Gemini.KeyLoadBalancing value")
	errInvalidTemperature           = errors.New("Gemini.Temperature must be between 0 and 2")
	errInvalidImageProvider         = errors.New("invalid ImageGen.Provider value")
	errClipdropKeyRequired          = errors.New("Clipdrop.APIKey is required when ImageGen.Provider is clipdrop")
	errCloudinaryIncomplete         = errors.New("Cloudinary.CloudName, Cloudinary.APIKey and Cloudinary.APISecret are required")
	errInvalidIdentityProvider      = errors.New("invalid Identity.Provider value")
	errClerkSecretRequired          = errors.New("Identity.ClerkSecretKey is required when Identity.Provider is clerk")
	errLocalSecretRequired          = errors.New("Identity.LocalSecret is required when Identity.Provider is local")
	errLocalSecretInvalid           = errors.New("Identity.LocalSecret is not a valid v4.public secret key")
	errDatabaseDSNRequired          = errors.New("Database.DSN is required")
	errInvalidFreeUsageLimit        = errors.New("Quota.FreeUsageLimit cannot be negative")
	errInvalidUploadLimits          = errors.New("Quota.UploadMaxBytes must be positive and at least Quota.ResumeMaxBytes")
	errInvalidUploadBackend         = errors.New("invalid Uploads.Backend value")
	errUploadDirRequired            = errors.New("Uploads.Dir is required for the disk backend")
	errUploadBucketRequired         = errors.New("Uploads.Bucket is required for the s3 backend")
	errInvalidEventBackend          = errors.New("invalid Events.Backend value")
	errKafkaIncomplete              = errors.New("Events.Brokers and Events.Topic are required for the kafka backend")
	errSQSQueueRequired             = errors.New("Events.QueueName is required for the sqs backend")
	errInvalidFeedCacheSize         = errors.New("FeedCache.Size must be positive when the feed cache is enabled")
	errEmptyStateFilepath           = errors.New("filepath for StateFilepath cannot be empty when limiter is enabled")
	errInvalidIPv4Prefix            = errors.New("IPv4 prefix must be between 0 and 32")
	errInvalidIPv6Prefix            = errors.New("IPv6 prefix must be between 0 and 128")
	errInvalidLimiterRate           = errors.New("Limiter.Rate and Limiter.Burst must be positive")
)

var (
	fileModeOctalRegexp  = regexp.MustCompile(`^0?[0-7]{3}$`)
	fileModeStringRegexp = regexp.MustCompile(`^(?:[r-][w-][x-]){3}$`)
	digitsRegexp         = regexp.MustCompile(`^[0-9]+$`)
)

// validateAndSet validates the server configuration and populates some fields.
func (cfg *ServerConfig) validateAndSet() error {
	if err := cfg.validateListener(); err != nil {
		return err
	}

	if err := cfg.validateOrigins(); err != nil {
		return err
	}

	if err := cfg.validateGemini(); err != nil {
		return err
	}

	if err := cfg.validateMedia(); err != nil {
		return err
	}

	if err := cfg.validateIdentity(); err != nil {
		return err
	}

	if cfg.Database.DSN == "" {
		return errDatabaseDSNRequired
	}

	if cfg.Quota.FreeUsageLimit < 0 {
		return errInvalidFreeUsageLimit
	}

	if cfg.Quota.ResumeMaxBytes <= 0 || cfg.Quota.UploadMaxBytes < cfg.Quota.ResumeMaxBytes {
		return errInvalidUploadLimits
	}

	if err := cfg.validateStorage(); err != nil {
		return err
	}

	if cfg.FeedCache.Enabled && cfg.FeedCache.Size <= 0 {
		return errInvalidFeedCacheSize
	}

	return cfg.validateLimiter()
}

func (cfg *ServerConfig) validateListener() error {
	if cfg.Basic.UnixSocket == "" {
		if cfg.Basic.Host == "" {
			cfg.Basic.Host = "localhost"
			log.Info().
				Str("host", cfg.Basic.Host).
				Msg("Binding to default host")
		}

		if cfg.Basic.Port == "" {
			cfg.Basic.Port = "3000"
			log.Info().
				Str("port", cfg.Basic.Port).
				Msg("Using default port")
		}

		return nil
	}

	if cfg.Basic.Host != "" || cfg.Basic.Port != "" {
		return errUnixSocketWithHostPort
	}

	switch {
	case cfg.Basic.RawUnixSocketPermissions == "":
		cfg.Basic.UnixSocketPermissions = 0o666
	case fileModeOctalRegexp.MatchString(cfg.Basic.RawUnixSocketPermissions):
		rawModeUint64, _ := strconv.ParseUint(cfg.Basic.RawUnixSocketPermissions, 8, 32)

		cfg.Basic.UnixSocketPermissions = os.FileMode(rawModeUint64)
	case fileModeStringRegexp.MatchString(cfg.Basic.RawUnixSocketPermissions):
		mode := os.FileMode(0)

		for i, c := range cfg.Basic.RawUnixSocketPermissions {
			if c != '-' {
				// Set i-th bit from the end
				const bitsInByte = 8

				mode |= 1 << (bitsInByte - i)
			}
		}

		cfg.Basic.UnixSocketPermissions = mode
	default:
		return errUnixSocketInvalidPermissions
	}

	if cfg.Basic.UnixSocketUser != "" {
		lookup := user.Lookup
		if digitsRegexp.MatchString(cfg.Basic.UnixSocketUser) {
			lookup = user.LookupId
		}

		if _, err := lookup(cfg.Basic.UnixSocketUser); err != nil {
			return errUnixSocketUserDoesNotExist
		}
	}

	if cfg.Basic.UnixSocketGroup != "" {
		lookup := user.LookupGroup
		if digitsRegexp.MatchString(cfg.Basic.UnixSocketGroup) {
			lookup = user.LookupGroupId
		}

		if _, err := lookup(cfg.Basic.UnixSocketGroup); err != nil {
			return errUnixSocketGroupDoesNotExist
		}
	}

	return nil
}

// validateOrigins reduces every allowed origin to scheme://host[:port].
func (cfg *ServerConfig) validateOrigins() error {
	origins := make([]string, 0, len(cfg.Basic.AllowedOrigins))

	for _, raw := range cfg.Basic.AllowedOrigins {
		if raw == "*" {
			origins = append(origins, raw)

			continue
		}

		parsed, err := utils.ParseURL(raw, "Allowed origin")
		if err != nil {
			return fmt.Errorf("invalid allowed origin: %w", err)
		}

		origins = append(origins, utils.GetOriginFromURL(*parsed))
	}

	cfg.Basic.AllowedOrigins = origins

	return nil
}

func (cfg *ServerConfig) validateGemini() error {
	if len(cfg.Gemini.APIKeys) == 0 {
		return errNoGeminiKey
	}

	switch cfg.Gemini.KeyLoadBalancing {
	case "round-robin", "random", "least-recently-used":
	default:
		return errInvalidKeyLoadBalancing
	}

	if cfg.Gemini.Temperature < 0 || cfg.Gemini.Temperature > 2 {
		return errInvalidTemperature
	}

	baseURL, err := utils.ParseURL(cfg.Gemini.BaseURL, "Gemini base")
	if err != nil {
		return fmt.Errorf("invalid Gemini base URL: %w", err)
	}

	cfg.Gemini.BaseURL = baseURL.String()

	return nil
}

func (cfg *ServerConfig) validateMedia() error {
	switch cfg.ImageGen.Provider {
	case ImageProviderClipdrop:
		if cfg.Clipdrop.APIKey == "" {
			return errClipdropKeyRequired
		}

		clipdropURL, err := utils.ParseURL(cfg.Clipdrop.BaseURL, "Clipdrop")
		if err != nil {
			return fmt.Errorf("invalid Clipdrop URL: %w", err)
		}

		cfg.Clipdrop.BaseURL = strings.TrimSuffix(clipdropURL.String(), "/")
	case ImageProviderGemini:
	default:
		return errInvalidImageProvider
	}

	if cfg.Cloudinary.CloudName == "" || cfg.Cloudinary.APIKey == "" || cfg.Cloudinary.APISecret == "" {
		return errCloudinaryIncomplete
	}

	for _, u := range []*string{&cfg.Cloudinary.UploadURL, &cfg.Cloudinary.DeliveryURL} {
		parsed, err := utils.ParseURL(*u, "Cloudinary")
		if err != nil {
			return fmt.Errorf("invalid Cloudinary URL: %w", err)
		}

		*u = strings.TrimSuffix(parsed.String(), "/")
	}

	return nil
}

func (cfg *ServerConfig) validateIdentity() error {
	switch cfg.Identity.Provider {
	case IdentityProviderClerk:
		if cfg.Identity.ClerkSecretKey == "" {
			return errClerkSecretRequired
		}

		apiURL, err := utils.ParseURL(cfg.Identity.ClerkAPIURL, "Clerk API")
		if err != nil {
			return fmt.Errorf("invalid Clerk API URL: %w", err)
		}

		cfg.Identity.ClerkAPIURL = strings.TrimSuffix(apiURL.String(), "/")

		if cfg.Identity.ClerkJWKSURL == "" {
			cfg.Identity.ClerkJWKSURL = utils.JoinURL(cfg.Identity.ClerkAPIURL, "jwks")
		}

		for i, party := range cfg.Identity.AuthorizedParties {
			parsed, err := utils.ParseURL(party, "Authorized party")
			if err != nil {
				return fmt.Errorf("invalid authorized party: %w", err)
			}

			cfg.Identity.AuthorizedParties[i] = utils.GetOriginFromURL(*parsed)
		}
	case IdentityProviderLocal:
		if cfg.Identity.LocalSecret == "" {
			return errLocalSecretRequired
		}

		if _, err := paseto.NewV4AsymmetricSecretKeyFromHex(cfg.Identity.LocalSecret); err != nil {
			key := paseto.NewV4AsymmetricSecretKey()
			log.Error().
				Err(err).
				Msgf("Generated secret key (put this in config.yaml)\nidentity:\n  localSecret: \"%s\"", key.ExportHex())

			return errLocalSecretInvalid
		}
	default:
		return errInvalidIdentityProvider
	}

	return nil
}

func (cfg *ServerConfig) validateStorage() error {
	switch cfg.Uploads.Backend {
	case UploadBackendDisk:
		if cfg.Uploads.Dir == "" {
			return errUploadDirRequired
		}
	case UploadBackendS3:
		if cfg.Uploads.Bucket == "" {
			return errUploadBucketRequired
		}
	default:
		return errInvalidUploadBackend
	}

	switch cfg.Events.Backend {
	case EventBackendNone:
	case EventBackendKafka:
		if len(cfg.Events.Brokers) == 0 || cfg.Events.Topic == "" {
			return errKafkaIncomplete
		}
	case EventBackendSQS:
		if cfg.Events.QueueName == "" {
			return errSQSQueueRequired
		}
	default:
		return errInvalidEventBackend
	}

	return nil
}

func (cfg *ServerConfig) validateLimiter() error {
	if !cfg.Limiter.Enabled {
		return nil
	}

	if cfg.Limiter.StateFilepath == "" {
		return errEmptyStateFilepath
	}

	if cfg.Limiter.IPv4Prefix < 0 || cfg.Limiter.IPv4Prefix > 32 {
		return errInvalidIPv4Prefix
	}

	if cfg.Limiter.IPv6Prefix < 0 || cfg.Limiter.IPv6Prefix > 128 {
		return errInvalidIPv6Prefix
	}

	if cfg.Limiter.Rate <= 0 || cfg.Limiter.Burst <= 0 {
		return errInvalidLimiterRate
	}

	return nil
}
