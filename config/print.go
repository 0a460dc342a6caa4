// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/rs/zerolog/log"
)

const redactedValue = "[redacted]"

// Redacted returns a copy of cfg with every secret replaced.
func (cfg *ServerConfig) Redacted() ServerConfig {
	printable := *cfg

	if len(printable.Gemini.APIKeys) > 0 {
		printable.Gemini.APIKeys = []string{fmt.Sprintf("%s (%d keys)", redactedValue, len(cfg.Gemini.APIKeys))}
	}

	redact := func(s *string) {
		if *s != "" {
			*s = redactedValue
		}
	}

	redact(&printable.Clipdrop.APIKey)
	redact(&printable.Cloudinary.APISecret)
	redact(&printable.Identity.ClerkSecretKey)
	redact(&printable.Identity.LocalSecret)
	redact(&printable.Database.DSN)

	return printable
}

func (cfg *ServerConfig) print() {
	log.Info().
		Str("version", BuildVersion).
		Str("revision", cfg.Build.Revision()).
		Str("identity", cfg.Identity.Provider).
		Str("images", cfg.ImageGen.Provider).
		Msg("Starting QuickAI")

	configYAML, err := yaml.MarshalWithOptions(
		cfg.Redacted(),
		GetDurationEncoderOption(),
	)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal config to YAML for printing")

		return
	}

	log.Info().
		Msg("Application configuration:")
	fmt.Fprintln(os.Stderr, string(configYAML))
}
