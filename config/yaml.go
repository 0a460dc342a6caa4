// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/rs/zerolog/log"
)

// readYAML overlays the file at path onto cfg. Unknown keys are an error so
// that typos do not pass silently. A missing file is skipped.
func (cfg *ServerConfig) readYAML(path string) error {
	if path == "" {
		return nil
	}

	raw, err := os.ReadFile(path) // #nosec G304 -- operator supplied config path
	if errors.Is(err, os.ErrNotExist) {
		log.Info().Str("path", path).Msg("No YAML configuration file found, skipping")

		return nil
	} else if err != nil {
		return fmt.Errorf("failed to read configuration file %s: %w", path, err)
	}

	if err := yaml.UnmarshalWithOptions(raw, cfg, yaml.Strict()); err != nil {
		return fmt.Errorf("failed to parse YAML from %s: %w", path, err)
	}

	log.Info().Str("path", path).Msg("Loaded configuration file")

	return nil
}

// WriteYAML encodes cfg as a YAML document that readYAML accepts.
func (cfg *ServerConfig) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w, GetDurationEncoderOption(), yaml.IndentSequence(true))

	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}

	return enc.Close()
}
