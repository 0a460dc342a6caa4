// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// useDotEnv loads the .env file of the working directory, or failing that
// the one next to the binary. Variables already set are left alone. A
// missing file is not an error.
func useDotEnv() error {
	var dirs []string

	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	} else {
		log.Warn().Err(err).Msg("Could not get current working directory")
	}

	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}

	for _, dir := range dirs {
		path := filepath.Join(dir, ".env")

		loaded, err := loadDotEnv(path)
		if err != nil {
			return err
		}

		if loaded {
			log.Info().Str("path", path).Msg("Loaded configuration from .env file")

			return nil
		}
	}

	log.Info().Msg("No .env file found, skipping")

	return nil
}

// loadDotEnv exports the variables of the file at path that are not set yet.
// It reports false when the file does not exist.
func loadDotEnv(path string) (bool, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- fixed file name in known directories
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("reading %s: %w", path, err)
	}

	vars, bad := parseDotEnv(string(data))
	for _, line := range bad {
		log.Warn().Str("path", path).Int("line", line).Msg("Invalid line in .env file")
	}

	for key, value := range vars {
		if _, set := os.LookupEnv(key); set {
			continue
		}

		if err := os.Setenv(key, value); err != nil {
			return true, fmt.Errorf("setting %s from %s: %w", key, path, err)
		}
	}

	return true, nil
}

// parseDotEnv reads KEY=value lines. Blank lines and # comments are
// skipped, an "export " prefix is allowed and one pair of matching quotes
// around the value is removed. It also returns the numbers of lines it
// could not parse.
func parseDotEnv(content string) (map[string]string, []int) {
	vars := make(map[string]string)

	var bad []int

	for i, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(strings.TrimPrefix(line, "export "), "=")
		key = strings.TrimSpace(key)

		if !ok || key == "" || strings.ContainsAny(key, " \t") {
			bad = append(bad, i+1)

			continue
		}

		vars[key] = unquote(strings.TrimSpace(value))
	}

	return vars, bad
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}

	return s
}
