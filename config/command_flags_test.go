// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Not parallel: changes the working directory and environment.
func TestConfigFilePath(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	t.Setenv(configFileEnv, "")
	assert.Equal(t, defaultConfigFilePath, configFilePath(), "nothing on disk")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), nil, 0o600))
	assert.Equal(t, altConfigPath, configFilePath(), "only config.yml exists")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), nil, 0o600))
	assert.Equal(t, defaultConfigFilePath, configFilePath(), "config.yaml wins")

	t.Setenv(configFileEnv, "/etc/quickai/config.yaml")
	assert.Equal(t, "/etc/quickai/config.yaml", configFilePath())
}
