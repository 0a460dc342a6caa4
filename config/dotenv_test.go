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

func TestParseDotEnv(t *testing.T) {
	t.Parallel()

	content := `# QuickAI
QUICKAI_PORT=3000
export QUICKAI_HOST = 0.0.0.0
QUICKAI_CLERK_SECRET_KEY="sk_test_a=b"
QUICKAI_FOLDER=''
QUICKAI_NOTE='it"s'
not a variable
=value
BAD KEY=1
`

	vars, bad := parseDotEnv(content)

	assert.Equal(t, map[string]string{
		"QUICKAI_PORT":             "3000",
		"QUICKAI_HOST":             "0.0.0.0",
		"QUICKAI_CLERK_SECRET_KEY": "sk_test_a=b",
		"QUICKAI_FOLDER":           "",
		"QUICKAI_NOTE":             `it"s`,
	}, vars)
	assert.Equal(t, []int{7, 8, 9}, bad)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("QUICKAI_DOTENV_A=from-file\nQUICKAI_DOTENV_B=from-file\n"), 0o600))

	t.Setenv("QUICKAI_DOTENV_A", "from-shell")
	t.Setenv("QUICKAI_DOTENV_B", "")
	require.NoError(t, os.Unsetenv("QUICKAI_DOTENV_B"))

	t.Cleanup(func() { _ = os.Unsetenv("QUICKAI_DOTENV_B") })

	loaded, err := loadDotEnv(path)
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.Equal(t, "from-shell", os.Getenv("QUICKAI_DOTENV_A"))
	assert.Equal(t, "from-file", os.Getenv("QUICKAI_DOTENV_B"))

	loaded, err = loadDotEnv(filepath.Join(t.TempDir(), ".env"))
	require.NoError(t, err)
	assert.False(t, loaded)
}
