package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_RejectsUnknownFlag(t *testing.T) {
	err := run([]string{"-listen", ":80"})
	assert.Error(t, err)
}

func TestRun_InvalidConfiguration(t *testing.T) {
	t.Setenv("EDUJAM_GROUPS_MAX_PARTICIPANTS", "0")

	err := run([]string{"-env", filepath.Join(t.TempDir(), "missing.env")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
	assert.Contains(t, err.Error(), "groups.max_participants")
}

func TestRun_UnsupportedConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edujam.toml")
	require.NoError(t, os.WriteFile(path, []byte("port = 1"), 0o600))

	err := run([]string{"-env", filepath.Join(t.TempDir(), "missing.env"), "-config", path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported")
}

func TestRun_ApplicationConstructionFails(t *testing.T) {
	// A regular file where the database directory should be
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	t.Setenv("EDUJAM_DATABASE_PATH", filepath.Join(blocker, "chat.db"))

	err := run([]string{"-env", filepath.Join(t.TempDir(), "missing.env")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create application")
}
