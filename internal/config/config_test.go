package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_AbsentFileIsNotAnError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.conf"))
	require.NoError(t, err)
	assert.Equal(t, DefaultIdleExitTimeout, cfg.IdleExitTimeout)
	assert.Equal(t, DefaultUpdatePolicy, cfg.AutomaticUpdatePolicy)
}

func TestLoad_EmptyPathIsNotAnError(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultIdleExitTimeout, cfg.IdleExitTimeout)
}

func TestLoad_ReadsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.conf")
	contents := "[Daemon]\nIdleExitTimeout=120\nAutomaticUpdatePolicy=check\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 120*time.Second, cfg.IdleExitTimeout)
	assert.Equal(t, PolicyCheck, cfg.AutomaticUpdatePolicy)
}

func TestLoad_UnreadablePathIsAnError(t *testing.T) {
	// A path that exists but is a directory: os.Stat succeeds, so Load
	// attempts to actually read it and viper reports a real error distinct
	// from "file absent".
	dir := t.TempDir()
	_, err := Load(dir)
	assert.Error(t, err)
}
