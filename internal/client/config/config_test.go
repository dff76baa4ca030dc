package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:3000", cfg.ServerURL)
	assert.Equal(t, filepath.Join(dir, "ledger.db"), cfg.DatabasePath)
	assert.Equal(t, 5*time.Minute, cfg.SyncInterval)
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL)
	assert.Equal(t, 3, cfg.RetryCap)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server_url: https://ledger.example.com/
sync_interval: 1m
retry_cap: 5
backup:
  bucket: my-backups
  region: eu-west-1
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "https://ledger.example.com", cfg.ServerURL, "trailing slash is stripped")
	assert.Equal(t, time.Minute, cfg.SyncInterval)
	assert.Equal(t, 5, cfg.RetryCap)
	assert.Equal(t, "my-backups", cfg.Backup.Bucket)
	assert.Equal(t, "eu-west-1", cfg.Backup.Region)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"),
		[]byte("server_url: https://from-file.example.com\n"), 0o644))
	t.Setenv("POCKETLEDGER_SERVER_URL", "https://from-env.example.com")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "https://from-env.example.com", cfg.ServerURL)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"),
		[]byte("retry_cap: 0\n"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}
