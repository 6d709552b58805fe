package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Empty(t, cfg.X.ClientID)
	assert.Equal(t, "http://127.0.0.1:8585/callback", cfg.X.RedirectURI)
	assert.Equal(t, "https://api.x.com/2", cfg.X.APIBaseURL)
	assert.Equal(t, "https://x.com/i/oauth2/authorize", cfg.X.AuthorizeURL)
	assert.Equal(t, "https://bsky.social", cfg.Bluesky.PDSURL)
	assert.Empty(t, cfg.AccountsPath)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	yaml := `x:
  client_id: file-client
  client_secret: file-secret
bluesky:
  pds_url: https://pds.example.com
accounts_path: /tmp/accounts.json
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "syndicate.yml"), []byte(yaml), 0o600))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "file-client", cfg.X.ClientID)
	assert.Equal(t, "file-secret", cfg.X.ClientSecret)
	assert.Equal(t, "https://pds.example.com", cfg.Bluesky.PDSURL)
	assert.Equal(t, "/tmp/accounts.json", cfg.AccountsPath)
	// untouched keys keep their defaults
	assert.Equal(t, "http://127.0.0.1:8585/callback", cfg.X.RedirectURI)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	yaml := "x:\n  client_id: file-client\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "syndicate.yml"), []byte(yaml), 0o600))

	t.Setenv("SYNDICATE_X_CLIENT_ID", "env-client")
	t.Setenv("SYNDICATE_BLUESKY_PDS_URL", "https://env.pds.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "env-client", cfg.X.ClientID)
	assert.Equal(t, "https://env.pds.example.com", cfg.Bluesky.PDSURL)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "syndicate.yml"), []byte("x: [unclosed"), 0o600))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}
