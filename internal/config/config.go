// Package config loads application settings from an optional syndicate.yml
// and SYNDICATE_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// XConfig holds the X OAuth2 application settings.
type XConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURI  string `mapstructure:"redirect_uri"`
	APIBaseURL   string `mapstructure:"api_base_url"`
	AuthorizeURL string `mapstructure:"authorize_url"`
}

// BlueskyConfig holds the Bluesky connection settings.
type BlueskyConfig struct {
	PDSURL string `mapstructure:"pds_url"`
}

// Config is the full application configuration.
type Config struct {
	X            XConfig       `mapstructure:"x"`
	Bluesky      BlueskyConfig `mapstructure:"bluesky"`
	AccountsPath string        `mapstructure:"accounts_path"`
}

// Load reads syndicate.yml from the user config dir or the working directory,
// then lets SYNDICATE_* environment variables override (e.g.
// SYNDICATE_X_CLIENT_ID). Every key has a default so env-only setups work.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("syndicate")
	v.SetConfigType("yaml")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "syndicate"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("SYNDICATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("x.client_id", "")
	v.SetDefault("x.client_secret", "")
	v.SetDefault("x.redirect_uri", "http://127.0.0.1:8585/callback")
	v.SetDefault("x.api_base_url", "https://api.x.com/2")
	v.SetDefault("x.authorize_url", "https://x.com/i/oauth2/authorize")
	v.SetDefault("bluesky.pds_url", "https://bsky.social")
	v.SetDefault("accounts_path", "")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}
