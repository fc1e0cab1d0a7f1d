package oauth

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/louisbranch/guildverify/internal/platform/config"
	"github.com/louisbranch/guildverify/internal/platform/timeouts"
)

// CallbackPath is where Google redirects the browser after consent.
const CallbackPath = "/oauth2"

// Google endpoints used by the verification flow.
const (
	GoogleAuthURL   = "https://accounts.google.com/o/oauth2/v2/auth"
	GoogleTokenURL  = "https://www.googleapis.com/oauth2/v3/token"
	GoogleRevokeURL = "https://oauth2.googleapis.com/revoke"
	GooglePeopleURL = "https://people.googleapis.com/v1/people/me"
)

// Scopes requested from Google. Nothing beyond the user's names and email
// addresses is read.
const (
	ScopeUserInfoEmail   = "https://www.googleapis.com/auth/userinfo.email"
	ScopeUserInfoProfile = "https://www.googleapis.com/auth/userinfo.profile"
)

// Config describes the Google OAuth client and the public server identity.
type Config struct {
	ClientID     string
	ClientSecret string
	// ServerURL is the public host serving CallbackPath. A bare host is
	// served over https; an explicit scheme is kept as given.
	ServerURL       string
	AuthURL         string
	TokenURL        string
	RevokeURL       string
	PeopleURL       string
	Timeout         time.Duration
	CleanupInterval time.Duration
}

// oauthEnv holds raw env values for Google OAuth configuration.
type oauthEnv struct {
	ClientID        string        `env:"GOOGLE_CLIENT_ID"`
	ClientSecret    string        `env:"GOOGLE_CLIENT_SECRET"`
	ServerURL       string        `env:"SERVER_URL"`
	AuthURL         string        `env:"GOOGLE_AUTH_URL"   envDefault:"https://accounts.google.com/o/oauth2/v2/auth"`
	TokenURL        string        `env:"GOOGLE_TOKEN_URL"  envDefault:"https://www.googleapis.com/oauth2/v3/token"`
	RevokeURL       string        `env:"GOOGLE_REVOKE_URL" envDefault:"https://oauth2.googleapis.com/revoke"`
	PeopleURL       string        `env:"GOOGLE_PEOPLE_URL" envDefault:"https://people.googleapis.com/v1/people/me"`
	Timeout         time.Duration `env:"AUTH_TIMEOUT"      envDefault:"5m"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL"  envDefault:"1m"`
}

// LoadConfigFromEnv loads the Google client configuration from
// GUILDVERIFY_-prefixed environment variables.
func LoadConfigFromEnv() (Config, error) {
	var raw oauthEnv
	if err := config.ParseEnvWithPrefix(&raw, config.EnvPrefix); err != nil {
		return Config{}, err
	}
	cfg := Config{
		ClientID:        strings.TrimSpace(raw.ClientID),
		ClientSecret:    strings.TrimSpace(raw.ClientSecret),
		ServerURL:       strings.TrimSpace(raw.ServerURL),
		AuthURL:         strings.TrimSpace(raw.AuthURL),
		TokenURL:        strings.TrimSpace(raw.TokenURL),
		RevokeURL:       strings.TrimSpace(raw.RevokeURL),
		PeopleURL:       strings.TrimSpace(raw.PeopleURL),
		Timeout:         raw.Timeout,
		CleanupInterval: raw.CleanupInterval,
	}
	if err := config.RequireValues(
		config.EnvPrefix+"GOOGLE_CLIENT_ID", cfg.ClientID,
		config.EnvPrefix+"GOOGLE_CLIENT_SECRET", cfg.ClientSecret,
		config.EnvPrefix+"SERVER_URL", cfg.ServerURL,
	); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// RedirectURL returns the absolute callback URL registered with Google.
func (c Config) RedirectURL() string {
	base := strings.TrimRight(c.ServerURL, "/")
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	return base + CallbackPath
}

// withDefaults fills unset endpoints and durations.
func (c Config) withDefaults() Config {
	if c.AuthURL == "" {
		c.AuthURL = GoogleAuthURL
	}
	if c.TokenURL == "" {
		c.TokenURL = GoogleTokenURL
	}
	if c.RevokeURL == "" {
		c.RevokeURL = GoogleRevokeURL
	}
	if c.PeopleURL == "" {
		c.PeopleURL = GooglePeopleURL
	}
	if c.Timeout <= 0 {
		c.Timeout = timeouts.Authentication
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = timeouts.PendingCleanup
	}
	return c
}

// validate rejects configurations that cannot build a working client.
func (c Config) validate() error {
	if c.ClientID == "" {
		return errors.New("client id is required")
	}
	if c.ClientSecret == "" {
		return errors.New("client secret is required")
	}
	if strings.TrimSpace(c.ServerURL) == "" {
		return errors.New("server url is required")
	}
	endpoints := []struct {
		name  string
		value string
	}{
		{"auth url", c.AuthURL},
		{"token url", c.TokenURL},
		{"revoke url", c.RevokeURL},
		{"people url", c.PeopleURL},
		{"redirect url", c.RedirectURL()},
	}
	for _, endpoint := range endpoints {
		parsed, err := url.Parse(endpoint.value)
		if err != nil {
			return fmt.Errorf("%s: %w", endpoint.name, err)
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("%s %q is not absolute", endpoint.name, endpoint.value)
		}
	}
	return nil
}
