// Package config reads process configuration from HOMESTEAD_* environment
// variables, optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port      string
	DBPath    string
	BaseURL   string
	LogLevel  string
	LogFormat string

	PostmarkToken string
	FromEmail     string

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubscriber string

	SessionTTL    time.Duration
	SweepInterval time.Duration
	PruneInterval time.Duration
}

// EmailConfigured reports whether reminder emails can be sent.
func (c *Config) EmailConfigured() bool {
	return c.PostmarkToken != "" && c.FromEmail != ""
}

// PushConfigured reports whether web push is available.
func (c *Config) PushConfigured() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

// Load reads .env when present and then the environment. Variables already
// set in the environment win over .env.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return fromEnv(os.Getenv)
}

func fromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return def
	}

	port := get("HOMESTEAD_PORT", "8080")
	if _, err := strconv.Atoi(port); err != nil {
		return nil, fmt.Errorf("HOMESTEAD_PORT: invalid port %q", port)
	}

	cfg := &Config{
		Port:            port,
		DBPath:          get("HOMESTEAD_DB_PATH", "homestead.db"),
		BaseURL:         get("HOMESTEAD_BASE_URL", "http://localhost:"+port),
		LogLevel:        get("HOMESTEAD_LOG_LEVEL", "info"),
		LogFormat:       get("HOMESTEAD_LOG_FORMAT", "text"),
		PostmarkToken:   getenv("HOMESTEAD_POSTMARK_TOKEN"),
		FromEmail:       getenv("HOMESTEAD_FROM_EMAIL"),
		VAPIDPublicKey:  getenv("HOMESTEAD_VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: getenv("HOMESTEAD_VAPID_PRIVATE_KEY"),
		VAPIDSubscriber: getenv("HOMESTEAD_VAPID_SUBSCRIBER"),
	}

	durations := []struct {
		key  string
		def  time.Duration
		dest *time.Duration
	}{
		{"HOMESTEAD_SESSION_TTL", 30 * 24 * time.Hour, &cfg.SessionTTL},
		{"HOMESTEAD_SWEEP_INTERVAL", time.Minute, &cfg.SweepInterval},
		{"HOMESTEAD_PRUNE_INTERVAL", 24 * time.Hour, &cfg.PruneInterval},
	}
	for _, d := range durations {
		*d.dest = d.def
		v := getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s: invalid duration %q", d.key, v)
		}
		*d.dest = parsed
	}

	if cfg.VAPIDSubscriber == "" && cfg.FromEmail != "" {
		cfg.VAPIDSubscriber = "mailto:" + cfg.FromEmail
	}
	return cfg, nil
}
