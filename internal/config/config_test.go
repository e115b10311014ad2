package config

import (
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaults(t *testing.T) {
	cfg, err := fromEnv(envMap(nil))
	if err != nil {
		t.Fatalf("fromEnv: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.DBPath != "homestead.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.BaseURL != "http://localhost:8080" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.SweepInterval != time.Minute {
		t.Errorf("SweepInterval = %v, want 1m", cfg.SweepInterval)
	}
	if cfg.PruneInterval != 24*time.Hour {
		t.Errorf("PruneInterval = %v, want 24h", cfg.PruneInterval)
	}
	if cfg.SessionTTL != 30*24*time.Hour {
		t.Errorf("SessionTTL = %v", cfg.SessionTTL)
	}
	if cfg.EmailConfigured() || cfg.PushConfigured() {
		t.Error("expected email and push to be unconfigured")
	}
}

func TestOverrides(t *testing.T) {
	cfg, err := fromEnv(envMap(map[string]string{
		"HOMESTEAD_PORT":              "9000",
		"HOMESTEAD_LOG_FORMAT":        "json",
		"HOMESTEAD_POSTMARK_TOKEN":    "tok",
		"HOMESTEAD_FROM_EMAIL":        "noreply@example.com",
		"HOMESTEAD_VAPID_PUBLIC_KEY":  "pub",
		"HOMESTEAD_VAPID_PRIVATE_KEY": "priv",
		"HOMESTEAD_SWEEP_INTERVAL":    "30s",
		"HOMESTEAD_SESSION_TTL":       "12h",
	}))
	if err != nil {
		t.Fatalf("fromEnv: %v", err)
	}
	if cfg.Port != "9000" || cfg.BaseURL != "http://localhost:9000" {
		t.Errorf("Port = %q, BaseURL = %q", cfg.Port, cfg.BaseURL)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q", cfg.LogFormat)
	}
	if !cfg.EmailConfigured() || !cfg.PushConfigured() {
		t.Error("expected email and push to be configured")
	}
	if cfg.VAPIDSubscriber != "mailto:noreply@example.com" {
		t.Errorf("VAPIDSubscriber = %q", cfg.VAPIDSubscriber)
	}
	if cfg.SweepInterval != 30*time.Second || cfg.SessionTTL != 12*time.Hour {
		t.Errorf("SweepInterval = %v, SessionTTL = %v", cfg.SweepInterval, cfg.SessionTTL)
	}
}

func TestInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"HOMESTEAD_PORT": "http"},
		{"HOMESTEAD_SWEEP_INTERVAL": "soon"},
		{"HOMESTEAD_PRUNE_INTERVAL": "-1h"},
	}
	for _, env := range tests {
		if _, err := fromEnv(envMap(env)); err == nil {
			t.Errorf("fromEnv(%v) succeeded, want error", env)
		}
	}
}
