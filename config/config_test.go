package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port should default to 8080, got %s", cfg.Port)
	}
	if cfg.Environment != "development" {
		t.Errorf("Environment should default to development, got %s", cfg.Environment)
	}
	if len(cfg.AllowedOrigins) == 0 {
		t.Error("AllowedOrigins should have defaults")
	}
	if cfg.Redis.Host != "localhost" {
		t.Errorf("Redis host should default to localhost, got %s", cfg.Redis.Host)
	}
	if cfg.Client.RingTimeout != 60*time.Second {
		t.Errorf("RingTimeout should default to 60s, got %s", cfg.Client.RingTimeout)
	}
	if len(cfg.Client.StunServers) == 0 {
		t.Error("StunServers should have a default")
	}
	if cfg.Client.DataDir == "" {
		t.Error("DataDir should not be empty")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("RING_TIMEOUT_SECONDS", "30")
	t.Setenv("ALLOWED_ORIGINS", "https://crm.example.com")

	cfg := Load()

	if cfg.Port != "9999" {
		t.Errorf("PORT override ignored, got %s", cfg.Port)
	}
	if cfg.Client.RingTimeout != 30*time.Second {
		t.Errorf("RING_TIMEOUT_SECONDS override ignored, got %s", cfg.Client.RingTimeout)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "https://crm.example.com" {
		t.Errorf("ALLOWED_ORIGINS override ignored, got %v", cfg.AllowedOrigins)
	}
}

func TestBadDurationFallsBack(t *testing.T) {
	t.Setenv("RING_TIMEOUT_SECONDS", "soon")

	cfg := Load()
	if cfg.Client.RingTimeout != 60*time.Second {
		t.Errorf("unparseable duration should fall back to default, got %s", cfg.Client.RingTimeout)
	}
}
