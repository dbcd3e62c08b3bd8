package config

import (
	"os"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.Model != "gpt-5.2" {
		t.Errorf("expected default model gpt-5.2, got %s", cfg.Model)
	}
	if cfg.Temperature != 0.2 {
		t.Errorf("expected default temperature 0.2, got %v", cfg.Temperature)
	}
	if cfg.TrialDays != 7 {
		t.Errorf("expected default trial days 7, got %d", cfg.TrialDays)
	}
	if !cfg.LogRequests {
		t.Error("expected LOG_REQUESTS to default to true")
	}
	if cfg.EffectiveAuthMode() != ModePublic {
		t.Errorf("expected default auth mode public, got %s", cfg.EffectiveAuthMode())
	}
}

func TestLoad_InvalidTemperature(t *testing.T) {
	os.Setenv("HELIX_TEMPERATURE", "3.5")
	defer os.Unsetenv("HELIX_TEMPERATURE")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for out-of-range temperature")
	}
}

func TestLoad_InvalidAuthMode(t *testing.T) {
	os.Setenv("HELIX_AUTH_MODE", "oauth")
	defer os.Unsetenv("HELIX_AUTH_MODE")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown auth mode")
	}
}

func TestEffectiveAuthMode_LegacyMapping(t *testing.T) {
	cfg := &Config{AccessMode: "private"}
	if got := cfg.EffectiveAuthMode(); got != ModeAPIKey {
		t.Errorf("expected private to map to api_key, got %s", got)
	}

	cfg = &Config{AccessMode: "public"}
	if got := cfg.EffectiveAuthMode(); got != ModePublic {
		t.Errorf("expected public to map to public, got %s", got)
	}

	// Explicit mode wins over the legacy access mode.
	cfg = &Config{AccessMode: "private", AuthMode: ModeFirebase}
	if got := cfg.EffectiveAuthMode(); got != ModeFirebase {
		t.Errorf("expected explicit firebase mode, got %s", got)
	}
}

func TestAllowedOrigins(t *testing.T) {
	cfg := &Config{CORSAllowOrigins: "https://a.example, https://b.example ,"}
	got := cfg.AllowedOrigins()
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Errorf("unexpected origins: %v", got)
	}
}
