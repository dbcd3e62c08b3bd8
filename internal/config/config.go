// Package config loads the process-wide settings from environment
// variables. Settings are read once at startup and never mutated.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Auth modes accepted by the gate.
const (
	ModePublic   = "public"
	ModeAPIKey   = "api_key"
	ModeFirebase = "firebase"
)

// Config holds all application configuration.
type Config struct {
	AppName string `env:"HELIX_APP_NAME" envDefault:"helix"`

	HTTPPort int `env:"HTTP_PORT" envDefault:"8080"`

	// Logging
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string `env:"LOG_FORMAT" envDefault:"json"`
	LogRequests    bool   `env:"LOG_REQUESTS" envDefault:"true"`
	LogRequestBody bool   `env:"LOG_REQUEST_BODY" envDefault:"false"`

	// Provider
	OpenAIAPIKey  string  `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string  `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	Model         string  `env:"HELIX_MODEL" envDefault:"gpt-5.2"`
	Temperature   float64 `env:"HELIX_TEMPERATURE" envDefault:"0.2"`
	DryRun        bool    `env:"HELIX_DRY_RUN" envDefault:"false"`

	// Access control. AccessMode plus APIKey is the legacy pair; AuthMode,
	// when set, takes precedence.
	AccessMode string `env:"HELIX_ACCESS_MODE" envDefault:"public"`
	APIKey     string `env:"HELIX_API_KEY"`
	AuthMode   string `env:"HELIX_AUTH_MODE"`

	// Firebase identity verification
	FirebaseProjectID       string `env:"HELIX_FIREBASE_PROJECT_ID"`
	FirebaseCredentialsFile string `env:"HELIX_FIREBASE_CREDENTIALS_FILE"`
	FirebaseCredentialsJSON string `env:"HELIX_FIREBASE_CREDENTIALS_JSON"`

	// Storage and trial accounting
	DBPath    string `env:"HELIX_DB_PATH" envDefault:"helix.db"`
	TrialDays int    `env:"HELIX_TRIAL_DAYS" envDefault:"7"`

	// Durable session history bound (messages kept per session)
	SessionMaxMessages int `env:"SESSION_MAX_MESSAGES" envDefault:"50"`

	CORSAllowOrigins string `env:"CORS_ALLOW_ORIGINS" envDefault:"*"`
}

// Load parses environment variables into a Config. A .env file in the
// working directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.OpenAIAPIKey = strings.TrimSpace(cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.OpenAIBaseURL), "/")
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.AccessMode = strings.ToLower(strings.TrimSpace(cfg.AccessMode))
	cfg.AuthMode = strings.ToLower(strings.TrimSpace(cfg.AuthMode))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))

	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		return nil, fmt.Errorf("HELIX_TEMPERATURE must be in [0, 2], got %v", cfg.Temperature)
	}
	if cfg.TrialDays < 0 {
		return nil, fmt.Errorf("HELIX_TRIAL_DAYS must not be negative, got %d", cfg.TrialDays)
	}
	if cfg.SessionMaxMessages < 1 {
		return nil, fmt.Errorf("SESSION_MAX_MESSAGES must be positive, got %d", cfg.SessionMaxMessages)
	}
	switch cfg.AuthMode {
	case "", ModePublic, ModeAPIKey, ModeFirebase:
	default:
		return nil, fmt.Errorf("invalid HELIX_AUTH_MODE: %q", cfg.AuthMode)
	}

	return cfg, nil
}

// EffectiveAuthMode resolves the auth mode the gate runs in. An explicit
// HELIX_AUTH_MODE wins; otherwise the legacy access mode is mapped
// (private becomes api_key, anything else public).
func (c *Config) EffectiveAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.AccessMode == "private" {
		return ModeAPIKey
	}
	return ModePublic
}

// AllowedOrigins parses CORS_ALLOW_ORIGINS into a slice.
func (c *Config) AllowedOrigins() []string {
	parts := strings.Split(c.CORSAllowOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
