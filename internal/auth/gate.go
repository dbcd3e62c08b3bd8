// Package auth classifies inbound requests into the configured trust
// level and resolves the caller's identity when required.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/triplehelix/helix/internal/config"
	"github.com/triplehelix/helix/internal/store"
)

// ConfigError reports a server-side auth misconfiguration (500-class).
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return e.Reason }

// UnauthorizedError reports a missing, invalid, or mismatched credential
// (401-class). Reason is safe to return to the caller.
type UnauthorizedError struct {
	Reason string
}

func (e *UnauthorizedError) Error() string { return e.Reason }

// Identity is what the external token verifier reports about a subject.
type Identity struct {
	UID   string
	Email *string
	Name  *string
}

// TokenVerifier validates an opaque identity token.
type TokenVerifier interface {
	Verify(ctx context.Context, idToken string) (*Identity, error)
}

// UserStore is the slice of the store the gate needs.
type UserStore interface {
	GetOrCreateUser(uid string, email, name *string) (*store.UserRecord, error)
}

// Context is the per-request authentication result. User is set only in
// firebase mode.
type Context struct {
	Mode string
	User *store.UserRecord
}

// Gate evaluates the configured auth mode per request. It holds no state
// across requests.
type Gate struct {
	mode     string
	apiKey   string
	verifier TokenVerifier
	users    UserStore
}

// NewGate builds a gate for the settings' effective auth mode. verifier
// and users are only consulted in firebase mode.
func NewGate(cfg *config.Config, verifier TokenVerifier, users UserStore) *Gate {
	return &Gate{
		mode:     cfg.EffectiveAuthMode(),
		apiKey:   cfg.APIKey,
		verifier: verifier,
		users:    users,
	}
}

// Mode returns the mode the gate runs in.
func (g *Gate) Mode() string { return g.mode }

// Authenticate resolves the request's auth context or rejects it with an
// UnauthorizedError or ConfigError.
func (g *Gate) Authenticate(ctx context.Context, r *http.Request) (*Context, error) {
	switch g.mode {
	case config.ModePublic:
		return &Context{Mode: config.ModePublic}, nil

	case config.ModeAPIKey:
		if g.apiKey == "" {
			return nil, &ConfigError{Reason: "api_key mode is active but HELIX_API_KEY is not set"}
		}
		token := extractCredential(r)
		if token == "" || token != g.apiKey {
			return nil, &UnauthorizedError{Reason: "Unauthorized"}
		}
		return &Context{Mode: config.ModeAPIKey}, nil

	case config.ModeFirebase:
		if g.verifier == nil {
			return nil, &ConfigError{Reason: "firebase mode is active but no token verifier is configured"}
		}
		token := extractBearer(r)
		if token == "" {
			return nil, &UnauthorizedError{Reason: "Missing Bearer token"}
		}

		ident, err := g.verifier.Verify(ctx, token)
		if err != nil {
			// Verifier internals stay server-side.
			return nil, &UnauthorizedError{Reason: "Invalid identity token"}
		}
		if strings.TrimSpace(ident.UID) == "" {
			return nil, &UnauthorizedError{Reason: "Invalid identity token (missing uid)"}
		}

		user, err := g.users.GetOrCreateUser(ident.UID, ident.Email, ident.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve user %s: %w", ident.UID, err)
		}
		return &Context{Mode: config.ModeFirebase, User: user}, nil
	}

	return nil, &ConfigError{Reason: fmt.Sprintf("invalid auth mode: %q", g.mode)}
}

// extractBearer returns the Authorization bearer token, if any.
func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// extractCredential accepts either the Authorization bearer form or the
// dedicated X-API-Key header.
func extractCredential(r *http.Request) string {
	if token := extractBearer(r); token != "" {
		return token
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}
