package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/triplehelix/helix/internal/config"
	"github.com/triplehelix/helix/internal/store"
)

type fakeVerifier struct {
	ident *Identity
	err   error
}

func (f *fakeVerifier) Verify(ctx context.Context, idToken string) (*Identity, error) {
	return f.ident, f.err
}

type fakeUsers struct {
	lastUID string
}

func (f *fakeUsers) GetOrCreateUser(uid string, email, name *string) (*store.UserRecord, error) {
	f.lastUID = uid
	return &store.UserRecord{UID: uid, Email: email, Name: name, Plan: store.PlanTrial}, nil
}

func TestGate_PublicAlwaysSucceeds(t *testing.T) {
	gate := NewGate(&config.Config{AccessMode: "public"}, nil, nil)

	r := httptest.NewRequest("POST", "/v1/chat", nil)
	ac, err := gate.Authenticate(r.Context(), r)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if ac.Mode != config.ModePublic || ac.User != nil {
		t.Errorf("unexpected context: %+v", ac)
	}
}

func TestGate_APIKey(t *testing.T) {
	gate := NewGate(&config.Config{AuthMode: config.ModeAPIKey, APIKey: "s3cret"}, nil, nil)

	r := httptest.NewRequest("POST", "/v1/chat", nil)
	r.Header.Set("X-API-Key", "wrong")
	if _, err := gate.Authenticate(r.Context(), r); err == nil {
		t.Fatal("expected rejection for wrong key")
	} else {
		var ue *UnauthorizedError
		if !errors.As(err, &ue) {
			t.Fatalf("expected UnauthorizedError, got %T", err)
		}
	}

	r = httptest.NewRequest("POST", "/v1/chat", nil)
	r.Header.Set("X-API-Key", "s3cret")
	if _, err := gate.Authenticate(r.Context(), r); err != nil {
		t.Fatalf("expected header credential to pass, got %v", err)
	}

	r = httptest.NewRequest("POST", "/v1/chat", nil)
	r.Header.Set("Authorization", "Bearer s3cret")
	if _, err := gate.Authenticate(r.Context(), r); err != nil {
		t.Fatalf("expected bearer credential to pass, got %v", err)
	}
}

func TestGate_APIKeyModeWithoutSecretIsConfigError(t *testing.T) {
	gate := NewGate(&config.Config{AccessMode: "private"}, nil, nil)

	r := httptest.NewRequest("POST", "/v1/chat", nil)
	r.Header.Set("X-API-Key", "anything")
	_, err := gate.Authenticate(r.Context(), r)

	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestGate_FirebaseResolvesUser(t *testing.T) {
	email := "a@example.com"
	verifier := &fakeVerifier{ident: &Identity{UID: "uid-1", Email: &email}}
	users := &fakeUsers{}
	gate := NewGate(&config.Config{AuthMode: config.ModeFirebase}, verifier, users)

	r := httptest.NewRequest("POST", "/v1/chat", nil)
	r.Header.Set("Authorization", "Bearer sometoken")
	ac, err := gate.Authenticate(r.Context(), r)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if ac.User == nil || ac.User.UID != "uid-1" {
		t.Errorf("expected resolved user, got %+v", ac.User)
	}
	if users.lastUID != "uid-1" {
		t.Errorf("expected store call for uid-1, got %q", users.lastUID)
	}
}

func TestGate_FirebaseMissingBearer(t *testing.T) {
	gate := NewGate(&config.Config{AuthMode: config.ModeFirebase}, &fakeVerifier{}, &fakeUsers{})

	r := httptest.NewRequest("POST", "/v1/chat", nil)
	var ue *UnauthorizedError
	if _, err := gate.Authenticate(r.Context(), r); !errors.As(err, &ue) {
		t.Fatalf("expected UnauthorizedError, got %v", err)
	}
}

func TestGate_FirebaseVerifierFailure(t *testing.T) {
	verifier := &fakeVerifier{err: errors.New("token expired: kid mismatch internal detail")}
	gate := NewGate(&config.Config{AuthMode: config.ModeFirebase}, verifier, &fakeUsers{})

	r := httptest.NewRequest("POST", "/v1/chat", nil)
	r.Header.Set("Authorization", "Bearer bad")
	_, err := gate.Authenticate(r.Context(), r)

	var ue *UnauthorizedError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnauthorizedError, got %v", err)
	}
	// Verifier internals must not cross the boundary.
	if ue.Reason != "Invalid identity token" {
		t.Errorf("unexpected reason: %q", ue.Reason)
	}
}

func TestGate_FirebaseMissingUID(t *testing.T) {
	verifier := &fakeVerifier{ident: &Identity{UID: "  "}}
	gate := NewGate(&config.Config{AuthMode: config.ModeFirebase}, verifier, &fakeUsers{})

	r := httptest.NewRequest("POST", "/v1/chat", nil)
	r.Header.Set("Authorization", "Bearer tok")
	var ue *UnauthorizedError
	if _, err := gate.Authenticate(r.Context(), r); !errors.As(err, &ue) {
		t.Fatalf("expected UnauthorizedError, got %v", err)
	}
}

func TestGate_InvalidModeIsConfigError(t *testing.T) {
	gate := &Gate{mode: "saml"}

	r := httptest.NewRequest("POST", "/v1/chat", nil)
	var ce *ConfigError
	if _, err := gate.Authenticate(r.Context(), r); !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}
