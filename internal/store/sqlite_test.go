package store

import (
	"testing"
	"time"
)

func newTestStore(t *testing.T, trialDays int) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:", trialDays)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func strPtr(v string) *string { return &v }

func TestGetOrCreateUser_NewTrialUser(t *testing.T) {
	s := newTestStore(t, 7)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return now }

	u, err := s.GetOrCreateUser("uid-1", strPtr("a@example.com"), strPtr("Ada"))
	if err != nil {
		t.Fatalf("GetOrCreateUser failed: %v", err)
	}

	if u.Plan != PlanTrial {
		t.Errorf("expected plan trial, got %s", u.Plan)
	}
	if u.TrialEndsAt == nil {
		t.Fatal("expected trial_ends_at to be set")
	}
	wantEnd := now.Add(7 * 24 * time.Hour)
	if !u.TrialEndsAt.Equal(wantEnd) {
		t.Errorf("expected trial end %v, got %v", wantEnd, *u.TrialEndsAt)
	}
	if !u.TrialActive(now) {
		t.Error("expected trial to be active immediately after creation")
	}
	if u.TrialActive(now.Add(8 * 24 * time.Hour)) {
		t.Error("expected trial to be inactive after the window elapses")
	}
}

func TestGetOrCreateUser_NoTrialConfigured(t *testing.T) {
	s := newTestStore(t, 0)

	u, err := s.GetOrCreateUser("uid-free", nil, nil)
	if err != nil {
		t.Fatalf("GetOrCreateUser failed: %v", err)
	}
	if u.Plan != PlanFree {
		t.Errorf("expected plan free, got %s", u.Plan)
	}
	if u.TrialStartedAt != nil || u.TrialEndsAt != nil {
		t.Error("expected no trial window when trial days is zero")
	}
	if u.TrialActive(time.Now()) {
		t.Error("expected free user without trial window to be inactive")
	}
}

func TestGetOrCreateUser_Idempotent(t *testing.T) {
	s := newTestStore(t, 7)
	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return created }

	first, err := s.GetOrCreateUser("uid-2", strPtr("a@example.com"), nil)
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}

	later := created.Add(2 * time.Hour)
	s.Now = func() time.Time { return later }

	second, err := s.GetOrCreateUser("uid-2", nil, nil)
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}

	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("created_at changed: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
	if !second.TrialEndsAt.Equal(*first.TrialEndsAt) {
		t.Errorf("trial_ends_at changed: %v -> %v", first.TrialEndsAt, second.TrialEndsAt)
	}
	if !second.LastSeenAt.Equal(later) {
		t.Errorf("expected last_seen_at %v, got %v", later, second.LastSeenAt)
	}
	// Email survives a nil update (coalesce).
	if second.Email == nil || *second.Email != "a@example.com" {
		t.Errorf("expected email to be retained, got %v", second.Email)
	}
}

func TestGetOrCreateUser_CoalescesNewValues(t *testing.T) {
	s := newTestStore(t, 7)

	if _, err := s.GetOrCreateUser("uid-3", nil, nil); err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	u, err := s.GetOrCreateUser("uid-3", strPtr("late@example.com"), strPtr("Late"))
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if u.Email == nil || *u.Email != "late@example.com" {
		t.Errorf("expected email to be filled in, got %v", u.Email)
	}
	if u.Name == nil || *u.Name != "Late" {
		t.Errorf("expected name to be filled in, got %v", u.Name)
	}
}

func TestTrialActive_PaidIgnoresTimestamps(t *testing.T) {
	past := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	u := &UserRecord{Plan: PlanPaid, TrialEndsAt: &past}
	if !u.TrialActive(time.Now()) {
		t.Error("expected paid plan to always be active")
	}
}

func TestGetUser_Missing(t *testing.T) {
	s := newTestStore(t, 7)
	u, err := s.GetUser("nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u != nil {
		t.Errorf("expected nil for missing user, got %+v", u)
	}
}

func TestSessionMessages_AppendAndTrim(t *testing.T) {
	s := newTestStore(t, 7)

	for i := 0; i < 4; i++ {
		err := s.AppendSessionMessages("sess-1", 4,
			Message{Role: RoleUser, Content: "u"},
			Message{Role: RoleAssistant, Content: "a"},
		)
		if err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	msgs, err := s.SessionMessages("sess-1", 50)
	if err != nil {
		t.Fatalf("SessionMessages failed: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("expected session trimmed to 4 messages, got %d", len(msgs))
	}
	// Chronological order, most recent window retained.
	for i, want := range []string{RoleUser, RoleAssistant, RoleUser, RoleAssistant} {
		if msgs[i].Role != want {
			t.Errorf("message %d: expected role %s, got %s", i, want, msgs[i].Role)
		}
	}
}

func TestSessionMessages_IsolatedBySession(t *testing.T) {
	s := newTestStore(t, 7)

	if err := s.AppendSessionMessages("sess-a", 50, Message{Role: RoleUser, Content: "hello"}); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	msgs, err := s.SessionMessages("sess-b", 50)
	if err != nil {
		t.Fatalf("SessionMessages failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected no messages for other session, got %d", len(msgs))
	}
}
