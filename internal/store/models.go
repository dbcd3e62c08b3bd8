package store

import "time"

// Plans a user record can hold. Paid and admin bypass the trial window.
const (
	PlanTrial = "trial"
	PlanFree  = "free"
	PlanPaid  = "paid"
	PlanAdmin = "admin"
)

// Conversation roles accepted in session history.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// UserRecord is one row per authenticated subject, keyed by the uid the
// identity verifier reports.
type UserRecord struct {
	UID            string     `json:"uid"`
	Email          *string    `json:"email"`
	Name           *string    `json:"name"`
	CreatedAt      time.Time  `json:"created_at"`
	LastSeenAt     time.Time  `json:"last_seen_at"`
	Plan           string     `json:"plan"`
	TrialStartedAt *time.Time `json:"trial_started_at"`
	TrialEndsAt    *time.Time `json:"trial_ends_at"`
}

// TrialActive reports whether the user may use the service at the given
// instant. Paid and admin plans are always active; otherwise the trial
// window must be set and not yet elapsed.
func (u *UserRecord) TrialActive(now time.Time) bool {
	if u.Plan == PlanPaid || u.Plan == PlanAdmin {
		return true
	}
	if u.TrialEndsAt == nil {
		return false
	}
	return !now.After(*u.TrialEndsAt)
}

// TrialSecondsRemaining returns the seconds left in the trial window, nil
// when no window is set, and never goes below zero.
func (u *UserRecord) TrialSecondsRemaining(now time.Time) *int64 {
	if u.TrialEndsAt == nil {
		return nil
	}
	secs := int64(u.TrialEndsAt.Sub(now).Seconds())
	if secs < 0 {
		secs = 0
	}
	return &secs
}

// PublicUser is the externally visible view of a UserRecord.
type PublicUser struct {
	UID                   string     `json:"uid"`
	Email                 *string    `json:"email"`
	Name                  *string    `json:"name"`
	Plan                  string     `json:"plan"`
	TrialStartedAt        *time.Time `json:"trial_started_at"`
	TrialEndsAt           *time.Time `json:"trial_ends_at"`
	TrialActive           bool       `json:"trial_active"`
	TrialSecondsRemaining *int64     `json:"trial_seconds_remaining"`
	CreatedAt             time.Time  `json:"created_at"`
	LastSeenAt            time.Time  `json:"last_seen_at"`
}

// Public builds the external view of the record at the given instant.
func (u *UserRecord) Public(now time.Time) PublicUser {
	return PublicUser{
		UID:                   u.UID,
		Email:                 u.Email,
		Name:                  u.Name,
		Plan:                  u.Plan,
		TrialStartedAt:        u.TrialStartedAt,
		TrialEndsAt:           u.TrialEndsAt,
		TrialActive:           u.TrialActive(now),
		TrialSecondsRemaining: u.TrialSecondsRemaining(now),
		CreatedAt:             u.CreatedAt,
		LastSeenAt:            u.LastSeenAt,
	}
}

// Message is one stored conversation turn of a session.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
