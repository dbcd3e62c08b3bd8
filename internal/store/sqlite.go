package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore persists user records and session messages in a single
// SQLite database file.
type SQLiteStore struct {
	db        *sql.DB
	trialDays int

	// Now supplies the wall clock. Tests may replace it.
	Now func() time.Time
}

// NewSQLiteStore opens (creating if necessary) the database at
// dataSourceName and ensures the schema exists. trialDays controls the
// plan and trial window assigned to newly created users.
func NewSQLiteStore(dataSourceName string, trialDays int) (*SQLiteStore, error) {
	if err := ensureParentDir(dataSourceName); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dataSourceName+"?_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if trialDays < 0 {
		trialDays = 0
	}
	s := &SQLiteStore{db: db, trialDays: trialDays, Now: time.Now}
	if err = s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func ensureParentDir(dataSourceName string) error {
	if dataSourceName == ":memory:" {
		return nil
	}
	dir := filepath.Dir(dataSourceName)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        uid TEXT PRIMARY KEY,
        email TEXT,
        name TEXT,
        created_at TEXT NOT NULL,
        last_seen_at TEXT NOT NULL,
        plan TEXT NOT NULL,
        trial_started_at TEXT,
        trial_ends_at TEXT
    );
    CREATE INDEX IF NOT EXISTS idx_users_last_seen ON users(last_seen_at);

    CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY,
        session_id TEXT NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('system', 'user', 'assistant')),
        content TEXT NOT NULL,
        created_at TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);
    `
	_, err := s.db.Exec(schema)
	return err
}

// Timestamps are stored as RFC 3339 UTC strings so that values round-trip
// independently of driver scan behavior.
const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(v string) (time.Time, error) {
	return time.Parse(timeLayout, v)
}

func parseTimePtr(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := parseTime(v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetOrCreateUser looks up the record for uid, creating it on first sight.
// Existing records coalesce email/name (non-nil input wins) and refresh
// last_seen_at. The upsert makes concurrent first-seen calls safe: at most
// one insert can succeed for a uid, later racers take the update path.
func (s *SQLiteStore) GetOrCreateUser(uid string, email, name *string) (*UserRecord, error) {
	now := s.Now().UTC()

	plan := PlanFree
	var trialStarted, trialEnds *time.Time
	if s.trialDays > 0 {
		plan = PlanTrial
		started := now
		ends := now.Add(time.Duration(s.trialDays) * 24 * time.Hour)
		trialStarted, trialEnds = &started, &ends
	}

	_, err := s.db.Exec(`
        INSERT INTO users(uid, email, name, created_at, last_seen_at, plan, trial_started_at, trial_ends_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(uid) DO UPDATE SET
            email = COALESCE(excluded.email, email),
            name = COALESCE(excluded.name, name),
            last_seen_at = excluded.last_seen_at`,
		uid, email, name, formatTime(now), formatTime(now), plan,
		formatTimePtr(trialStarted), formatTimePtr(trialEnds))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	return s.GetUser(uid)
}

// GetUser returns the record for uid, or nil when absent.
func (s *SQLiteStore) GetUser(uid string) (*UserRecord, error) {
	row := s.db.QueryRow(`
        SELECT uid, email, name, created_at, last_seen_at, plan, trial_started_at, trial_ends_at
        FROM users WHERE uid = ?`, uid)

	var (
		u                       UserRecord
		email, name             sql.NullString
		createdAt, lastSeenAt   string
		trialStarted, trialEnds sql.NullString
	)
	err := row.Scan(&u.UID, &email, &name, &createdAt, &lastSeenAt, &u.Plan, &trialStarted, &trialEnds)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	if email.Valid {
		u.Email = &email.String
	}
	if name.Valid {
		u.Name = &name.String
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("bad created_at for user %s: %w", uid, err)
	}
	if u.LastSeenAt, err = parseTime(lastSeenAt); err != nil {
		return nil, fmt.Errorf("bad last_seen_at for user %s: %w", uid, err)
	}
	if u.TrialStartedAt, err = parseTimePtr(trialStarted); err != nil {
		return nil, fmt.Errorf("bad trial_started_at for user %s: %w", uid, err)
	}
	if u.TrialEndsAt, err = parseTimePtr(trialEnds); err != nil {
		return nil, fmt.Errorf("bad trial_ends_at for user %s: %w", uid, err)
	}
	return &u, nil
}

// AppendSessionMessages stores conversation turns for a session and trims
// the session to its most recent keep messages.
func (s *SQLiteStore) AppendSessionMessages(sessionID string, keep int, msgs ...Message) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin session append: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("INSERT INTO messages (id, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer stmt.Close()

	now := s.Now().UTC()
	for i := range msgs {
		m := &msgs[i]
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		// Preserve insert order even when timestamps collide.
		created := now.Add(time.Duration(i) * time.Microsecond)
		if _, err := stmt.Exec(m.ID, sessionID, m.Role, m.Content, formatTime(created)); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	if keep > 0 {
		_, err = tx.Exec(`
            DELETE FROM messages WHERE session_id = ? AND id NOT IN (
                SELECT id FROM messages WHERE session_id = ?
                ORDER BY created_at DESC, rowid DESC LIMIT ?)`,
			sessionID, sessionID, keep)
		if err != nil {
			return fmt.Errorf("failed to trim session: %w", err)
		}
	}

	return tx.Commit()
}

// SessionMessages returns up to limit of the most recent messages for a
// session in chronological order.
func (s *SQLiteStore) SessionMessages(sessionID string, limit int) ([]Message, error) {
	rows, err := s.db.Query(`
        SELECT id, session_id, role, content, created_at FROM (
            SELECT id, session_id, role, content, created_at, rowid AS rid
            FROM messages WHERE session_id = ?
            ORDER BY created_at DESC, rowid DESC LIMIT ?
        ) ORDER BY created_at ASC, rid ASC`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query session messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		var createdAt string
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		if m.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("bad created_at for message %s: %w", m.ID, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
