// Package sqlite persists parking sessions in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/couchcryptid/taps-tracker-service/internal/domain"
	"github.com/couchcryptid/taps-tracker-service/internal/parking"
)

// timeLayout is fixed-width so started_at sorts correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SessionStore implements parking.Store on SQLite.
type SessionStore struct {
	db *sql.DB
}

// NewSessionStore opens (creating if needed) the database at dbPath and
// applies the schema.
func NewSessionStore(ctx context.Context, dbPath string) (*SessionStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	s := &SessionStore{db: db}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize session database: %w", err)
	}
	return s, nil
}

func (s *SessionStore) init(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS parked_sessions (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		full_name TEXT NOT NULL,
		location TEXT NOT NULL,
		lat REAL,
		lng REAL,
		hours INTEGER NOT NULL,
		started_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_parked_sessions_email ON parked_sessions(email, started_at);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Create stores sess under a new random ID.
func (s *SessionStore) Create(ctx context.Context, sess parking.Session) (parking.Session, error) {
	sess.ID = uuid.NewString()

	var lat, lng sql.NullFloat64
	if sess.Coords != nil {
		lat = sql.NullFloat64{Float64: sess.Coords.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: sess.Coords.Lng, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO parked_sessions (id, email, full_name, location, lat, lng, hours, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Email, sess.FullName, sess.Location, lat, lng, sess.Hours,
		sess.StartedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return parking.Session{}, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

// Latest returns the most recently started session for email.
func (s *SessionStore) Latest(ctx context.Context, email string) (parking.Session, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, full_name, location, lat, lng, hours, started_at
		FROM parked_sessions
		WHERE email = ?
		ORDER BY started_at DESC
		LIMIT 1`, email)

	var (
		sess      parking.Session
		lat, lng  sql.NullFloat64
		startedAt string
	)
	err := row.Scan(&sess.ID, &sess.Email, &sess.FullName, &sess.Location, &lat, &lng, &sess.Hours, &startedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return parking.Session{}, false, nil
	}
	if err != nil {
		return parking.Session{}, false, fmt.Errorf("query session: %w", err)
	}

	sess.StartedAt, err = time.Parse(timeLayout, startedAt)
	if err != nil {
		return parking.Session{}, false, fmt.Errorf("parse started_at %q: %w", startedAt, err)
	}
	if lat.Valid && lng.Valid {
		sess.Coords = &domain.Coordinates{Lat: lat.Float64, Lng: lng.Float64}
	}
	return sess, true, nil
}

// Delete removes a session by ID. Missing IDs are not an error.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM parked_sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// CheckReadiness pings the database.
func (s *SessionStore) CheckReadiness(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("session database unavailable: %w", err)
	}
	return nil
}

func (s *SessionStore) Close() error {
	return s.db.Close()
}
