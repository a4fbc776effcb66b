package store

import (
	"database/sql"
	"errors"
	"time"
)

// Session is one workout session.
type Session struct {
	ID        string     `json:"id"`
	Exercise  string     `json:"exercise"`
	Side      string     `json:"side"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Reps      int        `json:"reps"`
	Frames    int        `json:"frames"`
	Skipped   int        `json:"skipped"`
}

// Rep is one counted repetition.
type Rep struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Count     int       `json:"count"`
	Angle     float64   `json:"angle"`
	At        time.Time `json:"at"`
}

// SessionRepository provides operations on sessions.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Create inserts a session that has just started.
func (r *SessionRepository) Create(sess *Session) error {
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now()
	}
	_, err := r.db.Exec(
		`INSERT INTO sessions (id, exercise, side, started_at) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.Exercise, sess.Side, sess.StartedAt,
	)
	return err
}

// Finish records the end of a session with its final totals.
func (r *SessionRepository) Finish(id string, endedAt time.Time, reps, frames, skipped int) error {
	result, err := r.db.Exec(
		`UPDATE sessions SET ended_at = ?, reps = ?, frames = ?, skipped = ? WHERE id = ?`,
		endedAt, reps, frames, skipped, id,
	)
	if err != nil {
		return err
	}
	return affectedOne(result)
}

const sessionColumns = `id, exercise, side, started_at, ended_at, reps, frames, skipped`

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	sess := &Session{}
	var ended sql.NullTime
	if err := row.Scan(&sess.ID, &sess.Exercise, &sess.Side, &sess.StartedAt, &ended, &sess.Reps, &sess.Frames, &sess.Skipped); err != nil {
		return nil, err
	}
	if ended.Valid {
		t := ended.Time
		sess.EndedAt = &t
	}
	return sess, nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(id string) (*Session, error) {
	sess, err := scanSession(r.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sess, nil
}

// List returns the most recent sessions first. A limit <= 0 returns all.
func (r *SessionRepository) List(limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(`SELECT `+sessionColumns+` FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

// Delete removes a session and its reps.
func (r *SessionRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return affectedOne(result)
}

// RepRepository provides operations on reps.
type RepRepository struct {
	db *sql.DB
}

// Reps returns the rep repository for this store.
func (s *Store) Reps() *RepRepository {
	return &RepRepository{db: s.db}
}

// Create inserts a rep and bumps the session's rep total in one transaction.
func (r *RepRepository) Create(rep *Rep) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`INSERT INTO reps (session_id, count, angle, at) VALUES (?, ?, ?, ?)`,
		rep.SessionID, rep.Count, rep.Angle, rep.At,
	)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`UPDATE sessions SET reps = MAX(reps, ?) WHERE id = ?`, rep.Count, rep.SessionID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	rep.ID, err = result.LastInsertId()
	return err
}

// ListBySession returns a session's reps in count order.
func (r *RepRepository) ListBySession(sessionID string) ([]Rep, error) {
	rows, err := r.db.Query(
		`SELECT id, session_id, count, angle, at FROM reps WHERE session_id = ? ORDER BY count`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reps []Rep
	for rows.Next() {
		var rep Rep
		if err := rows.Scan(&rep.ID, &rep.SessionID, &rep.Count, &rep.Angle, &rep.At); err != nil {
			return nil, err
		}
		reps = append(reps, rep)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return reps, nil
}
