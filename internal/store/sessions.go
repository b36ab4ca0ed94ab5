package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gofix/dm-monitor/pkg/types"
)

// UpsertSession stores or replaces a session credential, keyed by name
func (s *Store) UpsertSession(ctx context.Context, name, token string) (*types.Session, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO sessions (name, token, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			token = excluded.token,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, name, token, now.Format(time.RFC3339), now.Format(time.RFC3339)); err != nil {
		return nil, fmt.Errorf("failed to upsert session: %w", err)
	}

	sess, err := s.getSessionByName(ctx, name)
	if err != nil {
		return nil, err
	}

	s.logger.WithField("session", name).Info("Stored session credential")
	return sess, nil
}

// LeastRecentlyUsedSession returns the credential that has gone longest
// without being handed out, marking it used. Returns nil when the store
// holds no credentials.
func (s *Store) LeastRecentlyUsedSession(ctx context.Context) (*types.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := `
		SELECT id, name, token, last_used_at, created_at, updated_at
		FROM sessions
		ORDER BY last_used_at IS NOT NULL, last_used_at ASC, id ASC
		LIMIT 1
	`
	sess, err := scanSession(tx.QueryRowContext(ctx, query))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, "UPDATE sessions SET last_used_at = ? WHERE id = ?", now.Format(time.RFC3339), sess.ID); err != nil {
		return nil, fmt.Errorf("failed to mark session used: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	sess.LastUsedAt = &now
	return sess, nil
}

// ListSessions returns all stored credentials, newest first, tokens omitted
func (s *Store) ListSessions(ctx context.Context) ([]types.Session, error) {
	query := `
		SELECT id, name, token, last_used_at, created_at, updated_at
		FROM sessions
		ORDER BY created_at DESC, id DESC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []types.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sess.Token = ""
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}

	return sessions, nil
}

func (s *Store) getSessionByName(ctx context.Context, name string) (*types.Session, error) {
	query := `
		SELECT id, name, token, last_used_at, created_at, updated_at
		FROM sessions
		WHERE name = ?
	`
	sess, err := scanSession(s.db.QueryRowContext(ctx, query, name))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("session not found: %s", name)
		}
		return nil, err
	}
	return sess, nil
}

func scanSession(row rowScanner) (*types.Session, error) {
	var sess types.Session
	var lastUsed sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&sess.ID,
		&sess.Name,
		&sess.Token,
		&lastUsed,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	if lastUsed.Valid {
		t, err := time.Parse(time.RFC3339, lastUsed.String)
		if err == nil {
			sess.LastUsedAt = &t
		}
	}
	if sess.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if sess.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return &sess, nil
}
