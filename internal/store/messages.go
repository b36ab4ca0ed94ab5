package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gofix/dm-monitor/pkg/types"
)

// eventMarkerPattern matches the ad-reply notification line inside stored content.
const eventMarkerPattern = "%replied to an ad%"

// UpsertMessage persists an ad-reply record with merge semantics.
//
// A record is matched by sender username plus the ad-reply marker in its
// content. When a match exists the reference link is refreshed only if the
// incoming one is set, while handle and prior message are refreshed whenever
// the incoming values are non-empty. A brand-new sender is persisted only when
// it carries a reference link; without one the record is skipped.
func (s *Store) UpsertMessage(ctx context.Context, msg *types.Message) (*types.Message, types.SaveStatus, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	existing, err := findBySenderAndMarker(ctx, tx, msg.SenderUsername)
	if err != nil {
		return nil, "", err
	}

	now := time.Now().UTC()

	if existing != nil {
		if msg.AdData.AdLink != "" {
			existing.AdData.AdLink = msg.AdData.AdLink
		}
		if msg.SenderHandle != "" {
			existing.SenderHandle = msg.SenderHandle
		}
		if msg.PriorMessage != "" {
			existing.PriorMessage = msg.PriorMessage
		}
		existing.UpdatedAt = now

		query := `
			UPDATE messages
			SET sender_handle = ?, prior_message = ?, ad_link = ?, updated_at = ?
			WHERE id = ?
		`
		if _, err := tx.ExecContext(ctx, query,
			existing.SenderHandle,
			existing.PriorMessage,
			existing.AdData.AdLink,
			now.Format(time.RFC3339),
			existing.ID,
		); err != nil {
			return nil, "", fmt.Errorf("failed to update message: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, "", fmt.Errorf("failed to commit: %w", err)
		}

		s.logger.WithField("sender", msg.SenderUsername).Debug("Updated existing ad-reply message")
		return existing, types.StatusUpdated, nil
	}

	// First observation for this sender: require a resolved ad link to create
	if !msg.HasAdLink() {
		s.logger.WithField("sender", msg.SenderUsername).Info("Skipping new message without ad link")
		return nil, types.StatusSkipped, nil
	}

	query := `
		INSERT INTO messages (sender_username, sender_handle, recipient_username, content, prior_message, ad_link, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := tx.ExecContext(ctx, query,
		msg.SenderUsername,
		msg.SenderHandle,
		msg.RecipientUsername,
		msg.Content,
		msg.PriorMessage,
		msg.AdData.AdLink,
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get message ID: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, "", fmt.Errorf("failed to commit: %w", err)
	}

	created := *msg
	created.ID = id
	created.CreatedAt = now
	created.UpdatedAt = now

	s.logger.WithFields(map[string]interface{}{
		"sender":  msg.SenderUsername,
		"ad_link": msg.AdData.AdLink,
	}).Info("Created ad-reply message")
	return &created, types.StatusCreated, nil
}

// ListMessages returns all records ordered by creation time, newest first
func (s *Store) ListMessages(ctx context.Context) ([]types.Message, error) {
	query := `
		SELECT id, sender_username, sender_handle, recipient_username, content, prior_message, ad_link, created_at, updated_at
		FROM messages
		ORDER BY created_at DESC, id DESC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []types.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return messages, nil
}

// findBySenderAndMarker looks up an existing record by sender plus the
// ad-reply marker in its content.
func findBySenderAndMarker(ctx context.Context, tx *sql.Tx, sender string) (*types.Message, error) {
	query := `
		SELECT id, sender_username, sender_handle, recipient_username, content, prior_message, ad_link, created_at, updated_at
		FROM messages
		WHERE sender_username = ? AND content LIKE ?
		LIMIT 1
	`
	row := tx.QueryRowContext(ctx, query, sender, eventMarkerPattern)
	msg, err := scanMessage(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row rowScanner) (*types.Message, error) {
	var msg types.Message
	var createdAt, updatedAt string

	err := row.Scan(
		&msg.ID,
		&msg.SenderUsername,
		&msg.SenderHandle,
		&msg.RecipientUsername,
		&msg.Content,
		&msg.PriorMessage,
		&msg.AdData.AdLink,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}

	if msg.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if msg.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return &msg, nil
}
