package database

import (
	"context"
	"fmt"
	"time"

	"studiobook/internal/models"
)

const outboxColumns = `id, event_type, payload, status, retry_count, last_error, created_at, processed_at, next_retry_at`

func (db *DB) CreateOutboxMessage(ctx context.Context, msg *models.OutboxMessage) error {
	if msg.Status == "" {
		msg.Status = models.OutboxPending
	}
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, `INSERT INTO outbox (event_type, payload, status, retry_count, last_error, created_at, next_retry_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.EventType,
		msg.Payload,
		msg.Status,
		msg.RetryCount,
		msg.LastError,
		now,
		msg.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	msg.ID = id
	msg.CreatedAt = now
	return nil
}

func (db *DB) GetOutboxMessage(ctx context.Context, id int64) (*models.OutboxMessage, error) {
	msgs, err := db.queryOutbox(ctx, `SELECT `+outboxColumns+` FROM outbox WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("outbox message %d: %w", id, ErrNotFound)
	}
	return &msgs[0], nil
}

// GetPendingOutboxMessages returns messages due for delivery, oldest first.
func (db *DB) GetPendingOutboxMessages(ctx context.Context, limit int) ([]models.OutboxMessage, error) {
	return db.queryOutbox(ctx, `SELECT `+outboxColumns+` FROM outbox
        WHERE status IN (?, ?) AND (next_retry_at IS NULL OR next_retry_at <= ?)
        ORDER BY created_at ASC, id ASC LIMIT ?`,
		models.OutboxPending, models.OutboxRetry, time.Now().UTC(), limit)
}

func (db *DB) UpdateOutboxStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var query string
	var args []interface{}
	now := time.Now().UTC()

	var lastErr *string
	if errMsg != "" {
		lastErr = &errMsg
	}

	switch status {
	case models.OutboxRetry:
		query = `UPDATE outbox SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1 WHERE id = ?`
		args = []interface{}{status, lastErr, nextRetryAt, id}
	case models.OutboxDelivered, models.OutboxFailed:
		query = `UPDATE outbox SET status = ?, last_error = ?, next_retry_at = ?, processed_at = ? WHERE id = ?`
		args = []interface{}{status, lastErr, nextRetryAt, now, id}
	default:
		query = `UPDATE outbox SET status = ?, last_error = ?, next_retry_at = ? WHERE id = ?`
		args = []interface{}{status, lastErr, nextRetryAt, id}
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update outbox status: %w", err)
	}
	return nil
}

func (db *DB) GetFailedOutboxMessages(ctx context.Context) ([]models.OutboxMessage, error) {
	return db.queryOutbox(ctx, `SELECT `+outboxColumns+` FROM outbox WHERE status = ? ORDER BY created_at DESC, id DESC`,
		models.OutboxFailed)
}

func (db *DB) queryOutbox(ctx context.Context, query string, args ...any) ([]models.OutboxMessage, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var msgs []models.OutboxMessage
	for rows.Next() {
		var m models.OutboxMessage
		if err := rows.Scan(
			&m.ID, &m.EventType, &m.Payload, &m.Status, &m.RetryCount, &m.LastError, &m.CreatedAt, &m.ProcessedAt, &m.NextRetryAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outbox message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
