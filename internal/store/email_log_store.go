package store

import (
	"context"
	"fmt"

	"github.com/papemosque/community-api/internal/domain"
)

// EmailLogRecord holds data for inserting one provider response.
type EmailLogRecord struct {
	SubscriberID   string
	Subject        string
	ResendID       string
	DeliveryStatus domain.EmailDeliveryStatus
	ErrorMessage   string
}

// RecordEmailLog inserts an email_logs row.
func (s *PostgresStore) RecordEmailLog(ctx context.Context, rec EmailLogRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO email_logs (subscriber_id, subject, resend_id, delivery_status, error_message)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.SubscriberID, nullIfEmpty(rec.Subject), nullIfEmpty(rec.ResendID), string(rec.DeliveryStatus), nullIfEmpty(rec.ErrorMessage))
	if err != nil {
		return fmt.Errorf("inserting email log: %w", err)
	}
	return nil
}

// ListEmailLogs returns the most recent email logs, optionally for one subscriber.
func (s *PostgresStore) ListEmailLogs(ctx context.Context, subscriberID string, limit int) ([]domain.EmailLog, error) {
	query := `SELECT id, subscriber_id, subject, resend_id, delivery_status, error_message, sent_at FROM email_logs`
	args := []interface{}{}
	argIdx := 1

	if subscriberID != "" {
		query += fmt.Sprintf(" WHERE subscriber_id = $%d", argIdx)
		args = append(args, subscriberID)
		argIdx++
	}

	query += " ORDER BY sent_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying email logs: %w", err)
	}
	defer rows.Close()

	logs := []domain.EmailLog{}
	for rows.Next() {
		var l domain.EmailLog
		err := rows.Scan(&l.ID, &l.SubscriberID, &l.Subject, &l.ResendID, &l.DeliveryStatus, &l.ErrorMessage, &l.SentAt)
		if err != nil {
			return nil, fmt.Errorf("scanning email log: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating email logs: %w", err)
	}
	return logs, nil
}
