package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/papemosque/community-api/internal/domain"
)

// ErrDuplicateEmail is returned when an email already belongs to an active or
// inactive subscriber.
var ErrDuplicateEmail = errors.New("this email is already subscribed")

const subscriberColumns = `id, name, email, phone, status, created_at, updated_at`

func scanSubscriber(row pgx.Row) (*domain.Subscriber, error) {
	var sub domain.Subscriber
	err := row.Scan(
		&sub.ID, &sub.Name, &sub.Email, &sub.Phone,
		&sub.Status, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func collectSubscribers(rows pgx.Rows) ([]domain.Subscriber, error) {
	defer rows.Close()

	subscribers := []domain.Subscriber{}
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning subscriber: %w", err)
		}
		subscribers = append(subscribers, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating subscribers: %w", err)
	}
	return subscribers, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// CreateSubscriber inserts a new active subscriber. An existing unsubscribed
// row with the same email is reactivated in place instead, keeping its id and
// history; an active or inactive one yields ErrDuplicateEmail.
func (s *PostgresStore) CreateSubscriber(ctx context.Context, req domain.CreateSubscriberRequest) (*domain.Subscriber, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	existing, err := scanSubscriber(tx.QueryRow(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE lower(email) = lower($1) FOR UPDATE`,
		req.Email,
	))
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("looking up subscriber by email: %w", err)
	}

	var sub *domain.Subscriber
	switch {
	case existing != nil && existing.Status == domain.StatusUnsubscribed:
		sub, err = scanSubscriber(tx.QueryRow(ctx, `
			UPDATE subscribers
			SET status = 'active', name = $2, phone = $3, updated_at = NOW()
			WHERE id = $1
			RETURNING `+subscriberColumns,
			existing.ID, req.Name, nullIfEmpty(req.Phone),
		))
		if err != nil {
			return nil, fmt.Errorf("reactivating subscriber: %w", err)
		}

	case existing != nil:
		return nil, ErrDuplicateEmail

	default:
		sub, err = scanSubscriber(tx.QueryRow(ctx, `
			INSERT INTO subscribers (name, email, phone, status)
			VALUES ($1, $2, $3, 'active')
			RETURNING `+subscriberColumns,
			req.Name, req.Email, nullIfEmpty(req.Phone),
		))
		if err != nil {
			if isUniqueViolation(err) {
				return nil, ErrDuplicateEmail
			}
			return nil, fmt.Errorf("inserting subscriber: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) GetSubscriber(ctx context.Context, id string) (*domain.Subscriber, error) {
	sub, err := scanSubscriber(s.pool.QueryRow(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying subscriber: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) GetSubscriberByEmail(ctx context.Context, email string) (*domain.Subscriber, error) {
	sub, err := scanSubscriber(s.pool.QueryRow(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE lower(email) = lower($1)`, email,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying subscriber by email: %w", err)
	}
	return sub, nil
}

// GetSubscribersByIDs returns the subscribers among ids that exist, in one
// round trip. Callers must pass syntactically valid UUIDs.
func (s *PostgresStore) GetSubscribersByIDs(ctx context.Context, ids []string) ([]domain.Subscriber, error) {
	if len(ids) == 0 {
		return []domain.Subscriber{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE id = ANY($1::uuid[])`, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("querying subscribers by id: %w", err)
	}
	return collectSubscribers(rows)
}

func (s *PostgresStore) ListSubscribers(ctx context.Context) ([]domain.Subscriber, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying subscribers: %w", err)
	}
	return collectSubscribers(rows)
}

// ListActiveSubscribers returns every subscriber whose status is active,
// newest first.
func (s *PostgresStore) ListActiveSubscribers(ctx context.Context) ([]domain.Subscriber, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE status = 'active' ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying active subscribers: %w", err)
	}
	return collectSubscribers(rows)
}

func (s *PostgresStore) UpdateSubscriber(ctx context.Context, id string, req domain.UpdateSubscriberRequest) (*domain.Subscriber, error) {
	setClauses := []string{}
	args := []interface{}{}
	argIdx := 1

	if req.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argIdx))
		args = append(args, *req.Name)
		argIdx++
	}
	if req.Email != nil {
		setClauses = append(setClauses, fmt.Sprintf("email = $%d", argIdx))
		args = append(args, *req.Email)
		argIdx++
	}
	if req.Phone != nil {
		setClauses = append(setClauses, fmt.Sprintf("phone = $%d", argIdx))
		args = append(args, nullIfEmpty(*req.Phone))
		argIdx++
	}
	if req.Status != nil {
		setClauses = append(setClauses, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, string(*req.Status))
		argIdx++
	}

	if len(setClauses) == 0 {
		return s.GetSubscriber(ctx, id)
	}

	setClauses = append(setClauses, "updated_at = NOW()")

	query := fmt.Sprintf(`
		UPDATE subscribers SET %s
		WHERE id = $%d
		RETURNING %s
	`, strings.Join(setClauses, ", "), argIdx, subscriberColumns)
	args = append(args, id)

	sub, err := scanSubscriber(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("updating subscriber: %w", err)
	}
	return sub, nil
}

// DeleteSubscriber removes a subscriber. It reports false when no row matched.
func (s *PostgresStore) DeleteSubscriber(ctx context.Context, id string) (bool, error) {
	result, err := s.pool.Exec(ctx, `DELETE FROM subscribers WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("deleting subscriber: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// SetSubscriberStatusByEmail moves the subscriber with this email to status.
// An unknown email is not an error; the boolean reports whether a row changed.
func (s *PostgresStore) SetSubscriberStatusByEmail(ctx context.Context, email string, status domain.SubscriberStatus) (bool, error) {
	result, err := s.pool.Exec(ctx, `
		UPDATE subscribers SET status = $2, updated_at = NOW()
		WHERE lower(email) = lower($1)
	`, email, string(status))
	if err != nil {
		return false, fmt.Errorf("updating subscriber status: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func (s *PostgresStore) GetSubscriberStats(ctx context.Context) (*domain.SubscriberStats, error) {
	var st domain.SubscriberStats
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'active') AS active,
			COUNT(*) FILTER (WHERE status = 'inactive') AS inactive,
			COUNT(*) FILTER (WHERE status = 'unsubscribed') AS unsubscribed
		FROM subscribers
	`).Scan(&st.Total, &st.Active, &st.Inactive, &st.Unsubscribed)
	if err != nil {
		return nil, fmt.Errorf("querying subscriber stats: %w", err)
	}
	return &st, nil
}
