package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/papemosque/community-api/internal/domain"
)

// ErrFundNotFound is returned by BulkSetFundActive when any id is unknown.
var ErrFundNotFound = errors.New("donation fund not found")

// GetPrayerCache returns the cached prayer times for date (yyyy-MM-dd).
func (s *PostgresStore) GetPrayerCache(ctx context.Context, date string) (*domain.PrayerCache, error) {
	var pc domain.PrayerCache
	err := s.pool.QueryRow(ctx, `
		SELECT date::text, payload, fetched_at, status
		FROM prayer_cache WHERE date = $1::date
	`, date).Scan(&pc.Date, &pc.Payload, &pc.FetchedAt, &pc.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying prayer cache: %w", err)
	}
	return &pc, nil
}

// ListDonationFunds returns funds ordered by display_order. activeOnly limits
// the result to funds shown on the public donation page.
func (s *PostgresStore) ListDonationFunds(ctx context.Context, activeOnly bool) ([]domain.DonationFund, error) {
	query := `SELECT id, code, label, color, description, is_active, display_order FROM donation_funds`
	if activeOnly {
		query += ` WHERE is_active = true`
	}
	query += ` ORDER BY display_order ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying donation funds: %w", err)
	}
	defer rows.Close()

	funds := []domain.DonationFund{}
	for rows.Next() {
		var f domain.DonationFund
		if err := rows.Scan(&f.ID, &f.Code, &f.Label, &f.Color, &f.Description, &f.IsActive, &f.DisplayOrder); err != nil {
			return nil, fmt.Errorf("scanning donation fund: %w", err)
		}
		funds = append(funds, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating donation funds: %w", err)
	}
	return funds, nil
}

// SetFundActive toggles one fund. It reports false when the id is unknown.
func (s *PostgresStore) SetFundActive(ctx context.Context, id string, active bool) (bool, error) {
	result, err := s.pool.Exec(ctx, `UPDATE donation_funds SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return false, fmt.Errorf("updating donation fund: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// BulkSetFundActive applies every toggle in one transaction; nothing is
// written if any id is unknown.
func (s *PostgresStore) BulkSetFundActive(ctx context.Context, updates []domain.FundActivation) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, u := range updates {
		result, err := tx.Exec(ctx, `UPDATE donation_funds SET is_active = $2 WHERE id = $1`, u.ID, u.IsActive)
		if err != nil {
			return fmt.Errorf("updating donation fund %s: %w", u.ID, err)
		}
		if result.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", ErrFundNotFound, u.ID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetDonationStats sums all donations overall and per fund code.
func (s *PostgresStore) GetDonationStats(ctx context.Context) (*domain.DonationStats, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT fund_code, COALESCE(SUM(amount_cents), 0), COUNT(*)
		FROM donations
		GROUP BY fund_code
	`)
	if err != nil {
		return nil, fmt.Errorf("querying donation stats: %w", err)
	}
	defer rows.Close()

	stats := &domain.DonationStats{ByFund: map[string]int64{}}
	for rows.Next() {
		var (
			code  string
			sum   int64
			count int
		)
		if err := rows.Scan(&code, &sum, &count); err != nil {
			return nil, fmt.Errorf("scanning donation stats: %w", err)
		}
		stats.ByFund[code] = sum
		stats.Total += sum
		stats.Count += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating donation stats: %w", err)
	}
	return stats, nil
}
