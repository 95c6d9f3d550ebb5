// Package ratelimit counts requests per client in PostgreSQL so every API
// replica shares the same window.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saturnino-fabrica-de-software/facematch/internal/domain"
)

// DB interface for database operations
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// RateLimiter provides PostgreSQL-based rate limiting with a fixed window
// that restarts on the first request after it closes.
type RateLimiter struct {
	db     DB
	window time.Duration
	now    func() time.Time
}

func NewRateLimiter(db *pgxpool.Pool, window time.Duration) *RateLimiter {
	return NewRateLimiterWithDB(db, window)
}

// NewRateLimiterWithDB creates a rate limiter with custom DB interface
func NewRateLimiterWithDB(db DB, window time.Duration) *RateLimiter {
	return &RateLimiter{
		db:     db,
		window: window,
		now:    time.Now,
	}
}

func searchKey(client string) string {
	return "search_rate:" + client
}

// CheckSearchLimit counts one search for client and returns
// domain.ErrRateLimitExceeded once more than limit happened in the window.
// A non-positive limit disables the check.
func (r *RateLimiter) CheckSearchLimit(ctx context.Context, client string, limit int) error {
	if limit <= 0 {
		return nil
	}

	now := r.now()

	// Use ON CONFLICT to atomically increment or insert counter
	query := `
		INSERT INTO rate_limit_counters (key, count, window_start, window_end)
		VALUES ($1, 1, $2, $3)
		ON CONFLICT (key)
		DO UPDATE SET
			count = CASE
				WHEN rate_limit_counters.window_end <= $2 THEN 1
				ELSE rate_limit_counters.count + 1
			END,
			window_start = CASE
				WHEN rate_limit_counters.window_end <= $2 THEN $2
				ELSE rate_limit_counters.window_start
			END,
			window_end = CASE
				WHEN rate_limit_counters.window_end <= $2 THEN $3
				ELSE rate_limit_counters.window_end
			END
		RETURNING count
	`

	var count int
	err := r.db.QueryRow(ctx, query, searchKey(client), now, now.Add(r.window)).Scan(&count)
	if err != nil {
		return fmt.Errorf("check rate limit: %w", err)
	}

	if count > limit {
		return domain.ErrRateLimitExceeded.WithError(
			fmt.Errorf("%d/%d requests in window", count, limit),
		)
	}

	return nil
}

// CleanupExpired removes counters whose window closed more than an hour ago
func (r *RateLimiter) CleanupExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM rate_limit_counters WHERE window_end < $1`
	result, err := r.db.Exec(ctx, query, r.now().Add(-time.Hour))
	if err != nil {
		return 0, fmt.Errorf("cleanup rate limits: %w", err)
	}
	return result.RowsAffected(), nil
}

// GetCurrentCount returns the searches client made in the open window
func (r *RateLimiter) GetCurrentCount(ctx context.Context, client string) (int, error) {
	query := `
		SELECT count
		FROM rate_limit_counters
		WHERE key = $1 AND window_end > $2
	`

	var count int
	err := r.db.QueryRow(ctx, query, searchKey(client), r.now()).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get rate limit count: %w", err)
	}

	return count, nil
}

// ResetLimit clears the counter of client
func (r *RateLimiter) ResetLimit(ctx context.Context, client string) error {
	query := `DELETE FROM rate_limit_counters WHERE key = $1`
	_, err := r.db.Exec(ctx, query, searchKey(client))
	if err != nil {
		return fmt.Errorf("reset rate limit: %w", err)
	}
	return nil
}
