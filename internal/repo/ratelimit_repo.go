package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RateLimitRepo implements a sliding-window counter keyed by
// (identifier, endpoint) in the database, so the limit holds across
// horizontally-scaled instances.
type RateLimitRepo interface {
	// Bump records one attempt and returns the attempt count within the
	// current window. Check-and-increment is a single conditional upsert, so
	// two concurrent requests cannot both observe "under limit".
	Bump(ctx context.Context, identifier, endpoint string, window time.Duration) (int, error)
}

type rateLimitRepo struct {
	db *sql.DB
}

// NewRateLimitRepo creates a new RateLimitRepo instance
func NewRateLimitRepo(db *sql.DB) RateLimitRepo {
	return &rateLimitRepo{db: db}
}

// Bump atomically resets the window if it has expired, otherwise increments
// the counter, returning the new count.
func (r *rateLimitRepo) Bump(ctx context.Context, identifier, endpoint string, window time.Duration) (int, error) {
	query := `
		INSERT INTO rate_limits (identifier, endpoint, attempt_count, window_start)
		VALUES ($1, $2, 1, now())
		ON CONFLICT (identifier, endpoint) DO UPDATE
		SET attempt_count = CASE
				WHEN rate_limits.window_start < now() - $3::interval THEN 1
				ELSE rate_limits.attempt_count + 1
			END,
			window_start = CASE
				WHEN rate_limits.window_start < now() - $3::interval THEN now()
				ELSE rate_limits.window_start
			END
		RETURNING attempt_count
	`
	interval := fmt.Sprintf("%d seconds", int(window.Seconds()))
	var count int
	if err := r.db.QueryRowContext(ctx, query, identifier, endpoint, interval).Scan(&count); err != nil {
		return 0, fmt.Errorf("bump rate limit: %w", err)
	}
	return count, nil
}
