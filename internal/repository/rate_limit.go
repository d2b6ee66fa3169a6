package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// RateLimiter counts requests per chat in one-minute windows.
type RateLimiter struct {
	db  DBTX
	now func() time.Time
}

func NewRateLimiter(db DBTX) *RateLimiter {
	return &RateLimiter{db: db, now: time.Now}
}

const hitRateLimit = `
INSERT INTO rate_limits (chat_id, window_start, request_count)
VALUES ($1, $2, 1)
ON CONFLICT (chat_id, window_start) DO UPDATE
SET request_count = rate_limits.request_count + 1
RETURNING request_count, window_start`

// Hit counts one request and returns the count within the current window
// along with when that window started.
func (r *RateLimiter) Hit(ctx context.Context, chatID int64) (int, time.Time, error) {
	window := timeToPgTimestamptz(r.now().UTC().Truncate(time.Minute))

	var (
		count   int32
		started pgtype.Timestamptz
	)
	if err := r.db.QueryRow(ctx, hitRateLimit, chatID, window).Scan(&count, &started); err != nil {
		return 0, time.Time{}, fmt.Errorf("hit rate limit: %w", err)
	}
	return int(count), pgTimestamptzToTime(started), nil
}

const cleanupRateLimits = `DELETE FROM rate_limits WHERE window_start < $1`

// Cleanup drops windows older than retention and reports how many went.
func (r *RateLimiter) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := timeToPgTimestamptz(r.now().UTC().Add(-retention))
	tag, err := r.db.Exec(ctx, cleanupRateLimits, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup rate limits: %w", err)
	}
	return tag.RowsAffected(), nil
}
