package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/desertthunder/stickerbridge/internal/ratelimit"
)

// AccountStateRepository persists leaky bucket state for destination upload
// accounts. Implements [ratelimit.BucketStore].
//
// Timestamps are stored as REAL unix seconds so that fractional refill
// elapsed at save time survives the round trip.
type AccountStateRepository struct {
	db *sql.DB
}

// NewAccountStateRepository creates a new AccountStateRepository with the given database connection
func NewAccountStateRepository(db *sql.DB) *AccountStateRepository {
	return &AccountStateRepository{db: db}
}

// Load returns the persisted bucket state for an account, or nil if the
// account has never been persisted.
func (r *AccountStateRepository) Load(ctx context.Context, accountID string) (*ratelimit.BucketState, error) {
	query := `
		SELECT space_remaining, last_updated_at
		FROM signal_accounts
		WHERE account_id = ?
	`

	var (
		remaining int
		updatedAt float64
	)

	err := r.db.QueryRowContext(ctx, query, accountID).Scan(&remaining, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account state: %w", err)
	}

	return &ratelimit.BucketState{
		SpaceRemaining: remaining,
		LastUpdatedAt:  fromUnixSeconds(updatedAt),
	}, nil
}

// Save upserts the bucket state for an account. The single-statement upsert
// is atomic: a reader sees either the previous row or the new one.
func (r *AccountStateRepository) Save(ctx context.Context, accountID string, state ratelimit.BucketState) error {
	query := `
		INSERT OR REPLACE INTO signal_accounts (account_id, space_remaining, last_updated_at)
		VALUES (?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query, accountID, state.SpaceRemaining, unixSeconds(state.LastUpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save account state: %w", err)
	}

	return nil
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromUnixSeconds(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}
