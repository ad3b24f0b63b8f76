package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/stickerbridge/internal/models"
)

// ConversionRepository is the durable idempotency index from source pack
// fingerprints to destination pack identifiers.
//
// Records are only ever inserted. Conflicting inserts for the same
// fingerprint are no-ops, so concurrent duplicate submissions converge on
// whichever record landed first.
type ConversionRepository struct {
	db *sql.DB
}

// NewConversionRepository creates a new ConversionRepository with the given database connection
func NewConversionRepository(db *sql.DB) *ConversionRepository {
	return &ConversionRepository{db: db}
}

// Lookup returns the conversion record for a fingerprint, or nil on a miss.
// A miss is the common path, not an error.
func (r *ConversionRepository) Lookup(ctx context.Context, fingerprint string) (*models.ConversionRecord, error) {
	query := `
		SELECT source_fingerprint, dest_id, dest_key, created_at
		FROM conversions
		WHERE source_fingerprint = ?
	`

	var (
		record    models.ConversionRecord
		createdAt time.Time
	)

	err := r.db.QueryRowContext(ctx, query, fingerprint).Scan(
		&record.Fingerprint,
		&record.DestID,
		&record.DestKey,
		&createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up conversion: %w", err)
	}

	record.CreatedAt = createdAt
	return &record, nil
}

// Record inserts a conversion record. Inserting a fingerprint that already
// exists succeeds without modifying the stored record.
//
// The write runs outside the cancellable scope: a conversion that already
// uploaded its pack must be remembered, or a resubmission would upload a
// duplicate.
func (r *ConversionRepository) Record(ctx context.Context, fingerprint string, destID, destKey []byte) error {
	query := `
		INSERT OR IGNORE INTO conversions (source_fingerprint, dest_id, dest_key)
		VALUES (?, ?, ?)
	`

	_, err := r.db.ExecContext(context.WithoutCancel(ctx), query, fingerprint, destID, destKey)
	if err != nil {
		return fmt.Errorf("failed to record conversion: %w", err)
	}

	return nil
}
