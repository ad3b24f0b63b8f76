package repositories

import (
	"bytes"
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/desertthunder/stickerbridge/internal/ratelimit"
	"github.com/desertthunder/stickerbridge/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

func TestAccountStateRepository(t *testing.T) {
	t.Run("Load missing account", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewAccountStateRepository(db)

		state, err := repo.Load(context.Background(), "+15550100")
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if state != nil {
			t.Errorf("expected nil state for unknown account, got %+v", state)
		}
	})

	t.Run("Save and Load", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewAccountStateRepository(db)
		updatedAt := time.Unix(1700000000, 250_000_000)

		err := repo.Save(context.Background(), "+15550100", ratelimit.BucketState{
			SpaceRemaining: 37,
			LastUpdatedAt:  updatedAt,
		})
		if err != nil {
			t.Fatalf("save failed: %v", err)
		}

		state, err := repo.Load(context.Background(), "+15550100")
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if state == nil {
			t.Fatal("expected persisted state")
		}

		if state.SpaceRemaining != 37 {
			t.Errorf("SpaceRemaining = %d, want 37", state.SpaceRemaining)
		}

		// REAL column round trip keeps sub-second precision
		diff := state.LastUpdatedAt.Sub(updatedAt)
		if diff < -time.Millisecond || diff > time.Millisecond {
			t.Errorf("LastUpdatedAt = %v, want %v (±1ms)", state.LastUpdatedAt, updatedAt)
		}
	})

	t.Run("Save upserts", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewAccountStateRepository(db)

		for remaining := 5; remaining >= 0; remaining-- {
			err := repo.Save(context.Background(), "+15550100", ratelimit.BucketState{
				SpaceRemaining: remaining,
				LastUpdatedAt:  time.Now(),
			})
			if err != nil {
				t.Fatalf("save failed: %v", err)
			}
		}

		state, err := repo.Load(context.Background(), "+15550100")
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if state.SpaceRemaining != 0 {
			t.Errorf("SpaceRemaining = %d, want 0 (last write wins)", state.SpaceRemaining)
		}

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM signal_accounts").Scan(&count); err != nil {
			t.Fatalf("count failed: %v", err)
		}
		if count != 1 {
			t.Errorf("row count = %d, want 1", count)
		}
	})
}

func TestConversionRepository(t *testing.T) {
	t.Run("Lookup miss", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewConversionRepository(db)

		record, err := repo.Lookup(context.Background(), "deadbeef")
		if err != nil {
			t.Fatalf("lookup failed: %v", err)
		}
		if record != nil {
			t.Errorf("expected nil record on miss, got %+v", record)
		}
	})

	t.Run("Record and Lookup", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewConversionRepository(db)
		destID := []byte{0x9a, 0xcc, 0x9e}
		destKey := []byte{0x5a, 0x6d, 0xff}

		if err := repo.Record(context.Background(), "deadbeef", destID, destKey); err != nil {
			t.Fatalf("record failed: %v", err)
		}

		record, err := repo.Lookup(context.Background(), "deadbeef")
		if err != nil {
			t.Fatalf("lookup failed: %v", err)
		}
		if record == nil {
			t.Fatal("expected record after insert")
		}

		if !bytes.Equal(record.DestID, destID) {
			t.Errorf("DestID = %x, want %x", record.DestID, destID)
		}
		if !bytes.Equal(record.DestKey, destKey) {
			t.Errorf("DestKey = %x, want %x", record.DestKey, destKey)
		}
		if record.CreatedAt.IsZero() {
			t.Error("CreatedAt should be set by the database")
		}
	})

	t.Run("Duplicate Record converges", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewConversionRepository(db)

		if err := repo.Record(context.Background(), "deadbeef", []byte{1}, []byte{2}); err != nil {
			t.Fatalf("first record failed: %v", err)
		}

		// A concurrent duplicate submission raced here; its insert must
		// succeed without replacing the stored identifiers.
		if err := repo.Record(context.Background(), "deadbeef", []byte{3}, []byte{4}); err != nil {
			t.Fatalf("duplicate record should be a no-op, got: %v", err)
		}

		record, err := repo.Lookup(context.Background(), "deadbeef")
		if err != nil {
			t.Fatalf("lookup failed: %v", err)
		}
		if !bytes.Equal(record.DestID, []byte{1}) {
			t.Errorf("DestID = %x, want the first writer's value", record.DestID)
		}
	})

	t.Run("Record survives cancellation", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewConversionRepository(db)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if err := repo.Record(ctx, "deadbeef", []byte{1}, []byte{2}); err != nil {
			t.Fatalf("record under cancelled context failed: %v", err)
		}

		record, err := repo.Lookup(context.Background(), "deadbeef")
		if err != nil {
			t.Fatalf("lookup failed: %v", err)
		}
		if record == nil {
			t.Error("record should be durable despite cancellation")
		}
	})
}
