package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/stickerbridge/internal/shared"
)

// memoryStore is an in-memory BucketStore recording every save.
type memoryStore struct {
	mu      sync.Mutex
	states  map[string]BucketState
	saves   int
	saveErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{states: make(map[string]BucketState)}
}

func (s *memoryStore) Load(ctx context.Context, accountID string) (*BucketState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[accountID]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

func (s *memoryStore) Save(ctx context.Context, accountID string, state BucketState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.states[accountID] = state
	return nil
}

func (s *memoryStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func twoAccountConfigs() []AccountConfig {
	return []AccountConfig{
		{Username: "+15550101", Password: "a"},
		{Username: "+15550102", Password: "b"},
	}
}

func TestAccountPool_Acquire(t *testing.T) {
	store := newMemoryStore()
	conf := Config{BucketSize: 1, LeakRatePerSecond: 0.001}
	pool, err := NewAccountPool(context.Background(), store, twoAccountConfigs(), conf, nil)
	if err != nil {
		t.Fatalf("failed to build pool: %v", err)
	}

	now := time.Now()

	first, err := pool.Acquire(context.Background(), now)
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	second, err := pool.Acquire(context.Background(), now)
	if err != nil {
		t.Fatalf("second acquire failed: %v", err)
	}

	if first.Username == second.Username {
		t.Errorf("both acquires returned account %s; want distinct accounts", first.Username)
	}

	_, err = pool.Acquire(context.Background(), now)
	if !errors.Is(err, shared.ErrRateLimited) {
		t.Errorf("third acquire error = %v, want ErrRateLimited", err)
	}

	if wait := pool.MinWaitTime(1, now); wait <= 0 {
		t.Errorf("MinWaitTime after exhaustion = %v, want > 0", wait)
	}
}

func TestAccountPool_PersistsEveryAttempt(t *testing.T) {
	store := newMemoryStore()
	conf := Config{BucketSize: 1, LeakRatePerSecond: 0.001}
	pool, err := NewAccountPool(context.Background(), store, twoAccountConfigs(), conf, nil)
	if err != nil {
		t.Fatalf("failed to build pool: %v", err)
	}

	now := time.Now()

	if _, err := pool.Acquire(context.Background(), now); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if got := store.saveCount(); got != 1 {
		t.Errorf("saves after one successful acquire = %d, want 1", got)
	}

	if _, err := pool.Acquire(context.Background(), now); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	// first account failed and was still persisted, second succeeded
	if got := store.saveCount(); got != 3 {
		t.Errorf("saves after two acquires = %d, want 3", got)
	}

	if _, err := pool.Acquire(context.Background(), now); !errors.Is(err, shared.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	// both accounts attempted, both persisted despite failing
	if got := store.saveCount(); got != 5 {
		t.Errorf("saves after exhausted acquire = %d, want 5", got)
	}
}

func TestAccountPool_Rehydrates(t *testing.T) {
	store := newMemoryStore()
	conf := Config{BucketSize: 5, LeakRatePerSecond: 0.001}
	updatedAt := time.Unix(900, 500_000_000)
	store.states["+15550101"] = BucketState{SpaceRemaining: 0, LastUpdatedAt: updatedAt}

	pool, err := NewAccountPool(
		context.Background(), store,
		[]AccountConfig{{Username: "+15550101", Password: "a"}},
		conf, nil,
	)
	if err != nil {
		t.Fatalf("failed to build pool: %v", err)
	}

	account := pool.accounts[0]
	if got := account.bucket.SpaceRemaining(); got != 0 {
		t.Errorf("rehydrated SpaceRemaining = %d, want 0 (not reset to full)", got)
	}
	if got := account.bucket.LastUpdatedAt(); !got.Equal(updatedAt) {
		t.Errorf("rehydrated LastUpdatedAt = %v, want %v", got, updatedAt)
	}

	// An empty persisted bucket stays empty across the restart.
	if _, err := pool.Acquire(context.Background(), updatedAt.Add(time.Second)); !errors.Is(err, shared.ErrRateLimited) {
		t.Errorf("acquire on rehydrated empty bucket = %v, want ErrRateLimited", err)
	}
}

func TestAccountPool_ReconcileRateLimited(t *testing.T) {
	store := newMemoryStore()
	conf := Config{BucketSize: 10, LeakRatePerSecond: 0.001}
	pool, err := NewAccountPool(context.Background(), store, twoAccountConfigs(), conf, nil)
	if err != nil {
		t.Fatalf("failed to build pool: %v", err)
	}

	now := time.Now()
	account, err := pool.Acquire(context.Background(), now)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	if err := pool.ReconcileRateLimited(context.Background(), account); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	if got := account.bucket.SpaceRemaining(); got != 0 {
		t.Errorf("SpaceRemaining after reconcile = %d, want 0", got)
	}

	state, err := store.Load(context.Background(), account.Username)
	if err != nil || state == nil {
		t.Fatalf("expected persisted state, got %v, %v", state, err)
	}
	if state.SpaceRemaining != 0 {
		t.Errorf("persisted SpaceRemaining = %d, want 0", state.SpaceRemaining)
	}

	// The next acquire skips the emptied account.
	next, err := pool.Acquire(context.Background(), now)
	if err != nil {
		t.Fatalf("acquire after reconcile failed: %v", err)
	}
	if next.Username == account.Username {
		t.Errorf("acquire returned the reconciled account %s", next.Username)
	}
}

func TestAccountPool_StoreFailure(t *testing.T) {
	store := newMemoryStore()
	pool, err := NewAccountPool(context.Background(), store, twoAccountConfigs(), CreatePackLimit, nil)
	if err != nil {
		t.Fatalf("failed to build pool: %v", err)
	}

	store.saveErr = fmt.Errorf("disk full")

	if _, err := pool.Acquire(context.Background(), time.Now()); err == nil {
		t.Error("acquire should propagate store failures")
	}
}

func TestAccountPool_ConcurrentAcquire(t *testing.T) {
	store := newMemoryStore()
	conf := Config{BucketSize: 1, LeakRatePerSecond: 0.001}
	pool, err := NewAccountPool(context.Background(), store, twoAccountConfigs(), conf, nil)
	if err != nil {
		t.Fatalf("failed to build pool: %v", err)
	}

	now := time.Now()
	results := make(chan error, 8)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pool.Acquire(context.Background(), now)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var granted, limited int
	for err := range results {
		switch {
		case err == nil:
			granted++
		case errors.Is(err, shared.ErrRateLimited):
			limited++
		default:
			t.Fatalf("unexpected acquire error: %v", err)
		}
	}

	if granted != 2 {
		t.Errorf("granted = %d, want exactly 2 (no lost updates)", granted)
	}
	if limited != 6 {
		t.Errorf("limited = %d, want 6", limited)
	}
}
