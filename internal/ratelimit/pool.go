package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/stickerbridge/internal/shared"
)

// BucketState is the persisted portion of an account's bucket.
type BucketState struct {
	SpaceRemaining int
	LastUpdatedAt  time.Time
}

// BucketStore persists per-account bucket state.
//
// Load returns (nil, nil) when no state has been persisted for the account.
// Implementations must apply Save atomically: a row is either the previous
// state or the new one, never a mix.
type BucketStore interface {
	Load(ctx context.Context, accountID string) (*BucketState, error)
	Save(ctx context.Context, accountID string, state BucketState) error
}

// AccountConfig is the static configuration for one upload account.
type AccountConfig struct {
	Username string
	Password string
}

// Account pairs destination credentials with an owned rate limit bucket.
// The credential is opaque to the pool and passed through to the uploader.
type Account struct {
	Username string
	Password string

	mu     sync.Mutex // guards bucket update-then-persist
	bucket *LeakyBucket
}

// AccountPool selects upload accounts under their persisted rate limits.
// Account order is fixed at construction; concurrent acquisitions may
// proceed against different accounts but serialize per account.
type AccountPool struct {
	accounts []*Account
	store    BucketStore
	logger   *log.Logger
}

// NewAccountPool builds the pool, rehydrating each account's bucket from
// the store. Accounts without a persisted row start with a full bucket.
func NewAccountPool(ctx context.Context, store BucketStore, configs []AccountConfig, conf Config, logger *log.Logger) (*AccountPool, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: bucket store not initialized", shared.ErrServiceUnavailable)
	}
	if len(configs) == 0 {
		return nil, fmt.Errorf("%w: no upload accounts configured", shared.ErrMissingCredentials)
	}
	if logger == nil {
		logger = log.Default()
	}

	now := time.Now()
	accounts := make([]*Account, 0, len(configs))
	for _, ac := range configs {
		state, err := store.Load(ctx, ac.Username)
		if err != nil {
			return nil, fmt.Errorf("failed to load bucket state for %s: %w", ac.Username, err)
		}

		bucket := NewLeakyBucket(conf, now)
		if state != nil {
			bucket = RestoreLeakyBucket(conf, state.SpaceRemaining, state.LastUpdatedAt)
		}

		accounts = append(accounts, &Account{
			Username: ac.Username,
			Password: ac.Password,
			bucket:   bucket,
		})
	}

	return &AccountPool{accounts: accounts, store: store, logger: logger}, nil
}

// Acquire scans accounts in configuration order and returns the first one
// with a rate limit token remaining, consuming that token. Every attempt,
// successful or not, persists the account's refreshed bucket state so that
// leaked-but-unused refill survives a restart.
//
// Returns [shared.ErrRateLimited] when every account is exhausted.
func (p *AccountPool) Acquire(ctx context.Context, now time.Time) (*Account, error) {
	for _, account := range p.accounts {
		ok, err := p.tryAccount(ctx, account, now)
		if err != nil {
			return nil, err
		}
		if ok {
			return account, nil
		}
	}

	p.logger.Warn("all accounts rate limited")
	return nil, shared.ErrRateLimited
}

// ReconcileRateLimited empties an account's bucket and persists it. Called
// when the destination reports throttling even though the local estimate
// showed capacity: the server is authoritative.
func (p *AccountPool) ReconcileRateLimited(ctx context.Context, account *Account) error {
	account.mu.Lock()
	defer account.mu.Unlock()

	p.logger.Warn("account rate limited but not detected client-side, emptying bucket",
		"account", account.Username)
	account.bucket.ForceEmpty()
	return p.save(ctx, account)
}

// MinWaitTime returns the shortest wait across all accounts until amount
// tokens will be available somewhere. Consumes nothing.
func (p *AccountPool) MinWaitTime(amount int, now time.Time) time.Duration {
	var min time.Duration
	for i, account := range p.accounts {
		account.mu.Lock()
		wait := account.bucket.WaitTime(amount, now)
		account.mu.Unlock()

		if i == 0 || wait < min {
			min = wait
		}
	}
	return min
}

// Size returns the number of accounts in the pool.
func (p *AccountPool) Size() int { return len(p.accounts) }

// tryAccount performs one update-then-persist attempt under the account's
// lock. The persist happens even when the consume fails.
func (p *AccountPool) tryAccount(ctx context.Context, account *Account, now time.Time) (bool, error) {
	account.mu.Lock()
	defer account.mu.Unlock()

	ok := account.bucket.TryConsume(1, now)
	if err := p.save(ctx, account); err != nil {
		return false, err
	}
	return ok, nil
}

// save writes the account's bucket state through the store. The write runs
// outside the cancellable scope: once an in-memory bucket has been mutated
// the durable copy must catch up, or restarts would replay spent tokens.
func (p *AccountPool) save(ctx context.Context, account *Account) error {
	state := BucketState{
		SpaceRemaining: account.bucket.SpaceRemaining(),
		LastUpdatedAt:  account.bucket.LastUpdatedAt(),
	}
	if err := p.store.Save(context.WithoutCancel(ctx), account.Username, state); err != nil {
		return fmt.Errorf("failed to persist bucket state for %s: %w", account.Username, err)
	}
	return nil
}
