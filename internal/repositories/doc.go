// Package repositories provides the persistence layer for the bridge's two
// durable concerns.
//
//   - [AccountStateRepository] stores per-account leaky bucket state and
//     implements ratelimit.BucketStore.
//   - [ConversionRepository] is the idempotency index from source pack
//     fingerprints to destination identifiers.
//
// Both idempotency and rate limit correctness depend on this state being
// authoritative, so storage failures are surfaced, never swallowed.
package repositories
