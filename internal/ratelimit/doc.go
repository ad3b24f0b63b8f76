// Package ratelimit implements the persisted per-account leaky bucket rate
// limiting used for destination pack uploads.
//
// [LeakyBucket] is the bucket arithmetic: a continuous refill at a fixed
// rate, floored to whole tokens on every call. [AccountPool] owns one bucket
// per upload account, serializes update-then-persist per account, and hands
// out the first account with a token remaining. Bucket state is durable via
// the [BucketStore] contract so refill earned while the process is down is
// never lost.
package ratelimit
