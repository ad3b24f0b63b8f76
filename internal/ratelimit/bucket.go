package ratelimit

import (
	"math"
	"time"
)

// Config describes a leaky bucket's size and refill rate.
type Config struct {
	BucketSize        int
	LeakRatePerSecond float64
}

// CreatePackLimit is the destination platform's sticker pack creation limit:
// a burst of 50 packs, refilling at 20 packs per day.
var CreatePackLimit = Config{BucketSize: 50, LeakRatePerSecond: 20.0 / (60 * 60 * 24)}

// LeakyBucket holds up to BucketSize tokens that drain on use and refill
// continuously at LeakRatePerSecond.
//
// The bucket does no locking and no clock reads of its own: callers pass
// `now` in and are responsible for serializing access.
type LeakyBucket struct {
	bucketSize        int
	leakRatePerSecond float64
	spaceRemaining    int
	lastUpdatedAt     time.Time
}

// NewLeakyBucket returns a full bucket.
func NewLeakyBucket(conf Config, now time.Time) *LeakyBucket {
	return &LeakyBucket{
		bucketSize:        conf.BucketSize,
		leakRatePerSecond: conf.LeakRatePerSecond,
		spaceRemaining:    conf.BucketSize,
		lastUpdatedAt:     now,
	}
}

// RestoreLeakyBucket returns a bucket rehydrated from persisted state.
func RestoreLeakyBucket(conf Config, spaceRemaining int, lastUpdatedAt time.Time) *LeakyBucket {
	return &LeakyBucket{
		bucketSize:        conf.BucketSize,
		leakRatePerSecond: conf.LeakRatePerSecond,
		spaceRemaining:    spaceRemaining,
		lastUpdatedAt:     lastUpdatedAt,
	}
}

// TryConsume refills the bucket for the elapsed time and consumes amount
// tokens if that many remain. The refreshed space is kept even when the
// consume fails.
func (b *LeakyBucket) TryConsume(amount int, now time.Time) bool {
	b.spaceRemaining = b.refill(now)
	if b.spaceRemaining >= amount {
		b.spaceRemaining -= amount
		return true
	}
	return false
}

// WaitTime refills the bucket for the elapsed time, then reports how long
// until amount tokens will be available. Zero means they already are.
func (b *LeakyBucket) WaitTime(amount int, now time.Time) time.Duration {
	b.spaceRemaining = b.refill(now)
	if b.spaceRemaining >= amount {
		return 0
	}
	seconds := float64(amount-b.spaceRemaining) / b.leakRatePerSecond
	return time.Duration(seconds * float64(time.Second))
}

// ForceEmpty drops all tokens. Used to reconcile with an authoritative
// remote rate limit signal that disagrees with the local estimate.
func (b *LeakyBucket) ForceEmpty() {
	b.spaceRemaining = 0
}

// SpaceRemaining returns the token count as of the last update.
func (b *LeakyBucket) SpaceRemaining() int { return b.spaceRemaining }

// LastUpdatedAt returns the timestamp of the last update.
func (b *LeakyBucket) LastUpdatedAt() time.Time { return b.lastUpdatedAt }

// refill computes the refreshed space and advances lastUpdatedAt. The floor
// is applied on every call, successful or not: sub-token refill accumulated
// between frequent calls is forfeited, exactly as the destination server
// computes its own buckets.
func (b *LeakyBucket) refill(now time.Time) int {
	elapsed := now.Sub(b.lastUpdatedAt).Seconds()
	b.lastUpdatedAt = now

	space := int(math.Floor(float64(b.spaceRemaining) + elapsed*b.leakRatePerSecond))
	if space > b.bucketSize {
		space = b.bucketSize
	}
	if space < 0 {
		space = 0
	}
	return space
}
