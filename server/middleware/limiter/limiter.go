// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package limiter

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"codeberg.org/quickai/quickai/config"
)

const (
	BucketIdleTTL = time.Hour       // Buckets unused for this long are swept.
	SweepInterval = 5 * time.Minute // Minimum gap between sweeps.
)

// userKeyPrefix separates per-user buckets from network buckets.
const userKeyPrefix = "user:"

var (
	// buckets maps a network ("203.0.113.0/24") or "user:<id>" to its *bucket.
	buckets sync.Map

	timeNow = time.Now

	sweepMu     sync.Mutex
	lastSweepAt time.Time
)

// bucket is one token bucket and the time it was last used.
type bucket struct {
	mu       sync.Mutex
	key      string
	tokens   *rate.Limiter
	lastSeen time.Time
}

func newBucket(key string, limit rate.Limit, burst int, seen time.Time) *bucket {
	return &bucket{
		key:      key,
		tokens:   rate.NewLimiter(limit, burst),
		lastSeen: seen,
	}
}

// take consumes one token and reports whether one was available.
func (b *bucket) take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := timeNow()
	b.lastSeen = now

	return b.tokens.AllowN(now, 1)
}

func (b *bucket) idleSince() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.lastSeen
}

// writeHeaders reports the bucket state in the RateLimit-* headers. Reset is
// the number of seconds until the bucket is full again.
func (b *bucket) writeHeaders(h http.Header) {
	b.mu.Lock()
	burst := b.tokens.Burst()
	limit := float64(b.tokens.Limit())
	available := b.tokens.TokensAt(timeNow())
	b.mu.Unlock()

	remaining := max(int(math.Min(float64(burst), available)), 0)

	var reset int64
	if available < float64(burst) && limit > 0 {
		reset = int64(math.Ceil((float64(burst) - available) / limit))
	}

	resetStr := strconv.FormatInt(reset, 10)

	h.Set(HeaderRateLimitLimit, strconv.Itoa(burst))
	h.Set(HeaderRateLimitRemaining, strconv.Itoa(remaining))
	h.Set(HeaderRateLimitReset, resetStr)

	if remaining == 0 {
		h.Set("Retry-After", resetStr)
	}
}

// bucketFor returns the bucket for key, creating it from the configured rate
// and burst on first use.
func bucketFor(key string) *bucket {
	if value, ok := buckets.Load(key); ok {
		if b, ok := value.(*bucket); ok {
			return b
		}
	}

	fresh := newBucket(key, rate.Limit(config.Global.Limiter.Rate), config.Global.Limiter.Burst, timeNow())

	actual, _ := buckets.LoadOrStore(key, fresh)

	if b, ok := actual.(*bucket); ok {
		return b
	}

	return fresh
}

// sweep drops buckets idle for longer than BucketIdleTTL and returns how
// many were removed.
func sweep() int {
	cutoff := timeNow().Add(-BucketIdleTTL)
	removed := 0

	buckets.Range(func(key, value any) bool {
		b, ok := value.(*bucket)
		if !ok || b.idleSince().Before(cutoff) {
			buckets.Delete(key)
			removed++
		}

		return true
	})

	return removed
}

// maybeSweep starts a background sweep when SweepInterval has passed since
// the previous one. The first call only arms the timer.
func maybeSweep() {
	now := timeNow()

	sweepMu.Lock()
	due := !lastSweepAt.IsZero() && now.Sub(lastSweepAt) >= SweepInterval

	if lastSweepAt.IsZero() || due {
		lastSweepAt = now
	}
	sweepMu.Unlock()

	if !due {
		return
	}

	go func() {
		if removed := sweep(); removed > 0 {
			log.Info().Int("count", removed).Dur("dur", time.Since(now)).Msg("Swept idle rate limit buckets")
		}
	}()
}
