package security

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SlidingWindowLimiter tracks per-key hit timestamps pruned to the last
// hour and rejects once either the per-minute or per-hour threshold is
// reached. Unlike the fixed-window channels.WebhookRateLimiter this one
// keeps exact timestamps, since the Security Gate needs an accurate
// retryAfter rather than just an allow/deny bit.
//
// A per-key token bucket (golang.org/x/time/rate) is layered underneath for
// burst smoothing: the sliding window alone allows a key to spend its whole
// per-minute budget in a single instant, which is fine for the window but
// can still look like a burst to downstream systems (the Agent process,
// the outbound channel APIs). The bucket refills at perMinute/60 tokens
// per second, so hits spread evenly across the minute pass through even
// where the sliding window alone would allow them immediately.
type SlidingWindowLimiter struct {
	mu        sync.Mutex
	hits      map[string][]time.Time
	buckets   map[string]*rate.Limiter
	perMinute int
	perHour   int
	burst     int
	now       func() time.Time
}

// NewSlidingWindowLimiter creates a limiter with the given per-minute and
// per-hour thresholds. A non-positive threshold disables that check. burst
// sets the token bucket's capacity; 0 disables burst smoothing entirely.
func NewSlidingWindowLimiter(perMinute, perHour int, burst int) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		hits:      make(map[string][]time.Time),
		buckets:   make(map[string]*rate.Limiter),
		perMinute: perMinute,
		perHour:   perHour,
		burst:     burst,
		now:       time.Now,
	}
}

// Check reports whether key is currently blocked, and if so the duration
// until it is allowed again. It does not record a hit — call Hit
// separately once the caller decides to proceed, matching the Security
// Gate's check-then-hit sequencing.
func (l *SlidingWindowLimiter) Check(key string) (blocked bool, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	times := l.prune(key, now)

	minuteCount, minuteOldest := countSince(times, now.Add(-time.Minute))
	hourCount, hourOldest := countSince(times, now.Add(-time.Hour))

	if l.perMinute > 0 && minuteCount >= l.perMinute {
		return true, minuteOldest.Add(time.Minute).Sub(now)
	}
	if l.perHour > 0 && hourCount >= l.perHour {
		return true, hourOldest.Add(time.Hour).Sub(now)
	}
	if bucket := l.bucketLocked(key); bucket != nil {
		reservation := bucket.ReserveN(now, 1)
		if delay := reservation.DelayFrom(now); delay > 0 {
			reservation.Cancel()
			return true, delay
		}
		reservation.Cancel() // Hit spends the real token; this was only a peek
	}
	return false, 0
}

// Hit records a timestamp for key and spends one token from its burst
// bucket, if burst smoothing is enabled.
func (l *SlidingWindowLimiter) Hit(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	times := l.prune(key, now)
	l.hits[key] = append(times, now)
	if bucket := l.bucketLocked(key); bucket != nil {
		bucket.AllowN(now, 1)
	}
}

// bucketLocked returns key's token bucket, creating it lazily. Returns nil
// when burst smoothing is disabled. Caller must hold l.mu.
func (l *SlidingWindowLimiter) bucketLocked(key string) *rate.Limiter {
	if l.burst <= 0 || l.perMinute <= 0 {
		return nil
	}
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(rate.Limit(float64(l.perMinute)/60), l.burst)
		l.buckets[key] = b
	}
	return b
}

// prune drops entries older than an hour and must be called with mu held.
func (l *SlidingWindowLimiter) prune(key string, now time.Time) []time.Time {
	times := l.hits[key]
	cutoff := now.Add(-time.Hour)
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(l.hits, key)
		return nil
	}
	l.hits[key] = kept
	return kept
}

func countSince(times []time.Time, since time.Time) (count int, oldest time.Time) {
	for _, t := range times {
		if t.After(since) {
			count++
			if oldest.IsZero() || t.Before(oldest) {
				oldest = t
			}
		}
	}
	return count, oldest
}
