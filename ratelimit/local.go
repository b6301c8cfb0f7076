package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultLocalIdleTTL = time.Hour

	// scan for idle buckets only past this size
	localIdleScanSize = 1 << 10
)

// LocalLimiter implements the token bucket in process memory. It is
// used when no Redis shards are configured and limits each gateway
// instance independently of the others.
type LocalLimiter struct {
	mu      sync.Mutex
	buckets map[localKey]*localBucket
	idleTTL time.Duration
	now     func() time.Time
}

// Buckets are keyed by the settings too, so a route reconfiguration
// starts over with a fresh bucket instead of reinterpreting the old
// counters.
type localKey struct {
	group string
	key   string
	rate  int
	burst int
}

type localBucket struct {
	lim *rate.Limiter
	ts  time.Time
}

// NewLocalLimiter creates an in-process limiter.
func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{
		buckets: make(map[localKey]*localBucket),
		idleTTL: defaultLocalIdleTTL,
		now:     time.Now,
	}
}

// Allow takes a token from the bucket of the given group and key and
// reports whether the request may proceed.
func (l *LocalLimiter) Allow(_ context.Context, s Settings, group, key string) Result {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	k := localKey{group: group, key: key, rate: s.ReplenishRate, burst: s.BurstCapacity}
	b, ok := l.buckets[k]
	if !ok {
		if len(l.buckets) >= localIdleScanSize {
			l.dropIdle(now)
		}

		b = &localBucket{lim: rate.NewLimiter(rate.Limit(s.ReplenishRate), s.BurstCapacity)}
		l.buckets[k] = b
	}
	b.ts = now

	allowed := b.lim.AllowN(now, 1)
	return Result{Allowed: allowed, TokensRemaining: int64(b.lim.TokensAt(now))}
}

func (l *LocalLimiter) dropIdle(now time.Time) {
	for k, b := range l.buckets {
		if now.Sub(b.ts) > l.idleTTL {
			delete(l.buckets, k)
		}
	}
}
