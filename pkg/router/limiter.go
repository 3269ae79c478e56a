package router

import (
	"sync"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"
)

type limiterEntry struct {
	l        *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per client key. Buckets idle for longer
// than the TTL are dropped by Sweep.
type Limiter struct {
	rps   rate.Limit
	burst int
	ttl   time.Duration

	mu sync.Mutex
	m  map[string]*limiterEntry
}

func NewLimiter(rps float64, burst int, ttl time.Duration) *Limiter {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Limiter{rps: rate.Limit(rps), burst: burst, ttl: ttl, m: make(map[string]*limiterEntry)}
}

func (l *Limiter) Allow(key string) bool {
	return l.AllowAt(key, time.Now())
}

func (l *Limiter) AllowAt(key string, now time.Time) bool {
	l.mu.Lock()
	e, ok := l.m[key]
	if !ok {
		e = &limiterEntry{l: rate.NewLimiter(l.rps, l.burst)}
		l.m[key] = e
	}
	e.lastSeen = now
	l.mu.Unlock()
	return e.l.AllowN(now, 1)
}

// Sweep drops buckets not used since now minus the TTL and returns how
// many remain.
func (l *Limiter) Sweep(now time.Time) int {
	cutoff := now.Add(-l.ttl)
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, e := range l.m {
		if e.lastSeen.Before(cutoff) {
			delete(l.m, k)
		}
	}
	return len(l.m)
}

// Middleware rejects requests over the client's rate with 429.
func (l *Limiter) Middleware(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if !l.Allow(ctx.RemoteIP().String()) {
			WriteJSONError(ctx, fasthttp.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(ctx)
	}
}
