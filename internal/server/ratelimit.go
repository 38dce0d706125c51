package server

import (
	"math"
	"net/http"
	"sync"
	"time"

	"lifelockr/internal/metrics"

	"golang.org/x/time/rate"
)

// multiLimiter keeps one token bucket per key and forgets idle keys.
type multiLimiter struct {
	name    string
	metrics *metrics.Metrics

	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	entries map[string]*limBucket
	now     func() time.Time
}

type limBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newMultiLimiter(name string, limit rate.Limit, burst int, ttl time.Duration, m *metrics.Metrics) *multiLimiter {
	return &multiLimiter{
		name:    name,
		metrics: m,
		limit:   limit,
		burst:   burst,
		ttl:     ttl,
		entries: make(map[string]*limBucket),
		now:     time.Now,
	}
}

func (m *multiLimiter) allow(key string) bool {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.entries[key]
	if b == nil {
		b = &limBucket{lim: rate.NewLimiter(m.limit, m.burst), lastSeen: now}
		m.entries[key] = b
	}
	b.lastSeen = now

	for k, v := range m.entries {
		if now.Sub(v.lastSeen) > m.ttl {
			delete(m.entries, k)
		}
	}
	ok := b.lim.AllowN(now, 1)
	if !ok {
		m.metrics.RateLimited(m.name)
	}
	return ok
}

// retryAfter is the whole seconds until one more event fits.
func (m *multiLimiter) retryAfter() int {
	if m.limit <= 0 {
		return 60
	}
	return int(math.Ceil(1/float64(m.limit) - 1e-9))
}

// gate writes 429 and reports false when any limiter rejects its key.
func gate(w http.ResponseWriter, checks ...limitCheck) bool {
	for _, c := range checks {
		if !c.lim.allow(c.key) {
			tooMany(w, c.lim.retryAfter())
			return false
		}
	}
	return true
}

type limitCheck struct {
	lim *multiLimiter
	key string
}
