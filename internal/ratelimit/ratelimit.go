package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter allows up to n requests per window for each client key.
type Limiter struct {
	lck     sync.Mutex
	limit   rate.Limit
	burst   int
	window  time.Duration
	clients map[string]*client
	now     func() time.Time
}

type client struct {
	limiter *rate.Limiter
	seen    time.Time
}

// New creates a new rate limiter. A zero n disables limiting.
func New(n int, window time.Duration) *Limiter {
	if window <= 0 {
		window = 10 * time.Second
	}
	l := &Limiter{
		burst:   n,
		window:  window,
		clients: map[string]*client{},
		now:     time.Now,
	}
	if n > 0 {
		l.limit = rate.Every(window / time.Duration(n))
	}
	return l
}

// Allow reports whether a request from the given key may proceed.
func (l *Limiter) Allow(key string) bool {
	if l == nil || l.burst <= 0 {
		return true
	}
	l.lck.Lock()
	defer l.lck.Unlock()
	now := l.now()
	c, ok := l.clients[key]
	if !ok {
		l.evict(now)
		c = &client{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.seen = now
	return c.limiter.AllowN(now, 1)
}

// evict drops clients idle for longer than a window, they are back to a full bucket anyway.
func (l *Limiter) evict(now time.Time) {
	for k, c := range l.clients {
		if now.Sub(c.seen) > l.window {
			delete(l.clients, k)
		}
	}
}
