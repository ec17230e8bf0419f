package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	cleanupInterval = 3 * time.Minute
	staleAfter      = 5 * time.Minute
)

type identityLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter admits requests per client identity within a per-minute budget.
// Identities are API key ids for authenticated callers and client IPs
// otherwise; stale identities are swept in the background.
type Limiter struct {
	mu        sync.Mutex
	limiters  map[string]*identityLimiter
	perMinute int
	stop      chan struct{}
	once      sync.Once
}

// New creates a limiter admitting perMinute requests per identity.
func New(perMinute int) *Limiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	l := &Limiter{
		limiters:  make(map[string]*identityLimiter),
		perMinute: perMinute,
		stop:      make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow reports whether identity may proceed right now.
func (l *Limiter) Allow(identity string) bool {
	if identity == "" {
		identity = "anonymous"
	}
	return l.get(identity).Allow()
}

// RetryAfter is the hint clients receive alongside a denial.
func (l *Limiter) RetryAfter() time.Duration {
	per := time.Minute / time.Duration(l.perMinute)
	if per < time.Second {
		per = time.Second
	}
	return per
}

// Stop terminates the background sweep.
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

func (l *Limiter) get(identity string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, ok := l.limiters[identity]; ok {
		entry.lastSeen = time.Now()
		return entry.limiter
	}

	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute)
	l.limiters[identity] = &identityLimiter{limiter: limiter, lastSeen: time.Now()}
	return limiter
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			for identity, entry := range l.limiters {
				if time.Since(entry.lastSeen) > staleAfter {
					delete(l.limiters, identity)
				}
			}
			l.mu.Unlock()
		}
	}
}
