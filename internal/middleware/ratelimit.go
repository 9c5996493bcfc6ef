package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// ConnLimiter throttles websocket connection attempts per source IP: at
// most maxPerWindow attempts per window, with offenders blocked for the
// block duration.
type ConnLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	blocked  map[string]time.Time

	maxPerWindow int
	window       time.Duration
	block        time.Duration
	now          func() time.Time
}

func NewConnLimiter(maxPerWindow int, window, block time.Duration) *ConnLimiter {
	return &ConnLimiter{
		attempts:     make(map[string][]time.Time),
		blocked:      make(map[string]time.Time),
		maxPerWindow: maxPerWindow,
		window:       window,
		block:        block,
		now:          time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (l *ConnLimiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Allow records a connection attempt from ip and reports whether it may
// proceed. Exceeding the window limit blocks the ip for the block duration.
func (l *ConnLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	if until, ok := l.blocked[ip]; ok {
		if now.Before(until) {
			return false
		}
		delete(l.blocked, ip)
	}

	cutoff := now.Add(-l.window)
	recent := l.attempts[ip][:0]
	for _, t := range l.attempts[ip] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= l.maxPerWindow {
		l.attempts[ip] = recent
		l.blocked[ip] = now.Add(l.block)
		return false
	}

	l.attempts[ip] = append(recent, now)
	return true
}

// ClientIP extracts the source IP, honouring X-Forwarded-For from a proxy.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for i := 0; i < len(fwd); i++ {
			if fwd[i] == ',' {
				return fwd[:i]
			}
		}
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
