package auth

import (
	"strings"
	"sync"
	"time"
)

const unknownRemoteAddr = "unknown"

// RateLimiter is a sliding window counter of login attempts keyed by client
// address and by username. Keys whose window has emptied are pruned once per
// window length.
type RateLimiter struct {
	mu          sync.Mutex
	window      time.Duration
	maxPerIp    int
	maxPerUser  int
	ipWindows   map[string][]time.Time
	userWindows map[string][]time.Time
	lastPrune   time.Time
	now         func() time.Time
}

func NewRateLimiter(window time.Duration, maxPerIp int, maxPerUser int, now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		window:      window,
		maxPerIp:    maxPerIp,
		maxPerUser:  maxPerUser,
		ipWindows:   make(map[string][]time.Time),
		userWindows: make(map[string][]time.Time),
		lastPrune:   now(),
		now:         now,
	}
}

// Allow records an attempt and reports whether it is within both limits. Both
// counters are charged even when one of them rejects.
func (l *RateLimiter) Allow(remoteAddr string, username string) bool {
	remoteAddr = strings.TrimSpace(remoteAddr)
	if remoteAddr == "" {
		remoteAddr = unknownRemoteAddr
	}
	username = strings.ToLower(strings.TrimSpace(username))

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	ipAllowed := consume(l.ipWindows, remoteAddr, l.maxPerIp, l.window, now)
	userAllowed := username == "" || consume(l.userWindows, username, l.maxPerUser, l.window, now)
	return ipAllowed && userAllowed
}

func (l *RateLimiter) prune(now time.Time) {
	if now.Sub(l.lastPrune) < l.window {
		return
	}
	l.lastPrune = now
	pruneWindows(l.ipWindows, l.window, now)
	pruneWindows(l.userWindows, l.window, now)
}

func (l *RateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ipWindows) + len(l.userWindows)
}

func consume(windows map[string][]time.Time, key string, maxAttempts int, window time.Duration, now time.Time) bool {
	attempts := expire(windows[key], window, now)
	if len(attempts) >= maxAttempts {
		windows[key] = attempts
		return false
	}
	windows[key] = append(attempts, now)
	return true
}

func pruneWindows(windows map[string][]time.Time, window time.Duration, now time.Time) {
	for key, attempts := range windows {
		attempts = expire(attempts, window, now)
		if len(attempts) == 0 {
			delete(windows, key)
			continue
		}
		windows[key] = attempts
	}
}

func expire(attempts []time.Time, window time.Duration, now time.Time) []time.Time {
	i := 0
	for i < len(attempts) && now.Sub(attempts[i]) > window {
		i++
	}
	return attempts[i:]
}
