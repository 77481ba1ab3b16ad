package feed

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"whiteboard/internal/config"
)

// ObjectCounter reports how many objects a scope holds.
type ObjectCounter interface {
	ObjectCount() int
}

// limits bounds what one connection may send.
type limits struct {
	config.LimitsConfig
}

// CanAddObject checks whether a scope has room for another object.
func (l limits) CanAddObject(counter ObjectCounter) bool {
	return counter.ObjectCount() < l.MaxObjects
}

func (l limits) ValidateMessageSize(size int) bool {
	return size <= l.MaxMessageSize
}

// readLimit is the hard cap past which the connection is dropped instead
// of answered.
func (l limits) readLimit() int64 {
	return int64(l.MaxMessageSize) * 2
}

func (l limits) newLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(l.MessagesPerSecond), l.Burst)
}

// Default connection-attempt budget per IP: 10 per minute, burst of 5.
const (
	defaultIPEvery = 6 * time.Second
	defaultIPBurst = 5
	ipIdle         = time.Hour
)

type ipLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimit throttles connection attempts per client IP.
type IPRateLimit struct {
	clock clock.Clock
	every time.Duration
	burst int

	mu       sync.Mutex
	limiters map[string]*ipLimiterEntry
}

func NewIPRateLimit(c clock.Clock, every time.Duration, burst int) *IPRateLimit {
	return &IPRateLimit{
		clock:    c,
		every:    every,
		burst:    burst,
		limiters: make(map[string]*ipLimiterEntry),
	}
}

// Allow reports whether ip may open another connection now.
func (l *IPRateLimit) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	entry, ok := l.limiters[ip]
	if !ok {
		entry = &ipLimiterEntry{limiter: rate.NewLimiter(rate.Every(l.every), l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now

	return entry.limiter.AllowN(now, 1)
}

// Cleanup drops limiters for IPs not seen within ipIdle.
func (l *IPRateLimit) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	for ip, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > ipIdle {
			delete(l.limiters, ip)
		}
	}
}

func (l *IPRateLimit) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
