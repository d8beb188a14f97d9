package gateway

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Default admission-limiter constants.
const (
	DefaultMaxRequestsPerSecond = 10
	DefaultBurstSize            = 20
	DefaultMaxInFlight          = 1000
)

// AdmissionConfig holds configuration for the accept-loop admission gate.
type AdmissionConfig struct {
	MaxRequestsPerSecond float64
	BurstSize            int
	MaxInFlight          int
	Enabled              bool
}

// Admitter rate-limits accepted connections per remote address before they
// reach authentication or the WebSocket handshake. It sits on the accept
// loop's hot path, so Allow must never block.
type Admitter struct {
	mu       sync.Mutex
	limiters map[string]*addrLimiter // keyed by remote address (host only)
	config   AdmissionConfig
	inFlight int32 // atomic counter of handshakes currently in progress
}

// addrLimiter wraps a rate limiter with last-access time for cleanup.
type addrLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewAdmitter creates an admission gate with the given config. Zero-valued
// fields fall back to the package defaults.
func NewAdmitter(cfg AdmissionConfig) *Admitter {
	if cfg.MaxRequestsPerSecond == 0 {
		cfg.MaxRequestsPerSecond = DefaultMaxRequestsPerSecond
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = DefaultBurstSize
	}
	if cfg.MaxInFlight == 0 {
		cfg.MaxInFlight = DefaultMaxInFlight
	}

	return &Admitter{
		limiters: make(map[string]*addrLimiter),
		config:   cfg,
	}
}

// Allow checks whether a newly accepted connection from remoteAddr should
// proceed to authentication. Returns nil if allowed, or an *AdmissionError
// describing why it was refused (429 rate limited, 503 overloaded).
func (a *Admitter) Allow(remoteAddr string) error {
	if !a.config.Enabled {
		return nil
	}

	if inFlight := atomic.LoadInt32(&a.inFlight); inFlight >= int32(a.config.MaxInFlight) {
		return &AdmissionError{
			Code:       503,
			Message:    fmt.Sprintf("accept loop overloaded (%d/%d in flight)", inFlight, a.config.MaxInFlight),
			RemoteAddr: remoteAddr,
		}
	}

	if !a.getLimiter(remoteAddr).Allow() {
		return &AdmissionError{
			Code:       429,
			Message:    "connection rate exceeded",
			RemoteAddr: remoteAddr,
		}
	}

	return nil
}

// BeginHandshake marks one more handshake in flight; call EndHandshake when
// the worker finishes (authenticated, dispatched, or rejected).
func (a *Admitter) BeginHandshake() {
	atomic.AddInt32(&a.inFlight, 1)
}

// EndHandshake releases a slot reserved by BeginHandshake.
func (a *Admitter) EndHandshake() {
	atomic.AddInt32(&a.inFlight, -1)
}

// InFlight returns the number of handshakes currently admitted but not yet
// finished.
func (a *Admitter) InFlight() int32 {
	return atomic.LoadInt32(&a.inFlight)
}

// CleanupStale removes per-address limiters untouched for longer than
// maxAge, so a long-lived server doesn't accumulate one limiter per
// client address forever. Returns the number of limiters removed.
func (a *Admitter) CleanupStale(maxAge time.Duration) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for addr, l := range a.limiters {
		if l.lastAccess.Before(cutoff) {
			delete(a.limiters, addr)
			removed++
		}
	}
	return removed
}

func (a *Admitter) getLimiter(remoteAddr string) *rate.Limiter {
	now := time.Now()

	a.mu.Lock()
	defer a.mu.Unlock()

	if l, ok := a.limiters[remoteAddr]; ok {
		l.lastAccess = now
		return l.limiter
	}

	l := rate.NewLimiter(rate.Limit(a.config.MaxRequestsPerSecond), a.config.BurstSize)
	a.limiters[remoteAddr] = &addrLimiter{limiter: l, lastAccess: now}
	return l
}

// AdmissionError is returned by Admitter.Allow when a connection is refused
// before authentication.
type AdmissionError struct {
	Code       int // 429 rate limited, 503 overloaded
	Message    string
	RemoteAddr string
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("admission error (code %d) for %s: %s", e.Code, e.RemoteAddr, e.Message)
}
