// Package ratelimit counts failed logins per client inside a trailing window.
//
// State is process local. Several instances behind a balancer each keep their own counters,
// so the effective limit grows with the number of instances.
package ratelimit

import (
	"sync"
	"time"

	"github.com/nkiryanov/clearance/internal/clock"
)

const (
	defaultMaxAttempts = 5
	defaultWindow      = 15 * time.Minute
)

type Config struct {
	// Failures allowed inside window before client is blocked
	MaxAttempts int

	// Trailing window failures are counted in
	Window time.Duration

	// System clock if not set
	Clock clock.Clock
}

type Limiter struct {
	maxAttempts int
	window      time.Duration
	clock       clock.Clock

	// client id -> *attempts
	windows sync.Map
}

// attempts is failure timestamps of one client, ordered, plus attempts being checked right now
// dead is set when the window was removed from the map, writers must re-insert a fresh one.
// A window with inflight attempts is never removed
type attempts struct {
	mu       sync.Mutex
	failures []time.Time
	inflight int
	dead     bool
}

// Reported while client is blocked only by attempts that are not settled yet
const busyRetryAfter = time.Second

func New(cfg Config) *Limiter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}

	return &Limiter{
		maxAttempts: cfg.MaxAttempts,
		window:      cfg.Window,
		clock:       cfg.Clock,
	}
}

func (l *Limiter) MaxAttempts() int      { return l.maxAttempts }
func (l *Limiter) Window() time.Duration { return l.window }

// IsAllowed reports whether client may try to log in now
func (l *Limiter) IsAllowed(clientID string) bool {
	return l.count(clientID) < l.maxAttempts
}

// Reserve admits one attempt of client and holds its slot until the reservation is settled.
// Recorded failures and unsettled reservations together never exceed max attempts,
// so a burst of parallel requests can't run more checks than a sequence could.
// Returns false if client is blocked
func (l *Limiter) Reserve(clientID string) (*Reservation, bool) {
	now := l.clock.Now()

	for {
		v, _ := l.windows.LoadOrStore(clientID, &attempts{})
		a := v.(*attempts)

		a.mu.Lock()
		if a.dead {
			a.mu.Unlock()
			continue
		}
		a.prune(now.Add(-l.window))
		if len(a.failures)+a.inflight >= l.maxAttempts {
			a.mu.Unlock()
			return nil, false
		}
		a.inflight++
		a.mu.Unlock()

		return &Reservation{limiter: l, clientID: clientID, window: a}, true
	}
}

// RecordFailure appends failed attempt at current time
func (l *Limiter) RecordFailure(clientID string) {
	now := l.clock.Now()

	for {
		v, _ := l.windows.LoadOrStore(clientID, &attempts{})
		a := v.(*attempts)

		a.mu.Lock()
		if a.dead {
			a.mu.Unlock()
			continue
		}
		a.prune(now.Add(-l.window))
		a.failures = append(a.failures, now)
		a.mu.Unlock()
		return
	}
}

// RecordSuccess forgets every failure of client
func (l *Limiter) RecordSuccess(clientID string) {
	v, ok := l.windows.Load(clientID)
	if !ok {
		return
	}
	a := v.(*attempts)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures = nil
	l.dropIfEmpty(clientID, a)
}

// dropIfEmpty removes window that has nothing to count. Caller holds a.mu
func (l *Limiter) dropIfEmpty(clientID string, a *attempts) {
	if !a.dead && a.inflight == 0 && len(a.failures) == 0 {
		a.dead = true
		l.windows.CompareAndDelete(clientID, a)
	}
}

// Reservation is a slot taken by Reserve. Exactly one of Fail, Succeed or Release takes effect,
// later calls are no-ops. Owned by one request, not safe for concurrent use
type Reservation struct {
	limiter  *Limiter
	clientID string
	window   *attempts
	settled  bool
}

// Fail turns the slot into a recorded failure
func (r *Reservation) Fail() {
	now := r.limiter.clock.Now()
	r.settle(func(a *attempts) {
		a.prune(now.Add(-r.limiter.window))
		a.failures = append(a.failures, now)
	})
}

// Succeed frees the slot and forgets every failure of client
func (r *Reservation) Succeed() {
	r.settle(func(a *attempts) {
		a.failures = nil
	})
}

// Release frees the slot without recording anything
func (r *Reservation) Release() {
	r.settle(func(*attempts) {})
}

// settle gives the slot back and applies fn in the same critical section,
// so no other Reserve sees the slot free before its outcome is counted
func (r *Reservation) settle(fn func(a *attempts)) {
	if r == nil || r.settled {
		return
	}
	r.settled = true

	a := r.window
	a.mu.Lock()
	defer a.mu.Unlock()

	a.inflight--
	fn(a)
	r.limiter.dropIfEmpty(r.clientID, a)
}

func (l *Limiter) RemainingAttempts(clientID string) int {
	return max(l.maxAttempts-l.count(clientID), 0)
}

// RetryAfter returns how long client has to wait before next attempt is allowed
// Zero if client is not blocked
func (l *Limiter) RetryAfter(clientID string) time.Duration {
	v, ok := l.windows.Load(clientID)
	if !ok {
		return 0
	}
	a := v.(*attempts)
	now := l.clock.Now()

	a.mu.Lock()
	defer a.mu.Unlock()

	a.prune(now.Add(-l.window))
	if len(a.failures) < l.maxAttempts {
		if len(a.failures)+a.inflight >= l.maxAttempts {
			return busyRetryAfter
		}
		return 0
	}

	// The client is unblocked once enough oldest failures leave the window
	unblockAt := a.failures[len(a.failures)-l.maxAttempts].Add(l.window)
	return max(unblockAt.Sub(now), 0)
}

// SweepStale drops clients whose last failure is before cutoff
// Clients with attempts in progress are kept
// Returns number of removed clients
func (l *Limiter) SweepStale(cutoff time.Time) int {
	removed := 0

	l.windows.Range(func(key, v any) bool {
		a := v.(*attempts)

		a.mu.Lock()
		if !a.dead && a.inflight == 0 && (len(a.failures) == 0 || a.failures[len(a.failures)-1].Before(cutoff)) {
			a.dead = true
			l.windows.CompareAndDelete(key, a)
			removed++
		}
		a.mu.Unlock()

		return true
	})

	return removed
}

// Len returns number of tracked clients
func (l *Limiter) Len() int {
	n := 0
	l.windows.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// count returns failures inside the window plus attempts in progress, pruning older failures
func (l *Limiter) count(clientID string) int {
	v, ok := l.windows.Load(clientID)
	if !ok {
		return 0
	}
	a := v.(*attempts)
	now := l.clock.Now()

	a.mu.Lock()
	defer a.mu.Unlock()

	a.prune(now.Add(-l.window))
	return len(a.failures) + a.inflight
}

// prune drops failures older than since. Caller holds a.mu
func (a *attempts) prune(since time.Time) {
	i := 0
	for i < len(a.failures) && !a.failures[i].After(since) {
		i++
	}
	if i > 0 {
		a.failures = append(a.failures[:0], a.failures[i:]...)
	}
}
