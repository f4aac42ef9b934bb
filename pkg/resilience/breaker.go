// Package resilience implements the engine's named circuit breakers
// (LLM_BREAKER, VECTOR_BREAKER, DB_BREAKER) and the error-classification
// conventions that decide whether a failure counts toward a breaker's
// trip threshold, grounded on the teacher's MCP recovery classifier
// (pkg/mcp/recovery.go) generalized from a retry-action enum into a
// full closed/open/half-open state machine with process-wide singletons.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is one of the three circuit breaker states.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// ErrBreakerOpen is returned (as models.ErrServiceUnavailable at the
// call site) when Allow rejects immediately because the breaker is open.
var ErrBreakerOpen = errors.New("resilience: circuit breaker open")

// Config bounds a Breaker's trip and recovery behavior.
type Config struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}

// Breaker is a single named circuit breaker. Safe for concurrent use; a
// process typically holds exactly one Breaker per named concern
// (LLM_BREAKER, VECTOR_BREAKER, DB_BREAKER) as a singleton.
type Breaker struct {
	name string
	cfg  Config

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	openedAt            time.Time
	now                 func() time.Time
}

// New constructs a closed Breaker with the given name and config.
func New(name string, cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &Breaker{name: name, cfg: cfg, state: StateClosed, now: time.Now}
}

// Name returns the breaker's configured name.
func (b *Breaker) Name() string { return b.name }

// State reports the breaker's current state, transitioning Open->HalfOpen
// as a side effect if ResetTimeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpenLocked()
	return b.state
}

func (b *Breaker) maybeHalfOpenLocked() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		b.state = StateHalfOpen
	}
}

// Allow reports whether a call may proceed. It returns ErrBreakerOpen
// when the breaker is open and the reset timeout has not yet elapsed.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpenLocked()
	if b.state == StateOpen {
		return ErrBreakerOpen
	}
	return nil
}

// RecordSuccess closes the breaker and resets the failure counter. A
// success observed in the half-open state is what closes the breaker
// again.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = 0
	b.state = StateClosed
}

// RecordFailure increments the consecutive-failure counter and opens the
// breaker once FailureThreshold is reached, or at once when the breaker
// is half-open. Do skips it for errors its shouldTrip classifier rejects
// (e.g. LLM rate-limit responses under LLMShouldTrip).
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures++
	if b.state == StateHalfOpen || b.consecutiveFailures >= b.cfg.FailureThreshold {
		b.state = StateOpen
		b.openedAt = b.now()
	}
}

// Do runs fn if the breaker allows it, recording the outcome. shouldTrip
// classifies err (nil is always a success); a nil shouldTrip records
// every non-nil error as a failure.
func (b *Breaker) Do(ctx context.Context, shouldTrip func(error) bool, fn func(context.Context) error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn(ctx)
	if err == nil {
		b.RecordSuccess()
		return nil
	}
	if shouldTrip == nil || shouldTrip(err) {
		b.RecordFailure()
	}
	return err
}

// Registry holds the process-wide named breaker singletons.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{breakers: make(map[string]*Breaker)}
}

// GetOrCreate returns the named breaker, constructing it with cfg on
// first access. Subsequent calls with the same name ignore cfg and
// return the existing instance — breakers are configured once at
// startup.
func (r *Registry) GetOrCreate(name string, cfg Config) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := New(name, cfg)
	r.breakers[name] = b
	return b
}

// Well-known breaker names, per spec.md §4.12.
const (
	LLMBreakerName    = "LLM_BREAKER"
	VectorBreakerName = "VECTOR_BREAKER"
	DBBreakerName     = "DB_BREAKER"
)

// RateLimitError marks an error as an LLM provider rate-limit
// response. The LLM breaker excludes rate-limit errors from its trip
// count per spec.md §4.12: a busy provider should back off, not trip the
// breaker for every caller.
type RateLimitError struct{ Err error }

func (e *RateLimitError) Error() string { return e.Err.Error() }
func (e *RateLimitError) Unwrap() error { return e.Err }

// LLMShouldTrip is the LLM_BREAKER's classifier: every error trips
// except RateLimitError.
func LLMShouldTrip(err error) bool {
	var rle *RateLimitError
	return !errors.As(err, &rle)
}
