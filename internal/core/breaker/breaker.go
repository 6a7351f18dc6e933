// Package breaker implements the Circuit Breaker described in spec §4.5:
// a named, three-state (closed/open/half-open) guard in front of a
// dependency call, with independent failure/success thresholds and a
// timeout-gated transition back to half-open.
//
// Grounded on the teacher's internal/adapter/observability/circuit_breaker.go
// (CircuitBreaker/CircuitBreakerManager, Call/shouldAllowRequest/updateState
// shape), generalized from a single maxFailures/timeout pair and a
// fixed half-open probe count into the spec's per-dependency BreakerConfig
// (separate FailureThreshold/SuccessThreshold/TimeoutDuration/CallTimeout),
// in-memory failure-cause statistics, and a CallTimeout enforced via
// context instead of being left to the caller.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/briskprint/printservice/internal/domain"
	"github.com/briskprint/printservice/internal/ringbuf"
)

// Breaker is one named circuit breaker instance.
type Breaker struct {
	cfg domain.BreakerConfig

	mu             sync.Mutex
	state          domain.BreakerState
	failureCount   int
	successCount   int
	lastFailureAt  time.Time
	stateChangedAt time.Time

	totalRequests     int64
	totalFailures     int64
	totalSuccesses    int64
	circuitOpens      int64
	circuitCloses     int64
	failuresPrevented int64
	failuresByCause   map[domain.FailureCause]int64
	history           *ringbuf.Buffer[domain.CallRecord]

	now func() time.Time
}

// New constructs a Breaker in the closed state.
func New(cfg domain.BreakerConfig) *Breaker {
	return &Breaker{
		cfg:             cfg,
		state:           domain.BreakerClosed,
		stateChangedAt:  time.Now(),
		failuresByCause: make(map[domain.FailureCause]int64),
		history:         ringbuf.New[domain.CallRecord](domain.DefaultCallHistorySize),
		now:             time.Now,
	}
}

// Classify maps an error to a FailureCause for statistics. Classification
// never influences breaker transitions, only BreakerStats.FailuresByCause.
func Classify(err error) domain.FailureCause {
	if err == nil {
		return domain.FailureUnknown
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.FailureTimeout
	case errors.Is(err, context.Canceled):
		return domain.FailureTimeout
	default:
		return domain.FailureService
	}
}

// Execute runs fn if the breaker currently allows calls, bounding it by the
// configured CallTimeout. It returns domain.ErrCircuitOpen without calling fn
// when the breaker is open or the half-open probe budget is spent.
func (b *Breaker) Execute(ctx domain.Context, fn func(domain.Context) error) error {
	if !b.allow() {
		b.mu.Lock()
		b.failuresPrevented++
		b.mu.Unlock()
		return domain.ErrCircuitOpen
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if b.cfg.CallTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, b.cfg.CallTimeout)
		defer cancel()
	}

	start := b.now()
	err := fn(callCtx)
	b.record(err, b.now().Sub(start))
	return err
}

// allow decides whether a call may proceed, performing the open->half-open
// transition if the timeout has elapsed.
func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalRequests++

	if b.state == domain.BreakerOpen && b.now().Sub(b.stateChangedAt) >= b.cfg.TimeoutDuration {
		b.transition(domain.BreakerHalfOpen)
		b.successCount = 0
	}

	switch b.state {
	case domain.BreakerClosed:
		return true
	case domain.BreakerHalfOpen:
		return b.successCount < b.cfg.SuccessThreshold
	default: // open
		return false
	}
}

// record applies a call outcome to the state machine.
func (b *Breaker) record(err error, dur time.Duration) {
	cause := Classify(err)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.history.Push(domain.CallRecord{
		Timestamp: b.now(),
		Success:   err == nil,
		Cause:     cause,
		Duration:  dur,
	})

	if err != nil {
		b.totalFailures++
		b.failuresByCause[cause]++
		b.failureCount++
		b.lastFailureAt = b.now()

		if b.state == domain.BreakerHalfOpen {
			b.transition(domain.BreakerOpen)
			return
		}
		if b.state == domain.BreakerClosed && b.failureCount >= b.cfg.FailureThreshold {
			b.transition(domain.BreakerOpen)
		}
		return
	}

	b.totalSuccesses++
	switch b.state {
	case domain.BreakerClosed:
		b.failureCount = 0
	case domain.BreakerHalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			b.transition(domain.BreakerClosed)
			b.failureCount = 0
			b.successCount = 0
		}
	}
}

// transition must be called with b.mu held.
func (b *Breaker) transition(to domain.BreakerState) {
	if to == b.state {
		return
	}
	if to == domain.BreakerOpen {
		b.circuitOpens++
	}
	if to == domain.BreakerClosed {
		b.circuitCloses++
	}
	b.state = to
	b.stateChangedAt = b.now()
}

// State returns the current breaker state.
func (b *Breaker) State() domain.BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker back to closed, clearing counters. Used by the
// operator-triggered manual reset endpoint (spec §6 circuit/{name}/reset).
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(domain.BreakerClosed)
	b.failureCount = 0
	b.successCount = 0
}

// Stats returns a point-in-time snapshot for the operator surface.
func (b *Breaker) Stats() domain.BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	causes := make(map[domain.FailureCause]int64, len(b.failuresByCause))
	for k, v := range b.failuresByCause {
		causes[k] = v
	}

	var lastFailure *time.Time
	if !b.lastFailureAt.IsZero() {
		t := b.lastFailureAt
		lastFailure = &t
	}

	return domain.BreakerStats{
		Name:              b.cfg.Name,
		State:             b.state,
		FailureCount:      b.failureCount,
		SuccessCount:      b.successCount,
		LastFailureAt:     lastFailure,
		StateChangedAt:    b.stateChangedAt,
		TotalRequests:     b.totalRequests,
		TotalFailures:     b.totalFailures,
		TotalSuccesses:    b.totalSuccesses,
		CircuitOpens:      b.circuitOpens,
		CircuitCloses:     b.circuitCloses,
		FailuresPrevented: b.failuresPrevented,
		FailuresByCause:   causes,
		CallHistory:       b.history.Items(),
	}
}

// Manager owns the set of named breakers for the daemon's dependencies.
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewManager constructs a Manager preloaded with the given configs.
func NewManager(configs map[string]domain.BreakerConfig) *Manager {
	m := &Manager{breakers: make(map[string]*Breaker, len(configs))}
	for name, cfg := range configs {
		m.breakers[name] = New(cfg)
	}
	return m
}

// Get returns the named breaker, creating one with DefaultBreakerConfigs'
// "database" shape as a fallback if it is unknown.
func (m *Manager) Get(name string) *Breaker {
	m.mu.RLock()
	b, ok := m.breakers[name]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.breakers[name]; ok {
		return b
	}
	cfg := domain.DefaultBreakerConfigs()["database"]
	cfg.Name = name
	b = New(cfg)
	m.breakers[name] = b
	return b
}

// All returns a snapshot of stats for every known breaker, keyed by name.
func (m *Manager) All() map[string]domain.BreakerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]domain.BreakerStats, len(m.breakers))
	for name, b := range m.breakers {
		out[name] = b.Stats()
	}
	return out
}

// Reset resets the named breaker, reporting whether it existed.
func (m *Manager) Reset(name string) bool {
	m.mu.RLock()
	b, ok := m.breakers[name]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	b.Reset()
	return true
}
