package domain

import "time"

// BreakerState is a circuit breaker's current state.
type BreakerState string

// States per spec §4.5.
const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// FailureCause classifies why a call failed, for statistics only; it never
// affects breaker transitions.
type FailureCause string

// Failure causes.
const (
	FailureTimeout        FailureCause = "timeout"
	FailureConnection     FailureCause = "connection"
	FailureAuthentication FailureCause = "authentication"
	FailureRateLimit      FailureCause = "rate_limit"
	FailureService        FailureCause = "service"
	FailureUnknown        FailureCause = "unknown"
)

// DefaultCallHistorySize bounds a breaker's rolling call history (spec §3).
const DefaultCallHistorySize = 1000

// BreakerConfig configures a named circuit breaker.
type BreakerConfig struct {
	Name             string
	FailureThreshold int
	SuccessThreshold int
	TimeoutDuration  time.Duration
	CallTimeout      time.Duration
}

// DefaultBreakerConfigs returns the per-dependency defaults from spec §4.5.
func DefaultBreakerConfigs() map[string]BreakerConfig {
	return map[string]BreakerConfig{
		"printer": {
			Name: "printer", FailureThreshold: 5, SuccessThreshold: 3,
			TimeoutDuration: 30 * time.Second, CallTimeout: 10 * time.Second,
		},
		"external_api": {
			Name: "external_api", FailureThreshold: 3, SuccessThreshold: 2,
			TimeoutDuration: 60 * time.Second, CallTimeout: 30 * time.Second,
		},
		"smtp": {
			Name: "smtp", FailureThreshold: 2, SuccessThreshold: 1,
			TimeoutDuration: 120 * time.Second, CallTimeout: 30 * time.Second,
		},
		"database": {
			Name: "database", FailureThreshold: 3, SuccessThreshold: 2,
			TimeoutDuration: 30 * time.Second, CallTimeout: 10 * time.Second,
		},
	}
}

// CallRecord is one entry in a breaker's bounded rolling call history (spec
// §3 CircuitBreakerState: "Bounded rolling call history (≤1000)").
type CallRecord struct {
	Timestamp time.Time
	Success   bool
	Cause     FailureCause
	Duration  time.Duration
}

// BreakerStats is a point-in-time snapshot for the operator surface.
type BreakerStats struct {
	Name             string
	State            BreakerState
	FailureCount     int
	SuccessCount     int
	LastFailureAt    *time.Time
	StateChangedAt   time.Time
	TotalRequests    int64
	TotalFailures    int64
	TotalSuccesses   int64
	CircuitOpens     int64
	CircuitCloses    int64
	FailuresPrevented int64
	FailuresByCause  map[FailureCause]int64
	CallHistory      []CallRecord
}
