package domain

import "time"

// RecoveryType names what triggered a recovery session.
type RecoveryType string

// Recovery trigger types.
const (
	RecoveryPrinter  RecoveryType = "printer"
	RecoveryInternet RecoveryType = "internet"
	RecoveryCombined RecoveryType = "combined"
	RecoveryManual   RecoveryType = "manual"
)

// RecoveryPhase is the current step of a recovery session.
type RecoveryPhase string

// Phases, in order.
const (
	PhaseIdle       RecoveryPhase = "idle"
	PhaseValidation RecoveryPhase = "validation"
	PhaseProcessing RecoveryPhase = "processing"
	PhaseCompletion RecoveryPhase = "completion"
	PhaseFailed     RecoveryPhase = "failed"
)

// NonTerminal reports whether the phase still holds the session lock.
func (p RecoveryPhase) NonTerminal() bool {
	return p == PhaseValidation || p == PhaseProcessing
}

// RecoverySession is a bounded, single-writer drain of the offline queue.
type RecoverySession struct {
	ID            string
	RecoveryType  RecoveryType
	Phase         RecoveryPhase
	StartedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
	ItemsTotal    int
	ItemsProcessed int
	ItemsFailed   int
	ErrorMessage  *string
	Metadata      map[string]string
}

// Successful reports whether the session met the success threshold:
// successes/(successes+failures) > threshold. A session that attempted
// nothing is trivially successful.
func (s RecoverySession) Successful(threshold float64) bool {
	attempted := s.ItemsProcessed + s.ItemsFailed
	if attempted == 0 {
		return true
	}
	ratio := float64(s.ItemsProcessed) / float64(attempted)
	return ratio > threshold
}

// RecoverySessionRepository is the Store's port for recovery sessions.
type RecoverySessionRepository interface {
	SaveSession(ctx Context, s RecoverySession) (string, error)
	// ActiveSession returns the session currently in a non-terminal phase,
	// if any.
	ActiveSession(ctx Context) (RecoverySession, bool, error)
	GetSession(ctx Context, id string) (RecoverySession, error)
}

// SelfHealingEvent records a cleanup/remediation action taken automatically
// by the Health Monitor in response to a resource threshold transition.
type SelfHealingEvent struct {
	ID           string
	EventType    string
	ResourceType string
	Timestamp    time.Time
	Details      map[string]string
}

// SelfHealingEventRepository is the Store's port for self-healing events.
type SelfHealingEventRepository interface {
	AppendSelfHealingEvent(ctx Context, e SelfHealingEvent) (string, error)
}
