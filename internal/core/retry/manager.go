// Package retry implements the Retry Manager described in spec §4.6: it
// executes a RetryableTask under a failure-type-specific backoff policy,
// persists every attempt for audit, and moves a task whose budget is
// exhausted to a persisted dead letter queue instead of dropping it.
//
// Grounded on the teacher's
// internal/adapter/queue/redpanda/retry_manager.go (RetryJob/scheduleRetry/
// moveToDLQ/ProcessDLQJob/requeueFromDLQ control flow), generalized from a
// Kafka-topic-backed job retry into an in-process task executor: this
// daemon talks to one physical printer, not a message broker, so "enqueue
// for retry" becomes "sleep the computed delay, then call Fn again."
package retry

import (
	"log/slog"
	"math/rand"
	"time"

	"github.com/briskprint/printservice/internal/domain"
)

// Manager executes RetryableTasks under per-failure-type policy.
type Manager struct {
	repo     domain.RetryAttemptRepository
	policies map[domain.FailureType]domain.RetryPolicy
	rng      *rand.Rand
	now      func() time.Time
	sleep    func(domain.Context, time.Duration) error
}

// New constructs a Manager. policies defaults to domain.DefaultRetryPolicies()
// when nil.
func New(repo domain.RetryAttemptRepository, policies map[domain.FailureType]domain.RetryPolicy) *Manager {
	if policies == nil {
		policies = domain.DefaultRetryPolicies()
	}
	return &Manager{
		repo:     repo,
		policies: policies,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx domain.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// policyFor resolves the policy for a failure type, falling back to "unknown".
func (m *Manager) policyFor(ft domain.FailureType) domain.RetryPolicy {
	if p, ok := m.policies[ft]; ok {
		return p
	}
	return m.policies[domain.FailureUnknownType]
}

// Execute runs task.Fn under its failure type's policy, blocking through any
// retry delays, until it succeeds, the caller's context is canceled, or the
// attempt budget is exhausted (in which case the task is persisted to the
// dead letter queue and domain.ErrRetryExhausted is returned).
func (m *Manager) Execute(ctx domain.Context, task domain.RetryableTask) error {
	policy := task.Policy
	if (policy == domain.RetryPolicy{}) {
		policy = m.policyFor(task.FailureType)
	}

	attempt := 1
	for {
		start := m.now()
		err := task.Fn(ctx)
		dur := m.now().Sub(start)

		ra := domain.RetryAttempt{
			AttemptNumber: attempt,
			Timestamp:     start,
			Success:       err == nil,
			Duration:      dur,
		}
		if err != nil {
			ra.Error = err.Error()
		}
		task.Attempts = append(task.Attempts, ra)
		if m.repo != nil {
			if aerr := m.repo.AppendRetryAttempt(ctx, task.ID, ra); aerr != nil {
				slog.Warn("failed to persist retry attempt", slog.String("task_id", task.ID), slog.Any("error", aerr))
			}
		}

		if err == nil {
			slog.Info("retryable task succeeded",
				slog.String("task_id", task.ID),
				slog.Int("attempt", attempt))
			return nil
		}
		task.LastError = err.Error()

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if attempt >= policy.MaxAttempts {
			slog.Info("retry budget exhausted, moving to dead letter queue",
				slog.String("task_id", task.ID),
				slog.String("failure_type", string(task.FailureType)),
				slog.Int("attempts", attempt))
			return m.moveToDeadLetter(ctx, task)
		}

		delay := policy.DelayForAttempt(attempt+1, m.rng)
		ra.DelayBefore = delay
		slog.Info("scheduling retry",
			slog.String("task_id", task.ID),
			slog.Int("next_attempt", attempt+1),
			slog.Duration("delay", delay))

		if serr := m.sleep(ctx, delay); serr != nil {
			return serr
		}
		attempt++
	}
}

// moveToDeadLetter persists a DeadLetter for a task whose budget is spent.
func (m *Manager) moveToDeadLetter(ctx domain.Context, task domain.RetryableTask) error {
	dl := domain.DeadLetter{
		TaskID:      task.ID,
		FailureType: task.FailureType,
		LastError:   task.LastError,
		Attempts:    task.Attempts,
		CreatedAt:   m.now(),
		Metadata:    task.Metadata,
	}
	if m.repo != nil {
		if _, err := m.repo.MarkDeadLetter(ctx, dl); err != nil {
			slog.Error("failed to persist dead letter", slog.String("task_id", task.ID), slog.Any("error", err))
			return err
		}
	}
	return domain.ErrRetryExhausted
}

// Requeue re-runs a persisted dead letter's work through Execute and removes
// it from the dead letter queue on success, per the teacher's
// requeueFromDLQ: reprocessing reuses the original execution path rather
// than a bespoke recovery code path.
func (m *Manager) Requeue(ctx domain.Context, id string, fn func(domain.Context) error) error {
	dl, err := m.repo.GetDeadLetter(ctx, id)
	if err != nil {
		return err
	}

	task := domain.RetryableTask{
		ID:          dl.TaskID,
		FailureType: dl.FailureType,
		Policy:      m.policyFor(dl.FailureType),
		Metadata:    dl.Metadata,
		Fn:          fn,
	}

	if err := m.Execute(ctx, task); err != nil {
		return err
	}
	return m.repo.RemoveDeadLetter(ctx, id)
}
