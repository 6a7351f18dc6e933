package retry_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/briskprint/printservice/internal/core/retry"
	"github.com/briskprint/printservice/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRetryRepo struct {
	mu          sync.Mutex
	attempts    []domain.RetryAttempt
	deadLetters map[string]domain.DeadLetter
	nextID      int
}

func newFakeRetryRepo() *fakeRetryRepo {
	return &fakeRetryRepo{deadLetters: make(map[string]domain.DeadLetter)}
}

func (r *fakeRetryRepo) AppendRetryAttempt(_ domain.Context, _ string, a domain.RetryAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, a)
	return nil
}

func (r *fakeRetryRepo) MarkDeadLetter(_ domain.Context, dl domain.DeadLetter) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := dl.TaskID
	dl.ID = id
	r.deadLetters[id] = dl
	return id, nil
}

func (r *fakeRetryRepo) GetDeadLetter(_ domain.Context, id string) (domain.DeadLetter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dl, ok := r.deadLetters[id]
	if !ok {
		return domain.DeadLetter{}, domain.ErrNotFound
	}
	return dl, nil
}

func (r *fakeRetryRepo) ListDeadLetters(_ domain.Context) ([]domain.DeadLetter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.DeadLetter, 0, len(r.deadLetters))
	for _, dl := range r.deadLetters {
		out = append(out, dl)
	}
	return out, nil
}

func (r *fakeRetryRepo) RemoveDeadLetter(_ domain.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.deadLetters, id)
	return nil
}

func fastPolicies() map[domain.FailureType]domain.RetryPolicy {
	return map[domain.FailureType]domain.RetryPolicy{
		domain.FailurePrinterError: {
			Strategy: domain.StrategyFixed, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond,
			BackoffFactor: 1, JitterFactor: 0, MaxAttempts: 3,
		},
		domain.FailureUnknownType: {
			Strategy: domain.StrategyImmediate, MaxAttempts: 1,
		},
	}
}

func TestManager_Execute_SucceedsFirstTry(t *testing.T) {
	t.Parallel()
	repo := newFakeRetryRepo()
	m := retry.New(repo, fastPolicies())

	calls := 0
	task := domain.RetryableTask{
		ID:          "job-1",
		FailureType: domain.FailurePrinterError,
		Fn: func(domain.Context) error {
			calls++
			return nil
		},
	}

	err := m.Execute(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestManager_Execute_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	repo := newFakeRetryRepo()
	m := retry.New(repo, fastPolicies())

	calls := 0
	task := domain.RetryableTask{
		ID:          "job-2",
		FailureType: domain.FailurePrinterError,
		Fn: func(domain.Context) error {
			calls++
			if calls < 2 {
				return errors.New("transient")
			}
			return nil
		},
	}

	err := m.Execute(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestManager_Execute_ExhaustsToDeadLetter(t *testing.T) {
	t.Parallel()
	repo := newFakeRetryRepo()
	m := retry.New(repo, fastPolicies())

	calls := 0
	task := domain.RetryableTask{
		ID:          "job-3",
		FailureType: domain.FailurePrinterError,
		Fn: func(domain.Context) error {
			calls++
			return errors.New("permanent")
		},
	}

	err := m.Execute(context.Background(), task)
	assert.ErrorIs(t, err, domain.ErrRetryExhausted)
	assert.Equal(t, 3, calls)

	dl, derr := repo.GetDeadLetter(context.Background(), "job-3")
	require.NoError(t, derr)
	assert.Equal(t, "permanent", dl.LastError)
	assert.Len(t, dl.Attempts, 3)
}

func TestManager_Requeue_SuccessRemovesDeadLetter(t *testing.T) {
	t.Parallel()
	repo := newFakeRetryRepo()
	m := retry.New(repo, fastPolicies())

	failing := domain.RetryableTask{
		ID:          "job-4",
		FailureType: domain.FailurePrinterError,
		Fn:          func(domain.Context) error { return errors.New("fail") },
	}
	err := m.Execute(context.Background(), failing)
	require.ErrorIs(t, err, domain.ErrRetryExhausted)

	err = m.Requeue(context.Background(), "job-4", func(domain.Context) error { return nil })
	require.NoError(t, err)

	_, derr := repo.GetDeadLetter(context.Background(), "job-4")
	assert.ErrorIs(t, derr, domain.ErrNotFound)
}

func TestManager_Execute_ContextCanceledStopsRetrying(t *testing.T) {
	t.Parallel()
	repo := newFakeRetryRepo()
	policies := map[domain.FailureType]domain.RetryPolicy{
		domain.FailureUnknownType: {
			Strategy: domain.StrategyFixed, InitialDelay: 50 * time.Millisecond, MaxDelay: 50 * time.Millisecond,
			MaxAttempts: 5,
		},
	}
	m := retry.New(repo, policies)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	task := domain.RetryableTask{
		ID:          "job-5",
		FailureType: domain.FailureUnknownType,
		Fn: func(domain.Context) error {
			calls++
			if calls == 1 {
				cancel()
			}
			return errors.New("fail")
		},
	}

	err := m.Execute(ctx, task)
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
