package breaker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/briskprint/printservice/internal/core/breaker"
	"github.com/briskprint/printservice/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() domain.BreakerConfig {
	return domain.BreakerConfig{
		Name:             "printer",
		FailureThreshold: 2,
		SuccessThreshold: 2,
		TimeoutDuration:  50 * time.Millisecond,
		CallTimeout:      time.Second,
	}
}

func TestBreaker_ClosedAllowsSuccessAndClearsFailures(t *testing.T) {
	t.Parallel()
	b := breaker.New(testConfig())

	err := b.Execute(context.Background(), func(domain.Context) error { return errors.New("boom") })
	require.Error(t, err)
	assert.Equal(t, domain.BreakerClosed, b.State())

	err = b.Execute(context.Background(), func(domain.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 0, b.Stats().FailureCount)
}

func TestBreaker_OpensAfterFailureThreshold(t *testing.T) {
	t.Parallel()
	b := breaker.New(testConfig())

	for i := 0; i < 2; i++ {
		_ = b.Execute(context.Background(), func(domain.Context) error { return errors.New("fail") })
	}
	assert.Equal(t, domain.BreakerOpen, b.State())

	err := b.Execute(context.Background(), func(domain.Context) error { return nil })
	assert.ErrorIs(t, err, domain.ErrCircuitOpen)
}

func TestBreaker_HalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	t.Parallel()
	b := breaker.New(testConfig())

	for i := 0; i < 2; i++ {
		_ = b.Execute(context.Background(), func(domain.Context) error { return errors.New("fail") })
	}
	require.Equal(t, domain.BreakerOpen, b.State())

	time.Sleep(60 * time.Millisecond)

	err := b.Execute(context.Background(), func(domain.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, domain.BreakerHalfOpen, b.State())

	err = b.Execute(context.Background(), func(domain.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, domain.BreakerClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()
	b := breaker.New(testConfig())

	for i := 0; i < 2; i++ {
		_ = b.Execute(context.Background(), func(domain.Context) error { return errors.New("fail") })
	}
	time.Sleep(60 * time.Millisecond)

	err := b.Execute(context.Background(), func(domain.Context) error { return errors.New("still broken") })
	require.Error(t, err)
	assert.Equal(t, domain.BreakerOpen, b.State())
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()
	b := breaker.New(testConfig())
	for i := 0; i < 2; i++ {
		_ = b.Execute(context.Background(), func(domain.Context) error { return errors.New("fail") })
	}
	require.Equal(t, domain.BreakerOpen, b.State())

	b.Reset()
	assert.Equal(t, domain.BreakerClosed, b.State())
	assert.Equal(t, 0, b.Stats().FailureCount)
}

func TestManager_GetCreatesFallbackBreaker(t *testing.T) {
	t.Parallel()
	m := breaker.NewManager(domain.DefaultBreakerConfigs())

	printerBreaker := m.Get("printer")
	assert.Equal(t, domain.BreakerClosed, printerBreaker.State())

	unknown := m.Get("unknown_dependency")
	assert.NotNil(t, unknown)
	assert.Equal(t, domain.BreakerClosed, unknown.State())

	all := m.All()
	assert.Contains(t, all, "printer")
	assert.Contains(t, all, "unknown_dependency")
}

func TestManager_Reset(t *testing.T) {
	t.Parallel()
	m := breaker.NewManager(domain.DefaultBreakerConfigs())
	assert.False(t, m.Reset("does_not_exist"))
	assert.True(t, m.Reset("printer"))
}

func TestClassify(t *testing.T) {
	t.Parallel()
	assert.Equal(t, domain.FailureTimeout, breaker.Classify(context.DeadlineExceeded))
	assert.Equal(t, domain.FailureService, breaker.Classify(errors.New("other")))
}
