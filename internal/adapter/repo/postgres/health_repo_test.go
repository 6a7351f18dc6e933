package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/briskprint/printservice/internal/adapter/repo/postgres"
	"github.com/briskprint/printservice/internal/domain"
)

func TestHealthMetricRepo_AppendHealthMetric_GeneratesID(t *testing.T) {
	repo := postgres.NewHealthMetricRepo(&fakePool{})
	id, err := repo.AppendHealthMetric(context.Background(), domain.HealthMetric{
		ResourceType: domain.ResourceMemory, Timestamp: time.Now(), Value: 42, Status: domain.HealthHealthy,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated id")
	}
}

func TestHealthMetricRepo_AppendHealthMetric_StoreError(t *testing.T) {
	pool := &fakePool{execFn: func(context.Context, string, ...any) (pgconn.CommandTag, error) {
		return pgconn.CommandTag{}, errors.New("down")
	}}
	repo := postgres.NewHealthMetricRepo(pool)
	_, err := repo.AppendHealthMetric(context.Background(), domain.HealthMetric{})
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestHealthMetricRepo_RecentHealthMetrics_QueryError(t *testing.T) {
	pool := &fakePool{queryFn: func(context.Context, string, ...any) (pgx.Rows, error) {
		return nil, errors.New("down")
	}}
	repo := postgres.NewHealthMetricRepo(pool)
	_, err := repo.RecentHealthMetrics(context.Background(), domain.ResourceMemory, 5)
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestHealthMetricRepo_RecentHealthMetrics_Empty(t *testing.T) {
	repo := postgres.NewHealthMetricRepo(&fakePool{})
	metrics, err := repo.RecentHealthMetrics(context.Background(), domain.ResourceMemory, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(metrics) != 0 {
		t.Fatalf("expected no metrics, got %d", len(metrics))
	}
}
