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

func TestRecoverySessionRepo_SaveSession_GeneratesID(t *testing.T) {
	repo := postgres.NewRecoverySessionRepo(&fakePool{})
	id, err := repo.SaveSession(context.Background(), domain.RecoverySession{
		RecoveryType: domain.RecoveryManual, Phase: domain.PhaseValidation, StartedAt: time.Now(), UpdatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated id")
	}
}

func TestRecoverySessionRepo_SaveSession_StoreError(t *testing.T) {
	pool := &fakePool{execFn: func(context.Context, string, ...any) (pgconn.CommandTag, error) {
		return pgconn.CommandTag{}, errors.New("down")
	}}
	repo := postgres.NewRecoverySessionRepo(pool)
	_, err := repo.SaveSession(context.Background(), domain.RecoverySession{})
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestRecoverySessionRepo_ActiveSession_NoneActive(t *testing.T) {
	pool := &fakePool{queryRowFn: func(context.Context, string, ...any) pgx.Row {
		return &scalarRow{err: pgx.ErrNoRows}
	}}
	repo := postgres.NewRecoverySessionRepo(pool)
	_, active, err := repo.ActiveSession(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if active {
		t.Fatal("expected no active session")
	}
}

func TestRecoverySessionRepo_GetSession_NotFound(t *testing.T) {
	pool := &fakePool{queryRowFn: func(context.Context, string, ...any) pgx.Row {
		return &scalarRow{err: pgx.ErrNoRows}
	}}
	repo := postgres.NewRecoverySessionRepo(pool)
	_, err := repo.GetSession(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
