package postgres_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/briskprint/printservice/internal/adapter/repo/postgres"
	"github.com/briskprint/printservice/internal/domain"
)

type fakeQueuePool struct {
	execErr     error
	execTag     pgconn.CommandTag
	queryRowErr error
	queryErr    error
	claimedIDs  []string

	beginErr error
	tx       *fakeQueueTx
}

func (p *fakeQueuePool) Exec(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
	if p.execErr != nil {
		return pgconn.CommandTag{}, p.execErr
	}
	return p.execTag, nil
}

func (p *fakeQueuePool) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	return &fakeQueueRow{err: p.queryRowErr}
}

func (p *fakeQueuePool) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	if p.queryErr != nil {
		return nil, p.queryErr
	}
	return &fakeQueueRows{}, nil
}

func (p *fakeQueuePool) BeginTx(_ context.Context, _ pgx.TxOptions) (pgx.Tx, error) {
	if p.beginErr != nil {
		return nil, p.beginErr
	}
	return p.tx, nil
}

type fakeQueueRow struct{ err error }

func (r *fakeQueueRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return nil
}

// fakeQueueRows satisfies pgx.Rows for the zero-row GROUP BY / list paths.
type fakeQueueRows struct{ pgx.Rows }

func (r *fakeQueueRows) Next() bool { return false }
func (r *fakeQueueRows) Err() error { return nil }
func (r *fakeQueueRows) Close()     {}

type fakeQueueTx struct {
	pgx.Tx
	queryErr  error
	commitErr error
	claimed   []string
}

func (t *fakeQueueTx) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	if t.queryErr != nil {
		return nil, t.queryErr
	}
	return &fakeClaimRows{ids: t.claimed}, nil
}
func (t *fakeQueueTx) Commit(_ context.Context) error   { return t.commitErr }
func (t *fakeQueueTx) Rollback(_ context.Context) error { return nil }

type fakeClaimRows struct {
	pgx.Rows
	ids []string
	i   int
}

func (r *fakeClaimRows) Next() bool {
	return r.i < len(r.ids)
}
func (r *fakeClaimRows) Scan(dest ...any) error {
	p, ok := dest[0].(*string)
	if ok {
		*p = r.ids[r.i]
	}
	r.i++
	return nil
}
func (r *fakeClaimRows) Err() error { return nil }
func (r *fakeClaimRows) Close()     {}

func TestOfflineQueueRepo_Enqueue_GeneratesID(t *testing.T) {
	repo := postgres.NewOfflineQueueRepo(&fakeQueuePool{})
	id, err := repo.Enqueue(context.Background(), domain.OfflineQueueItem{ItemType: domain.QueueItemPrintJob, ItemID: "job-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated id")
	}
}

func TestOfflineQueueRepo_Enqueue_StoreError(t *testing.T) {
	repo := postgres.NewOfflineQueueRepo(&fakeQueuePool{execErr: errors.New("down")})
	_, err := repo.Enqueue(context.Background(), domain.OfflineQueueItem{})
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestOfflineQueueRepo_ClaimBatch_EmptyIsNoop(t *testing.T) {
	repo := postgres.NewOfflineQueueRepo(&fakeQueuePool{})
	ids, err := repo.ClaimBatch(context.Background(), nil)
	if err != nil || ids != nil {
		t.Fatalf("expected no-op, got ids=%v err=%v", ids, err)
	}
}

func TestOfflineQueueRepo_ClaimBatch_ReturnsClaimedIDs(t *testing.T) {
	pool := &fakeQueuePool{tx: &fakeQueueTx{claimed: []string{"a", "b"}}}
	repo := postgres.NewOfflineQueueRepo(pool)
	ids, err := repo.ClaimBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("unexpected claimed ids: %v", ids)
	}
}

func TestOfflineQueueRepo_ClaimBatch_BeginError(t *testing.T) {
	pool := &fakeQueuePool{beginErr: errors.New("down")}
	repo := postgres.NewOfflineQueueRepo(pool)
	_, err := repo.ClaimBatch(context.Background(), []string{"a"})
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestOfflineQueueRepo_ClaimBatch_CommitError(t *testing.T) {
	pool := &fakeQueuePool{tx: &fakeQueueTx{claimed: []string{"a"}, commitErr: errors.New("commit")}}
	repo := postgres.NewOfflineQueueRepo(pool)
	_, err := repo.ClaimBatch(context.Background(), []string{"a"})
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestOfflineQueueRepo_UpdateStatus_NotFound(t *testing.T) {
	repo := postgres.NewOfflineQueueRepo(&fakeQueuePool{execTag: pgconn.NewCommandTag("UPDATE 0")})
	err := repo.UpdateStatus(context.Background(), "missing", domain.QueueCompleted, nil)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOfflineQueueRepo_Count(t *testing.T) {
	repo := postgres.NewOfflineQueueRepo(&fakeQueuePool{})
	n, err := repo.Count(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = n
}

func TestOfflineQueueRepo_FindLive_NotFound(t *testing.T) {
	repo := postgres.NewOfflineQueueRepo(&fakeQueuePool{queryRowErr: pgx.ErrNoRows})
	_, live, err := repo.FindLive(context.Background(), domain.QueueItemPrintJob, "job-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if live {
		t.Fatal("expected not live")
	}
}

func TestOfflineQueueRepo_CleanupExpired(t *testing.T) {
	repo := postgres.NewOfflineQueueRepo(&fakeQueuePool{execTag: pgconn.NewCommandTag("DELETE 3")})
	n, err := repo.CleanupExpired(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 removed, got %d", n)
	}
}
