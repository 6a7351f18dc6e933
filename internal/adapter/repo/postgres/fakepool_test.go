package postgres_test

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakePool is a configurable stand-in for postgres.PgxPool shared across
// the repo test files: each method defers to an optional func field, with
// a zero-value-safe default when unset.
type fakePool struct {
	execFn     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	queryRowFn func(ctx context.Context, sql string, args ...any) pgx.Row
	queryFn    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	beginTxFn  func(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

func (p *fakePool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if p.execFn != nil {
		return p.execFn(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

func (p *fakePool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if p.queryRowFn != nil {
		return p.queryRowFn(ctx, sql, args...)
	}
	return &scalarRow{}
}

func (p *fakePool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if p.queryFn != nil {
		return p.queryFn(ctx, sql, args...)
	}
	return &emptyRows{}, nil
}

func (p *fakePool) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	if p.beginTxFn != nil {
		return p.beginTxFn(ctx, opts)
	}
	return nil, nil
}

// scalarRow satisfies pgx.Row, feeding each dest from vals in order or an
// error when set.
type scalarRow struct {
	vals []any
	err  error
}

func (r *scalarRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		if i >= len(r.vals) {
			break
		}
		assignInto(d, r.vals[i])
	}
	return nil
}

// emptyRows satisfies pgx.Rows with zero rows.
type emptyRows struct{ pgx.Rows }

func (r *emptyRows) Next() bool { return false }
func (r *emptyRows) Err() error { return nil }
func (r *emptyRows) Close()     {}

// sliceRows satisfies pgx.Rows by replaying a fixed list of scan funcs.
type sliceRows struct {
	pgx.Rows
	scans []func(dest ...any) error
	i     int
}

func (r *sliceRows) Next() bool { return r.i < len(r.scans) }
func (r *sliceRows) Scan(dest ...any) error {
	fn := r.scans[r.i]
	r.i++
	return fn(dest...)
}
func (r *sliceRows) Err() error { return nil }
func (r *sliceRows) Close()     {}

func assignInto(dest, val any) {
	switch d := dest.(type) {
	case *string:
		if v, ok := val.(string); ok {
			*d = v
		}
	case *int:
		if v, ok := val.(int); ok {
			*d = v
		}
	case *bool:
		if v, ok := val.(bool); ok {
			*d = v
		}
	}
}
