package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/briskprint/printservice/internal/domain"
)

// PrintJobRepo persists print jobs using a minimal pgx pool.
type PrintJobRepo struct{ Pool PgxPool }

// NewPrintJobRepo constructs a PrintJobRepo with the given pool.
func NewPrintJobRepo(p PgxPool) *PrintJobRepo { return &PrintJobRepo{Pool: p} }

// SavePrintJob upserts a print job, generating an id on insert.
func (r *PrintJobRepo) SavePrintJob(ctx domain.Context, j domain.PrintJob) (string, error) {
	tracer := otel.Tracer("repo.print_jobs")
	ctx, span := tracer.Start(ctx, "print_jobs.SavePrintJob")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.sql.table", "print_jobs"))

	id := j.ID
	if id == "" {
		id = uuid.New().String()
	}
	q := `INSERT INTO print_jobs
		(id, order_id, job_type, status, content, attempts, max_attempts, created_at, updated_at, printed_at, error_message)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, attempts = EXCLUDED.attempts,
			updated_at = EXCLUDED.updated_at, printed_at = EXCLUDED.printed_at, error_message = EXCLUDED.error_message`
	_, err := r.Pool.Exec(ctx, q, id, j.OrderID, j.JobType, j.Status, j.Content, j.Attempts, j.MaxAttempts,
		j.CreatedAt, j.UpdatedAt, j.PrintedAt, j.ErrorMessage)
	if err != nil {
		return "", fmt.Errorf("op=print_jobs.save: %w", domain.ErrStoreUnavailable)
	}
	return id, nil
}

// GetPrintJob loads a print job by id.
func (r *PrintJobRepo) GetPrintJob(ctx domain.Context, id string) (domain.PrintJob, error) {
	tracer := otel.Tracer("repo.print_jobs")
	ctx, span := tracer.Start(ctx, "print_jobs.GetPrintJob")
	defer span.End()

	row := r.Pool.QueryRow(ctx, `SELECT id, order_id, job_type, status, content, attempts, max_attempts,
		created_at, updated_at, printed_at, error_message FROM print_jobs WHERE id=$1`, id)
	return scanPrintJob(row)
}

// GetPendingPrintJobs returns pending, attemptable jobs ordered by createdAt.
func (r *PrintJobRepo) GetPendingPrintJobs(ctx domain.Context) ([]domain.PrintJob, error) {
	tracer := otel.Tracer("repo.print_jobs")
	ctx, span := tracer.Start(ctx, "print_jobs.GetPendingPrintJobs")
	defer span.End()

	return r.queryJobs(ctx, `SELECT id, order_id, job_type, status, content, attempts, max_attempts,
		created_at, updated_at, printed_at, error_message FROM print_jobs
		WHERE status = $1 AND attempts < max_attempts ORDER BY created_at ASC`, domain.PrintJobPending)
}

// GetFailedPrintJobs returns jobs currently in the failed state.
func (r *PrintJobRepo) GetFailedPrintJobs(ctx domain.Context) ([]domain.PrintJob, error) {
	tracer := otel.Tracer("repo.print_jobs")
	ctx, span := tracer.Start(ctx, "print_jobs.GetFailedPrintJobs")
	defer span.End()

	return r.queryJobs(ctx, `SELECT id, order_id, job_type, status, content, attempts, max_attempts,
		created_at, updated_at, printed_at, error_message FROM print_jobs
		WHERE status = $1 ORDER BY created_at ASC`, domain.PrintJobFailed)
}

// GetStuckPrintJobs returns jobs stuck in the printing state since before cutoff.
func (r *PrintJobRepo) GetStuckPrintJobs(ctx domain.Context, cutoff time.Time) ([]domain.PrintJob, error) {
	tracer := otel.Tracer("repo.print_jobs")
	ctx, span := tracer.Start(ctx, "print_jobs.GetStuckPrintJobs")
	defer span.End()

	return r.queryJobs(ctx, `SELECT id, order_id, job_type, status, content, attempts, max_attempts,
		created_at, updated_at, printed_at, error_message FROM print_jobs
		WHERE status = $1 AND updated_at < $2 ORDER BY updated_at ASC`, domain.PrintJobPrinting, cutoff)
}

// UpdatePrintJobStatus transitions a job's status.
func (r *PrintJobRepo) UpdatePrintJobStatus(ctx domain.Context, id string, status domain.PrintJobStatus, errMsg *string) error {
	tracer := otel.Tracer("repo.print_jobs")
	ctx, span := tracer.Start(ctx, "print_jobs.UpdatePrintJobStatus")
	defer span.End()

	var printedAt any
	if status == domain.PrintJobCompleted {
		printedAt = time.Now()
	}
	tag, err := r.Pool.Exec(ctx, `UPDATE print_jobs SET status=$1, error_message=$2, updated_at=$3,
		printed_at = COALESCE($4, printed_at)
		WHERE id=$5`, status, errMsg, time.Now(), printedAt, id)
	if err != nil {
		return fmt.Errorf("op=print_jobs.update_status: %w", domain.ErrStoreUnavailable)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByOrder returns every print job created for an order.
func (r *PrintJobRepo) ListByOrder(ctx domain.Context, orderID string) ([]domain.PrintJob, error) {
	tracer := otel.Tracer("repo.print_jobs")
	ctx, span := tracer.Start(ctx, "print_jobs.ListByOrder")
	defer span.End()

	return r.queryJobs(ctx, `SELECT id, order_id, job_type, status, content, attempts, max_attempts,
		created_at, updated_at, printed_at, error_message FROM print_jobs
		WHERE order_id = $1 ORDER BY created_at ASC`, orderID)
}

// CountByStatus returns counts of jobs grouped by status.
func (r *PrintJobRepo) CountByStatus(ctx domain.Context) (map[domain.PrintJobStatus]int, error) {
	tracer := otel.Tracer("repo.print_jobs")
	ctx, span := tracer.Start(ctx, "print_jobs.CountByStatus")
	defer span.End()

	rows, err := r.Pool.Query(ctx, `SELECT status, COUNT(*) FROM print_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("op=print_jobs.count_by_status: %w", domain.ErrStoreUnavailable)
	}
	defer rows.Close()

	out := make(map[domain.PrintJobStatus]int)
	for rows.Next() {
		var status domain.PrintJobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("op=print_jobs.count_by_status scan: %w", err)
		}
		out[status] = count
	}
	return out, rows.Err()
}

func (r *PrintJobRepo) queryJobs(ctx domain.Context, q string, args ...any) ([]domain.PrintJob, error) {
	rows, err := r.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("op=print_jobs.query: %w", domain.ErrStoreUnavailable)
	}
	defer rows.Close()

	var out []domain.PrintJob
	for rows.Next() {
		j, err := scanPrintJobRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrintJob(row pgx.Row) (domain.PrintJob, error) {
	j, err := scanPrintJobRows(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PrintJob{}, domain.ErrNotFound
	}
	return j, err
}

func scanPrintJobRows(row rowScanner) (domain.PrintJob, error) {
	var j domain.PrintJob
	err := row.Scan(&j.ID, &j.OrderID, &j.JobType, &j.Status, &j.Content, &j.Attempts, &j.MaxAttempts,
		&j.CreatedAt, &j.UpdatedAt, &j.PrintedAt, &j.ErrorMessage)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PrintJob{}, err
		}
		return domain.PrintJob{}, fmt.Errorf("op=print_jobs.scan: %w", domain.ErrStoreUnavailable)
	}
	return j, nil
}
