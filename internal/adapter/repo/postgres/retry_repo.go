package postgres

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/briskprint/printservice/internal/domain"
)

// RetryRepo persists the retry-attempt audit log and the dead-letter queue.
type RetryRepo struct{ Pool PgxPool }

// NewRetryRepo constructs a RetryRepo.
func NewRetryRepo(p PgxPool) *RetryRepo { return &RetryRepo{Pool: p} }

// AppendRetryAttempt records one attempt of a retryable task.
func (r *RetryRepo) AppendRetryAttempt(ctx domain.Context, taskID string, a domain.RetryAttempt) error {
	tracer := otel.Tracer("repo.retry_attempts")
	ctx, span := tracer.Start(ctx, "retry_attempts.AppendRetryAttempt")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.sql.table", "retry_attempts"))

	_, err := r.Pool.Exec(ctx, `INSERT INTO retry_attempts
		(id, task_id, attempt_number, timestamp, delay_before_ms, success, duration_ms, error)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		uuid.New().String(), taskID, a.AttemptNumber, a.Timestamp, a.DelayBefore.Milliseconds(),
		a.Success, a.Duration.Milliseconds(), a.Error)
	if err != nil {
		return fmt.Errorf("op=retry_attempts.append: %w", domain.ErrStoreUnavailable)
	}
	return nil
}

// MarkDeadLetter persists a task whose retry budget is exhausted.
func (r *RetryRepo) MarkDeadLetter(ctx domain.Context, dl domain.DeadLetter) (string, error) {
	tracer := otel.Tracer("repo.dead_letters")
	ctx, span := tracer.Start(ctx, "dead_letters.MarkDeadLetter")
	defer span.End()
	span.SetAttributes(attribute.String("db.sql.table", "dead_letters"))

	id := dl.ID
	if id == "" {
		id = uuid.New().String()
	}
	attempts, err := json.Marshal(dl.Attempts)
	if err != nil {
		return "", fmt.Errorf("op=dead_letters.mark marshal attempts: %w", err)
	}
	_, err = r.Pool.Exec(ctx, `INSERT INTO dead_letters
		(id, task_id, failure_type, last_error, attempts, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET last_error = EXCLUDED.last_error, attempts = EXCLUDED.attempts`,
		id, dl.TaskID, dl.FailureType, dl.LastError, attempts, dl.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("op=dead_letters.mark: %w", domain.ErrStoreUnavailable)
	}
	return id, nil
}

// GetDeadLetter loads a dead letter by id.
func (r *RetryRepo) GetDeadLetter(ctx domain.Context, id string) (domain.DeadLetter, error) {
	tracer := otel.Tracer("repo.dead_letters")
	ctx, span := tracer.Start(ctx, "dead_letters.GetDeadLetter")
	defer span.End()

	row := r.Pool.QueryRow(ctx, `SELECT id, task_id, failure_type, last_error, attempts, created_at
		FROM dead_letters WHERE id=$1`, id)
	return scanDeadLetter(row)
}

// ListDeadLetters returns every dead letter for the operator surface.
func (r *RetryRepo) ListDeadLetters(ctx domain.Context) ([]domain.DeadLetter, error) {
	tracer := otel.Tracer("repo.dead_letters")
	ctx, span := tracer.Start(ctx, "dead_letters.ListDeadLetters")
	defer span.End()

	rows, err := r.Pool.Query(ctx, `SELECT id, task_id, failure_type, last_error, attempts, created_at
		FROM dead_letters ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("op=dead_letters.list: %w", domain.ErrStoreUnavailable)
	}
	defer rows.Close()

	var out []domain.DeadLetter
	for rows.Next() {
		dl, err := scanDeadLetterRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, dl)
	}
	return out, rows.Err()
}

// RemoveDeadLetter deletes a dead letter, typically after a successful re-queue.
func (r *RetryRepo) RemoveDeadLetter(ctx domain.Context, id string) error {
	tracer := otel.Tracer("repo.dead_letters")
	ctx, span := tracer.Start(ctx, "dead_letters.RemoveDeadLetter")
	defer span.End()

	_, err := r.Pool.Exec(ctx, `DELETE FROM dead_letters WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("op=dead_letters.remove: %w", domain.ErrStoreUnavailable)
	}
	return nil
}

func scanDeadLetter(row pgx.Row) (domain.DeadLetter, error) {
	dl, err := scanDeadLetterRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DeadLetter{}, domain.ErrNotFound
	}
	return dl, err
}

func scanDeadLetterRow(row rowScanner) (domain.DeadLetter, error) {
	var dl domain.DeadLetter
	var attemptsRaw []byte
	err := row.Scan(&dl.ID, &dl.TaskID, &dl.FailureType, &dl.LastError, &attemptsRaw, &dl.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DeadLetter{}, err
		}
		return domain.DeadLetter{}, fmt.Errorf("op=dead_letters.scan: %w", domain.ErrStoreUnavailable)
	}
	if len(attemptsRaw) > 0 {
		if err := json.Unmarshal(attemptsRaw, &dl.Attempts); err != nil {
			return domain.DeadLetter{}, fmt.Errorf("op=dead_letters.unmarshal attempts: %w", err)
		}
	}
	return dl, nil
}
