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

// OfflineQueueRepo persists the offline queue using a minimal pgx pool.
type OfflineQueueRepo struct{ Pool PgxPool }

// NewOfflineQueueRepo constructs an OfflineQueueRepo with the given pool.
func NewOfflineQueueRepo(p PgxPool) *OfflineQueueRepo { return &OfflineQueueRepo{Pool: p} }

// Enqueue inserts a new offline queue row, generating an id if unset.
func (r *OfflineQueueRepo) Enqueue(ctx domain.Context, item domain.OfflineQueueItem) (string, error) {
	tracer := otel.Tracer("repo.offline_queue")
	ctx, span := tracer.Start(ctx, "offline_queue.Enqueue")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.sql.table", "offline_queue"))

	id := item.ID
	if id == "" {
		id = uuid.New().String()
	}
	q := `INSERT INTO offline_queue
		(id, item_type, item_id, priority, status, created_at, updated_at, retry_count, max_retries, expires_at, error_message)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	_, err := r.Pool.Exec(ctx, q, id, item.ItemType, item.ItemID, item.Priority, item.Status,
		item.CreatedAt, item.UpdatedAt, item.RetryCount, item.MaxRetries, item.ExpiresAt, item.ErrorMessage)
	if err != nil {
		return "", fmt.Errorf("op=offline_queue.enqueue: %w", domain.ErrStoreUnavailable)
	}
	return id, nil
}

// NextItems returns queued, unexpired items ordered by priority desc then
// createdAt asc, without claiming them.
func (r *OfflineQueueRepo) NextItems(ctx domain.Context, itemType domain.QueueItemType, limit int) ([]domain.OfflineQueueItem, error) {
	tracer := otel.Tracer("repo.offline_queue")
	ctx, span := tracer.Start(ctx, "offline_queue.NextItems")
	defer span.End()

	rows, err := r.Pool.Query(ctx, `SELECT id, item_type, item_id, priority, status, created_at, updated_at,
		retry_count, max_retries, expires_at, error_message FROM offline_queue
		WHERE item_type = $1 AND status = $2 AND expires_at > $3
		ORDER BY priority DESC, created_at ASC LIMIT $4`,
		itemType, domain.QueueQueued, time.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("op=offline_queue.next_items: %w", domain.ErrStoreUnavailable)
	}
	defer rows.Close()
	return scanQueueRowsAll(rows)
}

// ClaimBatch atomically flips queued->processing for ids still queued, in a
// single transaction, and returns the ids actually transitioned. Grounded on
// the teacher's explicit-transaction pattern (internal/adapter/repo/postgres/jobs_repo.go):
// BeginTx, deferred rollback guarded by a committed flag, then Commit.
func (r *OfflineQueueRepo) ClaimBatch(ctx domain.Context, ids []string) ([]string, error) {
	tracer := otel.Tracer("repo.offline_queue")
	ctx, span := tracer.Start(ctx, "offline_queue.ClaimBatch")
	defer span.End()
	span.SetAttributes(attribute.String("db.operation", "UPDATE"))

	if len(ids) == 0 {
		return nil, nil
	}

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("op=offline_queue.claim_batch.begin_tx: %w", domain.ErrStoreUnavailable)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	rows, err := tx.Query(ctx, `UPDATE offline_queue SET status=$1, updated_at=$2
		WHERE id = ANY($3) AND status=$4 RETURNING id`,
		domain.QueueProcessing, time.Now(), ids, domain.QueueQueued)
	if err != nil {
		return nil, fmt.Errorf("op=offline_queue.claim_batch.exec: %w", domain.ErrStoreUnavailable)
	}
	var claimed []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("op=offline_queue.claim_batch.scan: %w", err)
		}
		claimed = append(claimed, id)
	}
	rerr := rows.Err()
	rows.Close()
	if rerr != nil {
		return nil, fmt.Errorf("op=offline_queue.claim_batch.rows: %w", rerr)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("op=offline_queue.claim_batch.commit: %w", domain.ErrStoreUnavailable)
	}
	committed = true
	return claimed, nil
}

// UpdateStatus transitions a queue item's status.
func (r *OfflineQueueRepo) UpdateStatus(ctx domain.Context, id string, status domain.QueueItemStatus, errMsg *string) error {
	tracer := otel.Tracer("repo.offline_queue")
	ctx, span := tracer.Start(ctx, "offline_queue.UpdateStatus")
	defer span.End()

	tag, err := r.Pool.Exec(ctx, `UPDATE offline_queue SET status=$1, error_message=$2, updated_at=$3 WHERE id=$4`,
		status, errMsg, time.Now(), id)
	if err != nil {
		return fmt.Errorf("op=offline_queue.update_status: %w", domain.ErrStoreUnavailable)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// IncrementRetry bumps a queue item's retry count.
func (r *OfflineQueueRepo) IncrementRetry(ctx domain.Context, id string) error {
	tracer := otel.Tracer("repo.offline_queue")
	ctx, span := tracer.Start(ctx, "offline_queue.IncrementRetry")
	defer span.End()

	tag, err := r.Pool.Exec(ctx, `UPDATE offline_queue SET retry_count = retry_count + 1, updated_at=$1 WHERE id=$2`,
		time.Now(), id)
	if err != nil {
		return fmt.Errorf("op=offline_queue.increment_retry: %w", domain.ErrStoreUnavailable)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Remove deletes a queue row.
func (r *OfflineQueueRepo) Remove(ctx domain.Context, id string) error {
	tracer := otel.Tracer("repo.offline_queue")
	ctx, span := tracer.Start(ctx, "offline_queue.Remove")
	defer span.End()

	_, err := r.Pool.Exec(ctx, `DELETE FROM offline_queue WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("op=offline_queue.remove: %w", domain.ErrStoreUnavailable)
	}
	return nil
}

// CleanupExpired deletes rows past ExpiresAt and returns the count removed.
// Grounded on the teacher's internal/adapter/repo/postgres/cleanup.go sweep shape.
func (r *OfflineQueueRepo) CleanupExpired(ctx domain.Context) (int, error) {
	tracer := otel.Tracer("repo.offline_queue")
	ctx, span := tracer.Start(ctx, "offline_queue.CleanupExpired")
	defer span.End()

	tag, err := r.Pool.Exec(ctx, `DELETE FROM offline_queue WHERE expires_at <= $1 AND status NOT IN ($2,$3)`,
		time.Now(), domain.QueueCompleted, domain.QueueExpired)
	if err != nil {
		return 0, fmt.Errorf("op=offline_queue.cleanup_expired: %w", domain.ErrStoreUnavailable)
	}
	return int(tag.RowsAffected()), nil
}

// Count returns the total number of queue rows.
func (r *OfflineQueueRepo) Count(ctx domain.Context) (int, error) {
	tracer := otel.Tracer("repo.offline_queue")
	ctx, span := tracer.Start(ctx, "offline_queue.Count")
	defer span.End()

	var n int
	if err := r.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM offline_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("op=offline_queue.count: %w", domain.ErrStoreUnavailable)
	}
	return n, nil
}

// Statistics aggregates the offline queue for the operator surface.
func (r *OfflineQueueRepo) Statistics(ctx domain.Context) (domain.QueueStatistics, error) {
	tracer := otel.Tracer("repo.offline_queue")
	ctx, span := tracer.Start(ctx, "offline_queue.Statistics")
	defer span.End()

	stats := domain.QueueStatistics{
		ByStatus:   make(map[domain.QueueItemStatus]int),
		ByPriority: make(map[domain.QueuePriority]int),
	}

	rows, err := r.Pool.Query(ctx, `SELECT status, priority, COUNT(*) FROM offline_queue GROUP BY status, priority`)
	if err != nil {
		return stats, fmt.Errorf("op=offline_queue.statistics.group: %w", domain.ErrStoreUnavailable)
	}
	for rows.Next() {
		var status domain.QueueItemStatus
		var priority domain.QueuePriority
		var count int
		if err := rows.Scan(&status, &priority, &count); err != nil {
			rows.Close()
			return stats, fmt.Errorf("op=offline_queue.statistics.scan: %w", err)
		}
		stats.ByStatus[status] += count
		stats.ByPriority[priority] += count
		stats.TotalItems += count
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return stats, fmt.Errorf("op=offline_queue.statistics.rows: %w", err)
	}
	rows.Close()

	var oldest *time.Time
	err = r.Pool.QueryRow(ctx, `SELECT MIN(created_at) FROM offline_queue WHERE status=$1`, domain.QueueQueued).Scan(&oldest)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return stats, fmt.Errorf("op=offline_queue.statistics.oldest: %w", domain.ErrStoreUnavailable)
	}
	var age time.Duration
	if oldest != nil {
		age = time.Since(*oldest)
	}
	stats.OldestQueuedAge = age

	var expiring int
	err = r.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM offline_queue WHERE status=$1 AND expires_at <= $2`,
		domain.QueueQueued, time.Now().Add(time.Hour)).Scan(&expiring)
	if err != nil {
		return stats, fmt.Errorf("op=offline_queue.statistics.expiring: %w", domain.ErrStoreUnavailable)
	}
	stats.ExpiringWithin1h = expiring
	stats.Urgency = domain.UrgencyFromAge(age, expiring)

	return stats, nil
}

// FindLive returns the live (non-terminal) row for (itemType,itemId), if any.
func (r *OfflineQueueRepo) FindLive(ctx domain.Context, itemType domain.QueueItemType, itemID string) (domain.OfflineQueueItem, bool, error) {
	tracer := otel.Tracer("repo.offline_queue")
	ctx, span := tracer.Start(ctx, "offline_queue.FindLive")
	defer span.End()

	row := r.Pool.QueryRow(ctx, `SELECT id, item_type, item_id, priority, status, created_at, updated_at,
		retry_count, max_retries, expires_at, error_message FROM offline_queue
		WHERE item_type=$1 AND item_id=$2 AND status IN ($3,$4) LIMIT 1`,
		itemType, itemID, domain.QueueQueued, domain.QueueProcessing)
	item, err := scanQueueRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.OfflineQueueItem{}, false, nil
	}
	if err != nil {
		return domain.OfflineQueueItem{}, false, err
	}
	return item, true, nil
}

func scanQueueRow(row rowScanner) (domain.OfflineQueueItem, error) {
	var it domain.OfflineQueueItem
	err := row.Scan(&it.ID, &it.ItemType, &it.ItemID, &it.Priority, &it.Status, &it.CreatedAt, &it.UpdatedAt,
		&it.RetryCount, &it.MaxRetries, &it.ExpiresAt, &it.ErrorMessage)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.OfflineQueueItem{}, err
		}
		return domain.OfflineQueueItem{}, fmt.Errorf("op=offline_queue.scan: %w", domain.ErrStoreUnavailable)
	}
	return it, nil
}

func scanQueueRowsAll(rows pgx.Rows) ([]domain.OfflineQueueItem, error) {
	var out []domain.OfflineQueueItem
	for rows.Next() {
		it, err := scanQueueRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
