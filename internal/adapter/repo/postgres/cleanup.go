package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

// Beginner starts a transaction. *pgxpool.Pool satisfies this, and tests can
// supply a hand-written fake instead of a live database.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// CleanupService handles data retention and cleanup
type CleanupService struct {
	Conn          Beginner
	RetentionDays int
}

// NewCleanupService creates a new cleanup service
func NewCleanupService(conn Beginner, retentionDays int) *CleanupService {
	if retentionDays <= 0 {
		retentionDays = 90 // default 90 days
	}
	return &CleanupService{Conn: conn, RetentionDays: retentionDays}
}

// CleanupOldData removes data older than retention period: completed or
// cancelled print jobs, orders that no longer have any print jobs, completed
// or expired offline queue items, connectivity events, health samples, and
// notification history. Self-healing events are not removed.
func (s *CleanupService) CleanupOldData(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -s.RetentionDays)

	tx, err := s.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("cleanup begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var deletedJobs int64
	err = tx.QueryRow(ctx, `
		DELETE FROM print_jobs
		WHERE status IN ('completed', 'cancelled')
		AND created_at < $1
		RETURNING count(*)
	`, cutoff).Scan(&deletedJobs)
	if err != nil {
		slog.Debug("no print jobs to delete", slog.Any("error", err))
	}

	var deletedOrders int64
	err = tx.QueryRow(ctx, `
		DELETE FROM orders
		WHERE created_at < $1
		AND id NOT IN (SELECT order_id FROM print_jobs WHERE order_id IS NOT NULL)
		RETURNING count(*)
	`, cutoff).Scan(&deletedOrders)
	if err != nil {
		slog.Debug("no orders to delete", slog.Any("error", err))
	}

	var deletedQueueItems int64
	err = tx.QueryRow(ctx, `
		DELETE FROM offline_queue
		WHERE status IN ('completed', 'expired')
		AND created_at < $1
		RETURNING count(*)
	`, cutoff).Scan(&deletedQueueItems)
	if err != nil {
		slog.Debug("no queue items to delete", slog.Any("error", err))
	}

	var deletedEvents int64
	err = tx.QueryRow(ctx, `
		DELETE FROM connectivity_events
		WHERE timestamp < $1
		RETURNING count(*)
	`, cutoff).Scan(&deletedEvents)
	if err != nil {
		slog.Debug("no connectivity events to delete", slog.Any("error", err))
	}

	var deletedHealth int64
	err = tx.QueryRow(ctx, `
		DELETE FROM health_metrics
		WHERE timestamp < $1
		RETURNING count(*)
	`, cutoff).Scan(&deletedHealth)
	if err != nil {
		slog.Debug("no health metrics to delete", slog.Any("error", err))
	}

	var deletedNotifications int64
	err = tx.QueryRow(ctx, `
		DELETE FROM notification_history
		WHERE sent_at < $1
		RETURNING count(*)
	`, cutoff).Scan(&deletedNotifications)
	if err != nil {
		slog.Debug("no notification history to delete", slog.Any("error", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("cleanup commit: %w", err)
	}

	slog.Info("data cleanup completed",
		slog.Int64("deleted_print_jobs", deletedJobs),
		slog.Int64("deleted_orders", deletedOrders),
		slog.Int64("deleted_queue_items", deletedQueueItems),
		slog.Int64("deleted_connectivity_events", deletedEvents),
		slog.Int64("deleted_health_metrics", deletedHealth),
		slog.Int64("deleted_notifications", deletedNotifications),
		slog.Time("cutoff", cutoff),
	)

	return nil
}

// RunPeriodic starts a periodic cleanup job
func (s *CleanupService) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour // daily by default
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run initial cleanup
	if err := s.CleanupOldData(ctx); err != nil {
		slog.Error("initial cleanup failed", slog.Any("error", err))
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup service stopping")
			return
		case <-ticker.C:
			if err := s.CleanupOldData(ctx); err != nil {
				slog.Error("periodic cleanup failed", slog.Any("error", err))
			}
		}
	}
}
