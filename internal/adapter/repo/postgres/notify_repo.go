package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/briskprint/printservice/internal/domain"
)

// NotificationRepo persists notification history and templates. It stores no
// per-type notification configuration.
type NotificationRepo struct{ Pool PgxPool }

// NewNotificationRepo constructs a NotificationRepo.
func NewNotificationRepo(p PgxPool) *NotificationRepo { return &NotificationRepo{Pool: p} }

// AppendNotification records the outcome of a send attempt.
func (r *NotificationRepo) AppendNotification(ctx domain.Context, rec domain.NotificationRecord) (string, error) {
	tracer := otel.Tracer("repo.notification_history")
	ctx, span := tracer.Start(ctx, "notification_history.AppendNotification")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.sql.table", "notification_history"))

	id := rec.ID
	if id == "" {
		id = uuid.New().String()
	}
	evtCtx, err := json.Marshal(rec.Context)
	if err != nil {
		return "", fmt.Errorf("op=notification_history.append marshal context: %w", err)
	}
	_, err = r.Pool.Exec(ctx, `INSERT INTO notification_history
		(id, notification_type, context, success, sent_at, error_message)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		id, rec.NotificationType, evtCtx, rec.Success, rec.SentAt, rec.ErrorMessage)
	if err != nil {
		return "", fmt.Errorf("op=notification_history.append: %w", domain.ErrStoreUnavailable)
	}
	return id, nil
}

// SentInWindow returns the count of successful sends of a type since `since`.
func (r *NotificationRepo) SentInWindow(ctx domain.Context, t domain.NotificationType, since time.Time) (int, error) {
	tracer := otel.Tracer("repo.notification_history")
	ctx, span := tracer.Start(ctx, "notification_history.SentInWindow")
	defer span.End()

	var n int
	err := r.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM notification_history
		WHERE notification_type=$1 AND success AND sent_at >= $2`, t, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("op=notification_history.sent_in_window: %w", domain.ErrStoreUnavailable)
	}
	return n, nil
}

// LastSent returns the timestamp of the most recent successful send of a type.
func (r *NotificationRepo) LastSent(ctx domain.Context, t domain.NotificationType) (time.Time, bool, error) {
	tracer := otel.Tracer("repo.notification_history")
	ctx, span := tracer.Start(ctx, "notification_history.LastSent")
	defer span.End()

	var ts time.Time
	err := r.Pool.QueryRow(ctx, `SELECT sent_at FROM notification_history
		WHERE notification_type=$1 AND success ORDER BY sent_at DESC LIMIT 1`, t).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("op=notification_history.last_sent: %w", domain.ErrStoreUnavailable)
	}
	return ts, true, nil
}

// GetTemplate loads the configured template for a notification type.
func (r *NotificationRepo) GetTemplate(ctx domain.Context, t domain.NotificationType) (domain.NotificationTemplate, bool, error) {
	tracer := otel.Tracer("repo.notification_templates")
	ctx, span := tracer.Start(ctx, "notification_templates.GetTemplate")
	defer span.End()

	var tpl domain.NotificationTemplate
	var throttleMinutes, maxPerHour int
	err := r.Pool.QueryRow(ctx, `SELECT notification_type, subject, body, html, throttle_minutes, max_per_hour, enabled
		FROM notification_templates WHERE notification_type=$1`, t).
		Scan(&tpl.NotificationType, &tpl.Subject, &tpl.Body, &tpl.HTML, &throttleMinutes, &maxPerHour, &tpl.Enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NotificationTemplate{}, false, nil
	}
	if err != nil {
		return domain.NotificationTemplate{}, false, fmt.Errorf("op=notification_templates.get: %w", domain.ErrStoreUnavailable)
	}
	tpl.Throttle = domain.ThrottlePolicy{ThrottleMinutes: throttleMinutes, MaxPerHour: maxPerHour}
	return tpl, true, nil
}

// SaveTemplate upserts a notification template.
func (r *NotificationRepo) SaveTemplate(ctx domain.Context, tpl domain.NotificationTemplate) error {
	tracer := otel.Tracer("repo.notification_templates")
	ctx, span := tracer.Start(ctx, "notification_templates.SaveTemplate")
	defer span.End()

	_, err := r.Pool.Exec(ctx, `INSERT INTO notification_templates
		(notification_type, subject, body, html, throttle_minutes, max_per_hour, enabled)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (notification_type) DO UPDATE SET subject=EXCLUDED.subject, body=EXCLUDED.body,
			html=EXCLUDED.html, throttle_minutes=EXCLUDED.throttle_minutes, max_per_hour=EXCLUDED.max_per_hour,
			enabled=EXCLUDED.enabled`,
		tpl.NotificationType, tpl.Subject, tpl.Body, tpl.HTML, tpl.Throttle.ThrottleMinutes, tpl.Throttle.MaxPerHour, tpl.Enabled)
	if err != nil {
		return fmt.Errorf("op=notification_templates.save: %w", domain.ErrStoreUnavailable)
	}
	return nil
}
