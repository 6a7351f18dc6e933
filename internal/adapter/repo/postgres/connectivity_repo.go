package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/briskprint/printservice/internal/domain"
)

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// ConnectivityEventRepo persists the connectivity event log.
type ConnectivityEventRepo struct{ Pool PgxPool }

// NewConnectivityEventRepo constructs a ConnectivityEventRepo.
func NewConnectivityEventRepo(p PgxPool) *ConnectivityEventRepo { return &ConnectivityEventRepo{Pool: p} }

// AppendEvent inserts a connectivity transition event.
func (r *ConnectivityEventRepo) AppendEvent(ctx domain.Context, e domain.ConnectivityEvent) (string, error) {
	tracer := otel.Tracer("repo.connectivity_events")
	ctx, span := tracer.Start(ctx, "connectivity_events.AppendEvent")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.sql.table", "connectivity_events"))

	id := e.ID
	if id == "" {
		id = uuid.New().String()
	}
	var durationSeconds any
	if e.DurationOffline != nil {
		durationSeconds = e.DurationOffline.Seconds()
	}
	_, err := r.Pool.Exec(ctx, `INSERT INTO connectivity_events
		(id, event_type, component, status, timestamp, duration_offline_seconds)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		id, e.EventType, e.Component, e.Status, e.Timestamp, durationSeconds)
	if err != nil {
		return "", fmt.Errorf("op=connectivity_events.append: %w", domain.ErrStoreUnavailable)
	}
	return id, nil
}

// RecentEvents returns the most recent connectivity events, newest first.
func (r *ConnectivityEventRepo) RecentEvents(ctx domain.Context, limit int) ([]domain.ConnectivityEvent, error) {
	tracer := otel.Tracer("repo.connectivity_events")
	ctx, span := tracer.Start(ctx, "connectivity_events.RecentEvents")
	defer span.End()

	rows, err := r.Pool.Query(ctx, `SELECT id, event_type, component, status, timestamp, duration_offline_seconds
		FROM connectivity_events ORDER BY timestamp DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("op=connectivity_events.recent: %w", domain.ErrStoreUnavailable)
	}
	defer rows.Close()

	var out []domain.ConnectivityEvent
	for rows.Next() {
		var e domain.ConnectivityEvent
		var durationSeconds *float64
		if err := rows.Scan(&e.ID, &e.EventType, &e.Component, &e.Status, &e.Timestamp, &durationSeconds); err != nil {
			return nil, fmt.Errorf("op=connectivity_events.scan: %w", err)
		}
		if durationSeconds != nil {
			d := secondsToDuration(*durationSeconds)
			e.DurationOffline = &d
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
