package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/briskprint/printservice/internal/domain"
)

// HealthMetricRepo persists the health sample log.
type HealthMetricRepo struct{ Pool PgxPool }

// NewHealthMetricRepo constructs a HealthMetricRepo.
func NewHealthMetricRepo(p PgxPool) *HealthMetricRepo { return &HealthMetricRepo{Pool: p} }

// AppendHealthMetric inserts one resource sample.
func (r *HealthMetricRepo) AppendHealthMetric(ctx domain.Context, m domain.HealthMetric) (string, error) {
	tracer := otel.Tracer("repo.health_metrics")
	ctx, span := tracer.Start(ctx, "health_metrics.AppendHealthMetric")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.sql.table", "health_metrics"))

	id := m.ID
	if id == "" {
		id = uuid.New().String()
	}
	meta, err := json.Marshal(m.Metadata)
	if err != nil {
		return "", fmt.Errorf("op=health_metrics.append marshal metadata: %w", err)
	}
	_, err = r.Pool.Exec(ctx, `INSERT INTO health_metrics
		(id, resource_type, timestamp, value, status, metadata)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		id, m.ResourceType, m.Timestamp, m.Value, m.Status, meta)
	if err != nil {
		return "", fmt.Errorf("op=health_metrics.append: %w", domain.ErrStoreUnavailable)
	}
	return id, nil
}

// RecentHealthMetrics returns the latest samples for a resource, newest first.
func (r *HealthMetricRepo) RecentHealthMetrics(ctx domain.Context, resource domain.ResourceType, limit int) ([]domain.HealthMetric, error) {
	tracer := otel.Tracer("repo.health_metrics")
	ctx, span := tracer.Start(ctx, "health_metrics.RecentHealthMetrics")
	defer span.End()

	rows, err := r.Pool.Query(ctx, `SELECT id, resource_type, timestamp, value, status, metadata
		FROM health_metrics WHERE resource_type=$1 ORDER BY timestamp DESC LIMIT $2`, resource, limit)
	if err != nil {
		return nil, fmt.Errorf("op=health_metrics.recent: %w", domain.ErrStoreUnavailable)
	}
	defer rows.Close()

	var out []domain.HealthMetric
	for rows.Next() {
		var m domain.HealthMetric
		var metaRaw []byte
		if err := rows.Scan(&m.ID, &m.ResourceType, &m.Timestamp, &m.Value, &m.Status, &metaRaw); err != nil {
			return nil, fmt.Errorf("op=health_metrics.scan: %w", err)
		}
		if len(metaRaw) > 0 {
			if err := json.Unmarshal(metaRaw, &m.Metadata); err != nil {
				return nil, fmt.Errorf("op=health_metrics.unmarshal metadata: %w", err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
