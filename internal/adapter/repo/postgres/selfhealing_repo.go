package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/briskprint/printservice/internal/domain"
)

// SelfHealingRepo persists self-healing remediation events.
type SelfHealingRepo struct{ Pool PgxPool }

// NewSelfHealingRepo constructs a SelfHealingRepo.
func NewSelfHealingRepo(p PgxPool) *SelfHealingRepo { return &SelfHealingRepo{Pool: p} }

// AppendSelfHealingEvent inserts a remediation event.
func (r *SelfHealingRepo) AppendSelfHealingEvent(ctx domain.Context, e domain.SelfHealingEvent) (string, error) {
	tracer := otel.Tracer("repo.self_healing_events")
	ctx, span := tracer.Start(ctx, "self_healing_events.AppendSelfHealingEvent")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.sql.table", "self_healing_events"))

	id := e.ID
	if id == "" {
		id = uuid.New().String()
	}
	details, err := json.Marshal(e.Details)
	if err != nil {
		return "", fmt.Errorf("op=self_healing_events.append marshal details: %w", err)
	}
	_, err = r.Pool.Exec(ctx, `INSERT INTO self_healing_events
		(id, event_type, resource_type, timestamp, details)
		VALUES ($1,$2,$3,$4,$5)`,
		id, e.EventType, e.ResourceType, e.Timestamp, details)
	if err != nil {
		return "", fmt.Errorf("op=self_healing_events.append: %w", domain.ErrStoreUnavailable)
	}
	return id, nil
}
