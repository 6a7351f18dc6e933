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

// RecoverySessionRepo persists recovery sessions.
type RecoverySessionRepo struct{ Pool PgxPool }

// NewRecoverySessionRepo constructs a RecoverySessionRepo.
func NewRecoverySessionRepo(p PgxPool) *RecoverySessionRepo { return &RecoverySessionRepo{Pool: p} }

// SaveSession upserts a recovery session, generating an id on insert.
func (r *RecoverySessionRepo) SaveSession(ctx domain.Context, s domain.RecoverySession) (string, error) {
	tracer := otel.Tracer("repo.recovery_sessions")
	ctx, span := tracer.Start(ctx, "recovery_sessions.SaveSession")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.sql.table", "recovery_sessions"))

	id := s.ID
	if id == "" {
		id = uuid.New().String()
	}
	meta, err := json.Marshal(s.Metadata)
	if err != nil {
		return "", fmt.Errorf("op=recovery_sessions.save marshal metadata: %w", err)
	}
	_, err = r.Pool.Exec(ctx, `INSERT INTO recovery_sessions
		(id, recovery_type, phase, started_at, updated_at, completed_at, items_total, items_processed,
		 items_failed, error_message, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET phase=EXCLUDED.phase, updated_at=EXCLUDED.updated_at,
			completed_at=EXCLUDED.completed_at, items_total=EXCLUDED.items_total,
			items_processed=EXCLUDED.items_processed, items_failed=EXCLUDED.items_failed,
			error_message=EXCLUDED.error_message`,
		id, s.RecoveryType, s.Phase, s.StartedAt, s.UpdatedAt, s.CompletedAt, s.ItemsTotal, s.ItemsProcessed,
		s.ItemsFailed, s.ErrorMessage, meta)
	if err != nil {
		return "", fmt.Errorf("op=recovery_sessions.save: %w", domain.ErrStoreUnavailable)
	}
	return id, nil
}

// ActiveSession returns the session currently in a non-terminal phase, if any.
func (r *RecoverySessionRepo) ActiveSession(ctx domain.Context) (domain.RecoverySession, bool, error) {
	tracer := otel.Tracer("repo.recovery_sessions")
	ctx, span := tracer.Start(ctx, "recovery_sessions.ActiveSession")
	defer span.End()

	row := r.Pool.QueryRow(ctx, `SELECT id, recovery_type, phase, started_at, updated_at, completed_at,
		items_total, items_processed, items_failed, error_message, metadata FROM recovery_sessions
		WHERE phase IN ($1,$2) ORDER BY started_at DESC LIMIT 1`, domain.PhaseValidation, domain.PhaseProcessing)
	s, err := scanRecoverySession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RecoverySession{}, false, nil
	}
	if err != nil {
		return domain.RecoverySession{}, false, err
	}
	return s, true, nil
}

// GetSession loads a recovery session by id.
func (r *RecoverySessionRepo) GetSession(ctx domain.Context, id string) (domain.RecoverySession, error) {
	tracer := otel.Tracer("repo.recovery_sessions")
	ctx, span := tracer.Start(ctx, "recovery_sessions.GetSession")
	defer span.End()

	row := r.Pool.QueryRow(ctx, `SELECT id, recovery_type, phase, started_at, updated_at, completed_at,
		items_total, items_processed, items_failed, error_message, metadata FROM recovery_sessions WHERE id=$1`, id)
	s, err := scanRecoverySession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RecoverySession{}, domain.ErrNotFound
	}
	return s, err
}

func scanRecoverySession(row pgx.Row) (domain.RecoverySession, error) {
	var s domain.RecoverySession
	var metaRaw []byte
	err := row.Scan(&s.ID, &s.RecoveryType, &s.Phase, &s.StartedAt, &s.UpdatedAt, &s.CompletedAt,
		&s.ItemsTotal, &s.ItemsProcessed, &s.ItemsFailed, &s.ErrorMessage, &metaRaw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RecoverySession{}, err
		}
		return domain.RecoverySession{}, fmt.Errorf("op=recovery_sessions.scan: %w", domain.ErrStoreUnavailable)
	}
	if len(metaRaw) > 0 {
		if err := json.Unmarshal(metaRaw, &s.Metadata); err != nil {
			return domain.RecoverySession{}, fmt.Errorf("op=recovery_sessions.unmarshal metadata: %w", err)
		}
	}
	return s, nil
}
