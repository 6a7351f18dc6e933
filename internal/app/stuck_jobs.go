package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/briskprint/printservice/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// StuckJobSweeper resets print jobs that have sat in the "printing" state
// past maxProcessingAge back to failed, so the Print Manager's
// RetryFailedJobs can pick them back up. A crash between claiming a job and recording its outcome is the
// one gap at-most-once printing cannot close by itself.
type StuckJobSweeper struct {
	jobs             domain.PrintJobRepository
	maxProcessingAge time.Duration
	interval         time.Duration
}

// NewStuckJobSweeper constructs a sweeper, or nil if jobs is nil.
func NewStuckJobSweeper(jobs domain.PrintJobRepository, maxProcessingAge, interval time.Duration) *StuckJobSweeper {
	if jobs == nil {
		return nil
	}
	if maxProcessingAge <= 0 {
		maxProcessingAge = 3 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &StuckJobSweeper{
		jobs:             jobs,
		maxProcessingAge: maxProcessingAge,
		interval:         interval,
	}
}

// Run sweeps once immediately, then on every tick until ctx is canceled.
func (s *StuckJobSweeper) Run(ctx context.Context) {
	if s == nil || s.jobs == nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("stuck print job sweeper stopping")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *StuckJobSweeper) sweepOnce(ctx context.Context) {
	tracer := otel.Tracer("printjobs.sweeper")
	ctx, span := tracer.Start(ctx, "StuckJobSweeper.sweepOnce")
	defer span.End()

	cutoff := time.Now().Add(-s.maxProcessingAge)
	span.SetAttributes(attribute.Float64("jobs.max_processing_age_seconds", s.maxProcessingAge.Seconds()))

	stuck, err := s.jobs.GetStuckPrintJobs(ctx, cutoff)
	if err != nil {
		span.RecordError(err)
		slog.Error("stuck print job sweep failed to list jobs", slog.Any("error", err))
		return
	}

	marked := 0
	for _, j := range stuck {
		msg := fmt.Sprintf("print job stuck in printing state past %v; marked failed by sweeper", s.maxProcessingAge)
		if err := s.jobs.UpdatePrintJobStatus(ctx, j.ID, domain.PrintJobFailed, &msg); err != nil {
			slog.Error("stuck print job sweep failed to update status", slog.String("job_id", j.ID), slog.Any("error", err))
			continue
		}
		marked++
	}

	span.SetAttributes(
		attribute.Int("jobs.total_checked", len(stuck)),
		attribute.Int("jobs.total_marked_failed", marked),
	)
}
