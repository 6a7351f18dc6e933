// Package notify implements the Notification Service: typed events are
// rendered against a template, gated by a per-type sliding-window throttle
// policy, and handed to the transport on a bounded async queue so a slow
// SMTP server can never block the caller.
//
// Grounded on the teacher's internal/usecase/evaluate.go (service struct,
// tracer span, structured logging) and internal/adapter/observability
// metrics helpers, generalized into the spec's throttle-then-send pipeline
// (spec §4.9). The Open Question on throttle semantics is resolved as a
// sliding window anchored on Repo.LastSent/SentInWindow rather than a
// midnight reset, so a burst straddling midnight is still throttled.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/briskprint/printservice/internal/domain"
	obsctx "github.com/briskprint/printservice/internal/observability"
)

// Service renders, throttles, and dispatches notifications.
type Service struct {
	Repo      domain.NotificationRepository
	Transport domain.Notifier
	Policies  map[domain.NotificationType]domain.ThrottlePolicy
	Enabled   bool

	queue chan queuedEvent
	now   func() time.Time
}

type queuedEvent struct {
	evt    domain.NotificationEvent
	bypass bool
}

// New constructs a Service with a bounded async queue of the given size.
func New(repo domain.NotificationRepository, transport domain.Notifier, enabled bool, queueSize int) *Service {
	if queueSize <= 0 {
		queueSize = 100
	}
	return &Service{
		Repo:      repo,
		Transport: transport,
		Policies:  domain.DefaultThrottlePolicies(),
		Enabled:   enabled,
		queue:     make(chan queuedEvent, queueSize),
		now:       time.Now,
	}
}

func (s *Service) policyFor(t domain.NotificationType) domain.ThrottlePolicy {
	if p, ok := s.Policies[t]; ok {
		return p
	}
	return domain.ThrottlePolicy{ThrottleMinutes: 10, MaxPerHour: 6}
}

// Notify evaluates the throttle policy for evt.Type and, if it passes,
// queues the event for asynchronous delivery. It never blocks on the
// transport; if the internal queue is full the event is dropped and logged.
func (s *Service) Notify(ctx context.Context, evt domain.NotificationEvent) error {
	return s.dispatch(ctx, evt, false)
}

// Test bypasses the throttle policy to deliver one notification
// immediately, for the operator-facing POST /v1/notifications/test
// endpoint.
func (s *Service) Test(ctx context.Context, t domain.NotificationType) error {
	return s.dispatch(ctx, domain.NotificationEvent{Type: t, Context: map[string]string{"source": "test"}, Timestamp: s.now()}, true)
}

func (s *Service) dispatch(ctx context.Context, evt domain.NotificationEvent, bypass bool) error {
	if !s.Enabled {
		return nil
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = s.now()
	}

	if !bypass {
		throttled, err := s.throttled(ctx, evt.Type)
		if err != nil {
			return fmt.Errorf("check throttle: %w", err)
		}
		if throttled {
			return nil
		}
	}

	select {
	case s.queue <- queuedEvent{evt: evt, bypass: bypass}:
		return nil
	default:
		obsctx.LoggerFromContext(ctx).Warn("notification queue full, dropping", slog.String("type", string(evt.Type)))
		return domain.ErrQueueFull
	}
}

func (s *Service) throttled(ctx context.Context, t domain.NotificationType) (bool, error) {
	policy := s.policyFor(t)

	if policy.ThrottleMinutes > 0 {
		last, ok, err := s.Repo.LastSent(ctx, t)
		if err != nil {
			return false, err
		}
		if ok && s.now().Sub(last) < time.Duration(policy.ThrottleMinutes)*time.Minute {
			return true, nil
		}
	}
	if policy.MaxPerHour > 0 {
		count, err := s.Repo.SentInWindow(ctx, t, s.now().Add(-time.Hour))
		if err != nil {
			return false, err
		}
		if count >= policy.MaxPerHour {
			return true, nil
		}
	}
	return false, nil
}

// Run drains the async queue, sending each event via Transport and
// recording the outcome, until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case qe := <-s.queue:
			s.send(ctx, qe.evt)
		}
	}
}

func (s *Service) send(ctx context.Context, evt domain.NotificationEvent) {
	tr := otel.Tracer("notify.service")
	ctx, span := tr.Start(ctx, "Service.send")
	defer span.End()

	lg := obsctx.LoggerFromContext(ctx)

	tpl, ok, err := s.Repo.GetTemplate(ctx, evt.Type)
	if err != nil || !ok {
		tpl = defaultTemplate(evt.Type)
	}

	sendErr := s.Transport.Send(ctx, tpl, evt.Context)
	record := domain.NotificationRecord{
		NotificationType: evt.Type,
		Context:          evt.Context,
		Success:          sendErr == nil,
		SentAt:           s.now(),
	}
	if sendErr != nil {
		msg := sendErr.Error()
		record.ErrorMessage = &msg
		lg.Error("notification send failed", slog.String("type", string(evt.Type)), slog.Any("error", sendErr))
	}
	if _, err := s.Repo.AppendNotification(ctx, record); err != nil {
		lg.Error("notification record append failed", slog.Any("error", err))
	}
}

func defaultTemplate(t domain.NotificationType) domain.NotificationTemplate {
	return domain.NotificationTemplate{
		NotificationType: t,
		Subject:          fmt.Sprintf("[briskprint] %s", t),
		Body:             fmt.Sprintf("Event: %s", t),
		Enabled:          true,
	}
}

// Status summarizes recent activity per notification type, for the
// operator surface.
func (s *Service) Status(ctx context.Context) (StatusView, error) {
	counts := make(map[domain.NotificationType]int)
	since := s.now().Add(-time.Hour)
	for t := range domain.DefaultThrottlePolicies() {
		c, err := s.Repo.SentInWindow(ctx, t, since)
		if err != nil {
			continue
		}
		counts[t] = c
	}
	return StatusView{Enabled: s.Enabled, RecentByType: counts}, nil
}

// StatusView mirrors httpserver.NotificationStatus without importing the
// adapter package from core.
type StatusView struct {
	Enabled      bool
	RecentByType map[domain.NotificationType]int
}
