package app

import (
	"context"
	"log/slog"

	"github.com/briskprint/printservice/internal/domain"
)

// Recoverer triggers a recovery session. The Recovery Manager satisfies this.
type Recoverer interface {
	Trigger(ctx context.Context, rt domain.RecoveryType) (domain.RecoverySession, error)
}

// Notifier queues a notification event. The Notification Service satisfies this.
type Notifier interface {
	Notify(ctx context.Context, evt domain.NotificationEvent) error
}

// ConnectivityBridge implements domain.ConnectivitySubscriber: it reacts to
// a dependency coming back online by triggering a recovery session, and to
// every transition by queuing an operator notification. Per the
// subscriber contract it never blocks the poller, so each reaction runs on
// its own goroutine against a background context.
type ConnectivityBridge struct {
	Recovery Recoverer
	Notify   Notifier
}

// NewConnectivityBridge constructs a bridge. Either dependency may be nil,
// in which case the corresponding reaction is skipped.
func NewConnectivityBridge(recovery Recoverer, notify Notifier) *ConnectivityBridge {
	return &ConnectivityBridge{Recovery: recovery, Notify: notify}
}

// OnConnectivityEvent implements domain.ConnectivitySubscriber.
func (b *ConnectivityBridge) OnConnectivityEvent(e domain.ConnectivityEvent) {
	go b.handle(e)
}

func (b *ConnectivityBridge) handle(e domain.ConnectivityEvent) {
	ctx := context.Background()

	if rt, ok := recoveryTrigger(e); ok && b.Recovery != nil {
		if _, err := b.Recovery.Trigger(ctx, rt); err != nil && err != domain.ErrRecoveryInProgress && err != domain.ErrNothingToRecover {
			slog.Error("connectivity bridge recovery trigger failed", slog.Any("error", err), slog.String("event", string(e.EventType)))
		}
	}

	if nt, ok := notificationFor(e); ok && b.Notify != nil {
		evt := domain.NotificationEvent{
			Type: nt,
			Context: map[string]string{
				"component": string(e.Component),
				"status":    string(e.Status),
			},
			Timestamp: e.Timestamp,
		}
		if err := b.Notify.Notify(ctx, evt); err != nil && err != domain.ErrQueueFull {
			slog.Error("connectivity bridge notify failed", slog.Any("error", err), slog.String("event", string(e.EventType)))
		}
	}
}

func recoveryTrigger(e domain.ConnectivityEvent) (domain.RecoveryType, bool) {
	switch e.EventType {
	case domain.EventPrinterOnline:
		return domain.RecoveryPrinter, true
	case domain.EventInternetOnline:
		return domain.RecoveryInternet, true
	case domain.EventConnectivityRestore:
		return domain.RecoveryCombined, true
	default:
		return "", false
	}
}

func notificationFor(e domain.ConnectivityEvent) (domain.NotificationType, bool) {
	switch e.EventType {
	case domain.EventPrinterOffline:
		return domain.NotifyPrinterOffline, true
	case domain.EventPrinterOnline:
		return domain.NotifyPrinterOnline, true
	case domain.EventInternetOffline:
		return domain.NotifyInternetOffline, true
	case domain.EventInternetOnline:
		return domain.NotifyInternetOnline, true
	default:
		return "", false
	}
}
