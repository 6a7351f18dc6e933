package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/briskprint/printservice/internal/domain"
)

type fakeRepo struct {
	mu        sync.Mutex
	lastSent  map[domain.NotificationType]time.Time
	sentCount map[domain.NotificationType]int
	records   []domain.NotificationRecord
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{lastSent: map[domain.NotificationType]time.Time{}, sentCount: map[domain.NotificationType]int{}}
}

func (f *fakeRepo) AppendNotification(ctx domain.Context, r domain.NotificationRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, r)
	if r.Success {
		f.lastSent[r.NotificationType] = r.SentAt
		f.sentCount[r.NotificationType]++
	}
	return "rec-1", nil
}
func (f *fakeRepo) SentInWindow(ctx domain.Context, t domain.NotificationType, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sentCount[t], nil
}
func (f *fakeRepo) LastSent(ctx domain.Context, t domain.NotificationType) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ts, ok := f.lastSent[t]
	return ts, ok, nil
}
func (f *fakeRepo) GetTemplate(ctx domain.Context, t domain.NotificationType) (domain.NotificationTemplate, bool, error) {
	return domain.NotificationTemplate{}, false, nil
}
func (f *fakeRepo) SaveTemplate(ctx domain.Context, tpl domain.NotificationTemplate) error { return nil }

type fakeTransport struct {
	mu   sync.Mutex
	sent []domain.NotificationTemplate
	fail bool
}

func (f *fakeTransport) Send(ctx domain.Context, tpl domain.NotificationTemplate, evtCtx map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return context.DeadlineExceeded
	}
	f.sent = append(f.sent, tpl)
	return nil
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func runFor(s *Service, d time.Duration) context.CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	time.AfterFunc(d, cancel)
	return cancel
}

func TestService_Notify_DispatchesWhenNotThrottled(t *testing.T) {
	repo := newFakeRepo()
	transport := &fakeTransport{}
	s := New(repo, transport, true, 10)
	cancel := runFor(s, 0)
	defer cancel()

	if err := s.Notify(context.Background(), domain.NotificationEvent{Type: domain.NotifySystemError}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && transport.count() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if transport.count() != 1 {
		t.Fatalf("expected 1 send, got %d", transport.count())
	}
}

func TestService_Notify_ThrottledByMinutes(t *testing.T) {
	repo := newFakeRepo()
	repo.lastSent[domain.NotifyPrinterOffline] = time.Now()
	transport := &fakeTransport{}
	s := New(repo, transport, true, 10)

	if err := s.Notify(context.Background(), domain.NotificationEvent{Type: domain.NotifyPrinterOffline}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if transport.count() != 0 {
		t.Fatalf("expected throttled send to be suppressed, got %d", transport.count())
	}
}

func TestService_Notify_ThrottledByMaxPerHour(t *testing.T) {
	repo := newFakeRepo()
	repo.sentCount[domain.NotifySystemError] = 12
	transport := &fakeTransport{}
	s := New(repo, transport, true, 10)

	if err := s.Notify(context.Background(), domain.NotificationEvent{Type: domain.NotifySystemError}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if transport.count() != 0 {
		t.Fatalf("expected max-per-hour throttle to suppress send, got %d", transport.count())
	}
}

func TestService_Notify_DisabledIsNoop(t *testing.T) {
	repo := newFakeRepo()
	transport := &fakeTransport{}
	s := New(repo, transport, false, 10)
	cancel := runFor(s, 50*time.Millisecond)
	defer cancel()

	if err := s.Notify(context.Background(), domain.NotificationEvent{Type: domain.NotifySystemError}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	if transport.count() != 0 {
		t.Fatalf("expected no send while disabled, got %d", transport.count())
	}
}

func TestService_Test_BypassesThrottle(t *testing.T) {
	repo := newFakeRepo()
	repo.lastSent[domain.NotifyPrinterOffline] = time.Now()
	transport := &fakeTransport{}
	s := New(repo, transport, true, 10)
	cancel := runFor(s, 200*time.Millisecond)
	defer cancel()

	if err := s.Test(context.Background(), domain.NotifyPrinterOffline); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && transport.count() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if transport.count() != 1 {
		t.Fatalf("expected bypass send, got %d", transport.count())
	}
}

func TestService_Status_ReturnsRecentCounts(t *testing.T) {
	repo := newFakeRepo()
	repo.sentCount[domain.NotifyPrinterOffline] = 2
	s := New(repo, &fakeTransport{}, true, 10)

	st, err := s.Status(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !st.Enabled {
		t.Fatal("expected enabled")
	}
	if st.RecentByType[domain.NotifyPrinterOffline] != 2 {
		t.Fatalf("expected count 2, got %d", st.RecentByType[domain.NotifyPrinterOffline])
	}
}
