package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/briskprint/printservice/internal/core/breaker"
	"github.com/briskprint/printservice/internal/core/notify"
	"github.com/briskprint/printservice/internal/domain"
)

type fakeOrderRepo struct {
	saved domain.Order
}

func (f *fakeOrderRepo) SaveOrder(ctx domain.Context, o domain.Order) (string, error) {
	f.saved = o
	return "order-1", nil
}
func (f *fakeOrderRepo) GetOrder(ctx domain.Context, id string) (domain.Order, error) {
	return f.saved, nil
}
func (f *fakeOrderRepo) FindByExternalOrderID(ctx domain.Context, externalID string) (domain.Order, error) {
	return f.saved, nil
}

type fakeManager struct {
	called bool
	err    error
}

func (m *fakeManager) SubmitOrder(ctx context.Context, o domain.Order) (string, []string, error) {
	m.called = true
	if m.err != nil {
		return "", nil, m.err
	}
	return "order-1", []string{"job-1", "job-2"}, nil
}

type fakeRecovery struct {
	session domain.RecoverySession
	active  bool
}

func (f *fakeRecovery) Status(ctx context.Context) (domain.RecoverySession, bool, error) {
	return f.session, f.active, nil
}
func (f *fakeRecovery) Trigger(ctx context.Context, rt domain.RecoveryType) (domain.RecoverySession, error) {
	f.session = domain.RecoverySession{ID: "sess-1", RecoveryType: rt, Phase: domain.PhaseValidation}
	f.active = true
	return f.session, nil
}

type fakeHealth struct {
	triggered   bool
	webhookCalls []bool
}

func (f *fakeHealth) Status(ctx context.Context) (map[domain.ResourceType]domain.HealthMetric, error) {
	return map[domain.ResourceType]domain.HealthMetric{
		domain.ResourceMemory: {ResourceType: domain.ResourceMemory, Value: 42, Status: domain.HealthHealthy},
	}, nil
}
func (f *fakeHealth) TriggerCheck(ctx context.Context) error {
	f.triggered = true
	return nil
}
func (f *fakeHealth) RecordWebhookResult(success bool) {
	f.webhookCalls = append(f.webhookCalls, success)
}

type fakeQueueStats struct{}

func (f *fakeQueueStats) Statistics(ctx context.Context) (domain.QueueStatistics, error) {
	return domain.QueueStatistics{TotalItems: 3, Urgency: domain.UrgencyLow}, nil
}

type fakeNotify struct {
	tested domain.NotificationType
}

func (f *fakeNotify) Status(ctx context.Context) (notify.StatusView, error) {
	return notify.StatusView{Enabled: true}, nil
}
func (f *fakeNotify) Test(ctx context.Context, t domain.NotificationType) error {
	f.tested = t
	return nil
}

func validOrderJSON() []byte {
	body := map[string]interface{}{
		"external_order_id": "ext-1",
		"items": []map[string]interface{}{
			{"id": "i1", "name": "Burger", "quantity": 1, "unit_price": 9.5},
		},
		"customer":     map[string]string{"email": "a@b.com"},
		"total_amount": 9.5,
		"currency":     "USD",
	}
	b, _ := json.Marshal(body)
	return b
}

func newTestServer() *Server {
	return &Server{
		Orders:    &fakeOrderRepo{},
		PrintJobs: nil,
		Queue:     &fakeQueueStats{},
		Breakers:  breaker.NewManager(domain.DefaultBreakerConfigs()),
		Recovery:  &fakeRecovery{},
		Health:    &fakeHealth{},
		Notify:    &fakeNotify{},
		Manager:   &fakeManager{},
	}
}

func TestSubmitOrderHandler_OK(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/v1/orders", bytes.NewReader(validOrderJSON()))
	rw := httptest.NewRecorder()
	s.SubmitOrderHandler()(rw, req)

	if rw.Code != http.StatusCreated {
		t.Fatalf("status: got %d want %d body=%s", rw.Code, http.StatusCreated, rw.Body.String())
	}
	var resp orderResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.OrderID != "order-1" || len(resp.JobIDs) != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestSubmitOrderHandler_InvalidJSON(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/v1/orders", bytes.NewReader([]byte("{bad")))
	rw := httptest.NewRecorder()
	s.SubmitOrderHandler()(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d want 400", rw.Code)
	}
}

func TestSubmitOrderHandler_ValidationFailure(t *testing.T) {
	s := newTestServer()
	body := map[string]interface{}{
		"external_order_id": "ext-1",
		"items":              []map[string]interface{}{},
	}
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/v1/orders", bytes.NewReader(b))
	rw := httptest.NewRecorder()
	s.SubmitOrderHandler()(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d want 400 body=%s", rw.Code, rw.Body.String())
	}
}

func TestRecoveryStatusHandler_Idle(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/v1/status/recovery", nil)
	rw := httptest.NewRecorder()
	s.RecoveryStatusHandler()(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("status: got %d", rw.Code)
	}
	var resp recoveryStatusResponse
	_ = json.Unmarshal(rw.Body.Bytes(), &resp)
	if resp.Active {
		t.Fatal("expected inactive session")
	}
}

func TestTriggerRecoveryHandler(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/v1/recovery/trigger", bytes.NewReader([]byte(`{"type":"manual"}`)))
	rw := httptest.NewRecorder()
	s.TriggerRecoveryHandler()(rw, req)
	if rw.Code != http.StatusAccepted {
		t.Fatalf("status: got %d", rw.Code)
	}
}

func TestQueueStatisticsHandler(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/v1/statistics/queue", nil)
	rw := httptest.NewRecorder()
	s.QueueStatisticsHandler()(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("status: got %d", rw.Code)
	}
}

func TestHealthStatusHandler(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rw := httptest.NewRecorder()
	s.HealthStatusHandler()(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("status: got %d", rw.Code)
	}
}

func TestTriggerHealthCheckHandler(t *testing.T) {
	s := newTestServer()
	h := s.Health.(*fakeHealth)
	req := httptest.NewRequest(http.MethodPost, "/v1/health/check", nil)
	rw := httptest.NewRecorder()
	s.TriggerHealthCheckHandler()(rw, req)
	if rw.Code != http.StatusAccepted || !h.triggered {
		t.Fatalf("status: got %d triggered=%v", rw.Code, h.triggered)
	}
}

func TestCircuitStatusAndResetHandler(t *testing.T) {
	s := newTestServer()
	r := chi.NewRouter()
	r.Get("/v1/circuit/{name}", s.CircuitStatusHandler())
	r.Post("/v1/circuit/{name}/reset", s.CircuitResetHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/circuit/printer", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("status: got %d", rw.Code)
	}

	req2 := httptest.NewRequest(http.MethodPost, "/v1/circuit/printer/reset", nil)
	rw2 := httptest.NewRecorder()
	r.ServeHTTP(rw2, req2)
	if rw2.Code != http.StatusNoContent {
		t.Fatalf("status: got %d", rw2.Code)
	}
}

func TestNotificationHandlers(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/v1/notifications/status", nil)
	rw := httptest.NewRecorder()
	s.NotificationStatusHandler()(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("status handler: got %d", rw.Code)
	}

	req2 := httptest.NewRequest(http.MethodPost, "/v1/notifications/test", bytes.NewReader([]byte(`{"type":"printer_offline"}`)))
	rw2 := httptest.NewRecorder()
	s.NotificationTestHandler()(rw2, req2)
	if rw2.Code != http.StatusAccepted {
		t.Fatalf("test handler: got %d", rw2.Code)
	}
	if s.Notify.(*fakeNotify).tested != domain.NotifyPrinterOffline {
		t.Fatal("expected notify type to be recorded")
	}
}

func TestNotificationTestHandler_MissingType(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/v1/notifications/test", bytes.NewReader([]byte(`{}`)))
	rw := httptest.NewRecorder()
	s.NotificationTestHandler()(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d", rw.Code)
	}
}

func TestHealthzHandler(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rw := httptest.NewRecorder()
	s.HealthzHandler()(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("status: got %d", rw.Code)
	}
}

func TestReadyzHandler(t *testing.T) {
	s := newTestServer()
	s.DBCheck = func(ctx context.Context) error { return nil }
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rw := httptest.NewRecorder()
	s.ReadyzHandler()(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("status: got %d", rw.Code)
	}
}

func TestReadyzHandler_DBFailure(t *testing.T) {
	s := newTestServer()
	s.DBCheck = func(ctx context.Context) error { return context.DeadlineExceeded }
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rw := httptest.NewRecorder()
	s.ReadyzHandler()(rw, req)
	if rw.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d", rw.Code)
	}
}
