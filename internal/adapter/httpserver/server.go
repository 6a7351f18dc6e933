package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/briskprint/printservice/internal/core/breaker"
	"github.com/briskprint/printservice/internal/core/notify"
	"github.com/briskprint/printservice/internal/domain"
)

// PrintManager accepts a validated order and fans it out into print jobs.
type PrintManager interface {
	SubmitOrder(ctx context.Context, o domain.Order) (orderID string, jobIDs []string, err error)
}

// RecoveryManager is the operator-facing view of the Recovery Manager.
type RecoveryManager interface {
	Status(ctx context.Context) (domain.RecoverySession, bool, error)
	Trigger(ctx context.Context, rt domain.RecoveryType) (domain.RecoverySession, error)
}

// HealthMonitor is the operator-facing view of the Health Monitor, plus the
// webhook-call accounting hook the order-ingest handler records into (spec
// §4.7: the Order ingest surface is an inbound HTTP webhook).
type HealthMonitor interface {
	Status(ctx context.Context) (map[domain.ResourceType]domain.HealthMetric, error)
	TriggerCheck(ctx context.Context) error
	RecordWebhookResult(success bool)
}

// QueueStatistics reports on the offline queue.
type QueueStatistics interface {
	Statistics(ctx context.Context) (domain.QueueStatistics, error)
}

// NotificationService is the operator-facing view of the Notification Service.
type NotificationService interface {
	Status(ctx context.Context) (notify.StatusView, error)
	Test(ctx context.Context, t domain.NotificationType) error
}

// Server holds the dependencies shared by the HTTP handlers. Every field
// is a narrow port so handlers can be exercised against hand-written fakes.
type Server struct {
	Orders    domain.OrderRepository
	PrintJobs domain.PrintJobRepository
	Queue     QueueStatistics
	Breakers  *breaker.Manager
	Recovery  RecoveryManager
	Health    HealthMonitor
	Notify    NotificationService
	Manager   PrintManager

	DBCheck        func(ctx context.Context) error
	PublicURLCheck func(ctx context.Context) error
}

// NewServer wires a Server from its dependencies.
func NewServer(
	orders domain.OrderRepository,
	printJobs domain.PrintJobRepository,
	queue QueueStatistics,
	breakers *breaker.Manager,
	recovery RecoveryManager,
	health HealthMonitor,
	notify NotificationService,
	manager PrintManager,
	dbCheck func(ctx context.Context) error,
	publicURLCheck func(ctx context.Context) error,
) *Server {
	return &Server{
		Orders:         orders,
		PrintJobs:      printJobs,
		Queue:          queue,
		Breakers:       breakers,
		Recovery:       recovery,
		Health:         health,
		Notify:         notify,
		Manager:        manager,
		DBCheck:        dbCheck,
		PublicURLCheck: publicURLCheck,
	}
}

type orderItemRequest struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Variant   string  `json:"variant"`
	Notes     string  `json:"notes"`
}

type orderRequest struct {
	ExternalOrderID string  `json:"external_order_id"`
	Items           []orderItemRequest `json:"items"`
	Customer        struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	} `json:"customer"`
	Delivery struct {
		AddressLine1 string `json:"address_line1"`
		AddressLine2 string `json:"address_line2"`
		City         string `json:"city"`
		PostalCode   string `json:"postal_code"`
		Instructions string `json:"instructions"`
	} `json:"delivery"`
	TotalAmount float64 `json:"total_amount"`
	Currency    string  `json:"currency"`
}

type orderResponse struct {
	OrderID string   `json:"order_id"`
	JobIDs  []string `json:"job_ids"`
}

// SubmitOrderHandler accepts a new order, validates it, and hands it to the
// Print Manager to fan out into print jobs.
func (s *Server) SubmitOrderHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req orderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			if s.Health != nil {
				s.Health.RecordWebhookResult(false)
			}
			writeError(w, r, wrapInvalid(err), nil)
			return
		}

		items := make([]domain.LineItem, 0, len(req.Items))
		for _, it := range req.Items {
			items = append(items, domain.LineItem{
				ID:        it.ID,
				Name:      it.Name,
				Quantity:  it.Quantity,
				UnitPrice: it.UnitPrice,
				Variant:   it.Variant,
				Notes:     it.Notes,
			})
		}

		order := domain.Order{
			ExternalOrderID: req.ExternalOrderID,
			Status:          domain.OrderPending,
			Items:           items,
			Customer: domain.Customer{
				Name:  req.Customer.Name,
				Email: req.Customer.Email,
				Phone: req.Customer.Phone,
			},
			Delivery: domain.Delivery{
				AddressLine1: req.Delivery.AddressLine1,
				AddressLine2: req.Delivery.AddressLine2,
				City:         req.Delivery.City,
				PostalCode:   req.Delivery.PostalCode,
				Instructions: req.Delivery.Instructions,
			},
			TotalAmount: req.TotalAmount,
			Currency:    req.Currency,
			CreatedAt:   time.Now(),
		}

		if err := order.Validate(); err != nil {
			if s.Health != nil {
				s.Health.RecordWebhookResult(false)
			}
			writeError(w, r, err, nil)
			return
		}

		orderID, jobIDs, err := s.Manager.SubmitOrder(r.Context(), order)
		if err != nil {
			if s.Health != nil {
				s.Health.RecordWebhookResult(false)
			}
			writeError(w, r, err, nil)
			return
		}

		if s.Health != nil {
			s.Health.RecordWebhookResult(true)
		}
		writeJSON(w, http.StatusCreated, orderResponse{OrderID: orderID, JobIDs: jobIDs})
	}
}

type recoveryStatusResponse struct {
	Active  bool                  `json:"active"`
	Session *domain.RecoverySession `json:"session,omitempty"`
}

// RecoveryStatusHandler reports whether a recovery session is in progress.
func (s *Server) RecoveryStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, active, err := s.Recovery.Status(r.Context())
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		resp := recoveryStatusResponse{Active: active}
		if active {
			resp.Session = &sess
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type recoveryTriggerRequest struct {
	Type string `json:"type"`
}

// TriggerRecoveryHandler manually kicks off a recovery session.
func (s *Server) TriggerRecoveryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req recoveryTriggerRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		rt := domain.RecoveryManual
		if req.Type != "" {
			rt = domain.RecoveryType(req.Type)
		}
		sess, err := s.Recovery.Trigger(r.Context(), rt)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusAccepted, sess)
	}
}

// QueueStatisticsHandler reports on the offline queue depth and urgency.
func (s *Server) QueueStatisticsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := s.Queue.Statistics(r.Context())
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// JobStatisticsHandler reports print job counts grouped by status.
func (s *Server) JobStatisticsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := s.PrintJobs.CountByStatus(r.Context())
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, counts)
	}
}

// HealthStatusHandler reports the most recent sample per resource.
func (s *Server) HealthStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metrics, err := s.Health.Status(r.Context())
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, metrics)
	}
}

// TriggerHealthCheckHandler forces an out-of-band health sample cycle.
func (s *Server) TriggerHealthCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Health.TriggerCheck(r.Context()); err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

// CircuitStatusHandler reports the named circuit breaker's stats.
func (s *Server) CircuitStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		b := s.Breakers.Get(name)
		writeJSON(w, http.StatusOK, b.Stats())
	}
}

// CircuitResetHandler forces the named circuit breaker back to closed.
func (s *Server) CircuitResetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		s.Breakers.Get(name).Reset()
		w.WriteHeader(http.StatusNoContent)
	}
}

// NotificationStatusHandler reports recent notification activity.
func (s *Server) NotificationStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := s.Notify.Status(r.Context())
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

type notificationTestRequest struct {
	Type string `json:"type"`
}

// NotificationTestHandler sends a test notification of the given type.
func (s *Server) NotificationTestHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req notificationTestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Type == "" {
			writeError(w, r, wrapInvalid(err), nil)
			return
		}
		if err := s.Notify.Test(r.Context(), domain.NotificationType(req.Type)); err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

// HealthzHandler is the liveness probe: it reports healthy as soon as the
// process is serving requests.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler is the readiness probe: it reports ready only once the
// database is reachable. If configured, the public URL check is run and its
// result reported under "checks", but it does not affect readiness.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{}
		ready := true

		if s.DBCheck != nil {
			if err := s.DBCheck(r.Context()); err != nil {
				checks["database"] = err.Error()
				ready = false
			} else {
				checks["database"] = "ok"
			}
		}
		if s.PublicURLCheck != nil {
			if err := s.PublicURLCheck(r.Context()); err != nil {
				checks["public_url"] = err.Error()
			} else {
				checks["public_url"] = "ok"
			}
		}

		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]interface{}{"ready": ready, "checks": checks})
	}
}

func wrapInvalid(err error) error {
	if err == nil {
		return domain.ErrInvalidArgument
	}
	return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
}
