// Package printjob implements the Print Manager: it turns a validated order
// into one print job per enabled receipt variant, and drives each job to a
// terminal state exactly once.
//
// Grounded on the teacher's internal/usecase/evaluate.go (EvaluateService:
// dependency struct, tracer span per operation, structured logging,
// create-then-enqueue shape), generalized from a single queue enqueue into
// a breaker-guarded synchronous print attempt that falls back to the
// offline queue when the printer dependency is unavailable (spec §4.1/§4.4).
package printjob

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/briskprint/printservice/internal/core/breaker"
	"github.com/briskprint/printservice/internal/domain"
	obsctx "github.com/briskprint/printservice/internal/observability"
)

// VariantConfig gates which receipt variants are rendered for every order.
type VariantConfig struct {
	Kitchen  bool
	Driver   bool
	Customer bool
}

// DefaultPollInterval is the background loop's poll cadence per spec §4.2.
const DefaultPollInterval = 5 * time.Second

// DefaultStopGrace bounds how long Stop waits for the loop to drain.
const DefaultStopGrace = 10 * time.Second

// Notifier queues an operator notification. The Notification Service
// satisfies this; it is optional (nil disables queue_overflow alerts).
type Notifier interface {
	Notify(ctx domain.Context, evt domain.NotificationEvent) error
}

// Manager orchestrates order intake and print job execution: it owns the
// single background worker that gates on printer readiness, prints pending
// jobs, and falls back to the offline queue, per spec §4.2.
type Manager struct {
	Orders    domain.OrderRepository
	Jobs      domain.PrintJobRepository
	Queue     domain.OfflineQueueRepository
	Printer   domain.PrinterAdapter
	Formatter domain.ReceiptFormatter
	Breakers  *breaker.Manager
	Variants  VariantConfig

	// Notify, if set, is used to raise a queue_overflow alert when the
	// offline queue is at capacity.
	Notify Notifier

	PollInterval time.Duration
	MaxQueueSize int
	StopGrace    time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New constructs a Manager with the background loop's defaults.
func New(
	orders domain.OrderRepository,
	jobs domain.PrintJobRepository,
	queue domain.OfflineQueueRepository,
	printer domain.PrinterAdapter,
	formatter domain.ReceiptFormatter,
	breakers *breaker.Manager,
	variants VariantConfig,
) *Manager {
	return &Manager{
		Orders: orders, Jobs: jobs, Queue: queue, Printer: printer,
		Formatter: formatter, Breakers: breakers, Variants: variants,
		PollInterval: DefaultPollInterval,
		MaxQueueSize: domain.DefaultMaxQueueSize,
		StopGrace:    DefaultStopGrace,
	}
}

var jobTypeToVariant = map[domain.JobType]domain.ReceiptVariant{
	domain.JobKitchen:  domain.ReceiptKitchen,
	domain.JobService:  domain.ReceiptDriver,
	domain.JobCustomer: domain.ReceiptCustomer,
}

func (m *Manager) enabledJobTypes() []domain.JobType {
	var out []domain.JobType
	if m.Variants.Kitchen {
		out = append(out, domain.JobKitchen)
	}
	if m.Variants.Driver {
		out = append(out, domain.JobService)
	}
	if m.Variants.Customer {
		out = append(out, domain.JobCustomer)
	}
	if len(out) == 0 {
		out = append(out, domain.JobKitchen)
	}
	return out
}

// SubmitOrder persists the order, renders one print job per enabled
// receipt variant, and attempts to print each immediately. A job whose
// immediate attempt fails is left pending for the offline queue / retry
// path (see Print and the Recovery Manager) rather than returned as an
// error: order intake must succeed even with the printer down.
func (m *Manager) SubmitOrder(ctx domain.Context, o domain.Order) (string, []string, error) {
	tr := otel.Tracer("printjob.manager")
	ctx, span := tr.Start(ctx, "Manager.SubmitOrder")
	defer span.End()

	lg := obsctx.LoggerFromContext(ctx)

	if o.ExternalOrderID != "" {
		if existing, err := m.Orders.FindByExternalOrderID(ctx, o.ExternalOrderID); err == nil && existing.ID != "" {
			jobs, err := m.Jobs.ListByOrder(ctx, existing.ID)
			if err == nil {
				ids := make([]string, 0, len(jobs))
				for _, j := range jobs {
					ids = append(ids, j.ID)
				}
				lg.Info("submit order idempotent hit", slog.String("order_id", existing.ID))
				return existing.ID, ids, nil
			}
		}
	}

	orderID, err := m.Orders.SaveOrder(ctx, o)
	if err != nil {
		lg.Error("submit order failed to save", slog.Any("error", err))
		return "", nil, fmt.Errorf("save order: %w", err)
	}
	o.ID = orderID

	jobIDs := make([]string, 0, 3)
	for _, jt := range m.enabledJobTypes() {
		variant, ok := jobTypeToVariant[jt]
		if !ok {
			continue
		}
		content, err := m.Formatter.Format(o, variant)
		if err != nil {
			lg.Error("submit order failed to format receipt", slog.Any("error", err), slog.String("variant", string(variant)))
			continue
		}
		job := domain.PrintJob{
			OrderID:     orderID,
			JobType:     jt,
			Status:      domain.PrintJobPending,
			Content:     content,
			MaxAttempts: domain.DefaultMaxAttempts,
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		}
		jobID, err := m.Jobs.SavePrintJob(ctx, job)
		if err != nil {
			lg.Error("submit order failed to save print job", slog.Any("error", err))
			continue
		}
		job.ID = jobID
		jobIDs = append(jobIDs, jobID)

		if err := m.Print(ctx, job); err != nil {
			lg.Warn("submit order immediate print deferred", slog.String("job_id", jobID), slog.Any("error", err))
		}
	}

	lg.Info("submit order complete", slog.String("order_id", orderID), slog.Int("job_count", len(jobIDs)))
	return orderID, jobIDs, nil
}

// Print drives one job through a breaker-guarded print attempt. On success
// the job is marked completed. On failure it enqueues the job onto the
// offline queue (if not already live there) so the Recovery Manager can
// drain it once the printer comes back, and returns the failure so callers
// can log it; the job itself stays pending, not failed, until attempts run
// out (domain.PrintJob.CanAttempt).
func (m *Manager) Print(ctx domain.Context, job domain.PrintJob) error {
	tr := otel.Tracer("printjob.manager")
	ctx, span := tr.Start(ctx, "Manager.Print")
	defer span.End()

	lg := obsctx.LoggerFromContext(ctx)

	err := m.Breakers.Get("printer").Execute(ctx, func(ctx domain.Context) error {
		return m.Printer.PrintBytes(ctx, job.Content)
	})

	if err == nil {
		now := time.Now()
		job.PrintedAt = &now
		if uerr := m.Jobs.UpdatePrintJobStatus(ctx, job.ID, domain.PrintJobCompleted, nil); uerr != nil {
			lg.Error("print mark completed failed", slog.Any("error", uerr))
			return uerr
		}
		return nil
	}

	msg := err.Error()
	job.Attempts++
	job.Status = domain.PrintJobPending
	if !job.CanAttempt() {
		job.Status = domain.PrintJobFailed
	}
	job.ErrorMessage = &msg
	job.UpdatedAt = time.Now()
	if _, uerr := m.Jobs.SavePrintJob(ctx, job); uerr != nil {
		lg.Error("print mark failed update failed", slog.Any("error", uerr))
	}

	m.enqueueOffline(ctx, job)

	return err
}

// enqueueOffline stages a pending job on the offline queue so the Recovery
// Manager can drain it once the printer comes back, unless a live row for
// it already exists or the queue is at MaxQueueSize (in which case a
// queue_overflow notification is raised, per spec §4.4/§5 backpressure).
func (m *Manager) enqueueOffline(ctx domain.Context, job domain.PrintJob) {
	lg := obsctx.LoggerFromContext(ctx)
	if m.Queue == nil {
		return
	}
	if _, live, qerr := m.Queue.FindLive(ctx, domain.QueueItemPrintJob, job.ID); qerr != nil || live {
		return
	}

	max := m.MaxQueueSize
	if max <= 0 {
		max = domain.DefaultMaxQueueSize
	}
	if n, cerr := m.Queue.Count(ctx); cerr == nil && n >= max {
		lg.Warn("offline queue at capacity, rejecting enqueue", slog.String("job_id", job.ID), slog.Int("size", n))
		if m.Notify != nil {
			evt := domain.NotificationEvent{Type: domain.NotifyQueueOverflow, Context: map[string]string{"job_id": job.ID}, Timestamp: time.Now()}
			if nerr := m.Notify.Notify(ctx, evt); nerr != nil && nerr != domain.ErrQueueFull {
				lg.Error("queue overflow notification failed", slog.Any("error", nerr))
			}
		}
		return
	}

	item := domain.OfflineQueueItem{
		ItemType:   domain.QueueItemPrintJob,
		ItemID:     job.ID,
		Priority:   domain.PriorityFor(job.JobType),
		Status:     domain.QueueQueued,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
		MaxRetries: domain.DefaultMaxQueueRetries,
		ExpiresAt:  time.Now().Add(domain.DefaultQueueTTL),
	}
	if _, qerr := m.Queue.Enqueue(ctx, item); qerr != nil {
		lg.Error("print enqueue offline failed", slog.Any("error", qerr))
	}
}

// Start launches the background poll loop. It is idempotent while already
// running, and idempotent after a prior Stop (a fresh loop is started).
func (m *Manager) Start(ctx domain.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	stopCh, doneCh := m.stopCh, m.doneCh
	m.mu.Unlock()

	go func() {
		defer close(doneCh)
		m.loop(ctx, stopCh)
	}()
}

// Stop signals the background loop to exit and waits up to StopGrace for it
// to drain the job it is currently on.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	close(m.stopCh)
	doneCh := m.doneCh
	m.running = false
	m.mu.Unlock()

	grace := m.StopGrace
	if grace <= 0 {
		grace = DefaultStopGrace
	}
	select {
	case <-doneCh:
	case <-time.After(grace):
	}
}

func (m *Manager) loop(ctx domain.Context, stopCh chan struct{}) {
	interval := m.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.cycle(ctx, stopCh)
		}
	}
}

// cycle runs one poll iteration: gate on printer readiness, process pending
// jobs sequentially (stopping early on a stop signal), then drain a small
// batch of ready offline items so recovery doesn't wait solely on a
// connectivity transition to make progress.
func (m *Manager) cycle(ctx domain.Context, stopCh chan struct{}) {
	tr := otel.Tracer("printjob.manager")
	ctx, span := tr.Start(ctx, "Manager.cycle")
	defer span.End()

	lg := obsctx.LoggerFromContext(ctx)

	if !m.ensurePrinterReady(ctx) {
		m.handlePrinterOffline(ctx)
		return
	}

	jobs, err := m.Jobs.GetPendingPrintJobs(ctx)
	if err != nil {
		lg.Error("cycle failed to list pending jobs", slog.Any("error", err))
		return
	}
	for _, job := range jobs {
		select {
		case <-stopCh:
			return
		default:
		}
		job.Attempts++
		job.Status = domain.PrintJobPrinting
		job.UpdatedAt = time.Now()
		if _, err := m.Jobs.SavePrintJob(ctx, job); err != nil {
			lg.Error("cycle failed to mark job printing", slog.Any("error", err))
			continue
		}
		if err := m.printAttempted(ctx, job); err != nil {
			lg.Warn("cycle print failed", slog.String("job_id", job.ID), slog.Any("error", err))
		}
	}

	m.drainReadyOfflineItems(ctx, stopCh)
}

// printAttempted records an attempt already counted by the caller (the
// background cycle, which increments Attempts before marking the job
// printing) and drives the breaker-guarded print, falling back to the
// offline queue on failure. Unlike Print, it does not re-increment Attempts.
func (m *Manager) printAttempted(ctx domain.Context, job domain.PrintJob) error {
	lg := obsctx.LoggerFromContext(ctx)

	err := m.Breakers.Get("printer").Execute(ctx, func(ctx domain.Context) error {
		return m.Printer.PrintBytes(ctx, job.Content)
	})
	if err == nil {
		if uerr := m.Jobs.UpdatePrintJobStatus(ctx, job.ID, domain.PrintJobCompleted, nil); uerr != nil {
			lg.Error("cycle mark completed failed", slog.Any("error", uerr))
			return uerr
		}
		return nil
	}

	msg := err.Error()
	job.Status = domain.PrintJobPending
	if !job.CanAttempt() {
		job.Status = domain.PrintJobFailed
	}
	job.ErrorMessage = &msg
	job.UpdatedAt = time.Now()
	if _, uerr := m.Jobs.SavePrintJob(ctx, job); uerr != nil {
		lg.Error("cycle mark failed update failed", slog.Any("error", uerr))
	}
	m.enqueueOffline(ctx, job)
	return err
}

// ensurePrinterReady attempts a connect if necessary and reports whether the
// adapter currently reports an online status.
func (m *Manager) ensurePrinterReady(ctx domain.Context) bool {
	if m.Printer == nil {
		return false
	}
	status, err := m.Printer.Status(ctx)
	if err != nil || status.Value != domain.PrinterStatusOnline {
		if cerr := m.Printer.Connect(ctx); cerr != nil {
			return false
		}
		status, err = m.Printer.Status(ctx)
		if err != nil {
			return false
		}
	}
	return status.Value == domain.PrinterStatusOnline
}

// PrinterReady reports whether the printer adapter is currently connected
// and reporting online, for the Recovery Manager's validation phase.
func (m *Manager) PrinterReady(ctx domain.Context) bool {
	return m.ensurePrinterReady(ctx)
}

// handlePrinterOffline moves every currently-pending job onto the offline
// queue, per spec §4.2 step 2.
func (m *Manager) handlePrinterOffline(ctx domain.Context) {
	lg := obsctx.LoggerFromContext(ctx)
	jobs, err := m.Jobs.GetPendingPrintJobs(ctx)
	if err != nil {
		lg.Error("handle printer offline failed to list pending jobs", slog.Any("error", err))
		return
	}
	for _, job := range jobs {
		m.enqueueOffline(ctx, job)
	}
}

// drainReadyOfflineItems claims and prints a small batch of queued items
// directly, so a steady trickle of work doesn't have to wait for a
// connectivity-restored event to reach the Recovery Manager's larger batch
// drain.
func (m *Manager) drainReadyOfflineItems(ctx domain.Context, stopCh chan struct{}) {
	if m.Queue == nil {
		return
	}
	const drainBatch = 5
	lg := obsctx.LoggerFromContext(ctx)

	items, err := m.Queue.NextItems(ctx, domain.QueueItemPrintJob, drainBatch)
	if err != nil || len(items) == 0 {
		return
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	claimed, err := m.Queue.ClaimBatch(ctx, ids)
	if err != nil {
		lg.Error("drain offline items failed to claim batch", slog.Any("error", err))
		return
	}
	for _, id := range claimed {
		select {
		case <-stopCh:
			return
		default:
		}
		job, err := m.Jobs.GetPrintJob(ctx, id)
		if err != nil {
			continue
		}
		if job.Status == domain.PrintJobCompleted {
			_ = m.Queue.Remove(ctx, id)
			continue
		}
		if err := m.Print(ctx, job); err != nil {
			_ = m.Queue.IncrementRetry(ctx, id)
			_ = m.Queue.UpdateStatus(ctx, id, domain.QueueQueued, strPtr(err.Error()))
			continue
		}
		_ = m.Queue.Remove(ctx, id)
	}
}

// ProcessJobImmediately manually drives a single job through the same
// printer-ready gate and circuit breaker as the background loop, for
// operator-triggered one-shot prints. It reports whether the job ended
// completed.
func (m *Manager) ProcessJobImmediately(ctx domain.Context, jobID string) (bool, error) {
	job, err := m.Jobs.GetPrintJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	if job.Status == domain.PrintJobCompleted {
		return true, nil
	}
	if !m.ensurePrinterReady(ctx) {
		return false, domain.ErrPrinterNotReady
	}
	if err := m.Print(ctx, job); err != nil {
		return false, err
	}
	return true, nil
}

// RetryFailedJobs resets every job in status=failed back to pending with a
// clean attempt count, per spec §4.2. It is idempotent: calling it again
// with no new failures resets nothing and returns 0.
func (m *Manager) RetryFailedJobs(ctx domain.Context) (int, error) {
	jobs, err := m.Jobs.GetFailedPrintJobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list failed jobs: %w", err)
	}
	count := 0
	for _, job := range jobs {
		job.Attempts = 0
		job.Status = domain.PrintJobPending
		job.ErrorMessage = nil
		job.UpdatedAt = time.Now()
		if _, err := m.Jobs.SavePrintJob(ctx, job); err != nil {
			continue
		}
		count++
	}
	return count, nil
}

// GetStatistics reports print job counts grouped by status, derived fresh
// from the Store on every call per spec §4.2 ("never cached beyond the
// request").
func (m *Manager) GetStatistics(ctx domain.Context) (map[domain.PrintJobStatus]int, error) {
	return m.Jobs.CountByStatus(ctx)
}

func strPtr(s string) *string { return &s }
