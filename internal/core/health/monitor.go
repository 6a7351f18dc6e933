// Package health implements the Health Monitor: per-resource cooperative
// samplers that classify values against thresholds, persist the sample,
// keep a bounded in-memory history, and record a self-healing event when a
// resource crosses into critical/emergency territory.
//
// Grounded on the teacher's internal/app/stuck_jobs.go ticker-loop shape and
// internal/adapter/observability/metrics.go's resource-value gauges,
// generalized from Prometheus-only reporting into the spec's persisted,
// threshold-gated health log (spec §4.7) using github.com/shirou/gopsutil/v4
// for memory/CPU/disk sampling (already an indirect teacher dependency,
// promoted to direct use here).
package health

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.opentelemetry.io/otel"

	"github.com/briskprint/printservice/internal/domain"
	obsctx "github.com/briskprint/printservice/internal/observability"
	"github.com/briskprint/printservice/internal/ringbuf"
)

// Sampler reads a resource's current value (0-100 scale expected for
// thresholding). Built-in samplers read host metrics via gopsutil;
// webhook/public_url samplers wrap a reachability check.
type Sampler func(ctx domain.Context) (float64, map[string]string, error)

// CleanupHandler performs a remediation action for a resource once its
// status crosses into warning or worse (spec §4.7: force GC for memory,
// temp-file sweep for disk).
type CleanupHandler func(ctx domain.Context) error

// Notifier is the Notification Service's ingest port, satisfied by
// internal/core/notify.Service.
type Notifier interface {
	Notify(ctx domain.Context, evt domain.NotificationEvent) error
}

// Monitor runs one sampler per configured resource on a shared interval.
type Monitor struct {
	Metrics    domain.HealthMetricRepository
	Events     domain.SelfHealingEventRepository
	Thresholds map[domain.ResourceType]domain.HealthThresholds
	Samplers   map[domain.ResourceType]Sampler
	Cleanup    map[domain.ResourceType]CleanupHandler
	HistorySize int

	// Notify, if set, receives a system_error event on transitions into
	// critical/emergency, and another system_error event (status "healthy")
	// on transitions back to healthy (spec §4.7).
	Notify Notifier

	// TempDir, if set, is swept of stale files by the default disk cleanup
	// handler.
	TempDir string

	// Webhooks tracks failed/total outbound webhook-style calls for the
	// webhook resource sampler (spec §4.7).
	Webhooks *WebhookAccounting

	mu      sync.RWMutex
	latest  map[domain.ResourceType]domain.HealthMetric
	history map[domain.ResourceType]*ringbuf.Buffer[domain.HealthMetric]

	now func() time.Time
}

// New constructs a Monitor with default samplers for five of the six spec
// §4.7 resources (memory/cpu/disk/threads/webhook) wired in; no public_url
// sampler is wired, callers add one via AddSampler.
func New(metrics domain.HealthMetricRepository, events domain.SelfHealingEventRepository, historySize int) *Monitor {
	if historySize <= 0 {
		historySize = 100
	}
	m := &Monitor{
		Metrics:     metrics,
		Events:      events,
		Thresholds:  domain.DefaultHealthThresholds(),
		Samplers:    map[domain.ResourceType]Sampler{},
		HistorySize: historySize,
		Webhooks:    &WebhookAccounting{},
		latest:      map[domain.ResourceType]domain.HealthMetric{},
		history:     map[domain.ResourceType]*ringbuf.Buffer[domain.HealthMetric]{},
		now:         time.Now,
	}
	m.Samplers[domain.ResourceMemory] = sampleMemory
	m.Samplers[domain.ResourceCPU] = sampleCPU
	m.Samplers[domain.ResourceDisk] = sampleDisk
	m.Samplers[domain.ResourceThreads] = sampleThreads
	m.Samplers[domain.ResourceWebhook] = m.sampleWebhook
	m.Cleanup = map[domain.ResourceType]CleanupHandler{
		domain.ResourceMemory: m.cleanupMemory,
		domain.ResourceDisk:   m.cleanupDisk,
	}
	return m
}

// WebhookAccounting is a failed/total call counter over the current
// accounting window, reset each time it is sampled (spec §4.7: "failed/total
// × 100 over the current accounting window").
type WebhookAccounting struct {
	mu     sync.Mutex
	total  int
	failed int
}

// Record tallies the outcome of one outbound webhook-style call.
func (w *WebhookAccounting) Record(success bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.total++
	if !success {
		w.failed++
	}
}

// snapshotAndReset returns the current window's counts and starts a fresh
// window.
func (w *WebhookAccounting) snapshotAndReset() (total, failed int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	total, failed = w.total, w.failed
	w.total, w.failed = 0, 0
	return total, failed
}

// RecordWebhookResult tallies one inbound order-ingest webhook call for the
// webhook resource sampler.
func (m *Monitor) RecordWebhookResult(success bool) {
	m.Webhooks.Record(success)
}

// AddSampler registers or overrides the sampler for a resource type.
func (m *Monitor) AddSampler(rt domain.ResourceType, s Sampler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Samplers[rt] = s
}

// AddCleanupHandler registers or overrides the cleanup handler invoked when
// a resource crosses into warning or worse.
func (m *Monitor) AddCleanupHandler(rt domain.ResourceType, h CleanupHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Cleanup[rt] = h
}

func (m *Monitor) cleanupMemory(ctx domain.Context) error {
	runtime.GC()
	debug.FreeOSMemory()
	return nil
}

func (m *Monitor) cleanupDisk(ctx domain.Context) error {
	if m.TempDir == "" {
		return nil
	}
	entries, err := os.ReadDir(m.TempDir)
	if err != nil {
		return err
	}
	cutoff := m.now().Add(-1 * time.Hour)
	for _, e := range entries {
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		_ = os.Remove(filepath.Join(m.TempDir, e.Name()))
	}
	return nil
}

func sampleMemory(ctx domain.Context) (float64, map[string]string, error) {
	v, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, nil, err
	}
	return v.UsedPercent, map[string]string{"total_bytes": fmt.Sprintf("%d", v.Total)}, nil
}

func sampleCPU(ctx domain.Context) (float64, map[string]string, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, nil, err
	}
	if len(percents) == 0 {
		return 0, nil, fmt.Errorf("cpu: no samples")
	}
	return percents[0], nil, nil
}

func sampleDisk(ctx domain.Context) (float64, map[string]string, error) {
	u, err := disk.UsageWithContext(ctx, "/")
	if err != nil {
		return 0, nil, err
	}
	return u.UsedPercent, map[string]string{"path": u.Path}, nil
}

// maxConservativeThreads is the spec §4.7 denominator for the threads
// resource: "current thread count / conservative max (1000) × 100".
const maxConservativeThreads = 1000

func sampleThreads(ctx domain.Context) (float64, map[string]string, error) {
	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return 0, nil, err
	}
	n, err := proc.NumThreadsWithContext(ctx)
	if err != nil {
		return 0, nil, err
	}
	pct := float64(n) / maxConservativeThreads * 100
	return pct, map[string]string{"thread_count": fmt.Sprintf("%d", n)}, nil
}

// sampleWebhook reports failed/total × 100 over the current accounting
// window, resetting the window on each sample (spec §4.7).
func (m *Monitor) sampleWebhook(ctx domain.Context) (float64, map[string]string, error) {
	total, failed := m.Webhooks.snapshotAndReset()
	if total == 0 {
		return 0, map[string]string{"total": "0", "failed": "0"}, nil
	}
	pct := float64(failed) / float64(total) * 100
	return pct, map[string]string{"total": fmt.Sprintf("%d", total), "failed": fmt.Sprintf("%d", failed)}, nil
}

// Run samples every configured resource every interval until ctx is done.
func (m *Monitor) Run(ctx domain.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.sampleAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sampleAll(ctx)
		}
	}
}

func (m *Monitor) sampleAll(ctx domain.Context) {
	tr := otel.Tracer("health.monitor")
	ctx, span := tr.Start(ctx, "Monitor.sampleAll")
	defer span.End()

	m.mu.RLock()
	samplers := make(map[domain.ResourceType]Sampler, len(m.Samplers))
	for rt, s := range m.Samplers {
		samplers[rt] = s
	}
	m.mu.RUnlock()

	for rt, sampler := range samplers {
		m.sampleOne(ctx, rt, sampler)
	}
}

func (m *Monitor) sampleOne(ctx domain.Context, rt domain.ResourceType, sampler Sampler) {
	lg := obsctx.LoggerFromContext(ctx)
	value, meta, err := sampler(ctx)
	if err != nil {
		lg.Warn("health sample failed", slog.String("resource", string(rt)), slog.Any("error", err))
		return
	}

	thresholds := m.Thresholds[rt]
	status := thresholds.Status(value)

	metric := domain.HealthMetric{
		ResourceType: rt,
		Timestamp:    m.now(),
		Value:        value,
		Status:       status,
		Metadata:     meta,
	}

	m.mu.Lock()
	prevStatus := m.latest[rt].Status
	m.latest[rt] = metric
	hist, ok := m.history[rt]
	if !ok {
		hist = ringbuf.New[domain.HealthMetric](m.HistorySize)
		m.history[rt] = hist
	}
	hist.Push(metric)
	cleanup := m.Cleanup[rt]
	m.mu.Unlock()

	if m.Metrics != nil {
		if _, err := m.Metrics.AppendHealthMetric(ctx, metric); err != nil {
			lg.Error("health metric persist failed", slog.Any("error", err))
		}
	}

	if status == prevStatus {
		return
	}

	// A transition into warning-or-worse invokes the resource's cleanup
	// handler, if any, regardless of whether it reaches critical.
	if moreSevere(status, domain.HealthWarning) && cleanup != nil {
		if err := cleanup(ctx); err != nil {
			lg.Error("health cleanup handler failed", slog.String("resource", string(rt)), slog.Any("error", err))
		} else {
			lg.Info("health cleanup handler ran", slog.String("resource", string(rt)), slog.String("status", string(status)))
		}
	}

	if moreSevere(status, domain.HealthCritical) {
		if m.Events != nil {
			evt := domain.SelfHealingEvent{
				EventType:    "threshold_crossed",
				ResourceType: string(rt),
				Timestamp:    m.now(),
				Details:      map[string]string{"status": string(status), "value": fmt.Sprintf("%.2f", value)},
			}
			if _, err := m.Events.AppendSelfHealingEvent(ctx, evt); err != nil {
				lg.Error("self-healing event append failed", slog.Any("error", err))
			}
		}
		m.notify(ctx, rt, status, value)
	} else if status == domain.HealthHealthy && prevStatus != "" {
		// Recovery out of warning/critical/emergency.
		m.notify(ctx, rt, status, value)
	}
}

func (m *Monitor) notify(ctx domain.Context, rt domain.ResourceType, status domain.HealthStatus, value float64) {
	if m.Notify == nil {
		return
	}
	evt := domain.NotificationEvent{
		Type:      domain.NotifySystemError,
		Timestamp: m.now(),
		Context: map[string]string{
			"resource": string(rt),
			"status":   string(status),
			"value":    fmt.Sprintf("%.2f", value),
		},
	}
	if err := m.Notify.Notify(ctx, evt); err != nil {
		obsctx.LoggerFromContext(ctx).Error("health notification failed", slog.Any("error", err))
	}
}

func moreSevere(status, floor domain.HealthStatus) bool {
	rank := map[domain.HealthStatus]int{
		domain.HealthHealthy: 0, domain.HealthWarning: 1,
		domain.HealthCritical: 2, domain.HealthEmergency: 3,
	}
	return rank[status] >= rank[floor]
}

// Status returns the most recent sample for every resource, for the
// operator surface.
func (m *Monitor) Status(ctx domain.Context) (map[domain.ResourceType]domain.HealthMetric, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[domain.ResourceType]domain.HealthMetric, len(m.latest))
	for k, v := range m.latest {
		out[k] = v
	}
	return out, nil
}

// History returns the bounded recent sample history for a resource.
func (m *Monitor) History(rt domain.ResourceType) []domain.HealthMetric {
	m.mu.RLock()
	hist, ok := m.history[rt]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	return hist.Items()
}

// TriggerCheck forces an out-of-band sample cycle, used by the operator
// endpoint POST /v1/health/check.
func (m *Monitor) TriggerCheck(ctx domain.Context) error {
	m.sampleAll(ctx)
	return nil
}
