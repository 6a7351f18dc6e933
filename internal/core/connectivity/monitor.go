// Package connectivity implements the Connectivity Monitor: a single
// cooperative poller that tracks the printer and internet dependencies and
// fans out transition events to subscribers without blocking on them.
//
// Grounded on the teacher's internal/app/stuck_jobs.go ticker-loop shape
// (time.NewTicker, select{ctx.Done(); ticker.C}, one OTEL span per cycle),
// generalized from a single DB sweep into polling two independent
// dependencies and maintaining process-wide ConnectivityState (spec §4.3).
package connectivity

import (
	"log/slog"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/briskprint/printservice/internal/domain"
	obsctx "github.com/briskprint/printservice/internal/observability"
)

// Dialer probes TCP reachability. *net.Dialer satisfies this; tests can
// supply a fake.
type Dialer interface {
	DialTimeout(network, address string, timeout time.Duration) (net.Conn, error)
}

type netDialer struct{}

func (netDialer) DialTimeout(network, address string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout(network, address, timeout)
}

// Monitor polls the printer adapter and a set of internet probe hosts,
// derives ConnectivityState per component, persists transitions, and
// notifies subscribers.
type Monitor struct {
	Printer     domain.PrinterAdapter
	Events      domain.ConnectivityEventRepository
	ProbeHosts  []string
	ProbeDialer Dialer
	ProbeTimeout time.Duration

	mu          sync.RWMutex
	state       map[domain.ConnectivityComponent]domain.ConnectivityState
	subscribers []domain.ConnectivitySubscriber

	now func() time.Time
}

// New constructs a Monitor in the unknown state for both components.
func New(printer domain.PrinterAdapter, events domain.ConnectivityEventRepository, probeHosts []string, probeTimeout time.Duration) *Monitor {
	if probeTimeout <= 0 {
		probeTimeout = 3 * time.Second
	}
	return &Monitor{
		Printer:      printer,
		Events:       events,
		ProbeHosts:   probeHosts,
		ProbeDialer:  netDialer{},
		ProbeTimeout: probeTimeout,
		state: map[domain.ConnectivityComponent]domain.ConnectivityState{
			domain.ComponentPrinter:  {Component: domain.ComponentPrinter, Status: domain.StatusUnknown},
			domain.ComponentInternet: {Component: domain.ComponentInternet, Status: domain.StatusUnknown},
		},
		now: time.Now,
	}
}

// Subscribe registers a subscriber for future transitions. It is safe to call
// while Run is active; a subscriber receives only transitions dispatched
// after it was added.
func (m *Monitor) Subscribe(s domain.ConnectivitySubscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, s)
}

// State returns a snapshot of the current state for a component.
func (m *Monitor) State(c domain.ConnectivityComponent) domain.ConnectivityState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state[c]
}

// Run polls both dependencies every interval until ctx is cancelled.
func (m *Monitor) Run(ctx domain.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.pollOnce(ctx)
		}
	}
}

func (m *Monitor) pollOnce(ctx domain.Context) {
	tr := otel.Tracer("connectivity.monitor")
	ctx, span := tr.Start(ctx, "Monitor.pollOnce")
	defer span.End()

	m.pollPrinter(ctx)
	m.pollInternet(ctx)
}

func (m *Monitor) pollPrinter(ctx domain.Context) {
	status := domain.StatusOffline
	detail := ""
	if m.Printer != nil {
		if st, err := m.Printer.Status(ctx); err == nil {
			switch st.Value {
			case domain.PrinterStatusOnline:
				status = domain.StatusOnline
			case domain.PrinterStatusPaperOut, domain.PrinterStatusError:
				status = domain.StatusDegraded
				detail = st.Detail
			default:
				status = domain.StatusOffline
			}
		} else {
			detail = err.Error()
		}
	}
	m.apply(ctx, domain.ComponentPrinter, status, detail)
}

func (m *Monitor) pollInternet(ctx domain.Context) {
	if len(m.ProbeHosts) == 0 {
		m.apply(ctx, domain.ComponentInternet, domain.StatusUnknown, "")
		return
	}
	up := 0
	for _, host := range m.ProbeHosts {
		conn, err := m.ProbeDialer.DialTimeout("tcp", host, m.ProbeTimeout)
		if err == nil {
			up++
			_ = conn.Close()
		}
	}
	var status domain.ConnectivityStatusValue
	switch {
	case up == len(m.ProbeHosts):
		status = domain.StatusOnline
	case up > 0:
		status = domain.StatusDegraded
	default:
		status = domain.StatusOffline
	}
	m.apply(ctx, domain.ComponentInternet, status, "")
}

// apply updates state for a component, persisting and dispatching an event
// only on a status transition.
func (m *Monitor) apply(ctx domain.Context, c domain.ConnectivityComponent, status domain.ConnectivityStatusValue, detail string) {
	m.mu.Lock()
	prev := m.state[c]
	if prev.Status == status {
		m.mu.Unlock()
		return
	}
	now := m.now()
	next := domain.ConnectivityState{Component: c, Status: status}
	if status == domain.StatusOnline {
		next.LastOnlineAt = &now
	} else {
		next.LastOnlineAt = prev.LastOnlineAt
	}
	m.state[c] = next
	subs := append([]domain.ConnectivitySubscriber(nil), m.subscribers...)
	m.mu.Unlock()

	evtType := eventType(c, status)
	evt := domain.ConnectivityEvent{
		EventType: evtType,
		Component: c,
		Status:    status,
		Timestamp: now,
		Details:   map[string]string{"detail": detail, "previous_status": string(prev.Status)},
	}
	if m.Events != nil {
		if _, err := m.Events.AppendEvent(ctx, evt); err != nil {
			obsctx.LoggerFromContext(ctx).Error("connectivity event append failed", slog.Any("error", err))
		}
	}
	for _, s := range subs {
		go s.OnConnectivityEvent(evt)
	}
}

func eventType(c domain.ConnectivityComponent, status domain.ConnectivityStatusValue) domain.ConnectivityEventType {
	online := status == domain.StatusOnline
	switch c {
	case domain.ComponentPrinter:
		if online {
			return domain.EventPrinterOnline
		}
		return domain.EventPrinterOffline
	case domain.ComponentInternet:
		if online {
			return domain.EventInternetOnline
		}
		return domain.EventInternetOffline
	default:
		return domain.EventConnectivityRestore
	}
}
