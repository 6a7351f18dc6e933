package printer

import (
	"sync"
	"time"

	"github.com/briskprint/printservice/internal/domain"
)

// Dummy is an in-memory domain.PrinterAdapter for environments without
// hardware: local development, CI, and tests. It never fails unless
// configured to.
type Dummy struct {
	mu        sync.Mutex
	connected bool
	fail      bool
	printed   [][]byte
}

// NewDummy constructs a Dummy printer, connected by default.
func NewDummy() *Dummy { return &Dummy{connected: true} }

// SetFailing toggles whether PrintBytes and Status report a fault, for
// exercising the Print Manager's offline-queue fallback in tests.
func (d *Dummy) SetFailing(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = fail
}

// Printed returns every payload accepted so far, for test assertions.
func (d *Dummy) Printed() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]byte(nil), d.printed...)
}

func (d *Dummy) Connect(ctx domain.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = true
	return nil
}

func (d *Dummy) Disconnect(ctx domain.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = false
	return nil
}

func (d *Dummy) Status(ctx domain.Context) (domain.PrinterStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()
	if d.fail {
		return domain.PrinterStatus{Value: domain.PrinterStatusError, CheckedAt: now, Detail: "simulated fault"}, nil
	}
	if !d.connected {
		return domain.PrinterStatus{Value: domain.PrinterStatusOffline, CheckedAt: now}, nil
	}
	return domain.PrinterStatus{Value: domain.PrinterStatusOnline, CheckedAt: now}, nil
}

func (d *Dummy) PrintBytes(ctx domain.Context, payload []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail || !d.connected {
		return domain.ErrPrinterNotReady
	}
	d.printed = append(d.printed, append([]byte(nil), payload...))
	return nil
}
