// Package printer implements domain.PrinterAdapter: the physical-device
// boundary the Print Manager talks to. Grounded on the teacher's narrow
// collaborator-interface style (internal/app/readiness.go's Pinger) applied
// to a raw TCP-attached ESC/POS device, since no example repo in the pack
// drives hardware I/O directly.
package printer

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/briskprint/printservice/internal/domain"
)

// Network is a domain.PrinterAdapter for a printer reachable over raw TCP
// (the common "port 9100" ESC/POS network interface).
type Network struct {
	Host       string
	Port       int
	DialTimeout time.Duration

	mu   sync.Mutex
	conn net.Conn
}

// NewNetwork constructs a Network printer adapter.
func NewNetwork(host string, port int, dialTimeout time.Duration) *Network {
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	return &Network{Host: host, Port: port, DialTimeout: dialTimeout}
}

// Connect opens the TCP connection, replacing any existing one.
func (n *Network) Connect(ctx domain.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn != nil {
		_ = n.conn.Close()
		n.conn = nil
	}
	addr := fmt.Sprintf("%s:%d", n.Host, n.Port)
	d := net.Dialer{Timeout: n.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("op=printer.connect: %w", domain.ErrPrinterNotReady)
	}
	n.conn = conn
	return nil
}

// Disconnect closes the TCP connection, if any.
func (n *Network) Disconnect(ctx domain.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn == nil {
		return nil
	}
	err := n.conn.Close()
	n.conn = nil
	return err
}

// Status reports online when a write-probe byte round-trips, offline
// otherwise. A network ESC/POS device rarely exposes a richer status
// channel than "the socket is alive", so paper-out/error detection is left
// to the device's own out-of-band management page, not this adapter.
func (n *Network) Status(ctx domain.Context) (domain.PrinterStatus, error) {
	n.mu.Lock()
	conn := n.conn
	n.mu.Unlock()

	now := time.Now()
	if conn == nil {
		return domain.PrinterStatus{Value: domain.PrinterStatusOffline, CheckedAt: now}, nil
	}
	if err := conn.SetDeadline(now.Add(n.DialTimeout)); err != nil {
		return domain.PrinterStatus{Value: domain.PrinterStatusOffline, CheckedAt: now, Detail: err.Error()}, nil
	}
	// ESC/POS real-time status request (DLE EOT 1): most network printers
	// reply with at least one status byte without disturbing the print buffer.
	if _, err := conn.Write([]byte{0x10, 0x04, 0x01}); err != nil {
		return domain.PrinterStatus{Value: domain.PrinterStatusOffline, CheckedAt: now, Detail: err.Error()}, nil
	}
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err != nil {
		return domain.PrinterStatus{Value: domain.PrinterStatusOffline, CheckedAt: now, Detail: err.Error()}, nil
	}
	return domain.PrinterStatus{Value: domain.PrinterStatusOnline, CheckedAt: now}, nil
}

// PrintBytes writes a fully-formatted payload to the device.
func (n *Network) PrintBytes(ctx domain.Context, payload []byte) error {
	n.mu.Lock()
	conn := n.conn
	n.mu.Unlock()

	if conn == nil {
		if err := n.Connect(ctx); err != nil {
			return err
		}
		n.mu.Lock()
		conn = n.conn
		n.mu.Unlock()
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	w := bufio.NewWriter(conn)
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("op=printer.print_bytes: %w", domain.ErrPrinterNotReady)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("op=printer.print_bytes flush: %w", domain.ErrPrinterNotReady)
	}
	return nil
}
