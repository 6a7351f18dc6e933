package printer

import (
	"errors"

	"github.com/briskprint/printservice/internal/domain"
)

// ErrUSBUnsupported is returned by every USB method. USB/serial printer
// access needs a platform-specific libusb or serial-port binding, and no
// repository in the retrieved corpus touches USB or serial I/O to ground an
// implementation against; PRINTER_INTERFACE=usb is recognized by config but
// deliberately left unimplemented rather than guessed at.
var ErrUSBUnsupported = errors.New("usb printer interface not implemented")

// USB is a domain.PrinterAdapter stub for PRINTER_INTERFACE=usb. Every
// method returns ErrUSBUnsupported.
type USB struct{}

// NewUSB constructs the USB stub adapter.
func NewUSB() *USB { return &USB{} }

func (USB) Connect(ctx domain.Context) error    { return ErrUSBUnsupported }
func (USB) Disconnect(ctx domain.Context) error { return ErrUSBUnsupported }
func (USB) Status(ctx domain.Context) (domain.PrinterStatus, error) {
	return domain.PrinterStatus{}, ErrUSBUnsupported
}
func (USB) PrintBytes(ctx domain.Context, payload []byte) error { return ErrUSBUnsupported }
