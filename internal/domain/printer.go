package domain

import "time"

// PrinterConnKind names the transport a PrinterAdapter speaks.
type PrinterConnKind string

// Connection kinds, selected by the PRINTER_INTERFACE setting.
const (
	PrinterConnUSB     PrinterConnKind = "usb"
	PrinterConnNetwork PrinterConnKind = "network"
	PrinterConnDummy   PrinterConnKind = "dummy"
)

// PrinterStatusValue is the raw status a PrinterAdapter reports, before the
// Connectivity Monitor maps it to a ConnectivityStatusValue.
type PrinterStatusValue string

// Raw printer statuses.
const (
	PrinterStatusOnline   PrinterStatusValue = "online"
	PrinterStatusPaperOut PrinterStatusValue = "paper_out"
	PrinterStatusError    PrinterStatusValue = "error"
	PrinterStatusOffline  PrinterStatusValue = "offline"
)

// PrinterStatus is a point-in-time read from the physical device.
type PrinterStatus struct {
	Value     PrinterStatusValue
	CheckedAt time.Time
	Detail    string
}

// PrinterAdapter is the port to the physical receipt printer. Implementations
// are external collaborators (USB/network device, or a dummy for
// environments without hardware); the Print Manager never talks to a device
// directly.
type PrinterAdapter interface {
	Connect(ctx Context) error
	Disconnect(ctx Context) error
	Status(ctx Context) (PrinterStatus, error)
	// PrintBytes writes a fully-formatted receipt payload to the device.
	PrintBytes(ctx Context, payload []byte) error
}
