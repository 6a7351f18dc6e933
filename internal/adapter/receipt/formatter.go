// Package receipt implements domain.ReceiptFormatter: a pure function from
// an Order to an ESC/POS-shaped device payload. It performs no I/O.
package receipt

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/briskprint/printservice/internal/domain"
	"github.com/briskprint/printservice/pkg/textx"
)

// ESC/POS control sequences used by the three variants.
var (
	escInit      = []byte{0x1B, 0x40}       // initialize
	escBoldOn    = []byte{0x1B, 0x45, 0x01} // emphasized on
	escBoldOff   = []byte{0x1B, 0x45, 0x00} // emphasized off
	escAlignCtr  = []byte{0x1B, 0x61, 0x01} // center
	escAlignLeft = []byte{0x1B, 0x61, 0x00} // left
	escCut       = []byte{0x1D, 0x56, 0x42, 0x00} // partial cut, feed-then-cut
)

// Formatter renders an Order into a device-ready ESC/POS payload, one
// layout per domain.ReceiptVariant.
type Formatter struct{}

// New constructs a Formatter.
func New() *Formatter { return &Formatter{} }

// Format implements domain.ReceiptFormatter.
func (f *Formatter) Format(order domain.Order, variant domain.ReceiptVariant) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(escInit)
	buf.Write(escAlignCtr)
	buf.Write(escBoldOn)
	buf.WriteString(headerFor(variant))
	buf.WriteString("\n")
	buf.Write(escBoldOff)
	buf.Write(escAlignLeft)

	orderRef := order.ExternalOrderID
	if orderRef == "" {
		orderRef = order.ID
	}
	fmt.Fprintf(&buf, "Order: %s\n", textx.SanitizeText(orderRef))
	fmt.Fprintf(&buf, "Time:  %s\n", timestampFor(order))
	buf.WriteString(strings.Repeat("-", 32) + "\n")

	switch variant {
	case domain.ReceiptCustomer:
		writeCustomerBody(&buf, order)
	case domain.ReceiptDriver:
		writeDriverBody(&buf, order)
	default:
		writeKitchenBody(&buf, order)
	}

	buf.WriteString(strings.Repeat("-", 32) + "\n\n\n")
	buf.Write(escCut)
	return buf.Bytes(), nil
}

func headerFor(variant domain.ReceiptVariant) string {
	switch variant {
	case domain.ReceiptDriver:
		return "DELIVERY TICKET"
	case domain.ReceiptCustomer:
		return "RECEIPT"
	default:
		return "KITCHEN TICKET"
	}
}

func timestampFor(o domain.Order) string {
	ts := o.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return ts.Format("2006-01-02 15:04")
}

func writeKitchenBody(buf *bytes.Buffer, o domain.Order) {
	for _, it := range o.Items {
		fmt.Fprintf(buf, "%dx %s\n", it.Quantity, textx.SanitizeText(it.Name))
		if it.Variant != "" {
			fmt.Fprintf(buf, "   (%s)\n", textx.SanitizeText(it.Variant))
		}
		if it.Notes != "" {
			fmt.Fprintf(buf, "   note: %s\n", textx.SanitizeText(it.Notes))
		}
	}
}

func writeDriverBody(buf *bytes.Buffer, o domain.Order) {
	fmt.Fprintf(buf, "%s\n", textx.SanitizeText(o.Customer.Name))
	if o.Delivery.AddressLine1 != "" {
		fmt.Fprintf(buf, "%s\n", textx.SanitizeText(o.Delivery.AddressLine1))
	}
	if o.Delivery.AddressLine2 != "" {
		fmt.Fprintf(buf, "%s\n", textx.SanitizeText(o.Delivery.AddressLine2))
	}
	fmt.Fprintf(buf, "%s %s\n", textx.SanitizeText(o.Delivery.City), textx.SanitizeText(o.Delivery.PostalCode))
	if o.Delivery.Instructions != "" {
		fmt.Fprintf(buf, "Instructions: %s\n", textx.SanitizeText(o.Delivery.Instructions))
	}
	if o.Customer.Phone != "" {
		fmt.Fprintf(buf, "Phone: %s\n", textx.SanitizeText(o.Customer.Phone))
	}
	buf.WriteString(strings.Repeat("-", 32) + "\n")
	for _, it := range o.Items {
		fmt.Fprintf(buf, "%dx %s\n", it.Quantity, textx.SanitizeText(it.Name))
	}
}

func writeCustomerBody(buf *bytes.Buffer, o domain.Order) {
	for _, it := range o.Items {
		lineTotal := it.UnitPrice * float64(it.Quantity)
		fmt.Fprintf(buf, "%-20s %2d x %6.2f = %7.2f\n", truncate(textx.SanitizeText(it.Name), 20), it.Quantity, it.UnitPrice, lineTotal)
	}
	buf.WriteString(strings.Repeat("-", 32) + "\n")
	fmt.Fprintf(buf, "%-24s %7.2f %s\n", "TOTAL", o.TotalAmount, o.Currency)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
