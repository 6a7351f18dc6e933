package domain

// ReceiptVariant selects which of the three receipt layouts to render.
type ReceiptVariant string

// Variants, gated individually by ENABLE_{KITCHEN,DRIVER,CUSTOMER}_RECEIPT.
const (
	ReceiptKitchen  ReceiptVariant = "kitchen"
	ReceiptDriver   ReceiptVariant = "driver"
	ReceiptCustomer ReceiptVariant = "customer"
)

// ReceiptFormatter renders an Order into a device-ready payload. It is a
// pure function of its inputs: no I/O, no clock reads beyond what the Order
// already carries.
type ReceiptFormatter interface {
	Format(order Order, variant ReceiptVariant) ([]byte, error)
}
