package domain

import (
	"context"
	"time"
)

// Context is a type alias to stdlib context.Context so domain ports read
// naturally without importing context in every file that embeds one.
type Context = context.Context

// OrderStatus captures the lifecycle state of an order.
type OrderStatus string

// Order status values.
const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderCompleted  OrderStatus = "completed"
	OrderCancelled  OrderStatus = "cancelled"
)

// LineItem is a single ordered item.
type LineItem struct {
	ID        string
	Name      string
	Quantity  int
	UnitPrice float64
	Variant   string
	Notes     string
}

// Customer holds optional contact details; at least one field is non-empty.
type Customer struct {
	Name  string
	Email string
	Phone string
}

// Delivery holds address and delivery instructions.
type Delivery struct {
	AddressLine1 string
	AddressLine2 string
	City         string
	PostalCode   string
	Instructions string
}

// Order is immutable once stored.
type Order struct {
	ID              string
	ExternalOrderID string
	Status          OrderStatus
	Items           []LineItem
	Customer        Customer
	Delivery        Delivery
	TotalAmount     float64
	Currency        string
	CreatedAt       time.Time
	RawPayload      []byte
}

// Validate enforces the invariants required before an order is stored:
// items non-empty, quantities and prices valid, at least one contact field.
func (o Order) Validate() error {
	if len(o.Items) == 0 {
		return wrapf(ErrInvalidArgument, "order has no items")
	}
	for _, it := range o.Items {
		if it.Quantity <= 0 {
			return wrapf(ErrInvalidArgument, "item %q has non-positive quantity", it.Name)
		}
		if it.UnitPrice < 0 {
			return wrapf(ErrInvalidArgument, "item %q has negative unit price", it.Name)
		}
	}
	if o.Customer.Name == "" && o.Customer.Email == "" && o.Customer.Phone == "" {
		return wrapf(ErrInvalidArgument, "order has no contact information")
	}
	if o.TotalAmount < 0 {
		return wrapf(ErrInvalidArgument, "order total is negative")
	}
	return nil
}

// OrderRepository is the Store's port for orders.
type OrderRepository interface {
	// SaveOrder upserts an order by id, enforcing ExternalOrderID uniqueness.
	SaveOrder(ctx Context, o Order) (string, error)
	GetOrder(ctx Context, id string) (Order, error)
	FindByExternalOrderID(ctx Context, externalID string) (Order, error)
}
