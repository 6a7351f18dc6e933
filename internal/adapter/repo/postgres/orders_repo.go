package postgres

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/briskprint/printservice/internal/domain"
)

// OrderRepo persists orders using a minimal pgx pool.
type OrderRepo struct{ Pool PgxPool }

// NewOrderRepo constructs an OrderRepo with the given pool.
func NewOrderRepo(p PgxPool) *OrderRepo { return &OrderRepo{Pool: p} }

// SaveOrder upserts an order, generating an id on insert.
func (r *OrderRepo) SaveOrder(ctx domain.Context, o domain.Order) (string, error) {
	tracer := otel.Tracer("repo.orders")
	ctx, span := tracer.Start(ctx, "orders.SaveOrder")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.sql.table", "orders"),
	)

	id := o.ID
	if id == "" {
		id = uuid.New().String()
	}
	items, err := json.Marshal(o.Items)
	if err != nil {
		return "", fmt.Errorf("op=orders.save marshal items: %w", err)
	}

	q := `INSERT INTO orders
		(id, external_order_id, status, items, customer_name, customer_email, customer_phone,
		 delivery_address_line1, delivery_address_line2, delivery_city, delivery_postal_code, delivery_instructions,
		 total_amount, currency, created_at, raw_payload)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status`
	_, err = r.Pool.Exec(ctx, q, id, nullableString(o.ExternalOrderID), o.Status, items,
		o.Customer.Name, o.Customer.Email, o.Customer.Phone,
		o.Delivery.AddressLine1, o.Delivery.AddressLine2, o.Delivery.City, o.Delivery.PostalCode, o.Delivery.Instructions,
		o.TotalAmount, o.Currency, o.CreatedAt, o.RawPayload)
	if err != nil {
		return "", fmt.Errorf("op=orders.save: %w", domain.ErrStoreUnavailable)
	}
	return id, nil
}

// GetOrder loads an order by id.
func (r *OrderRepo) GetOrder(ctx domain.Context, id string) (domain.Order, error) {
	tracer := otel.Tracer("repo.orders")
	ctx, span := tracer.Start(ctx, "orders.GetOrder")
	defer span.End()

	return r.scanOne(ctx, `SELECT id, external_order_id, status, items, customer_name, customer_email, customer_phone,
		delivery_address_line1, delivery_address_line2, delivery_city, delivery_postal_code, delivery_instructions,
		total_amount, currency, created_at, raw_payload FROM orders WHERE id=$1`, id)
}

// FindByExternalOrderID loads an order by its external identifier (for
// idempotent re-submission of the same order).
func (r *OrderRepo) FindByExternalOrderID(ctx domain.Context, externalID string) (domain.Order, error) {
	tracer := otel.Tracer("repo.orders")
	ctx, span := tracer.Start(ctx, "orders.FindByExternalOrderID")
	defer span.End()

	return r.scanOne(ctx, `SELECT id, external_order_id, status, items, customer_name, customer_email, customer_phone,
		delivery_address_line1, delivery_address_line2, delivery_city, delivery_postal_code, delivery_instructions,
		total_amount, currency, created_at, raw_payload FROM orders WHERE external_order_id=$1`, externalID)
}

func (r *OrderRepo) scanOne(ctx domain.Context, q string, arg string) (domain.Order, error) {
	row := r.Pool.QueryRow(ctx, q, arg)
	var o domain.Order
	var itemsRaw []byte
	var extID, custName, custEmail, custPhone string
	err := row.Scan(&o.ID, &extID, &o.Status, &itemsRaw, &custName, &custEmail, &custPhone,
		&o.Delivery.AddressLine1, &o.Delivery.AddressLine2, &o.Delivery.City, &o.Delivery.PostalCode, &o.Delivery.Instructions,
		&o.TotalAmount, &o.Currency, &o.CreatedAt, &o.RawPayload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("op=orders.get: %w", domain.ErrStoreUnavailable)
	}
	o.ExternalOrderID = extID
	o.Customer = domain.Customer{Name: custName, Email: custEmail, Phone: custPhone}
	if err := json.Unmarshal(itemsRaw, &o.Items); err != nil {
		return domain.Order{}, fmt.Errorf("op=orders.get unmarshal items: %w", err)
	}
	return o, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
