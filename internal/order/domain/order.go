package domain

import "time"

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

func ValidPaymentStatus(s PaymentStatus) bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

type FulfillmentStatus string

const (
	FulfillmentNew       FulfillmentStatus = "new"
	FulfillmentPreparing FulfillmentStatus = "preparing"
	FulfillmentInRoute   FulfillmentStatus = "in_route"
	FulfillmentDelivered FulfillmentStatus = "delivered"
	FulfillmentCancelled FulfillmentStatus = "cancelled"
)

// CanTransition encodes the fulfillment state machine: forward-only through
// new → preparing → in_route → delivered, with cancellation allowed from new
// and preparing. delivered and cancelled are terminal.
func CanTransition(from, to FulfillmentStatus) bool {
	switch from {
	case FulfillmentNew:
		return to == FulfillmentPreparing || to == FulfillmentCancelled
	case FulfillmentPreparing:
		return to == FulfillmentInRoute || to == FulfillmentCancelled
	case FulfillmentInRoute:
		return to == FulfillmentDelivered
	default:
		return false
	}
}

// Customer is the snapshot taken at order time; later profile edits never
// touch an existing order.
type Customer struct {
	Name    string
	Phone   string
	Address string
	Region  string
}

type LineItem struct {
	ProductID      string
	Quantity       int
	UnitPriceCents int64
}

type Note struct {
	Actor string
	Text  string
	At    time.Time
}

type Order struct {
	ID                string
	OrderNumber       string
	IdempotencyKey    string
	Customer          Customer
	Items             []LineItem
	SubtotalCents     int64
	TotalCents        int64
	PaymentStatus     PaymentStatus
	FulfillmentStatus FulfillmentStatus
	Notes             []Note
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewOrder builds an order from already-priced line items. Subtotal and total
// are computed here from the snapshotted unit prices; there are no extra fees
// in the base design.
func NewOrder(id, idempotencyKey string, c Customer, items []LineItem) Order {
	var subtotal int64
	for _, item := range items {
		subtotal += int64(item.Quantity) * item.UnitPriceCents
	}
	now := time.Now().UTC()
	return Order{
		ID:                id,
		IdempotencyKey:    idempotencyKey,
		Customer:          c,
		Items:             items,
		SubtotalCents:     subtotal,
		TotalCents:        subtotal,
		PaymentStatus:     PaymentPending,
		FulfillmentStatus: FulfillmentNew,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}
