package application

import (
	"context"

	catalogdom "github.com/emekauja/shopflow/internal/catalog/domain"
	invdom "github.com/emekauja/shopflow/internal/inventory/domain"
	"github.com/emekauja/shopflow/internal/order/domain"
)

type OrderRepository interface {
	// CreateWithOutbox persists the order and its event in one transaction,
	// assigning the order number from the sequence. A clash on the
	// idempotency key's unique constraint returns ErrDuplicateIdempotencyKey.
	CreateWithOutbox(ctx context.Context, o domain.Order, eventType string, payload []byte, traceparent string) (domain.Order, error)
	Get(ctx context.Context, id string) (domain.Order, error)
	GetByIdempotencyKey(ctx context.Context, key string) (domain.Order, error)
	// UpdateFulfillmentWithOutbox applies the transition guarded on the
	// current status, appends the optional note, and enqueues the event.
	UpdateFulfillmentWithOutbox(ctx context.Context, orderID string, from, to domain.FulfillmentStatus, note *domain.Note, eventType string, payload []byte, traceparent string) (domain.Order, error)
	UpdatePaymentStatus(ctx context.Context, orderID string, status domain.PaymentStatus) (domain.Order, error)
}

type CatalogLookup interface {
	GetActiveProducts(ctx context.Context, ids []string) (map[string]catalogdom.Product, error)
}

type StockLedger interface {
	Decrement(ctx context.Context, productID string, quantity int) (invdom.StockRecord, error)
}

// ReplayCache is an advisory idempotency-key → order-id cache. Errors and
// misses both fall through to the repository lookup.
type ReplayCache interface {
	Lookup(ctx context.Context, idemKey string) (orderID string, ok bool, err error)
	Remember(ctx context.Context, idemKey, orderID string) error
}
