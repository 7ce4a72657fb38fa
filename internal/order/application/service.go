package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	inventory "github.com/emekauja/shopflow/internal/inventory/application"
	"github.com/emekauja/shopflow/internal/order/domain"
	"github.com/emekauja/shopflow/pkg/metrics"
)

var (
	ErrProductUnavailable = errors.New("product unavailable")
	ErrOrderNotFound      = errors.New("order not found")
	ErrInvalidTransition  = errors.New("invalid fulfillment transition")
	ErrInvalidArgument    = errors.New("invalid argument")

	// ErrDuplicateIdempotencyKey is the repository's signal that another
	// request won the insert race; it is resolved by read-back and never
	// reaches callers.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

type Service struct {
	log            *slog.Logger
	repo           OrderRepository
	catalog        CatalogLookup
	ledger         StockLedger
	cache          ReplayCache
	catalogTimeout time.Duration
}

func NewService(log *slog.Logger, repo OrderRepository, catalog CatalogLookup, ledger StockLedger, cache ReplayCache, catalogTimeout time.Duration) *Service {
	return &Service{
		log:            log,
		repo:           repo,
		catalog:        catalog,
		ledger:         ledger,
		cache:          cache,
		catalogTimeout: catalogTimeout,
	}
}

type RequestedItem struct {
	ProductID string
	Quantity  int
}

type CreateOrderRequest struct {
	IdempotencyKey string
	Customer       domain.Customer
	Items          []RequestedItem
}

// StockWarning records a line item whose decrement failed after the order was
// persisted. The order stands; the shortfall is the auditable side channel.
type StockWarning struct {
	ProductID string
	Requested int
	Reason    string
}

type CreateOrderResult struct {
	Order         domain.Order
	Replayed      bool
	StockWarnings []StockWarning
}

// CreateOrder places an order exactly once per idempotency key. A repeated
// key returns the original order untouched; a lost insert race is resolved by
// reading back the winner. Inventory shortfall does not fail the order.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (CreateOrderResult, error) {
	if err := validateCreate(req); err != nil {
		return CreateOrderResult{}, err
	}

	if res, ok := s.replayFromCache(ctx, req.IdempotencyKey); ok {
		return res, nil
	}

	existing, err := s.repo.GetByIdempotencyKey(ctx, req.IdempotencyKey)
	if err == nil {
		return s.replay(ctx, existing), nil
	}
	if !errors.Is(err, ErrOrderNotFound) {
		return CreateOrderResult{}, err
	}

	items, err := s.priceItems(ctx, req)
	if err != nil {
		return CreateOrderResult{}, err
	}

	o := domain.NewOrder(uuid.NewString(), req.IdempotencyKey, req.Customer, items)

	payload, err := json.Marshal(domain.OrderCreated{
		OrderID:    o.ID,
		Region:     o.Customer.Region,
		TotalCents: o.TotalCents,
		Items:      o.Items,
	})
	if err != nil {
		return CreateOrderResult{}, err
	}

	created, err := s.repo.CreateWithOutbox(ctx, o, "OrderCreated", payload, traceparentFrom(ctx))
	if errors.Is(err, ErrDuplicateIdempotencyKey) {
		winner, rerr := s.repo.GetByIdempotencyKey(ctx, req.IdempotencyKey)
		if rerr != nil {
			return CreateOrderResult{}, rerr
		}
		return s.replay(ctx, winner), nil
	}
	if err != nil {
		return CreateOrderResult{}, err
	}

	warnings := s.decrementStock(ctx, created)

	if cerr := s.cache.Remember(ctx, req.IdempotencyKey, created.ID); cerr != nil {
		s.log.Debug("replay cache remember failed", "err", cerr)
	}
	metrics.OrdersCreated.Inc()
	s.log.Info("order created", "order_id", created.ID, "order_number", created.OrderNumber,
		"total_cents", created.TotalCents, "stock_warnings", len(warnings))

	return CreateOrderResult{Order: created, StockWarnings: warnings}, nil
}

// UpdateFulfillmentStatus moves an order through the fulfillment machine and
// enqueues the status-change notification.
func (s *Service) UpdateFulfillmentStatus(ctx context.Context, orderID string, to domain.FulfillmentStatus, note, actor string) (domain.Order, error) {
	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !domain.CanTransition(o.FulfillmentStatus, to) {
		return domain.Order{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.FulfillmentStatus, to)
	}

	var n *domain.Note
	if note != "" {
		n = &domain.Note{Actor: actor, Text: note, At: time.Now().UTC()}
	}

	payload, err := json.Marshal(domain.OrderStatusChanged{
		OrderID: o.ID,
		From:    o.FulfillmentStatus,
		To:      to,
		Note:    note,
	})
	if err != nil {
		return domain.Order{}, err
	}

	updated, err := s.repo.UpdateFulfillmentWithOutbox(ctx, orderID, o.FulfillmentStatus, to, n, "OrderStatusChanged", payload, traceparentFrom(ctx))
	if err != nil {
		return domain.Order{}, err
	}
	s.log.Info("fulfillment updated", "order_id", orderID, "from", o.FulfillmentStatus, "to", to)
	return updated, nil
}

// UpdatePaymentStatus applies a payment-gateway callback.
func (s *Service) UpdatePaymentStatus(ctx context.Context, orderID string, status domain.PaymentStatus) (domain.Order, error) {
	if !domain.ValidPaymentStatus(status) {
		return domain.Order{}, fmt.Errorf("%w: unknown payment status %q", ErrInvalidArgument, status)
	}
	o, err := s.repo.UpdatePaymentStatus(ctx, orderID, status)
	if err != nil {
		return domain.Order{}, err
	}
	s.log.Info("payment status updated", "order_id", orderID, "status", status)
	return o, nil
}

func (s *Service) Get(ctx context.Context, orderID string) (domain.Order, error) {
	return s.repo.Get(ctx, orderID)
}

func (s *Service) replay(ctx context.Context, o domain.Order) CreateOrderResult {
	if err := s.cache.Remember(ctx, o.IdempotencyKey, o.ID); err != nil {
		s.log.Debug("replay cache remember failed", "err", err)
	}
	metrics.OrderReplays.Inc()
	s.log.Info("idempotent replay", "order_id", o.ID, "order_number", o.OrderNumber)
	return CreateOrderResult{Order: o, Replayed: true}
}

func (s *Service) replayFromCache(ctx context.Context, key string) (CreateOrderResult, bool) {
	id, ok, err := s.cache.Lookup(ctx, key)
	if err != nil {
		s.log.Debug("replay cache lookup failed", "err", err)
		return CreateOrderResult{}, false
	}
	if !ok {
		return CreateOrderResult{}, false
	}
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return CreateOrderResult{}, false
	}
	metrics.OrderReplays.Inc()
	return CreateOrderResult{Order: o, Replayed: true}, true
}

// priceItems resolves the requested products and snapshots their prices.
func (s *Service) priceItems(ctx context.Context, req CreateOrderRequest) ([]domain.LineItem, error) {
	ids := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		ids = append(ids, item.ProductID)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.catalogTimeout)
	defer cancel()
	products, err := s.catalog.GetActiveProducts(lookupCtx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]domain.LineItem, 0, len(req.Items))
	for _, item := range req.Items {
		p, ok := products[item.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrProductUnavailable, item.ProductID)
		}
		if !p.SoldIn(req.Customer.Region) {
			return nil, fmt.Errorf("%w: %s not sold in %s", ErrProductUnavailable, item.ProductID, req.Customer.Region)
		}
		items = append(items, domain.LineItem{
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPriceCents: p.PriceCents,
		})
	}
	return items, nil
}

// decrementStock runs one decrement per line item. Failures are collected as
// warnings, never propagated: the order is already persisted and the policy
// is that inventory shortfall does not roll it back.
func (s *Service) decrementStock(ctx context.Context, o domain.Order) []StockWarning {
	var warnings []StockWarning
	for _, item := range o.Items {
		_, err := s.ledger.Decrement(ctx, item.ProductID, item.Quantity)
		if err == nil {
			continue
		}
		reason := "inventory unavailable"
		if errors.Is(err, inventory.ErrInsufficientStock) {
			reason = "insufficient stock"
			metrics.DecrementFailures.Inc()
		}
		s.log.Warn("stock decrement failed", "order_id", o.ID, "product_id", item.ProductID,
			"quantity", item.Quantity, "err", err)
		warnings = append(warnings, StockWarning{
			ProductID: item.ProductID,
			Requested: item.Quantity,
			Reason:    reason,
		})
	}
	return warnings
}

func validateCreate(req CreateOrderRequest) error {
	if req.IdempotencyKey == "" {
		return fmt.Errorf("%w: idempotency key is required", ErrInvalidArgument)
	}
	if req.Customer.Name == "" {
		return fmt.Errorf("%w: customer name is required", ErrInvalidArgument)
	}
	if req.Customer.Region == "" {
		return fmt.Errorf("%w: customer region is required", ErrInvalidArgument)
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: order needs at least one item", ErrInvalidArgument)
	}
	seen := make(map[string]bool, len(req.Items))
	for _, item := range req.Items {
		if item.ProductID == "" {
			return fmt.Errorf("%w: line item product id is required", ErrInvalidArgument)
		}
		if item.Quantity < 1 {
			return fmt.Errorf("%w: line item quantity must be at least 1", ErrInvalidArgument)
		}
		if seen[item.ProductID] {
			return fmt.Errorf("%w: duplicate line item for product %s", ErrInvalidArgument, item.ProductID)
		}
		seen[item.ProductID] = true
	}
	return nil
}
