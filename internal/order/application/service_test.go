package application_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catalogdom "github.com/emekauja/shopflow/internal/catalog/domain"
	inventory "github.com/emekauja/shopflow/internal/inventory/application"
	invdom "github.com/emekauja/shopflow/internal/inventory/domain"
	"github.com/emekauja/shopflow/internal/order/application"
	"github.com/emekauja/shopflow/internal/order/domain"
)

type fakeOrderRepo struct {
	mu    sync.Mutex
	byID  map[string]domain.Order
	byKey map[string]string
	seq   int64
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{byID: map[string]domain.Order{}, byKey: map[string]string{}}
}

func (r *fakeOrderRepo) CreateWithOutbox(_ context.Context, o domain.Order, _ string, _ []byte, _ string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[o.IdempotencyKey]; ok {
		return domain.Order{}, application.ErrDuplicateIdempotencyKey
	}
	r.seq++
	o.OrderNumber = fmt.Sprintf("ORD-%06d", r.seq)
	r.byID[o.ID] = o
	r.byKey[o.IdempotencyKey] = o.ID
	return o, nil
}

func (r *fakeOrderRepo) Get(_ context.Context, id string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.byID[id]
	if !ok {
		return domain.Order{}, application.ErrOrderNotFound
	}
	return o, nil
}

func (r *fakeOrderRepo) GetByIdempotencyKey(_ context.Context, key string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byKey[key]
	if !ok {
		return domain.Order{}, application.ErrOrderNotFound
	}
	return r.byID[id], nil
}

func (r *fakeOrderRepo) UpdateFulfillmentWithOutbox(_ context.Context, orderID string, from, to domain.FulfillmentStatus, note *domain.Note, _ string, _ []byte, _ string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.byID[orderID]
	if !ok {
		return domain.Order{}, application.ErrOrderNotFound
	}
	if o.FulfillmentStatus != from {
		return domain.Order{}, application.ErrInvalidTransition
	}
	o.FulfillmentStatus = to
	if note != nil {
		o.Notes = append(o.Notes, *note)
	}
	r.byID[orderID] = o
	return o, nil
}

func (r *fakeOrderRepo) UpdatePaymentStatus(_ context.Context, orderID string, status domain.PaymentStatus) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.byID[orderID]
	if !ok {
		return domain.Order{}, application.ErrOrderNotFound
	}
	o.PaymentStatus = status
	r.byID[orderID] = o
	return o, nil
}

func (r *fakeOrderRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

func (r *fakeOrderRepo) seed(o domain.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[o.ID] = o
	r.byKey[o.IdempotencyKey] = o.ID
}

type fakeCatalog struct {
	products map[string]catalogdom.Product
}

func (c *fakeCatalog) GetActiveProducts(_ context.Context, ids []string) (map[string]catalogdom.Product, error) {
	out := map[string]catalogdom.Product{}
	for _, id := range ids {
		if p, ok := c.products[id]; ok && p.Active {
			out[id] = p
		}
	}
	return out, nil
}

type fakeLedger struct {
	mu    sync.Mutex
	stock map[string]int
}

func (l *fakeLedger) Decrement(_ context.Context, productID string, quantity int) (invdom.StockRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.stock[productID]
	if !ok {
		return invdom.StockRecord{}, inventory.ErrRecordNotFound
	}
	if s < quantity {
		return invdom.StockRecord{}, inventory.ErrInsufficientStock
	}
	l.stock[productID] = s - quantity
	return invdom.StockRecord{ProductID: productID, CurrentStock: s - quantity}, nil
}

type noopCache struct{}

func (noopCache) Lookup(context.Context, string) (string, bool, error) { return "", false, nil }
func (noopCache) Remember(context.Context, string, string) error      { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func lagosProduct() catalogdom.Product {
	return catalogdom.Product{ID: "p1", Name: "Jollof Pack", PriceCents: 2500, Regions: []string{"Lagos"}, Active: true}
}

func newTestService(stock int) (*application.Service, *fakeOrderRepo, *fakeLedger) {
	repo := newFakeOrderRepo()
	ledger := &fakeLedger{stock: map[string]int{"p1": stock}}
	catalog := &fakeCatalog{products: map[string]catalogdom.Product{"p1": lagosProduct()}}
	svc := application.NewService(discardLogger(), repo, catalog, ledger, noopCache{}, 2*time.Second)
	return svc, repo, ledger
}

func createReq(key string, qty int, region string) application.CreateOrderRequest {
	return application.CreateOrderRequest{
		IdempotencyKey: key,
		Customer:       domain.Customer{Name: "Ada", Phone: "0801", Address: "12 Marina", Region: region},
		Items:          []application.RequestedItem{{ProductID: "p1", Quantity: qty}},
	}
}

func TestCreateOrder(t *testing.T) {
	svc, _, ledger := newTestService(10)

	res, err := svc.CreateOrder(context.Background(), createReq("k1", 3, "Lagos"))
	require.NoError(t, err)

	assert.Equal(t, int64(7500), res.Order.SubtotalCents)
	assert.Equal(t, int64(7500), res.Order.TotalCents)
	assert.Equal(t, domain.FulfillmentNew, res.Order.FulfillmentStatus)
	assert.Equal(t, int64(2500), res.Order.Items[0].UnitPriceCents)
	assert.NotEmpty(t, res.Order.OrderNumber)
	assert.False(t, res.Replayed)
	assert.Empty(t, res.StockWarnings)
	assert.Equal(t, 7, ledger.stock["p1"])
}

func TestCreateOrderReplay(t *testing.T) {
	svc, repo, ledger := newTestService(10)

	first, err := svc.CreateOrder(context.Background(), createReq("k1", 3, "Lagos"))
	require.NoError(t, err)

	second, err := svc.CreateOrder(context.Background(), createReq("k1", 3, "Lagos"))
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.OrderNumber, second.Order.OrderNumber)
	assert.Equal(t, 1, repo.count())
	assert.Equal(t, 7, ledger.stock["p1"], "stock decremented once, not twice")
}

func TestCreateOrderRegionMismatch(t *testing.T) {
	svc, repo, ledger := newTestService(10)

	_, err := svc.CreateOrder(context.Background(), createReq("k1", 3, "Kano"))
	require.ErrorIs(t, err, application.ErrProductUnavailable)
	assert.Equal(t, 0, repo.count(), "no order persisted")
	assert.Equal(t, 10, ledger.stock["p1"], "no stock mutation")
}

func TestCreateOrderUnknownProduct(t *testing.T) {
	svc, _, _ := newTestService(10)

	req := createReq("k1", 1, "Lagos")
	req.Items = append(req.Items, application.RequestedItem{ProductID: "ghost", Quantity: 1})

	_, err := svc.CreateOrder(context.Background(), req)
	require.ErrorIs(t, err, application.ErrProductUnavailable)
}

func TestCreateOrderOversellKeepsOrder(t *testing.T) {
	svc, repo, ledger := newTestService(2)

	res, err := svc.CreateOrder(context.Background(), createReq("k1", 5, "Lagos"))
	require.NoError(t, err, "inventory shortfall does not fail the order")

	assert.Equal(t, 1, repo.count())
	require.Len(t, res.StockWarnings, 1)
	assert.Equal(t, "p1", res.StockWarnings[0].ProductID)
	assert.Equal(t, 5, res.StockWarnings[0].Requested)
	assert.Equal(t, "insufficient stock", res.StockWarnings[0].Reason)
	assert.Equal(t, 2, ledger.stock["p1"], "stock untouched on failed decrement")
}

func TestCreateOrderValidation(t *testing.T) {
	svc, _, _ := newTestService(10)
	ctx := context.Background()

	_, err := svc.CreateOrder(ctx, createReq("", 1, "Lagos"))
	assert.ErrorIs(t, err, application.ErrInvalidArgument)

	_, err = svc.CreateOrder(ctx, createReq("k1", 0, "Lagos"))
	assert.ErrorIs(t, err, application.ErrInvalidArgument)

	req := createReq("k2", 1, "Lagos")
	req.Items = nil
	_, err = svc.CreateOrder(ctx, req)
	assert.ErrorIs(t, err, application.ErrInvalidArgument)

	req = createReq("k3", 1, "")
	_, err = svc.CreateOrder(ctx, req)
	assert.ErrorIs(t, err, application.ErrInvalidArgument)
}

// raceRepo simulates losing the insert race: the key lookup misses, then the
// insert reports a duplicate aimed at an order another writer just stored.
type raceRepo struct {
	*fakeOrderRepo
	winner domain.Order
	raced  bool
}

func (r *raceRepo) GetByIdempotencyKey(ctx context.Context, key string) (domain.Order, error) {
	if !r.raced {
		return domain.Order{}, application.ErrOrderNotFound
	}
	return r.fakeOrderRepo.GetByIdempotencyKey(ctx, key)
}

func (r *raceRepo) CreateWithOutbox(context.Context, domain.Order, string, []byte, string) (domain.Order, error) {
	r.raced = true
	r.fakeOrderRepo.seed(r.winner)
	return domain.Order{}, application.ErrDuplicateIdempotencyKey
}

func TestCreateOrderInsertRaceReadsBackWinner(t *testing.T) {
	winner := domain.NewOrder("winner-id", "k1", domain.Customer{Name: "Ada", Region: "Lagos"},
		[]domain.LineItem{{ProductID: "p1", Quantity: 3, UnitPriceCents: 2500}})
	winner.OrderNumber = "ORD-000042"

	repo := &raceRepo{fakeOrderRepo: newFakeOrderRepo(), winner: winner}
	catalog := &fakeCatalog{products: map[string]catalogdom.Product{"p1": lagosProduct()}}
	ledger := &fakeLedger{stock: map[string]int{"p1": 10}}
	svc := application.NewService(discardLogger(), repo, catalog, ledger, noopCache{}, 2*time.Second)

	res, err := svc.CreateOrder(context.Background(), createReq("k1", 3, "Lagos"))
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	assert.Equal(t, "ORD-000042", res.Order.OrderNumber)
	assert.Equal(t, 10, ledger.stock["p1"], "loser must not decrement stock")
}

func TestUpdateFulfillmentStatus(t *testing.T) {
	svc, repo, _ := newTestService(10)

	res, err := svc.CreateOrder(context.Background(), createReq("k1", 1, "Lagos"))
	require.NoError(t, err)

	o, err := svc.UpdateFulfillmentStatus(context.Background(), res.Order.ID, domain.FulfillmentPreparing, "packing started", "admin")
	require.NoError(t, err)
	assert.Equal(t, domain.FulfillmentPreparing, o.FulfillmentStatus)
	require.Len(t, o.Notes, 1)
	assert.Equal(t, "admin", o.Notes[0].Actor)

	// delivered is terminal
	delivered := o
	delivered.FulfillmentStatus = domain.FulfillmentDelivered
	repo.seed(delivered)

	_, err = svc.UpdateFulfillmentStatus(context.Background(), o.ID, domain.FulfillmentPreparing, "", "")
	assert.ErrorIs(t, err, application.ErrInvalidTransition)
}

func TestUpdateFulfillmentStatusUnknownOrder(t *testing.T) {
	svc, _, _ := newTestService(10)
	_, err := svc.UpdateFulfillmentStatus(context.Background(), "missing", domain.FulfillmentPreparing, "", "")
	assert.ErrorIs(t, err, application.ErrOrderNotFound)
}

func TestUpdatePaymentStatus(t *testing.T) {
	svc, _, _ := newTestService(10)

	res, err := svc.CreateOrder(context.Background(), createReq("k1", 1, "Lagos"))
	require.NoError(t, err)

	o, err := svc.UpdatePaymentStatus(context.Background(), res.Order.ID, domain.PaymentPaid)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, o.PaymentStatus)

	_, err = svc.UpdatePaymentStatus(context.Background(), res.Order.ID, "settled")
	assert.ErrorIs(t, err, application.ErrInvalidArgument)
}
