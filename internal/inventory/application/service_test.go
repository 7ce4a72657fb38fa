package application_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emekauja/shopflow/internal/inventory/application"
	"github.com/emekauja/shopflow/internal/inventory/domain"
)

// fakeStockRepo keeps records in memory with the same atomicity guarantees
// the postgres repository provides per record.
type fakeStockRepo struct {
	mu        sync.Mutex
	byID      map[string]domain.StockRecord
	byProduct map[string]string
}

func newFakeStockRepo() *fakeStockRepo {
	return &fakeStockRepo{byID: map[string]domain.StockRecord{}, byProduct: map[string]string{}}
}

func (r *fakeStockRepo) Create(_ context.Context, rec domain.StockRecord) (domain.StockRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byProduct[rec.ProductID]; ok {
		return domain.StockRecord{}, application.ErrAlreadyExists
	}
	r.byID[rec.ID] = rec
	r.byProduct[rec.ProductID] = rec.ID
	return rec, nil
}

func (r *fakeStockRepo) Get(_ context.Context, recordID string) (domain.StockRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[recordID]
	if !ok {
		return domain.StockRecord{}, application.ErrRecordNotFound
	}
	return rec, nil
}

func (r *fakeStockRepo) Restock(_ context.Context, recordID string, entry domain.RestockEntry) (domain.StockRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[recordID]
	if !ok {
		return domain.StockRecord{}, application.ErrRecordNotFound
	}
	rec.CurrentStock += entry.Quantity
	rec.RestockHistory = domain.AppendRestock(rec.RestockHistory, entry)
	rec.LastRestockedAt = &entry.At
	r.byID[recordID] = rec
	return rec, nil
}

func (r *fakeStockRepo) Decrement(_ context.Context, productID string, quantity int) (domain.StockRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byProduct[productID]
	if !ok {
		return domain.StockRecord{}, application.ErrRecordNotFound
	}
	rec := r.byID[id]
	if rec.CurrentStock < quantity {
		return domain.StockRecord{}, application.ErrInsufficientStock
	}
	rec.CurrentStock -= quantity
	r.byID[id] = rec
	return rec, nil
}

func (r *fakeStockRepo) ListByStatus(_ context.Context, status domain.StockStatus) ([]domain.StockRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.StockRecord
	for _, rec := range r.byID {
		if rec.Active && (status == "" || domain.Classify(rec) == status) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *fakeStockRepo) SetActive(_ context.Context, recordID string, active bool) (domain.StockRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[recordID]
	if !ok {
		return domain.StockRecord{}, application.ErrRecordNotFound
	}
	rec.Active = active
	r.byID[recordID] = rec
	return rec, nil
}

func (r *fakeStockRepo) MarkAlerted(_ context.Context, recordID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[recordID]
	if !ok {
		return application.ErrRecordNotFound
	}
	rec.LastAlertSentAt = &at
	r.byID[recordID] = rec
	return nil
}

func newTestService() (*application.Service, *fakeStockRepo) {
	repo := newFakeStockRepo()
	return application.NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), repo), repo
}

func validCreate() application.CreateRecordRequest {
	return application.CreateRecordRequest{
		ProductID:      "p1",
		CurrentStock:   10,
		MinimumStock:   5,
		MaximumStock:   100,
		AlertThreshold: 2,
		AlertFrequency: domain.AlertDaily,
	}
}

func TestCreateRecord(t *testing.T) {
	svc, _ := newTestService()

	rec, err := svc.CreateRecord(context.Background(), validCreate())
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.True(t, rec.Active)
	assert.Equal(t, 10, rec.CurrentStock)

	_, err = svc.CreateRecord(context.Background(), validCreate())
	assert.ErrorIs(t, err, application.ErrAlreadyExists, "one stock record per product")
}

func TestCreateRecordValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	req := validCreate()
	req.ProductID = ""
	_, err := svc.CreateRecord(ctx, req)
	assert.ErrorIs(t, err, application.ErrInvalidArgument)

	req = validCreate()
	req.CurrentStock = -1
	_, err = svc.CreateRecord(ctx, req)
	assert.ErrorIs(t, err, application.ErrInvalidArgument)

	req = validCreate()
	req.MaximumStock = 0
	_, err = svc.CreateRecord(ctx, req)
	assert.ErrorIs(t, err, application.ErrInvalidArgument)

	req = validCreate()
	req.MaximumStock = 3
	req.MinimumStock = 5
	_, err = svc.CreateRecord(ctx, req)
	assert.ErrorIs(t, err, application.ErrInvalidArgument)

	req = validCreate()
	req.AlertFrequency = "hourly"
	_, err = svc.CreateRecord(ctx, req)
	assert.ErrorIs(t, err, application.ErrInvalidArgument)
}

func TestCreateRecordDefaultsFrequency(t *testing.T) {
	svc, _ := newTestService()
	req := validCreate()
	req.AlertFrequency = ""
	rec, err := svc.CreateRecord(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.AlertDaily, rec.AlertFrequency)
}

func TestRestock(t *testing.T) {
	svc, _ := newTestService()
	rec, err := svc.CreateRecord(context.Background(), validCreate())
	require.NoError(t, err)

	updated, err := svc.Restock(context.Background(), rec.ID, 15, 120000, "admin", "weekly delivery")
	require.NoError(t, err)
	assert.Equal(t, 25, updated.CurrentStock)
	require.Len(t, updated.RestockHistory, 1)
	assert.Equal(t, "admin", updated.RestockHistory[0].Actor)
	assert.NotNil(t, updated.LastRestockedAt)

	_, err = svc.Restock(context.Background(), rec.ID, 0, 0, "admin", "")
	assert.ErrorIs(t, err, application.ErrInvalidArgument)

	_, err = svc.Restock(context.Background(), rec.ID, 5, -1, "admin", "")
	assert.ErrorIs(t, err, application.ErrInvalidArgument)

	_, err = svc.Restock(context.Background(), rec.ID, 5, 0, "", "")
	assert.ErrorIs(t, err, application.ErrInvalidArgument)
}

func TestDecrement(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.CreateRecord(context.Background(), validCreate())
	require.NoError(t, err)

	rec, err := svc.Decrement(context.Background(), "p1", 3)
	require.NoError(t, err)
	assert.Equal(t, 7, rec.CurrentStock)

	_, err = svc.Decrement(context.Background(), "p1", 8)
	assert.ErrorIs(t, err, application.ErrInsufficientStock)

	_, err = svc.Decrement(context.Background(), "p1", 0)
	assert.ErrorIs(t, err, application.ErrInvalidArgument)

	_, err = svc.Decrement(context.Background(), "ghost", 1)
	assert.ErrorIs(t, err, application.ErrRecordNotFound)
}

func TestConcurrentDecrementsNeverOversell(t *testing.T) {
	svc, repo := newTestService()
	req := validCreate()
	req.CurrentStock = 10
	rec, err := svc.CreateRecord(context.Background(), req)
	require.NoError(t, err)

	const workers = 8
	const each = 3 // 8×3 = 24 requested from a stock of 10

	var wg sync.WaitGroup
	var succeeded, failed int64
	var mu sync.Mutex
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Decrement(context.Background(), "p1", each)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else {
				assert.ErrorIs(t, err, application.ErrInsufficientStock)
				failed++
			}
		}()
	}
	wg.Wait()

	final, err := repo.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, final.CurrentStock, 0)
	assert.Equal(t, 10-int(succeeded)*each, final.CurrentStock)
	assert.Equal(t, int64(workers), succeeded+failed)
	assert.Positive(t, failed, "total requested exceeds stock, someone must fail")
}

func TestListByStatusValidation(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.ListByStatus(context.Background(), "everything")
	assert.ErrorIs(t, err, application.ErrInvalidArgument)
}

func TestListAllWithEmptyStatus(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	full := validCreate()
	_, err := svc.CreateRecord(ctx, full)
	require.NoError(t, err)

	empty := validCreate()
	empty.ProductID = "p2"
	empty.CurrentStock = 0
	_, err = svc.CreateRecord(ctx, empty)
	require.NoError(t, err)

	all, err := svc.ListByStatus(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2, "empty status spans every bucket")

	oos, err := svc.ListByStatus(ctx, domain.StatusOutOfStock)
	require.NoError(t, err)
	require.Len(t, oos, 1)
	assert.Equal(t, "p2", oos[0].ProductID)
}

func TestDeactivate(t *testing.T) {
	svc, _ := newTestService()
	rec, err := svc.CreateRecord(context.Background(), validCreate())
	require.NoError(t, err)

	off, err := svc.Deactivate(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.False(t, off.Active)

	listed, err := svc.ListByStatus(context.Background(), domain.StatusSufficient)
	require.NoError(t, err)
	assert.Empty(t, listed, "deactivated records drop out of listings")
}
