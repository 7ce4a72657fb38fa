package application

import (
	"context"
	"time"

	"github.com/emekauja/shopflow/internal/inventory/domain"
)

// StockRepository owns the atomicity of stock mutations: Decrement is a
// single conditional update and Restock a single transaction per record.
type StockRepository interface {
	Create(ctx context.Context, rec domain.StockRecord) (domain.StockRecord, error)
	Get(ctx context.Context, recordID string) (domain.StockRecord, error)
	Restock(ctx context.Context, recordID string, entry domain.RestockEntry) (domain.StockRecord, error)
	Decrement(ctx context.Context, productID string, quantity int) (domain.StockRecord, error)
	ListByStatus(ctx context.Context, status domain.StockStatus) ([]domain.StockRecord, error)
	SetActive(ctx context.Context, recordID string, active bool) (domain.StockRecord, error)
	MarkAlerted(ctx context.Context, recordID string, at time.Time) error
}
