package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/emekauja/shopflow/internal/inventory/domain"
)

var (
	ErrAlreadyExists     = errors.New("stock record already exists")
	ErrRecordNotFound    = errors.New("stock record not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidArgument   = errors.New("invalid argument")
)

type Service struct {
	log  *slog.Logger
	repo StockRepository
}

func NewService(log *slog.Logger, repo StockRepository) *Service {
	return &Service{log: log, repo: repo}
}

type CreateRecordRequest struct {
	ProductID      string
	CurrentStock   int
	MinimumStock   int
	MaximumStock   int
	AlertThreshold int
	AlertFrequency domain.AlertFrequency
}

// CreateRecord registers the single stock record for a product. A second
// create for the same product fails with ErrAlreadyExists.
func (s *Service) CreateRecord(ctx context.Context, req CreateRecordRequest) (domain.StockRecord, error) {
	if req.ProductID == "" {
		return domain.StockRecord{}, fmt.Errorf("%w: product id is required", ErrInvalidArgument)
	}
	if req.CurrentStock < 0 || req.MinimumStock < 0 || req.AlertThreshold < 0 {
		return domain.StockRecord{}, fmt.Errorf("%w: stock levels must be non-negative", ErrInvalidArgument)
	}
	if req.MaximumStock < 1 || req.MaximumStock < req.MinimumStock {
		return domain.StockRecord{}, fmt.Errorf("%w: maximum stock must be at least 1 and not below minimum", ErrInvalidArgument)
	}
	if req.AlertFrequency == "" {
		req.AlertFrequency = domain.AlertDaily
	}
	if !domain.ValidFrequency(req.AlertFrequency) {
		return domain.StockRecord{}, fmt.Errorf("%w: unknown alert frequency %q", ErrInvalidArgument, req.AlertFrequency)
	}

	now := time.Now().UTC()
	rec := domain.StockRecord{
		ID:             uuid.NewString(),
		ProductID:      req.ProductID,
		CurrentStock:   req.CurrentStock,
		MinimumStock:   req.MinimumStock,
		MaximumStock:   req.MaximumStock,
		AlertThreshold: req.AlertThreshold,
		AlertFrequency: req.AlertFrequency,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	created, err := s.repo.Create(ctx, rec)
	if err != nil {
		return domain.StockRecord{}, err
	}
	s.log.Info("stock record created", "record_id", created.ID, "product_id", created.ProductID, "stock", created.CurrentStock)
	return created, nil
}

func (s *Service) Get(ctx context.Context, recordID string) (domain.StockRecord, error) {
	return s.repo.Get(ctx, recordID)
}

// Restock atomically adds quantity and appends to the restock history.
func (s *Service) Restock(ctx context.Context, recordID string, quantity int, costCents int64, actor, note string) (domain.StockRecord, error) {
	if quantity <= 0 {
		return domain.StockRecord{}, fmt.Errorf("%w: restock quantity must be positive", ErrInvalidArgument)
	}
	if costCents < 0 {
		return domain.StockRecord{}, fmt.Errorf("%w: restock cost must be non-negative", ErrInvalidArgument)
	}
	if actor == "" {
		return domain.StockRecord{}, fmt.Errorf("%w: actor is required", ErrInvalidArgument)
	}

	entry := domain.RestockEntry{
		Quantity:  quantity,
		CostCents: costCents,
		Actor:     actor,
		Note:      note,
		At:        time.Now().UTC(),
	}
	rec, err := s.repo.Restock(ctx, recordID, entry)
	if err != nil {
		return domain.StockRecord{}, err
	}
	s.log.Info("restocked", "record_id", rec.ID, "product_id", rec.ProductID, "quantity", quantity, "stock", rec.CurrentStock)
	return rec, nil
}

// Decrement removes quantity from the product's stock, failing with
// ErrInsufficientStock rather than underflowing. The check and the subtract
// are one conditional update at the storage layer.
func (s *Service) Decrement(ctx context.Context, productID string, quantity int) (domain.StockRecord, error) {
	if quantity <= 0 {
		return domain.StockRecord{}, fmt.Errorf("%w: decrement quantity must be positive", ErrInvalidArgument)
	}
	return s.repo.Decrement(ctx, productID, quantity)
}

// ListByStatus filters active records by classification bucket. The empty
// status lists every active record.
func (s *Service) ListByStatus(ctx context.Context, status domain.StockStatus) ([]domain.StockRecord, error) {
	switch status {
	case "", domain.StatusSufficient, domain.StatusLow, domain.StatusCritical, domain.StatusOutOfStock:
	default:
		return nil, fmt.Errorf("%w: unknown stock status %q", ErrInvalidArgument, status)
	}
	return s.repo.ListByStatus(ctx, status)
}

// Deactivate logically removes a record; history is kept.
func (s *Service) Deactivate(ctx context.Context, recordID string) (domain.StockRecord, error) {
	return s.repo.SetActive(ctx, recordID, false)
}

// MarkAlerted stamps lastAlertSentAt, used by the alert sweeper after a
// successful notification.
func (s *Service) MarkAlerted(ctx context.Context, recordID string, at time.Time) error {
	return s.repo.MarkAlerted(ctx, recordID, at)
}
