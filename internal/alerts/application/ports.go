package application

import (
	"context"
	"time"

	invdom "github.com/emekauja/shopflow/internal/inventory/domain"
)

type NotificationKind string

const (
	KindLowStock      NotificationKind = "low_stock"
	KindCriticalStock NotificationKind = "critical_stock"
	KindReport        NotificationKind = "report"
)

// Notifier hands alerts to the notification subsystem. Delivery failures are
// per-record concerns for the sweeper, never sweep-fatal.
type Notifier interface {
	Notify(ctx context.Context, kind NotificationKind, payload any) error
}

// Ledger is the slice of the stock ledger the sweeper reads and stamps.
type Ledger interface {
	ListByStatus(ctx context.Context, status invdom.StockStatus) ([]invdom.StockRecord, error)
	MarkAlerted(ctx context.Context, recordID string, at time.Time) error
}
