package domain

import "time"

type StockStatus string

const (
	StatusSufficient StockStatus = "sufficient"
	StatusLow        StockStatus = "low"
	StatusCritical   StockStatus = "critical"
	StatusOutOfStock StockStatus = "out_of_stock"
)

type AlertFrequency string

const (
	AlertImmediate AlertFrequency = "immediate"
	AlertDaily     AlertFrequency = "daily"
	AlertWeekly    AlertFrequency = "weekly"
	AlertMonthly   AlertFrequency = "monthly"
)

// Window is the minimum gap between alerts for the frequency.
func (f AlertFrequency) Window() time.Duration {
	switch f {
	case AlertDaily:
		return 24 * time.Hour
	case AlertWeekly:
		return 7 * 24 * time.Hour
	case AlertMonthly:
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}

func ValidFrequency(f AlertFrequency) bool {
	switch f {
	case AlertImmediate, AlertDaily, AlertWeekly, AlertMonthly:
		return true
	}
	return false
}

// RestockHistoryCap bounds the retained restock log per record.
const RestockHistoryCap = 50

type RestockEntry struct {
	Quantity  int
	CostCents int64
	Actor     string
	Note      string
	At        time.Time
}

// StockRecord is the inventory counter and alert settings for one product.
// Exactly one record exists per product.
type StockRecord struct {
	ID              string
	ProductID       string
	CurrentStock    int
	MinimumStock    int
	MaximumStock    int
	AlertThreshold  int
	AlertFrequency  AlertFrequency
	LastAlertSentAt *time.Time
	LastRestockedAt *time.Time
	RestockHistory  []RestockEntry
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Classify buckets a record by remaining stock. Precedence is fixed:
// out_of_stock, then critical, then low.
func Classify(r StockRecord) StockStatus {
	switch {
	case r.CurrentStock == 0:
		return StatusOutOfStock
	case r.CurrentStock <= r.AlertThreshold:
		return StatusCritical
	case r.CurrentStock <= r.MinimumStock:
		return StatusLow
	default:
		return StatusSufficient
	}
}

// ShouldAlert reports whether the record's frequency window has elapsed since
// the last alert. A record with no prior alert is always due.
func ShouldAlert(r StockRecord, now time.Time) bool {
	if r.LastAlertSentAt == nil {
		return true
	}
	return now.Sub(*r.LastAlertSentAt) >= r.AlertFrequency.Window()
}

// AppendRestock appends e and trims the log to the most recent
// RestockHistoryCap entries, preserving order.
func AppendRestock(history []RestockEntry, e RestockEntry) []RestockEntry {
	history = append(history, e)
	if n := len(history); n > RestockHistoryCap {
		history = history[n-RestockHistoryCap:]
	}
	return history
}
