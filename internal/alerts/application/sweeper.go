package application

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	invdom "github.com/emekauja/shopflow/internal/inventory/domain"
	"github.com/emekauja/shopflow/pkg/metrics"
)

type SweepReport struct {
	Skipped   bool      `json:"skipped"`
	StartedAt time.Time `json:"started_at"`
	Critical  int       `json:"critical"`
	Low       int       `json:"low"`
	Alerted   int       `json:"alerted"`
	Throttled int       `json:"throttled"`
	Failed    int       `json:"failed"`
}

type StockReport struct {
	TotalActive     int             `json:"total_active"`
	LowCount        int             `json:"low_count"`
	CriticalCount   int             `json:"critical_count"`
	OutOfStockCount int             `json:"out_of_stock_count"`
	Low             []ReportedStock `json:"low"`
	Critical        []ReportedStock `json:"critical"`
	OutOfStock      []ReportedStock `json:"out_of_stock"`
}

type ReportedStock struct {
	RecordID       string `json:"record_id"`
	ProductID      string `json:"product_id"`
	CurrentStock   int    `json:"current_stock"`
	MinimumStock   int    `json:"minimum_stock"`
	AlertThreshold int    `json:"alert_threshold"`
}

type alertPayload struct {
	RecordID       string `json:"record_id"`
	ProductID      string `json:"product_id"`
	CurrentStock   int    `json:"current_stock"`
	MinimumStock   int    `json:"minimum_stock"`
	AlertThreshold int    `json:"alert_threshold"`
	Status         string `json:"status"`
}

type Sweeper struct {
	log           *slog.Logger
	ledger        Ledger
	notifier      Notifier
	interval      time.Duration
	notifyTimeout time.Duration
	running       atomic.Bool
	now           func() time.Time
}

func NewSweeper(log *slog.Logger, ledger Ledger, notifier Notifier, interval, notifyTimeout time.Duration) *Sweeper {
	return &Sweeper{
		log:           log,
		ledger:        ledger,
		notifier:      notifier,
		interval:      interval,
		notifyTimeout: notifyTimeout,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Run triggers a sweep on the configured interval until ctx is cancelled. An
// in-flight sweep is allowed to finish.
func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopping")
			return nil
		case <-t.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.log.Error("scheduled sweep failed", "err", err)
			}
		}
	}
}

// sweepBudget bounds a single pass once it has detached from the caller.
const sweepBudget = time.Minute

// Sweep scans critical and low records, notifies each due record at most once
// and stamps lastAlertSentAt. Overlapping invocations are no-ops: the second
// caller gets a report with Skipped set. A pass that has started runs to
// completion even when the caller's context is cancelled mid-sweep; it is
// bounded by sweepBudget instead.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn("sweep trigger ignored, already running")
		return SweepReport{Skipped: true}, nil
	}
	defer s.running.Store(false)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sweepBudget)
	defer cancel()

	report := SweepReport{StartedAt: s.now()}

	critical, err := s.ledger.ListByStatus(ctx, invdom.StatusCritical)
	if err != nil {
		return report, err
	}
	low, err := s.ledger.ListByStatus(ctx, invdom.StatusLow)
	if err != nil {
		return report, err
	}

	// A record classified critical never re-appears in the low bucket; the
	// status buckets are disjoint by classification, but guard anyway in case
	// stock moved between the two reads.
	inCritical := make(map[string]bool, len(critical))
	for _, rec := range critical {
		inCritical[rec.ID] = true
	}

	report.Critical = len(critical)
	for _, rec := range critical {
		s.alertOne(ctx, rec, KindCriticalStock, &report)
	}
	for _, rec := range low {
		if inCritical[rec.ID] {
			continue
		}
		report.Low++
		s.alertOne(ctx, rec, KindLowStock, &report)
	}

	metrics.SweepRuns.Inc()
	s.log.Info("sweep finished", "critical", report.Critical, "low", report.Low,
		"alerted", report.Alerted, "throttled", report.Throttled, "failed", report.Failed)
	return report, nil
}

func (s *Sweeper) alertOne(ctx context.Context, rec invdom.StockRecord, kind NotificationKind, report *SweepReport) {
	now := s.now()
	if !invdom.ShouldAlert(rec, now) {
		report.Throttled++
		return
	}

	notifyCtx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
	defer cancel()
	err := s.notifier.Notify(notifyCtx, kind, alertPayload{
		RecordID:       rec.ID,
		ProductID:      rec.ProductID,
		CurrentStock:   rec.CurrentStock,
		MinimumStock:   rec.MinimumStock,
		AlertThreshold: rec.AlertThreshold,
		Status:         string(invdom.Classify(rec)),
	})
	if err != nil {
		report.Failed++
		metrics.AlertFailures.Inc()
		s.log.Error("alert notify failed", "record_id", rec.ID, "product_id", rec.ProductID, "err", err)
		return
	}

	if err := s.ledger.MarkAlerted(ctx, rec.ID, now); err != nil {
		s.log.Error("mark alerted failed", "record_id", rec.ID, "err", err)
	}
	report.Alerted++
	metrics.AlertsSent.Inc()
}

// GenerateReport is a pure read over the ledger, safe to call concurrently
// with a running sweep.
func (s *Sweeper) GenerateReport(ctx context.Context) (StockReport, error) {
	var report StockReport

	buckets := []struct {
		status invdom.StockStatus
		dest   *[]ReportedStock
		count  *int
	}{
		{invdom.StatusLow, &report.Low, &report.LowCount},
		{invdom.StatusCritical, &report.Critical, &report.CriticalCount},
		{invdom.StatusOutOfStock, &report.OutOfStock, &report.OutOfStockCount},
	}
	for _, b := range buckets {
		recs, err := s.ledger.ListByStatus(ctx, b.status)
		if err != nil {
			return StockReport{}, err
		}
		for _, rec := range recs {
			*b.dest = append(*b.dest, ReportedStock{
				RecordID:       rec.ID,
				ProductID:      rec.ProductID,
				CurrentStock:   rec.CurrentStock,
				MinimumStock:   rec.MinimumStock,
				AlertThreshold: rec.AlertThreshold,
			})
		}
		*b.count = len(recs)
		report.TotalActive += len(recs)
	}

	sufficient, err := s.ledger.ListByStatus(ctx, invdom.StatusSufficient)
	if err != nil {
		return StockReport{}, err
	}
	report.TotalActive += len(sufficient)
	return report, nil
}

