package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emekauja/shopflow/internal/inventory/application"
	"github.com/emekauja/shopflow/internal/inventory/domain"
)

const uniqueViolation = "23505"

const recordColumns = `id, product_id, current_stock, minimum_stock, maximum_stock,
	alert_threshold, alert_frequency, last_alert_sent_at, last_restocked_at,
	is_active, created_at, updated_at`

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) Create(ctx context.Context, rec domain.StockRecord) (domain.StockRecord, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO stock_records (id, product_id, current_stock, minimum_stock, maximum_stock,
			alert_threshold, alert_frequency, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, rec.ID, rec.ProductID, rec.CurrentStock, rec.MinimumStock, rec.MaximumStock,
		rec.AlertThreshold, rec.AlertFrequency, rec.Active, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.StockRecord{}, application.ErrAlreadyExists
		}
		return domain.StockRecord{}, err
	}
	return rec, nil
}

func (r *Repository) Get(ctx context.Context, recordID string) (domain.StockRecord, error) {
	rec, err := r.scanOne(r.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM stock_records WHERE id=$1`, recordID))
	if err != nil {
		return domain.StockRecord{}, err
	}
	rec.RestockHistory, err = r.loadHistory(ctx, recordID)
	if err != nil {
		return domain.StockRecord{}, err
	}
	return rec, nil
}

// Restock increments stock, appends the history entry, and trims the log to
// the cap, all in one transaction so concurrent restocks never lose updates.
func (r *Repository) Restock(ctx context.Context, recordID string, entry domain.RestockEntry) (domain.StockRecord, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.StockRecord{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	rec, err := r.scanOne(tx.QueryRow(ctx, `
		UPDATE stock_records
		SET current_stock = current_stock + $2, last_restocked_at = $3, updated_at = $3
		WHERE id = $1
		RETURNING `+recordColumns, recordID, entry.Quantity, entry.At))
	if err != nil {
		return domain.StockRecord{}, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO restock_history (record_id, quantity, cost_cents, actor, note, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, recordID, entry.Quantity, entry.CostCents, entry.Actor, entry.Note, entry.At)
	if err != nil {
		return domain.StockRecord{}, err
	}

	_, err = tx.Exec(ctx, `
		DELETE FROM restock_history
		WHERE record_id = $1 AND id NOT IN (
			SELECT id FROM restock_history WHERE record_id = $1 ORDER BY id DESC LIMIT $2
		)
	`, recordID, domain.RestockHistoryCap)
	if err != nil {
		return domain.StockRecord{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.StockRecord{}, err
	}

	rec.RestockHistory, err = r.loadHistory(ctx, recordID)
	if err != nil {
		return domain.StockRecord{}, err
	}
	return rec, nil
}

// Decrement subtracts quantity only when enough stock remains. The guard and
// the subtract are one conditional UPDATE, so concurrent orders can never
// drive the counter negative.
func (r *Repository) Decrement(ctx context.Context, productID string, quantity int) (domain.StockRecord, error) {
	rec, err := r.scanOne(r.pool.QueryRow(ctx, `
		UPDATE stock_records
		SET current_stock = current_stock - $2, updated_at = $3
		WHERE product_id = $1 AND is_active AND current_stock >= $2
		RETURNING `+recordColumns, productID, quantity, time.Now().UTC()))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, application.ErrRecordNotFound) {
		return domain.StockRecord{}, err
	}

	// No row matched: distinguish a missing record from a short one.
	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM stock_records WHERE product_id=$1 AND is_active)`,
		productID).Scan(&exists); err != nil {
		return domain.StockRecord{}, err
	}
	if !exists {
		return domain.StockRecord{}, application.ErrRecordNotFound
	}
	return domain.StockRecord{}, application.ErrInsufficientStock
}

// ListByStatus returns active records in one classification bucket; the empty
// status returns every active record.
func (r *Repository) ListByStatus(ctx context.Context, status domain.StockStatus) ([]domain.StockRecord, error) {
	q := `SELECT ` + recordColumns + ` FROM stock_records WHERE is_active`
	switch status {
	case domain.StatusOutOfStock:
		q += ` AND current_stock = 0`
	case domain.StatusCritical:
		q += ` AND current_stock > 0 AND current_stock <= alert_threshold`
	case domain.StatusLow:
		q += ` AND current_stock > alert_threshold AND current_stock <= minimum_stock`
	case domain.StatusSufficient:
		q += ` AND current_stock > minimum_stock`
	}

	rows, err := r.pool.Query(ctx, q+` ORDER BY product_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []domain.StockRecord
	for rows.Next() {
		rec, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (r *Repository) SetActive(ctx context.Context, recordID string, active bool) (domain.StockRecord, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `
		UPDATE stock_records SET is_active = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+recordColumns, recordID, active, time.Now().UTC()))
}

func (r *Repository) MarkAlerted(ctx context.Context, recordID string, at time.Time) error {
	ct, err := r.pool.Exec(ctx,
		`UPDATE stock_records SET last_alert_sent_at = $2, updated_at = $2 WHERE id = $1`, recordID, at)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return application.ErrRecordNotFound
	}
	return nil
}

func (r *Repository) scanOne(row pgx.Row) (domain.StockRecord, error) {
	var rec domain.StockRecord
	err := row.Scan(&rec.ID, &rec.ProductID, &rec.CurrentStock, &rec.MinimumStock, &rec.MaximumStock,
		&rec.AlertThreshold, &rec.AlertFrequency, &rec.LastAlertSentAt, &rec.LastRestockedAt,
		&rec.Active, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.StockRecord{}, application.ErrRecordNotFound
	}
	if err != nil {
		return domain.StockRecord{}, err
	}
	return rec, nil
}

func (r *Repository) loadHistory(ctx context.Context, recordID string) ([]domain.RestockEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT quantity, cost_cents, actor, note, created_at
		FROM (
			SELECT id, quantity, cost_cents, actor, note, created_at
			FROM restock_history WHERE record_id = $1
			ORDER BY id DESC LIMIT $2
		) recent
		ORDER BY id ASC
	`, recordID, domain.RestockHistoryCap)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.RestockEntry
	for rows.Next() {
		var e domain.RestockEntry
		if err := rows.Scan(&e.Quantity, &e.CostCents, &e.Actor, &e.Note, &e.At); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
