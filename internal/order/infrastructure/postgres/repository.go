package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emekauja/shopflow/internal/order/application"
	"github.com/emekauja/shopflow/internal/order/domain"
)

const uniqueViolation = "23505"

const orderColumns = `id, order_number, idempotency_key, customer_name, customer_phone,
	customer_address, customer_region, subtotal_cents, total_cents,
	payment_status, fulfillment_status, created_at, updated_at`

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) CreateWithOutbox(ctx context.Context, o domain.Order, eventType string, payload []byte, traceparent string) (domain.Order, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Order{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// Order numbers come from a sequence so concurrent inserts never collide.
	var seq int64
	if err := tx.QueryRow(ctx, `SELECT nextval('order_number_seq')`).Scan(&seq); err != nil {
		return domain.Order{}, err
	}
	o.OrderNumber = fmt.Sprintf("ORD-%06d", seq)

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, order_number, idempotency_key, customer_name, customer_phone,
			customer_address, customer_region, subtotal_cents, total_cents,
			payment_status, fulfillment_status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, o.ID, o.OrderNumber, o.IdempotencyKey, o.Customer.Name, o.Customer.Phone,
		o.Customer.Address, o.Customer.Region, o.SubtotalCents, o.TotalCents,
		o.PaymentStatus, o.FulfillmentStatus, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.Order{}, application.ErrDuplicateIdempotencyKey
		}
		return domain.Order{}, err
	}

	batch := &pgx.Batch{}
	for _, item := range o.Items {
		batch.Queue(`INSERT INTO order_items (order_id, product_id, quantity, unit_price_cents)
			VALUES ($1,$2,$3,$4)`,
			o.ID, item.ProductID, item.Quantity, item.UnitPriceCents)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return domain.Order{}, err
	}

	if err := insertOutbox(ctx, tx, "order", o.ID, eventType, payload, traceparent); err != nil {
		return domain.Order{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Order, error) {
	return r.getBy(ctx, `id=$1`, id)
}

func (r *Repository) GetByIdempotencyKey(ctx context.Context, key string) (domain.Order, error) {
	return r.getBy(ctx, `idempotency_key=$1`, key)
}

func (r *Repository) UpdateFulfillmentWithOutbox(ctx context.Context, orderID string, from, to domain.FulfillmentStatus, note *domain.Note, eventType string, payload []byte, traceparent string) (domain.Order, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Order{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// Guarded on the expected current status so a racing admin update loses
	// cleanly instead of skipping a state.
	ct, err := tx.Exec(ctx, `
		UPDATE orders SET fulfillment_status=$2, updated_at=$3
		WHERE id=$1 AND fulfillment_status=$4
	`, orderID, to, time.Now().UTC(), from)
	if err != nil {
		return domain.Order{}, err
	}
	if ct.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id=$1)`, orderID).Scan(&exists); err != nil {
			return domain.Order{}, err
		}
		if !exists {
			return domain.Order{}, application.ErrOrderNotFound
		}
		return domain.Order{}, application.ErrInvalidTransition
	}

	if note != nil {
		_, err = tx.Exec(ctx, `INSERT INTO order_notes (order_id, actor, note, created_at) VALUES ($1,$2,$3,$4)`,
			orderID, note.Actor, note.Text, note.At)
		if err != nil {
			return domain.Order{}, err
		}
	}

	if err := insertOutbox(ctx, tx, "order", orderID, eventType, payload, traceparent); err != nil {
		return domain.Order{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Order{}, err
	}
	return r.Get(ctx, orderID)
}

func (r *Repository) UpdatePaymentStatus(ctx context.Context, orderID string, status domain.PaymentStatus) (domain.Order, error) {
	ct, err := r.pool.Exec(ctx, `UPDATE orders SET payment_status=$2, updated_at=$3 WHERE id=$1`,
		orderID, status, time.Now().UTC())
	if err != nil {
		return domain.Order{}, err
	}
	if ct.RowsAffected() == 0 {
		return domain.Order{}, application.ErrOrderNotFound
	}
	return r.Get(ctx, orderID)
}

func (r *Repository) getBy(ctx context.Context, cond string, arg any) (domain.Order, error) {
	var o domain.Order
	err := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+cond, arg).
		Scan(&o.ID, &o.OrderNumber, &o.IdempotencyKey, &o.Customer.Name, &o.Customer.Phone,
			&o.Customer.Address, &o.Customer.Region, &o.SubtotalCents, &o.TotalCents,
			&o.PaymentStatus, &o.FulfillmentStatus, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, application.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT product_id, quantity, unit_price_cents FROM order_items WHERE order_id=$1`, o.ID)
	if err != nil {
		return domain.Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item domain.LineItem
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.UnitPriceCents); err != nil {
			return domain.Order{}, err
		}
		o.Items = append(o.Items, item)
	}
	if err := rows.Err(); err != nil {
		return domain.Order{}, err
	}

	noteRows, err := r.pool.Query(ctx,
		`SELECT actor, note, created_at FROM order_notes WHERE order_id=$1 ORDER BY id`, o.ID)
	if err != nil {
		return domain.Order{}, err
	}
	defer noteRows.Close()
	for noteRows.Next() {
		var n domain.Note
		if err := noteRows.Scan(&n.Actor, &n.Text, &n.At); err != nil {
			return domain.Order{}, err
		}
		o.Notes = append(o.Notes, n)
	}
	return o, noteRows.Err()
}

func insertOutbox(ctx context.Context, tx pgx.Tx, aggregateType, aggregateID, eventType string, payload []byte, traceparent string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status)
		VALUES ($1,$2,$3,$4,$5,$6,'pending')
	`, aggregateType, aggregateID, eventType, payload, map[string]string{}, traceparent)
	return err
}
