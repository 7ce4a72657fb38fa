package storage

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddl = `
CREATE TABLE IF NOT EXISTS products (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	price_cents BIGINT NOT NULL CHECK (price_cents >= 0),
	regions     TEXT[] NOT NULL DEFAULT '{}',
	is_active   BOOLEAN NOT NULL DEFAULT TRUE,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS stock_records (
	id                 TEXT PRIMARY KEY,
	product_id         TEXT NOT NULL UNIQUE,
	current_stock      INT NOT NULL CHECK (current_stock >= 0),
	minimum_stock      INT NOT NULL CHECK (minimum_stock >= 0),
	maximum_stock      INT NOT NULL CHECK (maximum_stock >= 1),
	alert_threshold    INT NOT NULL CHECK (alert_threshold >= 0),
	alert_frequency    TEXT NOT NULL DEFAULT 'daily',
	last_alert_sent_at TIMESTAMPTZ,
	last_restocked_at  TIMESTAMPTZ,
	is_active          BOOLEAN NOT NULL DEFAULT TRUE,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS restock_history (
	id         BIGSERIAL PRIMARY KEY,
	record_id  TEXT NOT NULL REFERENCES stock_records(id),
	quantity   INT NOT NULL,
	cost_cents BIGINT NOT NULL,
	actor      TEXT NOT NULL,
	note       TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE SEQUENCE IF NOT EXISTS order_number_seq;

CREATE TABLE IF NOT EXISTS orders (
	id                 TEXT PRIMARY KEY,
	order_number       TEXT NOT NULL UNIQUE,
	idempotency_key    TEXT NOT NULL UNIQUE,
	customer_name      TEXT NOT NULL,
	customer_phone     TEXT NOT NULL DEFAULT '',
	customer_address   TEXT NOT NULL DEFAULT '',
	customer_region    TEXT NOT NULL,
	subtotal_cents     BIGINT NOT NULL,
	total_cents        BIGINT NOT NULL,
	payment_status     TEXT NOT NULL DEFAULT 'pending',
	fulfillment_status TEXT NOT NULL DEFAULT 'new',
	created_at         TIMESTAMPTZ NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS order_items (
	order_id         TEXT NOT NULL REFERENCES orders(id),
	product_id       TEXT NOT NULL,
	quantity         INT NOT NULL CHECK (quantity >= 1),
	unit_price_cents BIGINT NOT NULL,
	PRIMARY KEY (order_id, product_id)
);

CREATE TABLE IF NOT EXISTS order_notes (
	id         BIGSERIAL PRIMARY KEY,
	order_id   TEXT NOT NULL REFERENCES orders(id),
	actor      TEXT NOT NULL,
	note       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS outbox (
	id             BIGSERIAL PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id   TEXT NOT NULL,
	type           TEXT NOT NULL,
	payload        JSONB NOT NULL,
	headers        JSONB,
	traceparent    TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'pending',
	relay_id       TEXT,
	lease_until    TIMESTAMPTZ,
	retry_count    INT NOT NULL DEFAULT 0,
	last_error     TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS outbox_pending_idx ON outbox (id) WHERE status = 'pending';
`

// Migrate applies the schema. Every statement is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, ddl)
	return err
}
