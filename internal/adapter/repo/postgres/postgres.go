// Package postgres provides PostgreSQL database adapters.
//
// It implements the product, stock and order repository ports on top of a
// minimal pgx pool interface so the repos stay trivially testable. Stock
// mutations use optimistic concurrency: every write is conditional on the
// observed version and bumps it by exactly one.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is a minimal subset of pgxpool used by the repos for easy testing.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Schema is the DDL for the service's tables. Applied idempotently at
// startup; a dedicated migration tool is overkill for three tables.
const Schema = `
CREATE TABLE IF NOT EXISTS products (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	price       DOUBLE PRECISION NOT NULL,
	images      TEXT[] NOT NULL DEFAULT '{}',
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS stocks (
	id         TEXT PRIMARY KEY,
	product_id TEXT NOT NULL UNIQUE REFERENCES products(id),
	quantity   BIGINT NOT NULL CHECK (quantity >= 0),
	version    BIGINT NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS orders (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	product_id        TEXT NOT NULL,
	stock_id          TEXT NOT NULL,
	quantity          BIGINT NOT NULL CHECK (quantity >= 1),
	price_at_purchase DOUBLE PRECISION NOT NULL,
	status            TEXT NOT NULL,
	is_vip            BOOLEAN NOT NULL DEFAULT FALSE,
	failure_reason    TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_user_created ON orders (user_id, created_at DESC);
`

// Migrate applies the schema.
func Migrate(ctx context.Context, pool PgxPool) error {
	_, err := pool.Exec(ctx, Schema)
	return err
}
