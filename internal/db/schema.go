package db

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		business_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		role TEXT NOT NULL,
		password_hash TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		deleted_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS medicines (
		id BIGSERIAL PRIMARY KEY,
		business_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		base_unit TEXT NOT NULL DEFAULT '',
		unit_price NUMERIC(14,2) NOT NULL,
		unit_cost NUMERIC(14,2) NOT NULL,
		quantity BIGINT NOT NULL DEFAULT 0 CHECK (quantity >= 0),
		reorder_level BIGINT NOT NULL DEFAULT 0,
		unit_conversions JSONB NOT NULL DEFAULT '[]',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS medicines_business_name_uniq ON medicines (business_id, lower(name))`,
	`CREATE TABLE IF NOT EXISTS stock_movements (
		id BIGSERIAL PRIMARY KEY,
		business_id BIGINT NOT NULL,
		medicine_id BIGINT NOT NULL REFERENCES medicines(id),
		medicine_name TEXT NOT NULL,
		type TEXT NOT NULL,
		quantity BIGINT NOT NULL,
		reference_type TEXT,
		reference_id BIGINT,
		actor_id BIGINT,
		actor_name TEXT NOT NULL,
		previous_stock BIGINT NOT NULL,
		new_stock BIGINT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS stock_movements_medicine_idx ON stock_movements (business_id, medicine_id, id DESC)`,
	`CREATE TABLE IF NOT EXISTS sales (
		id BIGSERIAL PRIMARY KEY,
		business_id BIGINT NOT NULL,
		transaction_code TEXT NOT NULL UNIQUE,
		cashier_id BIGINT,
		cashier_name TEXT NOT NULL,
		subtotal NUMERIC(14,2) NOT NULL,
		discount NUMERIC(14,2) NOT NULL DEFAULT 0,
		tax NUMERIC(14,2) NOT NULL DEFAULT 0,
		total NUMERIC(14,2) NOT NULL,
		profit NUMERIC(14,2) NOT NULL,
		cost_of_goods NUMERIC(14,2) NOT NULL,
		payment_method TEXT NOT NULL,
		customer_name TEXT NOT NULL DEFAULT '',
		customer_phone TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS sales_business_idx ON sales (business_id, id DESC)`,
	`CREATE TABLE IF NOT EXISTS sale_items (
		id BIGSERIAL PRIMARY KEY,
		sale_id BIGINT NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
		medicine_id BIGINT NOT NULL,
		medicine_name TEXT NOT NULL,
		quantity BIGINT NOT NULL,
		unit_label TEXT NOT NULL DEFAULT '',
		base_quantity BIGINT NOT NULL,
		unit_price NUMERIC(14,2) NOT NULL,
		unit_cost NUMERIC(14,2) NOT NULL,
		subtotal NUMERIC(14,2) NOT NULL,
		cost NUMERIC(14,2) NOT NULL,
		profit NUMERIC(14,2) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS credit_sales (
		id BIGSERIAL PRIMARY KEY,
		business_id BIGINT NOT NULL,
		sale_id BIGINT NOT NULL UNIQUE REFERENCES sales(id),
		customer_name TEXT NOT NULL,
		customer_phone TEXT NOT NULL,
		total_amount NUMERIC(14,2) NOT NULL,
		paid_amount NUMERIC(14,2) NOT NULL DEFAULT 0,
		balance_amount NUMERIC(14,2) NOT NULL CHECK (balance_amount >= 0),
		status TEXT NOT NULL,
		due_date DATE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS credit_payments (
		id BIGSERIAL PRIMARY KEY,
		credit_sale_id BIGINT NOT NULL REFERENCES credit_sales(id) ON DELETE CASCADE,
		amount NUMERIC(14,2) NOT NULL CHECK (amount > 0),
		method TEXT NOT NULL,
		received_by_id BIGINT,
		received_by_name TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS idempotency_keys (
		key TEXT PRIMARY KEY,
		expires_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idempotency_keys_expiry_idx ON idempotency_keys (expires_at)`,
}

// Migrate creates the tables the ledger needs. Statements are idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := p.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i+1, err)
		}
	}
	return nil
}
