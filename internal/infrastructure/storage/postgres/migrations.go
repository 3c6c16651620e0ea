package postgres

import (
	"context"
	"fmt"

	"pharmstock/pkg/logger"
)

// Migrate creates the schema. Statements are idempotent so the server can
// run them on every start.
func Migrate(ctx context.Context, pool *Pool) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS ledger_batches (
			id UUID PRIMARY KEY,
			barcode TEXT NOT NULL,
			branch TEXT NOT NULL,
			net_price NUMERIC(18,4) NOT NULL,
			out_price NUMERIC(18,4) NOT NULL,
			quantity BIGINT NOT NULL CHECK (quantity >= 0),
			expire_date DATE NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (barcode, branch, net_price, out_price, expire_date)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_batches_lookup
			ON ledger_batches (barcode, branch, net_price, expire_date);`,

		`CREATE TABLE IF NOT EXISTS ledger_deductions (
			line_id UUID PRIMARY KEY,
			recorder_id UUID NOT NULL,
			recorder_type TEXT NOT NULL,
			barcode TEXT NOT NULL,
			branch TEXT NOT NULL,
			net_price NUMERIC(18,4) NOT NULL,
			out_price NUMERIC(18,4) NOT NULL,
			expire_date DATE NOT NULL,
			quantity BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_deductions_recorder
			ON ledger_deductions (recorder_id);`,

		`CREATE TABLE IF NOT EXISTS bills (
			id UUID PRIMARY KEY,
			number TEXT NOT NULL UNIQUE,
			date TIMESTAMPTZ NOT NULL,
			kind TEXT NOT NULL,
			counterparty_id TEXT NOT NULL,
			branch TEXT NOT NULL,
			payment_status TEXT NOT NULL DEFAULT '',
			is_consignment BOOLEAN NOT NULL DEFAULT FALSE,
			total_amount NUMERIC(18,4) NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			created_by TEXT NOT NULL DEFAULT '',
			updated_by TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_bills_counterparty
			ON bills (counterparty_id, kind);`,

		`CREATE TABLE IF NOT EXISTS bill_lines (
			line_id UUID PRIMARY KEY,
			bill_id UUID NOT NULL REFERENCES bills(id),
			line_no INTEGER NOT NULL,
			barcode TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			quantity BIGINT NOT NULL,
			net_price NUMERIC(18,4) NOT NULL,
			out_price NUMERIC(18,4) NOT NULL,
			expire_date DATE NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_bill_lines_bill ON bill_lines (bill_id);`,

		`CREATE TABLE IF NOT EXISTS bill_returns (
			id UUID PRIMARY KEY,
			bill_number TEXT NOT NULL,
			counterparty_id TEXT NOT NULL,
			branch TEXT NOT NULL,
			barcode TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			quantity BIGINT NOT NULL,
			price NUMERIC(18,4) NOT NULL,
			is_consignment BOOLEAN NOT NULL DEFAULT FALSE,
			payment_status TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			created_by TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_bill_returns_bill
			ON bill_returns (bill_number, barcode);`,
		`CREATE INDEX IF NOT EXISTS idx_bill_returns_counterparty
			ON bill_returns (counterparty_id);`,

		`CREATE TABLE IF NOT EXISTS transports (
			id UUID PRIMARY KEY,
			number TEXT NOT NULL UNIQUE,
			date TIMESTAMPTZ NOT NULL,
			from_branch TEXT NOT NULL,
			to_branch TEXT NOT NULL,
			status TEXT NOT NULL,
			sender_id TEXT NOT NULL DEFAULT '',
			sent_at TIMESTAMPTZ NOT NULL,
			receiver_id TEXT NOT NULL DEFAULT '',
			received_at TIMESTAMPTZ,
			notes TEXT NOT NULL DEFAULT '',
			receiver_notes TEXT NOT NULL DEFAULT '',
			version INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			created_by TEXT NOT NULL DEFAULT '',
			updated_by TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transports_status ON transports (status);`,

		`CREATE TABLE IF NOT EXISTS transport_items (
			line_id UUID PRIMARY KEY,
			transport_id UUID NOT NULL REFERENCES transports(id),
			line_no INTEGER NOT NULL,
			barcode TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			quantity BIGINT NOT NULL,
			net_price NUMERIC(18,4) NOT NULL,
			out_price NUMERIC(18,4) NOT NULL,
			expire_date DATE NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transport_items_transport
			ON transport_items (transport_id);`,

		`CREATE TABLE IF NOT EXISTS payments (
			id UUID PRIMARY KEY,
			number TEXT NOT NULL UNIQUE,
			date TIMESTAMPTZ NOT NULL,
			counterparty_id TEXT NOT NULL,
			payment_date TIMESTAMPTZ NOT NULL,
			hardcopy_bill_number TEXT NOT NULL DEFAULT '',
			sold_total NUMERIC(18,4) NOT NULL,
			return_total NUMERIC(18,4) NOT NULL,
			net_amount NUMERIC(18,4) NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			created_by TEXT NOT NULL DEFAULT '',
			updated_by TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_payments_counterparty
			ON payments (counterparty_id);`,

		`CREATE TABLE IF NOT EXISTS payment_bills (
			payment_id UUID NOT NULL REFERENCES payments(id),
			bill_number TEXT NOT NULL,
			PRIMARY KEY (payment_id, bill_number)
		);`,

		`CREATE TABLE IF NOT EXISTS payment_returns (
			payment_id UUID NOT NULL REFERENCES payments(id),
			return_id UUID NOT NULL,
			PRIMARY KEY (payment_id, return_id)
		);`,

		`CREATE TABLE IF NOT EXISTS payment_claims (
			kind TEXT NOT NULL,
			ref TEXT NOT NULL,
			payment_id UUID NOT NULL,
			PRIMARY KEY (kind, ref)
		);`,

		`CREATE TABLE IF NOT EXISTS sys_sequences (
			key TEXT PRIMARY KEY,
			current_val BIGINT NOT NULL DEFAULT 0
		);`,

		`CREATE TABLE IF NOT EXISTS sys_audit (
			id UUID PRIMARY KEY,
			entity_type TEXT NOT NULL,
			entity_id UUID NOT NULL,
			action TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			changes JSONB,
			changes_compressed BYTEA,
			compression_algo TEXT NOT NULL DEFAULT 'none',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sys_audit_entity
			ON sys_audit (entity_type, entity_id);`,
	}

	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	logger.Info(ctx, "database schema up to date", "statements", len(schema))
	return nil
}
