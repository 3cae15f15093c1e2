package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/escrow-hub/internal/escrow"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS escrow_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS vendors (
	account    TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	seq        BIGSERIAL
);

CREATE TABLE IF NOT EXISTS listings (
	id               BIGINT PRIMARY KEY,
	vendor           TEXT NOT NULL,
	available_amount BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
	id                   BIGINT PRIMARY KEY,
	buyer                TEXT NOT NULL,
	vendor               TEXT NOT NULL,
	amount               BIGINT NOT NULL,
	payment_verification TEXT,
	status               SMALLINT NOT NULL
);
`

// Postgres persists escrow state through a pgx connection pool. Every Apply
// is one database transaction.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing pool. Callers own the pool lifecycle.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Migrate creates the escrow tables if they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("apply postgres schema: %w", err)
	}
	return nil
}

func (p *Postgres) Load(ctx context.Context) (*escrow.Snapshot, error) {
	snap := &escrow.Snapshot{}

	var admin string
	err := p.pool.QueryRow(ctx, `SELECT value FROM escrow_meta WHERE key = 'admin'`).Scan(&admin)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("load admin record: %w", err)
	}
	snap.Admin = escrow.AccountID(admin)

	rows, err := p.pool.Query(ctx, `SELECT account FROM vendors ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("load vendors: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var account string
		if err := rows.Scan(&account); err != nil {
			return nil, fmt.Errorf("scan vendor: %w", err)
		}
		snap.Vendors = append(snap.Vendors, escrow.AccountID(account))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vendors: %w", err)
	}

	lrows, err := p.pool.Query(ctx, `SELECT id, vendor, available_amount FROM listings ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load listings: %w", err)
	}
	defer lrows.Close()
	for lrows.Next() {
		var l escrow.Listing
		var id, amount int64
		if err := lrows.Scan(&id, &l.Vendor, &amount); err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		l.ID = uint32(id)
		l.AvailableAmount = uint64(amount)
		snap.Listings = append(snap.Listings, l)
	}
	if err := lrows.Err(); err != nil {
		return nil, fmt.Errorf("iterate listings: %w", err)
	}

	orows, err := p.pool.Query(ctx, `SELECT id, buyer, vendor, amount, payment_verification, status FROM orders ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}
	defer orows.Close()
	for orows.Next() {
		var o escrow.Order
		var id, amount int64
		var verification sql.NullString
		var status int16
		if err := orows.Scan(&id, &o.Buyer, &o.Vendor, &amount, &verification, &status); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.ID = uint64(id)
		o.Amount = uint64(amount)
		o.Status = escrow.OrderStatus(status)
		if verification.Valid {
			v := verification.String
			o.PaymentVerification = &v
		}
		snap.Orders = append(snap.Orders, o)
	}
	if err := orows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	return snap, nil
}

func (p *Postgres) Apply(ctx context.Context, cs escrow.Changeset) error {
	if cs.Empty() {
		return nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if cs.Admin != nil {
		_, err := tx.Exec(ctx, `
			INSERT INTO escrow_meta (key, value) VALUES ('admin', $1)
			ON CONFLICT (key) DO UPDATE SET value = excluded.value
		`, string(*cs.Admin))
		if err != nil {
			return fmt.Errorf("upsert admin record: %w", err)
		}
	}

	for _, v := range cs.Vendors {
		_, err := tx.Exec(ctx, `
			INSERT INTO vendors (account) VALUES ($1)
			ON CONFLICT (account) DO NOTHING
		`, string(v))
		if err != nil {
			return fmt.Errorf("insert vendor %s: %w", v, err)
		}
	}

	for _, l := range cs.Listings {
		_, err := tx.Exec(ctx, `
			INSERT INTO listings (id, vendor, available_amount) VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET vendor = excluded.vendor, available_amount = excluded.available_amount
		`, int64(l.ID), string(l.Vendor), int64(l.AvailableAmount))
		if err != nil {
			return fmt.Errorf("upsert listing %d: %w", l.ID, err)
		}
	}

	for _, o := range cs.Orders {
		_, err := tx.Exec(ctx, `
			INSERT INTO orders (id, buyer, vendor, amount, payment_verification, status)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				buyer = excluded.buyer,
				vendor = excluded.vendor,
				amount = excluded.amount,
				payment_verification = excluded.payment_verification,
				status = excluded.status
		`, int64(o.ID), string(o.Buyer), string(o.Vendor), int64(o.Amount), o.PaymentVerification, int16(o.Status))
		if err != nil {
			return fmt.Errorf("upsert order %d: %w", o.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit changeset: %w", err)
	}
	return nil
}
