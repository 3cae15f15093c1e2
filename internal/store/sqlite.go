package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/example/escrow-hub/internal/escrow"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS escrow_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS vendors (
	account TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS listings (
	id               INTEGER PRIMARY KEY,
	vendor           TEXT NOT NULL,
	available_amount INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
	id                   INTEGER PRIMARY KEY,
	buyer                TEXT NOT NULL,
	vendor               TEXT NOT NULL,
	amount               INTEGER NOT NULL,
	payment_verification TEXT,
	status               INTEGER NOT NULL
);
`

// SQLite persists escrow state in a local SQLite database. Each Apply runs
// inside one transaction so a changeset commits whole or not at all.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and ensures the
// schema exists.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Load(ctx context.Context) (*escrow.Snapshot, error) {
	snap := &escrow.Snapshot{}

	var admin string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM escrow_meta WHERE key = 'admin'`).Scan(&admin)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("load admin record: %w", err)
	}
	snap.Admin = escrow.AccountID(admin)

	rows, err := s.db.QueryContext(ctx, `SELECT account FROM vendors ORDER BY rowid`)
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

	lrows, err := s.db.QueryContext(ctx, `SELECT id, vendor, available_amount FROM listings ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load listings: %w", err)
	}
	defer lrows.Close()
	for lrows.Next() {
		var l escrow.Listing
		var amount int64
		if err := lrows.Scan(&l.ID, &l.Vendor, &amount); err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		l.AvailableAmount = uint64(amount)
		snap.Listings = append(snap.Listings, l)
	}
	if err := lrows.Err(); err != nil {
		return nil, fmt.Errorf("iterate listings: %w", err)
	}

	orows, err := s.db.QueryContext(ctx, `SELECT id, buyer, vendor, amount, payment_verification, status FROM orders ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}
	defer orows.Close()
	for orows.Next() {
		var o escrow.Order
		var amount int64
		var verification sql.NullString
		var status uint8
		if err := orows.Scan(&o.ID, &o.Buyer, &o.Vendor, &amount, &verification, &status); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
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

func (s *SQLite) Apply(ctx context.Context, cs escrow.Changeset) error {
	if cs.Empty() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if cs.Admin != nil {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO escrow_meta (key, value) VALUES ('admin', ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, string(*cs.Admin))
		if err != nil {
			return fmt.Errorf("upsert admin record: %w", err)
		}
	}

	for _, v := range cs.Vendors {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO vendors (account) VALUES (?)
			ON CONFLICT(account) DO NOTHING
		`, string(v))
		if err != nil {
			return fmt.Errorf("insert vendor %s: %w", v, err)
		}
	}

	for _, l := range cs.Listings {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO listings (id, vendor, available_amount) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET vendor = excluded.vendor, available_amount = excluded.available_amount
		`, l.ID, string(l.Vendor), int64(l.AvailableAmount))
		if err != nil {
			return fmt.Errorf("upsert listing %d: %w", l.ID, err)
		}
	}

	for _, o := range cs.Orders {
		verification := sql.NullString{}
		if o.PaymentVerification != nil {
			verification = sql.NullString{String: *o.PaymentVerification, Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (id, buyer, vendor, amount, payment_verification, status)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				buyer = excluded.buyer,
				vendor = excluded.vendor,
				amount = excluded.amount,
				payment_verification = excluded.payment_verification,
				status = excluded.status
		`, o.ID, string(o.Buyer), string(o.Vendor), int64(o.Amount), verification, uint8(o.Status))
		if err != nil {
			return fmt.Errorf("upsert order %d: %w", o.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit changeset: %w", err)
	}
	return nil
}
