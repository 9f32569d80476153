// Package stock maintains the consolidated on-hand quantity views for both
// systems: the ERP ledger side and the warehouse-management side. Each side is
// mutated only through movements, and each serves as the sync target for the
// opposite direction.
package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerlink/ledgerlink/internal/platform/db"
	"github.com/ledgerlink/ledgerlink/internal/syncqueue"
)

// ErrNegativeStock triggered when a movement would drive on-hand below zero.
var ErrNegativeStock = errors.New("stock: negative stock not allowed")

// Item is one (material, location) on-hand quantity.
type Item struct {
	Material string
	Location string
	Qty      float64
}

// Store tracks on-hand quantities for one system.
type Store struct {
	db    *pgxpool.Pool
	table string
}

// NewERPStore returns the store over the ERP-side on-hand view.
func NewERPStore(db *pgxpool.Pool) *Store {
	return &Store{db: db, table: "erp_stock"}
}

// NewWMSStore returns the store over the warehouse-side on-hand view.
func NewWMSStore(db *pgxpool.Pool) *Store {
	return &Store{db: db, table: "wms_stock"}
}

// Apply implements the sync target contract. The quantity delta commits in
// one transaction with an applied marker keyed on the queue entry ID, so a
// re-delivered entry (a worker that crashed between applying and recording
// success, then hit the stale-claim reclaim) is a no-op instead of a double
// application.
func (s *Store) Apply(ctx context.Context, entryID int64, movement syncqueue.Movement) error {
	return db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `INSERT INTO sync_applied (entry_id, target_table) VALUES ($1, $2)
ON CONFLICT (entry_id) DO NOTHING`, entryID, s.table)
		if err != nil {
			return fmt.Errorf("stock: record applied entry: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		return applyDelta(ctx, tx, s.table, movement.Material, movement.Location, movement.QtyDelta())
	})
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// applyDelta adjusts a balance by delta. The negative-stock guard runs inside
// the statement so concurrent appliers cannot race past zero.
func applyDelta(ctx context.Context, q execer, table, material, location string, delta float64) error {
	if material == "" || location == "" {
		return errors.New("stock: material and location required")
	}
	if delta < 0 {
		tag, err := q.Exec(ctx, fmt.Sprintf(`UPDATE %s SET qty = qty + $3, updated_at = NOW()
WHERE material=$1 AND location=$2 AND qty + $3 >= 0`, table), material, location, delta)
		if err != nil {
			return fmt.Errorf("stock: apply delta: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNegativeStock
		}
		return nil
	}
	_, err := q.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (material, location, qty) VALUES ($1,$2,$3)
ON CONFLICT (material, location) DO UPDATE SET qty = %s.qty + EXCLUDED.qty, updated_at = NOW()`, table, table), material, location, delta)
	if err != nil {
		return fmt.Errorf("stock: apply delta: %w", err)
	}
	return nil
}

// Snapshot returns every item with nonzero on-hand quantity.
func (s *Store) Snapshot(ctx context.Context) ([]Item, error) {
	rows, err := s.db.Query(ctx, fmt.Sprintf(`SELECT material, location, qty FROM %s WHERE qty <> 0 ORDER BY material, location`, s.table))
	if err != nil {
		return nil, fmt.Errorf("stock: snapshot: %w", err)
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.Material, &item.Location, &item.Qty); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
