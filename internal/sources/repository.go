package sources

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads upstream order views. All queries are read-only.
type Repository interface {
	ListInvoicedUnposted(ctx context.Context, limit int) ([]SalesOrderView, error)
	ListCompletedUnposted(ctx context.Context, limit int) ([]ProductionOrderView, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a pgx-backed sources repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) ListInvoicedUnposted(ctx context.Context, limit int) ([]SalesOrderView, error) {
	rows, err := r.db.Query(ctx, `SELECT so.id, so.number, so.status, so.invoice_total, so.invoiced_at
FROM sales_orders so
WHERE so.status = 'INVOICED'
  AND NOT EXISTS (
    SELECT 1 FROM source_links sl
    WHERE sl.module = $1 AND sl.source_ref = 'SO:' || so.id || ':invoiced'
  )
ORDER BY so.invoiced_at ASC
LIMIT $2`, ModuleSalesInvoice, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var orders []SalesOrderView
	for rows.Next() {
		var o SalesOrderView
		if err := rows.Scan(&o.ID, &o.Number, &o.Status, &o.InvoiceTotal, &o.InvoicedAt); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (r *repository) ListCompletedUnposted(ctx context.Context, limit int) ([]ProductionOrderView, error) {
	rows, err := r.db.Query(ctx, `SELECT po.id, po.number, po.status, po.material_code, po.location_code, po.quantity, po.standard_cost, po.completed_at
FROM production_orders po
WHERE po.status = 'COMPLETED'
  AND NOT EXISTS (
    SELECT 1 FROM source_links sl
    WHERE sl.module = $1 AND sl.source_ref = 'PO:' || po.id || ':completed'
  )
ORDER BY po.completed_at ASC
LIMIT $2`, ModuleProductionCompletion, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var orders []ProductionOrderView
	for rows.Next() {
		var o ProductionOrderView
		if err := rows.Scan(&o.ID, &o.Number, &o.Status, &o.MaterialCode, &o.LocationCode, &o.Quantity, &o.StandardCost, &o.CompletedAt); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
