package reconcile

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists the append-only reconciliation audit trail.
type Repository interface {
	InsertRecords(ctx context.Context, records []Record) error
	ListSince(ctx context.Context, since time.Time) ([]Record, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a pgx-backed reconciliation repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) InsertRecords(ctx context.Context, records []Record) error {
	for _, rec := range records {
		if _, err := r.db.Exec(ctx, `INSERT INTO reconciliation_records (material, location, erp_qty, wms_qty, variance_pct, classification, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			rec.Material, rec.Location, rec.ERPQty, rec.WMSQty, rec.VariancePct, rec.Classification, rec.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) ListSince(ctx context.Context, since time.Time) ([]Record, error) {
	rows, err := r.db.Query(ctx, `SELECT id, material, location, erp_qty, wms_qty, variance_pct, classification, created_at
FROM reconciliation_records WHERE created_at >= $1 ORDER BY created_at DESC, material, location`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Material, &rec.Location, &rec.ERPQty, &rec.WMSQty, &rec.VariancePct, &rec.Classification, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
