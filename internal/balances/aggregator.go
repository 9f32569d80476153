// Package balances maintains the derived per-(account, period) balance cache.
// The cache is recomputed in full from posted journal lines and is never a
// source of truth.
package balances

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerlink/ledgerlink/internal/platform/db"
)

// Repository recomputes the balance rows for one period.
type Repository interface {
	Recompute(ctx context.Context, period string) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a pgx-backed balances repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

// Recompute replaces the period's rows from posted journal lines in one
// transaction, so readers never observe a partially-built period.
func (r *repository) Recompute(ctx context.Context, period string) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM account_balances WHERE period=$1`, period); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO account_balances (account_id, period, debit_total, credit_total, computed_at)
SELECT jl.account_id, $1, COALESCE(SUM(jl.debit),0), COALESCE(SUM(jl.credit),0), NOW()
FROM journal_lines jl
JOIN journal_entries je ON je.id = jl.je_id
WHERE je.status = 'POSTED' AND to_char(je.entry_date, 'YYYY-MM') = $1
GROUP BY jl.account_id`, period)
		return err
	})
}

// Aggregator drives periodic recomputation. The current and previous periods
// are both refreshed so postings landing near a month boundary are picked up.
type Aggregator struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewAggregator builds the aggregator.
func NewAggregator(repo Repository, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{repo: repo, logger: logger, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (a *Aggregator) WithNow(now func() time.Time) {
	if now != nil {
		a.now = now
	}
}

// Run recomputes the rolling periods.
func (a *Aggregator) Run(ctx context.Context) error {
	now := a.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	for _, period := range []string{
		monthStart.AddDate(0, -1, 0).Format("2006-01"),
		monthStart.Format("2006-01"),
	} {
		if err := a.repo.Recompute(ctx, period); err != nil {
			return fmt.Errorf("balances: recompute %s: %w", period, err)
		}
		a.logger.Debug("account balances recomputed", slog.String("period", period))
	}
	return nil
}
