package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ledgerlink/ledgerlink/internal/stock"
)

// Snapshotter produces a point-in-time on-hand view of one system.
type Snapshotter interface {
	Snapshot(ctx context.Context) ([]stock.Item, error)
}

// Alerter is notified for every major-variance record.
type Alerter interface {
	MajorVariance(ctx context.Context, record Record)
}

// Engine runs one reconciliation cycle: snapshot both systems, compare every
// (material, location) pair with nonzero quantity on either side, and persist
// one record per pair.
type Engine struct {
	erp        Snapshotter
	wms        Snapshotter
	repo       Repository
	alerter    Alerter
	thresholds Thresholds
	logger     *slog.Logger
	now        func() time.Time
}

// NewEngine builds the reconciliation engine.
func NewEngine(erp, wms Snapshotter, repo Repository, alerter Alerter, thresholds Thresholds, logger *slog.Logger) *Engine {
	if thresholds.MajorPct <= 0 {
		thresholds = DefaultThresholds
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{erp: erp, wms: wms, repo: repo, alerter: alerter, thresholds: thresholds, logger: logger, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

type pairKey struct {
	material string
	location string
}

// Reconcile compares both snapshots and returns this cycle's records. Major
// variances are alerted; minor ones are only logged.
func (e *Engine) Reconcile(ctx context.Context) ([]Record, error) {
	var erpItems, wmsItems []stock.Item
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, err := e.erp.Snapshot(gctx)
		if err != nil {
			return fmt.Errorf("reconcile: erp snapshot: %w", err)
		}
		erpItems = items
		return nil
	})
	g.Go(func() error {
		items, err := e.wms.Snapshot(gctx)
		if err != nil {
			return fmt.Errorf("reconcile: wms snapshot: %w", err)
		}
		wmsItems = items
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	erpQty := make(map[pairKey]float64, len(erpItems))
	for _, item := range erpItems {
		erpQty[pairKey{item.Material, item.Location}] = item.Qty
	}
	wmsQty := make(map[pairKey]float64, len(wmsItems))
	for _, item := range wmsItems {
		wmsQty[pairKey{item.Material, item.Location}] = item.Qty
	}
	pairs := make(map[pairKey]struct{}, len(erpQty)+len(wmsQty))
	for key := range erpQty {
		pairs[key] = struct{}{}
	}
	for key := range wmsQty {
		pairs[key] = struct{}{}
	}

	now := e.now()
	records := make([]Record, 0, len(pairs))
	for key := range pairs {
		variance := VariancePct(erpQty[key], wmsQty[key])
		records = append(records, Record{
			Material:       key.material,
			Location:       key.location,
			ERPQty:         erpQty[key],
			WMSQty:         wmsQty[key],
			VariancePct:    variance,
			Classification: e.thresholds.Classify(variance),
			CreatedAt:      now,
		})
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Material != records[j].Material {
			return records[i].Material < records[j].Material
		}
		return records[i].Location < records[j].Location
	})

	if err := e.repo.InsertRecords(ctx, records); err != nil {
		return nil, fmt.Errorf("reconcile: persist records: %w", err)
	}

	for _, record := range records {
		switch record.Classification {
		case ClassMajor:
			e.logger.Error("major inventory variance",
				slog.String("material", record.Material),
				slog.String("location", record.Location),
				slog.Float64("erp_qty", record.ERPQty),
				slog.Float64("wms_qty", record.WMSQty),
				slog.Float64("variance_pct", record.VariancePct))
			if e.alerter != nil {
				e.alerter.MajorVariance(ctx, record)
			}
		case ClassMinor:
			e.logger.Warn("minor inventory variance",
				slog.String("material", record.Material),
				slog.String("location", record.Location),
				slog.Float64("variance_pct", record.VariancePct))
		}
	}
	return records, nil
}
