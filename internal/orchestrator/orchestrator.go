// Package orchestrator owns the single scheduling loop that fires the posting,
// sync, balance-aggregation, and reconciliation sub-tasks at their cadences.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ledgerlink/ledgerlink/internal/observability"
	"github.com/ledgerlink/ledgerlink/internal/posting"
	"github.com/ledgerlink/ledgerlink/internal/reconcile"
	"github.com/ledgerlink/ledgerlink/internal/syncqueue"
)

// Poster runs one detect-and-post cycle.
type Poster interface {
	RunCycle(ctx context.Context) (posting.CycleSummary, error)
}

// SyncProcessor drains eligible sync queue entries.
type SyncProcessor interface {
	ProcessPending(ctx context.Context, limit int) (syncqueue.Summary, error)
}

// BalanceAggregator recomputes derived account balances.
type BalanceAggregator interface {
	Run(ctx context.Context) error
}

// Reconciler runs one reconciliation cycle.
type Reconciler interface {
	Reconcile(ctx context.Context) ([]reconcile.Record, error)
}

// Config holds the orchestrator cadences and batch limits.
type Config struct {
	BalanceAggMultiple int
	ReconcileMultiple  int
	SyncBatchLimit     int
}

// Orchestrator drives all sub-tasks from one cooperative loop. Sub-task
// failures are logged at the tick boundary and never stop sibling sub-tasks or
// the loop itself.
type Orchestrator struct {
	state      StateStore
	poster     Poster
	sync       SyncProcessor
	balances   BalanceAggregator
	reconciler Reconciler
	metrics    *observability.Metrics
	cfg        Config
	logger     *slog.Logger
}

// New builds an Orchestrator.
func New(state StateStore, poster Poster, sync SyncProcessor, balances BalanceAggregator, reconciler Reconciler, metrics *observability.Metrics, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.BalanceAggMultiple <= 0 {
		cfg.BalanceAggMultiple = 10
	}
	if cfg.ReconcileMultiple <= 0 {
		cfg.ReconcileMultiple = 20
	}
	if cfg.SyncBatchLimit <= 0 {
		cfg.SyncBatchLimit = 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		state:      state,
		poster:     poster,
		sync:       sync,
		balances:   balances,
		reconciler: reconciler,
		metrics:    metrics,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run executes ticks until the context is cancelled. Cancellation stops the
// loop before the next tick starts; a tick already in flight completes its
// batch so no entry is abandoned mid-write.
func (o *Orchestrator) Run(ctx context.Context, clock Clock, interval time.Duration) error {
	tick, err := o.state.Load(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator: load state: %w", err)
	}
	o.logger.Info("orchestrator started", slog.Int64("tick", tick), slog.Duration("interval", interval))

	ticker := clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			o.logger.Info("orchestrator stopped", slog.Int64("tick", tick))
			return ctx.Err()
		case <-ticker.C():
			tick++
			// Persist before running so a crash mid-tick resumes at the same
			// cadence alignment instead of replaying the heavy tasks.
			if err := o.state.Save(ctx, tick); err != nil {
				o.logger.Error("persist tick counter", slog.Int64("tick", tick), slog.Any("error", err))
			}
			o.Tick(ctx, tick)
		}
	}
}

// Tick runs every sub-task due at the given counter value. Each sub-task is
// isolated: its error is logged and the remaining sub-tasks still run.
func (o *Orchestrator) Tick(ctx context.Context, tick int64) {
	if o.metrics != nil {
		o.metrics.RecordTick()
	}

	o.runTask(ctx, "posting", func(ctx context.Context) error {
		summary, err := o.poster.RunCycle(ctx)
		if err != nil {
			return err
		}
		if o.metrics != nil {
			o.metrics.RecordPostings(summary.Posted, summary.AlreadyPosted, summary.Failed)
		}
		if summary.Detected > 0 {
			o.logger.Info("posting cycle",
				slog.Int64("tick", tick),
				slog.Int("detected", summary.Detected),
				slog.Int("posted", summary.Posted),
				slog.Int("already_posted", summary.AlreadyPosted),
				slog.Int("failed", summary.Failed))
		}
		return nil
	})

	o.runTask(ctx, "sync", func(ctx context.Context) error {
		summary, err := o.sync.ProcessPending(ctx, o.cfg.SyncBatchLimit)
		if err != nil {
			return err
		}
		if o.metrics != nil {
			o.metrics.RecordSyncSummary(summary.Succeeded, summary.Retried, summary.DeadLettered)
		}
		if summary.Processed > 0 {
			o.logger.Info("sync cycle",
				slog.Int64("tick", tick),
				slog.Int("processed", summary.Processed),
				slog.Int("succeeded", summary.Succeeded),
				slog.Int("retried", summary.Retried),
				slog.Int("dead_lettered", summary.DeadLettered))
		}
		return nil
	})

	if tick%int64(o.cfg.BalanceAggMultiple) == 0 {
		o.runTask(ctx, "balances", func(ctx context.Context) error {
			return o.balances.Run(ctx)
		})
	}

	if tick%int64(o.cfg.ReconcileMultiple) == 0 {
		o.runTask(ctx, "reconcile", func(ctx context.Context) error {
			records, err := o.reconciler.Reconcile(ctx)
			if err != nil {
				return err
			}
			if o.metrics != nil {
				for _, record := range records {
					o.metrics.RecordReconciliation(string(record.Classification), record.VariancePct)
				}
			}
			return nil
		})
	}
}

func (o *Orchestrator) runTask(ctx context.Context, name string, fn func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("sub-task panic", slog.String("task", name), slog.Any("panic", r))
			if o.metrics != nil {
				o.metrics.RecordTaskFailure(name)
			}
		}
	}()
	if err := fn(ctx); err != nil {
		o.logger.Error("sub-task failed", slog.String("task", name), slog.Any("error", err))
		if o.metrics != nil {
			o.metrics.RecordTaskFailure(name)
		}
	}
}
