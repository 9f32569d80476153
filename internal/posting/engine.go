// Package posting turns detected business events into balanced journal
// entries and feeds finished-goods receipts into the sync queue.
package posting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ledgerlink/ledgerlink/internal/ledger"
	"github.com/ledgerlink/ledgerlink/internal/sources"
	"github.com/ledgerlink/ledgerlink/internal/syncqueue"
)

// Account mapping keys resolved against the chart of accounts.
const (
	KeyAccountsReceivable = "sales.accounts_receivable"
	KeyRevenue            = "sales.revenue"
	KeyFinishedGoods      = "production.finished_goods"
	KeyWorkInProcess      = "production.wip"
)

// Ledger exposes the journal posting operation required by the engine.
type Ledger interface {
	PostJournal(ctx context.Context, input ledger.PostingInput) (ledger.PostResult, error)
}

// Queue accepts movements for propagation to the warehouse system.
type Queue interface {
	Enqueue(ctx context.Context, direction syncqueue.Direction, movement syncqueue.Movement) (syncqueue.Entry, error)
}

// AccountResolver maps well-known posting keys to account IDs.
type AccountResolver interface {
	Resolve(ctx context.Context, key string) (int64, error)
}

// Detector finds events that have not yet produced a journal entry.
type Detector interface {
	DetectUnposted(ctx context.Context) ([]sources.SourceEvent, error)
}

// Alerter is notified when an entry cannot be balanced.
type Alerter interface {
	UnbalancedEntry(ctx context.Context, sourceRef string, entryID int64)
}

// CycleSummary reports one detect-and-post cycle.
type CycleSummary struct {
	Detected      int
	Posted        int
	AlreadyPosted int
	Failed        int
}

// Engine is the posting engine. Posting the same event twice is a no-op the
// second time; the ledger's source-key uniqueness provides the guarantee.
type Engine struct {
	detector Detector
	ledger   Ledger
	queue    Queue
	accounts AccountResolver
	alerter  Alerter
	logger   *slog.Logger
}

// NewEngine builds the posting engine.
func NewEngine(detector Detector, ldg Ledger, queue Queue, accounts AccountResolver, alerter Alerter, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{detector: detector, ledger: ldg, queue: queue, accounts: accounts, alerter: alerter, logger: logger}
}

// RunCycle detects unposted events and posts each one. A failure on one event
// is logged and does not block the rest of the batch.
func (e *Engine) RunCycle(ctx context.Context) (CycleSummary, error) {
	events, err := e.detector.DetectUnposted(ctx)
	if err != nil {
		return CycleSummary{}, err
	}
	summary := CycleSummary{Detected: len(events)}
	for _, event := range events {
		result, err := e.Post(ctx, event)
		if err != nil {
			summary.Failed++
			e.logger.Error("post event",
				slog.String("kind", string(event.Kind)),
				slog.String("source_ref", event.SourceRef()),
				slog.Any("error", err))
			continue
		}
		if result.AlreadyPosted {
			summary.AlreadyPosted++
			continue
		}
		summary.Posted++
	}
	return summary, nil
}

// Post posts the journal entry for one event. For completed production orders
// the finished-goods receipt is enqueued for warehouse propagation after the
// entry is committed.
func (e *Engine) Post(ctx context.Context, event sources.SourceEvent) (ledger.PostResult, error) {
	input, err := e.buildInput(ctx, event)
	if err != nil {
		return ledger.PostResult{}, err
	}
	result, err := e.ledger.PostJournal(ctx, input)
	if err != nil {
		if errors.Is(err, ledger.ErrUnbalancedEntry) && e.alerter != nil {
			e.alerter.UnbalancedEntry(ctx, event.SourceRef(), result.EntryID)
		}
		return result, err
	}
	if result.AlreadyPosted || event.Kind != sources.EventProductionOrderCompleted {
		return result, nil
	}
	po := event.ProductionOrder
	movement := syncqueue.Movement{
		Kind:     syncqueue.KindReceipt,
		Material: po.MaterialCode,
		Location: po.LocationCode,
		Qty:      po.Quantity,
	}
	if _, err := e.queue.Enqueue(ctx, syncqueue.DirectionERPToWMS, movement); err != nil {
		// The journal entry is already committed; surface the enqueue failure
		// loudly so the receipt can be replayed by hand.
		e.logger.Error("enqueue finished-goods receipt",
			slog.String("source_ref", event.SourceRef()),
			slog.Int64("entry_id", result.EntryID),
			slog.Any("error", err))
		return result, fmt.Errorf("posting: enqueue receipt for %s: %w", event.SourceRef(), err)
	}
	return result, nil
}

func (e *Engine) buildInput(ctx context.Context, event sources.SourceEvent) (ledger.PostingInput, error) {
	switch event.Kind {
	case sources.EventSalesOrderInvoiced:
		so := event.SalesOrder
		if so == nil {
			return ledger.PostingInput{}, errors.New("posting: sales order view missing")
		}
		ar, err := e.accounts.Resolve(ctx, KeyAccountsReceivable)
		if err != nil {
			return ledger.PostingInput{}, err
		}
		revenue, err := e.accounts.Resolve(ctx, KeyRevenue)
		if err != nil {
			return ledger.PostingInput{}, err
		}
		amount := ledger.Round2(so.InvoiceTotal)
		return ledger.PostingInput{
			EntryDate:    so.InvoicedAt,
			SourceModule: event.SourceModule(),
			SourceKey:    event.SourceKey(),
			SourceRef:    event.SourceRef(),
			Memo:         fmt.Sprintf("Invoice %s", so.Number),
			Lines: []ledger.PostingLineInput{
				{AccountID: ar, Debit: amount},
				{AccountID: revenue, Credit: amount},
			},
		}, nil
	case sources.EventProductionOrderCompleted:
		po := event.ProductionOrder
		if po == nil {
			return ledger.PostingInput{}, errors.New("posting: production order view missing")
		}
		fg, err := e.accounts.Resolve(ctx, KeyFinishedGoods)
		if err != nil {
			return ledger.PostingInput{}, err
		}
		wip, err := e.accounts.Resolve(ctx, KeyWorkInProcess)
		if err != nil {
			return ledger.PostingInput{}, err
		}
		amount := ledger.Round2(po.Quantity * po.StandardCost)
		return ledger.PostingInput{
			EntryDate:    po.CompletedAt,
			SourceModule: event.SourceModule(),
			SourceKey:    event.SourceKey(),
			SourceRef:    event.SourceRef(),
			Memo:         fmt.Sprintf("Production completion %s", po.Number),
			Lines: []ledger.PostingLineInput{
				{AccountID: fg, Debit: amount},
				{AccountID: wip, Credit: amount},
			},
		}, nil
	default:
		return ledger.PostingInput{}, fmt.Errorf("posting: unknown event kind %q", event.Kind)
	}
}
