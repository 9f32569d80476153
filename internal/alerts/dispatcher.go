package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ledgerlink/ledgerlink/internal/reconcile"
	"github.com/ledgerlink/ledgerlink/internal/syncqueue"
	"github.com/ledgerlink/ledgerlink/jobs"
)

const (
	recentKey  = "alerts:recent"
	recentKeep = 100
)

// Enqueuer submits alert tasks to the background worker. *jobs.Client and
// *asynq.Client both satisfy it.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher turns domain events into alerts. It never fails the caller: a
// dispatch problem is logged and the triggering operation continues.
type Dispatcher struct {
	enqueuer Enqueuer
	rdb      redis.UniversalClient
	logger   *slog.Logger
	printer  *message.Printer
	now      func() time.Time
}

// NewDispatcher builds a dispatcher. Both enqueuer and rdb may be nil, in
// which case the corresponding sink is skipped; alerts still reach the log.
func NewDispatcher(enqueuer Enqueuer, rdb redis.UniversalClient, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		enqueuer: enqueuer,
		rdb:      rdb,
		logger:   logger,
		printer:  message.NewPrinter(language.English),
		now:      time.Now,
	}
}

// WithNow overrides the clock, used by tests.
func (d *Dispatcher) WithNow(now func() time.Time) {
	if now != nil {
		d.now = now
	}
}

// MajorVariance raises a critical alert for one reconciliation record.
func (d *Dispatcher) MajorVariance(ctx context.Context, record reconcile.Record) {
	d.dispatch(ctx, Alert{
		Kind:     KindMajorVariance,
		Severity: SeverityCritical,
		Message: d.printer.Sprintf("major variance for %s at %s: ERP %.2f vs WMS %.2f (%.2f%%)",
			record.Material, record.Location, record.ERPQty, record.WMSQty, record.VariancePct),
		Meta: map[string]string{
			"material":     record.Material,
			"location":     record.Location,
			"variance_pct": strconv.FormatFloat(record.VariancePct, 'f', 2, 64),
		},
		At: d.now().UTC(),
	})
}

// DeadLetter raises a critical alert when a queue entry exhausts its retries.
func (d *Dispatcher) DeadLetter(ctx context.Context, entry syncqueue.Entry, cause error) {
	causeText := ""
	if cause != nil {
		causeText = cause.Error()
	}
	d.dispatch(ctx, Alert{
		Kind:     KindDeadLetter,
		Severity: SeverityCritical,
		Message: d.printer.Sprintf("sync entry %d (%s %s %s@%s qty %.2f) dead-lettered after %d attempts",
			entry.ID, entry.Direction, entry.Movement.Kind, entry.Movement.Material,
			entry.Movement.Location, entry.Movement.Qty, entry.RetryCount+1),
		Meta: map[string]string{
			"entry_id":  strconv.FormatInt(entry.ID, 10),
			"direction": string(entry.Direction),
			"material":  entry.Movement.Material,
			"location":  entry.Movement.Location,
			"cause":     causeText,
		},
		At: d.now().UTC(),
	})
}

// UnbalancedEntry raises a warning for a journal entry left in DRAFT.
func (d *Dispatcher) UnbalancedEntry(ctx context.Context, sourceRef string, entryID int64) {
	d.dispatch(ctx, Alert{
		Kind:     KindUnbalancedEntry,
		Severity: SeverityWarning,
		Message:  fmt.Sprintf("journal entry %d for %s is unbalanced and stayed DRAFT", entryID, sourceRef),
		Meta: map[string]string{
			"source_ref": sourceRef,
			"entry_id":   strconv.FormatInt(entryID, 10),
		},
		At: d.now().UTC(),
	})
}

// Recent returns up to limit most recent alerts, newest first.
func (d *Dispatcher) Recent(ctx context.Context, limit int) ([]Alert, error) {
	if d.rdb == nil {
		return nil, nil
	}
	if limit <= 0 || limit > recentKeep {
		limit = recentKeep
	}
	raw, err := d.rdb.LRange(ctx, recentKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("alerts: read recent: %w", err)
	}
	out := make([]Alert, 0, len(raw))
	for _, item := range raw {
		var alert Alert
		if err := json.Unmarshal([]byte(item), &alert); err != nil {
			continue
		}
		out = append(out, alert)
	}
	return out, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, alert Alert) {
	level := slog.LevelWarn
	if alert.Severity == SeverityCritical {
		level = slog.LevelError
	}
	d.logger.Log(ctx, level, "alert raised",
		slog.String("kind", string(alert.Kind)),
		slog.String("severity", string(alert.Severity)),
		slog.String("message", alert.Message))

	if d.rdb != nil {
		if data, err := json.Marshal(alert); err == nil {
			pipe := d.rdb.Pipeline()
			pipe.LPush(ctx, recentKey, data)
			pipe.LTrim(ctx, recentKey, 0, recentKeep-1)
			if _, err := pipe.Exec(ctx); err != nil {
				d.logger.Warn("alert history write failed", slog.Any("error", err))
			}
		}
	}

	if d.enqueuer == nil {
		return
	}
	task, err := jobs.NewAlertDispatchTask(jobs.AlertDispatchPayload{
		Kind:     string(alert.Kind),
		Severity: string(alert.Severity),
		Message:  alert.Message,
		Meta:     metaAny(alert.Meta),
		At:       alert.At,
	})
	if err != nil {
		d.logger.Warn("alert task build failed", slog.Any("error", err))
		return
	}
	if _, err := d.enqueuer.EnqueueContext(ctx, task); err != nil {
		d.logger.Warn("alert enqueue failed",
			slog.String("kind", string(alert.Kind)),
			slog.Any("error", err))
	}
}

func metaAny(meta map[string]string) map[string]any {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
