package syncqueue

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Target applies a movement to the receiving system. Delivery is
// at-least-once: a crashed worker's claim is reclaimed after it goes stale,
// so implementations must make Apply idempotent per entry ID (the stock
// stores commit the delta with an applied marker keyed on entryID in one
// transaction).
type Target interface {
	Apply(ctx context.Context, entryID int64, movement Movement) error
}

// Alerter is notified when an entry is dead-lettered.
type Alerter interface {
	DeadLetter(ctx context.Context, entry Entry, cause error)
}

// ProcessorConfig groups processor tuning knobs.
type ProcessorConfig struct {
	MaxRetryCount  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// Summary reports one processing cycle.
type Summary struct {
	Processed    int
	Succeeded    int
	Retried      int
	DeadLettered int
}

// Processor drains eligible queue entries, applying each movement to the
// target system for its direction. Failures are retried with exponential
// backoff; an entry exhausting its retries is dead-lettered and alerted,
// never dropped.
type Processor struct {
	repo    Repository
	targets map[Direction]Target
	alerter Alerter
	cfg     ProcessorConfig
	logger  *slog.Logger
	now     func() time.Time
}

// NewProcessor builds a Processor.
func NewProcessor(repo Repository, targets map[Direction]Target, alerter Alerter, cfg ProcessorConfig, logger *slog.Logger) *Processor {
	if cfg.MaxRetryCount < 1 {
		cfg.MaxRetryCount = 5
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Minute
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{repo: repo, targets: targets, alerter: alerter, cfg: cfg, logger: logger, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (p *Processor) WithNow(now func() time.Time) {
	if now != nil {
		p.now = now
	}
}

// ProcessPending claims up to limit eligible entries and drives each toward a
// terminal state. A failure on one entry never blocks the rest of the batch.
func (p *Processor) ProcessPending(ctx context.Context, limit int) (Summary, error) {
	now := p.now()
	entries, err := p.repo.ClaimBatch(ctx, limit, now)
	if err != nil {
		return Summary{}, fmt.Errorf("syncqueue: claim batch: %w", err)
	}
	var summary Summary
	for _, entry := range entries {
		summary.Processed++
		target, ok := p.targets[entry.Direction]
		if !ok {
			p.deadLetter(ctx, &summary, entry, fmt.Errorf("syncqueue: no target for direction %s", entry.Direction))
			continue
		}
		if err := target.Apply(ctx, entry.ID, entry.Movement); err != nil {
			p.handleFailure(ctx, &summary, entry, err)
			continue
		}
		if err := p.repo.MarkSucceeded(ctx, entry.ID, p.now()); err != nil {
			p.logger.Error("mark succeeded", slog.Int64("entry_id", entry.ID), slog.Any("error", err))
			continue
		}
		summary.Succeeded++
	}
	return summary, nil
}

func (p *Processor) handleFailure(ctx context.Context, summary *Summary, entry Entry, cause error) {
	attempts := entry.RetryCount + 1
	if attempts >= p.cfg.MaxRetryCount {
		p.deadLetter(ctx, summary, entry, cause)
		return
	}
	nextRetryAt := p.now().Add(p.Backoff(attempts))
	if err := p.repo.MarkFailed(ctx, entry.ID, attempts, nextRetryAt, cause.Error()); err != nil {
		p.logger.Error("mark failed", slog.Int64("entry_id", entry.ID), slog.Any("error", err))
		return
	}
	summary.Retried++
	p.logger.Warn("sync entry retry scheduled",
		slog.Int64("entry_id", entry.ID),
		slog.Int("retry_count", attempts),
		slog.Time("next_retry_at", nextRetryAt),
		slog.Any("error", cause))
}

func (p *Processor) deadLetter(ctx context.Context, summary *Summary, entry Entry, cause error) {
	if err := p.repo.MarkDeadLetter(ctx, entry.ID, cause.Error()); err != nil {
		p.logger.Error("mark dead letter", slog.Int64("entry_id", entry.ID), slog.Any("error", err))
		return
	}
	summary.DeadLettered++
	p.logger.Error("sync entry dead-lettered",
		slog.Int64("entry_id", entry.ID),
		slog.String("direction", string(entry.Direction)),
		slog.String("material", entry.Movement.Material),
		slog.Any("error", cause))
	if p.alerter != nil {
		entry.Status = StatusDeadLetter
		entry.LastError = cause.Error()
		p.alerter.DeadLetter(ctx, entry, cause)
	}
}

// Backoff returns the delay before the given attempt may run again, doubling
// per attempt and capped at RetryMaxDelay.
func (p *Processor) Backoff(attempts int) time.Duration {
	delay := p.cfg.RetryBaseDelay << uint(attempts)
	if delay > p.cfg.RetryMaxDelay || delay <= 0 {
		return p.cfg.RetryMaxDelay
	}
	return delay
}
