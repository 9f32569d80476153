package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RetentionSweepPayload bounds the sweep.
type RetentionSweepPayload struct {
	KeepDays int `json:"keep_days"`
}

// NewRetentionSweepTask constructs the nightly retention task.
func NewRetentionSweepTask(keepDays int) (*asynq.Task, error) {
	if keepDays <= 0 {
		keepDays = 30
	}
	data, err := json.Marshal(RetentionSweepPayload{KeepDays: keepDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRetentionSweep, data, asynq.Queue(QueueDefault)), nil
}

// RetentionSweepJob prunes terminal sync queue entries, their orphaned
// applied markers, and aged reconciliation records. Dead-lettered entries are
// kept until replayed.
type RetentionSweepJob struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRetentionSweepJob constructs the handler.
func NewRetentionSweepJob(pool *pgxpool.Pool, logger *slog.Logger) *RetentionSweepJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetentionSweepJob{pool: pool, logger: logger}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (j *RetentionSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload RetentionSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.KeepDays <= 0 {
		payload.KeepDays = 30
	}

	queueTag, err := j.pool.Exec(ctx, `
		DELETE FROM sync_queue
		WHERE status = 'SUCCEEDED' AND updated_at < NOW() - make_interval(days => $1)`, payload.KeepDays)
	if err != nil {
		return err
	}
	appliedTag, err := j.pool.Exec(ctx, `
		DELETE FROM sync_applied
		WHERE entry_id NOT IN (SELECT id FROM sync_queue)`)
	if err != nil {
		return err
	}
	reconTag, err := j.pool.Exec(ctx, `
		DELETE FROM reconciliation_records
		WHERE created_at < NOW() - make_interval(days => $1)`, payload.KeepDays)
	if err != nil {
		return err
	}

	j.logger.Info("retention sweep",
		slog.Int("keep_days", payload.KeepDays),
		slog.Int64("queue_pruned", queueTag.RowsAffected()),
		slog.Int64("applied_pruned", appliedTag.RowsAffected()),
		slog.Int64("recon_pruned", reconTag.RowsAffected()))
	return nil
}
