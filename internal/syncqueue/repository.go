package syncqueue

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists queue entries. Claiming marks rows IN_PROGRESS
// atomically so multiple daemon replicas never advance the same entry.
type Repository interface {
	Enqueue(ctx context.Context, direction Direction, movement Movement) (Entry, error)
	ClaimBatch(ctx context.Context, limit int, now time.Time) ([]Entry, error)
	MarkSucceeded(ctx context.Context, id int64, now time.Time) error
	MarkFailed(ctx context.Context, id int64, retryCount int, nextRetryAt time.Time, lastError string) error
	MarkDeadLetter(ctx context.Context, id int64, lastError string) error
	CountByStatus(ctx context.Context) (map[Status]int64, error)
}

// staleClaim is how long an entry may sit IN_PROGRESS before it is considered
// abandoned by a crashed worker and becomes claimable again.
const staleClaim = 15 * time.Minute

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a pgx-backed queue repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Enqueue(ctx context.Context, direction Direction, movement Movement) (Entry, error) {
	if err := movement.Validate(); err != nil {
		return Entry{}, err
	}
	entry := Entry{Direction: direction, Movement: movement, Status: StatusPending}
	err := r.db.QueryRow(ctx, `INSERT INTO sync_queue (direction, kind, material, location, qty, status)
VALUES ($1,$2,$3,$4,$5,'PENDING') RETURNING id, created_at, updated_at`,
		direction, movement.Kind, movement.Material, movement.Location, movement.Qty).
		Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func (r *repository) ClaimBatch(ctx context.Context, limit int, now time.Time) ([]Entry, error) {
	rows, err := r.db.Query(ctx, `UPDATE sync_queue SET status='IN_PROGRESS', updated_at=$1
WHERE id IN (
  SELECT id FROM sync_queue
  WHERE status = 'PENDING'
     OR (status = 'FAILED' AND next_retry_at <= $1)
     OR (status = 'IN_PROGRESS' AND updated_at < $2)
  ORDER BY created_at ASC
  LIMIT $3
  FOR UPDATE SKIP LOCKED
)
RETURNING id, direction, kind, material, location, qty, status, retry_count, next_retry_at, COALESCE(last_error,''), created_at, updated_at`,
		now, now.Add(-staleClaim), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Direction, &e.Movement.Kind, &e.Movement.Material, &e.Movement.Location, &e.Movement.Qty,
			&e.Status, &e.RetryCount, &e.NextRetryAt, &e.LastError, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) MarkSucceeded(ctx context.Context, id int64, now time.Time) error {
	return r.transition(ctx, `UPDATE sync_queue SET status='SUCCEEDED', last_error=NULL, updated_at=$2 WHERE id=$1 AND status='IN_PROGRESS'`, id, now)
}

func (r *repository) MarkFailed(ctx context.Context, id int64, retryCount int, nextRetryAt time.Time, lastError string) error {
	cmd, err := r.db.Exec(ctx, `UPDATE sync_queue SET status='FAILED', retry_count=$2, next_retry_at=$3, last_error=$4, updated_at=NOW()
WHERE id=$1 AND status='IN_PROGRESS'`, id, retryCount, nextRetryAt, lastError)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *repository) MarkDeadLetter(ctx context.Context, id int64, lastError string) error {
	cmd, err := r.db.Exec(ctx, `UPDATE sync_queue SET status='DEAD_LETTER', last_error=$2, updated_at=NOW()
WHERE id=$1 AND status='IN_PROGRESS'`, id, lastError)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *repository) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM sync_queue GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[Status]int64)
	for rows.Next() {
		var status Status
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *repository) transition(ctx context.Context, sql string, args ...any) error {
	cmd, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}
