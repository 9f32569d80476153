package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository encapsulates DB operations for the general ledger.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetEntryWithLines(ctx context.Context, entryID int64) (JournalEntry, error)
	FindBySourceKey(ctx context.Context, module string, key uuid.UUID) (JournalEntry, error)
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	InsertEntry(ctx context.Context, in PostingInput) (JournalEntry, error)
	InsertLines(ctx context.Context, entryID int64, lines []PostingLineInput) error
	LinkSource(ctx context.Context, module string, key uuid.UUID, ref string, entryID int64) error
	UpdateStatus(ctx context.Context, entryID int64, status EntryStatus) error
	MarkDraftError(ctx context.Context, entryID int64, note string) error
	GetEntryWithLines(ctx context.Context, entryID int64) (JournalEntry, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a pgx-backed ledger repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (r *repository) GetEntryWithLines(ctx context.Context, entryID int64) (JournalEntry, error) {
	return getEntryWithLines(ctx, r.db, entryID)
}

func (r *repository) FindBySourceKey(ctx context.Context, module string, key uuid.UUID) (JournalEntry, error) {
	var entryID int64
	err := r.db.QueryRow(ctx, `SELECT je_id FROM source_links WHERE module=$1 AND source_key=$2`, module, key).Scan(&entryID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	return getEntryWithLines(ctx, r.db, entryID)
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertEntry(ctx context.Context, in PostingInput) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (entry_date, source_module, source_key, memo, status)
VALUES ($1,$2,$3,$4,'DRAFT') RETURNING id, created_at, updated_at`, in.EntryDate, in.SourceModule, in.SourceKey, in.Memo)
	var entry JournalEntry
	entry.EntryDate = in.EntryDate
	entry.SourceModule = in.SourceModule
	entry.SourceKey = in.SourceKey
	entry.Memo = in.Memo
	entry.Status = EntryStatusDraft
	if err := row.Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []PostingLineInput) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO journal_lines (je_id, account_id, debit, credit)
VALUES ($1,$2,$3,$4)`, entryID, line.AccountID, Round2(line.Debit), Round2(line.Credit)); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) LinkSource(ctx context.Context, module string, key uuid.UUID, ref string, entryID int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO source_links (module, source_key, source_ref, je_id) VALUES ($1,$2,$3,$4)`, module, key, ref, entryID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_source_links" {
			return ErrSourceAlreadyLinked
		}
		return err
	}
	return nil
}

func (r *txRepository) UpdateStatus(ctx context.Context, entryID int64, status EntryStatus) error {
	var posted any
	if status == EntryStatusPosted {
		posted = time.Now()
	}
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status=$2, posted_at=COALESCE($3, posted_at), updated_at=NOW() WHERE id=$1`, entryID, status, posted)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *txRepository) MarkDraftError(ctx context.Context, entryID int64, note string) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET error_note=$2, updated_at=NOW() WHERE id=$1 AND status='DRAFT'`, entryID, note)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *txRepository) GetEntryWithLines(ctx context.Context, entryID int64) (JournalEntry, error) {
	return getEntryWithLines(ctx, r.tx, entryID)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getEntryWithLines(ctx context.Context, q querier, entryID int64) (JournalEntry, error) {
	var entry JournalEntry
	err := q.QueryRow(ctx, `SELECT id, entry_date, source_module, source_key, memo, status, COALESCE(error_note,''), posted_at, created_at, updated_at
FROM journal_entries WHERE id=$1`, entryID).
		Scan(&entry.ID, &entry.EntryDate, &entry.SourceModule, &entry.SourceKey, &entry.Memo, &entry.Status, &entry.ErrorNote, &entry.PostedAt, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, je_id, account_id, debit, credit, created_at
FROM journal_lines WHERE je_id=$1 ORDER BY id ASC`, entryID)
	if err != nil {
		return JournalEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.Debit, &line.Credit, &line.CreatedAt); err != nil {
			return JournalEntry{}, err
		}
		entry.Lines = append(entry.Lines, line)
	}
	return entry, rows.Err()
}
