package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// PostResult reports the outcome of an idempotent posting attempt.
type PostResult struct {
	EntryID       int64
	AlreadyPosted bool
}

// Service coordinates journal posting and reversal.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds the ledger service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// PostJournal posts a balanced journal entry exactly once per source key.
// A duplicate source key is treated as already posted and succeeds without
// touching the ledger. An unbalanced input leaves the entry in DRAFT with an
// error note for manual review and returns ErrUnbalancedEntry; the books are
// never forced into balance.
func (s *Service) PostJournal(ctx context.Context, input PostingInput) (PostResult, error) {
	if err := input.Validate(); err != nil {
		return PostResult{}, err
	}
	balanced := input.Balanced()
	var result PostResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.InsertEntry(ctx, input)
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, entry.ID, input.Lines); err != nil {
			return err
		}
		if err := tx.LinkSource(ctx, input.SourceModule, input.SourceKey, input.SourceRef, entry.ID); err != nil {
			return err
		}
		result.EntryID = entry.ID
		if !balanced {
			return tx.MarkDraftError(ctx, entry.ID, "debits do not equal credits")
		}
		return tx.UpdateStatus(ctx, entry.ID, EntryStatusPosted)
	})
	if err != nil {
		if errors.Is(err, ErrSourceAlreadyLinked) {
			existing, lookupErr := s.repo.FindBySourceKey(ctx, input.SourceModule, input.SourceKey)
			if lookupErr != nil {
				return PostResult{}, lookupErr
			}
			return PostResult{EntryID: existing.ID, AlreadyPosted: true}, nil
		}
		return PostResult{}, err
	}
	if !balanced {
		s.logger.Error("unbalanced journal entry kept in draft",
			slog.Int64("entry_id", result.EntryID),
			slog.String("source_module", input.SourceModule),
			slog.String("source_key", input.SourceKey.String()))
		return result, ErrUnbalancedEntry
	}
	return result, nil
}

// ReverseEntry posts a mirrored entry for a posted journal and marks the
// original REVERSED. Reversals carry their own deterministic source key so the
// operation is idempotent as well.
func (s *Service) ReverseEntry(ctx context.Context, entryID int64, memo string) (PostResult, error) {
	if entryID == 0 {
		return PostResult{}, errors.New("ledger: entry id required")
	}
	var result PostResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetEntryWithLines(ctx, entryID)
		if err != nil {
			return err
		}
		if original.Status != EntryStatusPosted {
			return ErrInvalidStatus
		}
		reversal := PostingInput{
			EntryDate:    s.now(),
			SourceModule: original.SourceModule + ":REVERSAL",
			SourceKey:    ReversalKey(original.ID),
			SourceRef:    fmt.Sprintf("REVERSAL:%d", original.ID),
			Memo:         reversalMemo(memo, original.ID),
			Lines:        mirrorLines(original.Lines),
		}
		inserted, err := tx.InsertEntry(ctx, reversal)
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, inserted.ID, reversal.Lines); err != nil {
			return err
		}
		if err := tx.LinkSource(ctx, reversal.SourceModule, reversal.SourceKey, reversal.SourceRef, inserted.ID); err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, inserted.ID, EntryStatusPosted); err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, original.ID, EntryStatusReversed); err != nil {
			return err
		}
		result.EntryID = inserted.ID
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSourceAlreadyLinked) {
			return PostResult{AlreadyPosted: true}, nil
		}
		return PostResult{}, err
	}
	return result, nil
}

// ReversalKey derives the deterministic source key for a reversal entry.
func ReversalKey(originalID int64) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("REVERSAL:%d", originalID)))
}

func reversalMemo(memo string, originalID int64) string {
	if memo != "" {
		return memo
	}
	return fmt.Sprintf("Reversal of journal entry %d", originalID)
}

func mirrorLines(lines []JournalLine) []PostingLineInput {
	mirrored := make([]PostingLineInput, 0, len(lines))
	for _, line := range lines {
		mirrored = append(mirrored, PostingLineInput{
			AccountID: line.AccountID,
			Debit:     line.Credit,
			Credit:    line.Debit,
		})
	}
	return mirrored
}
