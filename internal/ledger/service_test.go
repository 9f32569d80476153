package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type memoryLedger struct {
	entries map[int64]JournalEntry
	links   map[string]int64
	nextID  int64
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{entries: make(map[int64]JournalEntry), links: make(map[string]int64)}
}

func linkKey(module string, key uuid.UUID) string {
	return fmt.Sprintf("%s:%s", module, key)
}

func (r *memoryLedger) snapshot() (map[int64]JournalEntry, map[string]int64, int64) {
	entries := make(map[int64]JournalEntry, len(r.entries))
	for id, e := range r.entries {
		entries[id] = e
	}
	links := make(map[string]int64, len(r.links))
	for k, v := range r.links {
		links[k] = v
	}
	return entries, links, r.nextID
}

func (r *memoryLedger) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	entries, links, next := r.snapshot()
	if err := fn(ctx, &memoryLedgerTx{repo: r}); err != nil {
		r.entries, r.links, r.nextID = entries, links, next
		return err
	}
	return nil
}

func (r *memoryLedger) GetEntryWithLines(ctx context.Context, entryID int64) (JournalEntry, error) {
	entry, ok := r.entries[entryID]
	if !ok {
		return JournalEntry{}, ErrEntryNotFound
	}
	return entry, nil
}

func (r *memoryLedger) FindBySourceKey(ctx context.Context, module string, key uuid.UUID) (JournalEntry, error) {
	id, ok := r.links[linkKey(module, key)]
	if !ok {
		return JournalEntry{}, ErrEntryNotFound
	}
	return r.GetEntryWithLines(ctx, id)
}

type memoryLedgerTx struct {
	repo *memoryLedger
}

func (tx *memoryLedgerTx) InsertEntry(ctx context.Context, in PostingInput) (JournalEntry, error) {
	tx.repo.nextID++
	entry := JournalEntry{
		ID:           tx.repo.nextID,
		EntryDate:    in.EntryDate,
		SourceModule: in.SourceModule,
		SourceKey:    in.SourceKey,
		Memo:         in.Memo,
		Status:       EntryStatusDraft,
		CreatedAt:    time.Now(),
	}
	tx.repo.entries[entry.ID] = entry
	return entry, nil
}

func (tx *memoryLedgerTx) InsertLines(ctx context.Context, entryID int64, lines []PostingLineInput) error {
	entry := tx.repo.entries[entryID]
	for _, line := range lines {
		entry.Lines = append(entry.Lines, JournalLine{
			EntryID:   entryID,
			AccountID: line.AccountID,
			Debit:     Round2(line.Debit),
			Credit:    Round2(line.Credit),
		})
	}
	tx.repo.entries[entryID] = entry
	return nil
}

func (tx *memoryLedgerTx) LinkSource(ctx context.Context, module string, key uuid.UUID, ref string, entryID int64) error {
	k := linkKey(module, key)
	if _, exists := tx.repo.links[k]; exists {
		return ErrSourceAlreadyLinked
	}
	tx.repo.links[k] = entryID
	return nil
}

func (tx *memoryLedgerTx) UpdateStatus(ctx context.Context, entryID int64, status EntryStatus) error {
	entry, ok := tx.repo.entries[entryID]
	if !ok {
		return ErrEntryNotFound
	}
	entry.Status = status
	if status == EntryStatusPosted {
		now := time.Now()
		entry.PostedAt = &now
	}
	tx.repo.entries[entryID] = entry
	return nil
}

func (tx *memoryLedgerTx) MarkDraftError(ctx context.Context, entryID int64, note string) error {
	entry, ok := tx.repo.entries[entryID]
	if !ok {
		return ErrEntryNotFound
	}
	entry.ErrorNote = note
	tx.repo.entries[entryID] = entry
	return nil
}

func (tx *memoryLedgerTx) GetEntryWithLines(ctx context.Context, entryID int64) (JournalEntry, error) {
	return tx.repo.GetEntryWithLines(ctx, entryID)
}

func salesInvoiceInput(orderID int64, total float64) PostingInput {
	return PostingInput{
		EntryDate:    time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		SourceModule: "SALES.INVOICE",
		SourceKey:    uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("SO:%d:invoiced", orderID))),
		SourceRef:    fmt.Sprintf("SO:%d:invoiced", orderID),
		Memo:         fmt.Sprintf("Invoice for SO-%d", orderID),
		Lines: []PostingLineInput{
			{AccountID: 1200, Debit: total},
			{AccountID: 4000, Credit: total},
		},
	}
}

func TestPostJournalIdempotent(t *testing.T) {
	repo := newMemoryLedger()
	svc := NewService(repo, nil)
	ctx := context.Background()

	first, err := svc.PostJournal(ctx, salesInvoiceInput(100, 10500))
	require.NoError(t, err)
	require.False(t, first.AlreadyPosted)

	entry, err := repo.GetEntryWithLines(ctx, first.EntryID)
	require.NoError(t, err)
	require.Equal(t, EntryStatusPosted, entry.Status)
	require.Len(t, entry.Lines, 2)
	require.InDelta(t, 10500.0, entry.Lines[0].Debit, 0.001)
	require.InDelta(t, 10500.0, entry.Lines[1].Credit, 0.001)

	second, err := svc.PostJournal(ctx, salesInvoiceInput(100, 10500))
	require.NoError(t, err)
	require.True(t, second.AlreadyPosted)
	require.Equal(t, first.EntryID, second.EntryID)
	require.Len(t, repo.entries, 1)
}

func TestPostJournalDoubleEntryInvariant(t *testing.T) {
	repo := newMemoryLedger()
	svc := NewService(repo, nil)
	ctx := context.Background()

	result, err := svc.PostJournal(ctx, salesInvoiceInput(200, 999.99))
	require.NoError(t, err)

	entry, err := repo.GetEntryWithLines(ctx, result.EntryID)
	require.NoError(t, err)
	var debits, credits float64
	for _, line := range entry.Lines {
		debits += line.Debit
		credits += line.Credit
	}
	require.InDelta(t, debits, credits, 0.001)
}

func TestPostJournalUnbalancedStaysDraft(t *testing.T) {
	repo := newMemoryLedger()
	svc := NewService(repo, nil)
	ctx := context.Background()

	input := salesInvoiceInput(300, 500)
	input.Lines[1].Credit = 400

	result, err := svc.PostJournal(ctx, input)
	require.ErrorIs(t, err, ErrUnbalancedEntry)

	entry, err := repo.GetEntryWithLines(ctx, result.EntryID)
	require.NoError(t, err)
	require.Equal(t, EntryStatusDraft, entry.Status)
	require.NotEmpty(t, entry.ErrorNote)
}

func TestPostJournalRejectsInvalidLines(t *testing.T) {
	svc := NewService(newMemoryLedger(), nil)
	ctx := context.Background()

	input := salesInvoiceInput(400, 100)
	input.Lines = nil
	_, err := svc.PostJournal(ctx, input)
	require.ErrorIs(t, err, ErrNoLines)

	input = salesInvoiceInput(400, 100)
	input.Lines[0].Credit = 50
	_, err = svc.PostJournal(ctx, input)
	require.Error(t, err)
}

func TestReverseEntry(t *testing.T) {
	repo := newMemoryLedger()
	svc := NewService(repo, nil)
	ctx := context.Background()

	posted, err := svc.PostJournal(ctx, salesInvoiceInput(500, 250))
	require.NoError(t, err)

	reversal, err := svc.ReverseEntry(ctx, posted.EntryID, "")
	require.NoError(t, err)
	require.False(t, reversal.AlreadyPosted)

	original, err := repo.GetEntryWithLines(ctx, posted.EntryID)
	require.NoError(t, err)
	require.Equal(t, EntryStatusReversed, original.Status)

	mirrored, err := repo.GetEntryWithLines(ctx, reversal.EntryID)
	require.NoError(t, err)
	require.Equal(t, EntryStatusPosted, mirrored.Status)
	require.InDelta(t, 250.0, mirrored.Lines[0].Credit, 0.001)
	require.InDelta(t, 250.0, mirrored.Lines[1].Debit, 0.001)

	again, err := svc.ReverseEntry(ctx, posted.EntryID, "")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidStatus)
	_ = again
}
