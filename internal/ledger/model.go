package ledger

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
)

// AccountType enumerates chart-of-accounts classifications.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
	AccountTypeEquity    AccountType = "EQUITY"
)

// Account is a chart-of-accounts entry. Accounts are never deleted, only deactivated.
type Account struct {
	ID        int64
	Code      string
	Name      string
	Type      AccountType
	Active    bool
	CreatedAt time.Time
}

// EntryStatus enumerates journal lifecycle values.
type EntryStatus string

const (
	EntryStatusDraft    EntryStatus = "DRAFT"
	EntryStatusPosted   EntryStatus = "POSTED"
	EntryStatusReversed EntryStatus = "REVERSED"
)

// JournalEntry captures posting metadata. SourceKey is derived deterministically
// from the originating business event and is unique across posted entries.
type JournalEntry struct {
	ID           int64
	EntryDate    time.Time
	SourceModule string
	SourceKey    uuid.UUID
	Memo         string
	Status       EntryStatus
	ErrorNote    string
	PostedAt     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Lines        []JournalLine
}

// JournalLine stores a debit or credit amount for an account.
type JournalLine struct {
	ID        int64
	EntryID   int64
	AccountID int64
	Debit     float64
	Credit    float64
	CreatedAt time.Time
}

// PostingInput describes a journal entry to post. SourceKey is the uniqueness
// anchor; SourceRef is its human-readable form (e.g. "SO:100:invoiced") kept on
// the source link so detectors can anti-join without recomputing keys.
type PostingInput struct {
	EntryDate    time.Time
	SourceModule string
	SourceKey    uuid.UUID
	SourceRef    string
	Memo         string
	Lines        []PostingLineInput
}

// PostingLineInput describes one line of a posting request.
type PostingLineInput struct {
	AccountID int64
	Debit     float64
	Credit    float64
}

var (
	// ErrSourceAlreadyLinked indicates the source event already produced an entry.
	ErrSourceAlreadyLinked = errors.New("ledger: source event already posted")
	// ErrEntryNotFound indicates the journal entry does not exist.
	ErrEntryNotFound = errors.New("ledger: entry not found")
	// ErrUnbalancedEntry indicates debits do not equal credits.
	ErrUnbalancedEntry = errors.New("ledger: debits do not equal credits")
	// ErrInvalidStatus indicates the entry is not in a state valid for the operation.
	ErrInvalidStatus = errors.New("ledger: invalid entry status")
	// ErrNoLines indicates a posting request without lines.
	ErrNoLines = errors.New("ledger: at least one line required")
)

// balanceTolerance absorbs float accumulation noise on amounts rounded to cents.
const balanceTolerance = 0.005

// Validate checks structural validity of the posting input.
func (in PostingInput) Validate() error {
	if in.SourceModule == "" {
		return errors.New("ledger: source module required")
	}
	if in.SourceKey == uuid.Nil {
		return errors.New("ledger: source key required")
	}
	if in.SourceRef == "" {
		return errors.New("ledger: source ref required")
	}
	if in.EntryDate.IsZero() {
		return errors.New("ledger: entry date required")
	}
	if len(in.Lines) == 0 {
		return ErrNoLines
	}
	for _, line := range in.Lines {
		if line.AccountID == 0 {
			return errors.New("ledger: line account required")
		}
		if line.Debit < 0 || line.Credit < 0 {
			return errors.New("ledger: negative amounts not allowed")
		}
		if line.Debit > 0 && line.Credit > 0 {
			return errors.New("ledger: line cannot carry both debit and credit")
		}
	}
	return nil
}

// Balanced reports whether total debits equal total credits.
func (in PostingInput) Balanced() bool {
	var debits, credits float64
	for _, line := range in.Lines {
		debits += line.Debit
		credits += line.Credit
	}
	return math.Abs(debits-credits) < balanceTolerance
}

// Round2 rounds a monetary amount to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
