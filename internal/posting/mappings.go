package posting

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrMappingNotFound indicates a posting key with no account mapping.
var ErrMappingNotFound = errors.New("posting: account mapping not found")

// MappingRepository resolves posting keys against the account_mappings table.
type MappingRepository struct {
	db *pgxpool.Pool
}

// NewMappingRepository constructs the resolver.
func NewMappingRepository(db *pgxpool.Pool) *MappingRepository {
	return &MappingRepository{db: db}
}

// Resolve returns the account ID mapped to the given posting key.
func (r *MappingRepository) Resolve(ctx context.Context, key string) (int64, error) {
	var accountID int64
	err := r.db.QueryRow(ctx, `SELECT account_id FROM account_mappings WHERE mapping_key=$1`, key).Scan(&accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: %s", ErrMappingNotFound, key)
		}
		return 0, err
	}
	return accountID, nil
}
