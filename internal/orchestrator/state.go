package orchestrator

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StateStore persists the tick counter so a restart resumes cadence alignment
// instead of firing every heavy task at once.
type StateStore interface {
	Load(ctx context.Context) (int64, error)
	Save(ctx context.Context, tick int64) error
}

type stateStore struct {
	db *pgxpool.Pool
}

// NewStateStore constructs a pgx-backed state store over the single-row
// orchestrator_state table.
func NewStateStore(db *pgxpool.Pool) StateStore {
	return &stateStore{db: db}
}

func (s *stateStore) Load(ctx context.Context) (int64, error) {
	var tick int64
	err := s.db.QueryRow(ctx, `SELECT tick FROM orchestrator_state WHERE id=1`).Scan(&tick)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, err := s.db.Exec(ctx, `INSERT INTO orchestrator_state (id, tick) VALUES (1, 0) ON CONFLICT (id) DO NOTHING`); err != nil {
				return 0, err
			}
			return 0, nil
		}
		return 0, err
	}
	return tick, nil
}

func (s *stateStore) Save(ctx context.Context, tick int64) error {
	_, err := s.db.Exec(ctx, `UPDATE orchestrator_state SET tick=$1, updated_at=NOW() WHERE id=1`, tick)
	return err
}
