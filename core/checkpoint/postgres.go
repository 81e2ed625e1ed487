package checkpoint

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/dust-indexer/internal/postgres"
	"github.com/jackc/pgx/v5"
)

// Make sure to implement the Store interface
var _ Store = (*PostgresStore)(nil)

// DefaultPostgresKey is the row id used when none is configured.
const DefaultPostgresKey = "last_block"

const (
	loadCheckpointQuery = `SELECT "last_scanned_position" FROM dust_indexer_state WHERE "id" = $1`

	// GREATEST keeps the stored position monotonic even with concurrent writers.
	saveCheckpointQuery = `INSERT INTO dust_indexer_state ("id", "last_scanned_position", "updated_at")
VALUES ($1, $2, NOW())
ON CONFLICT ("id") DO UPDATE
SET "last_scanned_position" = GREATEST(dust_indexer_state."last_scanned_position", EXCLUDED."last_scanned_position"), "updated_at" = NOW()
RETURNING "last_scanned_position"`
)

// PostgresStore keeps the checkpoint in the dust_indexer_state table.
type PostgresStore struct {
	db  postgres.DB
	key string
}

func NewPostgresStore(db postgres.DB, key string) *PostgresStore {
	if key == "" {
		key = DefaultPostgresKey
	}
	return &PostgresStore{db: db, key: key}
}

func (s *PostgresStore) Name() string {
	return "postgres"
}

func (s *PostgresStore) Load(ctx context.Context) (uint64, bool, error) {
	var position int64
	if err := s.db.QueryRow(ctx, loadCheckpointQuery, s.key).Scan(&position); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, errors.Wrap(err, "can't load checkpoint")
	}
	if position < 0 {
		return 0, false, errors.Newf("invalid checkpoint position %d", position)
	}
	return uint64(position), true, nil
}

func (s *PostgresStore) Save(ctx context.Context, position uint64) error {
	var stored int64
	if err := s.db.QueryRow(ctx, saveCheckpointQuery, s.key, int64(position)).Scan(&stored); err != nil {
		return errors.Wrap(err, "can't save checkpoint")
	}
	if uint64(stored) != position {
		return errors.Wrapf(ErrBehind, "last: %d, given: %d", stored, position)
	}
	return nil
}
