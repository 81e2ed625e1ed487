package checkpoint

import (
	"context"
	"testing"

	"github.com/gaze-network/dust-indexer/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	value int64
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*int64)) = r.value
	return nil
}

// fakeStateDB emulates the dust_indexer_state upsert in memory.
type fakeStateDB struct {
	postgres.DB
	rows map[string]int64
}

func (f *fakeStateDB) QueryRow(_ context.Context, query string, args ...any) pgx.Row {
	id := args[0].(string)
	if query == loadCheckpointQuery {
		value, ok := f.rows[id]
		if !ok {
			return fakeRow{err: pgx.ErrNoRows}
		}
		return fakeRow{value: value}
	}
	position := args[1].(int64)
	if current, ok := f.rows[id]; !ok || position > current {
		f.rows[id] = position
	}
	return fakeRow{value: f.rows[id]}
}

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()
	db := &fakeStateDB{rows: map[string]int64{}}
	store := NewPostgresStore(db, "")

	_, ok, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, uint64(1500), Resume(ctx, store, 2500, DefaultLag))

	require.NoError(t, store.Save(ctx, 57))
	require.NoError(t, store.Save(ctx, 65))
	assert.ErrorIs(t, store.Save(ctx, 60), ErrBehind, "checkpoint must never regress")

	position, ok, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(65), position)
	assert.Equal(t, int64(65), db.rows[DefaultPostgresKey])
}
