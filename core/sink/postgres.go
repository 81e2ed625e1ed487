package sink

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/dust-indexer/common/errs"
	"github.com/gaze-network/dust-indexer/core/types"
	"github.com/gaze-network/dust-indexer/internal/postgres"
	"github.com/samber/lo"
)

// Make sure to implement the Sink interface
var _ Sink = (*PostgresSink)(nil)

const (
	batchInsertDustRecords = `INSERT INTO dust_records ("position", "hash", "value_ether", "from_address", "to_address")
SELECT t."position", t."hash", t."value_ether"::NUMERIC, t."from_address", t."to_address"
FROM unnest($1::BIGINT[], $2::TEXT[], $3::TEXT[], $4::TEXT[], $5::TEXT[]) AS t("position", "hash", "value_ether", "from_address", "to_address")`

	// skips rows whose hash is already stored
	dedupCondition = `
WHERE NOT EXISTS (SELECT 1 FROM dust_records d WHERE d."hash" = t."hash")`
)

// PostgresSink buffers dust records and inserts them into the dust_records table on Flush.
type PostgresSink struct {
	db    postgres.DB
	dedup bool

	mu      sync.Mutex
	pending []types.DustRecord
	closed  bool
}

// NewPostgresSink creates a postgres sink. If dedup is true, records whose hash
// is already stored are skipped.
func NewPostgresSink(db postgres.DB, dedup bool) *PostgresSink {
	return &PostgresSink{
		db:    db,
		dedup: dedup,
	}
}

func (s *PostgresSink) Name() string {
	return "postgres"
}

func (s *PostgresSink) Append(_ context.Context, record types.DustRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.WithStack(errs.Closed)
	}
	s.pending = append(s.pending, record)
	return nil
}

func (s *PostgresSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.WithStack(errs.Closed)
	}
	if len(s.pending) == 0 {
		return nil
	}

	query := batchInsertDustRecords
	if s.dedup {
		query += dedupCondition
	}
	if _, err := s.db.Exec(ctx, query,
		lo.Map(s.pending, func(r types.DustRecord, _ int) int64 { return int64(r.Position) }),
		lo.Map(s.pending, func(r types.DustRecord, _ int) string { return r.Hash.Hex() }),
		lo.Map(s.pending, func(r types.DustRecord, _ int) string { return r.ValueEther.String() }),
		lo.Map(s.pending, func(r types.DustRecord, _ int) string { return r.From.Hex() }),
		lo.Map(s.pending, func(r types.DustRecord, _ int) string { return r.To.Hex() }),
	); err != nil {
		return errors.Wrapf(err, "can't insert %d dust records", len(s.pending))
	}

	s.pending = s.pending[:0]
	return nil
}

// Close discards the sink. Records not flushed are dropped.
func (s *PostgresSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.pending = nil
	return nil
}
