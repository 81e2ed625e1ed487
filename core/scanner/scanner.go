package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gaze-network/dust-indexer/core/checkpoint"
	"github.com/gaze-network/dust-indexer/core/datasources"
	"github.com/gaze-network/dust-indexer/core/dust"
	"github.com/gaze-network/dust-indexer/core/progress"
	"github.com/gaze-network/dust-indexer/core/sink"
	"github.com/gaze-network/dust-indexer/core/types"
	"github.com/gaze-network/dust-indexer/pkg/logger"
	"github.com/gaze-network/dust-indexer/pkg/logger/slogx"
	"github.com/gaze-network/dust-indexer/pkg/metrics"
	"github.com/gaze-network/dust-indexer/pkg/reportingclient"
	"golang.org/x/sync/errgroup"
)

// MinBatchSize is the lower bound of the batch size regardless of the configured workers.
const MinBatchSize = 8

// BatchSize returns the batch size used for the given number of workers.
func BatchSize(workers int) int {
	return max(workers, MinBatchSize)
}

// BatchReporter receives a summary of every completed batch.
type BatchReporter interface {
	SubmitBatchReport(ctx context.Context, payload reportingclient.SubmitBatchReportPayload) error
}

// Result is the outcome of a range scan.
type Result struct {
	// Records is the number of dust records appended to the sink.
	Records int

	// LastPosition is the end of the last completed batch. Only meaningful if Batches > 0.
	LastPosition uint64

	// Batches is the number of completed batches.
	Batches int

	// Unavailable is the number of positions that couldn't be fetched and were skipped.
	Unavailable int
}

// Scanner scans ranges of positions in fixed-size batches with bounded concurrency,
// appends matched dust records to the sink and records progress in the checkpoint store.
//
// RunRange must not be called concurrently. Seen transaction hashes are kept with the
// position they were appended at, and hashes behind the start of a range are forgotten
// when that range begins, so only overlapping ranges are deduplicated.
type Scanner struct {
	source     datasources.Datasource
	filter     *dust.Filter
	sink       sink.Sink
	checkpoint checkpoint.Store

	batchSize     int
	logEvery      int
	fetchTimeout  time.Duration
	metrics       *metrics.Metrics
	batchReporter BatchReporter

	// only accessed by the goroutine running RunRange
	seen map[common.Hash]uint64

	mu             sync.RWMutex
	progress       *progress.Reporter
	lastCheckpoint uint64
	hasCheckpoint  bool
}

type Option func(*Scanner)

// WithWorkers sets the number of concurrent fetches. The batch size is max(workers, MinBatchSize).
func WithWorkers(workers int) Option {
	return func(s *Scanner) {
		s.batchSize = BatchSize(workers)
	}
}

// WithLogEvery sets the number of batches between progress status lines.
func WithLogEvery(logEvery int) Option {
	return func(s *Scanner) {
		s.logEvery = logEvery
	}
}

// WithFetchTimeout bounds the fetch phase of every batch.
func WithFetchTimeout(timeout time.Duration) Option {
	return func(s *Scanner) {
		s.fetchTimeout = timeout
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scanner) {
		s.metrics = m
	}
}

func WithBatchReporter(reporter BatchReporter) Option {
	return func(s *Scanner) {
		s.batchReporter = reporter
	}
}

func New(source datasources.Datasource, filter *dust.Filter, out sink.Sink, store checkpoint.Store, opts ...Option) *Scanner {
	s := &Scanner{
		source:     source,
		filter:     filter,
		sink:       out,
		checkpoint: store,
		batchSize:  MinBatchSize,
		logEvery:   progress.DefaultLogEvery,
		seen:       make(map[common.Hash]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BatchSize returns the configured batch size.
func (s *Scanner) BatchSize() int {
	return s.batchSize
}

// Progress returns the progress of the current or last range scan.
func (s *Scanner) Progress() (progress.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.progress == nil {
		return progress.Snapshot{}, false
	}
	return s.progress.Snapshot(), true
}

// Checkpoint returns the last position saved by this scanner.
func (s *Scanner) Checkpoint() (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastCheckpoint, s.hasCheckpoint
}

// RunRange scans [start, end] inclusive. A start greater than end is a no-op.
//
// Cancellation of ctx is honored between batches only. Errors appending to or
// flushing the sink stop the scan, since the checkpoint must not pass unpersisted
// records. Checkpoint save errors are logged and the scan continues.
func (s *Scanner) RunRange(ctx context.Context, start, end uint64) (Result, error) {
	var result Result
	if start > end {
		return result, nil
	}
	s.forgetBefore(start)

	ctx = logger.WithContext(ctx,
		slogx.String("package", "scanner"),
		slogx.Position("range_start", start),
		slogx.Position("range_end", end),
	)

	reporter := progress.NewReporter(start, end, s.batchSize, s.logEvery)
	s.mu.Lock()
	s.progress = reporter
	s.mu.Unlock()

	batchSize := uint64(s.batchSize)
	for batchStart := start; ; {
		if err := ctx.Err(); err != nil {
			return result, errors.Wrapf(err, "scan stopped before batch %d", batchStart)
		}

		batchEnd := end
		if end-batchStart >= batchSize {
			batchEnd = batchStart + batchSize - 1
		}

		batch, err := s.runBatch(ctx, batchStart, batchEnd)
		if err != nil {
			return result, errors.Wrapf(err, "batch %d-%d failed", batchStart, batchEnd)
		}
		result.Records += batch.Records
		result.Unavailable += batch.Unavailable
		result.Batches++
		result.LastPosition = batchEnd

		reporter.Observe(ctx, batchStart, batchEnd, batch.Records)

		if batchEnd == end {
			return result, nil
		}
		batchStart = batchEnd + 1
	}
}

// runBatch fetches [start, end] concurrently, then appends matches in position order,
// flushes the sink and saves the checkpoint. The batch runs to completion even if ctx
// is canceled.
func (s *Scanner) runBatch(ctx context.Context, start, end uint64) (Result, error) {
	ctx = context.WithoutCancel(ctx)
	startAt := time.Now()
	results := s.fetchBatch(ctx, start, end)

	var batch Result
	appended := make(map[common.Hash]uint64)
	for _, fetched := range results {
		item, ok := fetched.Item()
		if !ok {
			batch.Unavailable++
			logger.WarnContext(ctx, "Skipped unavailable position",
				slogx.Position("position", fetched.Position()),
				slogx.Error(fetched.Reason()),
			)
			continue
		}
		for _, transfer := range item.Transfers {
			record, ok := s.filter.Classify(item.Position, transfer)
			if !ok {
				continue
			}
			if _, seen := s.seen[record.Hash]; seen {
				continue
			}
			if _, seen := appended[record.Hash]; seen {
				continue
			}
			if err := s.sink.Append(ctx, record); err != nil {
				s.metrics.IncError("sink")
				return batch, errors.Wrapf(err, "can't append record %s", record.Hash)
			}
			appended[record.Hash] = record.Position
			batch.Records++
		}
	}

	if err := s.sink.Flush(ctx); err != nil {
		s.metrics.IncError("sink")
		return batch, errors.Wrap(err, "can't flush sink")
	}
	for hash, position := range appended {
		s.seen[hash] = position
	}

	if err := s.checkpoint.Save(ctx, end); errors.Is(err, checkpoint.ErrBehind) {
		logger.DebugContext(ctx, "Stored checkpoint is ahead of the scanned position, keep it",
			slogx.Position("position", end),
			slogx.Error(err),
		)
	} else if err != nil {
		s.metrics.IncError("checkpoint")
		logger.ErrorContext(ctx, "Failed to save checkpoint, continue scanning",
			slogx.Position("checkpoint", end),
			slogx.Error(err),
		)
	} else {
		s.mu.Lock()
		s.lastCheckpoint, s.hasCheckpoint = end, true
		s.mu.Unlock()
	}

	s.metrics.CommitBatch(len(results)-batch.Unavailable, batch.Unavailable, batch.Records, end, time.Since(startAt).Seconds())

	if s.batchReporter != nil {
		if err := s.batchReporter.SubmitBatchReport(ctx, reportingclient.SubmitBatchReportPayload{
			BatchStart:  start,
			BatchEnd:    end,
			Records:     batch.Records,
			Unavailable: batch.Unavailable,
			Checkpoint:  end,
		}); err != nil {
			logger.WarnContext(ctx, "Failed to submit batch report", slogx.Error(err))
		}
	}

	return batch, nil
}

// forgetBefore drops seen hashes appended at positions before start.
func (s *Scanner) forgetBefore(start uint64) {
	for hash, position := range s.seen {
		if position < start {
			delete(s.seen, hash)
		}
	}
}

// fetchBatch fetches every position of [start, end] with at most batchSize fetches
// in flight. Results are ordered by position.
func (s *Scanner) fetchBatch(ctx context.Context, start, end uint64) []types.FetchResult {
	fetchCtx := ctx
	if s.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(fetchCtx, s.fetchTimeout)
		defer cancel()
	}

	results := make([]types.FetchResult, end-start+1)
	var group errgroup.Group
	group.SetLimit(s.batchSize)
	for i := range results {
		position := start + uint64(i)
		group.Go(func() error {
			results[i] = s.source.Fetch(fetchCtx, position)
			return nil
		})
	}
	_ = group.Wait()
	return results
}
