package indexer

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/dust-indexer/common/errs"
	"github.com/gaze-network/dust-indexer/core/checkpoint"
	"github.com/gaze-network/dust-indexer/core/datasources"
	"github.com/gaze-network/dust-indexer/core/scanner"
	"github.com/gaze-network/dust-indexer/pkg/logger"
	"github.com/gaze-network/dust-indexer/pkg/logger/slogx"
	"github.com/gaze-network/dust-indexer/pkg/metrics"
)

const (
	// DefaultPollInterval is the default interval between head polls in following mode
	DefaultPollInterval = 5 * time.Second

	shutdownTimeout = 180 * time.Second
)

type Mode string

const (
	ModeBounded   Mode = "bounded"
	ModeFollowing Mode = "following"
)

// RangeScanner scans an inclusive range of positions.
type RangeScanner interface {
	RunRange(ctx context.Context, start, end uint64) (scanner.Result, error)
}

type Config struct {
	// Follow keeps tailing the head after the first range instead of terminating.
	Follow bool

	// DefaultLag is how far behind the head to start when there is no checkpoint.
	DefaultLag uint64

	// PollInterval is the wait between iterations in following mode.
	PollInterval time.Duration

	// Start overrides the resume position if set.
	Start *uint64

	// End caps the bounded range if set. Ignored in following mode.
	End *uint64
}

// Status is a point in time view of the indexer.
type Status struct {
	Mode         Mode      `json:"mode"`
	Running      bool      `json:"running"`
	Head         uint64    `json:"head"`
	NextPosition uint64    `json:"nextPosition"`
	TotalRecords int       `json:"totalRecords"`
	LastError    string    `json:"lastError,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Indexer drives the scanner over [resume, head] once (bounded mode), or keeps
// following the head of the datasource (following mode).
type Indexer struct {
	Scanner    RangeScanner
	Datasource datasources.Datasource
	Checkpoint checkpoint.Store
	Metrics    *metrics.Metrics
	config     Config

	statusMu sync.RWMutex
	status   Status

	quitOnce sync.Once
	quit     chan struct{}
	done     chan struct{}
}

// New create new indexer
func New(scanner RangeScanner, datasource datasources.Datasource, store checkpoint.Store, config Config) *Indexer {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	mode := ModeBounded
	if config.Follow {
		mode = ModeFollowing
	}
	return &Indexer{
		Scanner:    scanner,
		Datasource: datasource,
		Checkpoint: store,
		config:     config,
		status:     Status{Mode: mode},

		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

func (i *Indexer) Shutdown() error {
	return i.ShutdownWithContext(context.Background())
}

func (i *Indexer) ShutdownWithTimeout(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return i.ShutdownWithContext(ctx)
}

// ShutdownWithContext stops the indexer after the in-flight batch and waits for Run to return.
func (i *Indexer) ShutdownWithContext(ctx context.Context) (err error) {
	i.quitOnce.Do(func() {
		close(i.quit)
		select {
		case <-i.done:
		case <-time.After(shutdownTimeout):
			err = errors.Wrap(errs.Timeout, "indexer shutdown timeout")
		case <-ctx.Done():
			err = errors.Wrap(ctx.Err(), "indexer shutdown context canceled")
		}
	})
	return
}

// Done is closed when Run returns.
func (i *Indexer) Done() <-chan struct{} {
	return i.done
}

// Status returns the current status of the indexer.
func (i *Indexer) Status() Status {
	i.statusMu.RLock()
	defer i.statusMu.RUnlock()
	return i.status
}

func (i *Indexer) updateStatus(fn func(*Status)) {
	i.statusMu.Lock()
	defer i.statusMu.Unlock()
	fn(&i.status)
	i.status.UpdatedAt = time.Now()
}

func (i *Indexer) Run(ctx context.Context) (err error) {
	defer close(i.done)

	ctx = logger.WithContext(ctx,
		slogx.String("package", "indexer"),
		slogx.String("datasource", i.Datasource.Name()),
		slogx.String("checkpoint", i.Checkpoint.Name()),
		slogx.String("mode", string(i.Status().Mode)),
	)

	// cancel the run context on quit signal, the scanner stops between batches
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-i.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	i.updateStatus(func(s *Status) { s.Running = true })
	defer i.updateStatus(func(s *Status) { s.Running = false })

	head, err := i.head(ctx)
	if err != nil {
		return errors.Wrap(err, "can't get head position")
	}

	start := checkpoint.Resume(ctx, i.Checkpoint, head, i.config.DefaultLag)
	if i.config.Start != nil {
		start = *i.config.Start
	}
	i.updateStatus(func(s *Status) { s.NextPosition = start })

	if i.config.Follow {
		return i.follow(ctx, start)
	}
	return i.bounded(ctx, start, head)
}

func (i *Indexer) bounded(ctx context.Context, start, head uint64) error {
	end := head
	if i.config.End != nil && *i.config.End < head {
		end = *i.config.End
	}

	ctx = logger.WithContext(ctx, slogx.Position("from", start), slogx.Position("to", end))
	logger.InfoContext(ctx, "Start scanning range", slogx.Uint64("total_blocks", blockCount(start, end)))

	startAt := time.Now()
	result, err := i.Scanner.RunRange(ctx, start, end)
	i.recordResult(result, err)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.InfoContext(ctx, "Scan stopped before completion",
				slogx.Int("records", result.Records),
				slogx.Position("last_position", result.LastPosition),
				slogx.Int("batches", result.Batches),
			)
			return nil
		}
		return errors.Wrapf(err, "scan failed after %d batches", result.Batches)
	}

	logger.InfoContext(ctx, "Finished scanning range",
		slogx.String("event", "scan_finished"),
		slogx.Int("records", result.Records),
		slogx.Int("unavailable", result.Unavailable),
		slogx.Position("checkpoint", result.LastPosition),
		slogx.Duration("duration", time.Since(startAt)),
	)
	return nil
}

func (i *Indexer) follow(ctx context.Context, current uint64) error {
	logger.InfoContext(ctx, "Follow mode on, tailing new blocks", slogx.Position("from", current))

	for {
		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "Got quit signal, stopping indexer")
			return nil
		default:
		}

		current = i.tick(ctx, current)

		logger.DebugContext(ctx, "Waiting for next polling interval")
		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "Got quit signal, stopping indexer")
			return nil
		case <-time.After(i.config.PollInterval):
		}
	}
}

// tick scans [current, head] if the head has reached current and returns the next position to scan.
// Errors are logged and never stop the loop.
func (i *Indexer) tick(ctx context.Context, current uint64) uint64 {
	head, err := i.head(ctx)
	if err != nil {
		i.recordError(err)
		logger.ErrorContext(ctx, "Failed to get head position", slogx.Error(err))
		return current
	}
	if head < current {
		return current
	}

	ctx = logger.WithContext(ctx, slogx.Position("from", current), slogx.Position("to", head))
	result, err := i.Scanner.RunRange(ctx, current, head)
	i.recordResult(result, err)

	next := head + 1
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.ErrorContext(ctx, "Failed to scan range, retrying on next tick", slogx.Error(err))
		}
		// resume after the last completed batch
		next = current
		if result.Batches > 0 {
			next = result.LastPosition + 1
		}
	}
	i.updateStatus(func(s *Status) { s.NextPosition = next })
	return next
}

func (i *Indexer) head(ctx context.Context) (uint64, error) {
	head, err := i.Datasource.Head(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	i.Metrics.SetHead(head)
	i.updateStatus(func(s *Status) { s.Head = head })
	return head, nil
}

func (i *Indexer) recordResult(result scanner.Result, err error) {
	i.updateStatus(func(s *Status) {
		s.TotalRecords += result.Records
		if err != nil && !errors.Is(err, context.Canceled) {
			s.LastError = err.Error()
		} else if err == nil {
			s.LastError = ""
		}
	})
}

func (i *Indexer) recordError(err error) {
	i.Metrics.IncError("head")
	i.updateStatus(func(s *Status) { s.LastError = err.Error() })
}

func blockCount(start, end uint64) uint64 {
	if start > end {
		return 0
	}
	return end - start + 1
}
