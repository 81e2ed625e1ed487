package progress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gaze-network/dust-indexer/pkg/logger"
	"github.com/gaze-network/dust-indexer/pkg/logger/slogx"
)

// DefaultLogEvery is the default number of batches between status lines.
const DefaultLogEvery = 10

// Snapshot is the progress of a range scan after a completed batch.
type Snapshot struct {
	RangeStart   uint64        `json:"rangeStart"`
	RangeEnd     uint64        `json:"rangeEnd"`
	BatchStart   uint64        `json:"batchStart"`
	BatchEnd     uint64        `json:"batchEnd"`
	BatchFound   int           `json:"batchFound"`
	TotalFound   int           `json:"totalFound"`
	DoneBlocks   uint64        `json:"doneBlocks"`
	TotalBlocks  uint64        `json:"totalBlocks"`
	BatchesDone  uint64        `json:"batchesDone"`
	BatchesTotal uint64        `json:"batchesTotal"`
	Percent      float64       `json:"percent"`
	Elapsed      time.Duration `json:"elapsed"`
	ETA          time.Duration `json:"eta"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// Completed reports whether every block of the range has been scanned.
func (s Snapshot) Completed() bool {
	return s.DoneBlocks >= s.TotalBlocks
}

// Reporter derives throughput and ETA of a range scan from batch completions.
// It never affects control flow.
type Reporter struct {
	start     uint64
	end       uint64
	batchSize uint64
	logEvery  uint64
	now       func() time.Time

	mu       sync.RWMutex
	startAt  time.Time
	snapshot Snapshot
}

type Option func(*Reporter)

// WithClock overrides the clock used to measure elapsed time.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) {
		r.now = now
	}
}

// NewReporter creates a reporter for the range [start, end] scanned in batches of batchSize.
// Elapsed time is measured from the call to NewReporter.
func NewReporter(start, end uint64, batchSize, logEvery int, opts ...Option) *Reporter {
	r := &Reporter{
		start:     start,
		end:       end,
		batchSize: uint64(max(batchSize, 1)),
		logEvery:  uint64(max(logEvery, 1)),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.startAt = r.now()

	var total uint64
	if end >= start {
		total = end - start + 1
	}
	r.snapshot = Snapshot{
		RangeStart:   start,
		RangeEnd:     end,
		TotalBlocks:  total,
		BatchesTotal: (total + r.batchSize - 1) / r.batchSize,
		UpdatedAt:    r.startAt,
	}
	return r
}

// Observe records a completed batch [batchStart, batchEnd] that produced found records,
// and logs a status line at the first batch, every logEvery batches and at completion.
func (r *Reporter) Observe(ctx context.Context, batchStart, batchEnd uint64, found int) Snapshot {
	r.mu.Lock()
	now := r.now()
	s := r.snapshot
	s.BatchStart = batchStart
	s.BatchEnd = batchEnd
	s.BatchFound = found
	s.TotalFound += found
	s.BatchesDone++
	s.DoneBlocks = min(s.TotalBlocks, batchEnd-r.start+1)
	s.Percent = 100
	if s.TotalBlocks > 0 {
		s.Percent = float64(s.DoneBlocks) / float64(s.TotalBlocks) * 100
	}
	s.Elapsed = now.Sub(r.startAt)
	s.ETA = 0
	if s.BatchesTotal > s.BatchesDone {
		avgPerBatch := s.Elapsed / time.Duration(s.BatchesDone)
		s.ETA = avgPerBatch * time.Duration(s.BatchesTotal-s.BatchesDone)
	}
	s.UpdatedAt = now
	r.snapshot = s
	r.mu.Unlock()

	if r.shouldLog(s) {
		logger.InfoContext(ctx, fmt.Sprintf("Blocks %d-%d | found %d | progress %.1f%% (%d/%d) | elapsed %s | ETA %s",
			s.BatchStart, s.BatchEnd, s.BatchFound, s.Percent, s.DoneBlocks, s.TotalBlocks, FormatDuration(s.Elapsed), FormatDuration(s.ETA)),
			slogx.String("package", "progress"),
			slogx.Position("checkpoint", s.BatchEnd),
			slogx.Int("found", s.BatchFound),
			slogx.Float64("percent", s.Percent),
		)
	}
	return s
}

func (r *Reporter) shouldLog(s Snapshot) bool {
	return s.BatchesDone == 1 || s.BatchesDone%r.logEvery == 0 || s.Completed()
}

// Snapshot returns the latest progress snapshot.
func (r *Reporter) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot
}

// FormatDuration formats d as "1h 2m 3s", "2m 3s" or "3s", truncated to whole seconds.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	seconds := int64(d / time.Second)
	h, m, s := seconds/3600, (seconds/60)%60, seconds%60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
