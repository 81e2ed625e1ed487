package checkpoint

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/dust-indexer/common/errs"
	"github.com/gaze-network/dust-indexer/pkg/logger"
	"github.com/gaze-network/dust-indexer/pkg/logger/slogx"
)

// DefaultLag is the default number of blocks behind the head to start from
// when there is no checkpoint.
const DefaultLag = 1000

// ErrBehind is returned by Save when the position is lower than the stored checkpoint.
var ErrBehind = errors.Wrap(errs.InvalidArgument, "position is behind the stored checkpoint")

// Store persists the last fully scanned position.
type Store interface {
	// Name returns the name of the store backend.
	Name() string

	// Load returns the last durably saved position.
	// ok is false if no checkpoint has been saved yet.
	Load(ctx context.Context) (position uint64, ok bool, err error)

	// Save durably persists position, overwriting the previous checkpoint.
	// A half-written checkpoint must never be observed by Load.
	Save(ctx context.Context, position uint64) error
}

// Resume returns the position to resume scanning from: the stored checkpoint,
// or head minus defaultLag (floored at zero) if there is no readable checkpoint.
func Resume(ctx context.Context, store Store, head, defaultLag uint64) uint64 {
	ctx = logger.WithContext(ctx, slogx.String("package", "checkpoint"), slogx.String("store", store.Name()))

	position, ok, err := store.Load(ctx)
	if err != nil {
		logger.WarnContext(ctx, "Checkpoint is unreadable, falling back to default lag",
			slogx.Error(err),
			slogx.Position("head", head),
			slogx.Uint64("default_lag", defaultLag),
		)
		ok = false
	}
	if ok {
		return position
	}

	if head < defaultLag {
		return 0
	}
	return head - defaultLag
}
