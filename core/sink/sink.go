package sink

import (
	"context"

	"github.com/gaze-network/dust-indexer/core/types"
)

// Sink is an append-only store of dust records.
type Sink interface {
	Name() string

	// Append adds a record to the sink. Records may be buffered until Flush.
	Append(ctx context.Context, record types.DustRecord) error

	// Flush durably persists every record appended so far.
	Flush(ctx context.Context) error

	Close() error
}
