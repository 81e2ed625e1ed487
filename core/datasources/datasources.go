package datasources

import (
	"context"

	"github.com/gaze-network/dust-indexer/core/types"
)

// Datasource is an interface for range sources: an append-only sequence of items
// addressed by position.
type Datasource interface {
	Name() string

	// Head returns the current head position.
	Head(ctx context.Context) (uint64, error)

	// Fetch fetches the item at the given position. Failures are reported as an
	// unavailable result instead of an error.
	Fetch(ctx context.Context, position uint64) types.FetchResult

	// ChainID returns the chain id served by the source.
	ChainID(ctx context.Context) (uint64, error)
}
