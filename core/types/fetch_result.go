package types

import (
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/dust-indexer/common/errs"
)

// FetchResult is the outcome of fetching one position from a datasource:
// either the fetched Item, or Unavailable with the reason it couldn't be fetched.
//
// An available result with zero transfers means "zero transfers observed",
// which is not the same as an unavailable result.
type FetchResult struct {
	position uint64
	item     Item
	reason   error
}

// Fetched returns an available result holding item.
func Fetched(item Item) FetchResult {
	return FetchResult{position: item.Position, item: item}
}

// Unavailable returns an unavailable result for the given position.
func Unavailable(position uint64, reason error) FetchResult {
	if reason == nil {
		reason = errs.Unavailable
	}
	if !errors.Is(reason, errs.Unavailable) {
		reason = errors.Mark(reason, errs.Unavailable)
	}
	return FetchResult{position: position, reason: reason}
}

// Position returns the position the result belongs to.
func (r FetchResult) Position() uint64 {
	return r.position
}

// Item returns the fetched item, and false if the result is unavailable.
func (r FetchResult) Item() (Item, bool) {
	if r.reason != nil {
		return Item{}, false
	}
	return r.item, true
}

// IsAvailable returns true if the item was fetched.
func (r FetchResult) IsAvailable() bool {
	return r.reason == nil
}

// Reason returns why the result is unavailable, or nil if available.
// The returned error always matches errs.Unavailable.
func (r FetchResult) Reason() error {
	return r.reason
}
