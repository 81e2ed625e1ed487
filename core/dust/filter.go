package dust

import (
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/dust-indexer/common/errs"
	"github.com/gaze-network/dust-indexer/core/types"
	"github.com/gaze-network/dust-indexer/pkg/decimals"
	"github.com/shopspring/decimal"
)

var (
	// DefaultMin is the default lower bound (inclusive) of the dust band in ether.
	DefaultMin = decimals.MustFromString("0.00001")

	// DefaultMax is the default upper bound (inclusive) of the dust band in ether.
	DefaultMax = decimals.MustFromString("0.01")
)

// Filter classifies transfers by value against an inclusive [Min, Max] ether band.
type Filter struct {
	min decimal.Decimal
	max decimal.Decimal
}

// NewFilter creates a dust filter for the inclusive band [min, max] in ether.
func NewFilter(min, max decimal.Decimal) (*Filter, error) {
	if min.IsNegative() {
		return nil, errors.Wrapf(errs.InvalidArgument, "dust min must not be negative, got %s", min)
	}
	if !max.IsPositive() {
		return nil, errors.Wrapf(errs.InvalidArgument, "dust max must be positive, got %s", max)
	}
	if min.GreaterThan(max) {
		return nil, errors.Wrapf(errs.InvalidArgument, "dust min %s is greater than dust max %s", min, max)
	}
	return &Filter{min: min, max: max}, nil
}

func (f *Filter) Min() decimal.Decimal { return f.min }

func (f *Filter) Max() decimal.Decimal { return f.max }

// Classify returns the dust record for the transfer at position, and false if the
// transfer doesn't match. Contract creations and zero-value transfers never match.
func (f *Filter) Classify(position uint64, t types.Transfer) (types.DustRecord, bool) {
	if t.IsContractCreation() || t.ValueWei == nil || t.ValueWei.IsZero() {
		return types.DustRecord{}, false
	}

	ether := decimals.WeiToEther(t.ValueWei)
	if ether.LessThan(f.min) || ether.GreaterThan(f.max) {
		return types.DustRecord{}, false
	}

	return types.DustRecord{
		Position:   position,
		Hash:       t.Hash,
		ValueEther: ether,
		From:       t.From,
		To:         *t.To,
	}, true
}
