package decimals

import (
	"math"
	"math/big"

	"github.com/Cleverse/go-utilities/utils"
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/dust-indexer/common/errs"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

const (
	DefaultDivPrecision = 36

	// EtherDecimals is the number of decimals between wei and ether.
	EtherDecimals = 18
)

func init() {
	decimal.DivisionPrecision = DefaultDivPrecision
}

// MustFromString convert string to decimal.Decimal. Panic if error
// string must be a valid number, not NaN, Inf or empty string.
func MustFromString(s string) decimal.Decimal {
	return utils.Must(decimal.NewFromString(s))
}

// ToDecimal convert integer amount to decimal.Decimal with the given decimals (exact, no floating point).
// Unsupported types are converted to zero.
func ToDecimal(ivalue any, decimals int32) decimal.Decimal {
	value := new(big.Int)
	switch v := ivalue.(type) {
	case string:
		value.SetString(v, 10)
	case *big.Int:
		if v != nil {
			value = v
		}
	case int64:
		value.SetInt64(v)
	case int:
		value.SetInt64(int64(v))
	case uint64:
		value.SetUint64(v)
	case uint256.Int:
		value = v.ToBig()
	case *uint256.Int:
		if v != nil {
			value = v.ToBig()
		}
	}
	return decimal.NewFromBigInt(value, -decimals)
}

// WeiToEther converts an amount in wei to ether.
func WeiToEther(wei *uint256.Int) decimal.Decimal {
	return ToDecimal(wei, EtherDecimals)
}

// ToUint256 converts a decimal amount to an integer amount with the given decimals.
// Returns error if the amount is negative, has more precision than decimals or overflows 256 bits.
func ToUint256(amount decimal.Decimal, decimals int32) (*uint256.Int, error) {
	if amount.IsNegative() {
		return nil, errors.Wrapf(errs.InvalidArgument, "negative amount %s", amount)
	}
	if decimals < 0 || decimals > math.MaxInt32/2 {
		return nil, errors.Wrapf(errs.InvalidArgument, "invalid decimals %d", decimals)
	}
	scaled := amount.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, errors.Wrapf(errs.InvalidArgument, "amount %s has more than %d decimals", amount, decimals)
	}
	result, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, errors.Wrapf(errs.InvalidArgument, "amount %s overflows uint256", amount)
	}
	return result, nil
}

// EtherToWei converts an amount in ether to wei.
func EtherToWei(ether decimal.Decimal) (*uint256.Int, error) {
	wei, err := ToUint256(ether, EtherDecimals)
	return wei, errors.WithStack(err)
}
