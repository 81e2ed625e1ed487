package dust

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gaze-network/dust-indexer/common/errs"
	"github.com/gaze-network/dust-indexer/core/types"
	"github.com/gaze-network/dust-indexer/pkg/decimals"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTransfer(wei *uint256.Int) types.Transfer {
	to := common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	return types.Transfer{
		Hash:     common.HexToHash("0x01"),
		From:     common.HexToAddress("0x00000000219ab540356cbb839cbe05303d7705fa"),
		To:       &to,
		ValueWei: wei,
	}
}

func defaultFilter(t *testing.T) *Filter {
	f, err := NewFilter(DefaultMin, DefaultMax)
	require.NoError(t, err)
	return f
}

func TestClassify(t *testing.T) {
	f := defaultFilter(t)

	t.Run("half_cent_matches", func(t *testing.T) {
		record, ok := f.Classify(42, newTransfer(uint256.NewInt(5_000_000_000_000_000)))
		require.True(t, ok)
		assert.EqualValues(t, 42, record.Position)
		assert.Equal(t, "0.005", record.ValueEther.String())
		assert.Equal(t, common.HexToHash("0x01"), record.Hash)
		assert.Equal(t, common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"), record.To)
	})

	t.Run("zero_value_never_matches", func(t *testing.T) {
		_, ok := f.Classify(1, newTransfer(uint256.NewInt(0)))
		assert.False(t, ok)

		wide, err := NewFilter(decimals.MustFromString("0"), decimals.MustFromString("1000"))
		require.NoError(t, err)
		_, ok = wide.Classify(1, newTransfer(uint256.NewInt(0)))
		assert.False(t, ok, "zero value must not match regardless of bounds")
	})

	t.Run("nil_value_never_matches", func(t *testing.T) {
		_, ok := f.Classify(1, newTransfer(nil))
		assert.False(t, ok)
	})

	t.Run("contract_creation_never_matches", func(t *testing.T) {
		transfer := newTransfer(uint256.NewInt(5_000_000_000_000_000))
		transfer.To = nil
		_, ok := f.Classify(1, transfer)
		assert.False(t, ok)
	})

	t.Run("large_value", func(t *testing.T) {
		_, ok := f.Classify(1, newTransfer(new(uint256.Int).SetAllOne()))
		assert.False(t, ok)
	})
}

func TestClassifyBandInclusivity(t *testing.T) {
	f := defaultFilter(t)
	minWei, err := decimals.EtherToWei(DefaultMin)
	require.NoError(t, err)
	maxWei, err := decimals.EtherToWei(DefaultMax)
	require.NoError(t, err)

	one := uint256.NewInt(1)
	testcases := []struct {
		name     string
		wei      *uint256.Int
		expected bool
	}{
		{"exact_min", minWei, true},
		{"exact_max", maxWei, true},
		{"one_wei_below_min", new(uint256.Int).Sub(minWei, one), false},
		{"one_wei_above_max", new(uint256.Int).Add(maxWei, one), false},
		{"one_wei_above_min", new(uint256.Int).Add(minWei, one), true},
		{"one_wei_below_max", new(uint256.Int).Sub(maxWei, one), true},
		{"one_wei", one, false},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := f.Classify(1, newTransfer(tc.wei))
			assert.Equal(t, tc.expected, ok)
		})
	}
}

func TestClassifyIsPure(t *testing.T) {
	f := defaultFilter(t)
	transfer := newTransfer(uint256.NewInt(123_000_000_000_000))

	first, ok1 := f.Classify(7, transfer)
	second, ok2 := f.Classify(7, transfer)
	assert.Equal(t, ok1, ok2)
	assert.Equal(t, first.Hash, second.Hash)
	assert.True(t, first.ValueEther.Equal(second.ValueEther))
	assert.Equal(t, "123000000000000", transfer.ValueWei.Dec(), "input must not be mutated")
}

func TestNewFilter(t *testing.T) {
	testcases := []struct {
		name    string
		min     string
		max     string
		wantErr bool
	}{
		{"defaults", "0.00001", "0.01", false},
		{"single_point_band", "0.01", "0.01", false},
		{"zero_min", "0", "0.01", false},
		{"negative_min", "-0.1", "0.01", true},
		{"zero_max", "0", "0", true},
		{"min_greater_than_max", "0.1", "0.01", true},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := NewFilter(decimals.MustFromString(tc.min), decimals.MustFromString(tc.max))
			if tc.wantErr {
				assert.ErrorIs(t, err, errs.InvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.min, f.Min().String())
		})
	}
}
