package decimals

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDecimal(t *testing.T) {
	t.Run("check_supported_types", func(t *testing.T) {
		testcases := []struct {
			decimals int32
			value    uint64
			expected string
		}{
			{0, 1, "1"},
			{1, 1, "0.1"},
			{2, 1, "0.01"},
			{18, 1, "0.000000000000000001"},
			{18, 5_000_000_000_000_000, "0.005"},
			{36, 1, "0.000000000000000000000000000000000001"},
		}
		typesConv := []func(uint64) any{
			func(i uint64) any { return int(i) },
			func(i uint64) any { return int64(i) },
			func(i uint64) any { return i },
			func(i uint64) any { return fmt.Sprint(i) },
			func(i uint64) any { return new(big.Int).SetUint64(i) },
			func(i uint64) any { return uint256.NewInt(i) },
			func(i uint64) any { return *uint256.NewInt(i) },
		}
		for _, tc := range testcases {
			t.Run(fmt.Sprintf("%d_%d", tc.decimals, tc.value), func(t *testing.T) {
				for _, conv := range typesConv {
					input := conv(tc.value)
					t.Run(fmt.Sprintf("%T", input), func(t *testing.T) {
						actual := ToDecimal(input, tc.decimals)
						assert.Equal(t, tc.expected, actual.String())
					})
				}
			})
		}
	})

	t.Run("max_uint256", func(t *testing.T) {
		actual := ToDecimal(new(uint256.Int).SetAllOne(), 18)
		assert.Equal(t, "115792089237316195423570985008687907853269984665640564039457.584007913129639935", actual.String())
	})

	t.Run("nil_values", func(t *testing.T) {
		assert.True(t, ToDecimal((*uint256.Int)(nil), 18).IsZero())
		assert.True(t, ToDecimal((*big.Int)(nil), 18).IsZero())
	})
}

func TestEtherToWei(t *testing.T) {
	testcases := []struct {
		ether    string
		expected string
		wantErr  bool
	}{
		{"0", "0", false},
		{"0.00001", "10000000000000", false},
		{"0.01", "10000000000000000", false},
		{"1", "1000000000000000000", false},
		{"0.000000000000000001", "1", false},
		{"0.0000000000000000001", "", true},
		{"-1", "", true},
	}
	for _, tc := range testcases {
		t.Run(tc.ether, func(t *testing.T) {
			wei, err := EtherToWei(MustFromString(tc.ether))
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, wei.Dec())
		})
	}
}

func TestWeiToEtherRoundTrip(t *testing.T) {
	for _, s := range []string{"0.00001", "0.005", "0.01", "123.456789012345678901"} {
		t.Run(s, func(t *testing.T) {
			ether := MustFromString(s)
			wei, err := EtherToWei(ether)
			require.NoError(t, err)
			assert.True(t, ether.Equal(WeiToEther(wei)), "expected %s, got %s", ether, WeiToEther(wei))
		})
	}
	assert.True(t, decimal.Zero.Equal(WeiToEther(uint256.NewInt(0))))
}
