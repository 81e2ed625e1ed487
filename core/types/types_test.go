package types

import (
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gaze-network/dust-indexer/common/errs"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchResult(t *testing.T) {
	t.Run("fetched_empty_item", func(t *testing.T) {
		r := Fetched(Item{Position: 10})
		item, ok := r.Item()
		assert.True(t, ok)
		assert.True(t, r.IsAvailable())
		assert.NoError(t, r.Reason())
		assert.Empty(t, item.Transfers, "zero transfers observed")
		assert.EqualValues(t, 10, r.Position())
	})

	t.Run("unavailable", func(t *testing.T) {
		r := Unavailable(11, errors.New("connection refused"))
		_, ok := r.Item()
		assert.False(t, ok)
		assert.False(t, r.IsAvailable())
		assert.ErrorIs(t, r.Reason(), errs.Unavailable)
		assert.EqualValues(t, 11, r.Position())
	})

	t.Run("unavailable_without_reason", func(t *testing.T) {
		r := Unavailable(12, nil)
		assert.False(t, r.IsAvailable())
		assert.ErrorIs(t, r.Reason(), errs.Unavailable)
	})
}

func TestDustRecordRow(t *testing.T) {
	record := DustRecord{
		Position:   19_000_000,
		Hash:       common.HexToHash("0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"),
		ValueEther: decimal.RequireFromString("0.005"),
		From:       common.HexToAddress("0x00000000219ab540356cbb839cbe05303d7705fa"),
		To:         common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"),
	}

	row := record.Row()
	require.Len(t, row, len(DustRecordColumns))
	assert.Equal(t, "19000000", row[0])
	assert.Equal(t, "0.005", row[2])

	parsed, err := ParseDustRecordRow(row)
	require.NoError(t, err)
	assert.Equal(t, record.Position, parsed.Position)
	assert.Equal(t, record.Hash, parsed.Hash)
	assert.True(t, record.ValueEther.Equal(parsed.ValueEther))
	assert.Equal(t, record.From, parsed.From)
	assert.Equal(t, record.To, parsed.To)
}

func TestParseDustRecordRowInvalid(t *testing.T) {
	valid := []string{
		"1",
		"0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060",
		"0.001",
		"0x00000000219ab540356cbb839cbe05303d7705fa",
		"0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2",
	}
	testcases := map[string]func([]string) []string{
		"columns":             func(r []string) []string { return r[:4] },
		"position":            func(r []string) []string { r[0] = "-1"; return r },
		"hash":                func(r []string) []string { r[1] = "0x1234"; return r },
		"hash without prefix": func(r []string) []string { r[1] = r[1][2:]; return r },
		"hash not hex":        func(r []string) []string { r[1] = "0x" + strings.Repeat("zz", 32); return r },
		"value":               func(r []string) []string { r[2] = "abc"; return r },
		"from":                func(r []string) []string { r[3] = "0xzz"; return r },
		"to":                  func(r []string) []string { r[4] = ""; return r },
	}
	for name, mutate := range testcases {
		t.Run(name, func(t *testing.T) {
			row := mutate(append([]string{}, valid...))
			_, err := ParseDustRecordRow(row)
			assert.ErrorIs(t, err, errs.InvalidArgument)
		})
	}
}
