package types

import (
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gaze-network/dust-indexer/common/errs"
	"github.com/shopspring/decimal"
)

// DustRecordColumns is the fixed column header of the dust dataset.
var DustRecordColumns = []string{"position", "hash", "valueEther", "from", "to"}

// DustRecord is a transfer whose value falls inside the dust band.
type DustRecord struct {
	Position   uint64
	Hash       common.Hash
	ValueEther decimal.Decimal
	From       common.Address
	To         common.Address
}

// Row returns the record as a dataset row, in DustRecordColumns order.
func (r DustRecord) Row() []string {
	return []string{
		strconv.FormatUint(r.Position, 10),
		r.Hash.Hex(),
		r.ValueEther.String(),
		r.From.Hex(),
		r.To.Hex(),
	}
}

// ParseDustRecordRow parses a dataset row written by [DustRecord.Row].
func ParseDustRecordRow(row []string) (DustRecord, error) {
	if len(row) != len(DustRecordColumns) {
		return DustRecord{}, errors.Wrapf(errs.InvalidArgument, "expected %d columns, got %d", len(DustRecordColumns), len(row))
	}
	position, err := strconv.ParseUint(row[0], 10, 64)
	if err != nil {
		return DustRecord{}, errors.Wrapf(errs.InvalidArgument, "invalid position %q", row[0])
	}
	hash, err := hexutil.Decode(row[1])
	if err != nil || len(hash) != common.HashLength {
		return DustRecord{}, errors.Wrapf(errs.InvalidArgument, "invalid hash %q", row[1])
	}
	value, err := decimal.NewFromString(row[2])
	if err != nil {
		return DustRecord{}, errors.Wrapf(errs.InvalidArgument, "invalid value %q", row[2])
	}
	if !common.IsHexAddress(row[3]) {
		return DustRecord{}, errors.Wrapf(errs.InvalidArgument, "invalid from address %q", row[3])
	}
	if !common.IsHexAddress(row[4]) {
		return DustRecord{}, errors.Wrapf(errs.InvalidArgument, "invalid to address %q", row[4])
	}
	return DustRecord{
		Position:   position,
		Hash:       common.BytesToHash(hash),
		ValueEther: value,
		From:       common.HexToAddress(row[3]),
		To:         common.HexToAddress(row[4]),
	}, nil
}
