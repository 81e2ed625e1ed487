package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Transfer is one value-movement (a transaction) inside a block.
type Transfer struct {
	Hash     common.Hash
	From     common.Address
	To       *common.Address // nil for contract creation
	ValueWei *uint256.Int
}

// IsContractCreation returns true if the transfer has no recipient.
func (t Transfer) IsContractCreation() bool {
	return t.To == nil
}

// Item is the payload of one block position.
type Item struct {
	Position  uint64
	Transfers []Transfer
}
