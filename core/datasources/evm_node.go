package datasources

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Cleverse/go-utilities/utils"
	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gaze-network/dust-indexer/core/types"
	"github.com/gaze-network/dust-indexer/pkg/httpclient"
	"github.com/gaze-network/dust-indexer/pkg/logger"
	"github.com/gaze-network/dust-indexer/pkg/logger/slogx"
	"github.com/gaze-network/dust-indexer/pkg/metrics"
	"github.com/holiman/uint256"
)

// DefaultRequestTimeout is the default timeout of a single node request.
const DefaultRequestTimeout = 90 * time.Second

const (
	methodBlockNumber      = "eth_blockNumber"
	methodGetBlockByNumber = "eth_getBlockByNumber"
	methodChainID          = "eth_chainId"
)

// Make sure to implement the Datasource interface
var _ Datasource = (*EVMNodeDatasource)(nil)

type EVMNodeConfig struct {
	URL     string
	Timeout time.Duration
	Headers map[string]string
	Debug   bool
}

// EVMNodeDatasource fetch blocks from an EVM node over JSON-RPC.
type EVMNodeDatasource struct {
	rpc *rpcClient
}

func NewEVMNodeDatasource(conf EVMNodeConfig, m *metrics.Metrics) (*EVMNodeDatasource, error) {
	client, err := httpclient.New(conf.URL, httpclient.Config{
		Debug:   conf.Debug,
		Timeout: utils.Default(conf.Timeout, DefaultRequestTimeout),
		Headers: conf.Headers,
	})
	if err != nil {
		return nil, errors.Wrap(err, "can't create json-rpc client")
	}
	return &EVMNodeDatasource{
		rpc: &rpcClient{
			client:  client,
			metrics: m,
		},
	}, nil
}

func (d *EVMNodeDatasource) Name() string {
	return "evm_node"
}

func (d *EVMNodeDatasource) Head(ctx context.Context) (uint64, error) {
	var head hexutil.Uint64
	if err := d.rpc.call(ctx, &head, methodBlockNumber); err != nil {
		return 0, errors.Wrap(err, "can't get head position")
	}
	return uint64(head), nil
}

func (d *EVMNodeDatasource) ChainID(ctx context.Context) (uint64, error) {
	var chainID hexutil.Uint64
	if err := d.rpc.call(ctx, &chainID, methodChainID); err != nil {
		return 0, errors.Wrap(err, "can't get chain id")
	}
	return uint64(chainID), nil
}

type rpcBlock struct {
	Number       hexutil.Uint64    `json:"number"`
	Hash         common.Hash       `json:"hash"`
	Transactions []json.RawMessage `json:"transactions"`
}

type rpcTransaction struct {
	Hash  common.Hash     `json:"hash"`
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to"`
	Value *hexutil.Big    `json:"value"`
}

// Fetch fetches the block at position with full transaction objects.
func (d *EVMNodeDatasource) Fetch(ctx context.Context, position uint64) types.FetchResult {
	var block rpcBlock
	if err := d.rpc.call(ctx, &block, methodGetBlockByNumber, hexutil.EncodeUint64(position), true); err != nil {
		return types.Unavailable(position, errors.Wrapf(err, "can't fetch block %d", position))
	}
	if uint64(block.Number) != position {
		return types.Unavailable(position, errors.Newf("node returned block %d for position %d", uint64(block.Number), position))
	}

	transfers := make([]types.Transfer, 0, len(block.Transactions))
	for i, raw := range block.Transactions {
		transfer, err := decodeTransfer(raw)
		if err != nil {
			logger.DebugContext(ctx, "Skipped undecodable transaction",
				slogx.String("package", "datasources"),
				slogx.Position("position", position),
				slogx.Int("index", i),
				slogx.Error(err),
			)
			continue
		}
		transfers = append(transfers, transfer)
	}

	return types.Fetched(types.Item{
		Position:  position,
		Transfers: transfers,
	})
}

func decodeTransfer(raw json.RawMessage) (types.Transfer, error) {
	var tx rpcTransaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return types.Transfer{}, errors.Wrap(err, "can't decode transaction")
	}
	if tx.Hash == (common.Hash{}) {
		return types.Transfer{}, errors.New("transaction has no hash")
	}
	if tx.Value == nil {
		return types.Transfer{}, errors.Newf("transaction %s has no value", tx.Hash)
	}
	value, overflow := uint256.FromBig(tx.Value.ToInt())
	if overflow || tx.Value.ToInt().Sign() < 0 {
		return types.Transfer{}, errors.Newf("transaction %s has out of range value", tx.Hash)
	}
	return types.Transfer{
		Hash:     tx.Hash,
		From:     tx.From,
		To:       tx.To,
		ValueWei: value,
	}, nil
}

// Shutdown releases idle connections of the underlying client.
func (d *EVMNodeDatasource) Shutdown(context.Context) error {
	return d.Close()
}

func (d *EVMNodeDatasource) Close() error {
	d.rpc.client.CloseIdleConnections()
	return nil
}
