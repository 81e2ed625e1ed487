package datasources

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/dust-indexer/common/errs"
	"github.com/gaze-network/dust-indexer/pkg/httpclient"
	"github.com/gaze-network/dust-indexer/pkg/metrics"
)

const jsonRPCVersion = "2.0"

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("json-rpc error %d: %s", e.Code, e.Message)
}

// rpcClient is a minimal JSON-RPC 2.0 client over fasthttp.
type rpcClient struct {
	client  *httpclient.Client
	metrics *metrics.Metrics
	nextID  atomic.Uint64
}

// call invokes method and decodes the result into out.
// A null result is reported as errs.NotFound.
func (c *rpcClient) call(ctx context.Context, out any, method string, params ...any) (err error) {
	start := time.Now()
	c.metrics.IncRPCInFlight()
	defer func() {
		c.metrics.DecRPCInFlight()
		c.metrics.RecordRPCCall(method, err, time.Since(start).Seconds())
	}()

	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: jsonRPCVersion,
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return errors.Wrapf(err, "can't marshal %s request", method)
	}

	resp, err := c.client.Post(ctx, "", httpclient.RequestOptions{Body: body})
	if err != nil {
		return errors.Wrapf(err, "%s request failed", method)
	}
	if !resp.IsSuccess() {
		return errors.Wrapf(errs.Unavailable, "%s request failed with status %d: %s", method, resp.StatusCode(), string(resp.Body()))
	}

	var rpcResp rpcResponse
	if err := resp.UnmarshalBody(&rpcResp); err != nil {
		return errors.Wrapf(err, "can't decode %s response", method)
	}
	if rpcResp.Error != nil {
		return errors.Wrap(errors.WithStack(rpcResp.Error), method)
	}
	if len(rpcResp.Result) == 0 || string(rpcResp.Result) == "null" {
		return errors.Wrapf(errs.NotFound, "%s returned null result", method)
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return errors.Wrapf(err, "can't decode %s result", method)
	}
	return nil
}
