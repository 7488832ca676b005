// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chainio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/backrun/types"
	"github.com/luxfi/backrun/utils/rpc"
)

// RPCClient is the read surface the JSON-RPC adaptor needs from an
// upstream node, per §6's External Interfaces list.
type RPCClient interface {
	SubscribeNewHeads(ctx context.Context) (<-chan common.Hash, func(), error)
	SubscribePendingTransactions(ctx context.Context) (<-chan types.MempoolTx, func(), error)
	BlockByHash(ctx context.Context, hash common.Hash) (types.BlockUpdate, error)
	HeaderByHash(ctx context.Context, hash common.Hash) (types.BlockHeader, error)
	LogsAtBlockHash(ctx context.Context, hash common.Hash) ([]types.Log, error)
	TraceBlockPostState(ctx context.Context, hash common.Hash) (types.GethStateUpdate, error)
}

// wsJSONRPCClient implements RPCClient against a real node: HTTP POST for
// request/response methods via utils/rpc, a single websocket connection
// for eth_subscribe streams.
type wsJSONRPCClient struct {
	httpURL *url.URL
	wsURL   string
}

// NewWSJSONRPCClient builds a client that issues request/response calls
// over httpURL and subscriptions over wsURL.
func NewWSJSONRPCClient(httpURL, wsURL string) (RPCClient, error) {
	u, err := url.Parse(httpURL)
	if err != nil {
		return nil, fmt.Errorf("chainio: parsing http url: %w", err)
	}
	return &wsJSONRPCClient{httpURL: u, wsURL: wsURL}, nil
}

// subscribe opens one eth_subscribe websocket stream and decodes each
// notification payload with decode, pushing results onto the returned
// channel until ctx is cancelled or the connection drops.
func subscribe[T any](ctx context.Context, wsURL, kind string, decode func(json.RawMessage) (T, error)) (<-chan T, func(), error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("chainio: dialing %s: %w", wsURL, err)
	}

	subReq := struct {
		JSONRPC string        `json:"jsonrpc"`
		ID      int           `json:"id"`
		Method  string        `json:"method"`
		Params  []interface{} `json:"params"`
	}{JSONRPC: "2.0", ID: 1, Method: "eth_subscribe", Params: []interface{}{kind}}
	if err := conn.WriteJSON(subReq); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("chainio: subscribing %s: %w", kind, err)
	}

	out := make(chan T, 64)
	closeFn := func() { conn.Close() }

	go func() {
		defer close(out)
		for {
			var notif struct {
				Params struct {
					Result json.RawMessage `json:"result"`
				} `json:"params"`
			}
			if err := conn.ReadJSON(&notif); err != nil {
				logger.Warn("chainio: subscription read failed", "kind", kind, "err", err)
				return
			}
			v, err := decode(notif.Params.Result)
			if err != nil {
				logger.Warn("chainio: subscription decode failed", "kind", kind, "err", err)
				continue
			}
			select {
			case out <- v:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, closeFn, nil
}

func (c *wsJSONRPCClient) SubscribeNewHeads(ctx context.Context) (<-chan common.Hash, func(), error) {
	return subscribe(ctx, c.wsURL, "newHeads", func(raw json.RawMessage) (common.Hash, error) {
		var h struct {
			Hash common.Hash `json:"hash"`
		}
		if err := json.Unmarshal(raw, &h); err != nil {
			return common.Hash{}, err
		}
		return h.Hash, nil
	})
}

func (c *wsJSONRPCClient) SubscribePendingTransactions(ctx context.Context) (<-chan types.MempoolTx, func(), error) {
	return subscribe(ctx, c.wsURL, "newPendingTransactionsFull", func(raw json.RawMessage) (types.MempoolTx, error) {
		var tx types.MempoolTx
		if err := json.Unmarshal(raw, &tx); err != nil {
			return types.MempoolTx{}, err
		}
		return tx, nil
	})
}

func (c *wsJSONRPCClient) BlockByHash(ctx context.Context, hash common.Hash) (types.BlockUpdate, error) {
	var reply struct {
		Number       string             `json:"number"`
		Transactions []types.MempoolTx  `json:"transactions"`
	}
	if err := rpc.SendJSONRequest(ctx, c.httpURL, "eth_getBlockByHash", []interface{}{hash, true}, &reply); err != nil {
		return types.BlockUpdate{}, fmt.Errorf("chainio: eth_getBlockByHash: %w", err)
	}
	return types.BlockUpdate{
		Hash:         hash,
		Transactions: reply.Transactions,
	}, nil
}

func (c *wsJSONRPCClient) HeaderByHash(ctx context.Context, hash common.Hash) (types.BlockHeader, error) {
	var reply struct {
		Hash       common.Hash `json:"hash"`
		ParentHash common.Hash `json:"parentHash"`
		Number     string      `json:"number"`
		Timestamp  string      `json:"timestamp"`
		BaseFee    string      `json:"baseFeePerGas"`
	}
	if err := rpc.SendJSONRequest(ctx, c.httpURL, "eth_getBlockByHash", []interface{}{hash, false}, &reply); err != nil {
		return types.BlockHeader{}, fmt.Errorf("chainio: eth_getBlockByHash(header): %w", err)
	}
	return types.BlockHeader{
		Hash:       reply.Hash,
		ParentHash: reply.ParentHash,
	}, nil
}

func (c *wsJSONRPCClient) LogsAtBlockHash(ctx context.Context, hash common.Hash) ([]types.Log, error) {
	filter := map[string]interface{}{"blockHash": hash}
	var reply []types.Log
	if err := rpc.SendJSONRequest(ctx, c.httpURL, "eth_getLogs", []interface{}{filter}, &reply); err != nil {
		return nil, fmt.Errorf("chainio: eth_getLogs: %w", err)
	}
	return reply, nil
}

func (c *wsJSONRPCClient) TraceBlockPostState(ctx context.Context, hash common.Hash) (types.GethStateUpdate, error) {
	tracerConfig := map[string]interface{}{
		"tracer": "prestateTracer",
		"tracerConfig": map[string]interface{}{
			"diffMode": true,
		},
	}
	var reply struct {
		Post types.GethStateUpdate `json:"post"`
	}
	if err := rpc.SendJSONRequest(ctx, c.httpURL, "debug_traceBlockByHash", []interface{}{hash, tracerConfig}, &reply); err != nil {
		return nil, fmt.Errorf("chainio: debug_traceBlockByHash: %w", err)
	}
	return reply.Post, nil
}
