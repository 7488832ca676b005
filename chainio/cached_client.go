// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chainio

import (
	"context"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/backrun/chainio/rpccache"
	"github.com/luxfi/backrun/types"
)

// cachedRPCClient decorates an RPCClient with rpccache's read-through cache
// over its single most expensive call (debug_traceBlockByHash), per
// spec.md §6's optional on-disk RPC-response cache. Every other RPCClient
// method passes straight through to the embedded client.
type cachedRPCClient struct {
	RPCClient
	trace *rpccache.CachedTraceFetcher
}

// WithRPCCache wraps client so its TraceBlockPostState results are cached
// in store, keyed the way rpccache.CachedTraceFetcher describes. Pass the
// result to NewJSONRPCAdaptor in place of the bare client.
func WithRPCCache(client RPCClient, store rpccache.Store) RPCClient {
	return &cachedRPCClient{
		RPCClient: client,
		trace:     rpccache.NewCachedTraceFetcher(client, store),
	}
}

func (c *cachedRPCClient) TraceBlockPostState(ctx context.Context, hash common.Hash) (types.GethStateUpdate, error) {
	return c.trace.TraceBlockPostState(ctx, hash)
}
