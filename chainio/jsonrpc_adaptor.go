// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chainio

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/backrun/actor"
	"github.com/luxfi/backrun/types"
)

// JSONRPCAdaptor subscribes to new heads and, per hash, fans out to
// header/block/logs/state-diff fetches — the Go reshaping of
// node_block_hash_worker.rs plus its three per-hash sibling workers
// (node_block_with_tx_worker.rs, node_block_logs_worker.rs,
// node_block_state_worker.rs), each originally fed by its own
// tokio::sync::broadcast::Receiver<BlockHash>. Here a single internal
// Broadcaster[common.Hash] plays that role so the four derived fetches
// run as independent goroutines instead of being interleaved in one
// select loop.
type JSONRPCAdaptor struct {
	client RPCClient
	feed   *Feed
	name   string

	dedup   *hashDedup
	limiter *rate.Limiter

	hashes *actor.Broadcaster[common.Hash]
}

// NewJSONRPCAdaptor builds an adaptor publishing into feed.
func NewJSONRPCAdaptor(name string, client RPCClient, feed *Feed) *JSONRPCAdaptor {
	return &JSONRPCAdaptor{
		client:  client,
		feed:    feed,
		name:    name,
		dedup:   newHashDedup(0, defaultDedupWindow),
		limiter: rate.NewLimiter(rate.Every(defaultRetryBudget.spacing), defaultRetryBudget.attempts),
		hashes:  actor.NewBroadcaster[common.Hash](256),
	}
}

func (a *JSONRPCAdaptor) Name() string { return a.name }

// Start spawns the head-subscription worker plus one worker per derived
// fetch (header, block, logs, state-diff) and the mempool tap. Each
// derived fetch runs against its own subscription to a.hashes rather than
// a shared cursor, so each feed sees hashes in head order, but the
// relative order in which the header, logs, block and state-diff messages
// for one hash are published is not fixed.
func (a *JSONRPCAdaptor) Start(ctx context.Context) ([]actor.TaskFunc, error) {
	return []actor.TaskFunc{
		a.runHeadSubscription,
		a.runHeaderFetcher(a.hashes.Subscribe()),
		a.runBlockFetcher(a.hashes.Subscribe()),
		a.runLogsFetcher(a.hashes.Subscribe()),
		a.runStateFetcher(a.hashes.Subscribe()),
		a.runMempoolTap,
	}, nil
}

func (a *JSONRPCAdaptor) runHeadSubscription(ctx context.Context) error {
	heads, closeFn, err := a.client.SubscribeNewHeads(ctx)
	if err != nil {
		return fmt.Errorf("jsonrpc adaptor %s: subscribe heads: %w", a.name, err)
	}
	defer closeFn()

	for {
		select {
		case h, ok := <-heads:
			if !ok {
				return fmt.Errorf("jsonrpc adaptor %s: head subscription closed", a.name)
			}
			if a.dedup.Seen(h) {
				continue
			}
			if _, err := a.hashes.Send(h); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (a *JSONRPCAdaptor) runHeaderFetcher(sub *actor.Receiver[common.Hash]) actor.TaskFunc {
	return func(ctx context.Context) error {
		for {
			h, missed, err := sub.Recv(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			if missed > 0 {
				logger.Warn("jsonrpc adaptor header fetcher lagged", "adaptor", a.name, "missed", missed)
			}
			var header types.BlockHeader
			err = withRetry(ctx, defaultRetryBudget, a.limiter, func() error {
				var fetchErr error
				header, fetchErr = a.client.HeaderByHash(ctx, h)
				return fetchErr
			})
			if err != nil {
				logger.Warn("jsonrpc adaptor: dropping header after retries", "adaptor", a.name, "hash", h, "err", err)
				continue
			}
			if _, err := a.feed.Headers.Send(header); err != nil {
				return err
			}
		}
	}
}

func (a *JSONRPCAdaptor) runBlockFetcher(sub *actor.Receiver[common.Hash]) actor.TaskFunc {
	return func(ctx context.Context) error {
		for {
			h, missed, err := sub.Recv(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			if missed > 0 {
				logger.Warn("jsonrpc adaptor block fetcher lagged", "adaptor", a.name, "missed", missed)
			}
			var block types.BlockUpdate
			err = withRetry(ctx, defaultRetryBudget, a.limiter, func() error {
				var fetchErr error
				block, fetchErr = a.client.BlockByHash(ctx, h)
				return fetchErr
			})
			if err != nil {
				logger.Warn("jsonrpc adaptor: dropping block after retries", "adaptor", a.name, "hash", h, "err", err)
				continue
			}
			if _, err := a.feed.Blocks.Send(block); err != nil {
				return err
			}
		}
	}
}

func (a *JSONRPCAdaptor) runLogsFetcher(sub *actor.Receiver[common.Hash]) actor.TaskFunc {
	return func(ctx context.Context) error {
		for {
			h, missed, err := sub.Recv(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			if missed > 0 {
				logger.Warn("jsonrpc adaptor logs fetcher lagged", "adaptor", a.name, "missed", missed)
			}
			var logs []types.Log
			err = withRetry(ctx, defaultRetryBudget, a.limiter, func() error {
				var fetchErr error
				logs, fetchErr = a.client.LogsAtBlockHash(ctx, h)
				return fetchErr
			})
			if err != nil {
				logger.Warn("jsonrpc adaptor: dropping logs after retries", "adaptor", a.name, "hash", h, "err", err)
				continue
			}
			if _, err := a.feed.Logs.Send(types.BlockLogs{Hash: h, Logs: logs}); err != nil {
				return err
			}
		}
	}
}

func (a *JSONRPCAdaptor) runStateFetcher(sub *actor.Receiver[common.Hash]) actor.TaskFunc {
	return func(ctx context.Context) error {
		for {
			h, missed, err := sub.Recv(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			if missed > 0 {
				logger.Warn("jsonrpc adaptor state fetcher lagged", "adaptor", a.name, "missed", missed)
			}
			var state types.GethStateUpdate
			err = withRetry(ctx, defaultRetryBudget, a.limiter, func() error {
				var fetchErr error
				state, fetchErr = a.client.TraceBlockPostState(ctx, h)
				return fetchErr
			})
			if err != nil {
				logger.Warn("jsonrpc adaptor: dropping state diff after retries", "adaptor", a.name, "hash", h, "err", err)
				continue
			}
			if _, err := a.feed.StateUpdates.Send(types.BlockStateUpdate{Hash: h, State: state}); err != nil {
				return err
			}
		}
	}
}

func (a *JSONRPCAdaptor) runMempoolTap(ctx context.Context) error {
	txs, closeFn, err := a.client.SubscribePendingTransactions(ctx)
	if err != nil {
		return fmt.Errorf("jsonrpc adaptor %s: subscribe mempool: %w", a.name, err)
	}
	defer closeFn()

	for {
		select {
		case tx, ok := <-txs:
			if !ok {
				return fmt.Errorf("jsonrpc adaptor %s: mempool subscription closed", a.name)
			}
			update := types.NodeMempoolDataUpdate{
				Envelope:  types.Envelope{Source: a.name},
				TxHash:    tx.Hash,
				MempoolTx: tx,
			}
			if _, err := a.feed.Mempool.Send(update); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}
