// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chainio

import (
	"context"
	"fmt"

	"github.com/luxfi/backrun/actor"
	"github.com/luxfi/backrun/types"
)

// ExExNotificationKind mirrors the embedded execution client's
// ExExNotification::{ChainCommitted,ChainReorged,ChainReverted} variants
// (§6).
type ExExNotificationKind uint8

const (
	ExExChainCommitted ExExNotificationKind = iota
	ExExChainReorged
	ExExChainReverted
)

// ExExNotification is one block-level event from an in-process execution
// client. Header/Block/Logs/State are populated for Committed and
// Reorged notifications; Reverted only needs Header (identifying what was
// rolled back — BlockHistory's own parent-hash linkage does the actual
// reorg bookkeeping once the replacement header arrives).
type ExExNotification struct {
	Kind   ExExNotificationKind
	Header types.BlockHeader
	Block  types.BlockUpdate
	Logs   types.BlockLogs
	State  types.BlockStateUpdate
}

// ExExSource is the embedded execution client's notification stream. A
// real integration adapts whatever the client's own Rust-shaped exex
// channel or local IPC exposes into this interface; tests substitute a
// fake that replays a fixed notification sequence.
type ExExSource interface {
	Notifications(ctx context.Context) (<-chan ExExNotification, error)
}

// MempoolSource is the embedded client's pending-transaction stream,
// analogous to reth_exex_worker.rs's mempool_worker.
type MempoolSource interface {
	PendingTransactions(ctx context.Context) (<-chan types.MempoolTx, error)
}

// ExExAdaptor re-publishes an embedded execution client's notifications
// onto the shared Feed, guaranteeing the same per-hash idempotence and
// four-message output contract as JSONRPCAdaptor (§4.2).
type ExExAdaptor struct {
	name    string
	source  ExExSource
	mempool MempoolSource
	feed    *Feed
	dedup   *hashDedup
}

// NewExExAdaptor builds an adaptor bridging source/mempool into feed.
func NewExExAdaptor(name string, source ExExSource, mempool MempoolSource, feed *Feed) *ExExAdaptor {
	return &ExExAdaptor{
		name:    name,
		source:  source,
		mempool: mempool,
		feed:    feed,
		dedup:   newHashDedup(0, defaultDedupWindow),
	}
}

func (a *ExExAdaptor) Name() string { return a.name }

func (a *ExExAdaptor) Start(ctx context.Context) ([]actor.TaskFunc, error) {
	tasks := []actor.TaskFunc{a.runNotifications}
	if a.mempool != nil {
		tasks = append(tasks, a.runMempool)
	}
	return tasks, nil
}

func (a *ExExAdaptor) runNotifications(ctx context.Context) error {
	notifs, err := a.source.Notifications(ctx)
	if err != nil {
		return fmt.Errorf("exex adaptor %s: notifications: %w", a.name, err)
	}

	for {
		select {
		case n, ok := <-notifs:
			if !ok {
				return fmt.Errorf("exex adaptor %s: notification stream closed", a.name)
			}
			if err := a.handle(n); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (a *ExExAdaptor) handle(n ExExNotification) error {
	switch n.Kind {
	case ExExChainReverted:
		logger.Info("exex adaptor: chain reverted", "adaptor", a.name, "hash", n.Header.Hash)
		return nil
	case ExExChainCommitted, ExExChainReorged:
		if a.dedup.Seen(n.Header.Hash) {
			return nil
		}
		if _, err := a.feed.Headers.Send(n.Header); err != nil {
			return err
		}
		if _, err := a.feed.Blocks.Send(n.Block); err != nil {
			return err
		}
		if _, err := a.feed.Logs.Send(n.Logs); err != nil {
			return err
		}
		if _, err := a.feed.StateUpdates.Send(n.State); err != nil {
			return err
		}
		return nil
	default:
		return fmt.Errorf("exex adaptor %s: unknown notification kind %d", a.name, n.Kind)
	}
}

func (a *ExExAdaptor) runMempool(ctx context.Context) error {
	txs, err := a.mempool.PendingTransactions(ctx)
	if err != nil {
		return fmt.Errorf("exex adaptor %s: mempool: %w", a.name, err)
	}
	for {
		select {
		case tx, ok := <-txs:
			if !ok {
				return fmt.Errorf("exex adaptor %s: mempool stream closed", a.name)
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
