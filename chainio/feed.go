// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package chainio implements the three interchangeable chain I/O adaptors
// of C2: JSON-RPC/WebSocket, in-process ExEx, and gRPC ExEx relay. All
// three produce the same output contract — header, block, logs, and
// state-diff per block hash, plus a mempool tap — fanned out over a
// shared Feed of broadcasters.
package chainio

import (
	"github.com/luxfi/backrun/actor"
	"github.com/luxfi/backrun/types"
)

// Feed bundles the five broadcaster channels every adaptor implementation
// publishes into; it plays the role of Blockchain::new_*_channel() in
// original_source's defi-blockchain crate, minus the blockchain struct
// itself — callers wire a Feed directly into C3/C7 subscribers.
type Feed struct {
	Headers      *actor.Broadcaster[types.BlockHeader]
	Blocks       *actor.Broadcaster[types.BlockUpdate]
	Logs         *actor.Broadcaster[types.BlockLogs]
	StateUpdates *actor.Broadcaster[types.BlockStateUpdate]
	Mempool      *actor.Broadcaster[types.NodeMempoolDataUpdate]
}

// NewFeed allocates the five broadcasters with the given per-channel
// backlog capacity.
func NewFeed(capacity int) *Feed {
	return &Feed{
		Headers:      actor.NewBroadcaster[types.BlockHeader](capacity),
		Blocks:       actor.NewBroadcaster[types.BlockUpdate](capacity),
		Logs:         actor.NewBroadcaster[types.BlockLogs](capacity),
		StateUpdates: actor.NewBroadcaster[types.BlockStateUpdate](capacity),
		Mempool:      actor.NewBroadcaster[types.NodeMempoolDataUpdate](capacity),
	}
}
