// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import (
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

// Envelope carries the observability fields every internal message has:
// an optional origin tag and a timestamp, per §6 "every message carries
// source? and time?".
type Envelope struct {
	Source string
	Time   time.Time
}

// StorageDiff is one slot's before/after-style entry inside a
// GethStateUpdate: only the post-state value is retained, matching the
// prestateTracer diffMode=true "post" section the JSON-RPC adaptor fetches.
type StorageDiff map[common.Hash]common.Hash

// AccountUpdate is the per-address entry of a GethStateUpdate: a nonce
// and/or balance change, optional new code, and any touched storage.
type AccountUpdate struct {
	Nonce   *uint64
	Balance *uint256.Int
	Code    []byte
	Storage StorageDiff
}

// GethStateUpdate is the post-state diff of a single block, keyed by
// address, as produced by debug_traceBlockByHash(prestateTracer,
// diffMode=true) or the ExEx/gRPC adaptors' equivalent.
type GethStateUpdate map[common.Address]*AccountUpdate

// GethStateUpdateVec is an ordered list of per-transaction diffs within one
// block; C7/C8 consume it both as the trigger's required-state list and as
// the block's cumulative state_update.
type GethStateUpdateVec []GethStateUpdate

// NodeMempoolDataUpdate is the mempool tap message (§3): one pending
// transaction observed by a chain I/O adaptor.
type NodeMempoolDataUpdate struct {
	Envelope
	TxHash    common.Hash
	MempoolTx MempoolTx
}

// MempoolTx is the subset of a pending transaction's fields the core needs:
// enough to embed it as a stuffing tx in a bundle and to reason about gas.
type MempoolTx struct {
	Hash      common.Hash
	From      common.Address
	To        *common.Address
	GasPrice  *uint256.Int
	GasFeeCap *uint256.Int
	GasTipCap *uint256.Int
	Gas       uint64
	Nonce     uint64
	RawRLP    []byte
}

// BlockHeader is the per-block fan-out header message.
type BlockHeader struct {
	Envelope
	Hash       common.Hash
	ParentHash common.Hash
	Number     uint64
	Timestamp  uint64
	BaseFee    *uint256.Int
}

// BlockUpdate carries the full block body (with transactions) once fetched.
type BlockUpdate struct {
	Envelope
	Hash         common.Hash
	Number       uint64
	Transactions []MempoolTx
}

// BlockLogs carries the logs emitted by one block, as returned by
// eth_getLogs(at_block_hash).
type BlockLogs struct {
	Envelope
	Hash common.Hash
	Logs []Log
}

// Log is a minimal go-ethereum-shaped event log: address, topics, data.
type Log struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
	TxHash  common.Hash
	Index   uint
}

// BlockStateUpdate carries the post-state diff of one block.
type BlockStateUpdate struct {
	Envelope
	Hash  common.Hash
	State GethStateUpdate
}

// StateUpdateEvent is the core search trigger consumed by C8 (§4.8): one
// candidate trigger transaction's state diff plus the block context the
// backrun would land in.
type StateUpdateEvent struct {
	Envelope
	NextBlock          uint64
	NextBlockTimestamp uint64
	NextBaseFee        uint64

	// MarketStateVersion identifies the MarketState snapshot this event was
	// built against, so a searcher worker can detect supersession (§4.8.4)
	// without importing the marketstate package.
	MarketStateVersion uint64

	StateUpdate   GethStateUpdateVec
	StateRequired GethStateUpdateVec // required slots the trigger tx would publish; may be nil

	Directions map[PoolID][]SwapDirection

	StuffingTxHashes []common.Hash
	StuffingTxs      []MempoolTx

	Origin  string
	TipsPct uint32
}

// TxComposeStage distinguishes the two pipeline stages of C10.
type TxComposeStage uint8

const (
	ComposeSign TxComposeStage = iota
	ComposeBroadcast
)

// TxComposeData is the payload threaded through the compose/sign/broadcast
// pipeline; fields accumulate as the message passes through each stage.
type TxComposeData struct {
	ComposeID        uint64
	NextBlockNumber  uint64
	Swap             *Swap
	Calldata         []byte
	To               common.Address
	Value            *uint256.Int
	GasUsed          uint64
	GasCost          *uint256.Int
	TipsPct          uint32
	Tips             []TipEntry
	Signer           common.Address // zero address means "rotate from pool"
	TxBundle         []UnsignedTx
	SignedRLPBundle  []RLPEntry
	Origin           string
	StuffingTxHashes []common.Hash
}

// UnsignedTx is an EIP-1559 transaction awaiting a signature.
type UnsignedTx struct {
	ChainID   uint64
	Nonce     uint64
	GasTipCap *uint256.Int
	GasFeeCap *uint256.Int
	Gas       uint64
	To        *common.Address
	Value     *uint256.Int
	Data      []byte
}

// RLPEntryKind distinguishes the three shapes a bundle slot can take: the
// public stuffing tx (already signed, passed through as bytes), our own
// backrun, or an empty slot.
type RLPEntryKind uint8

const (
	RLPEntryNone RLPEntryKind = iota
	RLPEntryStuffing
	RLPEntryBackrun
)

// RLPEntry is one slot of a signed bundle, per §4.10's `Stuffing(bytes) |
// Backrun(bytes) | None`.
type RLPEntry struct {
	Kind RLPEntryKind
	RLP  []byte
}

// TxComposeMessage is the sum type flowing through C10: Sign or Broadcast,
// each carrying a TxComposeData at the appropriate stage of completeness.
type TxComposeMessage struct {
	Envelope
	Stage TxComposeStage
	Data  TxComposeData
}

// HealthEventKind enumerates the structured events C11 publishes.
type HealthEventKind uint8

const (
	HealthPoolQuarantined HealthEventKind = iota
	HealthMonitorTx
	HealthStateDivergence
)

// HealthEvent is the pool/tx-failure observability message from §3/§4.11.
type HealthEvent struct {
	Envelope
	Kind HealthEventKind

	Pool      PoolID
	Direction SwapDirection

	TxHash common.Hash

	Detail string
}
