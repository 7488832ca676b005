// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

// PoolClass enumerates the closed set of first-class protocol variants the
// core knows how to simulate natively. User-extensible protocols fall back
// to the generic Pool capability interface without a PoolClass of their own.
type PoolClass uint8

const (
	PoolClassUnknown PoolClass = iota
	PoolClassUniswapV2
	PoolClassUniswapV3
	PoolClassUniswapV4
	PoolClassCurve
	PoolClassMaverick
	PoolClassBalancer
	PoolClassLidoStETH
)

func (c PoolClass) String() string {
	switch c {
	case PoolClassUniswapV2:
		return "uniswap_v2"
	case PoolClassUniswapV3:
		return "uniswap_v3"
	case PoolClassUniswapV4:
		return "uniswap_v4"
	case PoolClassCurve:
		return "curve"
	case PoolClassMaverick:
		return "maverick"
	case PoolClassBalancer:
		return "balancer"
	case PoolClassLidoStETH:
		return "lido_steth"
	default:
		return "unknown"
	}
}

// PoolProtocol names the concrete fork/deployment of a PoolClass, e.g.
// "sushiswap" and "uniswap_v2" share a PoolClass but differ in factory and
// fee constants.
type PoolProtocol string

// PreswapRequirement states who must hold the input token before a swap
// call executes: the pool itself (transfer-then-call, v2-style) or the
// multicaller acting as router (approve/transferFrom, v3-style).
type PreswapRequirement uint8

const (
	PreswapRequirementUnknown PreswapRequirement = iota
	PreswapRequirementTransfer
	PreswapRequirementRouter
	PreswapRequirementCallback // flash-swap style: funds arrive inside the pool's callback
)

// PoolID is the sum type `Address(20B) | Bytes32` used to key every map in
// the market, market-state, and pool-abstraction layers. Uniswap v2/v3
// pools are addressed directly; Uniswap v4 keys pools by a bytes32 pool id
// computed from the PoolKey, since a v4 pool has no standalone contract
// address.
type PoolID struct {
	addr   common.Address
	hash   common.Hash
	isAddr bool
}

// NewPoolIDFromAddress builds a PoolID keyed by contract address.
func NewPoolIDFromAddress(addr common.Address) PoolID {
	return PoolID{addr: addr, isAddr: true}
}

// NewPoolIDFromHash builds a PoolID keyed by a bytes32 id (Uniswap v4).
func NewPoolIDFromHash(hash common.Hash) PoolID {
	return PoolID{hash: hash, isAddr: false}
}

// IsAddress reports whether this id is address-keyed.
func (id PoolID) IsAddress() bool { return id.isAddr }

// Address returns the address form; valid only when IsAddress() is true.
func (id PoolID) Address() common.Address { return id.addr }

// Hash returns the bytes32 form; valid only when IsAddress() is false.
func (id PoolID) Hash() common.Hash { return id.hash }

// String renders the id for logging and as a BTreeMap-equivalent sort key
// surrogate (PoolID is comparable and works directly as a Go map key).
func (id PoolID) String() string {
	if id.isAddr {
		return id.addr.Hex()
	}
	return id.hash.Hex()
}

// SwapDirection is an ordered (from, to) token pair a pool admits.
type SwapDirection struct {
	From common.Address
	To   common.Address
}

func (d SwapDirection) String() string {
	return fmt.Sprintf("%s->%s", d.From.Hex(), d.To.Hex())
}

// RequiredStateItem declares one piece of state an on-demand fetcher must
// preload before a pool can be simulated: either a raw storage slot range
// or a view call whose touched storage should be captured via trace.
type RequiredStateItem struct {
	Address  common.Address
	Slots    []common.Hash // explicit slots, when known statically
	CallData []byte        // view-call selector+args, when slots aren't static
}

// SimResult is the outcome of simulating one direction through a pool.
type SimResult struct {
	Amount  *uint256.Int
	GasUsed uint64
}

// Pool is the capability every protocol variant must implement. It is
// deliberately narrow: enough for the searcher (C8) and encoder (C9) to
// treat every protocol uniformly, with protocol-specific behavior (tick
// math, StableSwap invariant, stETH rebasing) hidden behind it.
type Pool interface {
	ID() PoolID
	Address() common.Address // zero address for address-less pools (v4)
	Class() PoolClass
	Protocol() PoolProtocol
	Tokens() []common.Address
	SwapDirections() []SwapDirection

	// CalculateOutAmount and CalculateInAmount must be deterministic given
	// (db, env); db is the StateReader read surface declared below, which
	// marketstate's state satisfies without types importing marketstate.
	CalculateOutAmount(db StateReader, from, to common.Address, amountIn *uint256.Int) (SimResult, error)
	CalculateInAmount(db StateReader, from, to common.Address, amountOut *uint256.Int) (SimResult, error)

	CanFlashSwap() bool
	PreswapRequirement() PreswapRequirement
	RequiredState() []RequiredStateItem

	Encoder() AbiSwapEncoder
}

// StateReader is the minimal read surface a Pool needs from MarketState to
// simulate a swap: account/storage lookups against whatever layered DB is
// current. Defined here (rather than imported from marketstate) to keep
// types free of a dependency on the marketstate package; marketstate.State
// satisfies it.
type StateReader interface {
	GetState(addr common.Address, slot common.Hash) (common.Hash, error)
	GetBalance(addr common.Address) (*uint256.Int, error)
	GetCode(addr common.Address) ([]byte, error)
}

// AbiSwapEncoder is the ABI-encoding sub-capability of a Pool: calldata
// shape for an on-chain swap into a recipient carrying an opaque payload,
// plus the byte offset of the amount word within that calldata so the
// multicaller can patch it at run time ("stack" semantics, §4.9).
type AbiSwapEncoder interface {
	// EncodeSwap returns the raw calldata for calling this pool directly
	// (not via a router), along with the byte offset of the amount word
	// (-1 if the amount is not positionally patchable).
	EncodeSwap(from, to common.Address, amountIn *uint256.Int, recipient common.Address, payload []byte) (calldata []byte, amountInOffset int, err error)
}

// PoolWrapper is the concrete, comparable handle to a Pool stored in
// Market's indexes; it embeds the Pool interface and carries no other
// fields.
type PoolWrapper struct {
	Pool
}

// NewPoolWrapper wraps a Pool implementation for storage in Market.
func NewPoolWrapper(p Pool) PoolWrapper {
	return PoolWrapper{Pool: p}
}
