// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"
	"golang.org/x/exp/slices"

	"github.com/luxfi/geth/common"
)

// SwapPathLeg is one (pool, tokenIn, tokenOut) triple in a SwapPath.
type SwapPathLeg struct {
	Pool     PoolWrapper
	TokenIn  common.Address
	TokenOut common.Address
}

// SwapPath is an ordered cycle of legs starting and ending at a basic
// token. Market deduplicates paths by StructuralHash; no pool may repeat
// within one path and the path must have at least two legs (§3 invariant).
type SwapPath struct {
	Legs []SwapPathLeg
}

// HeadToken returns the token the path starts (and ends) at.
func (p *SwapPath) HeadToken() common.Address {
	if len(p.Legs) == 0 {
		return common.Address{}
	}
	return p.Legs[0].TokenIn
}

// Valid checks the P3 invariant: closed cycle, no repeated pool, length>=2.
func (p *SwapPath) Valid() error {
	if len(p.Legs) < 2 {
		return fmt.Errorf("%w: path has %d legs", ErrInvalidSwapPath, len(p.Legs))
	}
	if p.Legs[0].TokenIn != p.Legs[len(p.Legs)-1].TokenOut {
		return fmt.Errorf("%w: head %s != tail %s", ErrInvalidSwapPath, p.Legs[0].TokenIn, p.Legs[len(p.Legs)-1].TokenOut)
	}
	seen := make(map[PoolID]struct{}, len(p.Legs))
	for _, leg := range p.Legs {
		id := leg.Pool.ID()
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: pool %s repeated", ErrInvalidSwapPath, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// StructuralHash dedups paths that visit the same ordered tokens via the
// same ordered pools, regardless of where the path object came from.
func (p *SwapPath) StructuralHash() [32]byte {
	h := sha256.New()
	for _, leg := range p.Legs {
		h.Write(leg.Pool.ID().addr[:])
		h.Write(leg.Pool.ID().hash[:])
		h.Write(leg.TokenIn[:])
		h.Write(leg.TokenOut[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// SwapAmountKind distinguishes a concretely set amount from one left to be
// filled by the optimiser, or one forwarded from a prior hop's output via
// the multicaller's return-data stack.
type SwapAmountKind uint8

const (
	AmountNotSet SwapAmountKind = iota
	AmountSet
	AmountStack // value supplied at run time by the previous call's return data
)

// SwapAmount is the `Set | NotSet | Stack(ref)` sum type from §3.
type SwapAmount struct {
	Kind  SwapAmountKind
	Value *uint256.Int // valid when Kind == AmountSet
	Ref   int          // multicaller stack-cell index, valid when Kind == AmountStack
}

func SetAmount(v *uint256.Int) SwapAmount { return SwapAmount{Kind: AmountSet, Value: v} }
func StackAmount(ref int) SwapAmount      { return SwapAmount{Kind: AmountStack, Ref: ref} }
func NotSetAmount() SwapAmount            { return SwapAmount{Kind: AmountNotSet} }

// OptimizeResult caches the outcome of the last profit search run against a
// SwapLine, so repeated reads (encoder, health monitor) don't re-derive it.
type OptimizeResult struct {
	AmountIn  *uint256.Int
	AmountOut *uint256.Int
	GasUsed   uint64
	Profit    *uint256.Int // AmountOut - AmountIn - gas_cost, in the path's head-token terms
}

// SwapLine is a SwapPath instantiated with concrete (or stack-deferred)
// amounts plus the cached optimisation result, per §3.
type SwapLine struct {
	Path      *SwapPath
	AmountIn  SwapAmount
	AmountOut SwapAmount
	Optimized *OptimizeResult
}

// FirstToken returns the token the line's amount_in is denominated in.
func (l *SwapLine) FirstToken() common.Address {
	return l.Path.HeadToken()
}

// ToError builds a SwapError anchored at this line's first leg, used when a
// line-level failure (e.g. PRICE_NOT_SET) has no single offending pool.
func (l *SwapLine) ToError(msg string) *SwapError {
	e := &SwapError{Msg: msg}
	if len(l.Path.Legs) > 0 {
		leg := l.Path.Legs[0]
		e.Pool = leg.Pool.ID()
		e.From = leg.TokenIn
		e.To = leg.TokenOut
	}
	return e
}

// SwapStep is an independent parallel branch within a transaction; several
// steps compose via the multicaller (§3).
type SwapStep struct {
	Lines []*SwapLine
}

// SwapKind is the closed set of compose-stage swap shapes from §4.9.
type SwapKind uint8

const (
	SwapNone SwapKind = iota
	SwapBackrunLine
	SwapBackrunSteps
	SwapMultiple
	SwapExchangeLine
)

// Swap is the encoder's input: one of BackrunSwapLine, BackrunSwapSteps,
// Multiple(vec), ExchangeSwapLine, or None.
type Swap struct {
	Kind  SwapKind
	Line  *SwapLine   // SwapBackrunLine, SwapExchangeLine
	Steps []*SwapStep // SwapBackrunSteps
	Multi []*Swap     // SwapMultiple
}

// NewBackrunSwap is the C8->C9 bridge (§4.8.3, "feed resulting SwapLines
// into C9 as a compose message"): it wraps one searched SwapLine into the
// Swap shape the encoder's Encode expects, without disturbing Searcher.Run's
// own return type (callers that only need the raw lines keep using those
// directly).
func NewBackrunSwap(line *SwapLine) *Swap {
	return &Swap{Kind: SwapBackrunLine, Line: line}
}

// TipEntry is one resolved entry of the encoder's tips_vec output (§4.9):
// the token the sweep is denominated in, the balance floor it must never
// dip below, and the amount actually swept to the tip recipient.
type TipEntry struct {
	Token      common.Address
	MinBalance *uint256.Int
	Tips       *uint256.Int
}

// SwapError carries a per-path failure as data rather than aborting the
// search batch (§4.8, §7): pool/from/to/is_in/amount/msg.
type SwapError struct {
	Pool   PoolID
	From   common.Address
	To     common.Address
	IsIn   bool
	Amount *uint256.Int
	Msg    string
}

func (e *SwapError) Error() string {
	return fmt.Sprintf("swap error: pool=%s from=%s to=%s msg=%s", e.Pool, e.From.Hex(), e.To.Hex(), e.Msg)
}

// StableSortKey produces a deterministic ordering key for a PoolID, used
// where §4.7's "order is stable by pool id" requirement applies.
func StableSortKey(id PoolID) uint64 {
	if id.isAddr {
		return binary.BigEndian.Uint64(id.addr[12:20])
	}
	return binary.BigEndian.Uint64(id.hash[24:32])
}

// SortPoolIDs sorts ids in place by StableSortKey, breaking ties by the
// address/hash-keyed String form (only possible on a hash collision in the
// low 8 bytes, kept here so the ordering is total).
func SortPoolIDs(ids []PoolID) {
	slices.SortFunc(ids, func(a, b PoolID) int {
		ka, kb := StableSortKey(a), StableSortKey(b)
		switch {
		case ka < kb:
			return -1
		case ka > kb:
			return 1
		case a.String() < b.String():
			return -1
		case a.String() > b.String():
			return 1
		default:
			return 0
		}
	})
}
