// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package pool holds the per-protocol types.Pool implementations (C6,
// §4.6) and the three loader strategies that discover and register them
// into a market.Market.
package pool

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/backrun/encoder"
	"github.com/luxfi/backrun/types"
)

// Real UniswapV2Pair storage layout (slots are part of the pair's public
// ABI surface in the sense that every v2 fork reuses the reference
// contract unmodified): token0/token1 are immutable set at construction
// but still occupy slots 6/7, and reserve0/reserve1/blockTimestampLast
// are packed into slot 8 (112/112/32 bits).
const (
	uniswapV2Slot0    = 6
	uniswapV2Slot1    = 7
	uniswapV2SlotResv = 8
)

func uniswapV2SlotHash(index uint64) common.Hash {
	var h common.Hash
	h[31] = byte(index)
	return h
}

// uniswapV2FeeNumerator/Denominator are the reference contract's 0.3% fee
// (997/1000 applied to the input amount before the constant-product
// division).
const (
	uniswapV2FeeNumerator   = 997
	uniswapV2FeeDenominator = 1000
)

// UniswapV2Pool simulates the constant-product x*y=k invariant with the
// reference 0.3% fee. Forks that only change the fee (Sushiswap on some
// chains, PancakeSwap) are distinguished by PoolProtocol, not by a
// separate type.
type UniswapV2Pool struct {
	id       types.PoolID
	address  common.Address
	protocol types.PoolProtocol
	token0   common.Address
	token1   common.Address
	enc      *encoder.UniswapV2Encoder
}

// NewUniswapV2Pool builds a pool keyed by its pair contract address.
// token0/token1 must be in the pair's own stored order (token0 < token1
// by address, per the reference factory's sort), since reserve unpacking
// and the encoder's zero-for-one branch both depend on it.
func NewUniswapV2Pool(address, token0, token1 common.Address, protocol types.PoolProtocol) *UniswapV2Pool {
	return &UniswapV2Pool{
		id:       types.NewPoolIDFromAddress(address),
		address:  address,
		protocol: protocol,
		token0:   token0,
		token1:   token1,
		enc:      encoder.NewUniswapV2Encoder(token0),
	}
}

func (p *UniswapV2Pool) ID() types.PoolID            { return p.id }
func (p *UniswapV2Pool) Address() common.Address     { return p.address }
func (p *UniswapV2Pool) Class() types.PoolClass      { return types.PoolClassUniswapV2 }
func (p *UniswapV2Pool) Protocol() types.PoolProtocol { return p.protocol }
func (p *UniswapV2Pool) Tokens() []common.Address {
	return []common.Address{p.token0, p.token1}
}
func (p *UniswapV2Pool) SwapDirections() []types.SwapDirection {
	return []types.SwapDirection{{From: p.token0, To: p.token1}, {From: p.token1, To: p.token0}}
}
func (p *UniswapV2Pool) CanFlashSwap() bool { return true }
func (p *UniswapV2Pool) PreswapRequirement() types.PreswapRequirement {
	return types.PreswapRequirementTransfer
}
func (p *UniswapV2Pool) RequiredState() []types.RequiredStateItem {
	return []types.RequiredStateItem{{
		Address: p.address,
		Slots:   []common.Hash{uniswapV2SlotHash(uniswapV2SlotResv)},
	}}
}
func (p *UniswapV2Pool) Encoder() types.AbiSwapEncoder { return p.enc }

func (p *UniswapV2Pool) reserves(db types.StateReader) (r0, r1 *uint256.Int, err error) {
	slot, err := db.GetState(p.address, uniswapV2SlotHash(uniswapV2SlotResv))
	if err != nil {
		return nil, nil, fmt.Errorf("uniswapv2: reading reserves: %w", err)
	}
	packed := new(uint256.Int).SetBytes(slot[:])
	mask112 := new(uint256.Int).SetAllOne()
	mask112.Rsh(mask112, 256-112)
	r0 = new(uint256.Int).And(packed, mask112)
	r1 = new(uint256.Int).Rsh(packed, 112)
	r1.And(r1, mask112)
	return r0, r1, nil
}

// CalculateOutAmount applies the reference getAmountOut formula:
// amountOut = reserveOut * amountIn*997 / (reserveIn*1000 + amountIn*997).
func (p *UniswapV2Pool) CalculateOutAmount(db types.StateReader, from, to common.Address, amountIn *uint256.Int) (types.SimResult, error) {
	reserveIn, reserveOut, err := p.orderedReserves(db, from)
	if err != nil {
		return types.SimResult{}, err
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return types.SimResult{}, &types.SwapError{Pool: p.id, From: from, To: to, Msg: types.SwapErrInsufficientLiquidity}
	}

	amountInWithFee := new(uint256.Int).Mul(amountIn, uint256.NewInt(uniswapV2FeeNumerator))
	numerator := new(uint256.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(uint256.Int).Mul(reserveIn, uint256.NewInt(uniswapV2FeeDenominator))
	denominator.Add(denominator, amountInWithFee)
	if denominator.IsZero() {
		return types.SimResult{}, &types.SwapError{Pool: p.id, From: from, To: to, Msg: types.SwapErrOverflow}
	}
	amountOut := new(uint256.Int).Div(numerator, denominator)
	if amountOut.Cmp(reserveOut) >= 0 {
		return types.SimResult{}, &types.SwapError{Pool: p.id, From: from, To: to, Msg: types.SwapErrInsufficientLiquidity}
	}
	return types.SimResult{Amount: amountOut, GasUsed: 60000}, nil
}

// CalculateInAmount is the reference getAmountIn inverse:
// amountIn = reserveIn*amountOut*1000 / ((reserveOut-amountOut)*997) + 1.
func (p *UniswapV2Pool) CalculateInAmount(db types.StateReader, from, to common.Address, amountOut *uint256.Int) (types.SimResult, error) {
	reserveIn, reserveOut, err := p.orderedReserves(db, from)
	if err != nil {
		return types.SimResult{}, err
	}
	if amountOut.Cmp(reserveOut) >= 0 {
		return types.SimResult{}, &types.SwapError{Pool: p.id, From: from, To: to, Msg: types.SwapErrInsufficientLiquidity}
	}
	numerator := new(uint256.Int).Mul(reserveIn, amountOut)
	numerator.Mul(numerator, uint256.NewInt(uniswapV2FeeDenominator))
	denominator := new(uint256.Int).Sub(reserveOut, amountOut)
	denominator.Mul(denominator, uint256.NewInt(uniswapV2FeeNumerator))
	if denominator.IsZero() {
		return types.SimResult{}, &types.SwapError{Pool: p.id, From: from, To: to, Msg: types.SwapErrOverflow}
	}
	amountIn := new(uint256.Int).Div(numerator, denominator)
	amountIn.AddUint64(amountIn, 1)
	return types.SimResult{Amount: amountIn, GasUsed: 60000}, nil
}

func (p *UniswapV2Pool) orderedReserves(db types.StateReader, from common.Address) (reserveIn, reserveOut *uint256.Int, err error) {
	r0, r1, err := p.reserves(db)
	if err != nil {
		return nil, nil, err
	}
	if from == p.token0 {
		return r0, r1, nil
	}
	return r1, r0, nil
}
