// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/backrun/types"
)

// Maverick's active bin exposes the same sqrt-price/liquidity shape as
// Uniswap V3's slot0, just at different storage offsets in the deployed
// pool contract; MaverickPool reuses the shared TickProvider abstraction
// and the same single-active-range simulation UniswapV3Pool uses (see
// tickprovider.go and DESIGN.md) rather than modeling Maverick's bin
// sliding and per-bin liquidity distribution moves.
const (
	maverickSlotState     = 0 // packed activeTick/sqrtPrice-equivalent word
	maverickSlotLiquidity = 1
)

type MaverickPool struct {
	id       types.PoolID
	address  common.Address
	protocol types.PoolProtocol
	token0   common.Address
	token1   common.Address
	feePPM   uint32
	ticks    TickProvider
}

func NewMaverickPool(address, token0, token1 common.Address, feePPM uint32, protocol types.PoolProtocol) *MaverickPool {
	return &MaverickPool{
		id:       types.NewPoolIDFromAddress(address),
		address:  address,
		protocol: protocol,
		token0:   token0,
		token1:   token1,
		feePPM:   feePPM,
		ticks:    &slot0TickProvider{address: address, slot0Index: maverickSlotState, liqIndex: maverickSlotLiquidity},
	}
}

func (p *MaverickPool) ID() types.PoolID            { return p.id }
func (p *MaverickPool) Address() common.Address     { return p.address }
func (p *MaverickPool) Class() types.PoolClass      { return types.PoolClassMaverick }
func (p *MaverickPool) Protocol() types.PoolProtocol { return p.protocol }
func (p *MaverickPool) Tokens() []common.Address {
	return []common.Address{p.token0, p.token1}
}
func (p *MaverickPool) SwapDirections() []types.SwapDirection {
	return []types.SwapDirection{{From: p.token0, To: p.token1}, {From: p.token1, To: p.token0}}
}
func (p *MaverickPool) CanFlashSwap() bool { return false }
func (p *MaverickPool) PreswapRequirement() types.PreswapRequirement {
	return types.PreswapRequirementRouter
}
func (p *MaverickPool) RequiredState() []types.RequiredStateItem {
	return []types.RequiredStateItem{{
		Address: p.address,
		Slots: []common.Hash{
			uniswapV2SlotHash(maverickSlotState),
			uniswapV2SlotHash(maverickSlotLiquidity),
		},
	}}
}
// Encoder is nil: Maverick's real swap entrypoint takes a different shape
// (exactOutput flag, tick-limit) than either Uniswap calldata this
// exercise encodes; not modeled here.
func (p *MaverickPool) Encoder() types.AbiSwapEncoder { return nil }

func (p *MaverickPool) applyFee(amount *uint256.Int) *uint256.Int {
	num := new(uint256.Int).Mul(amount, uint256.NewInt(uint64(1_000_000-p.feePPM)))
	return num.Div(num, uint256.NewInt(1_000_000))
}

// CalculateOutAmount reuses the identical constant-liquidity curve
// UniswapV3Pool simulates against, reading Maverick's active-bin state
// through the shared TickProvider seam.
func (p *MaverickPool) CalculateOutAmount(db types.StateReader, from, to common.Address, amountIn *uint256.Int) (types.SimResult, error) {
	sqrtPrice, liquidity, err := p.ticks.SqrtPriceX96AndLiquidity(db)
	if err != nil {
		return types.SimResult{}, fmt.Errorf("maverick: %w", err)
	}
	if liquidity.IsZero() {
		return types.SimResult{}, &types.SwapError{Pool: p.id, From: from, To: to, Msg: types.SwapErrInsufficientLiquidity}
	}

	netIn := p.applyFee(amountIn)
	var out *uint256.Int
	if from == p.token0 {
		lq96 := new(uint256.Int).Mul(liquidity, q96)
		denom := new(uint256.Int).Mul(netIn, sqrtPrice)
		denom.Add(denom, lq96)
		if denom.IsZero() {
			return types.SimResult{}, &types.SwapError{Pool: p.id, From: from, To: to, Msg: types.SwapErrOverflow}
		}
		newSqrtPrice, _ := new(uint256.Int).MulDivOverflow(lq96, sqrtPrice, denom)
		diff := new(uint256.Int).Sub(sqrtPrice, newSqrtPrice)
		out, _ = new(uint256.Int).MulDivOverflow(liquidity, diff, q96)
	} else {
		delta, _ := new(uint256.Int).MulDivOverflow(netIn, q96, liquidity)
		newSqrtPrice := new(uint256.Int).Add(sqrtPrice, delta)
		lq96 := new(uint256.Int).Mul(liquidity, q96)
		num := new(uint256.Int).Mul(lq96, delta)
		denom := new(uint256.Int).Mul(sqrtPrice, newSqrtPrice)
		if denom.IsZero() {
			return types.SimResult{}, &types.SwapError{Pool: p.id, From: from, To: to, Msg: types.SwapErrOverflow}
		}
		out = num.Div(num, denom)
	}
	if out == nil || out.IsZero() {
		return types.SimResult{}, &types.SwapError{Pool: p.id, From: from, To: to, Msg: types.SwapErrInsufficientLiquidity}
	}
	return types.SimResult{Amount: out, GasUsed: 140000}, nil
}

// CalculateInAmount mirrors UniswapV3Pool's bounded binary search over the
// forward curve.
func (p *MaverickPool) CalculateInAmount(db types.StateReader, from, to common.Address, amountOut *uint256.Int) (types.SimResult, error) {
	lo := uint256.NewInt(0)
	hi := new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	var best *uint256.Int
	for i := 0; i < 128 && lo.Cmp(hi) < 0; i++ {
		mid := new(uint256.Int).Add(lo, hi)
		mid.Rsh(mid, 1)
		if mid.IsZero() {
			mid.SetUint64(1)
		}
		res, err := p.CalculateOutAmount(db, from, to, mid)
		if err != nil {
			lo = new(uint256.Int).Add(mid, uint256.NewInt(1))
			continue
		}
		if res.Amount.Cmp(amountOut) >= 0 {
			best = mid
			hi = new(uint256.Int).Sub(mid, uint256.NewInt(1))
		} else {
			lo = new(uint256.Int).Add(mid, uint256.NewInt(1))
		}
	}
	if best == nil {
		return types.SimResult{}, &types.SwapError{Pool: p.id, From: from, To: to, Msg: types.SwapErrInsufficientLiquidity}
	}
	return types.SimResult{Amount: best, GasUsed: 140000}, nil
}
