// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/backrun/encoder"
	"github.com/luxfi/backrun/types"
)

// q96 is 2^96, the fixed-point base of Uniswap V3's sqrtPriceX96.
var q96 = new(uint256.Int).Lsh(uint256.NewInt(1), 96)

// UniswapV3Pool simulates a swap against the single active tick range
// (constant liquidity at the current sqrt price): tick crossing across
// initialized ticks is not modelled (see DESIGN.md), and no range boundary
// is checked, so a swap of any size is priced as if the active liquidity
// extended past it. INSUFFICIENT_LIQUIDITY is reported only when liquidity
// is zero or the computed output is zero.
type UniswapV3Pool struct {
	id       types.PoolID
	address  common.Address
	protocol types.PoolProtocol
	token0   common.Address
	token1   common.Address
	feePPM   uint32
	ticks    TickProvider
}

// NewUniswapV3Pool builds a pool reading its own slot0/liquidity.
func NewUniswapV3Pool(address, token0, token1 common.Address, feePPM uint32, protocol types.PoolProtocol) *UniswapV3Pool {
	return &UniswapV3Pool{
		id:       types.NewPoolIDFromAddress(address),
		address:  address,
		protocol: protocol,
		token0:   token0,
		token1:   token1,
		feePPM:   feePPM,
		ticks:    newSlot0TickProvider(address),
	}
}

func (p *UniswapV3Pool) ID() types.PoolID            { return p.id }
func (p *UniswapV3Pool) Address() common.Address     { return p.address }
func (p *UniswapV3Pool) Class() types.PoolClass      { return types.PoolClassUniswapV3 }
func (p *UniswapV3Pool) Protocol() types.PoolProtocol { return p.protocol }
func (p *UniswapV3Pool) Tokens() []common.Address {
	return []common.Address{p.token0, p.token1}
}
func (p *UniswapV3Pool) SwapDirections() []types.SwapDirection {
	return []types.SwapDirection{{From: p.token0, To: p.token1}, {From: p.token1, To: p.token0}}
}
func (p *UniswapV3Pool) CanFlashSwap() bool { return false }
func (p *UniswapV3Pool) PreswapRequirement() types.PreswapRequirement {
	return types.PreswapRequirementRouter
}
func (p *UniswapV3Pool) RequiredState() []types.RequiredStateItem {
	return []types.RequiredStateItem{{
		Address: p.address,
		Slots: []common.Hash{
			uniswapV2SlotHash(uniswapV3SlotSlot0),
			uniswapV2SlotHash(uniswapV3SlotLiquidity),
		},
	}}
}
func (p *UniswapV3Pool) Encoder() types.AbiSwapEncoder { return encoder.NewUniswapV3Encoder(p.token0) }

func (p *UniswapV3Pool) applyFee(amount *uint256.Int) *uint256.Int {
	num := new(uint256.Int).Mul(amount, uint256.NewInt(uint64(1_000_000-p.feePPM)))
	return num.Div(num, uint256.NewInt(1_000_000))
}

// CalculateOutAmount moves price along x*y=L^2/price within the active
// range: zeroForOne decreases sqrtPrice, oneForZero increases it, both
// derived from the constant-liquidity swap equations
// (amount0 = L*(1/sqrtP_new - 1/sqrtP) , amount1 = L*(sqrtP_new - sqrtP)).
func (p *UniswapV3Pool) CalculateOutAmount(db types.StateReader, from, to common.Address, amountIn *uint256.Int) (types.SimResult, error) {
	sqrtPrice, liquidity, err := p.ticks.SqrtPriceX96AndLiquidity(db)
	if err != nil {
		return types.SimResult{}, fmt.Errorf("uniswapv3: %w", err)
	}
	if liquidity.IsZero() {
		return types.SimResult{}, &types.SwapError{Pool: p.id, From: from, To: to, Msg: types.SwapErrInsufficientLiquidity}
	}

	netIn := p.applyFee(amountIn)

	var out *uint256.Int
	if from == p.token0 {
		// token0 in: sqrtP decreases. new_sqrtP = L*Q96*sqrtP / (L*Q96 + amount0*sqrtP)
		lq96 := new(uint256.Int).Mul(liquidity, q96)
		denom := new(uint256.Int).Mul(netIn, sqrtPrice)
		denom.Add(denom, lq96)
		if denom.IsZero() {
			return types.SimResult{}, &types.SwapError{Pool: p.id, From: from, To: to, Msg: types.SwapErrOverflow}
		}
		newSqrtPrice, _ := new(uint256.Int).MulDivOverflow(lq96, sqrtPrice, denom)
		// amount1_out = L*(sqrtP - newSqrtP)/Q96
		diff := new(uint256.Int).Sub(sqrtPrice, newSqrtPrice)
		out, _ = new(uint256.Int).MulDivOverflow(liquidity, diff, q96)
	} else {
		// token1 in: sqrtP increases. new_sqrtP = sqrtP + amount1*Q96/L
		delta, _ := new(uint256.Int).MulDivOverflow(netIn, q96, liquidity)
		newSqrtPrice := new(uint256.Int).Add(sqrtPrice, delta)
		// amount0_out = L*Q96*(1/sqrtP - 1/newSqrtP) = L*Q96*(newSqrtP-sqrtP)/(sqrtP*newSqrtP)
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
	return types.SimResult{Amount: out, GasUsed: 120000}, nil
}

// CalculateInAmount runs a bounded binary search over the input amount
// against CalculateOutAmount: the closed-form inverse of the
// concentrated-liquidity curve is algebraically uglier than re-deriving
// it numerically is worth for this exercise's fidelity target.
func (p *UniswapV3Pool) CalculateInAmount(db types.StateReader, from, to common.Address, amountOut *uint256.Int) (types.SimResult, error) {
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
	return types.SimResult{Amount: best, GasUsed: 120000}, nil
}
