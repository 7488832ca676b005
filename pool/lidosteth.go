// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/backrun/types"
)

// stETH's totalPooledEther and totalShares live in fixed, well-known
// storage slots of the Lido core contract (the rebasing accounting the
// wrap/unwrap rate derives from): slot 1 is totalPooledEther, slot 2 is
// totalShares in the deployed implementation's layout.
const (
	lidoSlotTotalPooledEther = 1
	lidoSlotTotalShares      = 2
)

// LidoStETHPool models the stETH<->wstETH wrap boundary as a swap: no
// constant-product curve, just the rebasing exchange rate
// totalPooledEther/totalShares applied in either direction. It never
// flash-swaps and requires no calldata-amount patching (wrap/unwrap take
// a single amount with no separate in/out words). Its Encoder returns nil,
// so the swap encoder rejects any line that routes through it.
type LidoStETHPool struct {
	id      types.PoolID
	address common.Address // the wstETH wrapper contract
	stETH   common.Address
	wstETH  common.Address
}

// NewLidoStETHPool builds the stETH<->wstETH wrap pool at wrapper.
func NewLidoStETHPool(wrapper, stETH, wstETH common.Address) *LidoStETHPool {
	return &LidoStETHPool{id: types.NewPoolIDFromAddress(wrapper), address: wrapper, stETH: stETH, wstETH: wstETH}
}

func (p *LidoStETHPool) ID() types.PoolID            { return p.id }
func (p *LidoStETHPool) Address() common.Address     { return p.address }
func (p *LidoStETHPool) Class() types.PoolClass      { return types.PoolClassLidoStETH }
func (p *LidoStETHPool) Protocol() types.PoolProtocol { return "lido_wsteth" }
func (p *LidoStETHPool) Tokens() []common.Address {
	return []common.Address{p.stETH, p.wstETH}
}
func (p *LidoStETHPool) SwapDirections() []types.SwapDirection {
	return []types.SwapDirection{{From: p.stETH, To: p.wstETH}, {From: p.wstETH, To: p.stETH}}
}
func (p *LidoStETHPool) CanFlashSwap() bool { return false }
func (p *LidoStETHPool) PreswapRequirement() types.PreswapRequirement {
	return types.PreswapRequirementRouter
}
func (p *LidoStETHPool) RequiredState() []types.RequiredStateItem {
	return []types.RequiredStateItem{{
		Address: p.stETH,
		Slots:   []common.Hash{uniswapV2SlotHash(lidoSlotTotalPooledEther), uniswapV2SlotHash(lidoSlotTotalShares)},
	}}
}
func (p *LidoStETHPool) Encoder() types.AbiSwapEncoder { return nil }

func (p *LidoStETHPool) rate(db types.StateReader) (pooled, shares *uint256.Int, err error) {
	pooledSlot, err := db.GetState(p.stETH, uniswapV2SlotHash(lidoSlotTotalPooledEther))
	if err != nil {
		return nil, nil, fmt.Errorf("lidosteth: reading totalPooledEther: %w", err)
	}
	sharesSlot, err := db.GetState(p.stETH, uniswapV2SlotHash(lidoSlotTotalShares))
	if err != nil {
		return nil, nil, fmt.Errorf("lidosteth: reading totalShares: %w", err)
	}
	return new(uint256.Int).SetBytes(pooledSlot[:]), new(uint256.Int).SetBytes(sharesSlot[:]), nil
}

// CalculateOutAmount wraps (stETH->wstETH: shares = amount*totalShares/
// totalPooledEther) or unwraps (wstETH->stETH: pooled =
// amount*totalPooledEther/totalShares), mirroring stETH's own
// getSharesByPooledEth/getPooledEthByShares.
func (p *LidoStETHPool) CalculateOutAmount(db types.StateReader, from, to common.Address, amountIn *uint256.Int) (types.SimResult, error) {
	pooled, shares, err := p.rate(db)
	if err != nil {
		return types.SimResult{}, err
	}
	if pooled.IsZero() || shares.IsZero() {
		return types.SimResult{}, &types.SwapError{Pool: p.id, From: from, To: to, Msg: types.SwapErrPriceNotSet}
	}
	var out *uint256.Int
	if from == p.stETH {
		out, _ = new(uint256.Int).MulDivOverflow(amountIn, shares, pooled)
	} else {
		out, _ = new(uint256.Int).MulDivOverflow(amountIn, pooled, shares)
	}
	return types.SimResult{Amount: out, GasUsed: 45000}, nil
}

// CalculateInAmount inverts CalculateOutAmount by swapping the rate's
// numerator/denominator.
func (p *LidoStETHPool) CalculateInAmount(db types.StateReader, from, to common.Address, amountOut *uint256.Int) (types.SimResult, error) {
	pooled, shares, err := p.rate(db)
	if err != nil {
		return types.SimResult{}, err
	}
	if pooled.IsZero() || shares.IsZero() {
		return types.SimResult{}, &types.SwapError{Pool: p.id, From: from, To: to, Msg: types.SwapErrPriceNotSet}
	}
	var in *uint256.Int
	if from == p.stETH {
		in, _ = new(uint256.Int).MulDivOverflow(amountOut, pooled, shares)
	} else {
		in, _ = new(uint256.Int).MulDivOverflow(amountOut, shares, pooled)
	}
	return types.SimResult{Amount: in, GasUsed: 45000}, nil
}
