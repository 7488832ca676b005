// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/backrun/types"
)

// BalancerWeightedPool simulates a 2-token weighted pool. The exact
// invariant is balance0^weight0 * balance1^weight1 = const, whose swap
// formula requires a fractional-exponent power function; this
// implementation covers only the equal-weight (50/50) special case, where
// the invariant degenerates to the UniswapV2 constant product and the
// closed-form formula is exact. Unequal-weight pools are out of scope
// (see DESIGN.md) and report PRICE_NOT_SET rather than approximating.
const (
	balancerSlotBalance0 = 0
	balancerSlotBalance1 = 1
)

type BalancerWeightedPool struct {
	id       types.PoolID
	address  common.Address
	protocol types.PoolProtocol
	tokens   [2]common.Address
	weight0  *uint256.Int // parts per 1e18, matching the vault's internal fixed point
	weight1  *uint256.Int
	feePPM   uint32
}

// NewBalancerWeightedPool builds a 2-token weighted pool. weight0+weight1
// must equal 1e18 (the vault's WAD fixed point).
func NewBalancerWeightedPool(address common.Address, token0, token1 common.Address, weight0, weight1 *uint256.Int, feePPM uint32, protocol types.PoolProtocol) *BalancerWeightedPool {
	return &BalancerWeightedPool{
		id:       types.NewPoolIDFromAddress(address),
		address:  address,
		protocol: protocol,
		tokens:   [2]common.Address{token0, token1},
		weight0:  weight0,
		weight1:  weight1,
		feePPM:   feePPM,
	}
}

func (p *BalancerWeightedPool) ID() types.PoolID            { return p.id }
func (p *BalancerWeightedPool) Address() common.Address     { return p.address }
func (p *BalancerWeightedPool) Class() types.PoolClass      { return types.PoolClassBalancer }
func (p *BalancerWeightedPool) Protocol() types.PoolProtocol { return p.protocol }
func (p *BalancerWeightedPool) Tokens() []common.Address {
	return []common.Address{p.tokens[0], p.tokens[1]}
}
func (p *BalancerWeightedPool) SwapDirections() []types.SwapDirection {
	return []types.SwapDirection{
		{From: p.tokens[0], To: p.tokens[1]},
		{From: p.tokens[1], To: p.tokens[0]},
	}
}
func (p *BalancerWeightedPool) CanFlashSwap() bool { return false }
func (p *BalancerWeightedPool) PreswapRequirement() types.PreswapRequirement {
	return types.PreswapRequirementRouter
}
func (p *BalancerWeightedPool) RequiredState() []types.RequiredStateItem {
	return []types.RequiredStateItem{{
		Address: p.address,
		Slots: []common.Hash{
			uniswapV2SlotHash(balancerSlotBalance0),
			uniswapV2SlotHash(balancerSlotBalance1),
		},
	}}
}
// Encoder is nil: the vault's batchSwap takes a pool id plus asset
// indices into a shared vault call, not a standalone per-pool calldata
// shape this exercise's encoders model.
func (p *BalancerWeightedPool) Encoder() types.AbiSwapEncoder { return nil }

func (p *BalancerWeightedPool) isEqualWeight() bool {
	return p.weight0.Cmp(p.weight1) == 0
}

func (p *BalancerWeightedPool) balances(db types.StateReader) (b0, b1 *uint256.Int, err error) {
	s0, err := db.GetState(p.address, uniswapV2SlotHash(balancerSlotBalance0))
	if err != nil {
		return nil, nil, fmt.Errorf("balancer: reading balance0: %w", err)
	}
	s1, err := db.GetState(p.address, uniswapV2SlotHash(balancerSlotBalance1))
	if err != nil {
		return nil, nil, fmt.Errorf("balancer: reading balance1: %w", err)
	}
	return new(uint256.Int).SetBytes(s0[:]), new(uint256.Int).SetBytes(s1[:]), nil
}

// CalculateOutAmount implements the equal-weight case via the same
// constant-product formula UniswapV2Pool uses, parameterized by this
// pool's own fee.
func (p *BalancerWeightedPool) CalculateOutAmount(db types.StateReader, from, to common.Address, amountIn *uint256.Int) (types.SimResult, error) {
	if !p.isEqualWeight() {
		return types.SimResult{}, &types.SwapError{Pool: p.id, From: from, To: to, Msg: types.SwapErrPriceNotSet}
	}
	b0, b1, err := p.balances(db)
	if err != nil {
		return types.SimResult{}, err
	}
	if b0.IsZero() || b1.IsZero() {
		return types.SimResult{}, &types.SwapError{Pool: p.id, From: from, To: to, Msg: types.SwapErrInsufficientLiquidity}
	}
	reserveIn, reserveOut := b0, b1
	if from != p.tokens[0] {
		reserveIn, reserveOut = b1, b0
	}

	feeNumerator := uint256.NewInt(uint64(1_000_000 - p.feePPM))
	amountInWithFee := new(uint256.Int).Mul(amountIn, feeNumerator)
	numerator := new(uint256.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(uint256.Int).Mul(reserveIn, uint256.NewInt(1_000_000))
	denominator.Add(denominator, amountInWithFee)
	if denominator.IsZero() {
		return types.SimResult{}, &types.SwapError{Pool: p.id, From: from, To: to, Msg: types.SwapErrOverflow}
	}
	out := numerator.Div(numerator, denominator)
	if out.Cmp(reserveOut) >= 0 {
		return types.SimResult{}, &types.SwapError{Pool: p.id, From: from, To: to, Msg: types.SwapErrInsufficientLiquidity}
	}
	return types.SimResult{Amount: out, GasUsed: 130000}, nil
}

func (p *BalancerWeightedPool) CalculateInAmount(db types.StateReader, from, to common.Address, amountOut *uint256.Int) (types.SimResult, error) {
	if !p.isEqualWeight() {
		return types.SimResult{}, &types.SwapError{Pool: p.id, From: from, To: to, Msg: types.SwapErrPriceNotSet}
	}
	b0, b1, err := p.balances(db)
	if err != nil {
		return types.SimResult{}, err
	}
	reserveIn, reserveOut := b0, b1
	if from != p.tokens[0] {
		reserveIn, reserveOut = b1, b0
	}
	if amountOut.Cmp(reserveOut) >= 0 {
		return types.SimResult{}, &types.SwapError{Pool: p.id, From: from, To: to, Msg: types.SwapErrInsufficientLiquidity}
	}

	feeNumerator := uint256.NewInt(uint64(1_000_000 - p.feePPM))
	numerator := new(uint256.Int).Mul(reserveIn, amountOut)
	numerator.Mul(numerator, uint256.NewInt(1_000_000))
	denominator := new(uint256.Int).Sub(reserveOut, amountOut)
	denominator.Mul(denominator, feeNumerator)
	if denominator.IsZero() {
		return types.SimResult{}, &types.SwapError{Pool: p.id, From: from, To: to, Msg: types.SwapErrOverflow}
	}
	in := numerator.Div(numerator, denominator)
	in.AddUint64(in, 1)
	return types.SimResult{Amount: in, GasUsed: 130000}, nil
}
