// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/backrun/types"
)

// CurvePool simulates a 2-coin StableSwap invariant pool: A*n^n*sum(x) +
// D = A*D*n^n + D^(n+1)/(n^n*prod(x)), n=2. Balances are read from two
// fixed storage slots (the `balances` array's first two elements in the
// reference StableSwap implementation's layout); A is fixed at
// construction since it rarely ramps mid-simulation-window.
type CurvePool struct {
	id       types.PoolID
	address  common.Address
	protocol types.PoolProtocol
	tokens   []common.Address
	a        *uint256.Int
	feePPM   uint32 // out of 1e10, StableSwap's native fee denominator
}

const curveSlotBalances = 0 // balances[0] at slot 0, balances[1] at slot 1 in a fixed-size array layout

// NewCurvePool builds a 2-coin StableSwap pool. amplification is the A
// parameter (not A*n^n; that factor is applied internally).
func NewCurvePool(address common.Address, tokens []common.Address, amplification uint64, feePPM uint32, protocol types.PoolProtocol) *CurvePool {
	return &CurvePool{
		id:       types.NewPoolIDFromAddress(address),
		address:  address,
		protocol: protocol,
		tokens:   tokens,
		a:        uint256.NewInt(amplification),
		feePPM:   feePPM,
	}
}

func (p *CurvePool) ID() types.PoolID            { return p.id }
func (p *CurvePool) Address() common.Address     { return p.address }
func (p *CurvePool) Class() types.PoolClass      { return types.PoolClassCurve }
func (p *CurvePool) Protocol() types.PoolProtocol { return p.protocol }
func (p *CurvePool) Tokens() []common.Address    { return p.tokens }
func (p *CurvePool) SwapDirections() []types.SwapDirection {
	return []types.SwapDirection{
		{From: p.tokens[0], To: p.tokens[1]},
		{From: p.tokens[1], To: p.tokens[0]},
	}
}
func (p *CurvePool) CanFlashSwap() bool { return false }
func (p *CurvePool) PreswapRequirement() types.PreswapRequirement {
	return types.PreswapRequirementRouter
}
func (p *CurvePool) RequiredState() []types.RequiredStateItem {
	return []types.RequiredStateItem{{
		Address: p.address,
		Slots: []common.Hash{
			uniswapV2SlotHash(curveSlotBalances),
			uniswapV2SlotHash(curveSlotBalances + 1),
		},
	}}
}
// Encoder is nil: StableSwap's exchange(i, j, dx, min_dy) takes coin
// indices rather than addresses, a shape this exercise's encoders don't
// cover.
func (p *CurvePool) Encoder() types.AbiSwapEncoder { return nil }

func (p *CurvePool) balances(db types.StateReader) (x0, x1 *uint256.Int, err error) {
	s0, err := db.GetState(p.address, uniswapV2SlotHash(curveSlotBalances))
	if err != nil {
		return nil, nil, fmt.Errorf("curve: reading balances[0]: %w", err)
	}
	s1, err := db.GetState(p.address, uniswapV2SlotHash(curveSlotBalances+1))
	if err != nil {
		return nil, nil, fmt.Errorf("curve: reading balances[1]: %w", err)
	}
	return new(uint256.Int).SetBytes(s0[:]), new(uint256.Int).SetBytes(s1[:]), nil
}

// computeD solves A*4*(x0+x1) + D = A*4*D + D^3/(4*x0*x1) for D via
// Newton's method (the reference implementation's own iteration, n=2
// so n^n=4).
func computeD(x0, x1, a *uint256.Int) *uint256.Int {
	sum := new(uint256.Int).Add(x0, x1)
	if sum.IsZero() {
		return uint256.NewInt(0)
	}
	ann := new(uint256.Int).Mul(a, uint256.NewInt(4))
	d := new(uint256.Int).Set(sum)
	for i := 0; i < 255; i++ {
		// dP = D^3 / (4*x0*x1)
		dp, _ := new(uint256.Int).MulDivOverflow(d, d, new(uint256.Int).Mul(x0, uint256.NewInt(4)))
		dp, _ = dp.MulDivOverflow(dp, d, x1)

		prevD := new(uint256.Int).Set(d)
		// D = (Ann*sum + 2*dP) * D / ((Ann-1)*D + 3*dP)
		num := new(uint256.Int).Mul(ann, sum)
		num.Add(num, new(uint256.Int).Mul(dp, uint256.NewInt(2)))
		num.Mul(num, d)

		den := new(uint256.Int).Mul(new(uint256.Int).Sub(ann, uint256.NewInt(1)), d)
		den.Add(den, new(uint256.Int).Mul(dp, uint256.NewInt(3)))
		if den.IsZero() {
			break
		}
		d = num.Div(num, den)

		if d.Cmp(prevD) == 0 {
			break
		}
		diff := new(uint256.Int).Sub(d, prevD)
		if d.Cmp(prevD) < 0 {
			diff = new(uint256.Int).Sub(prevD, d)
		}
		if diff.Cmp(uint256.NewInt(1)) <= 0 {
			break
		}
	}
	return d
}

// computeY solves for the new balance of the output coin given the new
// balance of the input coin and the invariant D, via the same Newton
// iteration the reference get_y uses.
func computeY(xIn, d, a *uint256.Int) *uint256.Int {
	ann := new(uint256.Int).Mul(a, uint256.NewInt(4))
	// c = D^3 / (4*xIn) / Ann ; b = xIn + D/Ann
	c, _ := new(uint256.Int).MulDivOverflow(d, d, uint256.NewInt(4))
	c, _ = c.MulDivOverflow(c, d, xIn)
	c, _ = c.MulDivOverflow(c, uint256.NewInt(1), ann)

	b := new(uint256.Int).Div(d, ann)
	b.Add(b, xIn)

	y := new(uint256.Int).Set(d)
	for i := 0; i < 255; i++ {
		prevY := new(uint256.Int).Set(y)
		num := new(uint256.Int).Mul(y, y)
		num.Add(num, c)
		den := new(uint256.Int).Mul(y, uint256.NewInt(2))
		den.Add(den, b)
		den.Sub(den, d)
		if den.IsZero() {
			break
		}
		y = num.Div(num, den)
		diff := new(uint256.Int).Sub(y, prevY)
		if y.Cmp(prevY) < 0 {
			diff = new(uint256.Int).Sub(prevY, y)
		}
		if diff.Cmp(uint256.NewInt(1)) <= 0 {
			break
		}
	}
	return y
}

func (p *CurvePool) direction(from common.Address) (inIdx int) {
	if from == p.tokens[0] {
		return 0
	}
	return 1
}

// CalculateOutAmount solves get_y with the post-deposit input balance,
// then subtracts the new output balance from the pre-swap one, minus the
// pool's native fee.
func (p *CurvePool) CalculateOutAmount(db types.StateReader, from, to common.Address, amountIn *uint256.Int) (types.SimResult, error) {
	x0, x1, err := p.balances(db)
	if err != nil {
		return types.SimResult{}, err
	}
	if x0.IsZero() || x1.IsZero() {
		return types.SimResult{}, &types.SwapError{Pool: p.id, From: from, To: to, Msg: types.SwapErrInsufficientLiquidity}
	}

	d := computeD(x0, x1, p.a)
	var newXIn, xOutBefore *uint256.Int
	if p.direction(from) == 0 {
		newXIn, xOutBefore = new(uint256.Int).Add(x0, amountIn), x1
	} else {
		newXIn, xOutBefore = new(uint256.Int).Add(x1, amountIn), x0
	}

	newXOut := computeY(newXIn, d, p.a)
	if newXOut.Cmp(xOutBefore) >= 0 {
		return types.SimResult{}, &types.SwapError{Pool: p.id, From: from, To: to, Msg: types.SwapErrInsufficientLiquidity}
	}
	gross := new(uint256.Int).Sub(xOutBefore, newXOut)
	gross.SubUint64(gross, 1) // StableSwap rounds the new-balance solve down by one wei of safety margin

	fee := new(uint256.Int).Mul(gross, uint256.NewInt(uint64(p.feePPM)))
	fee.Div(fee, uint256.NewInt(1e10))
	out := new(uint256.Int).Sub(gross, fee)
	return types.SimResult{Amount: out, GasUsed: 150000}, nil
}

// CalculateInAmount runs a bounded binary search over CalculateOutAmount,
// the same numerical-inverse approach UniswapV3Pool uses, since
// StableSwap's get_y is already an iterative solve in the forward
// direction.
func (p *CurvePool) CalculateInAmount(db types.StateReader, from, to common.Address, amountOut *uint256.Int) (types.SimResult, error) {
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
	return types.SimResult{Amount: best, GasUsed: 150000}, nil
}
