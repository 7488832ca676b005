// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package search

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/math/set"
)

// profitFunc evaluates the profit curve at amountIn, returning the
// signed profit (amountOut - amountIn - gasCost, which can go negative
// for an oversized probe) in head-token terms, the gas used, and any
// simulation error. Profit is signed math/big rather than uint256 since
// an unprofitable probe is a normal, expected point on the curve, not an
// error — uint256's unsigned subtraction would wrap instead of going
// negative.
type profitFunc func(amountIn *uint256.Int) (profit *big.Int, gasUsed uint64, err error)

// goldenSectionMaximize searches for the amountIn maximising fn's signed
// profit over [1, upperBound], where upperBound is a multiple of the
// initial probe wide enough to contain the curve's peak for the
// monotone-then-concave shape §4.8 assumes. Terminates when the
// fractional improvement between successive best values falls under
// profitEpsilonNumerator/Denominator, or after maxOptimizeIterations.
func goldenSectionMaximize(probe *uint256.Int, fn profitFunc) (*uint256.Int, uint64, error) {
	const goldenRatioNumerator, goldenRatioDenominator = 618, 1000 // ~0.618, avoids a float dependency

	lo := new(big.Int).SetUint64(1)
	hi := new(big.Int).Mul(probe.ToBig(), big.NewInt(100))

	// Golden-section's two interior points converge toward each other as
	// the bracket narrows, and integer rounding of s*0.618 can repeat the
	// exact same amount across iterations; evalCached skips re-simulating a
	// previously sampled point rather than paying for a redundant
	// CalculateOutAmount walk of the whole path.
	visited := set.NewSet[string](maxOptimizeIterations * 2)
	cachedProfit := make(map[string]*big.Int, maxOptimizeIterations*2)
	cachedGas := make(map[string]uint64, maxOptimizeIterations*2)
	evalCached := func(x *big.Int) (*big.Int, uint64, error) {
		key := x.String()
		if visited.Contains(key) {
			return cachedProfit[key], cachedGas[key], nil
		}
		profit, gas, err := fn(toUint256(x))
		if err != nil {
			return nil, 0, err
		}
		visited.Add(key)
		cachedProfit[key] = profit
		cachedGas[key] = gas
		return profit, gas, nil
	}

	bestAmount := new(big.Int).Set(probe)
	bestProfit, bestGas, err := evalCached(bestAmount)
	if err != nil {
		return nil, 0, err
	}

	span := func() *big.Int { return new(big.Int).Sub(hi, lo) }
	for i := 0; i < maxOptimizeIterations; i++ {
		s := span()
		if s.Sign() <= 0 {
			break
		}
		x1 := new(big.Int).Sub(hi, new(big.Int).Div(new(big.Int).Mul(s, big.NewInt(goldenRatioNumerator)), big.NewInt(goldenRatioDenominator)))
		x2 := new(big.Int).Add(lo, new(big.Int).Div(new(big.Int).Mul(s, big.NewInt(goldenRatioNumerator)), big.NewInt(goldenRatioDenominator)))
		if x1.Sign() <= 0 {
			x1.SetInt64(1)
		}
		if x2.Sign() <= 0 {
			x2.SetInt64(1)
		}

		p1, g1, err1 := evalCached(x1)
		p2, g2, err2 := evalCached(x2)

		var candidateAmount *big.Int
		var candidateProfit *big.Int
		var candidateGas uint64
		switch {
		case err1 != nil && err2 != nil:
			return nil, 0, err1
		case err1 != nil:
			candidateAmount, candidateProfit, candidateGas = x2, p2, g2
			hi = x1 // err at x1 means it overshot the feasible region
		case err2 != nil:
			candidateAmount, candidateProfit, candidateGas = x1, p1, g1
			lo = x2
		case p1.Cmp(p2) < 0:
			lo = x1
			candidateAmount, candidateProfit, candidateGas = x2, p2, g2
		default:
			hi = x2
			candidateAmount, candidateProfit, candidateGas = x1, p1, g1
		}

		if candidateProfit.Cmp(bestProfit) > 0 {
			improvement := new(big.Int).Sub(candidateProfit, bestProfit)
			converged := false
			if bestProfit.Sign() > 0 {
				threshold := new(big.Int).Div(new(big.Int).Mul(bestProfit, big.NewInt(profitEpsilonNumerator)), big.NewInt(profitEpsilonDenominator))
				converged = improvement.Cmp(threshold) < 0
			}
			bestAmount, bestProfit, bestGas = candidateAmount, candidateProfit, candidateGas
			if converged {
				break
			}
		}
	}
	return toUint256(bestAmount), bestGas, nil
}

func toUint256(v *big.Int) *uint256.Int {
	out, _ := uint256.FromBig(v)
	return out
}
