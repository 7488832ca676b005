// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package search

import (
	"context"
	"fmt"
	"math/big"
	"sync/atomic"

	"github.com/holiman/uint256"
	"golang.org/x/exp/maps"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/backrun/blockhistory"
	"github.com/luxfi/backrun/market"
	"github.com/luxfi/backrun/types"
)

var logger = log.New("component", "search")

// startingProbeETH is the §4.8 fixed starting amount (0.01 ETH) converted
// into the path's head token before the profit search begins.
var startingProbeETH = new(uint256.Int).Mul(uint256.NewInt(1e16), uint256.NewInt(1))

// maxOptimizeIterations bounds the golden-section search, per §4.8's
// "bounded iteration count (e.g. 20)".
const maxOptimizeIterations = 20

// profitEpsilonNumerator/Denominator express the fractional-improvement
// termination threshold as a rational (improvement/previousBest < 1/1000
// stops the search), avoiding floating point on uint256 magnitudes.
const (
	profitEpsilonNumerator   = 1
	profitEpsilonDenominator = 1000
)

// StateDB is the per-path simulation surface: a cloneable, diff-applying
// database that also answers the storage/balance/code reads every Pool
// needs. blockhistory.SnapshotDB covers clone+apply; types.StateReader
// covers the reads. marketstate.State satisfies both halves, so callers
// pass it in without this package importing marketstate directly.
type StateDB interface {
	types.StateReader
	blockhistory.SnapshotDB
}

// Searcher runs C8: candidate retrieval, per-path cloned-state
// optimisation, and best-line selection, bounded by a worker pool and
// cancelled by block-number supersession.
type Searcher struct {
	market      *market.Market
	prices      PriceOracle
	concurrency int
	latestBlock atomic.Uint64
}

func NewSearcher(m *market.Market, prices PriceOracle, concurrency int) *Searcher {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Searcher{market: m, prices: prices, concurrency: concurrency}
}

// PathResult is one candidate path's optimisation outcome: either a
// profitable SwapLine or a recorded SwapError, never both.
type PathResult struct {
	Line *types.SwapLine
	Err  *types.SwapError
}

// Run executes one search pass against event, cloning base for every
// candidate path independently. It returns the best-profit line per head
// token (the "path-group" selection §4.8 calls for — see DESIGN.md for
// why head token is the grouping key) plus every per-path SwapError
// encountered; a per-path failure never aborts the batch.
func (s *Searcher) Run(ctx context.Context, base StateDB, event types.StateUpdateEvent) ([]*types.SwapLine, []*types.SwapError, error) {
	s.latestBlock.Store(event.NextBlock)

	poolIDs := maps.Keys(event.Directions)
	candidates := s.market.Paths().PathsTouching(poolIDs)
	if len(candidates) == 0 {
		return nil, nil, nil
	}

	results := make([]*PathResult, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, s.concurrency)

	for i, path := range candidates {
		i, path := i, path
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()

			if s.superseded(event.NextBlock) {
				return nil
			}
			if !pathMatchesDirections(path, event.Directions) {
				return nil
			}
			if pathHasInertLeg(s.market, path) {
				return nil
			}
			clone, ok := base.Clone().(StateDB)
			if !ok {
				return fmt.Errorf("search: cloned db does not implement search.StateDB")
			}
			if err := applyDiffs(clone, event.StateRequired); err != nil {
				return err
			}
			if err := applyDiffs(clone, event.StateUpdate); err != nil {
				return err
			}
			results[i] = s.optimizePath(gctx, clone, path, event)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	bestByHead := make(map[common.Address]*types.SwapLine)
	var errs []*types.SwapError
	for _, r := range results {
		if r == nil {
			continue
		}
		if r.Err != nil {
			errs = append(errs, r.Err)
			continue
		}
		if r.Line == nil || r.Line.Optimized == nil {
			continue
		}
		head := r.Line.FirstToken()
		cur, ok := bestByHead[head]
		if !ok || r.Line.Optimized.Profit.Cmp(cur.Optimized.Profit) > 0 {
			bestByHead[head] = r.Line
		}
	}
	lines := make([]*types.SwapLine, 0, len(bestByHead))
	for _, l := range bestByHead {
		lines = append(lines, l)
	}
	logger.Debug("search: pass complete", "candidates", len(candidates), "lines", len(lines), "errors", len(errs))
	return lines, errs, nil
}

// ComposeSwaps is the C8->C9 bridge (§4.8.3): it wraps Run's best-per-head
// lines into the *types.Swap shape the encoder's Encode expects, one
// BackrunSwapLine per line. Kept as an additive helper rather than a change
// to Run's own return type, so existing callers that only need the raw
// lines (health monitoring, logging) are unaffected.
func (s *Searcher) ComposeSwaps(lines []*types.SwapLine) []*types.Swap {
	swaps := make([]*types.Swap, 0, len(lines))
	for _, line := range lines {
		if line == nil {
			continue
		}
		swaps = append(swaps, types.NewBackrunSwap(line))
	}
	return swaps
}

func (s *Searcher) superseded(nextBlock uint64) bool {
	return s.latestBlock.Load() > nextBlock
}

func applyDiffs(db StateDB, diffs types.GethStateUpdateVec) error {
	for _, diff := range diffs {
		if diff == nil {
			continue
		}
		if err := db.ApplyStateUpdate(diff); err != nil {
			return fmt.Errorf("search: applying state diff: %w", err)
		}
	}
	return nil
}

// pathHasInertLeg reports whether any leg of path crosses a (pool,
// direction) edge the health monitor has quarantined (§4.11).
func pathHasInertLeg(m *market.Market, path *types.SwapPath) bool {
	for _, leg := range path.Legs {
		dir := types.SwapDirection{From: leg.TokenIn, To: leg.TokenOut}
		if m.IsDirectionInert(leg.Pool.ID(), dir) {
			return true
		}
	}
	return false
}

// pathMatchesDirections requires every leg whose pool appears in
// directions to take one of its admissible directions; a path is
// rejected rather than simulated against a direction the trigger's state
// diff doesn't actually admit.
func pathMatchesDirections(path *types.SwapPath, directions map[types.PoolID][]types.SwapDirection) bool {
	for _, leg := range path.Legs {
		admissible, ok := directions[leg.Pool.ID()]
		if !ok {
			continue
		}
		found := false
		for _, d := range admissible {
			if d.From == leg.TokenIn && d.To == leg.TokenOut {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// optimizePath runs the golden-section profit search for one path
// against its already-diffed clone, returning either a populated line or
// a SwapError — never silently dropping a failure.
func (s *Searcher) optimizePath(ctx context.Context, db StateDB, path *types.SwapPath, event types.StateUpdateEvent) *PathResult {
	head := path.HeadToken()
	price, ok := s.prices.PriceWeiPerToken(head)
	if !ok {
		return &PathResult{Err: &types.SwapError{Msg: types.SwapErrPriceNotSet, From: head}}
	}
	amountIn0, ok := weiToToken(startingProbeETH, price)
	if !ok || amountIn0.IsZero() {
		return &PathResult{Err: &types.SwapError{Msg: types.SwapErrPriceNotSet, From: head}}
	}

	gasPrice := new(uint256.Int).AddUint64(uint256.NewInt(0), event.NextBaseFee)

	// profitOf's result is signed: an oversized probe legitimately costs
	// more than it returns, and the search needs to see that as a large
	// negative rather than a wrapped uint256 to climb back down correctly.
	profitOf := func(amountIn *uint256.Int) (*big.Int, uint64, error) {
		amountOut, gasUsed, err := simulatePath(db, path, amountIn)
		if err != nil {
			return nil, 0, err
		}
		gasCostWei := new(uint256.Int).Mul(uint256.NewInt(gasUsed), gasPrice)
		gasCostToken, ok := weiToToken(gasCostWei, price)
		if !ok {
			return nil, 0, fmt.Errorf("search: pricing gas cost overflowed")
		}
		profit := new(big.Int).Sub(amountOut.ToBig(), amountIn.ToBig())
		profit.Sub(profit, gasCostToken.ToBig())
		return profit, gasUsed, nil
	}
	_ = ctx

	best, gasUsed, err := goldenSectionMaximize(amountIn0, profitOf)
	if err != nil {
		swapErr, ok := err.(*types.SwapError)
		if ok {
			return &PathResult{Err: swapErr}
		}
		return &PathResult{Err: &types.SwapError{Msg: types.SwapErrPoolRevert, From: head}}
	}

	amountOut, _, simErr := simulatePath(db, path, best)
	if simErr != nil {
		return &PathResult{Err: toSwapError(simErr, head)}
	}

	gasCostToken, ok := weiToToken(new(uint256.Int).Mul(uint256.NewInt(gasUsed), gasPrice), price)
	if !ok {
		return &PathResult{Err: &types.SwapError{Msg: types.SwapErrOverflow, From: head}}
	}
	profitBig := new(big.Int).Sub(amountOut.ToBig(), best.ToBig())
	profitBig.Sub(profitBig, gasCostToken.ToBig())
	var profit *uint256.Int
	if profitBig.Sign() <= 0 {
		return &PathResult{Err: &types.SwapError{Msg: types.SwapErrNotProfitable, From: head}}
	}
	profit = toUint256(profitBig)
	line := &types.SwapLine{
		Path:      path,
		AmountIn:  types.SetAmount(best),
		AmountOut: types.SetAmount(amountOut),
		Optimized: &types.OptimizeResult{AmountIn: best, AmountOut: amountOut, GasUsed: gasUsed, Profit: profit},
	}
	return &PathResult{Line: line}
}

// simulatePath walks every leg of path in order, feeding each hop's
// output into the next hop's input, summing gas used.
func simulatePath(db types.StateReader, path *types.SwapPath, amountIn *uint256.Int) (*uint256.Int, uint64, error) {
	amount := amountIn
	var gasUsed uint64
	for _, leg := range path.Legs {
		res, err := leg.Pool.CalculateOutAmount(db, leg.TokenIn, leg.TokenOut, amount)
		if err != nil {
			return nil, 0, err
		}
		amount = res.Amount
		gasUsed += res.GasUsed
	}
	return amount, gasUsed, nil
}

func toSwapError(err error, head common.Address) *types.SwapError {
	if swapErr, ok := err.(*types.SwapError); ok {
		return swapErr
	}
	return &types.SwapError{Msg: types.SwapErrPoolRevert, From: head}
}
