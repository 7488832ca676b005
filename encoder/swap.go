// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package encoder

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/backrun/types"
)

// Encoder is C9 (§4.9): it turns a searched types.Swap into the single
// doCalls dispatch a multicaller contract executes, composing each swap
// line's per-hop ABI calldata (the sub-encoders in uniswapv2.go/uniswapv3.go)
// with the opcode/stack layer in multicaller.go, plus the tip sweep from
// tips.go.
type Encoder struct {
	// Multicaller is the deployed contract every encoded bundle dispatches
	// against and that every tip sweep sources its balance from.
	Multicaller common.Address
	// WETH is the wrapped-native token address; a backrun whose head token
	// is WETH tips via EncodeTips, anything else via EncodeTokenTips.
	WETH common.Address
}

// NewEncoder builds an Encoder bound to one deployed multicaller instance.
func NewEncoder(multicaller, weth common.Address) *Encoder {
	return &Encoder{Multicaller: multicaller, WETH: weth}
}

// Encode is the C9 output contract (§4.9):
//
//	encode(swap, tips_pct, next_block_number, gas_cost, sender, eth_balance)
//	  -> (to, value, calldata, tips_vec)
//
// nextBlockNumber is threaded through for parity with that signature; this
// encoder has no per-block branch (no time-locked step, no block-hash
// dependent salt), so it is otherwise unused today.
func (e *Encoder) Encode(swap *types.Swap, tipsPct uint32, nextBlockNumber uint64, gasCost *uint256.Int, sender common.Address, ethBalance *uint256.Int) (to common.Address, value *uint256.Int, calldata []byte, tips []types.TipEntry, err error) {
	_ = nextBlockNumber
	if swap == nil {
		return common.Address{}, nil, nil, nil, types.ErrSwapTypeNotCovered
	}
	if gasCost == nil {
		gasCost = uint256.NewInt(0)
	}
	if ethBalance == nil {
		ethBalance = uint256.NewInt(0)
	}

	calls, headToken, profit, err := e.encodeSwapCalls(swap)
	if err != nil {
		return common.Address{}, nil, nil, nil, err
	}

	tipEntries, tipCalls, err := e.buildTips(headToken, profit, tipsPct, gasCost, sender, ethBalance)
	if err != nil {
		return common.Address{}, nil, nil, nil, err
	}
	calls.Merge(tipCalls)

	return e.Multicaller, uint256.NewInt(0), EncodeDoCalls(calls), tipEntries, nil
}

// encodeSwapCalls dispatches on swap.Kind, returning the composed call
// sequence plus the head token and aggregate profit the tip stage needs.
// SwapMultiple recurses so every leaf swap's calls land in one shared
// doCalls envelope rather than each getting its own nested dispatch.
func (e *Encoder) encodeSwapCalls(swap *types.Swap) (*MulticallerCalls, common.Address, *uint256.Int, error) {
	switch swap.Kind {
	case types.SwapBackrunLine, types.SwapExchangeLine:
		if swap.Line == nil {
			return nil, common.Address{}, nil, types.ErrNoSwapSteps
		}
		calls, err := e.encodeLine(swap.Line)
		if err != nil {
			return nil, common.Address{}, nil, err
		}
		var profit *uint256.Int
		if swap.Line.Optimized != nil {
			profit = swap.Line.Optimized.Profit
		}
		return calls, swap.Line.FirstToken(), profit, nil

	case types.SwapBackrunSteps:
		if len(swap.Steps) == 0 {
			return nil, common.Address{}, nil, types.ErrNoSwapSteps
		}
		merged := NewMulticallerCalls()
		var head common.Address
		var profit *uint256.Int
		for _, step := range swap.Steps {
			stepCalls, err := e.encodeStep(step)
			if err != nil {
				return nil, common.Address{}, nil, err
			}
			merged.Merge(stepCalls)
			if len(step.Lines) > 0 && step.Lines[0] != nil {
				if head == (common.Address{}) {
					head = step.Lines[0].FirstToken()
				}
				if step.Lines[0].Optimized != nil {
					profit = addProfit(profit, step.Lines[0].Optimized.Profit)
				}
			}
		}
		return merged, head, profit, nil

	case types.SwapMultiple:
		if len(swap.Multi) == 0 {
			return nil, common.Address{}, nil, types.ErrNoSwapSteps
		}
		merged := NewMulticallerCalls()
		var head common.Address
		var profit *uint256.Int
		for _, sub := range swap.Multi {
			if sub == nil {
				continue
			}
			subCalls, subHead, subProfit, err := e.encodeSwapCalls(sub)
			if err != nil {
				return nil, common.Address{}, nil, err
			}
			merged.Merge(subCalls)
			if head == (common.Address{}) {
				head = subHead
			}
			profit = addProfit(profit, subProfit)
		}
		return merged, head, profit, nil

	default:
		return nil, common.Address{}, nil, types.ErrSwapTypeNotCovered
	}
}

// encodeLine walks one SwapLine's legs in order, composing each hop's ABI
// swap calldata with the fusion/stack-forwarding rules of §4.9:
//
//   - a leg whose pool reports PreswapRequirementTransfer needs its input
//     pre-funded by a literal ERC20 transfer before the swap call;
//   - when the NEXT leg's pool also needs pre-funding by transfer, this
//     leg's swap call sets its own recipient to that next pool directly,
//     fusing away the separate transfer call the next hop would otherwise
//     need (the transfer-prerequisite elimination §4.9 describes);
//   - every hop but the last pushes a post-swap balanceOf(recipient) read
//     onto the stack (WithReturnStack) for the next hop's amount word to
//     consume (WithStackPatch) — except a fused hop, whose funds already
//     landed directly at the next pool with no separate read needed.
//
// Known limitation: for a PreswapRequirementTransfer pool the
// stack-forwarded balance patches only the pre-fund transfer's amount; the
// pool's own swap call is not stack-patched and carries the amount known at
// encode time (the line's set amount_in on the first hop, zero on later
// hops). A real UniswapV2 pair needs its requested amount0Out/amount1Out
// computed from its own reserves (the original's
// uni2_get_out_amount_from_x); this encoder does not compute it (see
// DESIGN.md). The structural composition (fusion, stack forwarding,
// flash-loan wrapping, tips) is what this encoder covers.
func (e *Encoder) encodeLine(line *types.SwapLine) (*MulticallerCalls, error) {
	if line == nil || line.Path == nil || len(line.Path.Legs) == 0 {
		return nil, types.ErrNoSwapSteps
	}
	legs := line.Path.Legs
	calls := NewMulticallerCalls()

	for i, leg := range legs {
		pool := leg.Pool
		enc := pool.Encoder()
		if enc == nil {
			return nil, fmt.Errorf("%w: pool %s has no ABI encoder", types.ErrSwapTypeNotCovered, pool.ID())
		}

		fuseNext := i+1 < len(legs) && legs[i+1].Pool.PreswapRequirement() == types.PreswapRequirementTransfer
		recipient := e.Multicaller
		if fuseNext {
			recipient = legs[i+1].Pool.Address()
		}

		patchAmount := i > 0
		amount := uint256.NewInt(0)
		if i == 0 {
			if line.AmountIn.Kind == types.AmountSet && line.AmountIn.Value != nil {
				amount = line.AmountIn.Value
			} else {
				patchAmount = true
			}
		}

		if pool.PreswapRequirement() == types.PreswapRequirementTransfer {
			transferCall := NewCall(leg.TokenIn, EncodeERC20Transfer(pool.Address(), amount))
			if patchAmount {
				transferCall.WithStackPatch(erc20TransferAmountOffset)
			}
			calls.Add(transferCall)
		}

		legCalldata, amountOffset, err := enc.EncodeSwap(leg.TokenIn, leg.TokenOut, amount, recipient, nil)
		if err != nil {
			return nil, fmt.Errorf("encoder: leg %d (%s): %w", i, pool.ID(), err)
		}
		swapCall := NewCall(pool.Address(), legCalldata)
		if patchAmount && amountOffset >= 0 && pool.PreswapRequirement() != types.PreswapRequirementTransfer {
			swapCall.WithStackPatch(amountOffset)
		}
		calls.Add(swapCall)

		if !fuseNext {
			calls.Add(NewStaticCall(leg.TokenOut, EncodeERC20BalanceOf(recipient)).WithReturnStack(0, 32))
		}
	}
	return calls, nil
}

// encodeStep composes one SwapStep's parallel lines into a single call
// sequence, then wraps the whole sequence in a flashLoan call when any
// line's first leg is a flash-swappable pool (§4.9's flash-loan
// composition): the inner calls become the callback data a flash provider
// invokes after handing over the borrowed token.
func (e *Encoder) encodeStep(step *types.SwapStep) (*MulticallerCalls, error) {
	if step == nil || len(step.Lines) == 0 {
		return nil, types.ErrNoSwapSteps
	}
	merged := NewMulticallerCalls()
	var flashPool common.Address
	hasFlash := false
	for _, line := range step.Lines {
		if line == nil || line.Path == nil || len(line.Path.Legs) == 0 {
			continue
		}
		if !hasFlash && line.Path.Legs[0].Pool.CanFlashSwap() {
			hasFlash = true
			flashPool = line.Path.Legs[0].Pool.Address()
		}
		lineCalls, err := e.encodeLine(line)
		if err != nil {
			return nil, err
		}
		merged.Merge(lineCalls)
	}
	if !hasFlash {
		return merged, nil
	}
	inner := EncodeDoCalls(merged)
	wrapped := NewMulticallerCalls()
	wrapped.Add(NewCall(flashPool, EncodeFlashLoan(uint256.NewInt(0), inner)))
	return wrapped, nil
}

// buildTips computes this encode pass's tip split, denominated in WETH when
// the swap's head token is WETH, or in that head token directly otherwise.
func (e *Encoder) buildTips(headToken common.Address, profit *uint256.Int, tipsPct uint32, gasCost *uint256.Int, sender common.Address, ethBalance *uint256.Int) ([]types.TipEntry, *MulticallerCalls, error) {
	calls := NewMulticallerCalls()
	if profit == nil || headToken == (common.Address{}) {
		return nil, calls, nil
	}

	var entry *types.TipEntry
	var tipCalldata []byte
	var err error
	if headToken == e.WETH {
		entry, tipCalldata, err = EncodeTips(e.WETH, profit, tipsPct, gasCost, sender, ethBalance)
	} else {
		entry, tipCalldata, err = EncodeTokenTips(headToken, profit, tipsPct, gasCost, sender, uint256.NewInt(0))
	}
	if err != nil {
		return nil, nil, err
	}
	if entry == nil {
		return nil, calls, nil
	}
	calls.Add(NewCall(e.Multicaller, tipCalldata))
	return []types.TipEntry{*entry}, calls, nil
}

func addProfit(acc, v *uint256.Int) *uint256.Int {
	if v == nil {
		return acc
	}
	if acc == nil {
		return new(uint256.Int).Set(v)
	}
	return new(uint256.Int).Add(acc, v)
}
