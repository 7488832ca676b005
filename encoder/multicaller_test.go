// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package encoder

import (
	"bytes"
	"testing"

	"github.com/holiman/uint256"
	"go.uber.org/mock/gomock"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/backrun/types"
)

// buildThreeHopLine assembles a closed TokenX->TokenY->TokenZ->TokenX cycle
// exercising every composition rule encodeLine implements: leg 0's pool is
// router-style and its next hop is transfer-style, so leg 0 fuses (recipient
// set directly to leg 1's pool, no intervening balanceOf); leg 1 is
// transfer-style and needs its own ERC20 pre-fund, patched from the stack;
// leg 2 is router-style again and patches its swap call's amount directly
// from the stack, with a final balanceOf push for whatever consumes the
// line's output next.
func buildThreeHopLine(ctrl *gomock.Controller) (*types.SwapLine, *stubPool, *stubPool, *stubPool) {
	tokenX := common.HexToAddress("0xaaaa000000000000000000000000000000000a")
	tokenY := common.HexToAddress("0xbbbb000000000000000000000000000000000b")
	tokenZ := common.HexToAddress("0xcccc000000000000000000000000000000000c")

	poolA := common.HexToAddress("0x1111000000000000000000000000000000000a")
	poolB := common.HexToAddress("0x2222000000000000000000000000000000000b")
	poolC := common.HexToAddress("0x3333000000000000000000000000000000000c")

	a := newStubPool(ctrl, poolA, types.PreswapRequirementRouter, false, NewUniswapV3Encoder(tokenX))
	b := newStubPool(ctrl, poolB, types.PreswapRequirementTransfer, false, NewUniswapV2Encoder(tokenY))
	c := newStubPool(ctrl, poolC, types.PreswapRequirementRouter, false, NewUniswapV3Encoder(tokenZ))

	path := &types.SwapPath{
		Legs: []types.SwapPathLeg{
			{Pool: types.NewPoolWrapper(a), TokenIn: tokenX, TokenOut: tokenY},
			{Pool: types.NewPoolWrapper(b), TokenIn: tokenY, TokenOut: tokenZ},
			{Pool: types.NewPoolWrapper(c), TokenIn: tokenZ, TokenOut: tokenX},
		},
	}
	line := &types.SwapLine{
		Path:     path,
		AmountIn: types.SetAmount(uint256.NewInt(1_000)),
	}
	return line, a, b, c
}

// TestEncodeLineComposition pins the exact call sequence encodeLine produces
// for the three-hop fixture: fusion elides leg 0's balanceOf, leg 1 gets a
// stack-patched pre-fund transfer, and leg 2's swap call is itself
// stack-patched from leg 1's balance read.
func TestEncodeLineComposition(t *testing.T) {
	ctrl := gomock.NewController(t)
	line, a, b, c := buildThreeHopLine(ctrl)
	enc := NewEncoder(common.HexToAddress("0xdead"), common.HexToAddress("0xbeef"))

	calls, err := enc.encodeLine(line)
	if err != nil {
		t.Fatalf("encodeLine: %v", err)
	}
	if got, want := calls.Len(), 6; got != want {
		t.Fatalf("call count = %d, want %d (A.swap; B.transfer,B.swap,balanceOf; C.swap,balanceOf)", got, want)
	}

	leg0Swap := calls.Calls[0]
	if leg0Swap.To != a.addr || leg0Swap.HasStackPatch {
		t.Fatalf("leg 0 swap call: to=%s hasStackPatch=%v, want to=%s patch=false", leg0Swap.To, leg0Swap.HasStackPatch, a.addr)
	}

	leg1Transfer, leg1Swap, leg1BalanceOf := calls.Calls[1], calls.Calls[2], calls.Calls[3]
	if !bytes.HasPrefix(leg1Transfer.Calldata, erc20TransferSelector[:]) {
		t.Fatalf("leg 1 transfer call missing expected erc20 transfer selector")
	}
	if !leg1Transfer.HasStackPatch || leg1Transfer.StackPatchOffset != erc20TransferAmountOffset {
		t.Fatalf("leg 1 transfer call not stack-patched at the erc20 amount offset: %+v", leg1Transfer)
	}
	if leg1Swap.To != b.addr {
		t.Fatalf("leg 1 swap call to = %s, want %s", leg1Swap.To, b.addr)
	}
	if !leg1BalanceOf.Static || !leg1BalanceOf.HasReturnStack || leg1BalanceOf.ReturnStackLength != 32 {
		t.Fatalf("leg 1 balanceOf call not a static return-stack read: %+v", leg1BalanceOf)
	}

	leg2Swap, leg2BalanceOf := calls.Calls[4], calls.Calls[5]
	if leg2Swap.To != c.addr || !leg2Swap.HasStackPatch {
		t.Fatalf("leg 2 swap call: to=%s hasStackPatch=%v, want to=%s patch=true", leg2Swap.To, leg2Swap.HasStackPatch, c.addr)
	}
	if !leg2BalanceOf.Static || !leg2BalanceOf.HasReturnStack {
		t.Fatalf("leg 2 balanceOf call not a static return-stack read: %+v", leg2BalanceOf)
	}
}

// TestEncodeDoCallsRoundTrip is the P7 round-trip test at the full
// multicaller level (not just a single pool's ABI word): every call record
// DecodeDoCalls recovers from Encode's output must match what encodeLine
// itself produced, field for field.
func TestEncodeDoCallsRoundTrip(t *testing.T) {
	ctrl := gomock.NewController(t)
	line, _, _, _ := buildThreeHopLine(ctrl)
	enc := NewEncoder(common.HexToAddress("0xdead"), common.HexToAddress("0xbeef"))

	want, err := enc.encodeLine(line)
	if err != nil {
		t.Fatalf("encodeLine: %v", err)
	}

	wire := EncodeDoCalls(want)
	got, err := DecodeDoCalls(wire)
	if err != nil {
		t.Fatalf("DecodeDoCalls: %v", err)
	}
	if got.Len() != want.Len() {
		t.Fatalf("decoded %d calls, want %d", got.Len(), want.Len())
	}
	for i := range want.Calls {
		w, g := want.Calls[i], got.Calls[i]
		if w.To != g.To {
			t.Fatalf("call %d: To = %s, want %s", i, g.To, w.To)
		}
		if !w.Value.Eq(g.Value) {
			t.Fatalf("call %d: Value = %s, want %s", i, g.Value, w.Value)
		}
		if !bytes.Equal(w.Calldata, g.Calldata) {
			t.Fatalf("call %d: calldata mismatch\n got: %x\nwant: %x", i, g.Calldata, w.Calldata)
		}
		if w.Static != g.Static || w.CanFail != g.CanFail {
			t.Fatalf("call %d: flags mismatch static=%v/%v canFail=%v/%v", i, g.Static, w.Static, g.CanFail, w.CanFail)
		}
		if w.HasStackPatch != g.HasStackPatch || w.StackPatchOffset != g.StackPatchOffset {
			t.Fatalf("call %d: stack patch mismatch %+v vs %+v", i, g, w)
		}
		if w.HasReturnStack != g.HasReturnStack || w.ReturnStackOffset != g.ReturnStackOffset || w.ReturnStackLength != g.ReturnStackLength {
			t.Fatalf("call %d: return stack mismatch %+v vs %+v", i, g, w)
		}
	}
}

// TestEncoderEncodeEndToEnd drives the full C9 entrypoint (searcher's
// ComposeSwaps shape) and checks the dispatch target, zero outer value, and
// that the emitted calldata is itself a valid, fully round-trippable
// doCalls payload containing the same six calls as the direct encodeLine
// path (no tip calls appended, since the fixture's line has no cached
// OptimizeResult and EncodeTips/EncodeTokenTips no-op on a nil profit).
func TestEncoderEncodeEndToEnd(t *testing.T) {
	ctrl := gomock.NewController(t)
	line, _, _, _ := buildThreeHopLine(ctrl)
	multicaller := common.HexToAddress("0xdead000000000000000000000000000000dead")
	enc := NewEncoder(multicaller, common.HexToAddress("0xbeef"))

	swap := types.NewBackrunSwap(line)
	to, value, calldata, tips, err := enc.Encode(swap, 10, 0, uint256.NewInt(0), common.Address{}, nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if to != multicaller {
		t.Fatalf("to = %s, want multicaller %s", to, multicaller)
	}
	if !value.IsZero() {
		t.Fatalf("outer value = %s, want 0 (value travels per-call, not on the doCalls dispatch itself)", value)
	}
	if tips != nil {
		t.Fatalf("expected no tips for a line with no cached profit, got %v", tips)
	}

	decoded, err := DecodeDoCalls(calldata)
	if err != nil {
		t.Fatalf("DecodeDoCalls: %v", err)
	}
	if decoded.Len() != 6 {
		t.Fatalf("decoded %d calls, want 6", decoded.Len())
	}
}
