// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package encoder

import (
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/luxfi/geth/common"
)

// doCallsSelector is the multicaller's single dispatch entrypoint:
// doCalls(bytes), where the bytes argument is the length-prefixed,
// fixed-shape call-record sequence EncodeDoCalls/DecodeDoCalls (de)serialize.
// There is no on-chain reference bytecode in the retrieved source for this
// repo's multicaller, so the wire shape below is this repo's own, chosen to
// carry exactly the fields the opcode encoder needs: a call's
// to/value/calldata plus the two stack-forwarding knobs (§4.9).
var doCallsSelector = selector("doCalls(bytes)")

// erc20TransferSelector/erc20ApproveSelector/erc20BalanceOfSelector are the
// standard ERC20 entrypoints the step/line encoder composes around a pool's
// own swap calldata: pre-funding a PreswapRequirementTransfer pool and
// reading a post-swap balance for stack forwarding.
var (
	erc20TransferSelector  = selector("transfer(address,uint256)")
	erc20ApproveSelector   = selector("approve(address,uint256)")
	erc20BalanceOfSelector = selector("balanceOf(address)")
)

// erc20TransferAmountOffset is the byte offset of transfer(address,uint256)'s
// amount word within its own calldata (selector + address word), the offset
// WithStackPatch needs to forward a stack cell into a pre-funding transfer.
const erc20TransferAmountOffset = 4 + 32

// EncodeERC20Transfer builds calldata for transfer(to, amount).
func EncodeERC20Transfer(to common.Address, amount *uint256.Int) []byte {
	buf := make([]byte, 0, 4+2*32)
	buf = append(buf, erc20TransferSelector[:]...)
	toWord := addressWord(to)
	buf = append(buf, toWord[:]...)
	amountWord := word32(amount)
	buf = append(buf, amountWord[:]...)
	return buf
}

// EncodeERC20Approve builds calldata for approve(spender, amount).
func EncodeERC20Approve(spender common.Address, amount *uint256.Int) []byte {
	buf := make([]byte, 0, 4+2*32)
	buf = append(buf, erc20ApproveSelector[:]...)
	spenderWord := addressWord(spender)
	buf = append(buf, spenderWord[:]...)
	amountWord := word32(amount)
	buf = append(buf, amountWord[:]...)
	return buf
}

// EncodeERC20BalanceOf builds calldata for balanceOf(owner), the read used
// after every unfused hop to learn the actual amount the recipient now
// holds before forwarding it into the next call via the stack.
func EncodeERC20BalanceOf(owner common.Address) []byte {
	buf := make([]byte, 0, 4+32)
	buf = append(buf, erc20BalanceOfSelector[:]...)
	ownerWord := addressWord(owner)
	buf = append(buf, ownerWord[:]...)
	return buf
}

// MulticallerCall is one call the multicaller dispatches in sequence. Static
// calls never move value and revert the whole batch if they fail (used for
// the balanceOf reads); ordinary calls may be marked CanFail to tolerate a
// revert without aborting the batch (unused by this repo's own call
// sequences today, but part of the wire format so a future protocol that
// needs it doesn't require a format change.
//
// WithStackPatch/WithReturnStack implement §4.9's "stack" amount-forwarding:
// a call marked WithReturnStack pushes `length` bytes of its own return data
// (read at `offset`) onto the multicaller's single-cell forwarding slot; the
// next call marked WithStackPatch splices that cell into its own calldata at
// the given byte offset immediately before dispatch. Only one cell is live
// at a time — this repo's call sequences never need more than one hop of
// forwarding in flight.
type MulticallerCall struct {
	To       common.Address
	Value    *uint256.Int
	Calldata []byte
	Static   bool
	CanFail  bool

	HasStackPatch    bool
	StackPatchOffset int

	HasReturnStack    bool
	ReturnStackOffset int
	ReturnStackLength int
}

// NewCall builds a plain value-less call.
func NewCall(to common.Address, calldata []byte) *MulticallerCall {
	return &MulticallerCall{To: to, Value: uint256.NewInt(0), Calldata: calldata}
}

// NewCallWithValue builds a call that forwards ETH alongside its calldata.
func NewCallWithValue(to common.Address, value *uint256.Int, calldata []byte) *MulticallerCall {
	if value == nil {
		value = uint256.NewInt(0)
	}
	return &MulticallerCall{To: to, Value: value, Calldata: calldata}
}

// NewStaticCall builds a call the multicaller dispatches as a read (no
// value, reverts the batch on failure): the shape every balanceOf probe
// uses.
func NewStaticCall(to common.Address, calldata []byte) *MulticallerCall {
	c := NewCall(to, calldata)
	c.Static = true
	return c
}

// AllowFail marks a call as tolerating its own revert without failing the
// whole batch.
func (c *MulticallerCall) AllowFail() *MulticallerCall {
	c.CanFail = true
	return c
}

// WithStackPatch marks this call's calldata to be patched at byte offset
// from the most recently pushed stack cell before dispatch.
func (c *MulticallerCall) WithStackPatch(offset int) *MulticallerCall {
	c.HasStackPatch = true
	c.StackPatchOffset = offset
	return c
}

// WithReturnStack marks this call's return data, sliced [offset:offset+length],
// to be pushed onto the stack for a later call's WithStackPatch to consume.
func (c *MulticallerCall) WithReturnStack(offset, length int) *MulticallerCall {
	c.HasReturnStack = true
	c.ReturnStackOffset = offset
	c.ReturnStackLength = length
	return c
}

// MulticallerCalls is an ordered call sequence being assembled for one
// doCalls dispatch.
type MulticallerCalls struct {
	Calls []*MulticallerCall
}

// NewMulticallerCalls builds an empty call sequence.
func NewMulticallerCalls() *MulticallerCalls {
	return &MulticallerCalls{}
}

// Add appends one call to the sequence.
func (m *MulticallerCalls) Add(c *MulticallerCall) *MulticallerCalls {
	m.Calls = append(m.Calls, c)
	return m
}

// Merge appends another sequence's calls in order.
func (m *MulticallerCalls) Merge(other *MulticallerCalls) *MulticallerCalls {
	if other == nil {
		return m
	}
	m.Calls = append(m.Calls, other.Calls...)
	return m
}

// Len reports the number of calls queued.
func (m *MulticallerCalls) Len() int {
	return len(m.Calls)
}

// callRecordFlags packs a call's boolean knobs into a single byte: bit0
// static, bit1 canFail, bit2 hasStackPatch, bit3 hasReturnStack.
func callRecordFlags(c *MulticallerCall) byte {
	var flags byte
	if c.Static {
		flags |= 1 << 0
	}
	if c.CanFail {
		flags |= 1 << 1
	}
	if c.HasStackPatch {
		flags |= 1 << 2
	}
	if c.HasReturnStack {
		flags |= 1 << 3
	}
	return flags
}

// EncodeDoCalls serializes calls into the doCalls(bytes) calldata the
// multicaller dispatches. Wire shape (this repo's own, §4.9): a 4-byte
// selector, the standard single dynamic-bytes-argument ABI head (offset
// word + length-prefixed body), and inside the body one fixed-shape record
// per call:
//
//	flags(32B, low byte only) | to(32B) | value(32B) | patchOffset(32B) |
//	returnOffset(32B) | returnLength(32B) | calldata(dynamic, length-prefixed)
func EncodeDoCalls(calls *MulticallerCalls) []byte {
	if calls == nil {
		calls = NewMulticallerCalls()
	}

	body := make([]byte, 0, 256*len(calls.Calls)+32)
	countWord := uint64Word(uint64(len(calls.Calls)))
	body = append(body, countWord[:]...)

	for _, c := range calls.Calls {
		value := c.Value
		if value == nil {
			value = uint256.NewInt(0)
		}
		flagsWord := word32(new(uint256.Int).SetUint64(uint64(callRecordFlags(c))))
		toWord := addressWord(c.To)
		valueWord := word32(value)
		patchWord := uint64Word(uint64(c.StackPatchOffset))
		retOffWord := uint64Word(uint64(c.ReturnStackOffset))
		retLenWord := uint64Word(uint64(c.ReturnStackLength))

		body = append(body, flagsWord[:]...)
		body = append(body, toWord[:]...)
		body = append(body, valueWord[:]...)
		body = append(body, patchWord[:]...)
		body = append(body, retOffWord[:]...)
		body = append(body, retLenWord[:]...)
		body = appendDynamicBytes(body, c.Calldata)
	}

	buf := make([]byte, 0, 4+32+len(body)+32)
	buf = append(buf, doCallsSelector[:]...)
	headOffset := uint64Word(32)
	buf = append(buf, headOffset[:]...)
	buf = appendDynamicBytes(buf, body)
	return buf
}

// DecodeDoCalls is EncodeDoCalls' inverse, used by the round-trip tests
// (§4.9's P7) to verify every field survives encoding without needing an
// EVM to dispatch the calldata against.
func DecodeDoCalls(data []byte) (*MulticallerCalls, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("encoder: doCalls payload too short")
	}
	if [4]byte(data[:4]) != doCallsSelector {
		return nil, fmt.Errorf("encoder: not a doCalls payload")
	}
	data = data[4:]
	if len(data) < 64 {
		return nil, fmt.Errorf("encoder: doCalls head truncated")
	}
	bodyLen := int(binary.BigEndian.Uint64(data[56:64]))
	body := data[64:]
	if len(body) < bodyLen {
		return nil, fmt.Errorf("encoder: doCalls body truncated")
	}
	body = body[:bodyLen]

	if len(body) < 32 {
		return nil, fmt.Errorf("encoder: doCalls count word truncated")
	}
	count := int(binary.BigEndian.Uint64(body[24:32]))
	body = body[32:]

	calls := NewMulticallerCalls()
	for i := 0; i < count; i++ {
		if len(body) < 6*32 {
			return nil, fmt.Errorf("encoder: doCalls record %d truncated", i)
		}
		flags := body[31]
		var to common.Address
		copy(to[:], body[32+12:64])
		value := new(uint256.Int).SetBytes(body[64:96])
		patchOffset := int(binary.BigEndian.Uint64(body[96+24 : 128]))
		retOffset := int(binary.BigEndian.Uint64(body[128+24 : 160]))
		retLength := int(binary.BigEndian.Uint64(body[160+24 : 192]))
		body = body[192:]

		if len(body) < 32 {
			return nil, fmt.Errorf("encoder: doCalls record %d calldata length truncated", i)
		}
		calldataLen := int(binary.BigEndian.Uint64(body[24:32]))
		body = body[32:]
		if len(body) < calldataLen {
			return nil, fmt.Errorf("encoder: doCalls record %d calldata truncated", i)
		}
		calldata := make([]byte, calldataLen)
		copy(calldata, body[:calldataLen])
		pad := (32 - calldataLen%32) % 32
		if len(body) < calldataLen+pad {
			return nil, fmt.Errorf("encoder: doCalls record %d calldata padding truncated", i)
		}
		body = body[calldataLen+pad:]

		call := &MulticallerCall{
			To:       to,
			Value:    value,
			Calldata: calldata,
			Static:   flags&(1<<0) != 0,
			CanFail:  flags&(1<<1) != 0,
		}
		if flags&(1<<2) != 0 {
			call.WithStackPatch(patchOffset)
		}
		if flags&(1<<3) != 0 {
			call.WithReturnStack(retOffset, retLength)
		}
		calls.Add(call)
	}
	return calls, nil
}

// EncodeFlashLoan wraps inner-call calldata into a single call against a
// flash-providing pool, per §4.9's flash-loan composition: the inner
// doCalls blob travels as the callback data, the same way
// pool_opcodes_encoder's stack-forwarding sibling wraps a sub-sequence
// behind one external call. Real flash-loan providers (Aave, Balancer,
// Uniswap v3 flash) each have their own callback signature; this repo picks
// one uniform shape (flashLoan(uint256,bytes)) rather than modelling every
// provider's distinct callback, and documents that as a scope limitation.
var flashLoanSelector = selector("flashLoan(uint256,bytes)")

func EncodeFlashLoan(amount *uint256.Int, callbackData []byte) []byte {
	if amount == nil {
		amount = uint256.NewInt(0)
	}
	buf := make([]byte, 0, 4+2*32+len(callbackData)+32)
	buf = append(buf, flashLoanSelector[:]...)
	amountWord := word32(amount)
	buf = append(buf, amountWord[:]...)
	dataOffset := uint64Word(2 * 32)
	buf = append(buf, dataOffset[:]...)
	buf = appendDynamicBytes(buf, callbackData)
	return buf
}
