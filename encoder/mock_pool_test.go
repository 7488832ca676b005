// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package encoder

import (
	"reflect"

	"github.com/holiman/uint256"
	"go.uber.org/mock/gomock"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/backrun/types"
)

// MockCalculateOutAmount is a hand-written gomock double backing
// stubPool's CalculateOutAmount. The encoder never calls that method (it
// only reads ABI-shaping metadata) and the encoder tests set no
// expectations on it, so any call to it fails the test through the
// gomock.Controller.
type MockCalculateOutAmount struct {
	ctrl     *gomock.Controller
	recorder *MockCalculateOutAmountMockRecorder
}

type MockCalculateOutAmountMockRecorder struct {
	mock *MockCalculateOutAmount
}

func NewMockCalculateOutAmount(ctrl *gomock.Controller) *MockCalculateOutAmount {
	m := &MockCalculateOutAmount{ctrl: ctrl}
	m.recorder = &MockCalculateOutAmountMockRecorder{m}
	return m
}

func (m *MockCalculateOutAmount) EXPECT() *MockCalculateOutAmountMockRecorder {
	return m.recorder
}

func (m *MockCalculateOutAmount) CalculateOutAmount(db types.StateReader, from, to common.Address, amountIn *uint256.Int) (types.SimResult, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "CalculateOutAmount", db, from, to, amountIn)
	res, _ := ret[0].(types.SimResult)
	err, _ := ret[1].(error)
	return res, err
}

func (mr *MockCalculateOutAmountMockRecorder) CalculateOutAmount(db, from, to, amountIn interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "CalculateOutAmount",
		reflect.TypeOf((*MockCalculateOutAmount)(nil).CalculateOutAmount), db, from, to, amountIn)
}

// stubPool satisfies types.Pool for the encoder tests. Everything the
// encoder itself reads from a pool (PreswapRequirement, CanFlashSwap,
// Address, Encoder) is a plain field so test setup stays a literal struct
// build; CalculateOutAmount is the one method delegated to a
// gomock.Controller-backed mock, with no expectations recorded.
type stubPool struct {
	id       types.PoolID
	addr     common.Address
	class    types.PoolClass
	protocol types.PoolProtocol
	tokens   []common.Address
	dirs     []types.SwapDirection

	canFlash    bool
	preswapReq  types.PreswapRequirement
	requiredSt  []types.RequiredStateItem
	abiEncoder  types.AbiSwapEncoder

	outAmount *MockCalculateOutAmount
}

func (p *stubPool) ID() types.PoolID                     { return p.id }
func (p *stubPool) Address() common.Address              { return p.addr }
func (p *stubPool) Class() types.PoolClass               { return p.class }
func (p *stubPool) Protocol() types.PoolProtocol         { return p.protocol }
func (p *stubPool) Tokens() []common.Address             { return p.tokens }
func (p *stubPool) SwapDirections() []types.SwapDirection { return p.dirs }
func (p *stubPool) CanFlashSwap() bool                    { return p.canFlash }
func (p *stubPool) PreswapRequirement() types.PreswapRequirement { return p.preswapReq }
func (p *stubPool) RequiredState() []types.RequiredStateItem     { return p.requiredSt }
func (p *stubPool) Encoder() types.AbiSwapEncoder                { return p.abiEncoder }

func (p *stubPool) CalculateOutAmount(db types.StateReader, from, to common.Address, amountIn *uint256.Int) (types.SimResult, error) {
	return p.outAmount.CalculateOutAmount(db, from, to, amountIn)
}

func (p *stubPool) CalculateInAmount(db types.StateReader, from, to common.Address, amountOut *uint256.Int) (types.SimResult, error) {
	return types.SimResult{}, nil
}

func newStubPool(ctrl *gomock.Controller, addr common.Address, preswapReq types.PreswapRequirement, canFlash bool, enc types.AbiSwapEncoder) *stubPool {
	return &stubPool{
		id:         types.NewPoolIDFromAddress(addr),
		addr:       addr,
		class:      types.PoolClassUniswapV2,
		protocol:   types.PoolProtocol("test"),
		preswapReq: preswapReq,
		canFlash:   canFlash,
		abiEncoder: enc,
		outAmount:  NewMockCalculateOutAmount(ctrl),
	}
}
