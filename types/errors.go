// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import "errors"

// Market / SwapPath construction errors.
var (
	ErrInvalidSwapPath  = errors.New("invalid swap path")
	ErrPoolAlreadyAdded = errors.New("pool already registered")
	ErrTokenUnknown     = errors.New("token not registered")
)

// MarketState (C5) read errors, per §4.5. A failed read aborts the
// containing simulation and is reported as a SwapError by the caller.
var (
	ErrNoAccount = errors.New("marketstate: no account")
	ErrNoSlot    = errors.New("marketstate: no slot")
	ErrNoDB      = errors.New("marketstate: no base db configured")
	ErrTransport = errors.New("marketstate: base db transport error")
)

// Swap-search errors (§7), reported as SwapError.Msg values.
const (
	SwapErrPriceNotSet           = "PRICE_NOT_SET"
	SwapErrOverflow              = "OVERFLOW"
	SwapErrPoolRevert            = "POOL_REVERT"
	SwapErrInsufficientLiquidity = "INSUFFICIENT_LIQUIDITY"
	SwapErrNotProfitable         = "NOT_PROFITABLE"
)

// Encoding errors (§7), returned by the encoder (C9) and logged, dropping
// the candidate compose message without killing the worker.
var (
	ErrSwapTypeNotCovered    = errors.New("encoder: swap type not covered")
	ErrNoSwapSteps           = errors.New("encoder: no swap steps")
	ErrCannotEncodeStEthSwap = errors.New("encoder: cannot encode stETH rebasing swap")
)
