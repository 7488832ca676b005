// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package compose is the sign/broadcast pipeline (C10, §4.10): turns a
// searched Swap plus its encoded calldata into a gas-estimated
// TxComposeData, signs an EIP-1559 bundle for it, and dispatches the
// bundle either to a Flashbots-style relay or the public mempool.
package compose

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/backrun/types"
)

var logger = log.New("component", "compose")

// GasEstimator is the eth_call-shaped capability the Estimator stage
// needs: run the candidate call against the current simulated state and
// report how much gas it used. Declared here rather than depending on a
// concrete RPC client, the same dependency-inversion pattern as
// pool.ViewCaller.
type GasEstimator interface {
	EstimateGas(ctx context.Context, to common.Address, data []byte, value *uint256.Int) (uint64, error)
}

// Encoder is C9's output contract as the Estimator consumes it: encode a
// Swap into (to, value, calldata, tips) for a given gas cost assumption.
// encoder.Encoder satisfies this directly.
type Encoder interface {
	Encode(swap *types.Swap, tipsPct uint32, nextBlockNumber uint64, gasCost *uint256.Int, sender common.Address, ethBalance *uint256.Int) (to common.Address, value *uint256.Int, calldata []byte, tips []types.TipEntry, err error)
}

// Estimator is C10 stage 1: assembles a TxComposeData for a ready Swap,
// re-invoking the encoder twice per §4.10 ("executes eth_call to compute
// gas_used, multiplies by gas price to get gas_cost, re-invokes C9 with the
// cost to finalise tips") before emitting a TxComposeData ready for Sign.
type Estimator struct {
	gas     GasEstimator
	encoder Encoder

	nextComposeID uint64
}

func NewEstimator(gas GasEstimator, encoder Encoder) *Estimator {
	return &Estimator{gas: gas, encoder: encoder}
}

// Estimate runs the two-pass C9/eth_call loop and returns a TxComposeData
// ready for the Signer stage. gasPriceWei is next_base_fee + priority_gas_fee,
// matching gas_station.rs's calc_gas_cost(gas, gas_price).
func (e *Estimator) Estimate(ctx context.Context, swap *types.Swap, sender common.Address, ethBalance *uint256.Int, nextBlockNumber uint64, gasPriceWei uint64, tipsPct uint32, origin string, stuffingHashes []common.Hash) (types.TxComposeData, error) {
	if ethBalance == nil {
		ethBalance = uint256.NewInt(0)
	}

	// Pass 1: encode with gasCost=0 so the tip sweep is absent (or
	// minimal) from the probe calldata; all that matters here is a
	// dispatchable call to run EstimateGas against.
	probeTo, probeValue, probeCalldata, _, err := e.encoder.Encode(swap, tipsPct, nextBlockNumber, uint256.NewInt(0), sender, ethBalance)
	if err != nil {
		return types.TxComposeData{}, fmt.Errorf("compose: encoding gas probe: %w", err)
	}
	if probeValue == nil {
		probeValue = uint256.NewInt(0)
	}

	gasUsed, err := e.gas.EstimateGas(ctx, probeTo, probeCalldata, probeValue)
	if err != nil {
		return types.TxComposeData{}, fmt.Errorf("compose: estimating gas: %w", err)
	}
	gasCost := new(uint256.Int).Mul(uint256.NewInt(gasUsed), uint256.NewInt(gasPriceWei))

	// Pass 2: re-encode with the now-known gas cost, finalising the tip
	// split (§4.9's profit-vs-gas_cost no-op rule needs the real cost, not
	// the zero placeholder pass 1 used).
	to, value, calldata, tips, err := e.encoder.Encode(swap, tipsPct, nextBlockNumber, gasCost, sender, ethBalance)
	if err != nil {
		return types.TxComposeData{}, fmt.Errorf("compose: encoding final bundle: %w", err)
	}
	if value == nil {
		value = uint256.NewInt(0)
	}

	e.nextComposeID++
	data := types.TxComposeData{
		ComposeID:        e.nextComposeID,
		NextBlockNumber:  nextBlockNumber,
		Swap:             swap,
		Calldata:         calldata,
		To:               to,
		Value:            value,
		GasUsed:          gasUsed,
		GasCost:          gasCost,
		TipsPct:          tipsPct,
		Tips:             tips,
		Origin:           origin,
		StuffingTxHashes: stuffingHashes,
	}
	logger.Debug("compose: estimated", "composeId", data.ComposeID, "gasUsed", gasUsed, "gasCost", gasCost, "tips", len(tips))
	return data, nil
}
