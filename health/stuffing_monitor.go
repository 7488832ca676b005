// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package health

import (
	"context"
	"fmt"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/metric"

	"github.com/luxfi/backrun/types"
)

// TxOutcomeLookup reports whether txHash landed in blockHash and, if so,
// whether its receipt status was successful. Declared locally rather
// than depending on a concrete RPC/receipt type, the same
// dependency-inversion pattern as pool.ViewCaller and compose.GasEstimator.
type TxOutcomeLookup interface {
	TxSucceeded(ctx context.Context, blockHash, txHash common.Hash) (succeeded bool, found bool, err error)
}

// StuffingTxMonitor watches the block a broadcast bundle was targeting:
// when the stuffing tx it rode behind failed on-chain but the backrun
// would have simulated profitably anyway, it records the mismatch for
// offline analysis (§4.11: "when a Broadcast embedded a stuffing tx,
// watch the next block; if the stuffing tx failed and the backrun
// simulated profitably, record a structured event").
type StuffingTxMonitor struct {
	lookup TxOutcomeLookup

	mismatches metric.Counter
}

func NewStuffingTxMonitor(lookup TxOutcomeLookup) *StuffingTxMonitor {
	return &StuffingTxMonitor{
		lookup: lookup,
		mismatches: metric.NewCounter(metric.CounterOpts{
			Name: "health/stuffing_tx_mismatches",
			Help: "stuffing txs that failed while their backrun simulated profitably",
		}),
	}
}

// Observe checks every stuffing tx hash a compose id was broadcast with
// against blockHash, emitting one HealthMonitorTx event per tx that
// failed despite backrunProfitable. Hashes not yet mined in blockHash
// are skipped rather than treated as failures.
func (m *StuffingTxMonitor) Observe(ctx context.Context, blockHash common.Hash, stuffingHashes []common.Hash, backrunProfitable bool) ([]*types.HealthEvent, error) {
	if !backrunProfitable || len(stuffingHashes) == 0 {
		return nil, nil
	}
	var events []*types.HealthEvent
	for _, txHash := range stuffingHashes {
		succeeded, found, err := m.lookup.TxSucceeded(ctx, blockHash, txHash)
		if err != nil {
			return events, fmt.Errorf("health: looking up stuffing tx %s: %w", txHash, err)
		}
		if !found || succeeded {
			continue
		}
		m.mismatches.Add(1)
		events = append(events, &types.HealthEvent{
			Kind:   types.HealthMonitorTx,
			TxHash: txHash,
			Detail: "stuffing tx failed while backrun simulated profitably",
		})
	}
	return events, nil
}
