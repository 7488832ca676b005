// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"context"
	"sync"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/backrun/types"
)

// fakeRegistry is mutex-guarded so it also doubles as the PoolRegistry for
// ProtocolSweepLoader.WithThreads tests, where AddPool/GetPool are called
// from several workers at once.
type fakeRegistry struct {
	mu    sync.Mutex
	pools map[types.PoolID]types.Pool
}

func newFakeRegistry() *fakeRegistry { return &fakeRegistry{pools: make(map[types.PoolID]types.Pool)} }

func (r *fakeRegistry) AddPool(p types.Pool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := p.ID()
	if _, exists := r.pools[id]; exists {
		return nil
	}
	r.pools[id] = p
	return nil
}

func (r *fakeRegistry) GetPool(id types.PoolID) (types.PoolWrapper, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pools[id]
	if !ok {
		return types.PoolWrapper{}, false
	}
	return types.NewPoolWrapper(p), true
}

type fakeViewCaller struct{}

func (fakeViewCaller) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return nil, nil
}

func creationLog(topic0 common.Hash, poolAddr common.Address) types.Log {
	data := make([]byte, 32)
	copy(data[12:], poolAddr[:])
	return types.Log{Topics: []common.Hash{topic0}, Data: data}
}

var pairCreatedTopic = common.HexToHash("0xcccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc")

func testBuilder(t0, t1 common.Address) Builder {
	return func(ctx context.Context, caller ViewCaller, address common.Address) (types.Pool, error) {
		return NewUniswapV2Pool(address, t0, t1, "uniswap_v2"), nil
	}
}

func TestLogDrivenLoader_RegistersNewPoolOnFirstSighting(t *testing.T) {
	registry := newFakeRegistry()
	loader := NewLogDrivenLoader(registry, fakeViewCaller{}, []LogSignature{
		{Topic0: pairCreatedTopic, Builder: testBuilder(token0, token1)},
	})

	logs := types.BlockLogs{Logs: []types.Log{creationLog(pairCreatedTopic, pairAddr)}}
	n, err := loader.HandleLogs(context.Background(), logs)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, ok := registry.GetPool(types.NewPoolIDFromAddress(pairAddr))
	require.True(t, ok)
}

func TestLogDrivenLoader_IgnoresUnknownTopic(t *testing.T) {
	registry := newFakeRegistry()
	loader := NewLogDrivenLoader(registry, fakeViewCaller{}, []LogSignature{
		{Topic0: pairCreatedTopic, Builder: testBuilder(token0, token1)},
	})

	unknown := common.HexToHash("0x1234567890123456789012345678901234567890123456789012345678901234")
	logs := types.BlockLogs{Logs: []types.Log{creationLog(unknown, pairAddr)}}
	n, err := loader.HandleLogs(context.Background(), logs)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestLogDrivenLoader_SecondSightingIsNoop(t *testing.T) {
	registry := newFakeRegistry()
	loader := NewLogDrivenLoader(registry, fakeViewCaller{}, []LogSignature{
		{Topic0: pairCreatedTopic, Builder: testBuilder(token0, token1)},
	})
	logs := types.BlockLogs{Logs: []types.Log{creationLog(pairCreatedTopic, pairAddr)}}
	_, err := loader.HandleLogs(context.Background(), logs)
	require.NoError(t, err)

	n, err := loader.HandleLogs(context.Background(), logs)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

type fakeSweepSource struct {
	addrs []common.Address
}

func (s *fakeSweepSource) PoolCount(ctx context.Context) (uint64, error) { return uint64(len(s.addrs)), nil }
func (s *fakeSweepSource) PoolAt(ctx context.Context, index uint64) (common.Address, error) {
	return s.addrs[index], nil
}

func TestProtocolSweepLoader_RegistersEveryFactoryPool(t *testing.T) {
	registry := newFakeRegistry()
	source := &fakeSweepSource{addrs: []common.Address{pairAddr, curveAddr}}
	builder := testBuilder(token0, token1)
	loader := NewProtocolSweepLoader(registry, fakeViewCaller{}, source, builder)

	n, err := loader.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestProtocolSweepLoader_WithThreadsRegistersEveryFactoryPool(t *testing.T) {
	addrs := make([]common.Address, 0, 20)
	for i := byte(1); i <= 20; i++ {
		addrs = append(addrs, common.Address{i})
	}
	registry := newFakeRegistry()
	source := &fakeSweepSource{addrs: addrs}
	builder := testBuilder(token0, token1)
	loader := NewProtocolSweepLoader(registry, fakeViewCaller{}, source, builder).WithThreads(4)

	n, err := loader.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, len(addrs), n)
	for _, addr := range addrs {
		_, ok := registry.GetPool(types.NewPoolIDFromAddress(addr))
		require.True(t, ok)
	}
}

type fakeHistoryLogSource struct {
	byHash map[common.Hash][]types.Log
}

func (f *fakeHistoryLogSource) LogsAtBlockHash(ctx context.Context, hash common.Hash) ([]types.Log, error) {
	return f.byHash[hash], nil
}

func TestHistorySweepLoader_BackfillsAcrossWindows(t *testing.T) {
	registry := newFakeRegistry()
	loader := NewLogDrivenLoader(registry, fakeViewCaller{}, []LogSignature{
		{Topic0: pairCreatedTopic, Builder: testBuilder(token0, token1)},
	})

	h1 := common.HexToHash("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	source := &fakeHistoryLogSource{byHash: map[common.Hash][]types.Log{
		h1: {creationLog(pairCreatedTopic, pairAddr)},
	}}
	sweep := NewHistorySweepLoader(source, loader)

	headers := make([]types.BlockHeader, 7)
	headers[0] = types.BlockHeader{Hash: h1, Number: 100}
	for i := 1; i < 7; i++ {
		headers[i] = types.BlockHeader{Hash: common.BigToHash(uint256.NewInt(uint64(i)).ToBig()), Number: uint64(100 + i)}
	}

	n, err := sweep.Backfill(context.Background(), headers)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
