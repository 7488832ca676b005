// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chainio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/backrun/actor"
	"github.com/luxfi/backrun/types"
)

type fakeRPCClient struct {
	heads  chan common.Hash
	txs    chan types.MempoolTx
	header types.BlockHeader
	block  types.BlockUpdate
	logs   []types.Log
	state  types.GethStateUpdate
}

func newFakeRPCClient() *fakeRPCClient {
	return &fakeRPCClient{
		heads: make(chan common.Hash, 4),
		txs:   make(chan types.MempoolTx, 4),
		state: types.GethStateUpdate{},
	}
}

func (f *fakeRPCClient) SubscribeNewHeads(ctx context.Context) (<-chan common.Hash, func(), error) {
	return f.heads, func() {}, nil
}

func (f *fakeRPCClient) SubscribePendingTransactions(ctx context.Context) (<-chan types.MempoolTx, func(), error) {
	return f.txs, func() {}, nil
}

func (f *fakeRPCClient) BlockByHash(ctx context.Context, hash common.Hash) (types.BlockUpdate, error) {
	f.block.Hash = hash
	return f.block, nil
}

func (f *fakeRPCClient) HeaderByHash(ctx context.Context, hash common.Hash) (types.BlockHeader, error) {
	f.header.Hash = hash
	return f.header, nil
}

func (f *fakeRPCClient) LogsAtBlockHash(ctx context.Context, hash common.Hash) ([]types.Log, error) {
	return f.logs, nil
}

func (f *fakeRPCClient) TraceBlockPostState(ctx context.Context, hash common.Hash) (types.GethStateUpdate, error) {
	return f.state, nil
}

func TestJSONRPCAdaptor_NewHeadFansOutToAllFourFeeds(t *testing.T) {
	client := newFakeRPCClient()
	feed := NewFeed(16)
	adaptor := NewJSONRPCAdaptor("test", client, feed)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup := actor.NewSupervisor(ctx)
	require.NoError(t, sup.Start(adaptor))

	headerSub := feed.Headers.Subscribe()
	blockSub := feed.Blocks.Subscribe()
	logsSub := feed.Logs.Subscribe()
	stateSub := feed.StateUpdates.Subscribe()

	hash := common.HexToHash("0xaa")
	client.heads <- hash

	recvCtx, recvCancel := context.WithTimeout(context.Background(), time.Second)
	defer recvCancel()

	h, _, err := headerSub.Recv(recvCtx)
	require.NoError(t, err)
	require.Equal(t, hash, h.Hash)

	b, _, err := blockSub.Recv(recvCtx)
	require.NoError(t, err)
	require.Equal(t, hash, b.Hash)

	_, _, err = logsSub.Recv(recvCtx)
	require.NoError(t, err)

	s, _, err := stateSub.Recv(recvCtx)
	require.NoError(t, err)
	require.Equal(t, hash, s.Hash)

	cancel()
}

func TestJSONRPCAdaptor_DuplicateHeadIsDropped(t *testing.T) {
	client := newFakeRPCClient()
	feed := NewFeed(16)
	adaptor := NewJSONRPCAdaptor("test", client, feed)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup := actor.NewSupervisor(ctx)
	require.NoError(t, sup.Start(adaptor))

	headerSub := feed.Headers.Subscribe()

	hash := common.HexToHash("0xbb")
	client.heads <- hash
	client.heads <- hash

	recvCtx, recvCancel := context.WithTimeout(context.Background(), time.Second)
	defer recvCancel()
	_, _, err := headerSub.Recv(recvCtx)
	require.NoError(t, err)

	// The second identical head must not produce a second header message;
	// confirm by timing out waiting for a nonexistent one.
	shortCtx, shortCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer shortCancel()
	_, _, err = headerSub.Recv(shortCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
