// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chainio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/backrun/types"
)

type fakeExExSource struct {
	notifs chan ExExNotification
}

func (f *fakeExExSource) Notifications(ctx context.Context) (<-chan ExExNotification, error) {
	return f.notifs, nil
}

type fakeMempoolSource struct {
	txs chan types.MempoolTx
}

func (f *fakeMempoolSource) PendingTransactions(ctx context.Context) (<-chan types.MempoolTx, error) {
	return f.txs, nil
}

func TestExExAdaptor_CommittedNotificationFansOutToAllFourFeeds(t *testing.T) {
	source := &fakeExExSource{notifs: make(chan ExExNotification, 4)}
	feed := NewFeed(16)
	adaptor := NewExExAdaptor("test", source, nil, feed)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = adaptor.runNotifications(ctx) }()

	headerSub := feed.Headers.Subscribe()
	blockSub := feed.Blocks.Subscribe()
	logsSub := feed.Logs.Subscribe()
	stateSub := feed.StateUpdates.Subscribe()

	hash := common.HexToHash("0xcc")
	source.notifs <- ExExNotification{
		Kind:   ExExChainCommitted,
		Header: types.BlockHeader{Hash: hash},
		Block:  types.BlockUpdate{Hash: hash},
		Logs:   types.BlockLogs{Hash: hash},
		State:  types.BlockStateUpdate{Hash: hash},
	}

	recvCtx, recvCancel := context.WithTimeout(context.Background(), time.Second)
	defer recvCancel()

	h, _, err := headerSub.Recv(recvCtx)
	require.NoError(t, err)
	require.Equal(t, hash, h.Hash)

	b, _, err := blockSub.Recv(recvCtx)
	require.NoError(t, err)
	require.Equal(t, hash, b.Hash)

	l, _, err := logsSub.Recv(recvCtx)
	require.NoError(t, err)
	require.Equal(t, hash, l.Hash)

	s, _, err := stateSub.Recv(recvCtx)
	require.NoError(t, err)
	require.Equal(t, hash, s.Hash)
}

func TestExExAdaptor_RevertedNotificationProducesNoFeedMessages(t *testing.T) {
	source := &fakeExExSource{notifs: make(chan ExExNotification, 4)}
	feed := NewFeed(16)
	adaptor := NewExExAdaptor("test", source, nil, feed)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = adaptor.runNotifications(ctx) }()

	headerSub := feed.Headers.Subscribe()

	hash := common.HexToHash("0xdd")
	source.notifs <- ExExNotification{Kind: ExExChainReverted, Header: types.BlockHeader{Hash: hash}}

	shortCtx, shortCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer shortCancel()
	_, _, err := headerSub.Recv(shortCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExExAdaptor_MempoolTapWrapsTransactions(t *testing.T) {
	source := &fakeExExSource{notifs: make(chan ExExNotification, 4)}
	mempool := &fakeMempoolSource{txs: make(chan types.MempoolTx, 4)}
	feed := NewFeed(16)
	adaptor := NewExExAdaptor("test", source, mempool, feed)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = adaptor.runMempool(ctx) }()

	mempoolSub := feed.Mempool.Subscribe()

	txHash := common.HexToHash("0xee")
	mempool.txs <- types.MempoolTx{Hash: txHash}

	recvCtx, recvCancel := context.WithTimeout(context.Background(), time.Second)
	defer recvCancel()
	update, _, err := mempoolSub.Recv(recvCtx)
	require.NoError(t, err)
	require.Equal(t, txHash, update.TxHash)
	require.Equal(t, "test", update.Source)
}
