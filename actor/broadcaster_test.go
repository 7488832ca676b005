// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package actor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBroadcaster_NewSubscriberSeesOnlyFutureMessages(t *testing.T) {
	b := NewBroadcaster[int](8)

	_, err := b.Send(1)
	require.NoError(t, err)

	sub := b.Subscribe()

	_, err = b.Send(2)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	v, missed, err := sub.Recv(ctx)
	require.NoError(t, err)
	require.Zero(t, missed)
	require.Equal(t, 2, v)
}

func TestBroadcaster_LaggedSubscriberReportsMissCountThenResumesInOrder(t *testing.T) {
	b := NewBroadcaster[int](4)
	sub := b.Subscribe()

	for i := 1; i <= 10; i++ {
		_, err := b.Send(i)
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, missed, err := sub.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, 6, missed)

	for _, want := range []int{7, 8, 9, 10} {
		v, missed, err := sub.Recv(ctx)
		require.NoError(t, err)
		require.Zero(t, missed)
		require.Equal(t, want, v)
	}
}

func TestBroadcaster_DeliversInSendOrder(t *testing.T) {
	b := NewBroadcaster[string](16)
	sub := b.Subscribe()

	for _, v := range []string{"a", "b", "c"} {
		_, err := b.Send(v)
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for _, want := range []string{"a", "b", "c"} {
		v, missed, err := sub.Recv(ctx)
		require.NoError(t, err)
		require.Zero(t, missed)
		require.Equal(t, want, v)
	}
}

func TestBroadcaster_RecvBlocksUntilSendOrCancel(t *testing.T) {
	b := NewBroadcaster[int](4)
	sub := b.Subscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err := sub.Recv(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBroadcaster_CloseUnblocksReceiversAfterDrain(t *testing.T) {
	b := NewBroadcaster[int](4)
	sub := b.Subscribe()

	_, err := b.Send(42)
	require.NoError(t, err)
	b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	v, missed, err := sub.Recv(ctx)
	require.NoError(t, err)
	require.Zero(t, missed)
	require.Equal(t, 42, v)

	_, _, err = sub.Recv(ctx)
	require.ErrorIs(t, err, ErrBroadcasterClosed)

	_, err = b.Send(43)
	require.ErrorIs(t, err, ErrBroadcasterClosed)
}
