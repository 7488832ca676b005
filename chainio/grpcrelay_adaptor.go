// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chainio

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/backrun/actor"
	"github.com/luxfi/backrun/types"
)

// Wire field numbers for the gRPC ExEx relay's ExExNotification envelope
// (§6): a bidirectional stream of these plus a parallel mempool stream.
// The relay's generated client stubs live outside this module (the
// .proto lives with the execution client); GRPCRelayAdaptor decodes the
// wire bytes directly with protowire so the core has no build-time
// dependency on a specific generated package.
const (
	fieldNotificationKind   = 1
	fieldNotificationHeader = 2
	fieldNotificationState  = 3

	fieldHeaderHash       = 1
	fieldHeaderParentHash = 2
	fieldHeaderNumber     = 3
	fieldHeaderTimestamp  = 4
	fieldHeaderBaseFee    = 5

	fieldStateEntryAddress = 1
	fieldStateEntrySlot    = 2
	fieldStateEntryValue   = 3
)

// GRPCStream abstracts a grpc.ClientStream's Recv(): each call returns one
// framed ExExNotification message, or an error once the stream ends.
type GRPCStream interface {
	Recv(ctx context.Context) ([]byte, error)
}

// GRPCRelayAdaptor decodes a protobuf stream of ExExNotification-shaped
// messages into the internal types and republishes them onto the shared
// Feed, guaranteeing the same idempotence contract as the other two
// adaptors (§4.2).
type GRPCRelayAdaptor struct {
	name   string
	stream GRPCStream
	feed   *Feed
	dedup  *hashDedup
}

// NewGRPCRelayAdaptor builds an adaptor consuming stream and publishing
// into feed.
func NewGRPCRelayAdaptor(name string, stream GRPCStream, feed *Feed) *GRPCRelayAdaptor {
	return &GRPCRelayAdaptor{
		name:   name,
		stream: stream,
		feed:   feed,
		dedup:  newHashDedup(0, defaultDedupWindow),
	}
}

func (a *GRPCRelayAdaptor) Name() string { return a.name }

func (a *GRPCRelayAdaptor) Start(ctx context.Context) ([]actor.TaskFunc, error) {
	return []actor.TaskFunc{a.run}, nil
}

func (a *GRPCRelayAdaptor) run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		raw, err := a.stream.Recv(ctx)
		if err != nil {
			return fmt.Errorf("grpc relay adaptor %s: recv: %w", a.name, err)
		}
		header, state, err := decodeNotification(raw)
		if err != nil {
			logger.Warn("grpc relay adaptor: dropping malformed notification", "adaptor", a.name, "err", err)
			continue
		}
		if a.dedup.Seen(header.Hash) {
			continue
		}
		if _, err := a.feed.Headers.Send(header); err != nil {
			return err
		}
		if _, err := a.feed.StateUpdates.Send(types.BlockStateUpdate{Hash: header.Hash, State: state}); err != nil {
			return err
		}
	}
}

func decodeNotification(raw []byte) (types.BlockHeader, types.GethStateUpdate, error) {
	var header types.BlockHeader
	state := make(types.GethStateUpdate)

	for len(raw) > 0 {
		num, typ, n := protowire.ConsumeTag(raw)
		if n < 0 {
			return header, nil, protowire.ParseError(n)
		}
		raw = raw[n:]

		switch num {
		case fieldNotificationHeader:
			if typ != protowire.BytesType {
				return header, nil, fmt.Errorf("chainio: header field wrong wire type %d", typ)
			}
			msg, n := protowire.ConsumeBytes(raw)
			if n < 0 {
				return header, nil, protowire.ParseError(n)
			}
			raw = raw[n:]
			h, err := decodeHeader(msg)
			if err != nil {
				return header, nil, err
			}
			header = h
		case fieldNotificationState:
			if typ != protowire.BytesType {
				return header, nil, fmt.Errorf("chainio: state entry field wrong wire type %d", typ)
			}
			msg, n := protowire.ConsumeBytes(raw)
			if n < 0 {
				return header, nil, protowire.ParseError(n)
			}
			raw = raw[n:]
			addr, slot, value, err := decodeStateEntry(msg)
			if err != nil {
				return header, nil, err
			}
			entry, ok := state[addr]
			if !ok {
				entry = &types.AccountUpdate{Storage: types.StorageDiff{}}
				state[addr] = entry
			}
			entry.Storage[slot] = value
		case fieldNotificationKind:
			_, n := protowire.ConsumeVarint(raw)
			if n < 0 {
				return header, nil, protowire.ParseError(n)
			}
			raw = raw[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, raw)
			if n < 0 {
				return header, nil, protowire.ParseError(n)
			}
			raw = raw[n:]
		}
	}
	return header, state, nil
}

func decodeHeader(raw []byte) (types.BlockHeader, error) {
	var h types.BlockHeader
	for len(raw) > 0 {
		num, typ, n := protowire.ConsumeTag(raw)
		if n < 0 {
			return h, protowire.ParseError(n)
		}
		raw = raw[n:]

		switch num {
		case fieldHeaderHash:
			b, n := protowire.ConsumeBytes(raw)
			if n < 0 {
				return h, protowire.ParseError(n)
			}
			h.Hash = common.BytesToHash(b)
			raw = raw[n:]
		case fieldHeaderParentHash:
			b, n := protowire.ConsumeBytes(raw)
			if n < 0 {
				return h, protowire.ParseError(n)
			}
			h.ParentHash = common.BytesToHash(b)
			raw = raw[n:]
		case fieldHeaderNumber:
			v, n := protowire.ConsumeVarint(raw)
			if n < 0 {
				return h, protowire.ParseError(n)
			}
			h.Number = v
			raw = raw[n:]
		case fieldHeaderTimestamp:
			v, n := protowire.ConsumeVarint(raw)
			if n < 0 {
				return h, protowire.ParseError(n)
			}
			h.Timestamp = v
			raw = raw[n:]
		case fieldHeaderBaseFee:
			_, n := protowire.ConsumeVarint(raw)
			if n < 0 {
				return h, protowire.ParseError(n)
			}
			raw = raw[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, raw)
			if n < 0 {
				return h, protowire.ParseError(n)
			}
			raw = raw[n:]
		}
	}
	return h, nil
}

func decodeStateEntry(raw []byte) (common.Address, common.Hash, common.Hash, error) {
	var addr common.Address
	var slot, value common.Hash
	for len(raw) > 0 {
		num, typ, n := protowire.ConsumeTag(raw)
		if n < 0 {
			return addr, slot, value, protowire.ParseError(n)
		}
		raw = raw[n:]

		switch num {
		case fieldStateEntryAddress:
			b, n := protowire.ConsumeBytes(raw)
			if n < 0 {
				return addr, slot, value, protowire.ParseError(n)
			}
			addr = common.BytesToAddress(b)
			raw = raw[n:]
		case fieldStateEntrySlot:
			b, n := protowire.ConsumeBytes(raw)
			if n < 0 {
				return addr, slot, value, protowire.ParseError(n)
			}
			slot = common.BytesToHash(b)
			raw = raw[n:]
		case fieldStateEntryValue:
			b, n := protowire.ConsumeBytes(raw)
			if n < 0 {
				return addr, slot, value, protowire.ParseError(n)
			}
			value = common.BytesToHash(b)
			raw = raw[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, raw)
			if n < 0 {
				return addr, slot, value, protowire.ParseError(n)
			}
			raw = raw[n:]
		}
	}
	return addr, slot, value, nil
}
