// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package compose

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/luxfi/crypto"
	"github.com/luxfi/ids"
)

// RelaySigner signs the Flashbots-style "X-Flashbots-Signature" header:
// <address>:0x<sig>, sig = sign(keccak256(body)), over the operator key
// identifying this searcher to the relay (distinct from the backrun's
// own transaction signer).
type RelaySigner struct {
	key     *ecdsa.PrivateKey
	address string
}

func NewRelaySigner(key *ecdsa.PrivateKey) *RelaySigner {
	return &RelaySigner{key: key, address: crypto.PubkeyToAddress(key.PublicKey).Hex()}
}

func (s *RelaySigner) headerValue(body []byte) (string, error) {
	hash := crypto.Keccak256Hash(body)
	sig, err := crypto.Sign(hash.Bytes(), s.key)
	if err != nil {
		return "", fmt.Errorf("compose: signing relay header: %w", err)
	}
	return fmt.Sprintf("%s:0x%s", s.address, hex.EncodeToString(sig)), nil
}

// bundleRequest is the exact JSON-RPC 2.0 body a relay expects. Built by
// hand rather than through utils/rpc.SendJSONRequest (which generates a
// random request id on every call): the relay signature is computed over
// this struct's literal serialised bytes, so the same bytes that get
// signed must be the same bytes that go over the wire, not a
// freshly-re-encoded copy with a different id.
type bundleRequest struct {
	JSONRPC string             `json:"jsonrpc"`
	ID      int                `json:"id"`
	Method  string             `json:"method"`
	Params  []sendBundleParams `json:"params"`
}

// sendBundleParams is the params[0] object of an eth_sendBundle call.
type sendBundleParams struct {
	Txs         []string `json:"txs"`
	BlockNumber string   `json:"blockNumber"`
}

type bundleResponse struct {
	Result struct {
		BundleHash string `json:"bundleHash"`
	} `json:"result"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Relay is one Flashbots-style endpoint the Broadcaster can submit a
// bundle to.
type Relay struct {
	Name string
	URL  *url.URL
}

// PublicSubmitter is the public-mempool dispatch path: a direct
// eth_sendRawTransaction against the node, for origins that don't need
// relay-level bundling.
type PublicSubmitter interface {
	SendRawTransaction(ctx context.Context, rlp []byte) error
}

const originPublicMempool = "public"

// TxBroadcastInput is the subset of a signed TxComposeData the
// broadcaster needs; kept separate from types.TxComposeData so this
// package doesn't need every compose field to dispatch one.
type TxBroadcastInput struct {
	ComposeID       uint64
	NextBlockNumber uint64
	Origin          string
	SignedRLPBundle [][]byte
}

// Broadcaster is C10 stage 3: dispatches a signed TxComposeData per its
// Origin, either to the first relay of relays that accepts the bundle or
// via the public mempool.
type Broadcaster struct {
	signer    *RelaySigner
	relays    []Relay
	public    PublicSubmitter
	client    *http.Client
	headBlock atomic.Uint64
}

func NewBroadcaster(signer *RelaySigner, relays []Relay, public PublicSubmitter) *Broadcaster {
	return &Broadcaster{signer: signer, relays: relays, public: public, client: http.DefaultClient}
}

// SetHead records the chain's current head block, so Broadcast can apply
// §4.10's idempotence rule without a caller threading it through.
func (b *Broadcaster) SetHead(head uint64) { b.headBlock.Store(head) }

// Broadcast dispatches data per its Origin. A tx whose NextBlockNumber is
// at or behind the current head is discarded rather than sent, per
// §4.10's idempotence rule.
func (b *Broadcaster) Broadcast(ctx context.Context, data TxBroadcastInput) error {
	if data.NextBlockNumber <= b.headBlock.Load() {
		logger.Debug("compose: discarding stale broadcast", "composeId", data.ComposeID, "nextBlock", data.NextBlockNumber)
		return nil
	}
	if data.Origin == originPublicMempool {
		return b.broadcastPublic(ctx, data)
	}
	return b.broadcastBundle(ctx, data)
}

func (b *Broadcaster) broadcastPublic(ctx context.Context, data TxBroadcastInput) error {
	for _, raw := range data.SignedRLPBundle {
		if err := b.public.SendRawTransaction(ctx, raw); err != nil {
			return fmt.Errorf("compose: public submit: %w", err)
		}
	}
	return nil
}

// broadcastBundle posts the bundle to every configured relay in order,
// surfacing the first success and retrying the next relay on failure
// (§4.10: "retrying up to N relays, surfacing first success").
func (b *Broadcaster) broadcastBundle(ctx context.Context, data TxBroadcastInput) error {
	if len(b.relays) == 0 {
		return fmt.Errorf("compose: no relays configured")
	}
	txs := make([]string, len(data.SignedRLPBundle))
	for i, raw := range data.SignedRLPBundle {
		txs[i] = "0x" + hex.EncodeToString(raw)
	}
	req := bundleRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "eth_sendBundle",
		Params:  []sendBundleParams{{Txs: txs, BlockNumber: fmt.Sprintf("0x%x", data.NextBlockNumber)}},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("compose: encoding bundle request: %w", err)
	}
	sig, err := b.signer.headerValue(body)
	if err != nil {
		return err
	}

	var lastErr error
	for _, relay := range b.relays {
		hash, err := b.postBundle(ctx, relay, body, sig)
		if err == nil {
			logger.Info("compose: bundle accepted", "composeId", data.ComposeID, "relay", relay.Name, "bundleHash", hash.String())
			return nil
		}
		logger.Warn("compose: relay rejected bundle", "relay", relay.Name, "err", err)
		lastErr = err
	}
	return fmt.Errorf("compose: all relays failed: %w", lastErr)
}

func (b *Broadcaster) postBundle(ctx context.Context, relay Relay, body []byte, sigHeader string) (ids.ID, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, relay.URL.String(), bytes.NewReader(body))
	if err != nil {
		return ids.ID{}, fmt.Errorf("compose: building relay request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Flashbots-Signature", sigHeader)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return ids.ID{}, fmt.Errorf("compose: posting to relay %s: %w", relay.Name, err)
	}
	defer resp.Body.Close()

	var decoded bundleResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return ids.ID{}, fmt.Errorf("compose: decoding relay response: %w", err)
	}
	if decoded.Error != nil {
		return ids.ID{}, fmt.Errorf("compose: relay %s: %s", relay.Name, decoded.Error.Message)
	}
	return parseBundleHash(decoded.Result.BundleHash)
}

func parseBundleHash(hexHash string) (ids.ID, error) {
	raw := hexHash
	if len(raw) >= 2 && raw[0] == '0' && (raw[1] == 'x' || raw[1] == 'X') {
		raw = raw[2:]
	}
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return ids.ID{}, fmt.Errorf("compose: malformed bundle hash %q: %w", hexHash, err)
	}
	var id ids.ID
	copy(id[:], decoded)
	return id, nil
}
