// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package compose

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"

	"github.com/holiman/uint256"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	gethtypes "github.com/luxfi/geth/core/types"

	"github.com/luxfi/backrun/types"
)

// SignerAccount is one rotating operator EOA: its private key plus the
// nonce/balance bookkeeping account_nonce_balance.rs tracks per account.
type SignerAccount struct {
	mu      sync.Mutex
	key     *ecdsa.PrivateKey
	address common.Address
	nonce   uint64
	balance *uint256.Int
}

// NewSignerAccount wraps a raw private key; startingNonce is the
// account's current on-chain transaction count.
func NewSignerAccount(key *ecdsa.PrivateKey, startingNonce uint64) *SignerAccount {
	return &SignerAccount{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		nonce:   startingNonce,
		balance: uint256.NewInt(0),
	}
}

func (a *SignerAccount) Address() common.Address { return a.address }

// nextNonce returns this account's next nonce, incrementing it under the
// account's own lock (never the pool's), so concurrent signs of
// different accounts don't contend.
func (a *SignerAccount) nextNonce() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := a.nonce
	a.nonce++
	return n
}

// SetBalance updates the account's tracked ETH balance, as account
// monitoring (§4.11-adjacent bookkeeping) observes it on-chain.
func (a *SignerAccount) SetBalance(balance *uint256.Int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balance = balance
}

// SignerPool resolves a TxComposeData's signer: either the strategy's
// configured EOA, or a round-robin operator from the pool when Signer is
// the zero address (§4.10's "if None, a rotating operator from the
// signer pool").
type SignerPool struct {
	mu       sync.Mutex
	byAddr   map[common.Address]*SignerAccount
	rotation []*SignerAccount
	next     int
}

func NewSignerPool(accounts ...*SignerAccount) *SignerPool {
	p := &SignerPool{byAddr: make(map[common.Address]*SignerAccount)}
	for _, a := range accounts {
		p.byAddr[a.address] = a
		p.rotation = append(p.rotation, a)
	}
	return p
}

// resolve returns the account to sign with: preferred if set and known,
// else the next account in rotation order.
func (p *SignerPool) resolve(preferred common.Address) (*SignerAccount, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if preferred != (common.Address{}) {
		if a, ok := p.byAddr[preferred]; ok {
			return a, nil
		}
		return nil, fmt.Errorf("compose: signer %s not in pool", preferred)
	}
	if len(p.rotation) == 0 {
		return nil, fmt.Errorf("compose: signer pool empty")
	}
	a := p.rotation[p.next%len(p.rotation)]
	p.next++
	return a, nil
}

// Signer is C10 stage 2: resolves the account, signs an EIP-1559
// transaction for the backrun (and passes any stuffing transactions
// through as raw RLP, unsigned by us), and fills TxBundle/SignedRLPBundle.
type Signer struct {
	pool    *SignerPool
	chainID uint64
}

func NewSigner(pool *SignerPool, chainID uint64) *Signer {
	return &Signer{pool: pool, chainID: chainID}
}

// Sign populates data.Signer, TxBundle, and SignedRLPBundle in place and
// returns the updated value. stuffingRLP is the raw signed bytes of any
// transactions the backrun is riding behind, passed through unchanged
// ahead of our own signed backrun in bundle order.
func (s *Signer) Sign(data types.TxComposeData, gasTipCapWei, gasFeeCapWei uint64, gasLimit uint64, stuffingRLP [][]byte) (types.TxComposeData, error) {
	account, err := s.pool.resolve(data.Signer)
	if err != nil {
		return data, err
	}

	unsigned := types.UnsignedTx{
		ChainID:   s.chainID,
		Nonce:     account.nextNonce(),
		GasTipCap: uint256.NewInt(gasTipCapWei),
		GasFeeCap: uint256.NewInt(gasFeeCapWei),
		Gas:       gasLimit,
		To:        &data.To,
		Value:     data.Value,
		Data:      data.Calldata,
	}

	tx := gethtypes.NewTx(&gethtypes.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(unsigned.ChainID),
		Nonce:     unsigned.Nonce,
		GasTipCap: unsigned.GasTipCap.ToBig(),
		GasFeeCap: unsigned.GasFeeCap.ToBig(),
		Gas:       unsigned.Gas,
		To:        unsigned.To,
		Value:     unsigned.Value.ToBig(),
		Data:      unsigned.Data,
	})
	signer := gethtypes.LatestSignerForChainID(new(big.Int).SetUint64(s.chainID))
	signedTx, err := gethtypes.SignTx(tx, signer, account.key)
	if err != nil {
		return data, fmt.Errorf("compose: signing backrun: %w", err)
	}
	backrunRLP, err := signedTx.MarshalBinary()
	if err != nil {
		return data, fmt.Errorf("compose: encoding signed backrun: %w", err)
	}

	bundle := make([]types.RLPEntry, 0, len(stuffingRLP)+1)
	for _, raw := range stuffingRLP {
		bundle = append(bundle, types.RLPEntry{Kind: types.RLPEntryStuffing, RLP: raw})
	}
	bundle = append(bundle, types.RLPEntry{Kind: types.RLPEntryBackrun, RLP: backrunRLP})

	data.Signer = account.address
	data.TxBundle = []types.UnsignedTx{unsigned}
	data.SignedRLPBundle = bundle
	logger.Debug("compose: signed", "composeId", data.ComposeID, "signer", account.address, "nonce", unsigned.Nonce)
	return data, nil
}
