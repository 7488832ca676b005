// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package encoder is the per-protocol ABI encoding layer (C9, §4.9): turns
// a resolved swap direction and amount into the calldata a pool's own
// swap entrypoint expects, and reports where in that calldata the amount
// word lives so the multicaller can patch it at run time.
package encoder

import (
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"

	"github.com/luxfi/geth/common"
)

// selector returns the first four bytes of keccak256(signature), the
// standard Solidity function selector.
func selector(signature string) [4]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	sum := h.Sum(nil)
	var out [4]byte
	copy(out[:], sum[:4])
	return out
}

// word32 left-pads v into a 32-byte ABI word.
func word32(v *uint256.Int) [32]byte {
	var out [32]byte
	if v != nil {
		b := v.Bytes32()
		out = b
	}
	return out
}

// addressWord left-pads an address into a 32-byte ABI word.
func addressWord(addr common.Address) [32]byte {
	var out [32]byte
	copy(out[12:], addr[:])
	return out
}

// uint64Word encodes a plain uint64 as a 32-byte ABI word.
func uint64Word(v uint64) [32]byte {
	return word32(new(uint256.Int).SetUint64(v))
}

// appendDynamicBytes appends the ABI tail encoding of a `bytes` argument
// (32-byte length, then the data right-padded to a 32-byte boundary) to
// buf, returning the extended slice.
func appendDynamicBytes(buf []byte, data []byte) []byte {
	buf = append(buf, uint64Word(uint64(len(data)))[:]...)
	buf = append(buf, data...)
	if pad := (32 - len(data)%32) % 32; pad > 0 {
		buf = append(buf, make([]byte, pad)...)
	}
	return buf
}
