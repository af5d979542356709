package entitlement

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Quota is one address's allowance: how many items it may mint during the
// whitelist sale and how many of those it may claim for free.
type Quota struct {
	Whitelist uint64 `json:"whitelist"`
	FreeMint  uint64 `json:"freeMint"`
}

// Entry pairs an address with its quota.
type Entry struct {
	Address common.Address
	Quota
}

// LeafHash computes the tree leaf for one entitlement entry. The encoding is
// the tightly packed form keccak256(address || whitelist || freeMint) with
// both quotas widened to 32-byte big-endian words, so roots and proofs are
// interchangeable with tooling that hashes
// solidityKeccak256(['address','uint256','uint256'], ...).
func LeafHash(addr common.Address, whitelist, freeMint uint64) common.Hash {
	buf := make([]byte, 0, common.AddressLength+2*common.HashLength)
	buf = append(buf, addr.Bytes()...)
	buf = appendUint256(buf, whitelist)
	buf = appendUint256(buf, freeMint)
	return common.BytesToHash(crypto.Keccak256(buf))
}

// Leaf returns the leaf hash for the entry.
func (e Entry) Leaf() common.Hash {
	return LeafHash(e.Address, e.Whitelist, e.FreeMint)
}

func appendUint256(buf []byte, v uint64) []byte {
	var word [common.HashLength]byte
	word[24] = byte(v >> 56)
	word[25] = byte(v >> 48)
	word[26] = byte(v >> 40)
	word[27] = byte(v >> 32)
	word[28] = byte(v >> 24)
	word[29] = byte(v >> 16)
	word[30] = byte(v >> 8)
	word[31] = byte(v)
	return append(buf, word[:]...)
}
