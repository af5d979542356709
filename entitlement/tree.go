package entitlement

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrNoEntries is returned when building a tree from an empty dataset.
	ErrNoEntries = errors.New("entitlement: no entries")

	// ErrDuplicateAddress is returned when two entries share an address,
	// which would make the quotas for that address ambiguous.
	ErrDuplicateAddress = errors.New("entitlement: duplicate address")

	// ErrLeafNotFound is returned when requesting a proof for a leaf that
	// is not part of the tree.
	ErrLeafNotFound = errors.New("entitlement: leaf not in tree")
)

// Proof is the ordered sibling path from a leaf to the root. Because pairs
// are sorted before hashing, the path carries no left/right markers.
type Proof []common.Hash

// Tree is a merkle tree over a whitelist dataset. It is immutable once
// built; whitelist changes require a full rebuild and a new published root.
type Tree struct {
	levels [][]common.Hash
	index  map[common.Hash]int
}

// NewTree builds a tree over the given entries. The resulting root does not
// depend on the order of the input: leaves are sorted bytewise before the
// levels are built, and sibling pairs are sorted again before hashing. A
// level with an odd node count promotes the unpaired node to the next level
// unchanged.
func NewTree(entries []Entry) (*Tree, error) {
	if len(entries) == 0 {
		return nil, ErrNoEntries
	}

	seen := make(map[common.Address]struct{}, len(entries))
	leaves := make([]common.Hash, len(entries))
	for i, e := range entries {
		if _, ok := seen[e.Address]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAddress, e.Address.Hex())
		}
		seen[e.Address] = struct{}{}
		leaves[i] = e.Leaf()
	}
	sort.Slice(leaves, func(i, j int) bool {
		return bytes.Compare(leaves[i][:], leaves[j][:]) < 0
	})
	index := make(map[common.Hash]int, len(leaves))
	for i, leaf := range leaves {
		index[leaf] = i
	}

	levels := [][]common.Hash{leaves}
	for level := leaves; len(level) > 1; {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, hashPair(level[i], level[i+1]))
		}
		levels = append(levels, next)
		level = next
	}

	return &Tree{levels: levels, index: index}, nil
}

// Root returns the tree root, the only artifact that needs to be published.
func (t *Tree) Root() common.Hash {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// Len returns the number of leaves.
func (t *Tree) Len() int {
	return len(t.levels[0])
}

// Proof returns the sibling path for the given leaf hash.
func (t *Tree) Proof(leaf common.Hash) (Proof, error) {
	pos, ok := t.index[leaf]
	if !ok {
		return nil, ErrLeafNotFound
	}

	var proof Proof
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := pos ^ 1
		if sibling < len(level) {
			proof = append(proof, level[sibling])
		}
		pos /= 2
	}
	return proof, nil
}

// ProofFor is a convenience wrapper that proves an entry directly.
func (t *Tree) ProofFor(e Entry) (Proof, error) {
	return t.Proof(e.Leaf())
}

// Verify folds the proof into the leaf and reports whether the result equals
// the root. A proof minted against a superseded root fails here.
func Verify(root, leaf common.Hash, proof Proof) bool {
	acc := leaf
	for _, sibling := range proof {
		acc = hashPair(acc, sibling)
	}
	return acc == root
}

func hashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return common.BytesToHash(crypto.Keccak256(a[:], b[:]))
}
