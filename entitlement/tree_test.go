package entitlement

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func testEntries(n int) []Entry {
	entries := make([]Entry, n)
	for i := range entries {
		var addr common.Address
		addr[19] = byte(i + 1)
		entries[i] = Entry{
			Address: addr,
			Quota:   Quota{Whitelist: uint64(i % 5), FreeMint: uint64(i % 3)},
		}
	}
	return entries
}

func TestMintGate_Entitlement_LeafHash(t *testing.T) {
	t.Parallel()

	t.Run("matches packed keccak encoding", func(t *testing.T) {
		t.Parallel()

		addr := common.HexToAddress("0x00000000000000000000000000000000000000aB")
		packed := make([]byte, 0, 84)
		packed = append(packed, addr.Bytes()...)
		wl := make([]byte, 32)
		wl[31] = 7
		fm := make([]byte, 32)
		fm[30], fm[31] = 0x01, 0x02
		packed = append(packed, wl...)
		packed = append(packed, fm...)
		require.Len(t, packed, 84)

		want := common.BytesToHash(crypto.Keccak256(packed))
		require.Equal(t, want, LeafHash(addr, 7, 0x0102))
	})

	t.Run("distinct triples produce distinct leaves", func(t *testing.T) {
		t.Parallel()

		addr := common.HexToAddress("0x1111111111111111111111111111111111111111")
		base := LeafHash(addr, 2, 1)
		require.NotEqual(t, base, LeafHash(addr, 3, 1))
		require.NotEqual(t, base, LeafHash(addr, 2, 2))
		other := common.HexToAddress("0x2222222222222222222222222222222222222222")
		require.NotEqual(t, base, LeafHash(other, 2, 1))
	})
}

func TestMintGate_Entitlement_Tree_Build(t *testing.T) {
	t.Parallel()

	t.Run("rejects empty input", func(t *testing.T) {
		t.Parallel()

		_, err := NewTree(nil)
		require.ErrorIs(t, err, ErrNoEntries)
	})

	t.Run("rejects duplicate addresses", func(t *testing.T) {
		t.Parallel()

		entries := testEntries(3)
		entries[2].Address = entries[0].Address
		_, err := NewTree(entries)
		require.ErrorIs(t, err, ErrDuplicateAddress)
	})

	t.Run("single leaf tree has leaf as root", func(t *testing.T) {
		t.Parallel()

		entries := testEntries(1)
		tree, err := NewTree(entries)
		require.NoError(t, err)
		require.Equal(t, entries[0].Leaf(), tree.Root())

		proof, err := tree.ProofFor(entries[0])
		require.NoError(t, err)
		require.Empty(t, proof)
		require.True(t, Verify(tree.Root(), entries[0].Leaf(), proof))
	})

	t.Run("root is input order independent", func(t *testing.T) {
		t.Parallel()

		entries := testEntries(7)
		tree, err := NewTree(entries)
		require.NoError(t, err)

		shuffled := make([]Entry, len(entries))
		copy(shuffled, entries)
		rand.New(rand.NewSource(42)).Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		tree2, err := NewTree(shuffled)
		require.NoError(t, err)
		require.Equal(t, tree.Root(), tree2.Root())

		// Proofs minted from either build verify against the shared root.
		for _, e := range entries {
			proof, err := tree2.ProofFor(e)
			require.NoError(t, err)
			require.True(t, Verify(tree.Root(), e.Leaf(), proof))
		}
	})
}

func TestMintGate_Entitlement_Tree_Proofs(t *testing.T) {
	t.Parallel()

	// Cover odd and even leaf counts, including the unpaired-node promotion.
	for _, n := range []int{2, 3, 4, 5, 8, 13} {
		t.Run(fmt.Sprintf("round trip with %d leaves", n), func(t *testing.T) {
			t.Parallel()

			entries := testEntries(n)
			tree, err := NewTree(entries)
			require.NoError(t, err)

			for _, e := range entries {
				proof, err := tree.ProofFor(e)
				require.NoError(t, err)
				require.True(t, Verify(tree.Root(), e.Leaf(), proof),
					"proof must verify for %s", e.Address.Hex())
			}
		})
	}

	t.Run("tampered quota fails verification", func(t *testing.T) {
		t.Parallel()

		entries := testEntries(6)
		tree, err := NewTree(entries)
		require.NoError(t, err)

		e := entries[2]
		proof, err := tree.ProofFor(e)
		require.NoError(t, err)

		forged := LeafHash(e.Address, e.Whitelist+1, e.FreeMint)
		require.False(t, Verify(tree.Root(), forged, proof))
	})

	t.Run("unknown leaf has no proof", func(t *testing.T) {
		t.Parallel()

		tree, err := NewTree(testEntries(4))
		require.NoError(t, err)

		_, err = tree.Proof(LeafHash(common.HexToAddress("0xdead"), 1, 0))
		require.ErrorIs(t, err, ErrLeafNotFound)
	})

	t.Run("proof against superseded root fails", func(t *testing.T) {
		t.Parallel()

		entries := testEntries(5)
		tree, err := NewTree(entries)
		require.NoError(t, err)
		proof, err := tree.ProofFor(entries[0])
		require.NoError(t, err)

		// Rebuild with one quota changed: the old proof must die.
		entries[4].Whitelist++
		tree2, err := NewTree(entries)
		require.NoError(t, err)
		require.NotEqual(t, tree.Root(), tree2.Root())
		require.False(t, Verify(tree2.Root(), entries[0].Leaf(), proof))
	})
}
