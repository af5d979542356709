package ledger

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0xa11ce00000000000000000000000000000000001")
	bob   = common.HexToAddress("0xb0b0000000000000000000000000000000000002")
)

func TestMintGate_Ledger_Token_MintAndTransfer(t *testing.T) {
	t.Parallel()

	l := NewTokenLedger(clockwork.NewFakeClock(), time.Time{})

	id1, err := l.Mint(alice)
	require.NoError(t, err)
	id2, err := l.Mint(alice)
	require.NoError(t, err)
	require.Equal(t, uint64(1), id1)
	require.Equal(t, uint64(2), id2)
	require.Equal(t, uint64(2), l.BalanceOf(alice))
	require.Equal(t, uint64(2), l.TotalSupply())

	owner, err := l.OwnerOf(id1)
	require.NoError(t, err)
	require.Equal(t, alice, owner)

	require.NoError(t, l.Transfer(id1, alice, bob))
	require.Equal(t, uint64(1), l.BalanceOf(alice))
	require.Equal(t, uint64(1), l.BalanceOf(bob))

	require.ErrorIs(t, l.Transfer(id1, alice, bob), ErrNotOwner)
	require.ErrorIs(t, l.Transfer(99, alice, bob), ErrUnknownToken)
}

func TestMintGate_Ledger_Token_Pairs(t *testing.T) {
	t.Parallel()

	t.Run("one pair per two tokens", func(t *testing.T) {
		t.Parallel()

		l := NewTokenLedger(clockwork.NewFakeClock(), time.Time{})
		_, _ = l.Mint(alice)
		require.Equal(t, uint64(0), l.PairsHeld(alice))
		_, _ = l.Mint(alice)
		require.Equal(t, uint64(1), l.PairsHeld(alice))

		// Pairs stack.
		_, _ = l.Mint(alice)
		_, _ = l.Mint(alice)
		require.Equal(t, uint64(2), l.PairsHeld(alice))
		require.Equal(t, uint64(2), l.TotalPairs())
	})

	t.Run("pairs follow transfers", func(t *testing.T) {
		t.Parallel()

		l := NewTokenLedger(clockwork.NewFakeClock(), time.Time{})
		id, err := l.Mint(alice)
		require.NoError(t, err)
		_, _ = l.Mint(alice)
		require.Equal(t, uint64(1), l.PairsHeld(alice))

		require.NoError(t, l.Transfer(id, alice, bob))
		require.Equal(t, uint64(0), l.PairsHeld(alice))
		require.Equal(t, uint64(0), l.PairsHeld(bob))
		require.Equal(t, uint64(0), l.TotalPairs())
	})

	t.Run("pairs freeze after qualify deadline", func(t *testing.T) {
		t.Parallel()

		clock := clockwork.NewFakeClock()
		l := NewTokenLedger(clock, clock.Now().Add(time.Hour))
		_, _ = l.Mint(alice)
		_, _ = l.Mint(alice)
		require.Equal(t, uint64(1), l.PairsHeld(alice))

		clock.Advance(2 * time.Hour)
		_, _ = l.Mint(alice)
		_, _ = l.Mint(alice)
		require.Equal(t, uint64(1), l.PairsHeld(alice), "late mints must not add pairs")
		require.Equal(t, uint64(1), l.TotalPairs())
	})
}

func TestMintGate_Ledger_Pay(t *testing.T) {
	t.Parallel()

	l := NewPayLedger()
	l.Credit(alice, uint256.NewInt(100))
	require.Equal(t, uint256.NewInt(100), l.Balance(alice))

	require.NoError(t, l.Transfer(alice, bob, uint256.NewInt(30)))
	require.Equal(t, uint256.NewInt(70), l.Balance(alice))
	require.Equal(t, uint256.NewInt(30), l.Balance(bob))

	require.ErrorIs(t, l.Transfer(alice, bob, uint256.NewInt(71)), ErrInsufficientFunds)
	require.Equal(t, uint256.NewInt(70), l.Balance(alice), "failed transfer must not move funds")

	// Zero transfers are a no-op even from empty accounts.
	require.NoError(t, l.Transfer(common.Address{}, bob, uint256.NewInt(0)))
}
