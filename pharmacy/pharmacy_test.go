package pharmacy

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/spacesquad/mintgate/distributor"
	"github.com/spacesquad/mintgate/ledger"
	mgtesting "github.com/spacesquad/mintgate/utils/pkg/testing"
)

var (
	buyer     = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	holder    = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	escrow    = common.HexToAddress("0x00000000000000000000000000000000000000e5")
	collector = common.HexToAddress("0x00000000000000000000000000000000000000cc")
)

type fixture struct {
	clock      *clockwork.FakeClock
	collection *ledger.TokenLedger
	pills      *ledger.TokenLedger
	pay        *ledger.PayLedger
	pharmacy   *Pharmacy
	deadline   time.Time
}

type fixtureConfig struct {
	supplyCap uint64
	maxPerTx  uint64
	price     uint64
}

func newFixture(t *testing.T, fc fixtureConfig) *fixture {
	t.Helper()

	if fc.supplyCap == 0 {
		fc.supplyCap = 25
	}
	if fc.maxPerTx == 0 {
		fc.maxPerTx = 20
	}
	if fc.price == 0 {
		fc.price = 10
	}

	base := time.Date(2027, 3, 1, 12, 0, 0, 0, time.UTC)
	f := &fixture{
		clock:      clockwork.NewFakeClockAt(base),
		collection: ledger.NewTokenLedger(nil, time.Time{}),
		pills:      ledger.NewTokenLedger(nil, time.Time{}),
		pay:        ledger.NewPayLedger(),
		deadline:   base.Add(30 * 24 * time.Hour),
	}

	var err error
	f.pharmacy, err = New(Config{
		Logger:        mgtesting.NewLogger(),
		Clock:         f.clock,
		Payments:      f.pay,
		Collection:    f.collection,
		Pills:         f.pills,
		Account:       escrow,
		Collector:     collector,
		PillPrice:     uint256.NewInt(fc.price),
		SupplyCap:     fc.supplyCap,
		MaxPillsPerTx: fc.maxPerTx,
		ClaimDeadline: f.deadline,
	})
	require.NoError(t, err)
	return f
}

// givePairs mints 2*n collection tokens so addr holds n pairs.
func (f *fixture) givePairs(t *testing.T, addr common.Address, n uint64) {
	t.Helper()
	for i := uint64(0); i < 2*n; i++ {
		_, err := f.collection.Mint(addr)
		require.NoError(t, err)
	}
}

func TestMintGate_Pharmacy_Purchase(t *testing.T) {
	t.Parallel()

	t.Run("sells pills and forwards proceeds", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, fixtureConfig{})
		f.pay.Credit(buyer, uint256.NewInt(100))

		rec, err := f.pharmacy.PurchasePills(t.Context(), buyer, 5, uint256.NewInt(50))
		require.NoError(t, err)
		require.Len(t, rec.TokenIDs, 5)
		require.True(t, rec.Refund.IsZero())
		require.Equal(t, uint64(5), f.pills.BalanceOf(buyer))
		require.Equal(t, uint256.NewInt(50), f.pay.Balance(collector))
		require.True(t, f.pay.Balance(escrow).IsZero())
	})

	t.Run("refunds overpayment", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, fixtureConfig{})
		f.pay.Credit(buyer, uint256.NewInt(100))

		rec, err := f.pharmacy.PurchasePills(t.Context(), buyer, 3, uint256.NewInt(99))
		require.NoError(t, err)
		require.Equal(t, uint256.NewInt(30), rec.Paid)
		require.Equal(t, uint256.NewInt(69), rec.Refund)
		require.Equal(t, uint256.NewInt(70), f.pay.Balance(buyer))
	})

	t.Run("rejects underpayment", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, fixtureConfig{})
		f.pay.Credit(buyer, uint256.NewInt(100))

		_, err := f.pharmacy.PurchasePills(t.Context(), buyer, 3, uint256.NewInt(29))
		require.ErrorIs(t, err, distributor.ErrInsufficientPayment)
		require.Zero(t, f.pills.TotalSupply())
	})

	t.Run("enforces per-tx maximum", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, fixtureConfig{maxPerTx: 20})
		f.pay.Credit(buyer, uint256.NewInt(1000))

		_, err := f.pharmacy.PurchasePills(t.Context(), buyer, 21, uint256.NewInt(210))
		require.ErrorIs(t, err, ErrMaxPerTx)
	})

	t.Run("mints exactly to supply cap", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, fixtureConfig{supplyCap: 25, maxPerTx: 20})
		f.pay.Credit(buyer, uint256.NewInt(1000))

		_, err := f.pharmacy.PurchasePills(t.Context(), buyer, 20, uint256.NewInt(200))
		require.NoError(t, err)
		_, err = f.pharmacy.PurchasePills(t.Context(), buyer, 5, uint256.NewInt(50))
		require.NoError(t, err)
		require.Equal(t, uint64(25), f.pills.BalanceOf(buyer))

		_, err = f.pharmacy.PurchasePills(t.Context(), buyer, 1, uint256.NewInt(10))
		require.ErrorIs(t, err, distributor.ErrSoldOut)
	})

	t.Run("claim reserve limits purchases until deadline", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, fixtureConfig{supplyCap: 25, maxPerTx: 20})
		f.pay.Credit(buyer, uint256.NewInt(1000))
		f.givePairs(t, holder, 2)

		// Pause/unpause snapshots 2 pairs into the reserve.
		require.NoError(t, f.pharmacy.TogglePause(t.Context(), distributor.CapPauser))
		require.NoError(t, f.pharmacy.TogglePause(t.Context(), distributor.CapPauser))
		require.Equal(t, uint64(2), f.pharmacy.ClaimReserve())

		_, err := f.pharmacy.PurchasePills(t.Context(), buyer, 20, uint256.NewInt(200))
		require.NoError(t, err)
		_, err = f.pharmacy.PurchasePills(t.Context(), buyer, 4, uint256.NewInt(40))
		require.ErrorIs(t, err, distributor.ErrReserveProtected)
		_, err = f.pharmacy.PurchasePills(t.Context(), buyer, 3, uint256.NewInt(30))
		require.NoError(t, err)

		// After the deadline the reserve opens up.
		f.clock.Advance(f.deadline.Sub(f.clock.Now()))
		_, err = f.pharmacy.PurchasePills(t.Context(), buyer, 2, uint256.NewInt(20))
		require.NoError(t, err)
		require.Equal(t, uint64(25), f.pills.TotalSupply())
	})
}

func TestMintGate_Pharmacy_Claim(t *testing.T) {
	t.Parallel()

	t.Run("one pill per pair held", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, fixtureConfig{})
		f.givePairs(t, holder, 2)

		rec, err := f.pharmacy.ClaimFreePills(t.Context(), holder)
		require.NoError(t, err)
		require.Len(t, rec.TokenIDs, 2)
		require.True(t, rec.Paid.IsZero())
		require.Equal(t, uint64(2), f.pills.BalanceOf(holder))
		require.True(t, f.pharmacy.HasClaimed(holder))
	})

	t.Run("odd token does not count", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, fixtureConfig{})
		f.givePairs(t, holder, 1)
		_, err := f.collection.Mint(holder)
		require.NoError(t, err)

		rec, err := f.pharmacy.ClaimFreePills(t.Context(), holder)
		require.NoError(t, err)
		require.Len(t, rec.TokenIDs, 1)
	})

	t.Run("claim is one-shot", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, fixtureConfig{})
		f.givePairs(t, holder, 1)

		_, err := f.pharmacy.ClaimFreePills(t.Context(), holder)
		require.NoError(t, err)
		_, err = f.pharmacy.ClaimFreePills(t.Context(), holder)
		require.ErrorIs(t, err, distributor.ErrAlreadyClaimed)
	})

	t.Run("no pairs means not eligible", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, fixtureConfig{})
		_, err := f.pharmacy.ClaimFreePills(t.Context(), holder)
		require.ErrorIs(t, err, ErrNotEligible)
	})

	t.Run("rejected after deadline", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, fixtureConfig{})
		f.givePairs(t, holder, 1)
		f.clock.Advance(f.deadline.Sub(f.clock.Now()))

		_, err := f.pharmacy.ClaimFreePills(t.Context(), holder)
		require.ErrorIs(t, err, distributor.ErrClaimDeadlinePassed)
	})

	t.Run("bounded by supply cap", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, fixtureConfig{supplyCap: 25, maxPerTx: 20})
		f.pay.Credit(buyer, uint256.NewInt(1000))
		f.givePairs(t, holder, 2)

		_, err := f.pharmacy.PurchasePills(t.Context(), buyer, 20, uint256.NewInt(200))
		require.NoError(t, err)
		_, err = f.pharmacy.PurchasePills(t.Context(), buyer, 4, uint256.NewInt(40))
		require.NoError(t, err)

		_, err = f.pharmacy.ClaimFreePills(t.Context(), holder)
		require.ErrorIs(t, err, distributor.ErrSoldOut)
	})

	t.Run("claims consume the reserve", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, fixtureConfig{})
		f.givePairs(t, holder, 2)
		require.NoError(t, f.pharmacy.TogglePause(t.Context(), distributor.CapPauser))
		require.NoError(t, f.pharmacy.TogglePause(t.Context(), distributor.CapPauser))
		require.Equal(t, uint64(2), f.pharmacy.ClaimReserve())

		_, err := f.pharmacy.ClaimFreePills(t.Context(), holder)
		require.NoError(t, err)
		require.Zero(t, f.pharmacy.ClaimReserve())
	})
}

func TestMintGate_Pharmacy_Admin(t *testing.T) {
	t.Parallel()

	t.Run("pause blocks purchase and claim", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, fixtureConfig{})
		f.pay.Credit(buyer, uint256.NewInt(100))
		f.givePairs(t, holder, 1)

		require.NoError(t, f.pharmacy.TogglePause(t.Context(), distributor.CapPauser))
		require.True(t, f.pharmacy.Paused())

		_, err := f.pharmacy.PurchasePills(t.Context(), buyer, 1, uint256.NewInt(10))
		require.ErrorIs(t, err, distributor.ErrPaused)
		_, err = f.pharmacy.ClaimFreePills(t.Context(), holder)
		require.ErrorIs(t, err, distributor.ErrPaused)
	})

	t.Run("unpause resnapshots the claim reserve", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, fixtureConfig{})
		f.givePairs(t, holder, 2)
		require.Zero(t, f.pharmacy.ClaimReserve())

		require.NoError(t, f.pharmacy.TogglePause(t.Context(), distributor.CapPauser))
		require.NoError(t, f.pharmacy.TogglePause(t.Context(), distributor.CapPauser))
		require.Equal(t, uint64(2), f.pharmacy.ClaimReserve())
	})

	t.Run("price adjustment", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, fixtureConfig{})
		f.pay.Credit(buyer, uint256.NewInt(100))

		require.ErrorIs(t, f.pharmacy.AdjustPrice(t.Context(), distributor.CapIssuer, uint256.NewInt(0)), distributor.ErrInvalidPrice)
		require.NoError(t, f.pharmacy.AdjustPrice(t.Context(), distributor.CapIssuer, uint256.NewInt(25)))
		require.Equal(t, uint256.NewInt(25), f.pharmacy.Price())

		_, err := f.pharmacy.PurchasePills(t.Context(), buyer, 1, uint256.NewInt(10))
		require.ErrorIs(t, err, distributor.ErrInsufficientPayment)
	})

	t.Run("claim deadline update", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, fixtureConfig{})
		f.givePairs(t, holder, 1)

		require.NoError(t, f.pharmacy.SetClaimDeadline(t.Context(), distributor.CapAdmin, f.clock.Now()))
		_, err := f.pharmacy.ClaimFreePills(t.Context(), holder)
		require.ErrorIs(t, err, distributor.ErrClaimDeadlinePassed)
	})

	t.Run("capabilities are enforced", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, fixtureConfig{})

		require.ErrorIs(t, f.pharmacy.TogglePause(t.Context(), distributor.CapAdmin), distributor.ErrUnauthorized)
		require.ErrorIs(t, f.pharmacy.SetClaimDeadline(t.Context(), distributor.CapPauser, time.Now()), distributor.ErrUnauthorized)
		require.ErrorIs(t, f.pharmacy.AdjustPrice(t.Context(), distributor.CapAdmin, uint256.NewInt(1)), distributor.ErrUnauthorized)
	})
}
