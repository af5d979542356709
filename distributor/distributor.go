package distributor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jonboulle/clockwork"

	"github.com/spacesquad/mintgate/entitlement"
)

// freeMintClaimWindow is how long after the public release date free-mint
// claims stay open and the free-mint reserve is held back from public buyers.
const freeMintClaimWindow = 31 * 24 * time.Hour

// TokenMinter is the raw issuance primitive of the collection ledger. The
// distributor owns all supply accounting; Mint itself never enforces caps.
type TokenMinter interface {
	Mint(recipient common.Address) (uint64, error)
}

// Payments moves value between accounts. The distributor never retains
// funds: everything it collects is forwarded to the configured collector
// account within the same call.
type Payments interface {
	Transfer(from, to common.Address, amount *uint256.Int) error
}

// Config configures a Distributor instance.
type Config struct {
	Logger   *slog.Logger
	Clock    clockwork.Clock
	Store    Store
	Tokens   TokenMinter
	Payments Payments

	// Account is the distributor's own payment account, used as escrow for
	// the capture/refund/forward sequence inside a mint call.
	Account common.Address

	CollectionSize   uint64
	MaxIssuancePerTx uint64
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.Tokens == nil {
		return errors.New("token minter is required")
	}
	if cfg.Payments == nil {
		return errors.New("payments ledger is required")
	}
	if cfg.CollectionSize == 0 {
		return errors.New("collection size must be greater than 0")
	}
	if cfg.MaxIssuancePerTx == 0 {
		return errors.New("max issuance per tx must be greater than 0")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Distributor runs the phased sale: whitelist-proofed mints, one-shot free
// claims, public mints with free-mint reserve protection, and the admin
// operations around them. Every mutating call is serialized by a mutex and
// applies all-or-nothing through the Store.
type Distributor struct {
	log *slog.Logger
	cfg Config

	mu sync.Mutex
}

// New creates a Distributor. The initial sale state (price, dates, root) is
// whatever the store already holds; use SeedState for a fresh store.
func New(cfg Config) (*Distributor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Distributor{log: cfg.Logger, cfg: cfg}, nil
}

// SeedState initializes a fresh store with the given sale parameters. The
// free-mint claim deadline is derived from the release date.
func SeedState(ctx context.Context, store Store, state SaleState) error {
	state.FreeMintClaimDeadline = state.ReleaseDate.Add(freeMintClaimWindow)
	return store.Update(ctx, func(tx Tx) error {
		return tx.SetState(state)
	})
}

// MintResult describes a successful mint or claim.
type MintResult struct {
	TokenIDs []uint64
	Paid     *uint256.Int
	Refund   *uint256.Int
}

// Status is a read-only snapshot of the sale.
type Status struct {
	Phase                 Phase
	Paused                bool
	TotalMinted           uint64
	CollectionSize        uint64
	RootHash              common.Hash
	ItemPrice             *uint256.Int
	ReleaseDate           time.Time
	WLReleaseDate         time.Time
	FreeMintClaimDeadline time.Time
	FreeMintContingent    uint64
	Collector             common.Address
}

// Mint sells quantity tokens to the caller. During the whitelist sale the
// caller must prove its entry against the published root; during the public
// sale no proof is consulted. Overpayment is refunded within the same call
// and the required amount is forwarded to the collector account.
func (d *Distributor) Mint(ctx context.Context, caller common.Address, quantity uint64, entry entitlement.Entry, proof entitlement.Proof, payment *uint256.Int) (*MintResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if payment == nil {
		payment = uint256.NewInt(0)
	}

	var (
		required   *uint256.Int
		price      *uint256.Int
		collector  common.Address
		prevClaims Claims
		claimsHeld bool
	)
	err := d.cfg.Store.Update(ctx, func(tx Tx) error {
		state, err := tx.State()
		if err != nil {
			return err
		}
		if state.Paused {
			return ErrPaused
		}
		if quantity > d.cfg.MaxIssuancePerTx {
			return fmt.Errorf("%w: %d exceeds per-tx cap %d", ErrQuotaExceeded, quantity, d.cfg.MaxIssuancePerTx)
		}

		now := d.cfg.Clock.Now()
		phase := phaseAt(now, state.WLReleaseDate, state.ReleaseDate)

		switch phase {
		case PhasePreSale:
			return ErrNotStarted

		case PhaseWhitelistSale:
			if entry.Address != caller || !entitlement.Verify(state.RootHash, entry.Leaf(), proof) {
				return ErrInvalidProof
			}
			claims, err := tx.Claims(caller)
			if err != nil {
				return err
			}
			if entry.FreeMint > 0 && !claims.FreeClaimed {
				return ErrMustClaimFreeMintFirst
			}
			if claims.WhitelistClaimed+quantity > entry.Whitelist {
				return ErrQuotaExceeded
			}
			prevClaims, claimsHeld = claims, true
			claims.WhitelistClaimed += quantity
			if err := tx.SetClaims(caller, claims); err != nil {
				return err
			}

		case PhasePublicSale:
			// No proof and no per-address quota during the public sale, but
			// the unclaimed free-mint contingent stays reserved until its
			// claim window lapses.
			if now.Before(state.FreeMintClaimDeadline) {
				var open uint64
				if d.cfg.CollectionSize > state.FreeMintContingent {
					open = d.cfg.CollectionSize - state.FreeMintContingent
				}
				if state.TotalMinted+quantity > open {
					return ErrReserveProtected
				}
			}
		}

		if state.TotalMinted+quantity > d.cfg.CollectionSize {
			return ErrSoldOut
		}

		price = state.ItemPrice
		if price == nil {
			price = uint256.NewInt(0)
		}
		required = new(uint256.Int).Mul(price, uint256.NewInt(quantity))
		if payment.Lt(required) {
			return ErrInsufficientPayment
		}

		collector = state.Collector
		state.TotalMinted += quantity
		return tx.SetState(state)
	})
	if err != nil {
		return nil, err
	}

	// The payment ledger sits outside the store transaction: the quota and
	// supply writes commit first, and a failed settlement reverts them.
	refund, err := d.settle(caller, collector, payment, required)
	if err != nil {
		d.revertMint(ctx, caller, quantity, prevClaims, claimsHeld)
		return nil, err
	}

	result := &MintResult{Paid: required, Refund: refund}
	result.TokenIDs, err = d.issue(caller, quantity)
	if err != nil {
		d.refundUndelivered(ctx, caller, collector, quantity-uint64(len(result.TokenIDs)), price)
	}
	return result, err
}

// revertMint undoes the committed quota and supply writes of a mint whose
// settlement failed. The mutex is still held, so the decrement cannot race
// another mint.
func (d *Distributor) revertMint(ctx context.Context, caller common.Address, quantity uint64, prev Claims, restoreClaims bool) {
	err := d.cfg.Store.Update(ctx, func(tx Tx) error {
		state, err := tx.State()
		if err != nil {
			return err
		}
		state.TotalMinted -= quantity
		if err := tx.SetState(state); err != nil {
			return err
		}
		if restoreClaims {
			return tx.SetClaims(caller, prev)
		}
		return nil
	})
	if err != nil {
		d.log.Error("failed to revert mint after settlement failure",
			"caller", caller, "quantity", quantity, "error", err)
	}
}

// refundUndelivered compensates a partial issuance failure: the payment for
// tokens that never issued goes back to the caller and their supply is
// released.
func (d *Distributor) refundUndelivered(ctx context.Context, caller, collector common.Address, undelivered uint64, price *uint256.Int) {
	if undelivered == 0 {
		return
	}
	amount := new(uint256.Int).Mul(price, uint256.NewInt(undelivered))
	if !amount.IsZero() {
		if err := d.cfg.Payments.Transfer(collector, caller, amount); err != nil {
			d.log.Error("failed to refund undelivered tokens",
				"caller", caller, "amount", amount.Dec(), "error", err)
		}
	}
	err := d.cfg.Store.Update(ctx, func(tx Tx) error {
		state, err := tx.State()
		if err != nil {
			return err
		}
		state.TotalMinted -= undelivered
		return tx.SetState(state)
	})
	if err != nil {
		d.log.Error("failed to release supply of undelivered tokens",
			"caller", caller, "undelivered", undelivered, "error", err)
	}
}

// ClaimFreeMint claims the caller's free-mint allowance. It is one-shot: any
// second call fails, even for quantity zero, and a zero-quantity first call
// waives the allowance. Claimed quantities consume the shared whitelist pool.
func (d *Distributor) ClaimFreeMint(ctx context.Context, caller common.Address, quantity uint64, entry entitlement.Entry, proof entitlement.Proof) (*MintResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.cfg.Store.Update(ctx, func(tx Tx) error {
		state, err := tx.State()
		if err != nil {
			return err
		}
		if state.Paused {
			return ErrPaused
		}

		now := d.cfg.Clock.Now()
		if phaseAt(now, state.WLReleaseDate, state.ReleaseDate) == PhasePreSale {
			return ErrNotStarted
		}
		if !now.Before(state.FreeMintClaimDeadline) {
			return ErrClaimDeadlinePassed
		}
		if entry.Address != caller || !entitlement.Verify(state.RootHash, entry.Leaf(), proof) {
			return ErrInvalidProof
		}

		claims, err := tx.Claims(caller)
		if err != nil {
			return err
		}
		if claims.FreeClaimed {
			return ErrAlreadyClaimed
		}
		if quantity > entry.FreeMint {
			return ErrQuotaExceeded
		}
		if state.TotalMinted+quantity > d.cfg.CollectionSize {
			return ErrSoldOut
		}

		claims.FreeClaimed = true
		claims.FreeMintClaimed += quantity
		claims.WhitelistClaimed += quantity
		if err := tx.SetClaims(caller, claims); err != nil {
			return err
		}

		state.TotalMinted += quantity
		if quantity >= state.FreeMintContingent {
			state.FreeMintContingent = 0
		} else {
			state.FreeMintContingent -= quantity
		}
		return tx.SetState(state)
	})
	if err != nil {
		return nil, err
	}

	ids, err := d.issue(caller, quantity)
	if err != nil {
		return nil, err
	}
	return &MintResult{TokenIDs: ids, Paid: uint256.NewInt(0), Refund: uint256.NewInt(0)}, nil
}

// IssueContingent mints quantity tokens to recipient outside the sale rules.
// It still respects the collection size and is blocked while paused.
func (d *Distributor) IssueContingent(ctx context.Context, caps Caps, recipient common.Address, quantity uint64) ([]uint64, error) {
	if !caps.Has(CapIssuer) {
		return nil, ErrUnauthorized
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.cfg.Store.Update(ctx, func(tx Tx) error {
		state, err := tx.State()
		if err != nil {
			return err
		}
		if state.Paused {
			return ErrPaused
		}
		if state.TotalMinted+quantity > d.cfg.CollectionSize {
			return ErrSoldOut
		}
		state.TotalMinted += quantity
		return tx.SetState(state)
	})
	if err != nil {
		return nil, err
	}
	return d.issue(recipient, quantity)
}

// AdjustPrice changes the item price.
func (d *Distributor) AdjustPrice(ctx context.Context, caps Caps, newPrice *uint256.Int) error {
	if !caps.Has(CapIssuer) {
		return ErrUnauthorized
	}
	if newPrice == nil || newPrice.IsZero() {
		return ErrInvalidPrice
	}
	return d.updateState(ctx, func(state *SaleState) error {
		state.ItemPrice = new(uint256.Int).Set(newPrice)
		return nil
	})
}

// UpdateReleaseDates replaces both release dates and rederives the free-mint
// claim deadline. No ordering between the two dates is enforced.
func (d *Distributor) UpdateReleaseDates(ctx context.Context, caps Caps, release, wlRelease time.Time) error {
	if !caps.Has(CapAdmin) {
		return ErrUnauthorized
	}
	return d.updateState(ctx, func(state *SaleState) error {
		state.ReleaseDate = release
		state.WLReleaseDate = wlRelease
		state.FreeMintClaimDeadline = release.Add(freeMintClaimWindow)
		return nil
	})
}

// UpdateFreeMintContingent replaces the reserved free-mint supply.
func (d *Distributor) UpdateFreeMintContingent(ctx context.Context, caps Caps, n uint64) error {
	if !caps.Has(CapAdmin) {
		return ErrUnauthorized
	}
	return d.updateState(ctx, func(state *SaleState) error {
		state.FreeMintContingent = n
		return nil
	})
}

// SetRootHash publishes a new whitelist root. All proofs minted against the
// previous root become invalid with this call.
func (d *Distributor) SetRootHash(ctx context.Context, caps Caps, root common.Hash) error {
	if !caps.Has(CapAdmin) {
		return ErrUnauthorized
	}
	return d.updateState(ctx, func(state *SaleState) error {
		state.RootHash = root
		return nil
	})
}

// UpdateCollector changes the account sale proceeds are forwarded to.
func (d *Distributor) UpdateCollector(ctx context.Context, caps Caps, account common.Address) error {
	if !caps.Has(CapAdmin) {
		return ErrUnauthorized
	}
	return d.updateState(ctx, func(state *SaleState) error {
		state.Collector = account
		return nil
	})
}

// TogglePause flips the pause flag. While paused, every mutating operation
// fails, including the admin configuration operations.
func (d *Distributor) TogglePause(ctx context.Context, caps Caps) error {
	if !caps.Has(CapPauser) {
		return ErrUnauthorized
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	return d.cfg.Store.Update(ctx, func(tx Tx) error {
		state, err := tx.State()
		if err != nil {
			return err
		}
		state.Paused = !state.Paused
		d.log.Info("pause toggled", "paused", state.Paused)
		return tx.SetState(state)
	})
}

// Status returns a snapshot of the sale, with the phase derived at call time.
func (d *Distributor) Status(ctx context.Context) (Status, error) {
	var status Status
	err := d.cfg.Store.View(ctx, func(tx Tx) error {
		state, err := tx.State()
		if err != nil {
			return err
		}
		status = Status{
			Phase:                 phaseAt(d.cfg.Clock.Now(), state.WLReleaseDate, state.ReleaseDate),
			Paused:                state.Paused,
			TotalMinted:           state.TotalMinted,
			CollectionSize:        d.cfg.CollectionSize,
			RootHash:              state.RootHash,
			ItemPrice:             state.ItemPrice,
			ReleaseDate:           state.ReleaseDate,
			WLReleaseDate:         state.WLReleaseDate,
			FreeMintClaimDeadline: state.FreeMintClaimDeadline,
			FreeMintContingent:    state.FreeMintContingent,
			Collector:             state.Collector,
		}
		return nil
	})
	return status, err
}

// AddressClaims returns the consumption counters for an address.
func (d *Distributor) AddressClaims(ctx context.Context, addr common.Address) (Claims, error) {
	var claims Claims
	err := d.cfg.Store.View(ctx, func(tx Tx) error {
		var err error
		claims, err = tx.Claims(addr)
		return err
	})
	return claims, err
}

// updateState runs an admin mutation that is blocked while paused.
func (d *Distributor) updateState(ctx context.Context, fn func(state *SaleState) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.cfg.Store.Update(ctx, func(tx Tx) error {
		state, err := tx.State()
		if err != nil {
			return err
		}
		if state.Paused {
			return ErrPaused
		}
		if err := fn(&state); err != nil {
			return err
		}
		return tx.SetState(state)
	})
}

// settle captures the attached payment, refunds the excess, and forwards the
// required amount to the collector. It runs after all precondition checks, so
// its only failure mode is the caller not holding the attached amount.
func (d *Distributor) settle(caller, collector common.Address, payment, required *uint256.Int) (*uint256.Int, error) {
	if err := d.cfg.Payments.Transfer(caller, d.cfg.Account, payment); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInsufficientPayment, err)
	}
	refund := new(uint256.Int).Sub(payment, required)
	if !refund.IsZero() {
		if err := d.cfg.Payments.Transfer(d.cfg.Account, caller, refund); err != nil {
			return nil, fmt.Errorf("failed to refund excess payment: %w", err)
		}
	}
	if !required.IsZero() {
		if err := d.cfg.Payments.Transfer(d.cfg.Account, collector, required); err != nil {
			return nil, fmt.Errorf("failed to forward payment: %w", err)
		}
	}
	return refund, nil
}

// issue mints quantity tokens to recipient on the token ledger.
func (d *Distributor) issue(recipient common.Address, quantity uint64) ([]uint64, error) {
	if quantity == 0 {
		return nil, nil
	}
	ids := make([]uint64, 0, quantity)
	for i := uint64(0); i < quantity; i++ {
		id, err := d.cfg.Tokens.Mint(recipient)
		if err != nil {
			return ids, fmt.Errorf("token mint failed after payment was settled: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
