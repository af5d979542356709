// Package pharmacy sells companion "pill" tokens and hands out free claims to
// holders of the main collection. Eligibility is counted in pairs: every two
// collection tokens held qualify for one free pill. Proceeds are forwarded to
// the liquidity collector account.
package pharmacy

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

	"github.com/spacesquad/mintgate/distributor"
	"github.com/spacesquad/mintgate/ledger"
)

var (
	// ErrMaxPerTx is returned when a purchase exceeds the per-transaction cap.
	ErrMaxPerTx = errors.New("pharmacy: quantity exceeds per-tx maximum")

	// ErrNotEligible is returned for free claims by holders with no pairs.
	ErrNotEligible = errors.New("pharmacy: no eligible pairs held")
)

type Config struct {
	Logger   *slog.Logger
	Clock    clockwork.Clock
	Payments *ledger.PayLedger

	// Collection is the main collection ledger; pair counts on it drive
	// free-pill eligibility.
	Collection *ledger.TokenLedger

	// Pills is the ledger pills are minted on.
	Pills *ledger.TokenLedger

	// Account is the pharmacy's escrow account for the capture/refund/forward
	// payment sequence; Collector receives the proceeds.
	Account   common.Address
	Collector common.Address

	PillPrice     *uint256.Int
	SupplyCap     uint64
	MaxPillsPerTx uint64
	ClaimDeadline time.Time
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Payments == nil {
		return errors.New("payments ledger is required")
	}
	if cfg.Collection == nil {
		return errors.New("collection ledger is required")
	}
	if cfg.Pills == nil {
		return errors.New("pill ledger is required")
	}
	if cfg.PillPrice == nil || cfg.PillPrice.IsZero() {
		return errors.New("pill price must be greater than 0")
	}
	if cfg.SupplyCap == 0 {
		return errors.New("supply cap must be greater than 0")
	}
	if cfg.MaxPillsPerTx == 0 {
		return errors.New("max pills per tx must be greater than 0")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Receipt describes a successful purchase or claim.
type Receipt struct {
	TokenIDs []uint64
	Paid     *uint256.Int
	Refund   *uint256.Int
}

type Pharmacy struct {
	log *slog.Logger
	cfg Config

	mu            sync.Mutex
	paused        bool
	price         *uint256.Int
	claimDeadline time.Time

	// claimReserve is the pill supply held back for free claims. It is
	// resnapshotted from the collection's total pair count on every unpause
	// and shrinks as claims are served.
	claimReserve uint64
	claimed      map[common.Address]bool
}

func New(cfg Config) (*Pharmacy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pharmacy{
		log:           cfg.Logger,
		cfg:           cfg,
		price:         new(uint256.Int).Set(cfg.PillPrice),
		claimDeadline: cfg.ClaimDeadline,
		claimed:       make(map[common.Address]bool),
	}, nil
}

// PurchasePills sells quantity pills to the caller. Until the claim deadline
// the free-claim reserve is held back from the purchasable supply.
func (p *Pharmacy) PurchasePills(ctx context.Context, caller common.Address, quantity uint64, payment *uint256.Int) (*Receipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.paused {
		return nil, distributor.ErrPaused
	}
	if quantity > p.cfg.MaxPillsPerTx {
		return nil, fmt.Errorf("%w: %d > %d", ErrMaxPerTx, quantity, p.cfg.MaxPillsPerTx)
	}
	minted := p.cfg.Pills.TotalSupply()
	if minted+quantity > p.cfg.SupplyCap {
		return nil, distributor.ErrSoldOut
	}
	if p.cfg.Clock.Now().Before(p.claimDeadline) {
		var open uint64
		if p.cfg.SupplyCap > p.claimReserve {
			open = p.cfg.SupplyCap - p.claimReserve
		}
		if minted+quantity > open {
			return nil, distributor.ErrReserveProtected
		}
	}

	if payment == nil {
		payment = uint256.NewInt(0)
	}
	required := new(uint256.Int).Mul(p.price, uint256.NewInt(quantity))
	if payment.Lt(required) {
		return nil, distributor.ErrInsufficientPayment
	}
	if err := p.cfg.Payments.Transfer(caller, p.cfg.Account, payment); err != nil {
		return nil, fmt.Errorf("%w: %v", distributor.ErrInsufficientPayment, err)
	}
	refund := new(uint256.Int).Sub(payment, required)
	if !refund.IsZero() {
		if err := p.cfg.Payments.Transfer(p.cfg.Account, caller, refund); err != nil {
			return nil, fmt.Errorf("failed to refund excess payment: %w", err)
		}
	}
	if !required.IsZero() {
		if err := p.cfg.Payments.Transfer(p.cfg.Account, p.cfg.Collector, required); err != nil {
			return nil, fmt.Errorf("failed to forward payment: %w", err)
		}
	}

	ids, err := p.issue(caller, quantity)
	if err != nil {
		return nil, err
	}
	return &Receipt{TokenIDs: ids, Paid: required, Refund: refund}, nil
}

// ClaimFreePills hands out one pill per eligible pair. The claim is one-shot
// per address and consumes the claim reserve.
func (p *Pharmacy) ClaimFreePills(ctx context.Context, caller common.Address) (*Receipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.paused {
		return nil, distributor.ErrPaused
	}
	if !p.cfg.Clock.Now().Before(p.claimDeadline) {
		return nil, distributor.ErrClaimDeadlinePassed
	}
	if p.claimed[caller] {
		return nil, distributor.ErrAlreadyClaimed
	}
	pairs := p.cfg.Collection.PairsHeld(caller)
	if pairs == 0 {
		return nil, ErrNotEligible
	}
	if p.cfg.Pills.TotalSupply()+pairs > p.cfg.SupplyCap {
		return nil, distributor.ErrSoldOut
	}

	p.claimed[caller] = true
	if pairs >= p.claimReserve {
		p.claimReserve = 0
	} else {
		p.claimReserve -= pairs
	}

	ids, err := p.issue(caller, pairs)
	if err != nil {
		return nil, err
	}
	return &Receipt{TokenIDs: ids, Paid: uint256.NewInt(0), Refund: uint256.NewInt(0)}, nil
}

// HasClaimed reports whether the address has used its free claim.
func (p *Pharmacy) HasClaimed(addr common.Address) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.claimed[addr]
}

// TogglePause flips the pause flag. Unpausing resnapshots the claim reserve
// from the collection's current total pair count.
func (p *Pharmacy) TogglePause(ctx context.Context, caps distributor.Caps) error {
	if !caps.Has(distributor.CapPauser) {
		return distributor.ErrUnauthorized
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.paused = !p.paused
	if !p.paused {
		p.claimReserve = p.cfg.Collection.TotalPairs()
	}
	p.log.Info("pharmacy pause toggled", "paused", p.paused, "claim_reserve", p.claimReserve)
	return nil
}

// Paused reports the pause flag.
func (p *Pharmacy) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// ClaimReserve returns the current free-claim reserve.
func (p *Pharmacy) ClaimReserve() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.claimReserve
}

// Price returns the current pill price.
func (p *Pharmacy) Price() *uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return new(uint256.Int).Set(p.price)
}

// ClaimDeadline returns the current claim deadline.
func (p *Pharmacy) ClaimDeadline() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.claimDeadline
}

// SetClaimDeadline moves the free-claim deadline.
func (p *Pharmacy) SetClaimDeadline(ctx context.Context, caps distributor.Caps, deadline time.Time) error {
	if !caps.Has(distributor.CapAdmin) {
		return distributor.ErrUnauthorized
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.claimDeadline = deadline
	return nil
}

// AdjustPrice changes the pill price.
func (p *Pharmacy) AdjustPrice(ctx context.Context, caps distributor.Caps, newPrice *uint256.Int) error {
	if !caps.Has(distributor.CapIssuer) {
		return distributor.ErrUnauthorized
	}
	if newPrice == nil || newPrice.IsZero() {
		return distributor.ErrInvalidPrice
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.price = new(uint256.Int).Set(newPrice)
	return nil
}

func (p *Pharmacy) issue(recipient common.Address, quantity uint64) ([]uint64, error) {
	ids := make([]uint64, 0, quantity)
	for i := uint64(0); i < quantity; i++ {
		id, err := p.cfg.Pills.Mint(recipient)
		if err != nil {
			return ids, fmt.Errorf("pill mint failed: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
