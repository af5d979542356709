// Package collector implements the liquidity collector: sale proceeds land on
// its account and Distribute splits them between the community wallet, the
// donation wallet, and the beneficiaries.
package collector

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/spacesquad/mintgate/distributor"
	"github.com/spacesquad/mintgate/ledger"
)

var (
	// ErrNothingToDistribute is returned when the collector account is empty.
	ErrNothingToDistribute = errors.New("collector: nothing to distribute")

	// ErrNoBeneficiaries is returned when an update would leave no beneficiaries.
	ErrNoBeneficiaries = errors.New("collector: at least one beneficiary required")
)

// communityPercent and donationPercent are the fixed payout shares.
const (
	communityPercent = 10
	donationPercent  = 10
)

type Config struct {
	Logger   *slog.Logger
	Payments *ledger.PayLedger

	// Account is the collector's own account, the forwarding target of the
	// distributor and the pharmacy.
	Account common.Address

	Beneficiaries   []common.Address
	CommunityWallet common.Address
	DonationWallet  common.Address

	// CommunityCap bounds the community wallet's balance. Payouts that would
	// push the balance past the cap are clipped; the clipped amount joins the
	// beneficiary remainder.
	CommunityCap *uint256.Int
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Payments == nil {
		return errors.New("payments ledger is required")
	}
	if len(cfg.Beneficiaries) == 0 {
		return ErrNoBeneficiaries
	}
	if cfg.CommunityCap == nil {
		cfg.CommunityCap = uint256.NewInt(0)
	}
	return nil
}

type Collector struct {
	log *slog.Logger
	mu  sync.Mutex

	pay     *ledger.PayLedger
	account common.Address

	beneficiaries   []common.Address
	communityWallet common.Address
	donationWallet  common.Address
	communityCap    *uint256.Int
}

func New(cfg Config) (*Collector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Collector{
		log:             cfg.Logger,
		pay:             cfg.Payments,
		account:         cfg.Account,
		beneficiaries:   append([]common.Address(nil), cfg.Beneficiaries...),
		communityWallet: cfg.CommunityWallet,
		donationWallet:  cfg.DonationWallet,
		communityCap:    new(uint256.Int).Set(cfg.CommunityCap),
	}, nil
}

// Account returns the collector's account address.
func (c *Collector) Account() common.Address {
	return c.account
}

// Distribute pays out the full collector balance: 10% to the community wallet
// up to its cap, 10% to the donation wallet, and the remainder split evenly
// across the beneficiaries. Division dust stays on the collector account and
// joins the next distribution.
func (c *Collector) Distribute(ctx context.Context, caps distributor.Caps) error {
	if !caps.Has(distributor.CapTreasurer) {
		return distributor.ErrUnauthorized
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.pay.Balance(c.account)
	if total.IsZero() {
		return ErrNothingToDistribute
	}

	hundred := uint256.NewInt(100)
	community := new(uint256.Int).Mul(total, uint256.NewInt(communityPercent))
	community.Div(community, hundred)
	donation := new(uint256.Int).Mul(total, uint256.NewInt(donationPercent))
	donation.Div(donation, hundred)

	// Clip the community payout to the cap headroom.
	headroom := uint256.NewInt(0)
	if balance := c.pay.Balance(c.communityWallet); balance.Lt(c.communityCap) {
		headroom.Sub(c.communityCap, balance)
	}
	if headroom.Lt(community) {
		community.Set(headroom)
	}

	remainder := new(uint256.Int).Sub(total, community)
	remainder.Sub(remainder, donation)
	share := new(uint256.Int).Div(remainder, uint256.NewInt(uint64(len(c.beneficiaries))))

	if !community.IsZero() {
		if err := c.pay.Transfer(c.account, c.communityWallet, community); err != nil {
			return err
		}
	}
	if err := c.pay.Transfer(c.account, c.donationWallet, donation); err != nil {
		return err
	}
	for _, b := range c.beneficiaries {
		if err := c.pay.Transfer(c.account, b, share); err != nil {
			return err
		}
	}

	c.log.Info("liquidity distributed",
		"total", total.Dec(),
		"community", community.Dec(),
		"donation", donation.Dec(),
		"beneficiary_share", share.Dec(),
		"beneficiaries", len(c.beneficiaries))
	return nil
}

// UpdateBeneficiaries replaces the beneficiary list.
func (c *Collector) UpdateBeneficiaries(ctx context.Context, caps distributor.Caps, beneficiaries []common.Address) error {
	if !caps.Has(distributor.CapAdmin) {
		return distributor.ErrUnauthorized
	}
	if len(beneficiaries) == 0 {
		return ErrNoBeneficiaries
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.beneficiaries = append([]common.Address(nil), beneficiaries...)
	return nil
}

// UpdateCommunityWallet changes the community wallet address.
func (c *Collector) UpdateCommunityWallet(ctx context.Context, caps distributor.Caps, wallet common.Address) error {
	if !caps.Has(distributor.CapAdmin) {
		return distributor.ErrUnauthorized
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.communityWallet = wallet
	return nil
}

// UpdateDonationWallet changes the donation wallet address.
func (c *Collector) UpdateDonationWallet(ctx context.Context, caps distributor.Caps, wallet common.Address) error {
	if !caps.Has(distributor.CapAdmin) {
		return distributor.ErrUnauthorized
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.donationWallet = wallet
	return nil
}

// UpdateCommunityCap changes the community wallet balance cap.
func (c *Collector) UpdateCommunityCap(ctx context.Context, caps distributor.Caps, limit *uint256.Int) error {
	if !caps.Has(distributor.CapAdmin) {
		return distributor.ErrUnauthorized
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.communityCap = new(uint256.Int).Set(limit)
	return nil
}
