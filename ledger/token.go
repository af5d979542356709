package ledger

import (
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
)

var (
	// ErrUnknownToken is returned for operations on a token that was never minted.
	ErrUnknownToken = errors.New("ledger: unknown token")

	// ErrNotOwner is returned when a transfer is attempted by a non-owner.
	ErrNotOwner = errors.New("ledger: not token owner")
)

// TokenLedger is an in-memory token ownership registry. It stands in for the
// collection contract: callers (distributor, pharmacy) enforce supply and
// payment rules and use Mint as the raw issuance primitive.
//
// The ledger also tracks "pairs held" per owner: every two tokens held count
// as one pair, the unit of pill-claim eligibility. Pair counts follow mints
// and transfers until the qualify deadline passes, after which they freeze.
type TokenLedger struct {
	mu sync.Mutex

	clock           clockwork.Clock
	qualifyDeadline time.Time

	nextID     uint64
	owners     map[uint64]common.Address
	balances   map[common.Address]uint64
	pairs      map[common.Address]uint64
	totalPairs uint64
}

// NewTokenLedger creates an empty ledger. A zero qualifyDeadline means pair
// tracking never freezes.
func NewTokenLedger(clock clockwork.Clock, qualifyDeadline time.Time) *TokenLedger {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TokenLedger{
		clock:           clock,
		qualifyDeadline: qualifyDeadline,
		nextID:          1,
		owners:          make(map[uint64]common.Address),
		balances:        make(map[common.Address]uint64),
		pairs:           make(map[common.Address]uint64),
	}
}

// Mint issues the next token to the recipient and returns its id.
func (l *TokenLedger) Mint(recipient common.Address) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID
	l.nextID++
	l.owners[id] = recipient
	l.balances[recipient]++
	l.refreshPairs(recipient)
	return id, nil
}

// Transfer moves a token between owners.
func (l *TokenLedger) Transfer(id uint64, from, to common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	owner, ok := l.owners[id]
	if !ok {
		return ErrUnknownToken
	}
	if owner != from {
		return ErrNotOwner
	}
	l.owners[id] = to
	l.balances[from]--
	l.balances[to]++
	l.refreshPairs(from)
	l.refreshPairs(to)
	return nil
}

// BalanceOf returns the number of tokens held by addr.
func (l *TokenLedger) BalanceOf(addr common.Address) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[addr]
}

// OwnerOf returns the current owner of a token.
func (l *TokenLedger) OwnerOf(id uint64) (common.Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	owner, ok := l.owners[id]
	if !ok {
		return common.Address{}, ErrUnknownToken
	}
	return owner, nil
}

// TotalSupply returns the number of tokens minted so far.
func (l *TokenLedger) TotalSupply() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextID - 1
}

// PairsHeld returns the pair count for addr (floor(balance/2), frozen after
// the qualify deadline).
func (l *TokenLedger) PairsHeld(addr common.Address) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pairs[addr]
}

// TotalPairs returns the sum of all pair counts.
func (l *TokenLedger) TotalPairs() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalPairs
}

// refreshPairs recomputes addr's pair count unless qualification is frozen.
// Callers must hold l.mu.
func (l *TokenLedger) refreshPairs(addr common.Address) {
	if !l.qualifyDeadline.IsZero() && !l.clock.Now().Before(l.qualifyDeadline) {
		return
	}
	old := l.pairs[addr]
	now := l.balances[addr] / 2
	l.pairs[addr] = now
	if now >= old {
		l.totalPairs += now - old
	} else {
		l.totalPairs -= old - now
	}
}
