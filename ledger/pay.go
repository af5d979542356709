package ledger

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ErrInsufficientFunds is returned when a transfer exceeds the sender's balance.
var ErrInsufficientFunds = errors.New("ledger: insufficient funds")

// PayLedger is an in-memory wei account book. It plays the part of the value
// layer: the distributor captures payments and issues refunds through it, and
// the collector reads and moves balances on it.
type PayLedger struct {
	mu       sync.Mutex
	balances map[common.Address]*uint256.Int
}

// NewPayLedger creates an empty account book.
func NewPayLedger() *PayLedger {
	return &PayLedger{balances: make(map[common.Address]*uint256.Int)}
}

// Credit adds amount to addr's balance (funding accounts in tests and tools).
func (l *PayLedger) Credit(addr common.Address, amount *uint256.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balance(addr).Add(l.balance(addr), amount)
}

// Transfer moves amount from one account to another.
func (l *PayLedger) Transfer(from, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if amount.IsZero() {
		return nil
	}
	src := l.balance(from)
	if src.Lt(amount) {
		return ErrInsufficientFunds
	}
	src.Sub(src, amount)
	dst := l.balance(to)
	dst.Add(dst, amount)
	return nil
}

// Balance returns a copy of addr's balance.
func (l *PayLedger) Balance(addr common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(uint256.Int).Set(l.balance(addr))
}

// balance returns the mutable balance entry for addr. Callers must hold l.mu.
func (l *PayLedger) balance(addr common.Address) *uint256.Int {
	b, ok := l.balances[addr]
	if !ok {
		b = uint256.NewInt(0)
		l.balances[addr] = b
	}
	return b
}
