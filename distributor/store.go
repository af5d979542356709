package distributor

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// SaleState is the mutable distributor state. CollectionSize and the
// per-transaction cap are fixed at construction and live on the Distributor
// itself; everything an admin operation can change is here.
type SaleState struct {
	TotalMinted           uint64
	RootHash              common.Hash
	Paused                bool
	ItemPrice             *uint256.Int
	ReleaseDate           time.Time
	WLReleaseDate         time.Time
	FreeMintClaimDeadline time.Time
	FreeMintContingent    uint64
	Collector             common.Address
}

// Clone returns a deep copy of the state.
func (s SaleState) Clone() SaleState {
	c := s
	if s.ItemPrice != nil {
		c.ItemPrice = new(uint256.Int).Set(s.ItemPrice)
	}
	return c
}

// Claims holds one address's consumption counters. Counters are monotone and
// never reset; FreeClaimed marks the one-shot free-mint claim as used even
// when it was waived with a zero-quantity claim.
type Claims struct {
	WhitelistClaimed uint64
	FreeMintClaimed  uint64
	FreeClaimed      bool
}

// Tx is the unit of state access inside a Store update. All reads observe the
// state as of update start; all writes are staged and become visible only if
// the update commits.
type Tx interface {
	State() (SaleState, error)
	SetState(SaleState) error
	Claims(addr common.Address) (Claims, error)
	SetClaims(addr common.Address, c Claims) error
}

// Store persists distributor state. Update must be all-or-nothing: if fn
// returns an error, no staged write may survive. The distributor additionally
// serializes all mutating calls, so stores do not need to handle concurrent
// updates to the same instance.
type Store interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
}

// MemoryStore is the in-process Store. It backs tests and single-node
// deployments that accept losing counters on restart.
type MemoryStore struct {
	mu     sync.Mutex
	state  SaleState
	claims map[common.Address]Claims
}

// NewMemoryStore creates a store seeded with the given initial state.
func NewMemoryStore(initial SaleState) *MemoryStore {
	return &MemoryStore{
		state:  initial.Clone(),
		claims: make(map[common.Address]Claims),
	}
}

type memoryTx struct {
	store  *MemoryStore
	state  SaleState
	claims map[common.Address]Claims
	dirty  bool
}

func (tx *memoryTx) State() (SaleState, error) {
	return tx.state.Clone(), nil
}

func (tx *memoryTx) SetState(s SaleState) error {
	tx.state = s.Clone()
	tx.dirty = true
	return nil
}

func (tx *memoryTx) Claims(addr common.Address) (Claims, error) {
	if c, ok := tx.claims[addr]; ok {
		return c, nil
	}
	return tx.store.claims[addr], nil
}

func (tx *memoryTx) SetClaims(addr common.Address, c Claims) error {
	tx.claims[addr] = c
	tx.dirty = true
	return nil
}

// Update runs fn against a staged copy and commits the staged writes only if
// fn succeeds.
func (s *MemoryStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		store:  s,
		state:  s.state.Clone(),
		claims: make(map[common.Address]Claims),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if tx.dirty {
		s.state = tx.state.Clone()
		for addr, c := range tx.claims {
			s.claims[addr] = c
		}
	}
	return nil
}

// View runs fn read-only against a staged copy; writes are discarded.
func (s *MemoryStore) View(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		store:  s,
		state:  s.state.Clone(),
		claims: make(map[common.Address]Claims),
	}
	return fn(tx)
}
