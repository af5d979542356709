package distributor

import "errors"

// Every precondition failure is a synchronous, atomic rejection mapped to one
// of these reasons. No partial state mutation occurs on any of them and no
// payment is taken.
var (
	// ErrUnauthorized is returned when the caller lacks the required capability.
	ErrUnauthorized = errors.New("distributor: unauthorized")

	// ErrNotStarted is returned for sale operations before the whitelist
	// release date.
	ErrNotStarted = errors.New("distributor: sale not started")

	// ErrPaused is returned while the distributor is paused.
	ErrPaused = errors.New("distributor: paused")

	// ErrSoldOut is returned when a mint would exceed the collection size.
	ErrSoldOut = errors.New("distributor: sold out")

	// ErrQuotaExceeded is returned when a quantity exceeds the caller's
	// remaining proven quota or the per-transaction issuance cap.
	ErrQuotaExceeded = errors.New("distributor: quota exceeded")

	// ErrInvalidProof is returned when the supplied merkle proof does not
	// validate the claimed entry against the published root.
	ErrInvalidProof = errors.New("distributor: invalid proof")

	// ErrMustClaimFreeMintFirst is returned for whitelist mints by an address
	// that still has an unclaimed free-mint allowance.
	ErrMustClaimFreeMintFirst = errors.New("distributor: free mint must be claimed first")

	// ErrAlreadyClaimed is returned for a second free-mint claim, regardless
	// of the requested quantity.
	ErrAlreadyClaimed = errors.New("distributor: free mint already claimed")

	// ErrClaimDeadlinePassed is returned for free-mint claims after the
	// claim deadline.
	ErrClaimDeadlinePassed = errors.New("distributor: free mint deadline passed")

	// ErrReserveProtected is returned for public mints that would eat into
	// the free-mint reserve before its claim window has lapsed.
	ErrReserveProtected = errors.New("distributor: free mint reserve not open")

	// ErrInsufficientPayment is returned when the attached payment does not
	// cover the required amount.
	ErrInsufficientPayment = errors.New("distributor: insufficient payment")

	// ErrInvalidPrice is returned when adjusting the item price to zero.
	ErrInvalidPrice = errors.New("distributor: invalid price")
)
