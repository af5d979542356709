package distributor

import "time"

// Phase is the current sale stage. It is never stored: it is derived from
// wall-clock time against the configured release dates on every call, which
// avoids staleness at phase boundaries.
type Phase int

const (
	PhasePreSale Phase = iota
	PhaseWhitelistSale
	PhasePublicSale
)

func (p Phase) String() string {
	switch p {
	case PhasePreSale:
		return "pre_sale"
	case PhaseWhitelistSale:
		return "whitelist_sale"
	case PhasePublicSale:
		return "public_sale"
	default:
		return "unknown"
	}
}

// phaseAt derives the phase for the given instant. Release dates are not
// required to be ordered (UpdateReleaseDates is permissive); the comparison
// order here defines the behavior for inverted configurations.
func phaseAt(now, wlRelease, release time.Time) Phase {
	if now.Before(wlRelease) {
		return PhasePreSale
	}
	if now.Before(release) {
		return PhaseWhitelistSale
	}
	return PhasePublicSale
}
