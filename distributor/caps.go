package distributor

// Caps is the capability set presented by a caller. The distributor never
// decides who holds which role; the surrounding service resolves caller
// identity to capabilities and passes them in per call.
type Caps uint8

const (
	// CapAdmin gates configuration changes (root hash, dates, contingent,
	// collector account).
	CapAdmin Caps = 1 << iota

	// CapPauser gates pause toggling.
	CapPauser

	// CapIssuer gates contingent issuance and price adjustment.
	CapIssuer

	// CapTreasurer gates liquidity distribution.
	CapTreasurer
)

// Has reports whether all capabilities in want are present.
func (c Caps) Has(want Caps) bool {
	return c&want == want
}
