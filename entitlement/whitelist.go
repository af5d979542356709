package entitlement

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// Whitelist is the full entitlement dataset, keyed by address. It is loaded
// wholesale before each tree rebuild; there is no incremental update.
type Whitelist map[common.Address]Quota

// ParseWhitelist decodes a JSON mapping of address -> quota. Keys that are
// not valid hex addresses are rejected, as are keys that normalize to the
// same address (e.g. differing only in case).
func ParseWhitelist(data []byte) (Whitelist, error) {
	var raw map[string]Quota
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse whitelist: %w", err)
	}

	wl := make(Whitelist, len(raw))
	for key, quota := range raw {
		if !common.IsHexAddress(key) {
			return nil, fmt.Errorf("invalid address %q in whitelist", key)
		}
		addr := common.HexToAddress(key)
		if _, ok := wl[addr]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAddress, addr.Hex())
		}
		wl[addr] = quota
	}
	return wl, nil
}

// LoadWhitelist reads and parses a whitelist dataset file.
func LoadWhitelist(path string) (Whitelist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read whitelist file: %w", err)
	}
	return ParseWhitelist(data)
}

// Entries returns the dataset as a slice in address byte order. The tree
// root does not depend on this order; sorting keeps listings stable.
func (wl Whitelist) Entries() []Entry {
	entries := make([]Entry, 0, len(wl))
	for addr, quota := range wl {
		entries = append(entries, Entry{Address: addr, Quota: quota})
	}
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].Address[:], entries[j].Address[:]) < 0
	})
	return entries
}

// Tree builds the merkle tree for the dataset.
func (wl Whitelist) Tree() (*Tree, error) {
	return NewTree(wl.Entries())
}
