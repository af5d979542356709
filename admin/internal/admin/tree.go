package admin

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spacesquad/mintgate/entitlement"
)

// TreeArtifact is the output of BuildTree: the published root plus one proof
// per whitelisted address, ready to be served to mint clients.
type TreeArtifact struct {
	Root        string               `json:"root"`
	GeneratedAt time.Time            `json:"generatedAt"`
	Entries     map[string]TreeProof `json:"entries"`
}

// TreeProof is one address's quota and merkle proof.
type TreeProof struct {
	Whitelist uint64   `json:"whitelist"`
	FreeMint  uint64   `json:"freeMint"`
	Proof     []string `json:"proof"`
}

// BuildTree loads a whitelist dataset, builds the entitlement tree, and writes
// the proof artifact to outPath. With dryRun set, the artifact is computed and
// summarized but not written.
func BuildTree(log *slog.Logger, whitelistPath, outPath string, dryRun bool) (*TreeArtifact, error) {
	wl, err := entitlement.LoadWhitelist(whitelistPath)
	if err != nil {
		return nil, err
	}
	if len(wl) == 0 {
		return nil, fmt.Errorf("whitelist %s is empty", whitelistPath)
	}

	tree, err := wl.Tree()
	if err != nil {
		return nil, err
	}

	artifact := &TreeArtifact{
		Root:        tree.Root().Hex(),
		GeneratedAt: time.Now().UTC(),
		Entries:     make(map[string]TreeProof, len(wl)),
	}
	for _, entry := range wl.Entries() {
		proof, err := tree.ProofFor(entry)
		if err != nil {
			return nil, fmt.Errorf("failed to build proof for %s: %w", entry.Address.Hex(), err)
		}
		elements := make([]string, len(proof))
		for i, h := range proof {
			elements[i] = h.Hex()
		}
		artifact.Entries[entry.Address.Hex()] = TreeProof{
			Whitelist: entry.Whitelist,
			FreeMint:  entry.FreeMint,
			Proof:     elements,
		}
	}

	log.Info("built entitlement tree",
		"entries", len(artifact.Entries),
		"root", artifact.Root,
	)

	if dryRun {
		fmt.Printf("[DRY RUN] Would write %d proofs to %s (root %s)\n", len(artifact.Entries), outPath, artifact.Root)
		return artifact, nil
	}

	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode artifact: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write artifact: %w", err)
	}

	log.Info("wrote tree artifact", "path", outPath)
	return artifact, nil
}
