package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/spacesquad/mintgate/entitlement"
	mgtesting "github.com/spacesquad/mintgate/utils/pkg/testing"
)

func writeWhitelist(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "whitelist.json")
	data := []byte(`{
		"0x00000000000000000000000000000000000000a1": {"whitelist": 3, "freeMint": 1},
		"0x00000000000000000000000000000000000000b2": {"whitelist": 2, "freeMint": 0},
		"0x00000000000000000000000000000000000000c3": {"whitelist": 5, "freeMint": 2}
	}`)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestMintGate_Admin_BuildTree(t *testing.T) {
	t.Parallel()

	log := mgtesting.NewLogger()
	dir := t.TempDir()
	wlPath := writeWhitelist(t, dir)
	outPath := filepath.Join(dir, "tree.json")

	artifact, err := BuildTree(log, wlPath, outPath, false)
	require.NoError(t, err)
	require.Len(t, artifact.Entries, 3)

	// The artifact on disk round-trips.
	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	var loaded TreeArtifact
	require.NoError(t, json.Unmarshal(data, &loaded))
	require.Equal(t, artifact.Root, loaded.Root)

	// Every written proof verifies against the written root.
	root := common.HexToHash(loaded.Root)
	for addr, tp := range loaded.Entries {
		entry := entitlement.Entry{
			Address: common.HexToAddress(addr),
			Quota:   entitlement.Quota{Whitelist: tp.Whitelist, FreeMint: tp.FreeMint},
		}
		proof := make(entitlement.Proof, len(tp.Proof))
		for i, e := range tp.Proof {
			proof[i] = common.HexToHash(e)
		}
		require.True(t, entitlement.Verify(root, entry.Leaf(), proof), "proof for %s must verify", addr)
	}
}

func TestMintGate_Admin_BuildTree_DryRun(t *testing.T) {
	t.Parallel()

	log := mgtesting.NewLogger()
	dir := t.TempDir()
	wlPath := writeWhitelist(t, dir)
	outPath := filepath.Join(dir, "tree.json")

	artifact, err := BuildTree(log, wlPath, outPath, true)
	require.NoError(t, err)
	require.NotEmpty(t, artifact.Root)

	_, err = os.Stat(outPath)
	require.True(t, os.IsNotExist(err), "dry run must not write the artifact")
}

func TestMintGate_Admin_PublishRoot(t *testing.T) {
	t.Parallel()

	log := mgtesting.NewLogger()
	root := "0xab00000000000000000000000000000000000000000000000000000000000000"

	t.Run("posts root with bearer token", func(t *testing.T) {
		t.Parallel()
		var gotAuth string
		var gotBody map[string]string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		require.NoError(t, PublishRoot(t.Context(), log, srv.URL, "s3cret", root, false))
		require.Equal(t, "Bearer s3cret", gotAuth)
		require.Equal(t, root, gotBody["root"])
	})

	t.Run("retries transient server errors", func(t *testing.T) {
		t.Parallel()
		var calls int
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		require.NoError(t, PublishRoot(t.Context(), log, srv.URL, "s3cret", root, false))
		require.Equal(t, 2, calls)
	})

	t.Run("does not retry auth rejection", func(t *testing.T) {
		t.Parallel()
		var calls int
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		err := PublishRoot(t.Context(), log, srv.URL, "wrong", root, false)
		require.Error(t, err)
		require.Equal(t, 1, calls)
	})

	t.Run("rejects malformed root", func(t *testing.T) {
		t.Parallel()
		err := PublishRoot(context.Background(), log, "http://localhost:0", "s3cret", "deadbeef", false)
		require.Error(t, err)
	})

	t.Run("dry run skips the request", func(t *testing.T) {
		t.Parallel()
		var calls int
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
		}))
		defer srv.Close()

		require.NoError(t, PublishRoot(t.Context(), log, srv.URL, "s3cret", root, true))
		require.Zero(t, calls)
	})
}
