package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/spacesquad/mintgate/api/metrics"
	"github.com/spacesquad/mintgate/entitlement"
)

// StatusResponse is the sale snapshot returned by GET /status.
type StatusResponse struct {
	Phase                 string    `json:"phase"`
	Paused                bool      `json:"paused"`
	TotalMinted           uint64    `json:"totalMinted"`
	CollectionSize        uint64    `json:"collectionSize"`
	RootHash              string    `json:"rootHash"`
	ItemPrice             string    `json:"itemPrice"`
	ReleaseDate           time.Time `json:"releaseDate"`
	WLReleaseDate         time.Time `json:"wlReleaseDate"`
	FreeMintClaimDeadline time.Time `json:"freeMintClaimDeadline"`
	FreeMintContingent    uint64    `json:"freeMintContingent"`
}

// AddressClaimsResponse is the per-address view returned by GET /address/{addr}.
type AddressClaimsResponse struct {
	Address          string `json:"address"`
	WhitelistClaimed uint64 `json:"whitelistClaimed"`
	FreeMintClaimed  uint64 `json:"freeMintClaimed"`
	FreeClaimed      bool   `json:"freeClaimed"`
}

// ProofResponse is the proof lookup returned by GET /proof/{addr}.
type ProofResponse struct {
	Address string       `json:"address"`
	Entry   quotaPayload `json:"entry"`
	Proof   []string     `json:"proof"`
	Root    string       `json:"root"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.cfg.Distributor.Status(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	metrics.RecordStatus(int(status.Phase), status.TotalMinted, status.Paused)

	price := "0"
	if status.ItemPrice != nil {
		price = status.ItemPrice.Dec()
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		Phase:                 status.Phase.String(),
		Paused:                status.Paused,
		TotalMinted:           status.TotalMinted,
		CollectionSize:        status.CollectionSize,
		RootHash:              status.RootHash.Hex(),
		ItemPrice:             price,
		ReleaseDate:           status.ReleaseDate,
		WLReleaseDate:         status.WLReleaseDate,
		FreeMintClaimDeadline: status.FreeMintClaimDeadline,
		FreeMintContingent:    status.FreeMintContingent,
	})
}

func (s *Server) handleAddressClaims(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(chi.URLParam(r, "addr"))
	if !ok {
		writeBadRequest(w, "invalid address")
		return
	}
	claims, err := s.cfg.Distributor.AddressClaims(r.Context(), addr)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, AddressClaimsResponse{
		Address:          addr.Hex(),
		WhitelistClaimed: claims.WhitelistClaimed,
		FreeMintClaimed:  claims.FreeMintClaimed,
		FreeClaimed:      claims.FreeClaimed,
	})
}

func (s *Server) handleProof(w http.ResponseWriter, r *http.Request) {
	if s.tree == nil {
		http.NotFound(w, r)
		return
	}
	addr, ok := parseAddress(chi.URLParam(r, "addr"))
	if !ok {
		writeBadRequest(w, "invalid address")
		return
	}
	quota, ok := s.cfg.Whitelist[addr]
	if !ok {
		http.NotFound(w, r)
		return
	}

	entry := entitlement.Entry{Address: addr, Quota: quota}
	proof, err := s.tree.ProofFor(entry)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	elements := make([]string, len(proof))
	for i, h := range proof {
		elements[i] = h.Hex()
	}
	writeJSON(w, http.StatusOK, ProofResponse{
		Address: addr.Hex(),
		Entry:   quotaPayload{Whitelist: quota.Whitelist, FreeMint: quota.FreeMint},
		Proof:   elements,
		Root:    s.tree.Root().Hex(),
	})
}
