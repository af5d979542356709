package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/spacesquad/mintgate/api/metrics"
	"github.com/spacesquad/mintgate/entitlement"
)

type quotaPayload struct {
	Whitelist uint64 `json:"whitelist"`
	FreeMint  uint64 `json:"freeMint"`
}

// MintRequest is the body of POST /mint and POST /claim-free-mint. Proof
// elements are 0x-prefixed 32-byte hashes; payment is a decimal wei string.
type MintRequest struct {
	Address  string       `json:"address"`
	Quantity uint64       `json:"quantity"`
	Entry    quotaPayload `json:"entry"`
	Proof    []string     `json:"proof"`
	Payment  string       `json:"payment,omitempty"`
}

// Receipt is the success response for mint, claim, and pill endpoints.
type Receipt struct {
	ReceiptID string   `json:"receiptId"`
	TokenIDs  []uint64 `json:"tokenIds"`
	Paid      string   `json:"paid"`
	Refund    string   `json:"refund"`
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req MintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	addr, ok := parseAddress(req.Address)
	if !ok {
		writeBadRequest(w, "invalid address")
		return
	}
	proof, ok := parseProof(req.Proof)
	if !ok {
		writeBadRequest(w, "invalid proof element")
		return
	}
	payment, ok := parsePayment(req.Payment)
	if !ok {
		writeBadRequest(w, "invalid payment amount")
		return
	}

	entry := entitlement.Entry{
		Address: addr,
		Quota: entitlement.Quota{
			Whitelist: req.Entry.Whitelist,
			FreeMint:  req.Entry.FreeMint,
		},
	}
	res, err := s.cfg.Distributor.Mint(r.Context(), addr, req.Quantity, entry, proof, payment)
	if err != nil {
		metrics.RecordMint("mint", 0, err)
		writeError(w, s.log, err)
		return
	}
	metrics.RecordMint("mint", len(res.TokenIDs), nil)

	writeJSON(w, http.StatusOK, Receipt{
		ReceiptID: uuid.NewString(),
		TokenIDs:  res.TokenIDs,
		Paid:      res.Paid.Dec(),
		Refund:    res.Refund.Dec(),
	})
}

func (s *Server) handleClaimFreeMint(w http.ResponseWriter, r *http.Request) {
	var req MintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	addr, ok := parseAddress(req.Address)
	if !ok {
		writeBadRequest(w, "invalid address")
		return
	}
	proof, ok := parseProof(req.Proof)
	if !ok {
		writeBadRequest(w, "invalid proof element")
		return
	}

	entry := entitlement.Entry{
		Address: addr,
		Quota: entitlement.Quota{
			Whitelist: req.Entry.Whitelist,
			FreeMint:  req.Entry.FreeMint,
		},
	}
	res, err := s.cfg.Distributor.ClaimFreeMint(r.Context(), addr, req.Quantity, entry, proof)
	if err != nil {
		metrics.RecordMint("free_claim", 0, err)
		writeError(w, s.log, err)
		return
	}
	metrics.RecordMint("free_claim", len(res.TokenIDs), nil)

	writeJSON(w, http.StatusOK, Receipt{
		ReceiptID: uuid.NewString(),
		TokenIDs:  res.TokenIDs,
		Paid:      res.Paid.Dec(),
		Refund:    res.Refund.Dec(),
	})
}

func parseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func parseProof(elements []string) (entitlement.Proof, bool) {
	proof := make(entitlement.Proof, 0, len(elements))
	for _, e := range elements {
		b := common.FromHex(e)
		if len(b) != common.HashLength {
			return nil, false
		}
		proof = append(proof, common.BytesToHash(b))
	}
	return proof, true
}

func parsePayment(s string) (*uint256.Int, bool) {
	if s == "" {
		return uint256.NewInt(0), true
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, false
	}
	return v, true
}
