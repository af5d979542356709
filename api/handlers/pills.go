package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/spacesquad/mintgate/api/metrics"
)

// PillPurchaseRequest is the body of POST /pills/purchase.
type PillPurchaseRequest struct {
	Address  string `json:"address"`
	Quantity uint64 `json:"quantity"`
	Payment  string `json:"payment,omitempty"`
}

// PillClaimRequest is the body of POST /pills/claim.
type PillClaimRequest struct {
	Address string `json:"address"`
}

func (s *Server) handlePillPurchase(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Pharmacy == nil {
		http.NotFound(w, r)
		return
	}
	var req PillPurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	addr, ok := parseAddress(req.Address)
	if !ok {
		writeBadRequest(w, "invalid address")
		return
	}
	payment, ok := parsePayment(req.Payment)
	if !ok {
		writeBadRequest(w, "invalid payment amount")
		return
	}

	rec, err := s.cfg.Pharmacy.PurchasePills(r.Context(), addr, req.Quantity, payment)
	if err != nil {
		metrics.RecordPillOp("purchase", err)
		writeError(w, s.log, err)
		return
	}
	metrics.RecordPillOp("purchase", nil)

	writeJSON(w, http.StatusOK, Receipt{
		ReceiptID: uuid.NewString(),
		TokenIDs:  rec.TokenIDs,
		Paid:      rec.Paid.Dec(),
		Refund:    rec.Refund.Dec(),
	})
}

func (s *Server) handlePillClaim(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Pharmacy == nil {
		http.NotFound(w, r)
		return
	}
	var req PillClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	addr, ok := parseAddress(req.Address)
	if !ok {
		writeBadRequest(w, "invalid address")
		return
	}

	rec, err := s.cfg.Pharmacy.ClaimFreePills(r.Context(), addr)
	if err != nil {
		metrics.RecordPillOp("claim", err)
		writeError(w, s.log, err)
		return
	}
	metrics.RecordPillOp("claim", nil)

	writeJSON(w, http.StatusOK, Receipt{
		ReceiptID: uuid.NewString(),
		TokenIDs:  rec.TokenIDs,
		Paid:      rec.Paid.Dec(),
		Refund:    rec.Refund.Dec(),
	})
}
