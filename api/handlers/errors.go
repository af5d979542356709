package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/spacesquad/mintgate/collector"
	"github.com/spacesquad/mintgate/distributor"
	"github.com/spacesquad/mintgate/pharmacy"
)

// ErrorResponse is the JSON body for every rejected request.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// mapping pins each rejection reason to a status code and a stable reason
// string clients can branch on.
var errorMapping = []struct {
	err    error
	status int
	reason string
}{
	{distributor.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{distributor.ErrNotStarted, http.StatusConflict, "not_started"},
	{distributor.ErrPaused, http.StatusConflict, "paused"},
	{distributor.ErrSoldOut, http.StatusConflict, "sold_out"},
	{distributor.ErrAlreadyClaimed, http.StatusConflict, "already_claimed"},
	{distributor.ErrClaimDeadlinePassed, http.StatusConflict, "claim_deadline_passed"},
	{distributor.ErrReserveProtected, http.StatusConflict, "reserve_protected"},
	{distributor.ErrInvalidProof, http.StatusForbidden, "invalid_proof"},
	{distributor.ErrQuotaExceeded, http.StatusUnprocessableEntity, "quota_exceeded"},
	{distributor.ErrMustClaimFreeMintFirst, http.StatusUnprocessableEntity, "must_claim_free_mint_first"},
	{distributor.ErrInsufficientPayment, http.StatusPaymentRequired, "insufficient_payment"},
	{distributor.ErrInvalidPrice, http.StatusBadRequest, "invalid_price"},
	{pharmacy.ErrMaxPerTx, http.StatusUnprocessableEntity, "max_per_tx"},
	{pharmacy.ErrNotEligible, http.StatusUnprocessableEntity, "not_eligible"},
	{collector.ErrNothingToDistribute, http.StatusConflict, "nothing_to_distribute"},
	{collector.ErrNoBeneficiaries, http.StatusBadRequest, "no_beneficiaries"},
}

func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			writeJSON(w, m.status, ErrorResponse{Error: err.Error(), Reason: m.reason})
			return
		}
	}
	log.Error("request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error", Reason: "internal"})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: msg, Reason: "invalid_request"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
