package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/spacesquad/mintgate/api/metrics"
	"github.com/spacesquad/mintgate/distributor"
)

type capsContextKey struct{}

// authMiddleware resolves the bearer token to a capability set. Unknown or
// missing tokens are rejected; the operation itself re-checks the specific
// capability, so a valid token with the wrong capability still fails there.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token == "" {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "missing bearer token", Reason: "unauthorized"})
			return
		}
		caps, ok := s.cfg.AdminTokens[token]
		if !ok {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unknown token", Reason: "unauthorized"})
			return
		}
		ctx := context.WithValue(r.Context(), capsContextKey{}, caps)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func capsFromContext(ctx context.Context) distributor.Caps {
	caps, _ := ctx.Value(capsContextKey{}).(distributor.Caps)
	return caps
}

func (s *Server) handleSetRoot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Root string `json:"root"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	b := common.FromHex(req.Root)
	if len(b) != common.HashLength {
		writeBadRequest(w, "root must be a 32-byte hex hash")
		return
	}
	err := s.cfg.Distributor.SetRootHash(r.Context(), capsFromContext(r.Context()), common.BytesToHash(b))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	s.log.Info("root hash updated", "root", req.Root)
	writeJSON(w, http.StatusOK, map[string]string{"root": req.Root})
}

func (s *Server) handleAdjustPrice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Price string `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	price, err := uint256.FromDecimal(req.Price)
	if err != nil {
		writeBadRequest(w, "price must be a decimal wei amount")
		return
	}
	if err := s.cfg.Distributor.AdjustPrice(r.Context(), capsFromContext(r.Context()), price); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"price": price.Dec()})
}

func (s *Server) handleReleaseDates(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReleaseDate   time.Time `json:"releaseDate"`
		WLReleaseDate time.Time `json:"wlReleaseDate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.ReleaseDate.IsZero() || req.WLReleaseDate.IsZero() {
		writeBadRequest(w, "both release dates are required")
		return
	}
	err := s.cfg.Distributor.UpdateReleaseDates(r.Context(), capsFromContext(r.Context()), req.ReleaseDate, req.WLReleaseDate)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleFreeMintContingent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Contingent uint64 `json:"contingent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	err := s.cfg.Distributor.UpdateFreeMintContingent(r.Context(), capsFromContext(r.Context()), req.Contingent)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleIssueContingent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Recipient string `json:"recipient"`
		Quantity  uint64 `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	addr, ok := parseAddress(req.Recipient)
	if !ok {
		writeBadRequest(w, "invalid recipient address")
		return
	}
	ids, err := s.cfg.Distributor.IssueContingent(r.Context(), capsFromContext(r.Context()), addr, req.Quantity)
	if err != nil {
		metrics.RecordMint("contingent", 0, err)
		writeError(w, s.log, err)
		return
	}
	metrics.RecordMint("contingent", len(ids), nil)
	writeJSON(w, http.StatusOK, map[string]any{"tokenIds": ids})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Distributor.TogglePause(r.Context(), capsFromContext(r.Context())); err != nil {
		writeError(w, s.log, err)
		return
	}
	status, err := s.cfg.Distributor.Status(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": status.Paused})
}

func (s *Server) handleUpdateCollector(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account string `json:"account"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	addr, ok := parseAddress(req.Account)
	if !ok {
		writeBadRequest(w, "invalid account address")
		return
	}
	err := s.cfg.Distributor.UpdateCollector(r.Context(), capsFromContext(r.Context()), addr)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleDistribute(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Collector == nil {
		http.NotFound(w, r)
		return
	}
	if err := s.cfg.Collector.Distribute(r.Context(), capsFromContext(r.Context())); err != nil {
		writeError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
