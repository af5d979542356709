// Package handlers implements the HTTP surface of the mint gate: public mint,
// claim, and pill endpoints, read-only sale views, and the capability-gated
// admin operations.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spacesquad/mintgate/api/metrics"
	"github.com/spacesquad/mintgate/collector"
	"github.com/spacesquad/mintgate/distributor"
	"github.com/spacesquad/mintgate/entitlement"
	"github.com/spacesquad/mintgate/pharmacy"
)

// VersionInfo describes the running build.
type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

type Config struct {
	Logger      *slog.Logger
	Distributor *distributor.Distributor

	// Pharmacy and Collector are optional; their routes 404 when absent.
	Pharmacy  *pharmacy.Pharmacy
	Collector *collector.Collector

	// Whitelist backs the proof lookup endpoint. It must correspond to the
	// published root for the proofs to verify.
	Whitelist entitlement.Whitelist

	// AdminTokens maps bearer tokens to capability sets.
	AdminTokens map[string]distributor.Caps

	Version VersionInfo
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Distributor == nil {
		return errors.New("distributor is required")
	}
	return nil
}

type Server struct {
	log  *slog.Logger
	cfg  Config
	tree *entitlement.Tree
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{log: cfg.Logger, cfg: cfg}
	if len(cfg.Whitelist) > 0 {
		tree, err := cfg.Whitelist.Tree()
		if err != nil {
			return nil, err
		}
		s.tree = tree
	}
	return s, nil
}

// Router builds the chi router with all routes and middleware attached.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/version", s.handleVersion)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/status", s.handleStatus)
	r.Get("/address/{addr}", s.handleAddressClaims)
	r.Get("/proof/{addr}", s.handleProof)

	r.Group(func(r chi.Router) {
		r.Use(MintRateLimitMiddleware)
		r.Post("/mint", s.handleMint)
		r.Post("/claim-free-mint", s.handleClaimFreeMint)
		r.Post("/pills/purchase", s.handlePillPurchase)
		r.Post("/pills/claim", s.handlePillClaim)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/root", s.handleSetRoot)
		r.Post("/price", s.handleAdjustPrice)
		r.Post("/release-dates", s.handleReleaseDates)
		r.Post("/free-mint-contingent", s.handleFreeMintContingent)
		r.Post("/contingent", s.handleIssueContingent)
		r.Post("/pause", s.handlePause)
		r.Post("/collector", s.handleUpdateCollector)
		r.Post("/distribute", s.handleDistribute)
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok\n")); err != nil {
		s.log.Error("failed to write healthz response", "error", err)
	}
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Version)
}
