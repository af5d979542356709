package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mintgate_api_build_info",
			Help: "Build information of the MintGate API",
		},
		[]string{"version", "commit", "date"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mintgate_api_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mintgate_api_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mintgate_api_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Sale metrics
	MintsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mintgate_api_mints_total",
			Help: "Total number of mint attempts",
		},
		[]string{"kind", "status"}, // kind: "mint", "free_claim", "contingent"
	)

	MintedTokensTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mintgate_api_minted_tokens_total",
			Help: "Total number of tokens issued through the API",
		},
	)

	PillOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mintgate_api_pill_ops_total",
			Help: "Total number of pill purchases and claims",
		},
		[]string{"kind", "status"}, // kind: "purchase", "claim"
	)

	SalePhase = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mintgate_api_sale_phase",
			Help: "Current sale phase (0=pre, 1=whitelist, 2=public)",
		},
	)

	TotalMinted = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mintgate_api_total_minted",
			Help: "Tokens minted out of the collection",
		},
	)

	SalePaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mintgate_api_sale_paused",
			Help: "Whether the sale is paused (1=paused)",
		},
	)
)

// Middleware returns a chi middleware that records HTTP metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Use the route pattern if available, otherwise use the path
		path := chi.RouteContext(r.Context()).RoutePattern()
		if path == "" {
			path = r.URL.Path
		}

		status := strconv.Itoa(ww.Status())
		duration := time.Since(start).Seconds()

		HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// RecordMint records a mint attempt of the given kind.
func RecordMint(kind string, tokens int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	MintsTotal.WithLabelValues(kind, status).Inc()
	if tokens > 0 {
		MintedTokensTotal.Add(float64(tokens))
	}
}

// RecordPillOp records a pill purchase or claim.
func RecordPillOp(kind string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	PillOpsTotal.WithLabelValues(kind, status).Inc()
}

// RecordStatus publishes sale snapshot gauges.
func RecordStatus(phase int, totalMinted uint64, paused bool) {
	SalePhase.Set(float64(phase))
	TotalMinted.Set(float64(totalMinted))
	if paused {
		SalePaused.Set(1)
	} else {
		SalePaused.Set(0)
	}
}
