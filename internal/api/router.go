package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Proton-105/teller/internal/lifecycle"
	"github.com/Proton-105/teller/internal/middleware"
	"github.com/Proton-105/teller/pkg/logger"
)

// RouterOptions configures the optional parts of the router.
type RouterOptions struct {
	// RateLimit throttles keypad traffic; nil disables limiting.
	RateLimit *middleware.RateLimitMiddleware
	// Idempotency replays mutating requests that repeat an Idempotency-Key; nil disables it.
	Idempotency func(http.Handler) http.Handler
	// Probes answers /healthz and /readyz; nil always reports healthy.
	Probes lifecycle.HealthChecker
	// Timeout bounds request handling.
	Timeout time.Duration
	// Reconcile queues vault reconciliations; nil hides the reconcile routes.
	Reconcile ReconcileQueue
}

// NewRouter builds the HTTP surface of the service.
//
//	GET    /terminals
//	GET    /terminals/{id}
//	POST   /terminals/{id}/card         {"pin":"1234"}
//	POST   /terminals/{id}/keys         {"key":"3"}
//	POST   /terminals/{id}/restock      {"cash":100}
//	DELETE /terminals/{id}/session
//	GET    /terminals/{id}/withdrawals  (vault only)
//	POST   /terminals/{id}/reconcile    (vault only)
//	POST   /reconcile                   (vault only)
//	GET    /healthz, /readyz, /metrics
func NewRouter(h *Handler, log *slog.Logger, opts RouterOptions) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	if opts.Probes == nil {
		opts.Probes = lifecycle.NewProbes(log, nil)
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(logger.Middleware)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Metrics)
	if opts.Timeout > 0 {
		r.Use(chimiddleware.Timeout(opts.Timeout))
	}

	r.Get("/healthz", probeHandler(opts.Probes.Liveness))
	r.Get("/readyz", probeHandler(opts.Probes.Readiness))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	if opts.Reconcile != nil {
		r.Post("/reconcile", h.reconcile(opts.Reconcile))
	}

	r.Route("/terminals", func(r chi.Router) {
		r.Get("/", h.listTerminals)

		r.Route("/{"+middleware.TerminalIDParam+"}", func(r chi.Router) {
			if opts.RateLimit != nil {
				r.Use(opts.RateLimit.PerTerminal)
			}
			if opts.Idempotency != nil {
				r.Use(opts.Idempotency)
			}

			r.Get("/", h.getTerminal)
			if opts.RateLimit != nil {
				r.With(opts.RateLimit.CardSwipes).Post("/card", h.swipeCard)
			} else {
				r.Post("/card", h.swipeCard)
			}
			r.Post("/keys", h.pressKey)
			r.Post("/restock", h.restock)
			r.Delete("/session", h.resetSession)
			if h.withdrawals != nil {
				r.Get("/withdrawals", h.listWithdrawals)
			}
			if opts.Reconcile != nil {
				r.Post("/reconcile", h.reconcile(opts.Reconcile))
			}
		})
	})

	return r
}
