package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Proton-105/teller/internal/atm"
	"github.com/Proton-105/teller/internal/state"
)

const defaultCollectInterval = 10 * time.Second

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teller_http_requests_total",
			Help: "Total number of API requests labeled by route and status class",
		},
		[]string{"route", "status"},
	)
	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "teller_http_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	phaseTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teller_phase_transitions_total",
			Help: "Total number of teller transitions labeled by phase before and after",
		},
		[]string{"from", "to"},
	)
	outcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teller_outcomes_total",
			Help: "Total number of teller actions labeled by outcome",
		},
		[]string{"reason"},
	)
	cashDispensedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teller_cash_dispensed_total",
			Help: "Cash units dispensed per terminal",
		},
		[]string{"terminal"},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teller_errors_total",
			Help: "Total number of errors split by code and severity",
		},
		[]string{"code", "severity"},
	)
	activeTerminals = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "teller_terminals",
			Help: "Current number of terminals with a stored snapshot",
		},
	)
	terminalsByPhase = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "teller_terminals_by_phase",
			Help: "Number of terminals per authentication phase",
		},
		[]string{"phase"},
	)
	cashAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "teller_cash_available",
			Help: "Cash on hand per terminal",
		},
		[]string{"terminal"},
	)
)

var trackedPhases = []atm.PhaseKind{
	atm.PhaseWaiting,
	atm.PhaseAuthenticating,
	atm.PhaseAuthenticated,
}

func init() {
	state.RegisterTransitionRecorder(RecordTransition)
}

// RecordRequest increments request counters and records duration.
func RecordRequest(route, status string, duration time.Duration) {
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "unknown"
	}

	httpRequestsTotal.WithLabelValues(route, status).Inc()
	httpRequestDurationSeconds.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordTransition tracks one applied teller action.
func RecordTransition(t state.Transition) {
	phaseTransitionsTotal.WithLabelValues(t.From.String(), t.To.String()).Inc()
	outcomesTotal.WithLabelValues(t.Outcome.Reason.String()).Inc()

	if amount := t.Dispensed(); amount > 0 {
		cashDispensedTotal.WithLabelValues(t.TerminalID).Add(float64(amount))
	}
	cashAvailable.WithLabelValues(t.TerminalID).Set(float64(t.Snapshot.Cash))
}

// RecordError increments error counters with metadata.
func RecordError(code, severity string) {
	if code == "" {
		code = "unknown"
	}
	if severity == "" {
		severity = "unknown"
	}

	errorsTotal.WithLabelValues(code, severity).Inc()
}

// StateCollector periodically gathers terminal phase counts and cash levels.
type StateCollector struct {
	controller state.Controller
	log        *slog.Logger
	interval   time.Duration
}

// NewStateCollector builds a metrics collector bound to the provided controller.
func NewStateCollector(controller state.Controller, log *slog.Logger, interval time.Duration) *StateCollector {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = defaultCollectInterval
	}

	return &StateCollector{controller: controller, log: log, interval: interval}
}

// Run polls the controller every interval until ctx is cancelled.
func (c *StateCollector) Run(ctx context.Context) {
	if c == nil || c.controller == nil {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if err := c.collect(ctx); err != nil {
			c.log.Warn("failed to collect terminal metrics", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *StateCollector) collect(ctx context.Context) error {
	states, err := c.controller.GetAllStates(ctx)
	if err != nil {
		return err
	}

	activeTerminals.Set(float64(len(states)))

	phaseCounts := make(map[atm.PhaseKind]int, len(trackedPhases))
	cashAvailable.Reset()
	for _, st := range states {
		if st == nil {
			continue
		}
		phaseCounts[st.Snapshot.Phase.Kind]++
		cashAvailable.WithLabelValues(st.TerminalID).Set(float64(st.Snapshot.Cash))
	}

	terminalsByPhase.Reset()
	for _, phase := range trackedPhases {
		terminalsByPhase.WithLabelValues(phase.String()).Set(float64(phaseCounts[phase]))
	}

	return nil
}
