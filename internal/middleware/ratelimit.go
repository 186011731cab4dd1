package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/Proton-105/teller/internal/errors"
	"github.com/Proton-105/teller/internal/ratelimit"
	"github.com/Proton-105/teller/pkg/metrics"
)

// TerminalIDParam is the chi URL parameter that names a terminal.
const TerminalIDParam = "id"

// RateLimitMiddleware enforces per-terminal rate limits on keypad requests.
type RateLimitMiddleware struct {
	limiter ratelimit.Limiter
	rules   *ratelimit.Rules
	log     *slog.Logger
	now     func() time.Time
}

// NewRateLimitMiddleware constructs a rate-limit middleware component.
func NewRateLimitMiddleware(limiter ratelimit.Limiter, rules *ratelimit.Rules, log *slog.Logger) *RateLimitMiddleware {
	if log == nil {
		log = slog.Default()
	}

	return &RateLimitMiddleware{
		limiter: limiter,
		rules:   rules,
		log:     log,
		now:     time.Now,
	}
}

// PerTerminal limits every request addressed to one terminal.
func (m *RateLimitMiddleware) PerTerminal(next http.Handler) http.Handler {
	return m.handle(next, "terminal", m.rules.GetPerTerminalLimit)
}

// CardSwipes limits card swipes, each of which opens a new PIN attempt.
func (m *RateLimitMiddleware) CardSwipes(next http.Handler) http.Handler {
	return m.handle(next, "card", m.rules.GetCardSwipeLimit)
}

func (m *RateLimitMiddleware) handle(next http.Handler, scope string, rule func() (int, time.Duration, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		terminalID := chi.URLParam(r, TerminalIDParam)
		if m.limiter == nil || !m.rules.Enabled() || terminalID == "" || m.rules.IsWhitelisted(terminalID) {
			next.ServeHTTP(w, r)
			return
		}

		limit, window, err := rule()
		if err != nil {
			m.log.Error("failed to load rate limit rule", slog.String("scope", scope), slog.Any("error", err))
			next.ServeHTTP(w, r)
			return
		}

		result, err := m.limiter.Check(r.Context(), scope+":"+terminalID, limit, window)
		switch {
		case err == nil:
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			next.ServeHTTP(w, r)
		case errors.Is(err, ratelimit.ErrLimitExceeded):
			retryAfter := result.RetryAfter(m.now())
			appErr := apperrors.NewRateLimitError(retryAfter)
			metrics.RecordError(appErr.Code, string(appErr.Severity))
			m.log.Warn("rate limit exceeded", slog.String("terminal_id", terminalID), slog.String("scope", scope))

			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeError(w, http.StatusTooManyRequests, errorBody{Error: appErr.UserMessage, Code: appErr.Code, Retryable: true})
		default:
			m.log.Warn("rate limiter error", slog.String("terminal_id", terminalID), slog.Any("error", err))
			next.ServeHTTP(w, r)
		}
	})
}
