package errors

import (
	"context"
	"errors"
	"log/slog"

	"github.com/getsentry/sentry-go"

	"github.com/Proton-105/teller/pkg/logger"
)

// Handler logs errors, reports severe ones to Sentry and picks the message shown to the customer.
type Handler struct {
	log           *slog.Logger
	sentryEnabled bool
}

// NewHandler creates a Handler. Sentry reporting requires sentry.Init to have run.
func NewHandler(log *slog.Logger, sentryEnabled bool) *Handler {
	if log == nil {
		log = slog.Default()
	}

	return &Handler{
		log:           log,
		sentryEnabled: sentryEnabled,
	}
}

// Handle returns the user-facing message for err and whether the caller may retry.
// Errors that are not AppErrors are treated as high severity and never retryable.
func (h *Handler) Handle(ctx context.Context, err error) (string, bool) {
	if err == nil {
		return "", false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	appErr, known := classify(err)

	attrs := make([]slog.Attr, 0, 5)
	if known {
		attrs = append(attrs, slog.String("code", appErr.Code))
	}
	attrs = append(attrs,
		slog.String("message", appErr.Message),
		slog.String("severity", string(appErr.Severity)),
		slog.Bool("retryable", appErr.Retryable),
	)
	if correlationID := logger.CorrelationIDFromContext(ctx); correlationID != "" {
		attrs = append(attrs, slog.String("correlation_id", correlationID))
	}

	level, msg := slog.LevelError, "application error"
	switch {
	case !known:
		msg = "unknown error"
	case appErr.Severity == SeverityLow:
		level = slog.LevelWarn
	}
	h.log.LogAttrs(ctx, level, msg, attrs...)

	if h.sentryEnabled && (appErr.Severity == SeverityCritical || appErr.Severity == SeverityHigh) {
		h.report(ctx, err, appErr)
	}

	userMessage := appErr.UserMessage
	if userMessage == "" {
		userMessage = defaultUserMessage
	}
	return userMessage, appErr.Retryable
}

func classify(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		return appErr, true
	}

	return &AppError{Message: err.Error(), Severity: SeverityHigh}, false
}

// report sends err to the request's Sentry hub when one is attached, else to the current hub.
func (h *Handler) report(ctx context.Context, err error, appErr *AppError) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}

	hub.WithScope(func(scope *sentry.Scope) {
		if appErr.Code != "" {
			scope.SetTag("code", appErr.Code)
		}
		scope.SetTag("severity", string(appErr.Severity))
		if correlationID := logger.CorrelationIDFromContext(ctx); correlationID != "" {
			scope.SetTag("correlation_id", correlationID)
		}

		hub.CaptureException(err)
	})
}
