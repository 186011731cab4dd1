// Package api exposes simulated terminals over HTTP: a card slot and a keypad per terminal.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/Proton-105/teller/internal/atm"
	apperrors "github.com/Proton-105/teller/internal/errors"
	"github.com/Proton-105/teller/internal/i18n"
	"github.com/Proton-105/teller/internal/middleware"
	"github.com/Proton-105/teller/internal/repository"
	"github.com/Proton-105/teller/internal/state"
	"github.com/Proton-105/teller/pkg/metrics"
)

const (
	maxBodyBytes           = 1 << 10
	defaultWithdrawalLimit = 20
	maxWithdrawalLimit     = 200
)

// WithdrawalLister reads the withdrawal journal of the vault.
type WithdrawalLister interface {
	ListWithdrawals(ctx context.Context, terminalID string, limit int) ([]repository.Withdrawal, error)
}

// Handler serves the terminal endpoints.
type Handler struct {
	controller  state.Controller
	withdrawals WithdrawalLister
	errors      *apperrors.Handler
	messages    *i18n.Manager
	validate    *validator.Validate
	log         *slog.Logger
}

// NewHandler wires the endpoints to a controller. withdrawals may be nil when no vault is configured;
// messages may be nil, in which case outcomes are shown by their key.
func NewHandler(
	controller state.Controller,
	withdrawals WithdrawalLister,
	messages *i18n.Manager,
	errHandler *apperrors.Handler,
	log *slog.Logger,
) *Handler {
	if log == nil {
		log = slog.Default()
	}
	if errHandler == nil {
		errHandler = apperrors.NewHandler(log, false)
	}

	return &Handler{
		controller:  controller,
		withdrawals: withdrawals,
		errors:      errHandler,
		messages:    messages,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		log:         log,
	}
}

func (h *Handler) listTerminals(w http.ResponseWriter, r *http.Request) {
	states, err := h.controller.GetAllStates(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	views := make([]TerminalView, 0, len(states))
	for _, st := range states {
		views = append(views, newTerminalView(st))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) getTerminal(w http.ResponseWriter, r *http.Request) {
	st, err := h.controller.GetState(r.Context(), terminalID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTerminalView(st))
}

func (h *Handler) swipeCard(w http.ResponseWriter, r *http.Request) {
	var req cardRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	pin, err := atm.ParsePIN(req.PIN)
	if err != nil {
		h.fail(w, r, apperrors.NewValidationError(err.Error()))
		return
	}

	h.apply(w, r, atm.SwipeCard(atm.HashKeys(pin)))
}

func (h *Handler) pressKey(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	key, err := atm.ParseKey(req.Key)
	if err != nil {
		h.fail(w, r, apperrors.NewValidationError(err.Error()))
		return
	}

	h.apply(w, r, atm.PressKey(key))
}

func (h *Handler) restock(w http.ResponseWriter, r *http.Request) {
	var req restockRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	st, err := h.controller.Restock(r.Context(), terminalID(r), *req.Cash)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTerminalView(st))
}

func (h *Handler) resetSession(w http.ResponseWriter, r *http.Request) {
	st, err := h.controller.Reset(r.Context(), terminalID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTerminalView(st))
}

func (h *Handler) listWithdrawals(w http.ResponseWriter, r *http.Request) {
	limit := defaultWithdrawalLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxWithdrawalLimit {
			h.fail(w, r, apperrors.NewValidationError(fmt.Sprintf("limit must be between 1 and %d", maxWithdrawalLimit)))
			return
		}
		limit = parsed
	}

	ws, err := h.withdrawals.ListWithdrawals(r.Context(), terminalID(r), limit)
	if err != nil {
		h.fail(w, r, apperrors.NewVaultError(err))
		return
	}
	writeJSON(w, http.StatusOK, newWithdrawalViews(ws))
}

// apply runs one action, retrying while another request holds the terminal.
func (h *Handler) apply(w http.ResponseWriter, r *http.Request, action atm.Action) {
	var transition *state.Transition
	err := apperrors.WithRetry(r.Context(), func() error {
		var err error
		transition, err = h.controller.Apply(r.Context(), terminalID(r), action)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	tr := h.messages.FromAcceptLanguage(r.Header.Get("Accept-Language"))
	writeJSON(w, http.StatusOK, newTransitionView(transition, tr))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperrors.NewValidationError("request body is not valid JSON")
	}

	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return apperrors.NewValidationError(fmt.Sprintf("field %q failed %q", verrs[0].Field(), verrs[0].Tag()))
		}
		return apperrors.NewValidationError(err.Error())
	}

	return nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	message, retryable := h.errors.Handle(r.Context(), err)

	body := errorResponse{Error: message, Retryable: retryable}
	status := http.StatusInternalServerError

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		body.Code = appErr.Code
		status = statusFor(appErr)
		metrics.RecordError(appErr.Code, string(appErr.Severity))
	} else {
		metrics.RecordError("", string(apperrors.SeverityHigh))
	}

	writeJSON(w, status, body)
}

func terminalID(r *http.Request) string {
	return chi.URLParam(r, middleware.TerminalIDParam)
}
