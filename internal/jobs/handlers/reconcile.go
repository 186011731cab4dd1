package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/teller/internal/jobs"
	"github.com/Proton-105/teller/internal/state"
)

// ReconcileHandler aligns terminal snapshots with the cash vault.
type ReconcileHandler struct {
	controller state.Controller
	log        *slog.Logger
}

func NewReconcileHandler(controller state.Controller, log *slog.Logger) *ReconcileHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ReconcileHandler{controller: controller, log: log}
}

// ProcessTask reconciles the terminals named in the payload, or all stored terminals. Terminals that
// fail are reported together so asynq retries the task.
func (h *ReconcileHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload, err := jobs.DecodeReconcilePayload(t)
	if err != nil {
		h.log.ErrorContext(ctx, "reconcile: failed to decode payload", slog.String("task_type", t.Type()), slog.String("error", err.Error()))
		return err
	}

	terminalIDs := payload.TerminalIDs
	if len(terminalIDs) == 0 {
		states, err := h.controller.GetAllStates(ctx)
		if err != nil {
			return fmt.Errorf("list terminals: %w", err)
		}
		for _, st := range states {
			terminalIDs = append(terminalIDs, st.TerminalID)
		}
	}

	var (
		errs    []error
		drifted int
	)
	for _, id := range terminalIDs {
		result, err := h.controller.Reconcile(ctx, id)
		switch {
		case errors.Is(err, state.ErrStateNotFound):
			continue
		case errors.Is(err, state.ErrNoVault):
			return fmt.Errorf("reconcile: %v: %w", err, asynq.SkipRetry)
		case err != nil:
			errs = append(errs, fmt.Errorf("terminal %s: %w", id, err))
			continue
		}
		if result.Drifted() {
			drifted++
		}
	}

	h.log.InfoContext(ctx, "reconcile finished",
		slog.Int("terminals", len(terminalIDs)),
		slog.Int("drifted", drifted),
		slog.Int("failed", len(errs)),
	)

	return errors.Join(errs...)
}
