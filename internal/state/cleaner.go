package state

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Proton-105/teller/internal/atm"
)

// Cleaner ends teller sessions that have been idle for longer than the session TTL. Cash is kept;
// only the phase and the key buffer are reset.
type Cleaner struct {
	controller Controller
	log        *slog.Logger
	ttl        time.Duration
	interval   time.Duration
	now        func() time.Time
}

// NewCleaner constructs a Cleaner instance.
func NewCleaner(controller Controller, log *slog.Logger, ttl, interval time.Duration) *Cleaner {
	if log == nil {
		log = slog.Default()
	}

	return &Cleaner{
		controller: controller,
		log:        log,
		ttl:        ttl,
		interval:   interval,
		now:        time.Now,
	}
}

// Run starts the cleanup loop until the context is cancelled.
func (c *Cleaner) Run(ctx context.Context) {
	if c == nil || c.controller == nil || c.interval <= 0 {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			reason := ctx.Err()
			if reason != nil {
				c.log.Info("session cleaner stopped", slog.String("reason", reason.Error()))
			} else {
				c.log.Info("session cleaner stopped")
			}
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

// cleanup returns the number of sessions it reset.
func (c *Cleaner) cleanup(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}

	states, err := c.controller.GetAllStates(ctx)
	if err != nil {
		c.log.Error("session cleaner failed to list terminals", slog.Any("error", err))
		return 0
	}

	reset := 0
	for _, st := range states {
		if ctx.Err() != nil {
			return reset
		}
		if st == nil || !c.expired(st) {
			continue
		}

		if _, err := c.controller.Reset(ctx, st.TerminalID); err != nil {
			if errors.Is(err, ErrStateLocked) {
				c.log.Debug("session cleaner skipped busy terminal", slog.String("terminal_id", st.TerminalID))
			} else {
				c.log.Error("session cleaner failed to reset terminal", slog.String("terminal_id", st.TerminalID), slog.Any("error", err))
			}
			continue
		}

		reset++
		c.log.Info("teller session expired", slog.String("terminal_id", st.TerminalID), slog.String("phase", st.Snapshot.Phase.String()))
	}

	return reset
}

func (c *Cleaner) expired(st *TerminalState) bool {
	idle := st.Snapshot.Phase.Kind == atm.PhaseWaiting && len(st.Snapshot.Keystrokes) == 0
	return !idle && c.now().Sub(st.UpdatedAt) > c.ttl
}
