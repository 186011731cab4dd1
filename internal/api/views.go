package api

import (
	"time"

	"github.com/Proton-105/teller/internal/atm"
	"github.com/Proton-105/teller/internal/i18n"
	"github.com/Proton-105/teller/internal/repository"
	"github.com/Proton-105/teller/internal/state"
)

// TerminalView is the public face of a terminal. Buffered keys are counted, never shown.
type TerminalView struct {
	ID           string    `json:"id"`
	Phase        string    `json:"phase"`
	Cash         uint64    `json:"cash"`
	BufferedKeys int       `json:"buffered_keys"`
	UpdatedAt    time.Time `json:"updated_at,omitzero"`
}

// TransitionView reports one applied action.
type TransitionView struct {
	Terminal     TerminalView `json:"terminal"`
	From         string       `json:"from"`
	To           string       `json:"to"`
	Outcome      string       `json:"outcome"`
	Amount       uint64       `json:"amount,omitempty"`
	Message      string       `json:"message"`
	SessionEnded bool         `json:"session_ended"`
}

// WithdrawalView is one journaled payout.
type WithdrawalView struct {
	Amount    uint64    `json:"amount"`
	Remaining uint64    `json:"remaining"`
	CreatedAt time.Time `json:"created_at"`
}

type cardRequest struct {
	PIN string `json:"pin" validate:"required,max=64"`
}

type keyRequest struct {
	Key string `json:"key" validate:"required,max=8"`
}

type restockRequest struct {
	Cash *uint64 `json:"cash" validate:"required,max=9223372036854775807"`
}

// outcomeMessage picks the display line for a transition.
func outcomeMessage(tr i18n.Translator, t *state.Transition) string {
	reason := t.Outcome.Reason
	if reason == atm.ReasonKeyBuffered && t.To == atm.PhaseAuthenticated {
		return tr.T("outcome.amount_buffered")
	}
	return tr.T("outcome." + reason.String())
}

func newTerminalView(st *state.TerminalState) TerminalView {
	return TerminalView{
		ID:           st.TerminalID,
		Phase:        st.Snapshot.Phase.Kind.String(),
		Cash:         st.Snapshot.Cash,
		BufferedKeys: len(st.Snapshot.Keystrokes),
		UpdatedAt:    st.UpdatedAt,
	}
}

func newTransitionView(t *state.Transition, tr i18n.Translator) TransitionView {
	return TransitionView{
		Terminal: TerminalView{
			ID:           t.TerminalID,
			Phase:        t.To.String(),
			Cash:         t.Snapshot.Cash,
			BufferedKeys: len(t.Snapshot.Keystrokes),
		},
		From:         t.From.String(),
		To:           t.To.String(),
		Outcome:      t.Outcome.Reason.String(),
		Amount:       t.Dispensed(),
		Message:      outcomeMessage(tr, t),
		SessionEnded: t.Outcome.SessionEnded(),
	}
}

func newWithdrawalViews(ws []repository.Withdrawal) []WithdrawalView {
	views := make([]WithdrawalView, 0, len(ws))
	for _, w := range ws {
		views = append(views, WithdrawalView{Amount: w.Amount, Remaining: w.Remaining, CreatedAt: w.CreatedAt})
	}
	return views
}
