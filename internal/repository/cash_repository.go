// Package repository implements the Postgres-backed cash vault.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Proton-105/teller/internal/state"
)

// Withdrawal is one journaled payout.
type Withdrawal struct {
	ID         int64
	TerminalID string
	Amount     uint64
	Remaining  uint64
	CreatedAt  time.Time
}

// CashRepository keeps the durable cash balance of every terminal and its withdrawal journal.
type CashRepository interface {
	state.Vault
	ListWithdrawals(ctx context.Context, terminalID string, limit int) ([]Withdrawal, error)
}

type cashRepository struct {
	db  *sql.DB
	log *slog.Logger
}

// NewCashRepository creates a new SQL-backed cash repository.
func NewCashRepository(db *sql.DB, log *slog.Logger) CashRepository {
	if log == nil {
		log = slog.Default()
	}

	return &cashRepository{
		db:  db,
		log: log,
	}
}

// GetCash returns the cash on hand of a terminal or state.ErrTerminalNotFound.
func (r *cashRepository) GetCash(ctx context.Context, terminalID string) (uint64, error) {
	const query = `SELECT cash FROM terminals WHERE id = $1`

	var cash int64
	if err := r.db.QueryRowContext(ctx, query, terminalID).Scan(&cash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, state.ErrTerminalNotFound
		}

		r.log.Error("failed to fetch terminal cash", slog.String("terminal_id", terminalID), slog.Any("error", err))
		return 0, fmt.Errorf("select terminal cash: %w", err)
	}

	return uint64(cash), nil
}

// SetCash registers a terminal or restocks it to the given amount.
func (r *cashRepository) SetCash(ctx context.Context, terminalID string, cash uint64) error {
	const query = `
		INSERT INTO terminals (id, cash)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET cash = EXCLUDED.cash, updated_at = NOW()
	`

	if cash > state.MaxCash {
		return fmt.Errorf("upsert terminal cash: %d exceeds %d", cash, state.MaxCash)
	}

	if _, err := r.db.ExecContext(ctx, query, terminalID, int64(cash)); err != nil {
		r.log.Error("failed to set terminal cash", slog.String("terminal_id", terminalID), slog.Any("error", err))
		return fmt.Errorf("upsert terminal cash: %w", err)
	}

	return nil
}

// RecordWithdrawal journals a payout and stores the remaining balance in one transaction.
func (r *cashRepository) RecordWithdrawal(ctx context.Context, terminalID string, amount, remaining uint64) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin withdrawal transaction: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			r.log.Error("withdrawal rollback error", slog.String("terminal_id", terminalID), slog.Any("error", rbErr))
		}
	}()

	const updateBalance = `UPDATE terminals SET cash = $2, updated_at = NOW() WHERE id = $1`
	res, err := tx.ExecContext(ctx, updateBalance, terminalID, int64(remaining))
	if err != nil {
		return fmt.Errorf("update terminal cash: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update terminal cash: %w", err)
	}
	if affected == 0 {
		return state.ErrTerminalNotFound
	}

	const insertJournal = `INSERT INTO withdrawals (terminal_id, amount, remaining) VALUES ($1, $2, $3)`
	if _, err = tx.ExecContext(ctx, insertJournal, terminalID, int64(amount), int64(remaining)); err != nil {
		return fmt.Errorf("insert withdrawal: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit withdrawal: %w", err)
	}

	r.log.Info("withdrawal recorded",
		slog.String("terminal_id", terminalID),
		slog.Uint64("amount", amount),
		slog.Uint64("remaining", remaining),
	)
	return nil
}

// ListWithdrawals returns the most recent payouts of a terminal, newest first.
func (r *cashRepository) ListWithdrawals(ctx context.Context, terminalID string, limit int) ([]Withdrawal, error) {
	const query = `
		SELECT id, terminal_id, amount, remaining, created_at
		FROM withdrawals
		WHERE terminal_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx, query, terminalID, limit)
	if err != nil {
		r.log.Error("failed to list withdrawals", slog.String("terminal_id", terminalID), slog.Any("error", err))
		return nil, fmt.Errorf("select withdrawals: %w", err)
	}
	defer rows.Close()

	var result []Withdrawal
	for rows.Next() {
		var (
			w                 Withdrawal
			amount, remaining int64
		)
		if err := rows.Scan(&w.ID, &w.TerminalID, &amount, &remaining, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan withdrawal: %w", err)
		}
		w.Amount, w.Remaining = uint64(amount), uint64(remaining)
		result = append(result, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate withdrawals: %w", err)
	}

	return result, nil
}
