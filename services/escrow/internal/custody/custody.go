// Package custody manages one escrow account per pledge. The custody
// balance must equal the pledge's recorded stake while the pledge is Active
// or Reported, settlement must drain it to exactly zero, and the account is
// closed exactly once. All movement happens inside the caller's transaction
// so an operation either fully applies or fully aborts.
package custody

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"pledge/pkg/escrow"
)

var (
	ErrNotFound = errors.New("custody: account not found")
	ErrClosed   = errors.New("custody: account already closed")
	ErrNotEmpty = errors.New("custody: cannot close a non-empty account")
	// ErrMismatch means the custody balance diverged from the pledge's
	// recorded stake. That state is unreachable through this package; if it
	// is ever observed the operation must abort rather than settle.
	ErrMismatch     = errors.New("custody: balance does not match recorded stake")
	ErrInsufficient = errors.New("custody: insufficient balance")
)

// Tx is the slice of pgx.Tx this package needs. Tests substitute a fake.
type Tx interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Open creates the custody account for a new pledge and records the inbound
// funding transfer. The account starts holding the full stake.
func Open(ctx context.Context, tx Tx, pledgeID, asset string, amount uint64) error {
	_, err := tx.Exec(ctx, `
INSERT INTO custody_accounts(pledge_id, asset, balance, status)
VALUES($1, $2, $3, 'OPEN')`, pledgeID, asset, int64(amount))
	if err != nil {
		return fmt.Errorf("open custody account: %w", err)
	}
	return recordTransfer(ctx, tx, pledgeID, "IN", "owner", amount, "STAKE_DEPOSIT")
}

// Balance returns the current balance of an open custody account.
func Balance(ctx context.Context, tx Tx, pledgeID string) (uint64, error) {
	var balance int64
	var status string
	err := tx.QueryRow(ctx, `
SELECT balance, status FROM custody_accounts WHERE pledge_id = $1 FOR UPDATE`, pledgeID).
		Scan(&balance, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read custody balance: %w", err)
	}
	if status == "CLOSED" {
		return 0, ErrClosed
	}
	return uint64(balance), nil
}

// VerifyStake asserts the custody invariant before any settlement: the
// balance equals the pledge's recorded stake.
func VerifyStake(ctx context.Context, tx Tx, pledgeID string, stake uint64) error {
	balance, err := Balance(ctx, tx, pledgeID)
	if err != nil {
		return err
	}
	if balance != stake {
		return fmt.Errorf("%w: balance=%d stake=%d", ErrMismatch, balance, stake)
	}
	return nil
}

// Disburse moves one outgoing amount from custody to a counterparty. The
// balance guard is part of the UPDATE, so overdraw aborts the transaction's
// effect rather than going negative.
func Disburse(ctx context.Context, tx Tx, pledgeID string, d escrow.Disbursement, reason string) error {
	if d.Amount == 0 {
		return nil
	}
	tag, err := tx.Exec(ctx, `
UPDATE custody_accounts
SET balance = balance - $2
WHERE pledge_id = $1 AND status = 'OPEN' AND balance >= $2`, pledgeID, int64(d.Amount))
	if err != nil {
		return fmt.Errorf("disburse from custody: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return ErrInsufficient
	}
	return recordTransfer(ctx, tx, pledgeID, "OUT", d.To, d.Amount, reason)
}

// Close marks the custody account closed. Legal only once, and only when the
// balance has reached exactly zero.
func Close(ctx context.Context, tx Tx, pledgeID string) error {
	var balance int64
	var status string
	err := tx.QueryRow(ctx, `
SELECT balance, status FROM custody_accounts WHERE pledge_id = $1 FOR UPDATE`, pledgeID).
		Scan(&balance, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read custody for close: %w", err)
	}
	if status == "CLOSED" {
		return ErrClosed
	}
	if balance != 0 {
		return fmt.Errorf("%w: balance=%d", ErrNotEmpty, balance)
	}
	_, err = tx.Exec(ctx, `
UPDATE custody_accounts SET status = 'CLOSED', closed_at = now() WHERE pledge_id = $1`, pledgeID)
	if err != nil {
		return fmt.Errorf("close custody account: %w", err)
	}
	return nil
}

func recordTransfer(ctx context.Context, tx Tx, pledgeID, direction, counterparty string, amount uint64, reason string) error {
	_, err := tx.Exec(ctx, `
INSERT INTO custody_transfers(transfer_id, pledge_id, direction, counterparty, amount, reason)
VALUES($1, $2, $3, $4, $5, $6)`,
		"xfr_"+uuid.NewString(), pledgeID, direction, counterparty, int64(amount), reason)
	if err != nil {
		return fmt.Errorf("record custody transfer: %w", err)
	}
	return nil
}
