package custody

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pledge/pkg/escrow"
)

type transferRec struct {
	direction    string
	counterparty string
	amount       int64
	reason       string
}

// fakeTx emulates the custody tables for the statements this package issues.
type fakeTx struct {
	exists    bool
	balance   int64
	status    string
	transfers []transferRec
}

func (f *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	switch {
	case strings.Contains(sql, "INSERT INTO custody_accounts"):
		f.exists = true
		f.balance = args[2].(int64)
		f.status = "OPEN"
		return pgconn.NewCommandTag("INSERT 0 1"), nil

	case strings.Contains(sql, "SET balance = balance -"):
		amount := args[1].(int64)
		if f.status != "OPEN" || f.balance < amount {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		}
		f.balance -= amount
		return pgconn.NewCommandTag("UPDATE 1"), nil

	case strings.Contains(sql, "SET status = 'CLOSED'"):
		f.status = "CLOSED"
		return pgconn.NewCommandTag("UPDATE 1"), nil

	case strings.Contains(sql, "INSERT INTO custody_transfers"):
		f.transfers = append(f.transfers, transferRec{
			direction:    args[2].(string),
			counterparty: args[3].(string),
			amount:       args[4].(int64),
			reason:       args[5].(string),
		})
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	}
	panic("unexpected statement: " + sql)
}

type fakeRow struct {
	err  error
	vals []any
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*int64) = r.vals[0].(int64)
	*dest[1].(*string) = r.vals[1].(string)
	return nil
}

func (f *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if !strings.Contains(sql, "SELECT balance, status FROM custody_accounts") {
		panic("unexpected query: " + sql)
	}
	if !f.exists {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{vals: []any{f.balance, f.status}}
}

func TestOpenRecordsDepositAndFullBalance(t *testing.T) {
	tx := &fakeTx{}
	require.NoError(t, Open(context.Background(), tx, "plg_1", "asset_usdc", 1_000_000))
	assert.Equal(t, int64(1_000_000), tx.balance)
	require.Len(t, tx.transfers, 1)
	assert.Equal(t, "IN", tx.transfers[0].direction)
	assert.Equal(t, "STAKE_DEPOSIT", tx.transfers[0].reason)
}

func TestVerifyStake(t *testing.T) {
	tx := &fakeTx{}
	ctx := context.Background()
	require.NoError(t, Open(ctx, tx, "plg_1", "asset_usdc", 500))

	require.NoError(t, VerifyStake(ctx, tx, "plg_1", 500))
	require.ErrorIs(t, VerifyStake(ctx, tx, "plg_1", 499), ErrMismatch)
}

func TestVerifyStakeMissingAccount(t *testing.T) {
	tx := &fakeTx{}
	require.ErrorIs(t, VerifyStake(context.Background(), tx, "plg_1", 1), ErrNotFound)
}

func TestDisburseDebitsAndRecords(t *testing.T) {
	tx := &fakeTx{}
	ctx := context.Background()
	require.NoError(t, Open(ctx, tx, "plg_1", "asset_usdc", 1000))

	d := escrow.Disbursement{To: "acct_treasury", Amount: 700}
	require.NoError(t, Disburse(ctx, tx, "plg_1", d, "SETTLEMENT"))
	assert.Equal(t, int64(300), tx.balance)
	require.Len(t, tx.transfers, 2)
	assert.Equal(t, "OUT", tx.transfers[1].direction)
	assert.Equal(t, "acct_treasury", tx.transfers[1].counterparty)
}

func TestDisburseZeroAmountIsNoop(t *testing.T) {
	tx := &fakeTx{}
	ctx := context.Background()
	require.NoError(t, Open(ctx, tx, "plg_1", "asset_usdc", 1000))
	require.NoError(t, Disburse(ctx, tx, "plg_1", escrow.Disbursement{To: "acct_x"}, "SETTLEMENT"))
	assert.Equal(t, int64(1000), tx.balance)
	assert.Len(t, tx.transfers, 1)
}

func TestDisburseOverdrawFails(t *testing.T) {
	tx := &fakeTx{}
	ctx := context.Background()
	require.NoError(t, Open(ctx, tx, "plg_1", "asset_usdc", 100))

	err := Disburse(ctx, tx, "plg_1", escrow.Disbursement{To: "acct_x", Amount: 101}, "SETTLEMENT")
	require.ErrorIs(t, err, ErrInsufficient)
	assert.Equal(t, int64(100), tx.balance, "a failed disbursement must not move funds")
}

func TestCloseRequiresZeroBalance(t *testing.T) {
	tx := &fakeTx{}
	ctx := context.Background()
	require.NoError(t, Open(ctx, tx, "plg_1", "asset_usdc", 100))

	require.ErrorIs(t, Close(ctx, tx, "plg_1"), ErrNotEmpty)

	require.NoError(t, Disburse(ctx, tx, "plg_1", escrow.Disbursement{To: "acct_owner", Amount: 100}, "SETTLEMENT"))
	require.NoError(t, Close(ctx, tx, "plg_1"))
	assert.Equal(t, "CLOSED", tx.status)
}

func TestCloseIsExactlyOnce(t *testing.T) {
	tx := &fakeTx{}
	ctx := context.Background()
	require.NoError(t, Open(ctx, tx, "plg_1", "asset_usdc", 0))
	require.NoError(t, Close(ctx, tx, "plg_1"))
	require.ErrorIs(t, Close(ctx, tx, "plg_1"), ErrClosed)
}

func TestDisburseAfterCloseFails(t *testing.T) {
	tx := &fakeTx{}
	ctx := context.Background()
	require.NoError(t, Open(ctx, tx, "plg_1", "asset_usdc", 0))
	require.NoError(t, Close(ctx, tx, "plg_1"))

	err := Disburse(ctx, tx, "plg_1", escrow.Disbursement{To: "acct_x", Amount: 1}, "SETTLEMENT")
	require.ErrorIs(t, err, ErrInsufficient)
}
