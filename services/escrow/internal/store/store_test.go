package store

import (
	"database/sql"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pledge/pkg/escrow"
)

type fakeRow struct {
	err  error
	vals []any
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, v := range r.vals {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *int64:
			*d = v.(int64)
		case *sql.NullInt16:
			if v == nil {
				*d = sql.NullInt16{}
			} else {
				*d = sql.NullInt16{Int16: v.(int16), Valid: true}
			}
		case *sql.NullInt64:
			if v == nil {
				*d = sql.NullInt64{}
			} else {
				*d = sql.NullInt64{Int64: v.(int64), Valid: true}
			}
		}
	}
	return nil
}

func TestScanPledge(t *testing.T) {
	row := fakeRow{vals: []any{
		"plg_1", "acct_owner", "asset_usdc", int64(1_000_000), int64(1_700_600_000),
		"REPORTED", int16(80), int64(1_700_600_100), int64(1_700_000_000),
	}}
	p, err := scanPledge(row)
	require.NoError(t, err)
	assert.Equal(t, "plg_1", p.ID)
	assert.Equal(t, uint64(1_000_000), p.StakeAmount)
	assert.Equal(t, escrow.StatusReported, p.Status)
	require.NotNil(t, p.CompletionPercentage)
	assert.Equal(t, uint8(80), *p.CompletionPercentage)
	require.NotNil(t, p.ReportedAt)
	assert.Equal(t, int64(1_700_600_100), *p.ReportedAt)
}

func TestScanPledgeNullOptionals(t *testing.T) {
	row := fakeRow{vals: []any{
		"plg_1", "acct_owner", "asset_usdc", int64(5), int64(10), "ACTIVE", nil, nil, int64(1),
	}}
	p, err := scanPledge(row)
	require.NoError(t, err)
	assert.Nil(t, p.CompletionPercentage)
	assert.Nil(t, p.ReportedAt)
}

func TestScanPledgeNotFound(t *testing.T) {
	_, err := scanPledge(fakeRow{err: pgx.ErrNoRows})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPctColumn(t *testing.T) {
	assert.Nil(t, pctColumn(nil))
	v := uint8(100)
	assert.Equal(t, int16(100), pctColumn(&v))
}
