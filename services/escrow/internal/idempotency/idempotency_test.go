package idempotency

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	status int
	body   map[string]any
	found  bool
	getErr error
	saveN  int
}

func (f *fakeStore) GetIdempotencyRecord(ctx context.Context, account, idempotencyKey, endpoint string) (int, map[string]any, bool, error) {
	if f.getErr != nil {
		return 0, nil, false, f.getErr
	}
	return f.status, f.body, f.found, nil
}

func (f *fakeStore) SaveIdempotencyRecord(ctx context.Context, account, idempotencyKey, endpoint string, responseStatus int, responseBody map[string]any) error {
	f.status = responseStatus
	f.body = responseBody
	f.found = true
	f.saveN++
	return nil
}

func TestReplayWithoutKeyIsNoop(t *testing.T) {
	st := &fakeStore{}
	_, _, replayed, err := Replay(context.Background(), st, Caller{Account: "acct_1"}, "POST /escrow/pledges")
	require.NoError(t, err)
	assert.False(t, replayed)
}

func TestSaveThenReplayReturnsSamePayload(t *testing.T) {
	st := &fakeStore{}
	caller := Caller{Account: "acct_1", IdempotencyKey: "k1"}
	resp := map[string]any{"request_id": "req_1", "pledge_id": "plg_1"}

	require.NoError(t, Save(context.Background(), st, caller, "POST /escrow/pledges", 201, resp))
	status, body, replayed, err := Replay(context.Background(), st, caller, "POST /escrow/pledges")
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, 201, status)
	assert.Equal(t, resp, body)
	assert.Equal(t, 1, st.saveN)
}

func TestReplayPropagatesStoreError(t *testing.T) {
	st := &fakeStore{getErr: errors.New("db down")}
	_, _, _, err := Replay(context.Background(), st, Caller{Account: "acct_1", IdempotencyKey: "k1"}, "POST /escrow/pledges")
	require.Error(t, err)
}

func TestSaveWithoutKeyIsNoop(t *testing.T) {
	st := &fakeStore{}
	require.NoError(t, Save(context.Background(), st, Caller{Account: "acct_1"}, "POST /escrow/pledges", 201, nil))
	assert.Zero(t, st.saveN)
}
