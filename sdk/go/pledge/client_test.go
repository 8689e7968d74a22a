package pledge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pledge/pkg/escrow"
)

func fastRetry(attempts int) Option {
	return WithRetry(RetryConfig{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond})
}

func TestGetPledgeDecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/escrow/pledges/plg_1", r.URL.Path)
		w.Header().Set("content-type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"request_id": "req_x",
			"pledge": map[string]any{
				"pledge_id": "plg_1", "owner": "acct_alice", "asset": "USDC",
				"stake_amount": 1000, "deadline": 1_700_604_800,
				"status": "ACTIVE", "created_at": 1_700_000_000,
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	p, err := c.GetPledge(context.Background(), "plg_1")
	require.NoError(t, err)
	require.Equal(t, "plg_1", p.ID)
	require.Equal(t, escrow.StatusActive, p.Status)
	require.Equal(t, uint64(1000), p.StakeAmount)
}

func TestErrorEnvelopeDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]any{
			"request_id": "req_err",
			"error": map[string]any{
				"code": "NOT_ADMIN", "message": "caller is not the config admin",
				"details": map[string]any{"kind": "AUTHORIZATION"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.UpdateConfig(context.Background(), "acct_mallory", escrow.ConfigUpdate{})
	var sdkErr *Error
	require.ErrorAs(t, err, &sdkErr)
	require.Equal(t, http.StatusForbidden, sdkErr.StatusCode)
	require.Equal(t, "NOT_ADMIN", sdkErr.ErrorCode)
	require.Equal(t, "req_err", sdkErr.RequestID)
	require.Equal(t, "AUTHORIZATION", sdkErr.Details["kind"])
}

func TestRetryOn503(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("content-type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"request_id": "req_y",
			"pledge":     map[string]any{"pledge_id": "plg_2", "status": "FORFEITED"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, fastRetry(3))
	p, err := c.ProcessExpired(context.Background(), "plg_2", 0)
	require.NoError(t, err)
	require.Equal(t, escrow.StatusForfeited, p.Status)
	require.Equal(t, int32(3), calls.Load())
}

func TestCreateWithoutKeyIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, fastRetry(3))
	_, err := c.CreatePledge(context.Background(), CreatePledgeParams{
		Caller: "acct_alice", Asset: "USDC", StakeAmount: 100, Deadline: 1_700_604_800,
	})
	require.Error(t, err)
	require.Equal(t, int32(1), calls.Load())
}

func TestCreateWithKeyIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		var req CreatePledgeParams
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(t, req.IdempotencyKey)
		w.Header().Set("content-type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"request_id": "req_z",
			"pledge":     map[string]any{"pledge_id": "plg_3", "status": "ACTIVE"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, fastRetry(3))
	p, err := c.CreatePledge(context.Background(), CreatePledgeParams{
		Caller: "acct_alice", Asset: "USDC", StakeAmount: 100,
		Deadline: 1_700_604_800, IdempotencyKey: NewIdempotencyKey(),
	})
	require.NoError(t, err)
	require.Equal(t, "plg_3", p.ID)
	require.Equal(t, int32(2), calls.Load())
}

func TestDomainErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("content-type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]any{
			"request_id": "req_g",
			"error":      map[string]any{"code": "GRACE_PERIOD_NOT_ENDED", "message": "grace period has not ended"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, fastRetry(3))
	_, err := c.ProcessExpired(context.Background(), "plg_4", 0)
	var sdkErr *Error
	require.ErrorAs(t, err, &sdkErr)
	require.Equal(t, "GRACE_PERIOD_NOT_ENDED", sdkErr.ErrorCode)
	require.Equal(t, int32(1), calls.Load())
}
