// Package pledge is the Go client for the escrow service. It wraps the HTTP
// API in typed calls and surfaces the error envelope as *Error.
package pledge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"pledge/pkg/escrow"
)

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Error is a non-2xx response from the service. ErrorCode carries the
// domain code (NOT_ADMIN, GRACE_PERIOD_NOT_ENDED, ...) when the failure
// was a domain violation.
type Error struct {
	StatusCode int
	ErrorCode  string
	Message    string
	RequestID  string
	Details    map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("pledge sdk error: status=%d code=%s message=%s", e.StatusCode, e.ErrorCode, e.Message)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      RetryConfig
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

func WithRetry(cfg RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry:      RetryConfig{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.MaxAttempts < 1 {
		c.retry.MaxAttempts = 1
	}
	return c
}

func NewIdempotencyKey() string { return uuid.NewString() }

type InitConfigParams struct {
	Caller             string `json:"caller"`
	Treasury           string `json:"treasury"`
	Charity            string `json:"charity"`
	TreasurySplitBps   uint16 `json:"treasury_split_bps"`
	PartialFeeBps      uint16 `json:"partial_fee_bps"`
	EditPenaltyBps     uint16 `json:"edit_penalty_bps"`
	GracePeriodSeconds int64  `json:"grace_period_seconds"`
}

type CreatePledgeParams struct {
	Caller         string `json:"caller"`
	Asset          string `json:"asset"`
	StakeAmount    uint64 `json:"stake_amount"`
	Deadline       int64  `json:"deadline"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type configEnvelope struct {
	RequestID string        `json:"request_id"`
	Config    escrow.Config `json:"config"`
}

type pledgeEnvelope struct {
	RequestID string        `json:"request_id"`
	Pledge    escrow.Pledge `json:"pledge"`
}

type pledgesEnvelope struct {
	RequestID string          `json:"request_id"`
	Pledges   []escrow.Pledge `json:"pledges"`
}

type eventsEnvelope struct {
	RequestID string           `json:"request_id"`
	Events    []map[string]any `json:"events"`
}

func (c *Client) InitConfig(ctx context.Context, params InitConfigParams) (escrow.Config, error) {
	var env configEnvelope
	err := c.do(ctx, http.MethodPost, "/escrow/config", params, false, &env)
	return env.Config, err
}

func (c *Client) GetConfig(ctx context.Context) (escrow.Config, error) {
	var env configEnvelope
	err := c.do(ctx, http.MethodGet, "/escrow/config", nil, true, &env)
	return env.Config, err
}

func (c *Client) UpdateConfig(ctx context.Context, caller string, update escrow.ConfigUpdate) (escrow.Config, error) {
	body := map[string]any{"caller": caller, "update": update}
	var env configEnvelope
	err := c.do(ctx, http.MethodPost, "/escrow/config:update", body, false, &env)
	return env.Config, err
}

// CreatePledge is retried only when the caller supplies an idempotency key,
// so a retry can never double-create.
func (c *Client) CreatePledge(ctx context.Context, params CreatePledgeParams) (escrow.Pledge, error) {
	retryable := params.IdempotencyKey != ""
	var env pledgeEnvelope
	err := c.do(ctx, http.MethodPost, "/escrow/pledges", params, retryable, &env)
	return env.Pledge, err
}

func (c *Client) EditPledge(ctx context.Context, pledgeID, caller string, newDeadline *int64) (escrow.Pledge, error) {
	body := map[string]any{"caller": caller}
	if newDeadline != nil {
		body["new_deadline"] = *newDeadline
	}
	var env pledgeEnvelope
	err := c.do(ctx, http.MethodPost, c.pledgePath(pledgeID)+":edit", body, false, &env)
	return env.Pledge, err
}

func (c *Client) ReportCompletion(ctx context.Context, pledgeID, caller string, pct uint8) (escrow.Pledge, error) {
	body := map[string]any{"caller": caller, "completion_percentage": pct}
	var env pledgeEnvelope
	err := c.do(ctx, http.MethodPost, c.pledgePath(pledgeID)+":report", body, false, &env)
	return env.Pledge, err
}

// ProcessCompletion and ProcessExpired are retried freely: the status
// precondition on the server makes a duplicate trigger a no-op failure.
func (c *Client) ProcessCompletion(ctx context.Context, pledgeID string) (escrow.Pledge, error) {
	var env pledgeEnvelope
	err := c.do(ctx, http.MethodPost, c.pledgePath(pledgeID)+":processCompletion", nil, true, &env)
	return env.Pledge, err
}

func (c *Client) ProcessExpired(ctx context.Context, pledgeID string, pct uint8) (escrow.Pledge, error) {
	body := map[string]any{"completion_percentage": pct}
	var env pledgeEnvelope
	err := c.do(ctx, http.MethodPost, c.pledgePath(pledgeID)+":processExpired", body, true, &env)
	return env.Pledge, err
}

func (c *Client) GetPledge(ctx context.Context, pledgeID string) (escrow.Pledge, error) {
	var env pledgeEnvelope
	err := c.do(ctx, http.MethodGet, c.pledgePath(pledgeID), nil, true, &env)
	return env.Pledge, err
}

func (c *Client) ListPledges(ctx context.Context, owner string, status escrow.PledgeStatus) ([]escrow.Pledge, error) {
	v := url.Values{}
	if owner != "" {
		v.Set("owner", owner)
	}
	if status != "" {
		v.Set("status", string(status))
	}
	path := "/escrow/pledges"
	if enc := v.Encode(); enc != "" {
		path += "?" + enc
	}
	var env pledgesEnvelope
	err := c.do(ctx, http.MethodGet, path, nil, true, &env)
	return env.Pledges, err
}

func (c *Client) ListExpired(ctx context.Context, now int64) ([]escrow.Pledge, error) {
	path := "/escrow/expired"
	if now > 0 {
		path += "?now=" + strconv.FormatInt(now, 10)
	}
	var env pledgesEnvelope
	err := c.do(ctx, http.MethodGet, path, nil, true, &env)
	return env.Pledges, err
}

func (c *Client) ListEvents(ctx context.Context, pledgeID string) ([]map[string]any, error) {
	var env eventsEnvelope
	err := c.do(ctx, http.MethodGet, c.pledgePath(pledgeID)+"/events", nil, true, &env)
	return env.Events, err
}

func (c *Client) pledgePath(pledgeID string) string {
	return "/escrow/pledges/" + url.PathEscape(pledgeID)
}

func (c *Client) do(ctx context.Context, method, path string, body any, retryable bool, out any) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}
	attempts := 1
	if retryable {
		attempts = c.retry.MaxAttempts
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(bodyBytes))
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if len(bodyBytes) > 0 {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < attempts {
				sleepWithBackoff(c.retry, attempt)
				continue
			}
			return err
		}
		respBody, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if out == nil || len(respBody) == 0 {
				return nil
			}
			return json.Unmarshal(respBody, out)
		}
		if shouldRetryStatus(resp.StatusCode) && attempt < attempts {
			sleepWithBackoff(c.retry, attempt)
			continue
		}
		return parseSDKError(resp.StatusCode, respBody)
	}
	return errors.New("unreachable")
}

func shouldRetryStatus(status int) bool {
	return status == 429 || status == 502 || status == 503 || status == 504
}

func sleepWithBackoff(cfg RetryConfig, attempt int) {
	max := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt-1))
	if max > float64(cfg.MaxDelay) {
		max = float64(cfg.MaxDelay)
	}
	if max <= 0 {
		return
	}
	time.Sleep(time.Duration(rand.Int63n(int64(max))))
}

func parseSDKError(status int, body []byte) error {
	out := &Error{StatusCode: status}
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		out.Message = strings.TrimSpace(string(body))
		if out.Message == "" {
			out.Message = http.StatusText(status)
		}
		return out
	}
	out.RequestID, _ = obj["request_id"].(string)
	if inner, ok := obj["error"].(map[string]any); ok {
		obj = inner
	}
	out.ErrorCode, _ = obj["code"].(string)
	out.Message, _ = obj["message"].(string)
	if d, ok := obj["details"].(map[string]any); ok {
		out.Details = d
	}
	return out
}
