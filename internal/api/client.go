package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/eliteGoblin/focusd/detox/internal/domain"
	"github.com/eliteGoblin/focusd/detox/internal/history"
	"github.com/eliteGoblin/focusd/detox/internal/usecase"
)

// Client talks to a running daemon's control API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for addr (host:port or a full URL).
// A nil httpClient gets a 10s timeout.
func NewClient(addr string, httpClient *http.Client) *Client {
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(addr, "/"), http: httpClient}
}

// Health returns nil when the daemon answers /health.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) Status(ctx context.Context) (usecase.Status, error) {
	var st usecase.Status
	err := c.do(ctx, http.MethodGet, "/api/v1/status", nil, &st)
	return st, err
}

// Start begins a session. Zero minutes uses the selector's current value.
func (c *Client) Start(ctx context.Context, minutes int) (domain.Session, error) {
	var s domain.Session
	err := c.do(ctx, http.MethodPost, "/api/v1/session", StartRequest{Minutes: minutes}, &s)
	return s, err
}

// StartText begins a session from typed input parsed by the selector.
func (c *Client) StartText(ctx context.Context, text string) (domain.Session, error) {
	var s domain.Session
	err := c.do(ctx, http.MethodPost, "/api/v1/session", StartRequest{Text: text}, &s)
	return s, err
}

// Unlock ends the session with an emergency unlock, or a premium one.
func (c *Client) Unlock(ctx context.Context, premium bool) (usecase.StopResult, error) {
	var res usecase.StopResult
	err := c.do(ctx, http.MethodPost, "/api/v1/session/unlock", UnlockRequest{Premium: premium}, &res)
	return res, err
}

func (c *Client) Cancel(ctx context.Context) (usecase.StopResult, error) {
	var res usecase.StopResult
	err := c.do(ctx, http.MethodPost, "/api/v1/session/cancel", nil, &res)
	return res, err
}

func (c *Client) History(ctx context.Context) ([]domain.LockSession, error) {
	var records []domain.LockSession
	err := c.do(ctx, http.MethodGet, "/api/v1/history", nil, &records)
	return records, err
}

func (c *Client) Summary(ctx context.Context) (history.Summary, error) {
	var sum history.Summary
	err := c.do(ctx, http.MethodGet, "/api/v1/history/summary", nil, &sum)
	return sum, err
}

func (c *Client) Whitelist(ctx context.Context) ([]string, error) {
	var resp WhitelistRequest
	err := c.do(ctx, http.MethodGet, "/api/v1/whitelist", nil, &resp)
	return resp.Apps, err
}

func (c *Client) SetWhitelist(ctx context.Context, apps []string) ([]string, error) {
	var resp WhitelistRequest
	err := c.do(ctx, http.MethodPut, "/api/v1/whitelist", WhitelistRequest{Apps: apps}, &resp)
	return resp.Apps, err
}

func (c *Client) AddWhitelisted(ctx context.Context, app string) (bool, error) {
	var resp WhitelistChange
	err := c.do(ctx, http.MethodPost, "/api/v1/whitelist/"+url.PathEscape(app), nil, &resp)
	return resp.Changed, err
}

func (c *Client) RemoveWhitelisted(ctx context.Context, app string) (bool, error) {
	var resp WhitelistChange
	err := c.do(ctx, http.MethodDelete, "/api/v1/whitelist/"+url.PathEscape(app), nil, &resp)
	return resp.Changed, err
}

func (c *Client) Schedule(ctx context.Context) (ScheduleResponse, error) {
	var resp ScheduleResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/schedule", nil, &resp)
	return resp, err
}

func (c *Client) SetSchedule(ctx context.Context, req ScheduleRequest) (ScheduleResponse, error) {
	var resp ScheduleResponse
	err := c.do(ctx, http.MethodPut, "/api/v1/schedule", req, &resp)
	return resp, err
}

func (c *Client) RequestPurchase(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/purchase/request", nil, nil)
}

func (c *Client) CompletePurchase(ctx context.Context) (usecase.Status, error) {
	var st usecase.Status
	err := c.do(ctx, http.MethodPost, "/api/v1/purchase/complete", nil, &st)
	return st, err
}

func (c *Client) Selector(ctx context.Context) (SelectorResponse, error) {
	var st SelectorResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/selector", nil, &st)
	return st, err
}

// Select applies one selector input.
func (c *Client) Select(ctx context.Context, req SelectorRequest) (SelectorResponse, error) {
	var st SelectorResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/selector", req, &st)
	return st, err
}

func (c *Client) Notices(ctx context.Context, limit int) ([]domain.Notice, error) {
	path := "/api/v1/notices"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var notices []domain.Notice
	err := c.do(ctx, http.MethodGet, path, nil, &notices)
	return notices, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var er ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&er) == nil {
			apiErr.Code = er.Code
			apiErr.Message = er.Error
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
