// Package httpsink loads batches through the insertion API: get-token for
// authentication, insert-data for batches, create-table for provisioning.
package httpsink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lifelog/internal/batch"
	"lifelog/internal/metrics"
	"lifelog/internal/record"
	"lifelog/internal/sink"
)

func init() {
	sink.Register("http", func(_ context.Context, cfg sink.Config) (sink.Client, error) {
		return New(cfg)
	})
}

// Client talks to one insertion API endpoint. The bearer token is acquired
// lazily on the first request and cached for the lifetime of the client; a
// 401 response invalidates it and triggers exactly one re-authentication
// before the request is retried.
type Client struct {
	baseURL  string
	username string
	password string
	dbName   string
	retryMax int
	backoff  time.Duration

	token string

	// Seams for tests.
	httpc *http.Client
	sleep func(time.Duration)
}

// New validates the config and returns a client. No network traffic happens
// until the first Insert or EnsureTable.
func New(cfg sink.Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("httpsink: missing url")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("httpsink: missing credentials")
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		dbName:   cfg.DBName,
		retryMax: cfg.RetryMax,
		backoff:  cfg.Backoff,
		httpc:    &http.Client{Timeout: 30 * time.Second},
		sleep:    time.Sleep,
	}, nil
}

func (c *Client) Close() { c.httpc.CloseIdleConnections() }

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// errorResponse is the API's structured rejection body. A non-2xx response
// carrying a detail field is a judgement on the payload, not an outage.
type errorResponse struct {
	Detail string `json:"detail"`
}

type insertRequest struct {
	DBName    string          `json:"db_name"`
	TableName string          `json:"table_name"`
	Data      []record.Record `json:"data"`
}

type insertResponse struct {
	Inserted *int64 `json:"inserted,omitempty"`
}

type createTableRequest struct {
	DBName    string            `json:"db_name"`
	TableName string            `json:"table_name"`
	Schema    map[string]string `json:"table_schema"`
}

// EnsureTable provisions the table via create-table. Targets without a
// schema declaration are assumed to exist already.
func (c *Client) EnsureTable(ctx context.Context, t sink.Table) error {
	if len(t.Schema) == 0 {
		return nil
	}
	_, err := c.post(ctx, "/create-table", createTableRequest{
		DBName:    c.dbName,
		TableName: t.Name,
		Schema:    t.Schema,
	}, t.Name)
	return err
}

// Insert sends one batch to insert-data and reports how many records the API
// accepted. When the response carries no count, the batch size stands in.
func (c *Client) Insert(ctx context.Context, t sink.Table, b batch.Batch) (int64, error) {
	body, err := c.post(ctx, "/insert-data", insertRequest{
		DBName:    c.dbName,
		TableName: b.Table,
		Data:      b.Records,
	}, t.Name)
	if err != nil {
		return 0, err
	}

	var resp insertResponse
	if json.Unmarshal(body, &resp) == nil && resp.Inserted != nil {
		return *resp.Inserted, nil
	}
	return int64(b.Len()), nil
}

// post runs one authenticated request with the retry policy:
//
//   - transport errors and non-2xx responses without a detail body are
//     transient; retried up to retryMax with a fixed backoff, then reported
//     as *sink.UnavailableError
//   - a 401 invalidates the token; the next attempt re-authenticates, and a
//     second consecutive 401 is reported as *sink.UnavailableError wrapping
//     a *sink.AuthError
//   - any non-2xx with a detail body is a permanent *sink.RejectedError
func (c *Client) post(ctx context.Context, path string, payload any, table string) ([]byte, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("httpsink: encode %s: %w", path, err)
	}

	// A run-level cancellation takes effect between sources, not mid-batch:
	// the in-flight request and its retries finish under the client's own
	// request timeout.
	ctx = context.WithoutCancel(ctx)

	var lastErr error
	reauthed := false

	for attempt := 0; attempt <= c.retryMax; attempt++ {
		if attempt > 0 {
			c.sleep(c.backoff)
		}

		if c.token == "" {
			if err := c.authenticate(ctx); err != nil {
				lastErr = err
				if sink.IsAuthFailed(err) {
					return nil, err
				}
				continue
			}
		}

		body, status, err := c.do(ctx, path, buf)
		if err != nil {
			metrics.IncCounter(metrics.SinkRequestsTotal, 1, metrics.Labels{"status": "error"})
			lastErr = err
			continue
		}
		metrics.IncCounter(metrics.SinkRequestsTotal, 1, metrics.Labels{"status": strconv.Itoa(status)})

		if status == http.StatusUnauthorized {
			c.token = ""
			if reauthed {
				// Two 401s in a row: the token we just fetched was refused.
				// The batch cannot land until the sink sorts itself out.
				return nil, &sink.UnavailableError{Err: &sink.AuthError{Status: status}}
			}
			reauthed = true
			// Re-auth attempt does not consume a retry.
			attempt--
			continue
		}

		if status >= 200 && status < 300 {
			return body, nil
		}

		var rej errorResponse
		if json.Unmarshal(body, &rej) == nil && rej.Detail != "" {
			return nil, &sink.RejectedError{Table: table, Status: status, Detail: rej.Detail}
		}
		lastErr = fmt.Errorf("%s: status %d", path, status)
	}

	return nil, &sink.UnavailableError{Err: lastErr}
}

func (c *Client) do(ctx context.Context, path string, body []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, err
	}
	return b, resp.StatusCode, nil
}

// authenticate fetches a fresh bearer token from get-token.
func (c *Client) authenticate(ctx context.Context) error {
	buf, err := json.Marshal(map[string]string{
		"username": c.username,
		"password": c.password,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/get-token", bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return &sink.AuthError{Status: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("get-token: status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil || tr.AccessToken == "" {
		return fmt.Errorf("get-token: malformed response")
	}
	c.token = tr.AccessToken
	return nil
}
