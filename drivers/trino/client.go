package trino

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dbcrossbar/dbcrossbar/config"
	"github.com/dbcrossbar/dbcrossbar/internal/logctx"
)

// A Client speaks the Trino REST statement protocol: POST the SQL to
// /v1/statement, then follow nextUri until the response carries no
// continuation, handing each row page to a callback as it arrives.
type Client struct {
	baseURL    string
	user       string
	password   string
	httpClient *http.Client
}

// NewClient builds a statement client for one coordinator.
func NewClient(baseURL, user, password string) *Client {
	return &Client{baseURL: baseURL, user: user, password: password, httpClient: config.SharedHTTPClient()}
}

type (
	// A queryPage is one page of a statement response.
	queryPage struct {
		ID      string          `json:"id"`
		NextURI string          `json:"nextUri"`
		Columns []ResultColumn  `json:"columns"`
		Data    [][]any         `json:"data"`
		Error   *StatementError `json:"error"`
	}

	// A ResultColumn describes one column of a result set.
	ResultColumn struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}

	// A StatementError is Trino's structured error value.
	StatementError struct {
		Message   string `json:"message"`
		ErrorCode int    `json:"errorCode"`
		ErrorName string `json:"errorName"`
		ErrorType string `json:"errorType"`
	}
)

func (e *StatementError) Error() string {
	return fmt.Sprintf("trino: %s (%s)", e.Message, e.ErrorName)
}

// Query runs a statement, invoking onPage for every page that carries
// columns or data. Pages arrive in order; onPage must not retain the
// row slices.
func (c *Client) Query(ctx context.Context, sql string, onPage func(cols []ResultColumn, rows [][]any) error) error {
	logctx.From(ctx).Debug("running Trino statement", "sql", firstLine(sql))
	page, err := c.post(ctx, sql)
	if err != nil {
		return err
	}
	for {
		if page.Error != nil {
			return page.Error
		}
		if len(page.Columns) > 0 || len(page.Data) > 0 {
			if err := onPage(page.Columns, page.Data); err != nil {
				return err
			}
		}
		if page.NextURI == "" {
			return nil
		}
		// Trino asks clients to wait briefly between polls when a page
		// arrives with no data.
		if len(page.Data) == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(50 * time.Millisecond):
			}
		}
		if page, err = c.get(ctx, page.NextURI); err != nil {
			return err
		}
	}
}

// Exec runs a statement and discards any rows.
func (c *Client) Exec(ctx context.Context, sql string) error {
	return c.Query(ctx, sql, func([]ResultColumn, [][]any) error { return nil })
}

// QueryAll runs a statement and collects every row.
func (c *Client) QueryAll(ctx context.Context, sql string) ([]ResultColumn, [][]any, error) {
	var cols []ResultColumn
	var rows [][]any
	err := c.Query(ctx, sql, func(pageCols []ResultColumn, pageRows [][]any) error {
		if len(pageCols) > 0 {
			cols = pageCols
		}
		rows = append(rows, pageRows...)
		return nil
	})
	return cols, rows, err
}

func (c *Client) post(ctx context.Context, sql string) (*queryPage, error) {
	var page *queryPage
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/v1/statement", bytes.NewReader([]byte(sql)))
		if err != nil {
			return backoff.Permanent(err)
		}
		c.setHeaders(req)
		var perr error
		if page, perr = c.doPage(req); perr != nil {
			return perr
		}
		return nil
	}
	if err := backoff.Retry(op, statementRetryPolicy(ctx)); err != nil {
		return nil, err
	}
	return page, nil
}

func (c *Client) get(ctx context.Context, uri string) (*queryPage, error) {
	var page *queryPage
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		c.setHeaders(req)
		var perr error
		if page, perr = c.doPage(req); perr != nil {
			return perr
		}
		return nil
	}
	if err := backoff.Retry(op, statementRetryPolicy(ctx)); err != nil {
		return nil, err
	}
	return page, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("X-Trino-User", c.user)
	req.Header.Set("X-Trino-Source", "dbcrossbar")
	if c.password != "" {
		req.SetBasicAuth(c.user, c.password)
	}
}

func (c *Client) doPage(req *http.Request) (*queryPage, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("trino: coordinator busy: %s", resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, backoff.Permanent(fmt.Errorf("trino: %s %s: %s: %s",
			req.Method, req.URL.Path, resp.Status, body))
	}
	var page queryPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("trino: decoding statement response: %w", err))
	}
	return &page, nil
}

func statementRetryPolicy(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = 5 * time.Second
	return backoff.WithContext(backoff.WithMaxRetries(b, 5), ctx)
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i] + " ..."
		}
	}
	return s
}
