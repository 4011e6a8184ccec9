// Package gcloud implements the REST clients for Google Cloud used by
// the bigquery and gs drivers: a shared authenticated HTTP client,
// BigQuery jobs with create-then-poll, and GCS object I/O with CRC32C
// verification.
package gcloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dbcrossbar/dbcrossbar/config"
	"github.com/dbcrossbar/dbcrossbar/internal/logctx"
)

// A Client is an authenticated Google Cloud REST client. Clients are
// created per operation and dropped when it completes; the underlying
// http.Client pools connections and honors the process TLS registry.
type Client struct {
	httpClient *http.Client

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewClient builds a client using the process credential registry.
func NewClient() *Client {
	return &Client{httpClient: config.SharedHTTPClient()}
}

// AccessToken returns a bearer token, refreshing it when needed.
//
// Two sources are supported: a raw token in GCLOUD_ACCESS_TOKEN (or the
// credential registry), and gcloud application-default credentials of
// type authorized_user, which we exchange at the OAuth token endpoint.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.expiry) {
		return c.token, nil
	}
	if tok, ok := config.Credential("GCLOUD_ACCESS_TOKEN"); ok {
		c.token, c.expiry = tok, time.Now().Add(30*time.Minute)
		return c.token, nil
	}
	tok, expiry, err := c.refreshAuthorizedUser(ctx)
	if err != nil {
		return "", err
	}
	c.token, c.expiry = tok, expiry
	return c.token, nil
}

func (c *Client) refreshAuthorizedUser(ctx context.Context) (string, time.Time, error) {
	path := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", time.Time{}, fmt.Errorf("gcloud: no credentials: %w", err)
		}
		path = home + "/.config/gcloud/application_default_credentials.json"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("gcloud: cannot find Google Cloud credentials (set GCLOUD_ACCESS_TOKEN or GOOGLE_APPLICATION_CREDENTIALS): %w", err)
	}
	var creds struct {
		Type         string `json:"type"`
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(data, &creds); err != nil {
		return "", time.Time{}, fmt.Errorf("gcloud: parsing %s: %w", path, err)
	}
	if creds.Type != "authorized_user" {
		return "", time.Time{}, fmt.Errorf("gcloud: unsupported credential type %q in %s", creds.Type, path)
	}
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {creds.ClientID},
		"client_secret": {creds.ClientSecret},
		"refresh_token": {creds.RefreshToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://oauth2.googleapis.com/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("gcloud: token exchange: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", time.Time{}, fmt.Errorf("gcloud: token exchange failed: %s: %s", resp.Status, body)
	}
	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", time.Time{}, err
	}
	return tok.AccessToken, time.Now().Add(time.Duration(tok.ExpiresIn-60) * time.Second), nil
}

// doJSON performs an authenticated request, retrying transient
// failures, and decodes the JSON response into out (which may be nil).
func (c *Client) doJSON(ctx context.Context, method, rawurl string, body any, out any) error {
	op := func() error {
		var reqBody io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return backoff.Permanent(err)
			}
			reqBody = strings.NewReader(string(data))
		}
		req, err := http.NewRequestWithContext(ctx, method, rawurl, reqBody)
		if err != nil {
			return backoff.Permanent(err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		tok, err := c.AccessToken(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
			err := &HTTPError{
				StatusCode: resp.StatusCode,
				Status:     resp.Status,
				URL:        redactURL(rawurl),
				Body:       string(data),
			}
			if isTransientStatus(resp.StatusCode) {
				return err
			}
			return backoff.Permanent(err)
		}
		if out == nil {
			io.Copy(io.Discard, resp.Body)
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return backoff.RetryNotify(op, retryPolicy(ctx), logRetry(ctx, method+" "+redactURL(rawurl)))
}

// An HTTPError is a non-2xx cloud response.
type HTTPError struct {
	StatusCode int
	Status     string
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("gcloud: %s: %s: %s", e.URL, e.Status, e.Body)
}

// isNotFound reports whether err is a 404 response.
func isNotFound(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.StatusCode == http.StatusNotFound
}

// isTransientStatus matches the cloud's "please retry" answers.
func isTransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// retryPolicy is the bounded exponential backoff used for all cloud
// requests: short initial delay, doubling, capped attempts.
func retryPolicy(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 2 * time.Minute
	return backoff.WithContext(backoff.WithMaxRetries(b, 8), ctx)
}

// redactURL strips query parameters, which may embed tokens.
func redactURL(rawurl string) string {
	if i := strings.IndexByte(rawurl, '?'); i >= 0 {
		return rawurl[:i]
	}
	return rawurl
}

func logRetry(ctx context.Context, what string) func(error, time.Duration) {
	return func(err error, next time.Duration) {
		logctx.From(ctx).Debug("retrying after transient error",
			"operation", what, "error", err, "next_try_in", next)
	}
}
