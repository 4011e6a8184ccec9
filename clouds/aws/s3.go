package aws

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dbcrossbar/dbcrossbar/config"
)

// An S3Client talks to one S3 region.
type S3Client struct {
	httpClient *http.Client
	creds      Credentials
	region     string
}

// NewS3Client builds a client from the standard environment.
func NewS3Client() (*S3Client, error) {
	creds, err := CredentialsFromEnv()
	if err != nil {
		return nil, err
	}
	region, err := Region()
	if err != nil {
		return nil, err
	}
	return &S3Client{httpClient: config.SharedHTTPClient(), creds: creds, region: region}, nil
}

// Credentials returns the client's credentials, for drivers that embed
// them into backend statements (Redshift COPY).
func (c *S3Client) Credentials() Credentials { return c.creds }

// Region returns the client's region.
func (c *S3Client) Region() string { return c.region }

// An S3URL is a parsed s3://bucket/path value.
type S3URL struct {
	Bucket string
	Path   string
}

// ParseS3URL parses an s3:// URL.
func ParseS3URL(s string) (S3URL, error) {
	rest, ok := strings.CutPrefix(s, "s3://")
	if !ok {
		return S3URL{}, fmt.Errorf("aws: expected s3:// URL, got %q", s)
	}
	bucket, path, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return S3URL{}, fmt.Errorf("aws: missing bucket in %q", s)
	}
	return S3URL{Bucket: bucket, Path: path}, nil
}

func (u S3URL) String() string { return "s3://" + u.Bucket + "/" + u.Path }

func (c *S3Client) endpoint(bucket string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, c.region)
}

// ListPrefix lists the object keys under a prefix, following
// continuation tokens.
func (c *S3Client) ListPrefix(ctx context.Context, prefix S3URL) ([]S3URL, error) {
	var out []S3URL
	token := ""
	for {
		q := url.Values{}
		q.Set("list-type", "2")
		q.Set("prefix", prefix.Path)
		if token != "" {
			q.Set("continuation-token", token)
		}
		listURL := c.endpoint(prefix.Bucket) + "/?" + q.Encode()
		body, err := c.do(ctx, http.MethodGet, listURL, nil, "")
		if err != nil {
			return nil, fmt.Errorf("aws: listing %s: %w", prefix, err)
		}
		var resp struct {
			Contents []struct {
				Key string `xml:"Key"`
			} `xml:"Contents"`
			IsTruncated           bool   `xml:"IsTruncated"`
			NextContinuationToken string `xml:"NextContinuationToken"`
		}
		if err := xml.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("aws: parsing list response for %s: %w", prefix, err)
		}
		for _, item := range resp.Contents {
			out = append(out, S3URL{Bucket: prefix.Bucket, Path: item.Key})
		}
		if !resp.IsTruncated {
			return out, nil
		}
		token = resp.NextContinuationToken
	}
}

// GetObject streams one object. The caller must close the returned
// reader.
func (c *S3Client) GetObject(ctx context.Context, u S3URL) (io.ReadCloser, error) {
	getURL := c.endpoint(u.Bucket) + "/" + uriEncodePath(u.Path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, getURL, nil)
	if err != nil {
		return nil, err
	}
	SignRequest(req, c.creds, c.region, "s3", emptyPayloadHash, time.Now())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("aws: GET %s: %w", u, err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("aws: GET %s: %s: %s", u, resp.Status, body)
	}
	return resp.Body, nil
}

// PutObject uploads data as one object. Bodies are buffered so the
// payload hash can be signed; S3 objects written by the data plane are
// already chunked to bounded sizes.
func (c *S3Client) PutObject(ctx context.Context, u S3URL, data []byte) error {
	putURL := c.endpoint(u.Bucket) + "/" + uriEncodePath(u.Path)
	payloadHash := hexSHA256(data)
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, putURL, bytes.NewReader(data))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.ContentLength = int64(len(data))
		req.Header.Set("Content-Type", "text/csv")
		SignRequest(req, c.creds, c.region, "s3", payloadHash, time.Now())
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			err := fmt.Errorf("aws: PUT %s: %s: %s", u, resp.Status, body)
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return err
			}
			return backoff.Permanent(err)
		}
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return backoff.Retry(op, s3RetryPolicy(ctx))
}

// DeleteObject deletes one object.
func (c *S3Client) DeleteObject(ctx context.Context, u S3URL) error {
	_, err := c.do(ctx, http.MethodDelete, c.endpoint(u.Bucket)+"/"+uriEncodePath(u.Path), nil, "")
	return err
}

// DeletePrefix deletes every object under a prefix.
func (c *S3Client) DeletePrefix(ctx context.Context, prefix S3URL) error {
	objs, err := c.ListPrefix(ctx, prefix)
	if err != nil {
		return err
	}
	for _, obj := range objs {
		if err := c.DeleteObject(ctx, obj); err != nil {
			return err
		}
	}
	return nil
}

// do performs a signed request with an optional small body, retrying
// transient failures, and returns the response body.
func (c *S3Client) do(ctx context.Context, method, rawurl string, body []byte, contentType string) ([]byte, error) {
	payloadHash := emptyPayloadHash
	if body != nil {
		payloadHash = hexSHA256(body)
	}
	var out []byte
	op := func() error {
		var rdr io.Reader
		if body != nil {
			rdr = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawurl, rdr)
		if err != nil {
			return backoff.Permanent(err)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		SignRequest(req, c.creds, c.region, "s3", payloadHash, time.Now())
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
			err := fmt.Errorf("aws: %s %s: %s: %s", method, redact(rawurl), resp.Status, data)
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return err
			}
			return backoff.Permanent(err)
		}
		out = data
		return nil
	}
	if err := backoff.Retry(op, s3RetryPolicy(ctx)); err != nil {
		return nil, err
	}
	return out, nil
}

func s3RetryPolicy(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = 10 * time.Second
	return backoff.WithContext(backoff.WithMaxRetries(b, 6), ctx)
}

func redact(rawurl string) string {
	if i := strings.IndexByte(rawurl, '?'); i >= 0 {
		return rawurl[:i]
	}
	return rawurl
}
