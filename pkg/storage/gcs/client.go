package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/angelmondragon/settlez-backend/pkg/config"
	"github.com/angelmondragon/settlez-backend/pkg/logger"
)

const (
	scope          = "https://www.googleapis.com/auth/devstorage.read_write"
	storageBaseURL = "https://storage.googleapis.com"
	requestTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second
	maxAttempts    = 3
	retryBase      = 200 * time.Millisecond
)

var errNotInitialized = errors.New("gcs client not initialized")

// Client talks to the Cloud Storage JSON API for a single bucket. Requests
// are authorized by an oauth2 token source.
type Client struct {
	http    *http.Client
	bucket  string
	baseURL string
	sleep   func(context.Context, time.Duration) error
}

// NewClient builds a client for cfg.BucketName and verifies the bucket is
// listable. Credentials come from the service account JSON, the credentials
// file, or Application Default Credentials, in that order.
func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	bucket := strings.TrimSpace(cfg.BucketName)
	if bucket == "" {
		return nil, errors.New("gcs bucket name is required")
	}
	ts, err := tokenSource(ctx, gcp)
	if err != nil {
		return nil, err
	}

	httpClient := oauth2.NewClient(ctx, ts)
	httpClient.Timeout = requestTimeout
	client := &Client{http: httpClient, bucket: bucket, baseURL: storageBaseURL, sleep: sleepCtx}
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}

	logg.Info(logg.WithField(ctx, "bucket", bucket), "gcs client initialized")
	return client, nil
}

func tokenSource(ctx context.Context, gcp config.GCPConfig) (oauth2.TokenSource, error) {
	raw := []byte(strings.TrimSpace(gcp.CredentialsJSON))
	if len(raw) == 0 && gcp.ApplicationCredentials != "" {
		fileRaw, err := os.ReadFile(gcp.ApplicationCredentials)
		if err != nil {
			return nil, fmt.Errorf("reading credentials file: %w", err)
		}
		raw = fileRaw
	}
	if len(raw) == 0 {
		creds, err := google.FindDefaultCredentials(ctx, scope)
		if err != nil {
			return nil, fmt.Errorf("finding default credentials: %w", err)
		}
		return creds.TokenSource, nil
	}
	creds, err := google.CredentialsFromJSON(ctx, raw, scope)
	if err != nil {
		return nil, fmt.Errorf("parsing gcs credentials: %w", err)
	}
	return creds.TokenSource, nil
}

func (c *Client) DefaultBucket() string {
	if c == nil {
		return ""
	}
	return c.bucket
}

func (c *Client) Close() error {
	if c != nil && c.http != nil {
		c.http.CloseIdleConnections()
	}
	return nil
}

// Ping lists at most one object, which needs storage.objects.list on the bucket.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.http == nil {
		return errNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	u := fmt.Sprintf("%s/storage/v1/b/%s/o?maxResults=1", c.baseURL, url.PathEscape(c.bucket))
	return c.send(ctx, "list objects", http.MethodGet, u, "", nil, http.StatusOK)
}

// Upload writes body to object, replacing any existing object of that name.
func (c *Client) Upload(ctx context.Context, object, contentType string, body []byte) error {
	if c == nil || c.http == nil {
		return errNotInitialized
	}
	object = strings.TrimPrefix(strings.TrimSpace(object), "/")
	if object == "" {
		return errors.New("object name is required")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	q := url.Values{"uploadType": {"media"}, "name": {object}}
	u := fmt.Sprintf("%s/upload/storage/v1/b/%s/o?%s", c.baseURL, url.PathEscape(c.bucket), q.Encode())
	return c.send(ctx, "upload "+object, http.MethodPost, u, contentType, body, http.StatusOK)
}

// DeleteObject removes object. A missing object is not an error.
func (c *Client) DeleteObject(ctx context.Context, object string) error {
	if c == nil || c.http == nil {
		return errNotInitialized
	}
	u := fmt.Sprintf("%s/storage/v1/b/%s/o/%s", c.baseURL, url.PathEscape(c.bucket), url.PathEscape(object))
	return c.send(ctx, "delete "+object, http.MethodDelete, u, "", nil, http.StatusOK, http.StatusNoContent, http.StatusNotFound)
}

// send issues the request, retrying 429 and 5xx responses with exponential
// backoff. Every operation here is idempotent for a fixed object name.
func (c *Client) send(ctx context.Context, op, method, u, contentType string, body []byte, ok ...int) error {
	wait := retryBase
	for attempt := 1; ; attempt++ {
		status, err := c.once(ctx, method, u, contentType, body, ok)
		if err == nil {
			return nil
		}
		if attempt >= maxAttempts || !retryableStatus(status) {
			return fmt.Errorf("%s: %w", op, err)
		}
		if err := c.sleep(ctx, wait); err != nil {
			return err
		}
		wait *= 2
	}
}

func (c *Client) once(ctx context.Context, method, u, contentType string, body []byte, ok []int) (int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	for _, code := range ok {
		if resp.StatusCode == code {
			_, _ = io.Copy(io.Discard, resp.Body)
			return resp.StatusCode, nil
		}
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if trimmed := strings.TrimSpace(string(msg)); trimmed != "" {
		return resp.StatusCode, fmt.Errorf("%s: %s", resp.Status, trimmed)
	}
	return resp.StatusCode, errors.New(resp.Status)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
