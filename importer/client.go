package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.vocdoni.io/dvote/log"
	"golang.org/x/time/rate"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxResponseBytes   = 16 << 20
)

// HTTPError is returned when a feed answers with a non 2xx status.
type HTTPError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("feed request %s failed with status %d: %s", e.URL, e.StatusCode, e.Body)
}

// retryable reports whether a feed request may succeed if repeated.
func retryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF)
}

// feedClient issues rate limited and retried JSON GET requests.
type feedClient struct {
	baseURL *url.URL
	header  http.Header
	http    *http.Client
	limiter *rate.Limiter
	retry   RetryPolicy
}

func newFeedClient(baseURL string, header http.Header, rps float64, burst int, retry RetryPolicy) (*feedClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid feed url %q", baseURL)
	}
	if rps <= 0 {
		rps = 2
	}
	if burst <= 0 {
		burst = 1
	}
	return &feedClient{
		baseURL: u,
		header:  header,
		http:    &http.Client{Timeout: defaultHTTPTimeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		retry:   retry,
	}, nil
}

func (c *feedClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL.JoinPath(path)
	u.RawQuery = query.Encode()
	return c.retry.Do(ctx, retryable, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
		if err != nil {
			return err
		}
		for k, v := range c.header {
			req.Header[k] = v
		}
		req.Header.Set("Accept", "application/json")
		resp, err := c.http.Do(req)
		if err != nil {
			log.Debugw("feed request failed", "url", u.Path, "error", err)
			return err
		}
		defer func() {
			if err := resp.Body.Close(); err != nil {
				log.Warnw("cannot close feed response", "error", err)
			}
		}()
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			if len(body) > 256 {
				body = body[:256]
			}
			return &HTTPError{URL: u.Path, StatusCode: resp.StatusCode, Body: string(body)}
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("cannot decode feed response: %w", err)
		}
		return nil
	})
}
