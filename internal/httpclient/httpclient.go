// Package httpclient wraps the shared HTTP client used for all IdP and SSO
// portal calls. Cookies set by the IdP must survive across the whole
// transaction, so a single client with a cookie jar is injected into every
// component that talks to the network.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var ErrTransport = errors.New("transport error")

type AcceptType int

const (
	AcceptJSON AcceptType = iota
	AcceptHTML
)

func (a AcceptType) header() string {
	if a == AcceptHTML {
		return "text/html,application/xhtml+xml,application/xml"
	}
	return "application/json"
}

// Result is the outcome of a single request. URL is the final URL after any
// redirects, the SSO portal workflow reads its auth code out of it.
type Result struct {
	StatusCode int
	Body       []byte
	URL        *url.URL
}

type Client struct {
	http          *http.Client
	retryInterval time.Duration
	maxRetries    uint64
}

func New() (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %s, %w", err, ErrTransport)
	}
	return &Client{
		http:          &http.Client{Jar: jar, Timeout: 30 * time.Second},
		retryInterval: time.Second,
		maxRetries:    3,
	}, nil
}

// WithRetryInterval overrides the initial backoff delay of GetWithRetry.
func (c *Client) WithRetryInterval(d time.Duration) *Client {
	c.retryInterval = d
	return c
}

// PostJSON sends payload as a JSON body and always accepts JSON back.
func (c *Client) PostJSON(ctx context.Context, uri string, payload any) (*Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s, %w", err, ErrTransport)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", AcceptJSON.header())
	return c.do(req)
}

func (c *Client) PostForm(ctx context.Context, uri string, form url.Values, accept AcceptType) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%s, %w", err, ErrTransport)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", accept.header())
	return c.do(req)
}

func (c *Client) Get(ctx context.Context, uri string, params url.Values, headers map[string]string, accept AcceptType) (*Result, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("%s, %w", err, ErrTransport)
	}
	if params != nil {
		q := u.Query()
		for k, vals := range params {
			for _, v := range vals {
				q.Set(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s, %w", err, ErrTransport)
	}
	req.Header.Set("Accept", accept.header())
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.do(req)
}

// GetWithRetry wraps Get with bounded exponential backoff: a non-200 status or
// a transport failure is retried up to 3 more times with delays doubling from
// the initial interval. The last error is returned unmodified on exhaustion.
// Only use it for calls that are safe to repeat.
func (c *Client) GetWithRetry(ctx context.Context, uri string, params url.Values, headers map[string]string, accept AcceptType) (*Result, error) {
	var res *Result
	op := func() error {
		r, err := c.Get(ctx, uri, params, headers, accept)
		if err != nil {
			return err
		}
		if r.StatusCode != http.StatusOK {
			return fmt.Errorf("GET %s returned status %d, %w", uri, r.StatusCode, ErrTransport)
		}
		res = r
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, c.maxRetries), ctx)); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) do(req *http.Request) (*Result, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s, %w", err, ErrTransport)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s, %w", err, ErrTransport)
	}

	finalURL := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	}

	return &Result{StatusCode: resp.StatusCode, Body: body, URL: finalURL}, nil
}
