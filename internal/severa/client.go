// Package severa reads work hours, sales, billing and users from the
// Severa ERP REST API.
package severa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	maxRetries        = 6
	maxConcurrent     = 4
	requestsPerSecond = 10
)

var ErrRetryLimit = errors.New("severa: retry limit reached")

// StatusError is a response the client does not retry.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("severa: GET %s: %d %s", e.Endpoint, e.Code, e.Body)
}

type Credentials struct {
	ClientID     string
	ClientSecret string
	Scope        string
}

// Client is the authenticated, rate limited transport. It is safe for
// concurrent use.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	creds   Credentials
	limiter *rate.Limiter

	mu   sync.Mutex
	auth *Auth

	now       func() time.Time
	retryWait time.Duration
}

func NewClient(baseURL string, creds Credentials) (*Client, error) {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("severa: base url: %w", err)
	}
	return &Client{
		baseURL:   u,
		http:      &http.Client{Timeout: 120 * time.Second},
		creds:     creds,
		limiter:   rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		now:       time.Now,
		retryWait: 2 * time.Second,
	}, nil
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.ResolveReference(&url.URL{Path: strings.TrimPrefix(path, "/")}).String()
}

func (c *Client) authenticate(ctx context.Context) error {
	payload := map[string]string{
		"client_Id":     c.creds.ClientID,
		"client_Secret": c.creds.ClientSecret,
		"scope":         c.creds.Scope,
	}
	return c.postAuth(ctx, "token", payload, nil)
}

func (c *Client) reauthenticate(ctx context.Context) error {
	headers := http.Header{"client_Id": {c.creds.ClientID}}
	return c.postAuth(ctx, "refreshtoken", c.auth.RefreshToken, headers)
}

func (c *Client) postAuth(ctx context.Context, path string, payload any, headers http.Header) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header[k] = v
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("severa: %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		text, _ := io.ReadAll(resp.Body)
		return &StatusError{Endpoint: path, Code: resp.StatusCode, Body: string(text)}
	}

	var auth Auth
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return fmt.Errorf("severa: %s: %w", path, err)
	}
	c.auth = &auth
	return nil
}

// authHeaders authenticates when needed and returns the request headers.
func (c *Client) authHeaders(ctx context.Context, force bool) (http.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UTC()
	switch {
	case c.auth == nil || force:
		if err := c.authenticate(ctx); err != nil {
			return nil, err
		}
	case now.After(c.auth.AccessTokenExpiresUTC):
		if now.Before(c.auth.RefreshTokenExpires) {
			log.Debug("severa: refreshing auth")
			if err := c.reauthenticate(ctx); err != nil {
				return nil, err
			}
		} else {
			log.Debug("severa: access and refresh expired, authenticating again")
			if err := c.authenticate(ctx); err != nil {
				return nil, err
			}
		}
	}

	return http.Header{
		"client_Id":     {c.creds.ClientID},
		"Authorization": {c.auth.AccessTokenType + " " + c.auth.AccessToken},
	}, nil
}

// getWithRetries sends one GET, re-authenticating on 401 and backing off
// on 429.
func (c *Client) getWithRetries(ctx context.Context, endpoint string, params url.Values) (*http.Response, error) {
	forceAuth := false
	for retry := 0; retry < maxRetries; retry++ {
		headers, err := c.authHeaders(ctx, forceAuth)
		if err != nil {
			return nil, err
		}
		forceAuth = false

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		target := c.endpoint(endpoint)
		if len(params) > 0 {
			target += "?" + params.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		for k, v := range headers {
			req.Header[k] = v
		}

		started := time.Now()
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("severa: GET %s: %w", endpoint, err)
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			drain(resp)
			log.WithField("endpoint", endpoint).Warn("severa: 401, authenticating again")
			forceAuth = true
		case resp.StatusCode == http.StatusTooManyRequests:
			drain(resp)
			log.WithField("endpoint", endpoint).Warnf("severa: 429, sleeping %s", c.retryWait)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryWait):
			}
		case resp.StatusCode >= http.StatusBadRequest:
			text, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, &StatusError{Endpoint: endpoint, Code: resp.StatusCode, Body: string(text)}
		default:
			log.WithFields(log.Fields{
				"endpoint": endpoint,
				"retry":    retry,
				"elapsed":  time.Since(started).Round(time.Millisecond),
			}).Debug("severa: GET")
			return resp, nil
		}
	}

	log.WithField("endpoint", endpoint).Error("severa: retry limit reached")
	return nil, ErrRetryLimit
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// Pages calls fn with the body of every page of endpoint, following
// NextPageToken headers.
func (c *Client) Pages(ctx context.Context, endpoint string, params url.Values, fn func(body []byte) error) error {
	query := url.Values{}
	for k, v := range params {
		query[k] = append([]string(nil), v...)
	}

	for {
		resp, err := c.getWithRetries(ctx, endpoint, query)
		if err != nil {
			return err
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("severa: GET %s: %w", endpoint, err)
		}
		if err := fn(body); err != nil {
			return fmt.Errorf("severa: GET %s: %w", endpoint, err)
		}

		token := resp.Header.Get("NextPageToken")
		if token == "" {
			return nil
		}
		query.Set("pageToken", token)
	}
}

// GetAll returns the items of every page. List pages are concatenated and
// single objects are wrapped.
func (c *Client) GetAll(ctx context.Context, endpoint string, params url.Values) ([]json.RawMessage, error) {
	var items []json.RawMessage
	err := c.Pages(ctx, endpoint, params, func(body []byte) error {
		body = bytes.TrimSpace(body)
		if len(body) == 0 {
			return nil
		}
		if body[0] != '[' {
			items = append(items, json.RawMessage(body))
			return nil
		}
		var page []json.RawMessage
		if err := json.Unmarshal(body, &page); err != nil {
			return err
		}
		items = append(items, page...)
		return nil
	})
	return items, err
}

// getAll decodes every item of endpoint into T.
func getAll[T any](ctx context.Context, c *Client, endpoint string, params url.Values) ([]T, error) {
	raw, err := c.GetAll(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}
	items := make([]T, 0, len(raw))
	for _, r := range raw {
		var item T
		if err := json.Unmarshal(r, &item); err != nil {
			return nil, fmt.Errorf("severa: decode %s: %w", endpoint, err)
		}
		items = append(items, item)
	}
	return items, nil
}
