package strapi

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

	"github.com/rs/zerolog"
)

const (
	// DefaultTimeout bounds a single request when Config.Timeout is zero.
	DefaultTimeout = 30 * time.Second

	authPathPrefix = "/api/auth/local"
	maxErrorBody   = 64 << 10
)

// TokenSource returns the current bearer token, if any.
type TokenSource func(ctx context.Context) (string, bool)

// Config configures a Client. BaseURL is required.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client talks to one Strapi deployment. It is safe for concurrent use.
type Client struct {
	base *url.URL
	http *http.Client
	log  zerolog.Logger

	mu             sync.RWMutex
	tokens         TokenSource
	onUnauthorized func(context.Context)
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("strapi base URL must not be empty")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("strapi base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("strapi base URL scheme %q is not http(s)", base.Scheme)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		base: base,
		http: hc,
		log:  cfg.Logger.With().Str("component", "strapi").Logger(),
	}, nil
}

// SetTokenSource installs the bearer token provider.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.mu.Lock()
	c.tokens = ts
	c.mu.Unlock()
}

// OnUnauthorized installs fn to run when a request that carried a bearer
// token gets a 401, before ErrUnauthorized is returned to the caller.
func (c *Client) OnUnauthorized(fn func(context.Context)) {
	c.mu.Lock()
	c.onUnauthorized = fn
	c.mu.Unlock()
}

func (c *Client) hooks() (TokenSource, func(context.Context)) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens, c.onUnauthorized
}

// URL resolves path and query against the base URL.
func (c *Client) URL(path string, query url.Values) string {
	u := *c.base
	u.Path = c.base.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do performs one request. out may be nil; an empty 2xx body leaves out
// untouched.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path, query), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	tokens, onUnauthorized := c.hooks()
	bearer := false
	if tokens != nil && !strings.HasPrefix(path, authPathPrefix) {
		if token, ok := tokens(ctx); ok {
			req.Header.Set("Authorization", "Bearer "+token)
			bearer = true
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("backend request")

	if resp.StatusCode == http.StatusUnauthorized {
		_, _ = io.Copy(io.Discard, resp.Body)
		c.log.Warn().Str("path", path).Msg("backend returned 401")
		if bearer && onUnauthorized != nil {
			onUnauthorized(ctx)
		}
		return ErrUnauthorized
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.apiError(method, path, resp)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.log.Error().Err(err).Str("path", path).Msg("decode backend response")
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

func (c *Client) apiError(method, path string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{Status: resp.StatusCode}

	var envelope struct {
		Error *struct {
			Status  int    `json:"status"`
			Name    string `json:"name"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error != nil {
		apiErr.Name = envelope.Error.Name
		apiErr.Message = envelope.Error.Message
	}

	c.log.Error().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Str("name", apiErr.Name).
		Msg("backend returned an error")
	return apiErr
}

// Delete issues a DELETE and discards any body.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}
