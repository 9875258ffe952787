// Package httpclient talks to the status API of a running pulseshim serve
// instance.
package httpclient

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tphakala/pulseshim/internal/audiocore/engine"
	"github.com/tphakala/pulseshim/internal/errors"
	"github.com/tphakala/pulseshim/internal/httpserver"
)

const (
	componentHTTPClient = "httpclient"

	// DefaultTimeout applies when the request context has no deadline
	DefaultTimeout = 10 * time.Second

	defaultUserAgent             = "pulseshim"
	defaultIdleConnTimeout       = 90 * time.Second
	defaultResponseHeaderTimeout = 5 * time.Second
	defaultDialTimeout           = 5 * time.Second

	// Status bodies are small; anything larger is not ours
	maxBodySize = 1 << 20
)

// Client queries the status server. Safe for concurrent use.
type Client struct {
	client         *http.Client
	baseURL        *url.URL
	defaultTimeout time.Duration
	userAgent      string
}

// Config holds client settings. Zero fields take defaults.
type Config struct {
	DefaultTimeout        time.Duration
	UserAgent             string
	IdleConnTimeout       time.Duration
	ResponseHeaderTimeout time.Duration
}

// DefaultConfig returns the defaults used for a nil Config
func DefaultConfig() Config {
	return Config{
		DefaultTimeout:        DefaultTimeout,
		UserAgent:             defaultUserAgent,
		IdleConnTimeout:       defaultIdleConnTimeout,
		ResponseHeaderTimeout: defaultResponseHeaderTimeout,
	}
}

// New creates a client for the server at baseURL. A bare host:port is
// taken as http.
func New(baseURL string, cfg *Config) (*Client, error) {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil, errors.Newf("invalid server address %q", baseURL).
			Component(componentHTTPClient).
			Category(errors.CategoryValidation).
			Build()
	}

	c := DefaultConfig()
	if cfg != nil {
		if cfg.DefaultTimeout > 0 {
			c.DefaultTimeout = cfg.DefaultTimeout
		}
		if cfg.UserAgent != "" {
			c.UserAgent = cfg.UserAgent
		}
		if cfg.IdleConnTimeout > 0 {
			c.IdleConnTimeout = cfg.IdleConnTimeout
		}
		if cfg.ResponseHeaderTimeout > 0 {
			c.ResponseHeaderTimeout = cfg.ResponseHeaderTimeout
		}
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout}).DialContext,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       c.IdleConnTimeout,
		ResponseHeaderTimeout: c.ResponseHeaderTimeout,
	}

	return &Client{
		client:         &http.Client{Transport: transport},
		baseURL:        u,
		defaultTimeout: c.DefaultTimeout,
		userAgent:      c.UserAgent,
	}, nil
}

// Do executes req on ctx. The caller closes the response body.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.New(err).
			Component(componentHTTPClient).
			Category(errors.CategoryNetwork).
			Context("url", req.URL.Redacted()).
			Build()
	}
	return resp, nil
}

// Health fetches /healthz. A detached engine answers 503 with a body, which
// is returned without error.
func (c *Client) Health(ctx context.Context) (*httpserver.HealthResponse, error) {
	var h httpserver.HealthResponse
	if err := c.getJSON(ctx, "/healthz", nil, &h, http.StatusOK, http.StatusServiceUnavailable); err != nil {
		return nil, err
	}
	return &h, nil
}

// Streams lists the open streams
func (c *Client) Streams(ctx context.Context) ([]engine.StreamInfo, error) {
	var list []engine.StreamInfo
	if err := c.getJSON(ctx, "/api/v1/streams", nil, &list, http.StatusOK); err != nil {
		return nil, err
	}
	return list, nil
}

// Close drops idle connections
func (c *Client) Close() {
	c.client.CloseIdleConnections()
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any, accept ...int) error {
	if _, ok := ctx.Deadline(); !ok && c.defaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.defaultTimeout)
		defer cancel()
	}

	u := c.baseURL.JoinPath(path)
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return errors.New(err).
			Component(componentHTTPClient).
			Category(errors.CategoryValidation).
			Build()
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	ok := false
	for _, code := range accept {
		ok = ok || resp.StatusCode == code
	}
	if !ok {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return errors.Newf("unexpected status %d from %s", resp.StatusCode, path).
			Component(componentHTTPClient).
			Category(errors.CategoryNetwork).
			Context("status", resp.StatusCode).
			Build()
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(out); err != nil {
		return errors.New(err).
			Component(componentHTTPClient).
			Category(errors.CategoryFormat).
			Context("path", path).
			Build()
	}
	return nil
}
