// Package remote is the authenticated HTTP client for the search gateway:
// token acquisition and refresh, site registration, batch submission,
// search, and the admin operations (key refresh, index removal).
//
// Failure policy follows the engine's contract: read-ish operations
// (search, ping, batch sizing, submission) degrade to an empty or default
// result and record a structured last-error instead of propagating;
// RegisterSite is the one call that returns its error, because registration
// is a supervised one-time action.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Gateway endpoints, relative to the configured base URL.
const (
	authTokenPath   = "/auth/token"
	pingPath        = "/ping"
	registerPath    = "/register"
	searchPath      = "/search"
	storePath       = "/store"
	batchSizePath   = "/batch-size"
	refreshKeyPath  = "/refresh-key"
	removeIndexPath = "/remove"
)

// DefaultMaxBatchSize is the batch byte budget used when the gateway cannot
// be asked for one.
const DefaultMaxBatchSize = 1024

// DefaultBatchSizeTTL is how long a fetched (or fallback) batch size stays
// cached when the gateway does not supply its own TTL.
const DefaultBatchSizeTTL = 2 * time.Hour

// KeyProvider supplies the API key on demand, so the client never holds a
// long-lived copy of the credential.
type KeyProvider func(ctx context.Context) (string, error)

// Config configures the gateway client.
type Config struct {
	// BaseURL of the gateway, e.g. "https://api.example.io:8080".
	BaseURL string

	// SiteURL of the hosting site; domain and path derived from it are
	// sent with registration.
	SiteURL string

	// Key supplies the API key for token acquisition.
	Key KeyProvider

	// Timeout per data operation. Default: 30s.
	Timeout time.Duration

	// PingTimeout for the health check, kept short so a dead gateway is
	// reported quickly. Default: 1s.
	PingTimeout time.Duration

	// MaxRetries for batch submission on transport errors. Default: 2.
	MaxRetries int

	// RetryBackoff is the initial wait between retries, doubled each
	// attempt. Default: 250ms.
	RetryBackoff time.Duration

	// Logger for degraded-operation reporting. Defaults to slog.Default().
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 250 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client talks to the gateway. Safe for concurrent use.
type Client struct {
	cfg        Config
	baseURL    string
	dataClient *http.Client
	pingClient *http.Client

	tokens *TTLCache[string]
	sizes  *TTLCache[int]

	mu          sync.Mutex
	lastError   *ClientError
	lastLatency time.Duration
}

// New creates a gateway client from cfg.
func New(cfg Config) *Client {
	cfg.defaults()
	return &Client{
		cfg:        cfg,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		dataClient: &http.Client{Timeout: cfg.Timeout},
		pingClient: &http.Client{Timeout: cfg.PingTimeout},
		tokens:     NewTTLCache[string](),
		sizes:      NewTTLCache[int](),
	}
}

// LastError returns the structured error recorded by the most recent
// degraded operation, or nil after a success.
func (c *Client) LastError() *ClientError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// LastLatency returns the wall-clock duration of the most recent network
// call.
func (c *Client) LastLatency() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastLatency
}

// Cleanup drops the cached token and batch size.
func (c *Client) Cleanup() {
	c.tokens.Clear()
	c.sizes.Clear()
}

func (c *Client) recordError(op, message string) {
	c.cfg.Logger.Error("gateway call failed", "op", op, "error", message)
	c.mu.Lock()
	c.lastError = &ClientError{Object: "remote.Client", Op: op, Message: message}
	c.mu.Unlock()
}

func (c *Client) clearError() {
	c.mu.Lock()
	c.lastError = nil
	c.mu.Unlock()
}

func (c *Client) recordLatency(d time.Duration) {
	c.mu.Lock()
	c.lastLatency = d
	c.mu.Unlock()
}

// doJSON POSTs body as JSON to path and returns the response bytes. A
// bearer token is attached when token is non-empty; extra headers are
// applied last. Every call records its latency.
func (c *Client) doJSON(ctx context.Context, client *http.Client, method, path string, token string, headers map[string]string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal request: %v", ErrValidation, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrTransport, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := client.Do(req)
	c.recordLatency(time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrTransport, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: HTTP %d from %s: %s", ErrAuth, resp.StatusCode, path, snippet(respBody))
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: HTTP %d from %s: %s", ErrTransport, resp.StatusCode, path, snippet(respBody))
	}
	return respBody, nil
}

func snippet(body []byte) string {
	if len(body) > 256 {
		body = body[:256]
	}
	return string(body)
}

// sitePath splits the configured site URL into the domain/path pair the
// registration payload carries.
func (c *Client) sitePath() (domain, path string) {
	u, err := url.Parse(c.cfg.SiteURL)
	if err != nil || u.Host == "" {
		return c.cfg.SiteURL, "/"
	}
	p := u.Path
	if p == "" {
		p = "/"
	}
	return u.Hostname(), p
}
