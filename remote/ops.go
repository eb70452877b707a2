package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/thinkpixel/searchbridge/content"
)

// BatchItem is one content item in an outbound submission.
type BatchItem struct {
	ID    int64             `json:"id"`
	Text  string            `json:"text"`
	Extra map[string]string `json:"extra,omitempty"`
}

// Registration is the gateway's answer to a site registration.
type Registration struct {
	ValidationToken          string
	ValidationTokenExpiresAt time.Time
}

type registerResponse struct {
	ValidationToken          string `json:"validation_token"`
	ValidationTokenExpiresAt string `json:"validation_token_expires_at"`
	Message                  string `json:"message"`
}

// RegisterSite announces the site to the gateway with its corpus statistics
// and derived domain/path. Unlike the data operations this returns its
// error: registration is a one-time action the caller supervises.
func (c *Client) RegisterSite(ctx context.Context, stats *content.Stats) (*Registration, error) {
	domain, path := c.sitePath()
	payload := map[string]any{
		"total_pages":  stats.TotalPages,
		"average_size": stats.AverageSize,
		"std_dev_size": stats.StdDevSize,
		"domain":       domain,
		"path":         path,
	}

	body, err := c.doJSON(ctx, c.dataClient, http.MethodPost, registerPath, "", nil, payload)
	if err != nil {
		return nil, fmt.Errorf("register site: %w", err)
	}

	var resp registerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("register site: %w: %v", ErrValidation, err)
	}
	if resp.ValidationToken == "" || resp.ValidationTokenExpiresAt == "" {
		return nil, fmt.Errorf("register site: %w: missing validation token fields", ErrValidation)
	}

	expiresAt, ok := parseExpiry(json.RawMessage(`"` + resp.ValidationTokenExpiresAt + `"`))
	if !ok {
		// Some gateways trim the zone suffix; retry with one appended.
		expiresAt, ok = parseExpiry(json.RawMessage(`"` + resp.ValidationTokenExpiresAt + `Z"`))
	}
	if !ok {
		return nil, fmt.Errorf("register site: %w: unreadable expiry %q", ErrValidation, resp.ValidationTokenExpiresAt)
	}

	c.clearError()
	return &Registration{
		ValidationToken:          resp.ValidationToken,
		ValidationTokenExpiresAt: expiresAt,
	}, nil
}

type batchSizeResponse struct {
	MaxBatchSize int `json:"max_batch_size"`
	TTLSeconds   int `json:"ttl_seconds"`
}

// FetchMaxBatchSize asks the gateway for the batch byte budget and caches
// the answer. Any failure caches and returns DefaultMaxBatchSize so batch
// building always has a budget to work with.
func (c *Client) FetchMaxBatchSize(ctx context.Context) int {
	size, ttl := DefaultMaxBatchSize, DefaultBatchSizeTTL

	body, err := c.doJSON(ctx, c.dataClient, http.MethodPost, batchSizePath, c.token(ctx), nil, map[string]any{})
	if err != nil {
		c.recordError("fetchMaxBatchSize", err.Error())
	} else {
		var resp batchSizeResponse
		if err := json.Unmarshal(body, &resp); err != nil || resp.MaxBatchSize <= 0 {
			c.recordError("fetchMaxBatchSize", "invalid sizing response: "+snippet(body))
		} else {
			size = resp.MaxBatchSize
			if resp.TTLSeconds > 0 {
				ttl = time.Duration(resp.TTLSeconds) * time.Second
			}
			c.clearError()
		}
	}

	c.sizes.Set(size, ttl)
	return size
}

// MaxBatchSize returns the cached batch byte budget, refreshing it from the
// gateway when the cached value expired.
func (c *Client) MaxBatchSize(ctx context.Context) int {
	if size, ok := c.sizes.Get(); ok {
		return size
	}
	return c.FetchMaxBatchSize(ctx)
}

type storeResponse struct {
	StoredIDs []int64 `json:"stored_ids"`
}

// SubmitBatch posts the batch to the gateway. The returned ids are the ones
// the gateway confirmed storing; when the response carries no confirmation
// list the input ids are echoed back, which can over-report success if the
// gateway silently dropped items (a known looseness in the gateway
// contract). Transport and auth failures yield nil; transport errors are
// retried with backoff first.
func (c *Client) SubmitBatch(ctx context.Context, items []BatchItem) []int64 {
	if len(items) == 0 {
		return nil
	}
	token := c.token(ctx)
	if token == "" {
		return nil
	}

	var body []byte
	var err error
	backoff := c.cfg.RetryBackoff
	for attempt := 0; ; attempt++ {
		body, err = c.doJSON(ctx, c.dataClient, http.MethodPost, storePath, token, nil, items)
		// Only transport errors are worth another attempt; a rejected
		// token or a malformed response will not improve with backoff.
		if err == nil || !errors.Is(err, ErrTransport) || attempt >= c.cfg.MaxRetries || ctx.Err() != nil {
			break
		}
		c.cfg.Logger.Warn("retrying batch submission",
			"attempt", attempt+1, "max_retries", c.cfg.MaxRetries,
			"backoff_ms", backoff.Milliseconds(), "error", err)
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			continue
		}
		break
	}
	if err != nil {
		c.recordError("submitBatch", err.Error())
		return nil
	}

	var resp storeResponse
	if jsonErr := json.Unmarshal(body, &resp); jsonErr == nil && len(resp.StoredIDs) > 0 {
		c.clearError()
		return resp.StoredIDs
	}

	// No explicit confirmation: echo the input ids as processed.
	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	c.clearError()
	return ids
}

// Search runs query against the gateway and returns the raw result
// document, or nil on any failure.
func (c *Client) Search(ctx context.Context, query string) json.RawMessage {
	token := c.token(ctx)
	if token == "" {
		return nil
	}

	body, err := c.doJSON(ctx, c.dataClient, http.MethodPost, searchPath, token, nil,
		map[string]string{"text": query})
	if err != nil {
		c.recordError("search", err.Error())
		return nil
	}
	if !json.Valid(body) {
		c.recordError("search", "invalid search response: "+snippet(body))
		return nil
	}
	c.clearError()
	return json.RawMessage(body)
}

// RefreshAPIKey asks the gateway for a replacement API key. Returns "" on
// failure.
func (c *Client) RefreshAPIKey(ctx context.Context) string {
	token := c.token(ctx)
	if token == "" {
		return ""
	}

	body, err := c.doJSON(ctx, c.dataClient, http.MethodPost, refreshKeyPath, token, nil, map[string]any{})
	if err != nil {
		c.recordError("refreshAPIKey", err.Error())
		return ""
	}

	var resp struct {
		APIKey string `json:"api_key"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.APIKey == "" {
		c.recordError("refreshAPIKey", "invalid key response: "+snippet(body))
		return ""
	}

	// The old token was minted for the old key.
	c.tokens.Clear()
	c.clearError()
	return resp.APIKey
}

// RemoveFromIndex asks the gateway to drop the given ids. The gateway does
// not define a confirmation format for partial failures, so the input ids
// are echoed back on success, the same looseness as SubmitBatch. Returns
// nil on failure.
func (c *Client) RemoveFromIndex(ctx context.Context, ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	token := c.token(ctx)
	if token == "" {
		return nil
	}

	if _, err := c.doJSON(ctx, c.dataClient, http.MethodPost, removeIndexPath, token, nil,
		map[string][]int64{"ids": ids}); err != nil {
		c.recordError("removeFromIndex", err.Error())
		return nil
	}
	c.clearError()
	return ids
}

// Ping checks gateway health with the short timeout and passes the response
// through verbatim.
func (c *Client) Ping(ctx context.Context) (json.RawMessage, error) {
	body, err := c.doJSON(ctx, c.pingClient, http.MethodGet, pingPath, "", nil, nil)
	if err != nil {
		c.recordError("ping", err.Error())
		return nil, err
	}
	if !json.Valid(body) {
		err := fmt.Errorf("%w: ping response: %s", ErrValidation, snippet(body))
		c.recordError("ping", err.Error())
		return nil, err
	}
	c.clearError()
	return json.RawMessage(body), nil
}
