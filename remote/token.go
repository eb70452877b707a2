package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// defaultTokenTTL is used when neither the response nor the token itself
// carries a usable expiry.
const defaultTokenTTL = 15 * time.Minute

type tokenResponse struct {
	Token string          `json:"token"`
	Exp   json.RawMessage `json:"exp"`
}

// token returns a valid bearer token, fetching a fresh one when the cached
// token expired. An empty string means acquisition failed; the cause is in
// LastError.
func (c *Client) token(ctx context.Context) string {
	if tok, ok := c.tokens.Get(); ok {
		return tok
	}
	return c.fetchToken(ctx)
}

// fetchToken exchanges the API key for a bearer token and caches it for the
// server-supplied validity window.
func (c *Client) fetchToken(ctx context.Context) string {
	if c.cfg.Key == nil {
		c.recordError("fetchToken", "no API key provider configured")
		return ""
	}
	apiKey, err := c.cfg.Key(ctx)
	if err != nil {
		c.recordError("fetchToken", fmt.Sprintf("API key: %v", err))
		return ""
	}
	if apiKey == "" {
		c.recordError("fetchToken", "API key not set")
		return ""
	}

	body, err := c.doJSON(ctx, c.dataClient, http.MethodPost, authTokenPath, "",
		map[string]string{"X-API-Key": apiKey}, nil)
	if err != nil {
		c.recordError("fetchToken", err.Error())
		return ""
	}

	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Token == "" {
		c.recordError("fetchToken", "invalid token response: "+snippet(body))
		return ""
	}

	c.tokens.Set(resp.Token, c.tokenTTL(resp))
	c.clearError()
	return resp.Token
}

// tokenTTL derives the cache window from the server's exp field, which may
// be a unix timestamp or an RFC 3339 string. When the field is absent or
// unreadable the token's own exp claim is used instead; the signature is
// not checked here because the signing key lives on the gateway.
func (c *Client) tokenTTL(resp tokenResponse) time.Duration {
	if exp, ok := parseExpiry(resp.Exp); ok {
		if ttl := time.Until(exp); ttl > 0 {
			return ttl
		}
		return 0
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(resp.Token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			if ttl := time.Until(exp.Time); ttl > 0 {
				return ttl
			}
			return 0
		}
	}
	return defaultTokenTTL
}

func parseExpiry(raw json.RawMessage) (time.Time, bool) {
	if len(raw) == 0 {
		return time.Time{}, false
	}
	var unix int64
	if err := json.Unmarshal(raw, &unix); err == nil && unix > 0 {
		return time.Unix(unix, 0), true
	}
	var iso string
	if err := json.Unmarshal(raw, &iso); err == nil {
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, iso); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
