package remote

import (
	"errors"
	"fmt"
)

// ErrTransport covers network failures and timeouts talking to the gateway.
var ErrTransport = errors.New("remote: transport error")

// ErrAuth covers a missing API key or a token the gateway rejected.
var ErrAuth = errors.New("remote: authentication error")

// ErrValidation covers responses the client could not make sense of.
var ErrValidation = errors.New("remote: invalid response")

// ClientError is the structured last-error a degraded operation records.
type ClientError struct {
	Object  string `json:"object"`
	Op      string `json:"op"`
	Message string `json:"message"`
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Object, e.Op, e.Message)
}
