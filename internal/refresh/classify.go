// Package refresh executes the OAuth refresh-token grant for stored profiles,
// classifies provider failures and persists an audit trail of each attempt.
package refresh

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Reason is the classified cause of a rejected refresh token.
type Reason string

const (
	ReasonExpired   Reason = "expired"
	ReasonExhausted Reason = "exhausted"
	ReasonRevoked   Reason = "revoked"
	ReasonOther     Reason = "other"
)

// Fixed user-facing messages per reason. The provider's own wording is never
// echoed so UI guidance stays stable across provider changes.
const (
	expiredMessage   = "Your access token could not be refreshed because your refresh token has expired. Please log out and sign in again."
	exhaustedMessage = "Your access token could not be refreshed because your refresh token was already used. Please log out and sign in again."
	revokedMessage   = "Your access token could not be refreshed because your refresh token was revoked. Please log out and sign in again."
	unknownMessage   = "Your access token could not be refreshed. Please log out and sign in again."
)

// TokenRejectedError is a classified 401 from the refresh endpoint.
type TokenRejectedError struct {
	Reason  Reason
	Message string
}

func (e *TokenRejectedError) Error() string { return e.Message }

// UnavailableError indicates a network failure or an unexpected response from
// the provider's token endpoint.
type UnavailableError struct {
	Status int
	Body   string
	Err    error
	Hint   string
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("refresh request failed: %v.%s", e.Err, e.Hint)
	}
	return fmt.Sprintf("refresh request failed: status %d: %s", e.Status, e.Body)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// extractErrorCode pulls an error code out of a token-endpoint failure body,
// checking error.code, then a bare string error, then a top-level code.
func extractErrorCode(body string) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}
	var root map[string]any
	if err := json.Unmarshal([]byte(body), &root); err != nil {
		return ""
	}

	switch errField := root["error"].(type) {
	case map[string]any:
		if code, ok := errField["code"].(string); ok {
			return code
		}
	case string:
		return errField
	}
	if code, ok := root["code"].(string); ok {
		return code
	}
	return ""
}

// ClassifyFailure maps a 401 response body to its rejection reason and fixed
// message. It is a pure function of the body.
func ClassifyFailure(body string) *TokenRejectedError {
	var reason Reason
	switch strings.ToLower(extractErrorCode(body)) {
	case "refresh_token_expired":
		reason = ReasonExpired
	case "refresh_token_reused":
		reason = ReasonExhausted
	case "refresh_token_invalidated":
		reason = ReasonRevoked
	default:
		reason = ReasonOther
	}

	var message string
	switch reason {
	case ReasonExpired:
		message = expiredMessage
	case ReasonExhausted:
		message = exhaustedMessage
	case ReasonRevoked:
		message = revokedMessage
	default:
		message = unknownMessage
	}
	return &TokenRejectedError{Reason: reason, Message: message}
}
