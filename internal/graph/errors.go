package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sakif/comment-autoreply/internal/apperror"
)

// Error classes. Each wraps the apperror sentinel callers branch on, so a
// handler can map any graph failure without importing this package.
var (
	ErrTokenInvalid = fmt.Errorf("graph: access token rejected: %w", apperror.ErrUnauthenticated)
	ErrRateLimited  = fmt.Errorf("graph: rate limited: %w", apperror.ErrTransient)
	ErrUnavailable  = fmt.Errorf("graph: unavailable: %w", apperror.ErrTransient)
	ErrRejected     = fmt.Errorf("graph: request rejected: %w", apperror.ErrValidation)
)

// Graph error codes that signal throttling.
var rateLimitCodes = map[int]bool{
	4:   true, // application request limit
	17:  true, // user request limit
	32:  true, // page request limit
	613: true, // calls within one hour exceeded
}

const codeInvalidToken = 190

// APIError is a non-2xx Graph response.
type APIError struct {
	Status  int
	Code    int    `json:"code"`
	Subcode int    `json:"error_subcode"`
	Type    string `json:"type"`
	Message string `json:"message"`

	class error
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("graph: HTTP %d", e.Status)
	}
	return fmt.Sprintf("graph: HTTP %d code %d: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return e.class }

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable)
}

// Retryable lets the client stand in for the dispatcher's failure classifier.
func (c *Client) Retryable(err error) bool { return Retryable(err) }

// classify turns a non-2xx response into an *APIError carrying its class.
func classify(status int, body []byte) *APIError {
	var envelope struct {
		Error APIError `json:"error"`
	}
	_ = json.Unmarshal(body, &envelope)

	apiErr := envelope.Error
	apiErr.Status = status

	switch {
	case apiErr.Code == codeInvalidToken || status == http.StatusUnauthorized:
		apiErr.class = ErrTokenInvalid
	case rateLimitCodes[apiErr.Code] || status == http.StatusTooManyRequests:
		apiErr.class = ErrRateLimited
	case status >= http.StatusInternalServerError:
		apiErr.class = ErrUnavailable
	default:
		apiErr.class = ErrRejected
	}

	return &apiErr
}
