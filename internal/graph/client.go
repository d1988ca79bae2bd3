// Package graph is a small client for the Instagram Graph API endpoints the
// service needs: reading the connected account and replying to a comment.
//
// Every call waits on a shared rate limiter and runs inside a circuit
// breaker. Only availability failures count against the breaker; a rejected
// token or a malformed request never trips it.
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://graph.facebook.com"
	DefaultVersion = "v21.0"

	maxResponseBytes      = 1 << 20
	defaultRequestTimeout = 10 * time.Second
)

// Config holds the client's tunables. Zero values fall back to defaults.
type Config struct {
	BaseURL           string
	Version           string
	RequestsPerSecond float64
	// RequestTimeout bounds one HTTP exchange. A Timeout set on HTTPClient
	// is moved here, since the oauth2 transport cannot cancel by that path.
	RequestTimeout time.Duration
	HTTPClient     *http.Client
}

// Account is the subset of an IG user node the service reads.
type Account struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	version := strings.Trim(cfg.Version, "/")
	if version == "" {
		version = DefaultVersion
	}

	timeout := cfg.RequestTimeout
	httpClient := &http.Client{}
	if cfg.HTTPClient != nil {
		clone := *cfg.HTTPClient
		if timeout <= 0 {
			timeout = clone.Timeout
		}
		clone.Timeout = 0
		httpClient = &clone
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 20
	}
	burst := max(int(rps), 1)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "InstagramGraph",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return &Client{
		baseURL: base + "/" + version,
		http:    httpClient,
		timeout: timeout,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		breaker: breaker,
		logger:  logger,
	}
}

// GetAccount reads id and username of igUserID using accessToken. It is the
// live check behind credential validation.
func (c *Client) GetAccount(ctx context.Context, accessToken, igUserID string) (*Account, error) {
	endpoint := c.baseURL + "/" + url.PathEscape(igUserID) + "?" + url.Values{"fields": {"id,username"}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("graph: building account request: %w", err)
	}

	var account Account
	if err := c.do(ctx, accessToken, req, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// ReplyToComment posts message as a reply to commentID and returns the new
// comment's id.
func (c *Client) ReplyToComment(ctx context.Context, accessToken, commentID, message string) (string, error) {
	endpoint := c.baseURL + "/" + url.PathEscape(commentID) + "/replies"
	form := url.Values{"message": {message}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("graph: building reply request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var created struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, accessToken, req, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

func (c *Client) do(ctx context.Context, accessToken string, req *http.Request, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("graph: waiting for rate limiter: %w", err)
	}

	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, accessToken, req, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, accessToken string, req *http.Request, out any) error {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	client := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, c.http), src)

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := client.Do(req.WithContext(reqCtx))
	if err != nil {
		// The caller giving up is final; our own per-request bound is not.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("graph: %s %s: %w", req.Method, req.URL.Path, ctxErr)
		}
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := classify(resp.StatusCode, body)
		c.logger.Debug("graph request failed",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.Int("status", resp.StatusCode),
			slog.Int("code", apiErr.Code),
		)
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
	}
	return nil
}
