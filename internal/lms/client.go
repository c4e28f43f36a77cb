package lms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/learningops/lmsync/internal/config"
)

// MetricsRecorder receives one event per request attempt, success or failure.
type MetricsRecorder interface {
	RecordAPICall(endpoint, method string, status int, duration time.Duration, success bool)
}

// AlertSink observes API-call outcomes for consecutive-failure alerting.
type AlertSink interface {
	APIError(endpoint string, status int, msg string)
	ResetAPIErrors()
}

// Client performs rate-limited, retrying calls against the LMS API. The
// sliding window and the token cache are shared by all pipelines in the
// process; both are internally synchronized.
type Client struct {
	baseURL    string
	retry      config.RetryConfig
	tokens     *TokenManager
	httpClient *http.Client
	window     *rateWindow
	metrics    MetricsRecorder
	alerts     AlertSink
	logger     *slog.Logger
}

// NewClient wires a client against the remote API.
func NewClient(
	cfg config.LMSConfig,
	rateCfg config.RateLimitConfig,
	retryCfg config.RetryConfig,
	tokens *TokenManager,
	metrics MetricsRecorder,
	alerts AlertSink,
	logger *slog.Logger,
) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		retry:   retryCfg,
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		window:  newRateWindow(rateCfg.Window, rateCfg.MaxRequests),
		metrics: metrics,
		alerts:  alerts,
		logger:  logger,
	}
}

// Get performs a rate-limited GET and returns the raw response body.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	return c.Request(ctx, http.MethodGet, path, query, nil)
}

// Request performs one logical call with admission control, token handling and
// retry. 429 and a single 401 are recovered without consuming attempt slots;
// network errors and 5xx responses burn exponential-backoff attempts; other
// 4xx responses fail immediately.
func (c *Client) Request(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	tokenRetried := false
	var lastErr error

	for attempt := 0; attempt < c.retry.MaxAttempts; {
		// The retry loop observes cancellation between attempts.
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := c.window.admit(ctx); err != nil {
			return nil, err
		}

		result, err := c.attempt(ctx, method, path, query, body)
		if err == nil {
			c.alerts.ResetAPIErrors()
			return result, nil
		}

		var statusErr *httpStatusError
		switch {
		case errors.As(err, &statusErr) && statusErr.status == http.StatusTooManyRequests:
			// Server-side throttle: honor Retry-After without consuming an
			// attempt slot.
			delay := statusErr.retryAfter
			if delay <= 0 {
				delay = c.retry.BaseDelay
			}
			c.logger.Warn("rate limited by server", "endpoint", path, "retry_after", delay)
			if err := sleepCtx(ctx, delay); err != nil {
				return nil, err
			}

		case errors.As(err, &statusErr) && statusErr.status == http.StatusUnauthorized:
			if tokenRetried {
				authErr := &AuthError{Status: http.StatusUnauthorized, Msg: "request unauthorized after token refresh"}
				c.alerts.APIError(path, http.StatusUnauthorized, authErr.Error())
				return nil, authErr
			}
			tokenRetried = true
			c.logger.Info("token rejected, refreshing", "endpoint", path)
			c.tokens.Clear()

		case statusErr == nil && isFatal(err):
			// Token refresh failed or the context was cancelled mid-attempt.
			var authErr *AuthError
			if errors.As(err, &authErr) {
				c.alerts.APIError(path, authErr.Status, authErr.Error())
			}
			return nil, err

		case errors.As(err, &statusErr) && statusErr.status >= 400 && statusErr.status < 500:
			apiErr := &APIError{Status: statusErr.status, Endpoint: path, Body: statusErr.body}
			c.alerts.APIError(path, statusErr.status, apiErr.Error())
			return nil, apiErr

		default:
			// Network error or 5xx: exponential series.
			status := 0
			if statusErr != nil {
				status = statusErr.status
			}
			c.alerts.APIError(path, status, err.Error())
			lastErr = err

			attempt++
			if attempt >= c.retry.MaxAttempts {
				break
			}

			backoff := c.retry.BaseDelay * (1 << (attempt - 1))
			c.logger.Warn("transient api error, backing off",
				"endpoint", path,
				"attempt", attempt,
				"backoff", backoff,
				"error", err,
			)
			if err := sleepCtx(ctx, backoff); err != nil {
				return nil, err
			}
		}
	}

	return nil, &RetryExhaustedError{Attempts: c.retry.MaxAttempts, Last: lastErr}
}

// attempt performs exactly one HTTP round trip. The metrics event is recorded
// in a deferred path so it fires on every outcome.
func (c *Client) attempt(ctx context.Context, method, path string, query url.Values, body any) (result json.RawMessage, err error) {
	start := time.Now()
	status := 0
	defer func() {
		c.metrics.RecordAPICall(path, method, status, time.Since(start), err == nil)
	}()

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, &APIError{Endpoint: path, Body: fmt.Sprintf("marshal request body: %v", err)}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	status = resp.StatusCode

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if status >= 200 && status <= 299 {
		return data, nil
	}

	serr := &httpStatusError{status: status, body: truncate(string(data), 500)}
	if status == http.StatusTooManyRequests {
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, perr := strconv.Atoi(v); perr == nil && seconds >= 0 {
				serr.retryAfter = time.Duration(seconds) * time.Second
			}
		}
	}

	return nil, serr
}

// httpStatusError carries a non-2xx response through the retry loop for
// classification.
type httpStatusError struct {
	status     int
	retryAfter time.Duration
	body       string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.status, e.body)
}

// isFatal reports whether the error must bypass the retry series entirely.
func isFatal(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// sleepCtx waits for d unless the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
