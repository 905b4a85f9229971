// Package upstream talks to the external game service, either directly or
// through one of the redundant proxy gateways. All outbound HTTP calls are
// routed through the BaseClient, which enforces consistent resilience
// patterns: circuit breaking, bounded retries with jitter, and error mapping.
package upstream

import (
	"bytes"
	"errors"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"

	"questward/internal/types"
)

// Circuit breaker tuning shared by every transport. Each transport still owns
// a distinct breaker instance so one broken gateway does not trip the others.
const (
	breakerTripAfter     = 5
	breakerCountInterval = time.Minute
	breakerCooldown      = 30 * time.Second
)

// RetryPolicy configures the retry behavior for the BaseClient.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy returns sensible defaults for upstream API calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		MinWait:    500 * time.Millisecond,
		MaxWait:    8 * time.Second,
	}
}

// BaseClient wraps an *http.Client and a circuit breaker. Transports and the
// delivery channel embed it to inherit the same resilience behavior.
type BaseClient struct {
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker[*http.Response]
	retryPolicy RetryPolicy
	userAgent   string
	sleepFn     func(time.Duration) // for testability; defaults to time.Sleep
}

// BaseClientOption is a functional option for configuring a BaseClient.
type BaseClientOption func(*BaseClient)

// WithSleepFunc overrides the sleep function used between retries.
// This is intended for testing to avoid real delays.
func WithSleepFunc(fn func(time.Duration)) BaseClientOption {
	return func(c *BaseClient) {
		c.sleepFn = fn
	}
}

// NewBaseClient creates a BaseClient with its own circuit breaker named after
// the transport it serves.
func NewBaseClient(
	httpClient *http.Client,
	breakerName string,
	retryPolicy RetryPolicy,
	userAgent string,
	opts ...BaseClientOption,
) *BaseClient {
	bc := &BaseClient{
		client: httpClient,
		breaker: gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
			Name:        breakerName,
			MaxRequests: 1,
			Interval:    breakerCountInterval,
			Timeout:     breakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerTripAfter
			},
		}),
		retryPolicy: retryPolicy,
		userAgent:   userAgent,
		sleepFn:     time.Sleep,
	}
	for _, opt := range opts {
		opt(bc)
	}
	return bc
}

// Do executes the HTTP request with run-ID propagation, User-Agent injection,
// circuit breaker wrapping, and retry on 429/5xx (respecting Retry-After).
//
// Any other status, 4xx included, is handed back as-is with its body open for
// the caller to decode and close; the retcode inside the envelope, not the
// HTTP status, decides whether the account failed terminally. On exhausted
// retries or an open breaker, Do returns a types.AppError.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	if runID := types.GetRunID(req.Context()); runID != "" {
		req.Header.Set("X-Run-Id", runID)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	body, err := snapshotBody(req)
	if err != nil {
		return nil, err
	}

	var resp *http.Response
	var attemptErr error
	for attempt := 0; attempt <= c.retryPolicy.MaxRetries; attempt++ {
		if attempt > 0 {
			if resp != nil {
				resp.Body.Close()
			}
			c.sleepFn(c.computeBackoff(attempt-1, resp))
		}
		body.rewind(req)

		resp, attemptErr = c.breaker.Execute(func() (*http.Response, error) {
			return c.send(req)
		})
		if attemptErr == nil {
			return resp, nil
		}
		if errors.Is(attemptErr, gobreaker.ErrOpenState) || errors.Is(attemptErr, gobreaker.ErrTooManyRequests) {
			// The breaker will not close within this call.
			break
		}
	}

	if resp != nil {
		resp.Body.Close()
	}
	return nil, c.mapError(resp, attemptErr)
}

// send performs one attempt. Retryable statuses are surfaced as errors so the
// breaker counts them as failures.
func (c *BaseClient) send(req *http.Request) (*http.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if retryableStatus(resp.StatusCode) {
		return resp, &retryableStatusError{status: resp.StatusCode}
	}
	return resp, nil
}

func retryableStatus(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests
}

type retryableStatusError struct {
	status int
}

func (e *retryableStatusError) Error() string {
	return "upstream returned " + strconv.Itoa(e.status)
}

// replayBody holds a snapshot of the request body so each attempt sends the
// same payload.
type replayBody []byte

func snapshotBody(req *http.Request) (replayBody, error) {
	if req.Body == nil {
		return nil, nil
	}
	raw, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to buffer request body for retries",
			err,
		)
	}
	return replayBody(raw), nil
}

func (b replayBody) rewind(req *http.Request) {
	if b == nil {
		return
	}
	req.Body = io.NopCloser(bytes.NewReader(b))
	req.ContentLength = int64(len(b))
}

// computeBackoff determines the wait before the next retry. A parseable
// Retry-After header wins; otherwise the wait is exponential with full jitter.
// Either way the result stays within [MinWait, MaxWait].
func (c *BaseClient) computeBackoff(attempt int, resp *http.Response) time.Duration {
	if wait, ok := retryAfterWait(resp); ok {
		return c.clamp(wait)
	}
	ceiling := c.clamp(c.retryPolicy.MinWait << attempt)
	if ceiling <= c.retryPolicy.MinWait {
		return c.retryPolicy.MinWait
	}
	jitter := rand.Int64N(int64(ceiling - c.retryPolicy.MinWait))
	return c.retryPolicy.MinWait + time.Duration(jitter)
}

func (c *BaseClient) clamp(wait time.Duration) time.Duration {
	if wait < c.retryPolicy.MinWait {
		return c.retryPolicy.MinWait
	}
	if wait > c.retryPolicy.MaxWait {
		return c.retryPolicy.MaxWait
	}
	return wait
}

// retryAfterWait reads the Retry-After header in either its delta-seconds or
// HTTP-date form.
func retryAfterWait(resp *http.Response) (time.Duration, bool) {
	if resp == nil {
		return 0, false
	}
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second, true
	}
	if at, err := http.ParseTime(header); err == nil {
		return time.Until(at), true
	}
	return 0, false
}

// mapError translates an exhausted or short-circuited request into the domain
// error taxonomy.
func (c *BaseClient) mapError(resp *http.Response, err error) *types.AppError {
	code := types.ErrCodeUpstreamUnavailable
	message := "upstream request failed"

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		code = types.ErrCodeUpstreamRateLimited
		message = "circuit breaker is open; upstream unavailable"
	case resp != nil && resp.StatusCode == http.StatusTooManyRequests:
		code = types.ErrCodeUpstreamRateLimited
		message = "upstream rate limit exceeded"
	case resp != nil:
		message = "upstream returned " + strconv.Itoa(resp.StatusCode) + " after retries"
	}
	return types.NewAppError(code, message, err)
}
