package model

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"
)

const retryBase = 300 * time.Millisecond

// WithRetry runs fn with exponential backoff until it succeeds, returns a
// non-retryable error, or attempts run out.
func WithRetry(ctx context.Context, attempts uint64, fn func(ctx context.Context) error) error {
	if attempts == 0 {
		attempts = 1
	}
	b := retry.WithMaxRetries(attempts-1, retry.NewExponential(retryBase))
	return retry.Do(ctx, b, fn)
}

// CheckResponse turns a resty result into an error, marking transport
// failures, 429 and 5xx as retryable.
func CheckResponse(resp *resty.Response, err error) error {
	if err != nil {
		return retry.RetryableError(err)
	}
	if !resp.IsError() {
		return nil
	}
	herr := fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String())
	if resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= 500 {
		return retry.RetryableError(herr)
	}
	return herr
}
