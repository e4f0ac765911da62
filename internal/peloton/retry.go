package peloton

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// maxRetryAttempts caps total tries, the initial call included.
const maxRetryAttempts = 3

// WithRetry runs an API call with bounded exponential backoff for transient
// failures. Access errors don't get retried: a private profile stays private
// and the 401 path already has its own refresh-and-retry built in.
func WithRetry[T any](ctx context.Context, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 30 * time.Second

	return backoff.RetryWithData(func() (T, error) {
		v, err := op()
		if err != nil && (errors.Is(err, ErrForbidden) || errors.Is(err, ErrUnauthorized)) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithContext(backoff.WithMaxRetries(b, maxRetryAttempts-1), ctx))
}
