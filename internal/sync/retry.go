package sync

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy retries a single request with delays of BaseDelay * 2^attempt.
// A request is attempted at most MaxRetries+1 times.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	// Notify is called before each retry sleep. Optional.
	Notify func(err error, next time.Duration)
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: 500 * time.Millisecond}
}

// Do runs op until it succeeds, fails terminally, or retries run out. The
// returned error is always nil, a *NetworkError or a *ClientRequestError.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	base := p.BaseDelay
	if base <= 0 {
		base = time.Millisecond
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = base << maxRetries

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(maxRetries + 1)),
	}
	if p.Notify != nil {
		opts = append(opts, backoff.WithNotify(backoff.Notify(p.Notify)))
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := Classify(op(ctx))
		var clientErr *ClientRequestError
		if errors.As(err, &clientErr) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, opts...)

	return Classify(err)
}
