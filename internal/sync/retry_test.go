package sync

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		status   int
		terminal bool
	}{
		{http.StatusBadRequest, true},
		{http.StatusUnauthorized, true},
		{http.StatusNotFound, true},
		{http.StatusUnprocessableEntity, true},
		{http.StatusRequestTimeout, false},
		{http.StatusTooManyRequests, false},
		{http.StatusInternalServerError, false},
		{http.StatusServiceUnavailable, false},
	}
	for _, tc := range cases {
		err := Classify(&StatusError{StatusCode: tc.status})
		var clientErr *ClientRequestError
		var netErr *NetworkError
		if tc.terminal {
			assert.True(t, errors.As(err, &clientErr), "status %d", tc.status)
		} else {
			assert.True(t, errors.As(err, &netErr), "status %d", tc.status)
		}
	}

	assert.Nil(t, Classify(nil))
	var netErr *NetworkError
	assert.True(t, errors.As(Classify(errors.New("connection refused")), &netErr))
}

func TestRetryDelaysDouble(t *testing.T) {
	var delays []time.Duration
	p := RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		Notify:     func(_ error, next time.Duration) { delays = append(delays, next) },
	}

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return &StatusError{StatusCode: http.StatusBadGateway}
	})

	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond}, delays)
}

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := RetryPolicy{MaxRetries: 5, BaseDelay: time.Millisecond}.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return &NetworkError{Err: errors.New("reset")}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := RetryPolicy{MaxRetries: 5, BaseDelay: time.Hour}.Do(ctx, func(context.Context) error {
		return &NetworkError{Err: errors.New("down")}
	})
	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.ErrorIs(t, err, context.Canceled)
}
