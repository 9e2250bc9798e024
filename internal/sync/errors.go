package sync

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrDrainInProgress is returned by Drain when another drain already holds
// the queue. Nothing was submitted.
var ErrDrainInProgress = errors.New("sync: drain already in progress")

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server responded %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("server responded %d: %s", e.StatusCode, e.Message)
}

// NetworkError is a transient failure: no connection, timeout, 5xx, 408 or
// 429. It is retried and, when retries run out, the item stays queued.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("sync: network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ClientRequestError is a 4xx answer other than 408 and 429. The request can
// never succeed as sent, so it is neither retried nor queued.
type ClientRequestError struct {
	StatusCode int
	Message    string
}

func (e *ClientRequestError) Error() string {
	return fmt.Sprintf("sync: request rejected with %d: %s", e.StatusCode, e.Message)
}

// Unauthorized reports a credential problem rather than a bad payload.
// The item itself is fine and must be kept.
func (e *ClientRequestError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// Classify maps any error from a Remote onto NetworkError or
// ClientRequestError. nil stays nil.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var clientErr *ClientRequestError
	if errors.As(err, &clientErr) {
		return clientErr
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return netErr
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if isTerminalStatus(statusErr.StatusCode) {
			return &ClientRequestError{StatusCode: statusErr.StatusCode, Message: statusErr.Message}
		}
	}
	return &NetworkError{Err: err}
}

func isTerminalStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return false
	}
	return code >= 400 && code < 500
}
