package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultRequestTimeout = 10 * time.Second
	LivenessTimeout       = 3 * time.Second
	livenessPath          = "/health/live"
)

// Remote is the server of record as seen by the device.
type Remote interface {
	// Submit writes one payload to the endpoint for its kind.
	Submit(ctx context.Context, token string, kind Kind, payload json.RawMessage) error
	// Ping succeeds only when the liveness endpoint answered 200.
	Ping(ctx context.Context) error
}

// HTTPRemote talks to the API server over HTTP. Every call carries the
// client timeout; an expired call is a NetworkError, never a success.
type HTTPRemote struct {
	baseURL string
	client  *http.Client
}

func NewHTTPRemote(baseURL string, timeout time.Duration) *HTTPRemote {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &HTTPRemote{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func endpointFor(kind Kind) (string, error) {
	switch kind {
	case KindCountEvent:
		return "/api/v1/events", nil
	case KindJournalEntry:
		return "/api/v1/journal", nil
	}
	return "", fmt.Errorf("unknown item kind %q", kind)
}

func (r *HTTPRemote) Submit(ctx context.Context, token string, kind Kind, payload json.RawMessage) error {
	path, err := endpointFor(kind)
	if err != nil {
		return &ClientRequestError{StatusCode: http.StatusBadRequest, Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := r.client.Do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return err
	}
	// read to EOF so the connection goes back to the pool
	io.Copy(io.Discard, resp.Body)
	return nil
}

func (r *HTTPRemote) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, LivenessTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+livenessPath, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}

// GetJSON fetches an authenticated resource into out. Used for read-only
// data the device caches, such as the quit plan.
func (r *HTTPRemote) GetJSON(ctx context.Context, token, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := r.client.Do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var payload struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: msg}
}
