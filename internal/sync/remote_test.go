package sync

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitReusesConnection(t *testing.T) {
	var conns atomic.Int32
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"event":{"count":1},"created":true,"evaluation":{"skipped":true}}`))
	}))
	srv.Config.ConnState = func(_ net.Conn, state http.ConnState) {
		if state == http.StateNew {
			conns.Add(1)
		}
	}
	srv.Start()
	t.Cleanup(srv.Close)

	remote := NewHTTPRemote(srv.URL, time.Second)
	for i := 0; i < 5; i++ {
		err := remote.Submit(context.Background(), "token", KindCountEvent, json.RawMessage(`{"count":1}`))
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), conns.Load())
}

func TestSubmitMapsErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"count must be at least 1"}`))
	}))
	t.Cleanup(srv.Close)

	err := NewHTTPRemote(srv.URL, time.Second).Submit(context.Background(), "token", KindCountEvent, json.RawMessage(`{"count":0}`))
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Equal(t, "count must be at least 1", statusErr.Message)
}
