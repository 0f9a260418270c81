package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_PostJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "req-1", r.Header.Get(RequestIDHeader))
		assert.Equal(t, "sess-1", r.Header.Get(SessionIDHeader))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"messages":[]}`, string(body))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	resp, err := NewClient(0).PostJSON(context.Background(), server.URL+"/chat", []byte(`{"messages":[]}`), CorrelationHeader("sess-1", "req-1"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.True(t, IsSuccess(resp.StatusCode))
}

func TestClient_PostJSON_NoRequestID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get(RequestIDHeader))
		assert.Empty(t, r.Header.Get(SessionIDHeader))
	}))
	defer server.Close()

	resp, err := NewClientWith(server.Client()).PostJSON(context.Background(), server.URL, []byte(`{}`), CorrelationHeader("", ""))
	require.NoError(t, err)
	resp.Body.Close()
}

func TestClient_PostJSON_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(0).PostJSON(ctx, "http://127.0.0.1:1/chat", []byte(`{}`), nil)
	assert.Error(t, err)
}

func TestIsSuccess(t *testing.T) {
	assert.True(t, IsSuccess(200))
	assert.True(t, IsSuccess(204))
	assert.False(t, IsSuccess(199))
	assert.False(t, IsSuccess(301))
	assert.False(t, IsSuccess(500))
}
