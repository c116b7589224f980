package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"focuser/internal/bus"
)

type mockDispatcher struct {
	mu   sync.Mutex
	msgs []bus.Message
}

func (m *mockDispatcher) Dispatch(ctx context.Context, msg bus.Message) bus.Response {
	m.mu.Lock()
	m.msgs = append(m.msgs, msg)
	m.mu.Unlock()
	switch msg.Action {
	case bus.ActionGetTimerStatus:
		return bus.OK(map[string]any{"state": "idle"})
	default:
		return bus.Fail(bus.ErrUnknownAction)
	}
}

func newTestServer(agents http.Handler) (*Server, *mockDispatcher) {
	gin.SetMode(gin.TestMode)
	d := &mockDispatcher{}
	s := New(Options{
		Addr:        "127.0.0.1:0",
		Dispatcher:  d,
		Agents:      agents,
		BlockedPage: "/blocked/blocked.html",
		Logger:      zap.NewNop(),
	})
	return s, d
}

func serve(s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) bus.RawResponse {
	t.Helper()
	var resp bus.RawResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHandleMessage(t *testing.T) {
	s, d := newTestServer(nil)

	w := serve(s, http.MethodPost, "/api/message", []byte(`{"action":"getTimerStatus","tabId":"3"}`))
	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.True(t, resp.Success)
	assert.JSONEq(t, `{"state":"idle"}`, string(resp.Data))

	require.Len(t, d.msgs, 1)
	assert.Equal(t, "3", d.msgs[0].TabID)
}

func TestHandleMessageUnknownAction(t *testing.T) {
	s, _ := newTestServer(nil)

	w := serve(s, http.MethodPost, "/api/message", []byte(`{"action":"nope"}`))
	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, "Unknown action", resp.Error)
}

func TestHandleMessageRejectsBadInput(t *testing.T) {
	s, d := newTestServer(nil)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"action":`},
		{"missing action", `{"site":"x.com"}`},
		{"wrong field type", `{"action":"addBlockedSite","duration":"soon"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(s, http.MethodPost, "/api/message", []byte(tt.body))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.False(t, decode(t, w).Success)
		})
	}
	assert.Empty(t, d.msgs)
}

func TestBlockedPage(t *testing.T) {
	s, _ := newTestServer(nil)

	for _, path := range []string{"/blocked", "/blocked/blocked.html?url=https%3A%2F%2Freddit.com%2F"} {
		w := serve(s, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, w.Body.String(), "Website Blocked")
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(nil)

	w := serve(s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestAgentsRoute(t *testing.T) {
	agents := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	s, _ := newTestServer(agents)
	assert.Equal(t, http.StatusTeapot, serve(s, http.MethodGet, "/api/agents", nil).Code)

	s, _ = newTestServer(nil)
	assert.Equal(t, http.StatusNotFound, serve(s, http.MethodGet, "/api/agents", nil).Code)
}

func TestRunStopsOnCancel(t *testing.T) {
	s, _ := newTestServer(nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRunReportsListenError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := New(Options{Addr: "127.0.0.1:-1", Dispatcher: &mockDispatcher{}, Logger: zap.NewNop()})

	err := s.Run(context.Background())
	assert.Error(t, err)
}
