package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focuser/internal/bus"
)

func newDaemon(t *testing.T, handler func(bus.Message) bus.Response) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/message", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		var msg bus.Message
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(handler(msg)))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCallDecodesData(t *testing.T) {
	srv := newDaemon(t, func(msg bus.Message) bus.Response {
		return bus.OK(map[string]any{"action": msg.Action, "site": msg.Site})
	})

	var out struct {
		Action string `json:"action"`
		Site   string `json:"site"`
	}
	err := New(srv.URL+"/").Call(context.Background(), bus.Message{Action: bus.ActionAddBlockedSite, Site: "x.com"}, &out)
	require.NoError(t, err)
	assert.Equal(t, bus.ActionAddBlockedSite, out.Action)
	assert.Equal(t, "x.com", out.Site)
}

func TestCallReturnsBusFailure(t *testing.T) {
	srv := newDaemon(t, func(bus.Message) bus.Response {
		return bus.Fail(bus.ErrUnknownAction)
	})

	c := New(srv.URL)
	resp, err := c.Send(context.Background(), bus.Message{Action: "bogus"})
	require.NoError(t, err)
	assert.False(t, resp.Success)

	err = c.Call(context.Background(), bus.Message{Action: "bogus"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unknown action")
}

func TestNewAcceptsHostPort(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:7717", New("127.0.0.1:7717").baseURL)
	assert.Equal(t, "https://focus.local", New("https://focus.local/").baseURL)
}

func TestSendWithoutDaemon(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := New(addr).Send(context.Background(), bus.Message{Action: bus.ActionGetStatus})
	assert.Error(t, err)
}
