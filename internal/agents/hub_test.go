package agents

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"focuser/internal/bus"
	"focuser/internal/host"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingDispatcher struct {
	mu   sync.Mutex
	msgs []bus.Message
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, msg bus.Message) bus.Response {
	d.mu.Lock()
	d.msgs = append(d.msgs, msg)
	d.mu.Unlock()
	if msg.Action == "fail" {
		return bus.Response{Error: "Unknown action"}
	}
	return bus.OK(map[string]string{"tab": msg.TabID})
}

func (d *recordingDispatcher) last() bus.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.msgs[len(d.msgs)-1]
}

// clientFrame mirrors Frame with undecoded response data.
type clientFrame struct {
	Seq      int64            `json:"seq"`
	Response *bus.RawResponse `json:"response"`
	Push     *struct {
		Action string          `json:"action"`
		Data   json.RawMessage `json:"data"`
	} `json:"push"`
}

func startHub(t *testing.T) (*Hub, *recordingDispatcher, string) {
	t.Helper()
	d := &recordingDispatcher{}
	hub := NewHub(d, zap.NewNop())
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, d, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) clientFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f clientFrame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func waitForAgents(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Count() == n }, 5*time.Second, 10*time.Millisecond)
}

func TestRequestResponse(t *testing.T) {
	hub, d, wsURL := startHub(t)
	conn := dial(t, wsURL+"?url=https://example.com/")
	waitForAgents(t, hub, 1)

	require.NoError(t, conn.WriteJSON(Frame{Seq: 7, Message: &bus.Message{Action: bus.ActionGetStatus}}))
	f := read(t, conn)
	assert.Equal(t, int64(7), f.Seq)
	require.NotNil(t, f.Response)
	assert.True(t, f.Response.Success)
	assert.JSONEq(t, `{"tab":"1"}`, string(f.Response.Data))
	assert.Equal(t, "1", d.last().TabID, "requests are attributed to the sending tab")

	require.NoError(t, conn.WriteJSON(Frame{Seq: 8, Message: &bus.Message{Action: "fail"}}))
	f = read(t, conn)
	assert.Equal(t, int64(8), f.Seq)
	assert.False(t, f.Response.Success)
	assert.Equal(t, "Unknown action", f.Response.Error)

	tabs, err := hub.Query(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []host.Tab{{ID: "1", URL: "https://example.com/"}}, tabs)
}

func TestTabUpdatedTracksURL(t *testing.T) {
	hub, _, wsURL := startHub(t)
	conn := dial(t, wsURL)
	waitForAgents(t, hub, 1)

	require.NoError(t, conn.WriteJSON(Frame{Seq: 1, Message: &bus.Message{Action: bus.ActionTabUpdated, URL: "https://reddit.com/"}}))
	read(t, conn)

	tabs, err := hub.Query(context.Background())
	require.NoError(t, err)
	require.Len(t, tabs, 1)
	assert.Equal(t, "https://reddit.com/", tabs[0].URL)
}

func TestPushAndRedirect(t *testing.T) {
	hub, _, wsURL := startHub(t)
	conn := dial(t, wsURL)
	waitForAgents(t, hub, 1)

	ctx := context.Background()
	require.NoError(t, hub.SendMessage(ctx, "1", host.Push{Action: host.ActionBlockSite}))
	f := read(t, conn)
	require.NotNil(t, f.Push)
	assert.Equal(t, host.ActionBlockSite, f.Push.Action)

	require.NoError(t, hub.Redirect(ctx, "1", "http://127.0.0.1:7717/blocked/blocked.html"))
	f = read(t, conn)
	require.NotNil(t, f.Push)
	assert.Equal(t, ActionNavigate, f.Push.Action)
	assert.JSONEq(t, `{"url":"http://127.0.0.1:7717/blocked/blocked.html"}`, string(f.Push.Data))

	err := hub.SendMessage(ctx, "99", host.Push{Action: host.ActionHideTimer})
	assert.ErrorIs(t, err, host.ErrNoSuchTab)
}

func TestBroadcastSkipsDisconnectedAgents(t *testing.T) {
	hub, _, wsURL := startHub(t)
	first := dial(t, wsURL)
	second := dial(t, wsURL)
	waitForAgents(t, hub, 2)

	require.NoError(t, first.Close())
	waitForAgents(t, hub, 1)

	require.NoError(t, host.Broadcast(context.Background(), hub, host.Push{Action: host.ActionHideTimer}))
	f := read(t, second)
	require.NotNil(t, f.Push)
	assert.Equal(t, host.ActionHideTimer, f.Push.Action)
}

func TestCloseDisconnectsAgents(t *testing.T) {
	hub, _, wsURL := startHub(t)
	conn := dial(t, wsURL)
	waitForAgents(t, hub, 1)

	hub.Close()
	assert.Zero(t, hub.Count())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
