// Package agents connects page agents (content scripts) to the daemon over
// websockets. Each connection is one tab: it sends bus requests and
// receives responses and pushes.
package agents

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"focuser/internal/bus"
	"focuser/internal/host"
)

// ActionNavigate asks an agent to load the URL in its data.
const ActionNavigate = "navigate"

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 32
)

var ErrAgentGone = errors.New("agent disconnected")

// Frame is the unit exchanged on an agent connection. Requests carry Seq
// and Message; the matching reply carries the same Seq and Response.
// Unsolicited pushes carry only Push.
type Frame struct {
	Seq      int64         `json:"seq,omitempty"`
	Message  *bus.Message  `json:"message,omitempty"`
	Response *bus.Response `json:"response,omitempty"`
	Push     *host.Push    `json:"push,omitempty"`
}

type Dispatcher interface {
	Dispatch(ctx context.Context, msg bus.Message) bus.Response
}

type Hub struct {
	dispatcher Dispatcher
	logger     *zap.Logger
	upgrader   websocket.Upgrader

	mu     sync.Mutex
	nextID int
	agents map[string]*agent
}

type agent struct {
	id   string
	conn *websocket.Conn
	send chan Frame

	mu     sync.Mutex
	url    string
	closed bool
}

func NewHub(dispatcher Dispatcher, logger *zap.Logger) *Hub {
	return &Hub{
		dispatcher: dispatcher,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Agents run inside arbitrary pages.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		agents: make(map[string]*agent),
	}
}

// ServeHTTP upgrades the request and serves the agent until it
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("agent upgrade failed", zap.Error(err))
		return
	}

	a := h.register(conn, r.URL.Query().Get("url"))
	h.logger.Info("agent connected", zap.String("tab", a.id), zap.String("remote", r.RemoteAddr))

	go a.writePump()
	h.readPump(r.Context(), a)
}

func (h *Hub) register(conn *websocket.Conn, url string) *agent {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	a := &agent{
		id:   strconv.Itoa(h.nextID),
		conn: conn,
		send: make(chan Frame, sendBuffer),
		url:  url,
	}
	h.agents[a.id] = a
	return a
}

func (h *Hub) unregister(a *agent) {
	h.mu.Lock()
	if h.agents[a.id] == a {
		delete(h.agents, a.id)
	}
	h.mu.Unlock()
	a.close()
}

func (h *Hub) readPump(ctx context.Context, a *agent) {
	defer func() {
		h.unregister(a)
		h.logger.Info("agent disconnected", zap.String("tab", a.id))
	}()

	a.conn.SetReadLimit(maxMessageSize)
	_ = a.conn.SetReadDeadline(time.Now().Add(pongWait))
	a.conn.SetPongHandler(func(string) error {
		return a.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame Frame
		if err := a.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("agent read failed", zap.String("tab", a.id), zap.Error(err))
			}
			return
		}
		if frame.Message == nil {
			continue
		}

		msg := *frame.Message
		if msg.TabID == "" {
			msg.TabID = a.id
		}
		if msg.Action == bus.ActionTabUpdated && msg.TabID == a.id {
			a.setURL(msg.URL)
		}

		resp := h.dispatcher.Dispatch(ctx, msg)
		if err := a.enqueue(Frame{Seq: frame.Seq, Response: &resp}); err != nil {
			return
		}
	}
}

func (a *agent) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		a.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-a.send:
			_ = a.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = a.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := a.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = a.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := a.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue never blocks. An agent that cannot keep up is dropped.
func (a *agent) enqueue(f Frame) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrAgentGone
	}
	select {
	case a.send <- f:
		return nil
	default:
		a.closed = true
		close(a.send)
		return fmt.Errorf("agent %s: send buffer full", a.id)
	}
}

func (a *agent) close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.closed {
		a.closed = true
		close(a.send)
	}
}

func (a *agent) setURL(url string) {
	a.mu.Lock()
	a.url = url
	a.mu.Unlock()
}

func (a *agent) currentURL() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.url
}

func (h *Hub) lookup(tabID string) (*agent, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.agents[tabID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", host.ErrNoSuchTab, tabID)
	}
	return a, nil
}

// Query lists connected agents in connection order.
func (h *Hub) Query(ctx context.Context) ([]host.Tab, error) {
	h.mu.Lock()
	list := make([]*agent, 0, len(h.agents))
	for _, a := range h.agents {
		list = append(list, a)
	}
	h.mu.Unlock()

	sort.Slice(list, func(i, j int) bool {
		ai, _ := strconv.Atoi(list[i].id)
		aj, _ := strconv.Atoi(list[j].id)
		return ai < aj
	})
	tabs := make([]host.Tab, len(list))
	for i, a := range list {
		tabs[i] = host.Tab{ID: a.id, URL: a.currentURL()}
	}
	return tabs, nil
}

func (h *Hub) SendMessage(ctx context.Context, tabID string, push host.Push) error {
	a, err := h.lookup(tabID)
	if err != nil {
		return err
	}
	if err := a.enqueue(Frame{Push: &push}); err != nil {
		h.unregister(a)
		return err
	}
	return nil
}

func (h *Hub) Redirect(ctx context.Context, tabID, url string) error {
	return h.SendMessage(ctx, tabID, host.Push{
		Action: ActionNavigate,
		Data:   map[string]string{"url": url},
	})
}

// Count is the number of connected agents.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.agents)
}

// Close disconnects every agent.
func (h *Hub) Close() {
	h.mu.Lock()
	list := make([]*agent, 0, len(h.agents))
	for id, a := range h.agents {
		list = append(list, a)
		delete(h.agents, id)
	}
	h.mu.Unlock()

	for _, a := range list {
		a.close()
	}
}
