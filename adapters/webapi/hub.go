package webapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/scholarpress/orchestrator"
)

const (
	writeWait      = 10 * time.Second
	clientBuffer   = 64
	pingInterval   = 30 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub pushes status change events to websocket subscribers. It implements
// orchestrator.Notifier so it can be wired straight into the engine. A
// client that cannot keep up has its events dropped, the query API remains
// the source of truth.
type Hub struct {
	logger orchestrator.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]chan orchestrator.Event
}

func NewHub(logger orchestrator.Logger) *Hub {
	if logger == nil {
		logger = orchestrator.NopLogger()
	}

	return &Hub{
		logger:  logger,
		clients: make(map[*websocket.Conn]chan orchestrator.Event),
	}
}

var _ orchestrator.Notifier = (*Hub)(nil)

func (h *Hub) Notify(ctx context.Context, e orchestrator.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.clients {
		select {
		case ch <- e:
		default:
		}
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

func (h *Hub) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// NoReturnErr: the upgrader already replied to the client.
		h.logger.Error(r.Context(), err)
		return
	}

	ch := make(chan orchestrator.Event, clientBuffer)

	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()

	go h.writeLoop(conn, ch)
	h.readLoop(conn)
}

// writeLoop pushes events and keepalive pings until the connection dies.
func (h *Hub) writeLoop(conn *websocket.Conn, ch chan orchestrator.Event) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case e := <-ch:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteJSON(e)
			if err != nil {
				h.drop(conn)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			if err != nil {
				h.drop(conn)
				return
			}
		}
	}
}

// readLoop consumes control frames until the client disconnects. Inbound
// data frames are ignored, the stream is one way.
func (h *Hub) readLoop(conn *websocket.Conn) {
	defer h.drop(conn)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			return
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()

	if ok {
		conn.Close()
	}
}
