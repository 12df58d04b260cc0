package utility

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

// client serializes writes to one connection.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (cl *client) writeJSON(v interface{}) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return cl.conn.WriteJSON(v)
}

func (cl *client) close(reason string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	_ = cl.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(writeWait))
	cl.conn.Close()
}

// Hub holds at most one live connection per flow. All writes go through the
// hub so a connection never has two concurrent writers. The hub lock only
// guards the map; a slow connection holds up nobody but its own flow.
type Hub struct {
	mu       sync.Mutex
	clients  map[string]*client
	Upgrader websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*client),
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The browser client is served from another origin in development.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Register attaches conn to flowID, closing any connection it replaces.
func (h *Hub) Register(flowID string, conn *websocket.Conn) {
	h.mu.Lock()
	old, ok := h.clients[flowID]
	h.clients[flowID] = &client{conn: conn}
	h.mu.Unlock()

	if ok && old.conn != conn {
		old.close("replaced by a new session")
	}
	log.Info().Str("flow_id", flowID).Msg("WebSocket Client Connected")
}

// Unregister detaches conn if it is still the flow's current connection.
func (h *Hub) Unregister(flowID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.clients[flowID]; ok && current.conn == conn {
		delete(h.clients, flowID)
		log.Info().Str("flow_id", flowID).Msg("WebSocket Client Disconnected")
	}
}

// Send writes v as JSON to the flow's connection, if there is one. A failed
// write drops the connection.
func (h *Hub) Send(flowID string, v interface{}) error {
	h.mu.Lock()
	cl, ok := h.clients[flowID]
	h.mu.Unlock()
	if !ok {
		return nil
	}

	if err := cl.writeJSON(v); err != nil {
		log.Error().Err(err).Str("flow_id", flowID).Msg("Failed to send WS message, removing client")
		cl.conn.Close()

		h.mu.Lock()
		if current, ok := h.clients[flowID]; ok && current == cl {
			delete(h.clients, flowID)
		}
		h.mu.Unlock()
		return err
	}
	return nil
}

// Connected reports whether flowID has a live connection.
func (h *Hub) Connected(flowID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.clients[flowID]
	return ok
}
