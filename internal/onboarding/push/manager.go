package push

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/TheNyokabi/MoranIP-sub003/internal/onboarding"
)

// StateMessage is pushed to wizard clients whenever the onboarding session
// snapshot changes (poll tick or applied action).
type StateMessage struct {
	Type      string           `json:"type"`
	TenantID  string           `json:"tenant_id"`
	State     onboarding.State `json:"state"`
	Timestamp time.Time        `json:"timestamp"`
}

// Manager handles WebSocket connections for onboarding progress push. Each
// connection is scoped to one tenant; broadcasts are routed by tenant ID.
type Manager struct {
	connections map[string]*Connection
	mu          sync.RWMutex
	hub         *Hub
	upgrader    websocket.Upgrader
	logger      *zap.Logger
}

// Connection represents one wizard browser tab subscribed to progress.
type Connection struct {
	ID           string
	TenantID     string
	Conn         *websocket.Conn
	Send         chan StateMessage
	LastActivity time.Time
	mu           sync.Mutex
}

// Hub manages registration and tenant-routed broadcast of state messages.
type Hub struct {
	connections map[*Connection]bool
	broadcast   chan StateMessage
	register    chan *Connection
	unregister  chan *Connection
	stop        chan struct{}
}

// NewManager creates a progress push manager.
func NewManager(logger *zap.Logger) *Manager {
	hub := &Hub{
		connections: make(map[*Connection]bool),
		broadcast:   make(chan StateMessage, 256),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		stop:        make(chan struct{}),
	}

	go hub.run()

	return &Manager{
		connections: make(map[string]*Connection),
		hub:         hub,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Origin checking is handled by the gateway's CORS layer
				return true
			},
		},
	}
}

// HandleConnection upgrades the request and subscribes it to the tenant's
// progress stream.
func (m *Manager) HandleConnection(w http.ResponseWriter, r *http.Request, tenantID string) (*Connection, error) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		Conn:         conn,
		Send:         make(chan StateMessage, 256),
		LastActivity: time.Now(),
	}

	m.hub.register <- connection

	m.mu.Lock()
	m.connections[connection.ID] = connection
	m.mu.Unlock()

	go m.readPump(connection)
	go m.writePump(connection)

	return connection, nil
}

// BroadcastState pushes a snapshot to every connection of the tenant.
func (m *Manager) BroadcastState(tenantID string, state onboarding.State) {
	msg := StateMessage{
		Type:      "onboarding_state",
		TenantID:  tenantID,
		State:     state,
		Timestamp: time.Now(),
	}

	select {
	case m.hub.broadcast <- msg:
	default:
		m.logger.Warn("Progress broadcast queue full, dropping update",
			zap.String("tenant_id", tenantID))
	}
}

// ConnectionCount returns the number of live connections.
func (m *Manager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// Shutdown stops the hub and closes all connections.
func (m *Manager) Shutdown() {
	close(m.hub.stop)

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, conn := range m.connections {
		conn.Conn.Close()
		delete(m.connections, id)
	}
}

// readPump drains client frames; the wizard stream is push-only, so incoming
// payloads are ignored beyond keeping the connection alive.
func (m *Manager) readPump(conn *Connection) {
	defer func() {
		m.hub.unregister <- conn
		m.mu.Lock()
		delete(m.connections, conn.ID)
		m.mu.Unlock()
		conn.Conn.Close()
	}()

	conn.Conn.SetReadLimit(512)
	conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.logger.Debug("WebSocket read error", zap.Error(err))
			}
			break
		}

		conn.mu.Lock()
		conn.LastActivity = time.Now()
		conn.mu.Unlock()
	}
}

// writePump pumps state messages from the hub to the connection.
func (m *Manager) writePump(conn *Connection) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.Conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// run routes hub events. Broadcasts are delivered only to connections whose
// tenant matches the message.
func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.connections[conn] = true

		case conn := <-h.unregister:
			if _, ok := h.connections[conn]; ok {
				delete(h.connections, conn)
				close(conn.Send)
			}

		case msg := <-h.broadcast:
			for conn := range h.connections {
				if conn.TenantID != msg.TenantID {
					continue
				}
				select {
				case conn.Send <- msg:
				default:
					delete(h.connections, conn)
					close(conn.Send)
				}
			}

		case <-h.stop:
			return
		}
	}
}
