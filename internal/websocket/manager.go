package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/W3LABS/points_engine/internal/errors"
	"github.com/W3LABS/points_engine/internal/types"
	"github.com/W3LABS/points_engine/pkg/logger"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Note: Adjust this for production!
	},
}

// Manager is the process-scoped hub connected clients subscribe to.
// Delivery is at-most-once and best-effort: clients that miss a push are
// expected to self-heal by re-polling the HTTP endpoints.
type Manager struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mutex      sync.Mutex
}

func NewManager() *Manager {
	return &Manager{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

func (manager *Manager) Run() {
	for {
		select {
		case client := <-manager.register:
			manager.mutex.Lock()
			manager.clients[client] = true
			manager.mutex.Unlock()
		case client := <-manager.unregister:
			manager.mutex.Lock()
			if _, ok := manager.clients[client]; ok {
				delete(manager.clients, client)
				client.Close()
			}
			manager.mutex.Unlock()
		case message := <-manager.broadcast:
			manager.mutex.Lock()
			for client := range manager.clients {
				err := client.WriteMessage(websocket.TextMessage, message)
				if err != nil {
					logger.Error("Error broadcasting message: %v", err)
					client.Close()
					delete(manager.clients, client)
				}
			}
			manager.mutex.Unlock()
		}
	}
}

func (manager *Manager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Failed to upgrade connection: %v", err)
		http.Error(w, "Could not open websocket connection", http.StatusBadRequest)
		return
	}

	manager.register <- conn

	go manager.readPump(conn)
	go manager.writePump(conn)
}

func (manager *Manager) readPump(conn *websocket.Conn) {
	defer func() {
		manager.unregister <- conn
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error("Unexpected close error: %v", err)
			}
			break
		}
		// Clients filter broadcasts themselves; inbound messages are ignored.
	}
}

func (manager *Manager) writePump(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue hands a message to the hub without ever blocking the caller.
// When the buffer is full the message is dropped; polling covers the gap.
func (manager *Manager) enqueue(data []byte) {
	select {
	case manager.broadcast <- data:
	default:
		logger.Warn("Broadcast buffer full, dropping message")
	}
}

// BroadcastPointsUpdate pushes a points_update event to every client.
func (manager *Manager) BroadcastPointsUpdate(update types.PointsUpdate) error {
	data, err := json.Marshal(map[string]interface{}{
		"type":  "points_update",
		"event": update,
	})
	if err != nil {
		return &errors.WebSocketError{Operation: "marshal points update", Err: err}
	}

	manager.enqueue(data)
	return nil
}

// BroadcastLeaderboardUpdate pushes a leaderboard_update event to every client.
func (manager *Manager) BroadcastLeaderboardUpdate(update types.LeaderboardUpdate) error {
	data, err := json.Marshal(map[string]interface{}{
		"type":  "leaderboard_update",
		"event": update,
	})
	if err != nil {
		return &errors.WebSocketError{Operation: "marshal leaderboard update", Err: err}
	}

	manager.enqueue(data)
	return nil
}
