package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"weather-gateway/internal/cache"
)

const pingInterval = 30 * time.Second

// wsClient pairs a connection with its outbound queue. Every write,
// pings included, goes through the queue so only writePump ever touches
// the connection.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func (c *wsClient) enqueue(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("Error marshaling websocket message: %v", err)
		return
	}
	select {
	case c.send <- data:
	default: // slow client, drop rather than block
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("WebSocket write failed: %v", err)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				log.Println("Ping failed:", err)
				return
			}
		}
	}
}

// WebSocketHandler pushes live usage events to subscribed clients.
// Events arrive from the cache manager's pub/sub channel, so every
// gateway instance sees requests admitted by its peers too.
type WebSocketHandler struct {
	upgrader   websocket.Upgrader
	clients    map[*wsClient]bool
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
	events     <-chan cache.UsageEvent
}

func NewWebSocketHandler(events <-chan cache.UsageEvent) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for testing
			},
		},
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		events:     events,
	}
}

func (h *WebSocketHandler) HandleConnections(c *gin.Context) {
	log.Println("WebSocket connection attempt from:", c.Request.RemoteAddr)

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &wsClient{conn: ws, send: make(chan []byte, 16)}
	defer func() {
		h.unregister <- client
		log.Println("WebSocket connection closed")
	}()

	h.register <- client
	log.Println("New WebSocket client registered")

	go client.writePump()
	h.readLoop(client)
}

// readLoop owns all reads from the connection; responses are queued so
// they never race writePump.
func (h *WebSocketHandler) readLoop(client *wsClient) {
	for {
		var msg map[string]interface{}

		err := client.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			break
		}

		switch msg["type"] {
		case "subscribe":
			client.enqueue(map[string]interface{}{
				"type":      "subscribed",
				"message":   "Successfully subscribed to usage updates",
				"timestamp": time.Now().Unix(),
			})

		case "ping":
			client.enqueue(map[string]interface{}{
				"type": "pong",
				"time": time.Now().Unix(),
			})

		default:
			log.Printf("Unknown message type: %v", msg["type"])
			client.enqueue(map[string]interface{}{
				"type":      "error",
				"message":   "Unknown message type",
				"timestamp": time.Now().Unix(),
			})
		}
	}
}

// RunHub owns the client set. Register, unregister and broadcast all
// funnel through here so no mutex is needed around the map.
func (h *WebSocketHandler) RunHub() {
	log.Println("Starting WebSocket hub")

	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			log.Println("Client registered. Total clients:", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				client.conn.Close()
				log.Println("Client unregistered. Total clients:", len(h.clients))
			}

		case ev, ok := <-h.events:
			if !ok {
				h.events = nil
				continue
			}
			h.broadcastEvent(ev)

		case message := <-h.broadcast:
			h.send(message)
		}
	}
}

func (h *WebSocketHandler) send(message []byte) {
	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			// Queue full: the client is not keeping up. Closing the
			// connection makes its read loop exit and unregister.
			client.conn.Close()
			delete(h.clients, client)
		}
	}
}

func (h *WebSocketHandler) broadcastEvent(ev cache.UsageEvent) {
	message := map[string]interface{}{
		"type":       "usage_update",
		"account_id": ev.AccountID,
		"endpoint":   ev.Endpoint,
		"action":     ev.Action,
		"timestamp":  ev.Timestamp,
	}

	jsonData, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling broadcast message: %v", err)
		return
	}
	h.send(jsonData)
}
