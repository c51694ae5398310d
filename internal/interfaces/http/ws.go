package http

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type wsClient struct {
	conn       *websocket.Conn
	strategyID string
	symbol     string
}

// clientCommand is what UI clients send over the socket.
type clientCommand struct {
	Action string `json:"action"`
	Symbol string `json:"symbol"`
}

// Hub tracks connected UI clients per strategy. Each client may select one
// symbol to receive full candle updates for; watchlist pings and execution
// updates go to everyone.
type Hub struct {
	logger *logrus.Entry

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		logger:  logger.WithField("component", "ws_hub"),
		clients: make(map[*wsClient]struct{}),
	}
}

// Serve upgrades the connection and reads client commands until disconnect.
func (h *Hub) Serve(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	client := &wsClient{conn: conn, strategyID: c.Param("strategy_id")}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, client)
		h.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		var cmd clientCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		if cmd.Action == "select_symbol" {
			h.mu.Lock()
			client.symbol = cmd.Symbol
			h.mu.Unlock()
			h.logger.WithFields(logrus.Fields{
				"strategy_id": client.strategyID,
				"symbol":      cmd.Symbol,
			}).Debug("client selected symbol")
		}
	}
}

// BroadcastAll sends a message to every connected client.
func (h *Hub) BroadcastAll(message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.WithError(err).Error("marshal broadcast")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		h.writeLocked(client, data)
	}
}

// BroadcastSlot sends a message to clients of the strategy that selected the
// symbol.
func (h *Hub) BroadcastSlot(strategyID, symbol string, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.WithError(err).Error("marshal broadcast")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if client.strategyID == strategyID && client.symbol == symbol {
			h.writeLocked(client, data)
		}
	}
}

func (h *Hub) writeLocked(client *wsClient, data []byte) {
	if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		_ = client.conn.Close()
		delete(h.clients, client)
	}
}
