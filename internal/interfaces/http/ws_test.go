package http

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHubServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	hub := NewHub(logger)
	router := gin.New()
	router.GET("/ws/:strategy_id", hub.Serve)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return hub, server
}

func dial(t *testing.T, server *httptest.Server, strategyID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/" + strategyID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var message map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &message))
	return message
}

func (h *Hub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) selectedSymbol(strategyID string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if client.strategyID == strategyID {
			return client.symbol
		}
	}
	return ""
}

func TestHubBroadcastAll(t *testing.T) {
	hub, server := newHubServer(t)
	conn := dial(t, server, "strat-1")

	require.Eventually(t, func() bool { return hub.clientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.BroadcastAll(map[string]string{"type": "update"})
	message := readMessage(t, conn)
	assert.Equal(t, "update", message["type"])
}

func TestHubBroadcastSlotOnlyReachesSubscribers(t *testing.T) {
	hub, server := newHubServer(t)
	subscribed := dial(t, server, "strat-1")
	other := dial(t, server, "strat-2")

	require.NoError(t, subscribed.WriteJSON(clientCommand{Action: "select_symbol", Symbol: "BTCUSDT"}))
	require.Eventually(t, func() bool {
		return hub.selectedSymbol("strat-1") == "BTCUSDT"
	}, time.Second, 10*time.Millisecond)

	hub.BroadcastSlot("strat-1", "BTCUSDT", map[string]string{"type": "candle_update"})
	message := readMessage(t, subscribed)
	assert.Equal(t, "candle_update", message["type"])

	// The unsubscribed client must not receive slot traffic.
	require.NoError(t, other.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := other.ReadMessage()
	assert.Error(t, err)
}
