package wsgateway

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/mohamedkhairy/signal-engine/pkg/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ServeWS upgrades the request and subscribes the socket to the hub. The
// optional ?symbol= query filters events to one symbol; absent or "*" follows every symbol.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if h.config.MaxConnections > 0 && h.SubscriberCount() >= h.config.MaxConnections {
		logger.Warn("Max connections reached, rejecting new connection",
			logger.Int("max_connections", h.config.MaxConnections),
		)
		http.Error(w, "Max connections reached", http.StatusServiceUnavailable)
		return
	}

	symbol := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol")))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Failed to upgrade connection", logger.ErrorField(err))
		return
	}

	sub := NewSubscriber(symbol, h.config.SendBuffer)
	c := NewConnection(h, conn, sub, h.config)
	if err := c.Serve(); err != nil {
		code := websocket.CloseInternalServerErr
		if errors.Is(err, ErrHubClosed) || errors.Is(err, ErrTooManySubscribers) {
			code = websocket.CloseTryAgainLater
		}
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, err.Error()))
		conn.Close()
		logger.Warn("Rejected websocket subscriber", logger.ErrorField(err))
		return
	}

	logger.Info("WebSocket connection established",
		logger.String("subscriber_id", sub.ID),
		logger.String("symbol", sub.Symbol),
		logger.String("remote_addr", r.RemoteAddr),
	)
}
