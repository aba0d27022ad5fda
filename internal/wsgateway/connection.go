package wsgateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mohamedkhairy/signal-engine/internal/config"
	"github.com/mohamedkhairy/signal-engine/pkg/logger"
)

// Connection binds a websocket to a hub subscriber
type Connection struct {
	Conn       *websocket.Conn
	Subscriber *Subscriber

	hub       *Hub
	config    config.HubConfig
	mu        sync.RWMutex
	lastPong  time.Time
	closeOnce sync.Once
}

// NewConnection wraps conn; Serve registers it with the hub
func NewConnection(hub *Hub, conn *websocket.Conn, sub *Subscriber, cfg config.HubConfig) *Connection {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Connection{
		Conn:       conn,
		Subscriber: sub,
		hub:        hub,
		config:     cfg,
		lastPong:   time.Now(),
	}
}

// Serve subscribes to the hub and runs the pumps until either side closes.
// It returns once the connection is registered; pumps run in background.
func (c *Connection) Serve() error {
	if err := c.hub.Subscribe(c.Subscriber); err != nil {
		return err
	}
	go c.writePump()
	go c.readPump()
	return nil
}

// UpdateLastPong records a pong from the client
func (c *Connection) UpdateLastPong() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPong = time.Now()
}

// GetLastPong returns the last pong time
func (c *Connection) GetLastPong() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPong
}

// Close unsubscribes and closes the socket
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.hub.Unsubscribe(c.Subscriber)
		c.Conn.Close()
	})
}

func (c *Connection) writePump() {
	defer c.Close()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.Subscriber.Done():
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			c.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case message := <-c.Subscriber.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// Flush whatever queued meanwhile, one frame per event
			n := len(c.Subscriber.Send)
			for i := 0; i < n; i++ {
				if err := c.Conn.WriteMessage(websocket.TextMessage, <-c.Subscriber.Send); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Connection) readPump() {
	defer c.Close()

	c.Conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.UpdateLastPong()
		c.Conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logger.Debug("WebSocket error",
					logger.ErrorField(err),
					logger.String("subscriber_id", c.Subscriber.ID),
				)
			}
			return
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		reply, err := json.Marshal(handleClientMessage(message))
		if err != nil {
			continue
		}
		if !c.Subscriber.tryDeliver(reply) {
			logger.Debug("Dropped control reply, queue full",
				logger.String("subscriber_id", c.Subscriber.ID),
			)
		}
	}
}
