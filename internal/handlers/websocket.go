package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mossy-p/p2p-signaling/config"
	"github.com/mossy-p/p2p-signaling/internal/registry"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

// Client represents a WebSocket client connection
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once

	log *zap.Logger
}

var _ registry.Conn = (*Client)(nil)

func (c *Client) ID() string { return c.id }

// Send queues a frame for the write pump without blocking.
func (c *Client) Send(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// HandleSignaling upgrades the request and feeds every frame of the
// connection to the registry. ctx bounds registry side effects such as
// presence updates and outlives the HTTP request.
func HandleSignaling(ctx context.Context, reg *registry.Registry, cfg config.SocketConfig, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("Failed to upgrade connection", zap.Error(err))
			return
		}

		id := uuid.New().String()
		client := &Client{
			id:   id,
			conn: conn,
			send: make(chan []byte, cfg.SendBuffer),
			done: make(chan struct{}),
			log:  logger.With(zap.String("connId", id), zap.String("remote", conn.RemoteAddr().String())),
		}
		client.log.Info("Connection opened")

		go client.writePump()
		go client.readPump(ctx, reg, cfg.MaxMessageSize)
	}
}

func (c *Client) readPump(ctx context.Context, reg *registry.Registry, maxMessageSize int64) {
	defer func() {
		reg.ConnectionClosed(ctx, c)
		c.close()
		c.conn.Close()
		c.log.Info("Connection closed")
	}()

	if maxMessageSize > 0 {
		c.conn.SetReadLimit(maxMessageSize)
	}
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Info("WebSocket error", zap.Error(err))
			}
			return
		}
		reg.Handle(ctx, c, message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Info("Failed to write message", zap.Error(err))
				c.close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
