// Package signaling is the peer side of the relay websocket.
package signaling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mossy-p/p2p-signaling/internal/models"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var ErrClosed = errors.New("signaling connection closed")

// Handlers receives what the relay sends. OnMessage is called from the
// read goroutine in arrival order; OnClose is called once after the
// connection is gone.
type Handlers struct {
	OnMessage func(*models.Message)
	OnClose   func()
}

// Client manages the websocket connection to the relay.
type Client struct {
	conn     *websocket.Conn
	handlers Handlers
	outgoing chan []byte
	done     chan struct{}
	once     sync.Once
	log      *zap.Logger
}

// Dial connects to the relay at url and starts the read and write pumps.
func Dial(ctx context.Context, url string, handlers Handlers, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c := &Client{
		conn:     conn,
		handlers: handlers,
		outgoing: make(chan []byte, 32),
		done:     make(chan struct{}),
		log:      logger.With(zap.String("component", "signaling"), zap.String("url", url)),
	}

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	return c, nil
}

// Send queues msg for the relay.
func (c *Client) Send(msg *models.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.outgoing <- data:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Done is closed once the connection has shut down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close sends a close frame and tears the connection down.
func (c *Client) Close() {
	c.shutdown()
}

func (c *Client) shutdown() {
	c.once.Do(func() { close(c.done) })
}

func (c *Client) readPump() {
	defer func() {
		c.shutdown()
		c.conn.Close()
		if c.handlers.OnClose != nil {
			c.handlers.OnClose()
		}
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("relay connection lost", zap.Error(err))
			}
			return
		}

		msg, err := models.Parse(raw)
		if err != nil {
			c.log.Warn("ignoring relay frame", zap.Error(err), zap.ByteString("raw", raw))
			continue
		}
		if c.handlers.OnMessage != nil {
			c.handlers.OnMessage(msg)
		}
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
		case data := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Warn("write failed", zap.Error(err))
				c.shutdown()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.flush()
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever was queued before shutdown.
func (c *Client) flush() {
	for {
		select {
		case data := <-c.outgoing:
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}
