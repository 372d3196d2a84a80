package ws

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"inkroom/internal/ratelimit"
	"inkroom/internal/router"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	defaultMaxMessageSize    = 64 * 1024
	defaultMessagesPerSecond = 100
	defaultMessageBurst      = 200
)

var errSendBufferFull = errors.New("send buffer full")

// Options tune the transport adapter. Zero values pick the defaults above;
// AllowedOrigin "*" (or empty) accepts any origin.
type Options struct {
	AllowedOrigin     string
	MaxMessageSize    int64
	MessagesPerSecond float64
	MessageBurst      int
}

// Handler upgrades HTTP requests to WebSocket connections and hands each one
// to the event router as a session.
type Handler struct {
	router   *router.Router
	opts     Options
	upgrader websocket.Upgrader
}

func NewHandler(rt *router.Router, opts Options) *Handler {
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = defaultMaxMessageSize
	}
	if opts.MessagesPerSecond <= 0 {
		opts.MessagesPerSecond = defaultMessagesPerSecond
	}
	if opts.MessageBurst <= 0 {
		opts.MessageBurst = defaultMessageBurst
	}

	return &Handler{
		router: rt,
		opts:   opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if opts.AllowedOrigin == "" || opts.AllowedOrigin == "*" {
					return true
				}
				return r.Header.Get("Origin") == opts.AllowedOrigin
			},
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		router:      h.router,
		conn:        conn,
		send:        make(chan []byte, 512),
		id:          uuid.New().String(),
		rateLimiter: ratelimit.NewLimiter(h.opts.MessagesPerSecond, h.opts.MessageBurst),
		maxMessage:  h.opts.MaxMessageSize,
	}

	h.router.Register(client)
	slog.Info("connection opened", "clientId", client.id, "remote", conn.RemoteAddr().String())

	go client.writePump()
	go client.readPump()
}

// Client is one open WebSocket connection. It implements router.Session:
// the router addresses it by id and enqueues outbound frames through Send.
type Client struct {
	router      *router.Router
	conn        *websocket.Conn
	send        chan []byte
	id          string
	rateLimiter *ratelimit.Limiter
	maxMessage  int64
	closeSlow   sync.Once
}

func (c *Client) ID() string { return c.id }

// Send enqueues a frame without blocking. A full buffer means the client is
// not draining its socket; the connection is closed and the frame dropped so
// one slow consumer cannot stall a room.
func (c *Client) Send(frame []byte) error {
	select {
	case c.send <- frame:
		return nil
	default:
		c.closeSlow.Do(func() {
			slog.Warn("disconnecting slow consumer", "clientId", c.id)
			c.conn.Close()
		})
		return errSendBufferFull
	}
}

func (c *Client) readPump() {
	defer func() {
		c.router.HandleDisconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.maxMessage)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	rateLimitWarnings := 0

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read error", "clientId", c.id, "error", err)
			}
			break
		}

		if !c.rateLimiter.Allow() {
			rateLimitWarnings++
			if rateLimitWarnings%100 == 1 {
				slog.Warn("rate limit exceeded", "clientId", c.id, "warnings", rateLimitWarnings)
			}
			if rateLimitWarnings > 1000 {
				slog.Warn("disconnecting client for excessive rate limit violations", "clientId", c.id)
				return
			}
			continue
		}

		c.router.HandleEvent(c, message)
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
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
