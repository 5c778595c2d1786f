package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/SuleymanovTahir/beauty-crm-sub001/internal/signal"
)

const (
	readTimeout   = 90 * time.Second
	writeTimeout  = 10 * time.Second
	sendQueueSize = 256
)

// Client is one registered websocket connection.
type Client struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(userID string, conn *websocket.Conn) *Client {
	return &Client{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// enqueue drops the message if the client's buffer is full; a stalled
// reader must not block routing for everyone else.
func (c *Client) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		log.Warn().Str("user_id", c.userID).Msg("send buffer full, dropping message")
	}
}

func (c *Client) sendEnvelope(env *signal.Envelope) {
	data, err := env.Encode()
	if err != nil {
		log.Error().Err(err).Msg("envelope encode failed")
		return
	}
	c.enqueue(data)
}

// readPump routes inbound envelopes until the connection dies.
func (c *Client) readPump(h *Handler) {
	defer func() {
		h.hub.remove(c)
		h.presence.Offline(c.userID)
		c.close()
		log.Info().Str("user_id", c.userID).Msg("client disconnected")
	}()

	c.conn.SetReadDeadline(time.Now().Add(readTimeout))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("user_id", c.userID).Msg("read error")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))

		env, err := signal.Parse(data)
		if err != nil {
			log.Warn().Err(err).Str("user_id", c.userID).Msg("dropping malformed envelope")
			continue
		}
		h.route(c, env)
	}
}

// writePump serializes all writes on the connection.
func (c *Client) writePump() {
	defer c.conn.Close()
	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			c.conn.WriteMessage(websocket.CloseMessage, nil)
			return
		}
	}
}
