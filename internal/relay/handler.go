package relay

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/SuleymanovTahir/beauty-crm-sub001/internal/signal"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

// registerWindow bounds how long an upgraded connection may sit
// unregistered before being dropped.
const registerWindow = 10 * time.Second

// Handler serves the websocket signaling endpoint.
type Handler struct {
	hub      *Hub
	presence *Presence
	auth     *Authenticator
}

func NewHandler(hub *Hub, presence *Presence, auth *Authenticator) *Handler {
	return &Handler{hub: hub, presence: presence, auth: auth}
}

// Serve upgrades the connection and runs the register handshake. The
// first envelope must be a register carrying a valid token; anything
// else closes the connection.
func (h *Handler) Serve(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn.SetReadDeadline(time.Now().Add(registerWindow))
	_, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return
	}

	env, err := signal.Parse(data)
	if err != nil || env.Type != signal.TypeRegister {
		log.Warn().Msg("connection closed: register expected")
		conn.Close()
		return
	}

	var p signal.RegisterPayload
	if err := env.DecodePayload(&p); err != nil {
		conn.Close()
		return
	}
	userID, err := h.auth.Verify(p.Token)
	if err != nil {
		log.Warn().Err(err).Msg("register rejected")
		conn.Close()
		return
	}
	if env.From != "" && env.From != userID {
		log.Warn().Str("claimed", env.From).Str("token", userID).Msg("register identity mismatch")
		conn.Close()
		return
	}

	client := newClient(userID, conn)
	h.hub.add(client)
	h.presence.Online(userID)

	ack, _ := signal.New(signal.TypeRegistered, "", userID, nil)
	client.sendEnvelope(ack)

	log.Info().Str("user_id", userID).Msg("client registered")

	go client.writePump()
	go client.readPump(h)
}

// route delivers an envelope from a registered client. The relay never
// inspects payloads; it forwards by address and answers pings itself.
func (h *Handler) route(from *Client, env *signal.Envelope) {
	switch env.Type {
	case signal.TypePing:
		pong, _ := signal.New(signal.TypePong, "", from.userID, nil)
		from.sendEnvelope(pong)
		h.presence.Refresh(from.userID)
		return
	case signal.TypeRegister:
		// Already registered; ignore.
		return
	}

	// Sender identity comes from the handshake, never from the message.
	env.From = from.userID

	if env.To == "" {
		log.Warn().Str("type", string(env.Type)).Str("from", from.userID).Msg("envelope without target")
		return
	}

	target := h.hub.lookup(env.To)
	if target == nil {
		errEnv, _ := signal.New(signal.TypeError, "", from.userID,
			signal.ErrorPayload{Message: "peer not connected", Peer: env.To})
		from.sendEnvelope(errEnv)
		return
	}
	target.sendEnvelope(env)
}
