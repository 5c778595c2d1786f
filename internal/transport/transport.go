// Package transport owns the websocket connection to the relay: the
// register handshake, the heartbeat, and the reconnection policy. It is
// self-healing after any non-manual close and stops only on Disconnect
// or after the attempt budget is spent.
package transport

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/SuleymanovTahir/beauty-crm-sub001/internal/signal"
)

// ErrReconnectExhausted is reported once the reconnection budget is spent.
// The transport stays down until Connect is called again.
var ErrReconnectExhausted = errors.New("transport: reconnect attempts exhausted")

// ErrNotConnected is returned by Send while the channel is down.
var ErrNotConnected = errors.New("transport: not connected")

type Config struct {
	// URL is the relay websocket endpoint.
	URL string
	// Token is presented in the register envelope.
	Token string

	OpenTimeout       time.Duration
	HeartbeatInterval time.Duration
	ReconnectBase     time.Duration
	ReconnectCap      time.Duration
	MaxReconnects     int
	WriteTimeout      time.Duration
}

func DefaultConfig(url, token string) Config {
	return Config{
		URL:               url,
		Token:             token,
		OpenTimeout:       10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		ReconnectBase:     5 * time.Second,
		ReconnectCap:      60 * time.Second,
		MaxReconnects:     10,
		WriteTimeout:      10 * time.Second,
	}
}

// ReconnectDelay returns the wait before reconnect attempt k (1-indexed):
// base doubled per attempt, capped.
func ReconnectDelay(cfg Config, attempt int) time.Duration {
	d := cfg.ReconnectBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.ReconnectCap {
			return cfg.ReconnectCap
		}
	}
	if d > cfg.ReconnectCap {
		return cfg.ReconnectCap
	}
	return d
}

type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
)

// Transport is the client side of the relay channel.
//
// Callbacks fire from the transport's read goroutine; OnEnvelope receives
// every inbound envelope except registered/pong, which the transport
// consumes itself.
type Transport struct {
	cfg Config

	OnEnvelope   func(env *signal.Envelope)
	OnRegistered func()
	OnDown       func(err error)

	mu         sync.Mutex
	state      connState
	conn       *websocket.Conn
	userID     string
	registered bool
	manual     bool
	attempt    int
	lastPongAt time.Time
	retryTimer *time.Timer

	writeMu sync.Mutex
}

func New(cfg Config) *Transport {
	return &Transport{cfg: cfg}
}

// Connect opens one logical connection registered as userID. Calling it
// while a connection is open or connecting is a no-op. It also re-arms a
// transport that gave up or was manually disconnected.
func (t *Transport) Connect(userID string) error {
	t.mu.Lock()
	if t.state != stateDisconnected {
		t.mu.Unlock()
		return nil
	}
	t.state = stateConnecting
	t.userID = userID
	t.manual = false
	t.attempt = 0
	t.mu.Unlock()

	return t.dial()
}

// dial opens the socket, sends register, and starts the pumps. On failure
// it hands off to the reconnect scheduler.
func (t *Transport) dial() error {
	dialer := websocket.Dialer{HandshakeTimeout: t.cfg.OpenTimeout}
	conn, _, err := dialer.Dial(t.cfg.URL, nil)
	if err != nil {
		log.Warn().Err(err).Str("url", t.cfg.URL).Msg("relay dial failed")
		t.scheduleReconnect()
		return err
	}

	t.mu.Lock()
	if t.manual {
		// Disconnect raced the dial; drop the socket.
		t.mu.Unlock()
		conn.Close()
		return nil
	}
	t.conn = conn
	t.state = stateConnected
	t.registered = false
	t.attempt = 0
	userID := t.userID
	t.mu.Unlock()

	env, err := signal.New(signal.TypeRegister, userID, "", signal.RegisterPayload{Token: t.cfg.Token})
	if err == nil {
		err = t.write(conn, env)
	}
	if err != nil {
		log.Warn().Err(err).Msg("register send failed")
		conn.Close()
		// readPump is not running yet, so drive the close path here.
		t.handleClose(err)
		return err
	}

	go t.readPump(conn)
	go t.heartbeat(conn)

	log.Info().Str("user_id", userID).Msg("relay connected, register sent")
	return nil
}

// Disconnect closes the channel and suppresses all further reconnection
// and heartbeats until the next Connect.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	t.manual = true
	t.state = stateDisconnected
	t.registered = false
	conn := t.conn
	t.conn = nil
	if t.retryTimer != nil {
		t.retryTimer.Stop()
		t.retryTimer = nil
	}
	t.mu.Unlock()

	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		conn.Close()
	}
	log.Info().Msg("relay disconnected (manual)")
}

// Registered reports whether the relay has acknowledged this client.
func (t *Transport) Registered() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.registered
}

// Send routes one envelope through the relay, stamping From.
func (t *Transport) Send(env *signal.Envelope) error {
	t.mu.Lock()
	conn := t.conn
	userID := t.userID
	ok := t.state == stateConnected
	t.mu.Unlock()
	if !ok || conn == nil {
		return ErrNotConnected
	}
	if env.From == "" {
		env.From = userID
	}
	return t.write(conn, env)
}

func (t *Transport) write(conn *websocket.Conn, env *signal.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (t *Transport) readPump(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.handleClose(err)
			return
		}

		env, err := signal.Parse(data)
		if err != nil {
			// Malformed traffic never tears down the channel.
			log.Warn().Err(err).Msg("dropping malformed envelope")
			continue
		}

		switch env.Type {
		case signal.TypeRegistered:
			t.mu.Lock()
			t.registered = true
			t.mu.Unlock()
			log.Info().Str("user_id", t.userID).Msg("registered with relay")
			if t.OnRegistered != nil {
				t.OnRegistered()
			}
		case signal.TypePong:
			t.mu.Lock()
			t.lastPongAt = time.Now()
			t.mu.Unlock()
		default:
			t.mu.Lock()
			trusted := t.registered
			t.mu.Unlock()
			if !trusted {
				log.Warn().Str("type", string(env.Type)).Msg("dropping signal before registration ack")
				continue
			}
			if t.OnEnvelope != nil {
				t.OnEnvelope(env)
			}
		}
	}
}

// heartbeat pings every interval until the connection it was started for
// goes away. Missing pongs are left to relay-side enforcement.
func (t *Transport) heartbeat(conn *websocket.Conn) {
	ticker := time.NewTicker(t.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for range ticker.C {
		t.mu.Lock()
		current := t.conn == conn && !t.manual
		t.mu.Unlock()
		if !current {
			return
		}
		env, err := signal.New(signal.TypePing, t.userID, "", nil)
		if err == nil {
			err = t.write(conn, env)
		}
		if err != nil {
			return
		}
	}
}

// handleClose runs once per connection loss, from the read pump or a
// failed handshake write.
func (t *Transport) handleClose(err error) {
	t.mu.Lock()
	manual := t.manual
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.registered = false
	if !manual {
		t.state = stateDisconnected
	}
	t.mu.Unlock()

	if manual {
		return
	}

	log.Warn().Err(err).Msg("relay connection lost")
	if t.OnDown != nil {
		t.OnDown(err)
	}
	t.scheduleReconnect()
}

func (t *Transport) scheduleReconnect() {
	t.mu.Lock()
	if t.manual {
		t.mu.Unlock()
		return
	}
	t.attempt++
	attempt := t.attempt
	if attempt > t.cfg.MaxReconnects {
		t.state = stateDisconnected
		t.mu.Unlock()
		log.Error().Int("attempts", attempt-1).Msg("reconnect budget spent, staying down")
		if t.OnDown != nil {
			t.OnDown(ErrReconnectExhausted)
		}
		return
	}
	delay := ReconnectDelay(t.cfg, attempt)
	t.state = stateConnecting
	t.retryTimer = time.AfterFunc(delay, func() {
		t.mu.Lock()
		if t.manual {
			t.mu.Unlock()
			return
		}
		t.mu.Unlock()
		t.dial()
	})
	t.mu.Unlock()
	log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("reconnect scheduled")
}
