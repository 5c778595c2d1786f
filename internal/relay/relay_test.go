package relay

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SuleymanovTahir/beauty-crm-sub001/internal/signal"
)

func TestAuthenticatorRoundTrip(t *testing.T) {
	a := NewAuthenticator("secret", time.Hour)

	token, err := a.Issue("alice")
	require.NoError(t, err)

	userID, err := a.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", userID)
}

func TestAuthenticatorRejectsWrongSecret(t *testing.T) {
	a := NewAuthenticator("secret", time.Hour)
	token, err := a.Issue("alice")
	require.NoError(t, err)

	other := NewAuthenticator("different", time.Hour)
	_, err = other.Verify(token)
	assert.Error(t, err)
}

func TestAuthenticatorRejectsExpiredToken(t *testing.T) {
	a := NewAuthenticator("secret", -time.Minute)
	token, err := a.Issue("alice")
	require.NoError(t, err)

	_, err = a.Verify(token)
	assert.Error(t, err)
}

func TestAuthenticatorRejectsGarbage(t *testing.T) {
	a := NewAuthenticator("secret", time.Hour)
	_, err := a.Verify("not-a-token")
	assert.Error(t, err)
}

func startRelay(t *testing.T) (*httptest.Server, *Authenticator, *Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub()
	auth := NewAuthenticator("test-secret", time.Hour)
	handler := NewHandler(hub, nil, auth)

	router := gin.New()
	router.GET("/ws", handler.Serve)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, auth, hub
}

func dialAndRegister(t *testing.T, srv *httptest.Server, auth *Authenticator, userID string) *websocket.Conn {
	t.Helper()
	conn := dialRelay(t, srv)

	token, err := auth.Issue(userID)
	require.NoError(t, err)
	reg, err := signal.New(signal.TypeRegister, userID, "", signal.RegisterPayload{Token: token})
	require.NoError(t, err)
	sendWS(t, conn, reg)

	ack := readWS(t, conn)
	require.Equal(t, signal.TypeRegistered, ack.Type)
	require.Equal(t, userID, ack.To)
	return conn
}

func dialRelay(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendWS(t *testing.T, conn *websocket.Conn, env *signal.Envelope) {
	t.Helper()
	data, err := env.Encode()
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func readWS(t *testing.T, conn *websocket.Conn) *signal.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := signal.Parse(data)
	require.NoError(t, err)
	return env
}

func TestRegisterHandshake(t *testing.T) {
	srv, auth, hub := startRelay(t)

	conn := dialAndRegister(t, srv, auth, "alice")
	defer conn.Close()

	waitForClients(t, hub, 1)
}

func TestRegisterRejectsBadToken(t *testing.T) {
	srv, _, _ := startRelay(t)
	conn := dialRelay(t, srv)

	reg, _ := signal.New(signal.TypeRegister, "alice", "", signal.RegisterPayload{Token: "forged"})
	sendWS(t, conn, reg)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "connection must close on bad token")
}

func TestRegisterRejectsIdentityMismatch(t *testing.T) {
	srv, auth, _ := startRelay(t)
	conn := dialRelay(t, srv)

	token, err := auth.Issue("alice")
	require.NoError(t, err)
	reg, _ := signal.New(signal.TypeRegister, "mallory", "", signal.RegisterPayload{Token: token})
	sendWS(t, conn, reg)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "claimed identity must match the token")
}

func TestRouteBetweenUsers(t *testing.T) {
	srv, auth, _ := startRelay(t)

	alice := dialAndRegister(t, srv, auth, "alice")
	bob := dialAndRegister(t, srv, auth, "bob")

	call, _ := signal.New(signal.TypeCall, "", "bob", signal.CallPayload{CallType: signal.CallTypeAudio})
	sendWS(t, alice, call)

	got := readWS(t, bob)
	assert.Equal(t, signal.TypeCall, got.Type)
	assert.Equal(t, "alice", got.From, "relay stamps the authenticated sender")
	assert.Equal(t, "bob", got.To)
}

func TestRouteSpoofedFromOverwritten(t *testing.T) {
	srv, auth, _ := startRelay(t)

	alice := dialAndRegister(t, srv, auth, "alice")
	bob := dialAndRegister(t, srv, auth, "bob")

	spoofed, _ := signal.New(signal.TypeCall, "carol", "bob", signal.CallPayload{CallType: signal.CallTypeAudio})
	sendWS(t, alice, spoofed)

	got := readWS(t, bob)
	assert.Equal(t, "alice", got.From)
}

func TestRouteToOfflinePeer(t *testing.T) {
	srv, auth, _ := startRelay(t)

	alice := dialAndRegister(t, srv, auth, "alice")

	call, _ := signal.New(signal.TypeCall, "", "ghost", signal.CallPayload{CallType: signal.CallTypeAudio})
	sendWS(t, alice, call)

	got := readWS(t, alice)
	require.Equal(t, signal.TypeError, got.Type)
	var p signal.ErrorPayload
	require.NoError(t, got.DecodePayload(&p))
	assert.Equal(t, "ghost", p.Peer)
	assert.Contains(t, p.Message, "not connected")
}

func TestPingPong(t *testing.T) {
	srv, auth, _ := startRelay(t)

	alice := dialAndRegister(t, srv, auth, "alice")

	ping, _ := signal.New(signal.TypePing, "", "", nil)
	sendWS(t, alice, ping)

	got := readWS(t, alice)
	assert.Equal(t, signal.TypePong, got.Type)
}

func TestDisplacedConnection(t *testing.T) {
	srv, auth, hub := startRelay(t)

	first := dialAndRegister(t, srv, auth, "alice")
	second := dialAndRegister(t, srv, auth, "alice")

	// The first connection is closed by the relay.
	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := first.ReadMessage()
	assert.Error(t, err)

	waitForClients(t, hub, 1)

	// The second connection still routes.
	ping, _ := signal.New(signal.TypePing, "", "", nil)
	sendWS(t, second, ping)
	got := readWS(t, second)
	assert.Equal(t, signal.TypePong, got.Type)
}

func TestDisconnectRemovesClient(t *testing.T) {
	srv, auth, hub := startRelay(t)

	conn := dialAndRegister(t, srv, auth, "alice")
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Count() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("hub never reached %d clients (have %d)", want, hub.Count())
}
