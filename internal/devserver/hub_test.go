package devserver

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sesmanagement/discussions/internal/models"
	events "github.com/sesmanagement/discussions/internal/websocket"
)

type testServer struct {
	*httptest.Server
	store *MemoryStore
	hub   *Hub
}

// setupTestServer runs the full router over a seeded memory store
func setupTestServer(t *testing.T, allowedOrigins ...string) *testServer {
	gin.SetMode(gin.TestMode)
	store := NewMemoryStore()
	require.NoError(t, Seed(store, SeedUsers))

	hub := NewHub(store, allowedOrigins)
	server := httptest.NewServer(NewRouter(store, hub, testSigner, nil))
	t.Cleanup(server.Close)
	return &testServer{Server: server, store: store, hub: hub}
}

func (s *testServer) socketURL(token string) string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/socket?token=" + url.QueryEscape(token)
}

// connect opens a socket for userID and waits until the hub has registered it
func (s *testServer) connect(t *testing.T, userID string) *websocket.Conn {
	conn, resp, err := websocket.DefaultDialer.Dial(s.socketURL(tokenFor(t, userID)), nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return s.hub.IsOnline(userID) }, time.Second, 5*time.Millisecond)
	return conn
}

func emit(t *testing.T, conn *websocket.Conn, ev events.Event) {
	frame, err := events.Encode(ev)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func readEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	ev, err := events.Decode(frame)
	require.NoError(t, err)
	return ev
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	_, frame, err := conn.ReadMessage()
	assert.Error(t, err, "unexpected frame %s", frame)
}

func TestHandleWebSocketRequiresToken(t *testing.T) {
	srv := setupTestServer(t)

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/socket", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandleWebSocketHeaderAuth(t *testing.T) {
	srv := setupTestServer(t)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+tokenFor(t, "ada"))
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/socket", header)
	require.NoError(t, err)
	defer conn.Close()

	assert.Eventually(t, func() bool { return srv.hub.IsOnline("ada") }, time.Second, 5*time.Millisecond)
}

func TestOriginCheck(t *testing.T) {
	srv := setupTestServer(t, "http://localhost:5173")

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(srv.socketURL(tokenFor(t, "ada")), header)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "http://localhost:5173")
	conn, _, err := websocket.DefaultDialer.Dial(srv.socketURL(tokenFor(t, "ada")), header)
	require.NoError(t, err)
	conn.Close()
}

func TestSubscribeRepliesWithCurrentStatus(t *testing.T) {
	srv := setupTestServer(t)
	ada := srv.connect(t, "ada")

	emit(t, ada, events.SubscribeToUserStatus{ContactID: "grace"})
	assert.Equal(t, events.UserStatus{UserID: "grace", IsOnline: false}, readEvent(t, ada))

	grace := srv.connect(t, "grace")
	assert.Equal(t, events.UserStatus{UserID: "grace", IsOnline: true}, readEvent(t, ada))

	grace.Close()
	assert.Equal(t, events.UserStatus{UserID: "grace", IsOnline: false}, readEvent(t, ada))
}

func TestPresenceOnlyReachesSubscribers(t *testing.T) {
	srv := setupTestServer(t)
	ada := srv.connect(t, "ada")

	srv.connect(t, "grace")
	expectSilence(t, ada)
}

func TestSendFansOutToBothParticipants(t *testing.T) {
	srv := setupTestServer(t)
	ada := srv.connect(t, "ada")
	grace := srv.connect(t, "grace")

	body := strings.NewReader(`{"receiver":"grace","content":"hello grace","mediaUrl":null,"messageType":"text"}`)
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/messages/send", body)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, "ada"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	for _, conn := range []*websocket.Conn{grace, ada} {
		ev := readEvent(t, conn)
		nm, ok := ev.(events.NewMessage)
		require.True(t, ok, "got %T", ev)
		assert.Equal(t, "hello grace", nm.Message.Content)
		assert.Equal(t, "Ada Lovelace", nm.Message.SenderName)
		assert.Equal(t, events.RosterChanged{}, readEvent(t, conn))
	}
}

func TestMarkAsSeenOnlyByReceiver(t *testing.T) {
	srv := setupTestServer(t)
	msg, err := srv.store.CreateMessage("ada", "grace", models.SendRequest{Receiver: "grace", Content: "ping"})
	require.NoError(t, err)

	ada := srv.connect(t, "ada")
	grace := srv.connect(t, "grace")

	// the sender cannot acknowledge its own message
	emit(t, ada, events.MarkAsSeen{MessageID: msg.ID})
	expectSilence(t, grace)
	stored, err := srv.store.GetMessageByID(msg.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsSeen)

	emit(t, grace, events.MarkAsSeen{MessageID: msg.ID})
	for _, conn := range []*websocket.Conn{ada, grace} {
		ev := readEvent(t, conn)
		seen, ok := ev.(events.MessageSeen)
		require.True(t, ok, "got %T", ev)
		assert.Equal(t, msg.ID, seen.Message.ID)
		assert.True(t, seen.Message.IsSeen)
	}

	// unknown ids are ignored
	emit(t, grace, events.MarkAsSeen{MessageID: "missing"})
	expectSilence(t, grace)
}

func TestReconnectReplacesSocket(t *testing.T) {
	srv := setupTestServer(t)
	watcher := srv.connect(t, "grace")
	emit(t, watcher, events.SubscribeToUserStatus{ContactID: "ada"})
	require.Equal(t, events.UserStatus{UserID: "ada", IsOnline: false}, readEvent(t, watcher))

	first := srv.connect(t, "ada")
	require.Equal(t, events.UserStatus{UserID: "ada", IsOnline: true}, readEvent(t, watcher))

	second, _, err := websocket.DefaultDialer.Dial(srv.socketURL(tokenFor(t, "ada")), nil)
	require.NoError(t, err)
	defer second.Close()

	// the first socket is closed by the hub
	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = first.ReadMessage()
	assert.Error(t, err)

	// no offline flap for a replaced socket
	expectSilence(t, watcher)
	assert.True(t, srv.hub.IsOnline("ada"))

	srv.hub.Notify(events.RosterChanged{}, "ada")
	assert.Equal(t, events.RosterChanged{}, readEvent(t, second))
}

func TestUndecodableFramesAreDropped(t *testing.T) {
	srv := setupTestServer(t)
	ada := srv.connect(t, "ada")

	require.NoError(t, ada.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, ada.WriteMessage(websocket.TextMessage, []byte(`{"event":"typing","data":{}}`)))

	// the connection is still served
	emit(t, ada, events.SubscribeToUserStatus{ContactID: "grace"})
	assert.Equal(t, events.UserStatus{UserID: "grace", IsOnline: false}, readEvent(t, ada))
}

func TestNotifyDeduplicatesRecipients(t *testing.T) {
	srv := setupTestServer(t)
	ada := srv.connect(t, "ada")

	srv.hub.Notify(events.RosterChanged{}, "ada", "ada", "", "nobody")

	assert.Equal(t, events.RosterChanged{}, readEvent(t, ada))
	expectSilence(t, ada)
}
