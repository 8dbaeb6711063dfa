package devserver

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/sesmanagement/discussions/internal/logger"
	events "github.com/sesmanagement/discussions/internal/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 64 * 1024
)

var log = logger.New("devserver")

// Notifier pushes events to the sockets of users
type Notifier interface {
	Notify(ev events.Event, userIDs ...string)
}

// Client represents a connected websocket client
type Client struct {
	UserID string
	Socket *websocket.Conn
	Send   chan []byte
}

// Hub keeps one socket per user, answers inbound events and tracks who
// wants presence updates about whom
type Hub struct {
	store    Store
	upgrader websocket.Upgrader

	mutex   sync.Mutex
	clients map[string]*Client
	// watched user id -> subscriber ids
	subscribers map[string]map[string]bool
}

// NewHub creates a hub; an empty allowedOrigins list accepts any origin
func NewHub(store Store, allowedOrigins []string) *Hub {
	h := &Hub{
		store:       store,
		clients:     make(map[string]*Client),
		subscribers: make(map[string]map[string]bool),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		log.Warn("Rejected websocket origin %s", origin)
		return false
	}
}

// IsOnline reports whether a user has a live socket
func (h *Hub) IsOnline(userID string) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	_, ok := h.clients[userID]
	return ok
}

// Notify encodes ev once and queues it for every listed user that is connected
func (h *Hub) Notify(ev events.Event, userIDs ...string) {
	frame, err := events.Encode(ev)
	if err != nil {
		log.Error("Failed to encode %s: %v", ev.EventName(), err)
		return
	}

	seen := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		h.SendToUser(id, frame)
	}
}

// SendToUser sends a frame to a specific user
func (h *Hub) SendToUser(userID string, frame []byte) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	client, ok := h.clients[userID]
	if !ok {
		log.Debug("User %s not connected", userID)
		return
	}
	select {
	case client.Send <- frame:
	default:
		close(client.Send)
		delete(h.clients, userID)
		log.Warn("Send buffer of user %s full, dropping client", userID)
	}
}

// HandleWebSocket upgrades an authenticated request and starts the pumps
func (h *Hub) HandleWebSocket(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		log.Warn("No userID in context, rejecting connection from %s", c.Request.RemoteAddr)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("Failed to upgrade connection: %v", err)
		return
	}

	client := &Client{
		UserID: userID,
		Socket: conn,
		Send:   make(chan []byte, 256),
	}
	h.register(client)

	go client.readPump(h)
	go client.writePump()
	log.Info("Client %s connected", userID)
}

func (h *Hub) register(client *Client) {
	h.mutex.Lock()
	old, replaced := h.clients[client.UserID]
	h.clients[client.UserID] = client
	if replaced {
		close(old.Send)
	}
	watchers := h.watchersLocked(client.UserID)
	h.mutex.Unlock()

	if replaced {
		log.Info("Client %s reconnected, previous socket closed", client.UserID)
		return
	}
	h.Notify(events.UserStatus{UserID: client.UserID, IsOnline: true}, watchers...)
}

func (h *Hub) unregister(client *Client) {
	h.mutex.Lock()
	current, ok := h.clients[client.UserID]
	if !ok || current != client {
		// already dropped or replaced by a newer socket
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client.UserID)
	close(client.Send)
	watchers := h.watchersLocked(client.UserID)
	h.mutex.Unlock()

	log.Info("Client %s disconnected", client.UserID)
	h.Notify(events.UserStatus{UserID: client.UserID, IsOnline: false}, watchers...)
}

func (h *Hub) subscribe(subscriberID, watchedID string) {
	h.mutex.Lock()
	set, ok := h.subscribers[watchedID]
	if !ok {
		set = make(map[string]bool)
		h.subscribers[watchedID] = set
	}
	set[subscriberID] = true
	_, online := h.clients[watchedID]
	h.mutex.Unlock()

	h.Notify(events.UserStatus{UserID: watchedID, IsOnline: online}, subscriberID)
}

func (h *Hub) watchersLocked(userID string) []string {
	out := make([]string, 0, len(h.subscribers[userID]))
	for id := range h.subscribers[userID] {
		out = append(out, id)
	}
	return out
}

// handle applies one inbound event from client
func (h *Hub) handle(client *Client, ev events.Event) {
	switch e := ev.(type) {
	case events.MarkAsSeen:
		h.markAsSeen(client.UserID, e.MessageID)
	case events.SubscribeToUserStatus:
		if e.ContactID == "" {
			return
		}
		h.subscribe(client.UserID, e.ContactID)
	default:
		log.Warn("Unexpected event '%s' from client %s", ev.EventName(), client.UserID)
	}
}

func (h *Hub) markAsSeen(userID, messageID string) {
	msg, err := h.store.GetMessageByID(messageID)
	if err != nil {
		log.Warn("markAsSeen %s from %s: %v", messageID, userID, err)
		return
	}
	if msg.Receiver != userID {
		log.Warn("User %s may not mark message %s as seen", userID, messageID)
		return
	}

	seen, err := h.store.MarkMessageSeen(messageID)
	if err != nil {
		log.Error("Failed to mark message %s as seen: %v", messageID, err)
		return
	}
	h.Notify(events.MessageSeen{Message: *seen}, seen.Sender, seen.Receiver)
}

// readPump pumps frames from the websocket connection to the hub
func (c *Client) readPump(h *Hub) {
	defer func() {
		h.unregister(c)
		c.Socket.Close()
	}()

	c.Socket.SetReadLimit(maxMessageSize)
	c.Socket.SetReadDeadline(time.Now().Add(pongWait))
	c.Socket.SetPongHandler(func(string) error {
		c.Socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := c.Socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error("Error reading from client %s: %v", c.UserID, err)
			} else {
				log.Debug("Client %s closed connection: %v", c.UserID, err)
			}
			return
		}

		ev, err := events.Decode(frame)
		if err != nil {
			log.Warn("Dropping frame from client %s: %v", c.UserID, err)
			continue
		}
		log.Debug("Received '%s' from client %s", ev.EventName(), c.UserID)
		h.handle(c, ev)
	}
}

// writePump pumps frames from the hub to the websocket connection, one event per frame
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Socket.Close()
	}()

	for {
		select {
		case frame, ok := <-c.Send:
			c.Socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// the hub closed the channel
				c.Socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Socket.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.Socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
