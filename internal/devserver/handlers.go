package devserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sesmanagement/discussions/internal/models"
	events "github.com/sesmanagement/discussions/internal/websocket"
)

// MessageHandler handles the /messages routes
type MessageHandler struct {
	Store Store
	Hub   Notifier
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(store Store, hub Notifier) *MessageHandler {
	return &MessageHandler{Store: store, Hub: hub}
}

// ChatUsers returns the caller's roster
func (h *MessageHandler) ChatUsers(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	contacts, err := h.Store.ChatUsers(userID)
	if err != nil {
		log.Error("Chat users for %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if contacts == nil {
		contacts = []models.Contact{}
	}

	c.JSON(http.StatusOK, models.RosterResponse{Users: contacts})
}

// History returns all messages between the caller and another user
func (h *MessageHandler) History(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	otherID := c.Param("userID")
	if _, err := h.Store.GetUserByID(otherID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	messages, err := h.Store.GetConversation(userID, otherID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, models.HistoryResponse{Messages: messages})
}

// SendMessage stores a message and fans it out to both participants
func (h *MessageHandler) SendMessage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.SendResponse{Error: "Unauthorized"})
		return
	}

	var req models.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.SendResponse{Error: err.Error()})
		return
	}
	hasMedia := req.MediaURL != nil && *req.MediaURL != ""
	if strings.TrimSpace(req.Content) == "" && !hasMedia {
		c.JSON(http.StatusBadRequest, models.SendResponse{Error: "Message must have content or media"})
		return
	}
	if req.Receiver == userID {
		c.JSON(http.StatusBadRequest, models.SendResponse{Error: "Cannot send a message to yourself"})
		return
	}

	message, err := h.Store.CreateMessage(userID, req.Receiver, req)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			c.JSON(http.StatusNotFound, models.SendResponse{Error: "Receiver not found"})
			return
		}
		log.Error("Failed to store message from %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, models.SendResponse{Error: err.Error()})
		return
	}

	h.Hub.Notify(events.NewMessage{Message: *message}, message.Receiver, message.Sender)
	h.Hub.Notify(events.RosterChanged{}, message.Receiver, message.Sender)

	c.JSON(http.StatusCreated, models.SendResponse{Success: true, Message: message})
}
