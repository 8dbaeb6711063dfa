package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sesmanagement/discussions/internal/auth"
	"github.com/sesmanagement/discussions/internal/models"
)

const testToken = "test-token"

// setupBackend serves the chat routes from gin, rejecting requests without the test token
func setupBackend(t *testing.T, register func(r *gin.RouterGroup)) *Client {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	group := router.Group("/messages")
	group.Use(func(c *gin.Context) {
		if c.GetHeader("Authorization") != "Bearer "+testToken {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		c.Next()
	})
	register(group)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return NewClient(server.URL+"/", auth.StaticToken(testToken))
}

func TestChatUsers(t *testing.T) {
	client := setupBackend(t, func(r *gin.RouterGroup) {
		r.GET("/chat-users", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"users": []gin.H{
				{"_id": "b", "firstName": "Bea", "lastName": "Z", "unreadCount": 0},
				{"_id": "a", "firstName": "Al", "lastName": "Y", "unreadCount": 2, "lastMessage": "yo"},
			}})
		})
	})

	users, err := client.ChatUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)

	// server order is preserved
	assert.Equal(t, "b", users[0].ID)
	assert.Equal(t, "a", users[1].ID)
	assert.Equal(t, 2, users[1].UnreadCount)
	assert.Equal(t, "yo", users[1].LastMessage)
}

func TestChatUsersMissingListIsEmpty(t *testing.T) {
	client := setupBackend(t, func(r *gin.RouterGroup) {
		r.GET("/chat-users", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{})
		})
	})

	users, err := client.ChatUsers(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, users)
	assert.Empty(t, users)
}

func TestChatUsersFetchError(t *testing.T) {
	client := setupBackend(t, func(r *gin.RouterGroup) {
		r.GET("/chat-users", func(c *gin.Context) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db down"})
		})
	})

	_, err := client.ChatUsers(context.Background())
	require.Error(t, err)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusInternalServerError, fe.Status)
	assert.Contains(t, fe.Error(), "db down")
}

func TestUnauthorizedIsFetchError(t *testing.T) {
	client := setupBackend(t, func(r *gin.RouterGroup) {
		r.GET("/chat-users", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{}) })
	})
	client.tokens = auth.StaticToken("wrong")

	_, err := client.ChatUsers(context.Background())

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusUnauthorized, fe.Status)
}

func TestHistory(t *testing.T) {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	client := setupBackend(t, func(r *gin.RouterGroup) {
		r.GET("/history/:userID", func(c *gin.Context) {
			assert.Equal(t, "contact 1", c.Param("userID"))
			c.JSON(http.StatusOK, models.HistoryResponse{Messages: []models.Message{
				{ID: "m1", Sender: "contact 1", Receiver: "me", Content: "hello", Type: models.MessageText, CreatedAt: created},
			}})
		})
	})

	msgs, err := client.History(context.Background(), "contact 1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.True(t, msgs[0].CreatedAt.Equal(created))
}

func TestSendMessage(t *testing.T) {
	client := setupBackend(t, func(r *gin.RouterGroup) {
		r.POST("/send", func(c *gin.Context) {
			var req models.SendRequest
			require.NoError(t, c.ShouldBindJSON(&req))
			assert.Equal(t, "b", req.Receiver)
			assert.Equal(t, "hi", req.Content)
			assert.Nil(t, req.MediaURL)
			assert.Equal(t, models.MessageText, req.MessageType)

			c.JSON(http.StatusCreated, models.SendResponse{Success: true, Message: &models.Message{
				ID: "42", Sender: "me", Receiver: "b", Content: "hi", Type: models.MessageText, CreatedAt: time.Now(),
			}})
		})
	})

	msg, err := client.SendMessage(context.Background(), models.SendRequest{Receiver: "b", Content: "hi", MessageType: models.MessageText})
	require.NoError(t, err)
	assert.Equal(t, "42", msg.ID)
}

func TestSendMessageRejected(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       gin.H
		wantReason string
	}{
		{name: "success false", status: http.StatusOK, body: gin.H{"success": false, "error": "receiver blocked"}, wantReason: "receiver blocked"},
		{name: "bad request", status: http.StatusBadRequest, body: gin.H{"error": "receiver required"}, wantReason: "receiver required"},
		{name: "no message", status: http.StatusOK, body: gin.H{"success": true}, wantReason: "backend did not accept the message"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := setupBackend(t, func(r *gin.RouterGroup) {
				r.POST("/send", func(c *gin.Context) { c.JSON(tt.status, tt.body) })
			})

			_, err := client.SendMessage(context.Background(), models.SendRequest{Receiver: "b", Content: "hi"})

			var se *SendError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.wantReason, se.Reason)
			assert.Equal(t, tt.status, se.Status)
		})
	}
}

func TestMissingTokenFailsBeforeRequest(t *testing.T) {
	calls := 0
	client := setupBackend(t, func(r *gin.RouterGroup) {
		r.GET("/chat-users", func(c *gin.Context) { calls++ })
	})
	client.tokens = auth.StaticToken("")

	_, err := client.ChatUsers(context.Background())
	assert.ErrorIs(t, err, auth.ErrMissingToken)
	assert.Equal(t, 0, calls)
}
