package devserver

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/sesmanagement/discussions/internal/auth"
)

// NewRouter wires the REST routes and the socket endpoint
func NewRouter(store Store, hub *Hub, signer *auth.Signer, allowedOrigins []string) *gin.Engine {
	router := gin.Default()

	if len(allowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     allowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	messageHandler := NewMessageHandler(store, hub)

	authorized := router.Group("/")
	authorized.Use(AuthMiddleware(signer))
	{
		authorized.GET("/messages/chat-users", messageHandler.ChatUsers)
		authorized.GET("/messages/history/:userID", messageHandler.History)
		authorized.POST("/messages/send", messageHandler.SendMessage)

		authorized.GET("/socket", hub.HandleWebSocket)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return router
}
