package devserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sesmanagement/discussions/internal/auth"
)

var testSigner = auth.NewSigner([]byte("devserver-test-secret"), time.Hour)

func tokenFor(t *testing.T, userID string) string {
	token, _, err := testSigner.GenerateToken(userID, "Test "+userID)
	require.NoError(t, err)
	return token
}

// setupAuthTestRouter creates a test router with the auth middleware
func setupAuthTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(AuthMiddleware(testSigner))

	router.GET("/test", func(c *gin.Context) {
		userID, ok := currentUser(c)
		name, _ := c.Get("name")
		c.JSON(http.StatusOK, gin.H{
			"userID": userID,
			"ok":     ok,
			"name":   name,
		})
	})
	return router
}

func TestAuthMiddleware(t *testing.T) {
	router := setupAuthTestRouter()
	token := tokenFor(t, "ada")
	foreign, _, err := auth.NewSigner([]byte("other-secret"), time.Hour).GenerateToken("ada", "Ada")
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		query      string
		wantStatus int
	}{
		{name: "bearer header", header: "Bearer " + token, wantStatus: http.StatusOK},
		{name: "query parameter", query: token, wantStatus: http.StatusOK},
		{name: "no token", wantStatus: http.StatusUnauthorized},
		{name: "invalid token format", header: "Bearer invalid.token.string", wantStatus: http.StatusUnauthorized},
		{name: "missing Bearer prefix", header: token, wantStatus: http.StatusUnauthorized},
		{name: "signed with another key", header: "Bearer " + foreign, wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/test"
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}

			var response struct {
				UserID string `json:"userID"`
				OK     bool   `json:"ok"`
				Name   string `json:"name"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, "ada", response.UserID)
			assert.True(t, response.OK)
			assert.Equal(t, "Test ada", response.Name)
		})
	}
}
