package devserver_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sesmanagement/discussions/internal/api"
	"github.com/sesmanagement/discussions/internal/auth"
	"github.com/sesmanagement/discussions/internal/chat"
	"github.com/sesmanagement/discussions/internal/devserver"
	"github.com/sesmanagement/discussions/internal/models"
)

type participant struct {
	client *chat.Client

	mu      sync.Mutex
	notices []string
}

func (p *participant) noticeTexts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.notices...)
}

func (p *participant) contact(id string) (models.Contact, bool) {
	for _, c := range p.client.Snapshot().Contacts {
		if c.ID == id {
			return c, true
		}
	}
	return models.Contact{}, false
}

func join(t *testing.T, baseURL string, signer *auth.Signer, userID string) *participant {
	token, _, err := signer.GenerateToken(userID, userID)
	require.NoError(t, err)
	tokens := auth.StaticToken(token)

	p := &participant{}
	client, err := chat.Open(context.Background(), chat.Options{
		Tokens:  tokens,
		Backend: api.NewClient(baseURL, tokens),
		Dial:    chat.DialWebSocket("ws" + strings.TrimPrefix(baseURL, "http") + "/socket"),
		Notify: func(n chat.Notice) {
			p.mu.Lock()
			p.notices = append(p.notices, n.Text)
			p.mu.Unlock()
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	p.client = client

	require.Eventually(t, func() bool {
		return len(client.Snapshot().Contacts) == len(devserver.SeedUsers)-1
	}, 2*time.Second, 10*time.Millisecond, "%s roster", userID)
	return p
}

func TestChatAgainstReferenceBackend(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := devserver.NewMemoryStore()
	require.NoError(t, devserver.Seed(store, devserver.SeedUsers))
	signer := auth.NewSigner([]byte("e2e-secret"), time.Hour)
	hub := devserver.NewHub(store, nil)
	server := httptest.NewServer(devserver.NewRouter(store, hub, signer, nil))
	defer server.Close()

	ctx := context.Background()
	ada := join(t, server.URL, signer, "ada")
	grace := join(t, server.URL, signer, "grace")

	graceContact, ok := ada.contact("grace")
	require.True(t, ok)
	require.NoError(t, ada.client.SelectContact(ctx, graceContact))
	assert.Empty(t, ada.client.Snapshot().Messages)

	// selecting subscribed ada to grace's presence
	assert.Eventually(t, func() bool { return ada.client.IsOnline("grace") }, 2*time.Second, 10*time.Millisecond)

	sent, err := ada.client.Send(ctx, "hello grace", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{sent.ID}, messageIDs(ada.client.Snapshot().Messages))

	// grace has no conversation open: toast plus unread bump, then the server's count
	assert.Eventually(t, func() bool {
		for _, n := range grace.noticeTexts() {
			if n == "New message from Ada Lovelace" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		c, _ := grace.contact("ada")
		return c.UnreadCount == 1 && c.LastMessage == "hello grace"
	}, 2*time.Second, 10*time.Millisecond)

	adaContact, ok := grace.contact("ada")
	require.True(t, ok)
	require.NoError(t, grace.client.SelectContact(ctx, adaContact))
	assert.Equal(t, []string{sent.ID}, messageIDs(grace.client.Snapshot().Messages))

	// grace's acknowledgement reaches ada
	assert.Eventually(t, func() bool {
		msgs := ada.client.Snapshot().Messages
		return len(msgs) == 1 && msgs[0].IsSeen
	}, 2*time.Second, 10*time.Millisecond)

	// the reply lands in both open conversations exactly once
	reply, err := grace.client.Send(ctx, "hi ada", nil)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{sent.ID, reply.ID}, messageIDs(ada.client.Snapshot().Messages))
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{sent.ID, reply.ID}, messageIDs(grace.client.Snapshot().Messages))

	// grace leaving shows up in ada's presence
	require.NoError(t, grace.client.Close())
	assert.Eventually(t, func() bool { return !ada.client.IsOnline("grace") }, 2*time.Second, 10*time.Millisecond)
}

func messageIDs(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}
