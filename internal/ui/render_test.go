package ui

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sesmanagement/discussions/internal/chat"
	"github.com/sesmanagement/discussions/internal/models"
)

func TestContactLabel(t *testing.T) {
	c := models.Contact{ID: "ada", FirstName: "Ada", LastName: "Lovelace", UnreadCount: 3}

	online := contactLabel(c, true)
	assert.Contains(t, online, "●")
	assert.Contains(t, online, "Ada Lovelace")
	assert.Contains(t, online, "(3)")

	c.UnreadCount = 0
	offline := contactLabel(c, false)
	assert.Contains(t, offline, "○")
	assert.NotContains(t, offline, "(0)")
}

func TestFormatMessage(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.Local)

	mine := formatMessage(models.Message{Sender: "me", Receiver: "ada", Content: "hi", CreatedAt: at}, "me")
	assert.Contains(t, mine, "09:30 You:")
	assert.Contains(t, mine, "hi ✓")
	assert.NotContains(t, mine, "✓✓")

	seen := formatMessage(models.Message{Sender: "me", Content: "hi", IsSeen: true, CreatedAt: at}, "me")
	assert.Contains(t, seen, "✓✓")

	theirs := formatMessage(models.Message{Sender: "ada", SenderName: "Ada", Content: "hello", CreatedAt: at}, "me")
	assert.Contains(t, theirs, "Ada:")
	assert.Contains(t, theirs, "hello")

	anonymous := formatMessage(models.Message{Sender: "ada", Content: "x", CreatedAt: at}, "me")
	assert.Contains(t, anonymous, "ada:")

	image := formatMessage(models.Message{Sender: "ada", Type: models.MessageImage, MediaURL: "https://x/a.png", CreatedAt: at}, "me")
	assert.Contains(t, image, "https://x/a.png")
	assert.Contains(t, image, "image")
}

func TestChatTitle(t *testing.T) {
	assert.Equal(t, " Select a conversation ", chatTitle(chat.View{}))

	view := chat.View{
		Active: &models.Contact{ID: "ada", FirstName: "Ada"},
		Online: map[string]bool{"ada": true},
		State:  chat.Ready,
	}
	assert.Equal(t, " Ada ─ ● online ", chatTitle(view))

	view.State = chat.SendFailed
	assert.Contains(t, chatTitle(view), "retry")
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input    string
		wantName string
		wantArg  string
		wantOK   bool
	}{
		{input: "hello", wantOK: false},
		{input: "/attach ~/pics/a.png", wantName: "attach", wantArg: "~/pics/a.png", wantOK: true},
		{input: "  /DETACH ", wantName: "detach", wantOK: true},
		{input: "/search  ada lovelace ", wantName: "search", wantArg: "ada lovelace", wantOK: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			name, arg, ok := parseCommand(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantArg, arg)
		})
	}
}

func TestOpenAttachment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "poster.png")
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG\r\n\x1a\nrest"), 0o600))

	file, err := openAttachment(path)
	require.NoError(t, err)
	assert.Equal(t, "poster.png", file.Name)
	assert.Equal(t, "image/png", file.ContentType)
	assert.Equal(t, models.MessageImage, file.Kind())

	body, err := io.ReadAll(file.Body)
	require.NoError(t, err)
	assert.Len(t, body, 12)
	_, ok := file.Body.(io.Seeker)
	assert.True(t, ok, "retries need a seekable body")

	assert.Contains(t, draftLabel(models.Draft{Media: file}), "poster.png")
	assert.Equal(t, "> ", draftLabel(models.Draft{}))

	_, err = openAttachment(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
	_, err = openAttachment(dir)
	assert.Error(t, err)
}
