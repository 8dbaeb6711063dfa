package ui

import (
	"bytes"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rivo/tview"

	"github.com/sesmanagement/discussions/internal/chat"
	"github.com/sesmanagement/discussions/internal/models"
)

const maxAttachmentBytes = 10 << 20

func contactLabel(c models.Contact, online bool) string {
	dot := tagOffline + "○" + tagReset
	if online {
		dot = tagOnline + "●" + tagReset
	}
	label := fmt.Sprintf("%s %s", dot, tview.Escape(c.DisplayName()))
	if c.UnreadCount > 0 {
		label += fmt.Sprintf(" [yellow](%d)[-]", c.UnreadCount)
	}
	return label
}

func contactSecondary(c models.Contact) string {
	return tview.Escape(c.LastMessage)
}

func formatMessage(m models.Message, localUser string) string {
	ts := m.CreatedAt.Local().Format("15:04")
	body := tview.Escape(m.Content)
	if m.MediaURL != "" {
		kind := "file"
		if m.Type == models.MessageImage {
			kind = "image"
		}
		attachment := fmt.Sprintf("[%s: %s]", kind, m.MediaURL)
		if body != "" {
			body += " "
		}
		body += tview.Escape(attachment)
	}

	if m.Sender == localUser {
		ticks := "✓"
		if m.IsSeen {
			ticks = tagSeen + "✓✓" + tagReset
		}
		return fmt.Sprintf("%s%s You:%s %s %s", tagSent, ts, tagReset, body, ticks)
	}

	name := m.SenderName
	if name == "" {
		name = m.Sender
	}
	return fmt.Sprintf("%s%s %s:%s %s", tagReceived, ts, tview.Escape(name), tagReset, body)
}

func chatTitle(view chat.View) string {
	if view.Active == nil {
		return " Select a conversation "
	}
	status := "○ offline"
	if view.Online[view.Active.ID] {
		status = "● online"
	}
	title := fmt.Sprintf(" %s ─ %s ", view.Active.DisplayName(), status)
	switch view.State {
	case chat.Loading:
		title += "─ loading… "
	case chat.Sending:
		title += "─ sending… "
	case chat.SendFailed:
		title += "─ not sent, Enter to retry "
	}
	return title
}

func draftLabel(d models.Draft) string {
	if d.Media == nil {
		return "> "
	}
	return tview.Escape("["+d.Media.Name+"]") + " > "
}

// parseCommand splits "/name arg" input; ok is false for plain text
func parseCommand(text string) (name, arg string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	name, arg, _ = strings.Cut(text[1:], " ")
	return strings.ToLower(name), strings.TrimSpace(arg), true
}

// openAttachment reads a file into memory so a retried send can re-read it
func openAttachment(path string) (*models.MediaFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > maxAttachmentBytes {
		return nil, fmt.Errorf("%s is larger than %d MB", path, maxAttachmentBytes>>20)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	return &models.MediaFile{
		Name:        filepath.Base(path),
		ContentType: contentType,
		Body:        bytes.NewReader(data),
	}, nil
}
