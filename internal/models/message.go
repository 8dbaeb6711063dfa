package models

import (
	"io"
	"strings"
	"time"
)

// MessageType tells the renderer how to show a message body
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageFile  MessageType = "file"
)

// Message represents a direct message between the local user and a contact
type Message struct {
	ID         string      `json:"_id"`
	Sender     string      `json:"sender"`
	Receiver   string      `json:"receiver"`
	SenderName string      `json:"senderName,omitempty"`
	Content    string      `json:"content,omitempty"`
	MediaURL   string      `json:"mediaUrl,omitempty"`
	Type       MessageType `json:"messageType"`
	IsSeen     bool        `json:"isSeen"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// Involves reports whether the message was exchanged between a and b, in either direction
func (m Message) Involves(a, b string) bool {
	return (m.Sender == a && m.Receiver == b) || (m.Sender == b && m.Receiver == a)
}

// Peer returns the other side of the message as seen by userID
func (m Message) Peer(userID string) string {
	if m.Sender == userID {
		return m.Receiver
	}
	return m.Sender
}

// Preview is the one-line summary shown in the roster
func (m Message) Preview() string {
	switch {
	case m.Content != "":
		return m.Content
	case m.Type == MessageImage:
		return "[image]"
	case m.MediaURL != "":
		return "[file]"
	default:
		return ""
	}
}

// HistoryResponse is the body of GET /messages/history/:id
type HistoryResponse struct {
	Messages []Message `json:"messages"`
}

// SendRequest is the body of POST /messages/send
type SendRequest struct {
	Receiver    string      `json:"receiver" binding:"required"`
	Content     string      `json:"content"`
	MediaURL    *string     `json:"mediaUrl"`
	MessageType MessageType `json:"messageType"`
}

// SendResponse is what the backend returns for a send
type SendResponse struct {
	Success bool     `json:"success"`
	Message *Message `json:"message,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// MediaFile is a single attachment waiting to be uploaded
type MediaFile struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// Kind derives the message type a send with this attachment gets
func (f *MediaFile) Kind() MessageType {
	if f == nil {
		return MessageText
	}
	if strings.HasPrefix(f.ContentType, "image/") {
		return MessageImage
	}
	return MessageFile
}

// Draft is the not-yet-sent content of the active conversation
type Draft struct {
	Text  string
	Media *MediaFile
}

// Empty reports whether there is nothing to send
func (d Draft) Empty() bool {
	return strings.TrimSpace(d.Text) == "" && d.Media == nil
}
