package models

import "strings"

// Contact is a conversation partner shown in the chat sidebar
type Contact struct {
	ID          string `json:"_id"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Picture     string `json:"picture,omitempty"`
	LastMessage string `json:"lastMessage,omitempty"`
	UnreadCount int    `json:"unreadCount"`
}

// DisplayName returns the name rendered in the roster and conversation header
func (c Contact) DisplayName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// RosterResponse is the body of GET /messages/chat-users
type RosterResponse struct {
	Users []Contact `json:"users"`
}
