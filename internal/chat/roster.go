package chat

import (
	"fmt"
	"strings"

	"github.com/sesmanagement/discussions/internal/models"
	"github.com/sesmanagement/discussions/internal/websocket"
)

// Roster owns the contact list and its unread counts
type Roster struct {
	localUser string
	contacts  []models.Contact
	loaded    bool

	// refresh requests are numbered so a slow response cannot overwrite a newer one
	issued  uint64
	applied uint64
}

func newRoster(localUser string) *Roster {
	return &Roster{localUser: localUser}
}

// Loaded reports whether at least one fetch succeeded
func (r *Roster) Loaded() bool {
	return r.loaded
}

// Contact looks a contact up by id
func (r *Roster) Contact(id string) (models.Contact, bool) {
	for _, c := range r.contacts {
		if c.ID == id {
			return c, true
		}
	}
	return models.Contact{}, false
}

// Filter returns the contacts whose display name contains query, ignoring case
func (r *Roster) Filter(query string) []models.Contact {
	return FilterContacts(r.contacts, query)
}

// FilterContacts is the pure filter behind Roster.Filter; contacts is not modified
func FilterContacts(contacts []models.Contact, query string) []models.Contact {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]models.Contact, 0, len(contacts))
	for _, c := range contacts {
		if q == "" || strings.Contains(strings.ToLower(c.DisplayName()), q) {
			out = append(out, c)
		}
	}
	return out
}

func (r *Roster) beginRefresh() uint64 {
	r.issued++
	return r.issued
}

// applyRefresh replaces the roster wholesale unless a newer response was applied already
func (r *Roster) applyRefresh(seq uint64, contacts []models.Contact) bool {
	if seq <= r.applied {
		return false
	}
	r.applied = seq
	r.contacts = contacts
	r.loaded = true
	return true
}

// MarkRead zeroes the unread count of a contact whose conversation was opened
func (r *Roster) MarkRead(contactID string) {
	for i := range r.contacts {
		if r.contacts[i].ID == contactID {
			r.contacts[i].UnreadCount = 0
		}
	}
}

// Dispatch applies one inbound event. It reports whether a refetch is needed
// and returns a notice for messages from contacts other than the active one.
func (r *Roster) Dispatch(ev websocket.Event, activeID string) (bool, *Notice) {
	switch e := ev.(type) {
	case websocket.RosterChanged:
		return true, nil
	case websocket.NewMessage:
		msg := e.Message
		if msg.Sender != r.localUser && msg.Receiver != r.localUser {
			return false, nil
		}
		peer := msg.Peer(r.localUser)
		for i := range r.contacts {
			if r.contacts[i].ID != peer {
				continue
			}
			r.contacts[i].LastMessage = msg.Preview()
			if msg.Receiver == r.localUser && peer != activeID && !msg.IsSeen {
				r.contacts[i].UnreadCount++
			}
		}
		if msg.Receiver == r.localUser && peer != activeID {
			return false, &Notice{Level: NoticeInfo, Text: fmt.Sprintf("New message from %s", r.senderName(msg))}
		}
	}
	return false, nil
}

func (r *Roster) senderName(msg models.Message) string {
	if msg.SenderName != "" {
		return msg.SenderName
	}
	if c, ok := r.Contact(msg.Sender); ok && c.DisplayName() != "" {
		return c.DisplayName()
	}
	return msg.Sender
}
