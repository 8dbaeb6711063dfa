package websocket

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sesmanagement/discussions/internal/models"
)

// Event names on the wire
const (
	EventNewMessage            = "newMessage"
	EventMessageSeen           = "messageSeen"
	EventUserStatus            = "userStatus"
	EventRosterChanged         = "rosterChanged"
	EventUpdateChatList        = "updateChatList"
	EventMarkAsSeen            = "markAsSeen"
	EventSubscribeToUserStatus = "subscribeToUserStatus"
)

// ErrUnknownEvent is returned by Decode for event names this client does not handle
var ErrUnknownEvent = errors.New("unknown event")

// Event is one frame of the real-time channel. The concrete types below form
// a closed set; consumers switch on them.
type Event interface {
	EventName() string
}

// NewMessage is pushed when a message to or from the local user was stored
type NewMessage struct {
	Message models.Message
}

// MessageSeen is pushed after a message was acknowledged by its receiver
type MessageSeen struct {
	Message models.Message
}

// UserStatus carries a presence change for one user
type UserStatus struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

// RosterChanged tells the client its roster (previews, unread counts) is stale
type RosterChanged struct{}

// MarkAsSeen acknowledges one received message
type MarkAsSeen struct {
	MessageID string `json:"messageId"`
}

// SubscribeToUserStatus asks for presence updates about one contact
type SubscribeToUserStatus struct {
	ContactID string
}

func (NewMessage) EventName() string            { return EventNewMessage }
func (MessageSeen) EventName() string           { return EventMessageSeen }
func (UserStatus) EventName() string            { return EventUserStatus }
func (RosterChanged) EventName() string         { return EventRosterChanged }
func (MarkAsSeen) EventName() string            { return EventMarkAsSeen }
func (SubscribeToUserStatus) EventName() string { return EventSubscribeToUserStatus }

// envelope is the JSON frame: {"event": "...", "data": ...}
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode serialises an event into a frame
func Encode(ev Event) ([]byte, error) {
	var data interface{}
	switch e := ev.(type) {
	case NewMessage:
		data = e.Message
	case MessageSeen:
		data = e.Message
	case UserStatus:
		data = e
	case RosterChanged:
		data = nil
	case MarkAsSeen:
		data = e
	case SubscribeToUserStatus:
		data = e.ContactID
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}

	env := envelope{Event: ev.EventName()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// Decode parses a frame into one of the concrete event types
func Decode(frame []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch env.Event {
	case EventNewMessage:
		var msg models.Message
		if err := unmarshalData(env, &msg); err != nil {
			return nil, err
		}
		return NewMessage{Message: msg}, nil
	case EventMessageSeen:
		var msg models.Message
		if err := unmarshalData(env, &msg); err != nil {
			return nil, err
		}
		return MessageSeen{Message: msg}, nil
	case EventUserStatus:
		var st UserStatus
		if err := unmarshalData(env, &st); err != nil {
			return nil, err
		}
		return st, nil
	case EventRosterChanged, EventUpdateChatList:
		return RosterChanged{}, nil
	case EventMarkAsSeen:
		var ack MarkAsSeen
		if err := unmarshalData(env, &ack); err != nil {
			return nil, err
		}
		return ack, nil
	case EventSubscribeToUserStatus:
		var id string
		if err := unmarshalData(env, &id); err != nil {
			return nil, err
		}
		return SubscribeToUserStatus{ContactID: id}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

func unmarshalData(env envelope, v interface{}) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%s: missing data", env.Event)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%s: %w", env.Event, err)
	}
	return nil
}
