package chat

import (
	"errors"
	"fmt"

	"github.com/sesmanagement/discussions/internal/api"
)

var (
	ErrEmptyMessage    = errors.New("message has no text and no attachment")
	ErrNoActiveContact = errors.New("no conversation selected")
	ErrNotReady        = errors.New("conversation is not ready")
	ErrClosed          = errors.New("chat client closed")
	// ErrSuperseded is returned by SelectContact when another selection happened before its history arrived
	ErrSuperseded = errors.New("selection superseded")
)

// FetchError is returned when the roster or a history could not be loaded
type FetchError = api.FetchError

// MediaUploadError aborts a send before anything reached the backend
type MediaUploadError struct {
	Err error
}

func (e *MediaUploadError) Error() string {
	return fmt.Sprintf("media upload failed: %v", e.Err)
}

func (e *MediaUploadError) Unwrap() error {
	return e.Err
}

// SendError means the backend rejected the message or the request dropped; the draft is kept
type SendError struct {
	Err error
}

func (e *SendError) Error() string {
	return e.Err.Error()
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// NoticeLevel grades a user-visible notice
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeError
)

// Notice is a transient, user-visible message (the console shows these as toasts)
type Notice struct {
	Level NoticeLevel
	Text  string
	Err   error
}
