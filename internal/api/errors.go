package api

import "fmt"

// FetchError is returned when the roster or a history could not be loaded
type FetchError struct {
	Op     string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s failed (status %d): %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s failed: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// SendError is returned when the backend rejected a message or the request dropped
type SendError struct {
	Status int
	Reason string
	Err    error
}

func (e *SendError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("send failed: %v", e.Err)
	case e.Reason != "":
		return "send failed: " + e.Reason
	default:
		return "send failed"
	}
}

func (e *SendError) Unwrap() error {
	return e.Err
}
