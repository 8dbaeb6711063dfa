package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sesmanagement/discussions/internal/auth"
	"github.com/sesmanagement/discussions/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	maxFrameSize   = 64 * 1024
	sendBufferSize = 256
	eventBuffer    = 64
)

var (
	log = logger.New("websocket")

	// ErrClosed is returned by Emit once the session has been closed
	ErrClosed = errors.New("session closed")
)

// ConnectionError means the real-time channel could not be established
type ConnectionError struct {
	URL    string
	Status int
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("connect %s: handshake rejected with status %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("connect %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

type dialOptions struct {
	dialer       *websocket.Dialer
	pingInterval time.Duration
	pongWait     time.Duration
}

// DialOption customises Dial
type DialOption func(*dialOptions)

// WithDialer replaces websocket.DefaultDialer
func WithDialer(d *websocket.Dialer) DialOption {
	return func(o *dialOptions) {
		o.dialer = d
	}
}

// WithKeepalive sets how often the client pings and how long it waits for any frame
func WithKeepalive(pingInterval, pongWait time.Duration) DialOption {
	return func(o *dialOptions) {
		o.pingInterval = pingInterval
		o.pongWait = pongWait
	}
}

// Session is the live connection of one authenticated user
type Session struct {
	conn   *websocket.Conn
	opts   dialOptions
	send   chan []byte
	events chan Event
	done   chan struct{}

	closeOnce sync.Once
	connected atomic.Bool
}

// Dial opens the real-time channel. The token goes in the "token" query
// parameter and in the Authorization header.
func Dial(ctx context.Context, rawURL string, tokens auth.TokenProvider, opts ...DialOption) (*Session, error) {
	o := dialOptions{
		dialer:       websocket.DefaultDialer,
		pingInterval: 54 * time.Second,
		pongWait:     60 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	token, err := tokens.Token()
	if err != nil {
		return nil, &ConnectionError{URL: rawURL, Err: err}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &ConnectionError{URL: rawURL, Err: err}
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	log.Debug("Dialing %s with token %s", rawURL, logger.Preview(token))
	conn, resp, err := o.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		ce := &ConnectionError{URL: rawURL, Err: err}
		if resp != nil {
			ce.Status = resp.StatusCode
		}
		log.Error("Connection failed: %v", ce)
		return nil, ce
	}

	s := &Session{
		conn:   conn,
		opts:   o,
		send:   make(chan []byte, sendBufferSize),
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
	}
	s.connected.Store(true)

	go s.readPump()
	go s.writePump()
	log.Info("Connected to %s", rawURL)
	return s, nil
}

// Events delivers inbound events in the order the server sent them. The
// channel is closed when the connection ends for any reason.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Connected reports whether the transport is still up
func (s *Session) Connected() bool {
	return s.connected.Load()
}

// Done is closed once Close has been called or the connection dropped
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Emit queues an outbound event
func (s *Session) Emit(ev Event) error {
	frame, err := Encode(ev)
	if err != nil {
		return err
	}

	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	select {
	case s.send <- frame:
		log.Debug("Queued %s", ev.EventName())
		return nil
	case <-s.done:
		return ErrClosed
	}
}

// Close tears the connection down. Safe to call more than once and from any goroutine.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.connected.Store(false)
		close(s.done)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = s.conn.Close()
		log.Debug("Session closed")
	})
	return err
}

func (s *Session) readPump() {
	defer func() {
		s.connected.Store(false)
		close(s.events)
		s.Close()
	}()

	s.conn.SetReadLimit(maxFrameSize)
	s.conn.SetReadDeadline(time.Now().Add(s.opts.pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.opts.pongWait))
		return nil
	})

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				// closed locally
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Error("Connection lost: %v", err)
				} else {
					log.Info("Server closed connection: %v", err)
				}
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(s.opts.pongWait))

		ev, err := Decode(frame)
		if err != nil {
			log.Warn("Skipping frame: %v", err)
			continue
		}

		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(s.opts.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Error("Write failed: %v", err)
				s.Close()
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}
