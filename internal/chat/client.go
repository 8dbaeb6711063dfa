package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sesmanagement/discussions/internal/auth"
	"github.com/sesmanagement/discussions/internal/logger"
	"github.com/sesmanagement/discussions/internal/models"
	"github.com/sesmanagement/discussions/internal/websocket"
)

var log = logger.New("chat")

// Backend is the REST side of the chat contract
type Backend interface {
	ChatUsers(ctx context.Context) ([]models.Contact, error)
	History(ctx context.Context, contactID string) ([]models.Message, error)
	SendMessage(ctx context.Context, req models.SendRequest) (*models.Message, error)
}

// Uploader turns an attachment into a public URL
type Uploader interface {
	Upload(ctx context.Context, file *models.MediaFile) (string, error)
}

// Session is the live real-time channel; *websocket.Session implements it
type Session interface {
	Events() <-chan websocket.Event
	Emit(ev websocket.Event) error
	Connected() bool
	Close() error
}

// DialFunc opens the real-time channel for a token
type DialFunc func(ctx context.Context, tokens auth.TokenProvider) (Session, error)

// Options wires a Client to its collaborators
type Options struct {
	Tokens   auth.TokenProvider
	Backend  Backend
	Uploader Uploader
	Dial     DialFunc

	// Notify receives user-visible notices; it runs outside the client's lock
	Notify func(Notice)
	// OnChange is called after every state change so a view can re-render
	OnChange func()
}

// View is a copy of everything a renderer needs
type View struct {
	LocalUserID  string
	Connected    bool
	State        State
	Active       *models.Contact
	Messages     []models.Message
	Contacts     []models.Contact
	RosterLoaded bool
	Query        string
	Online       map[string]bool
	Draft        models.Draft
}

// Client is the chat feature of one authenticated page load: it owns the
// session and routes every event through the roster, presence and
// conversation, one event at a time.
type Client struct {
	localUser string
	opts      Options
	session   Session

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	query    string
	roster   *Roster
	presence *Presence
	conv     *Conversation

	done chan struct{}
}

// DialWebSocket adapts websocket.Dial to a DialFunc
func DialWebSocket(url string, opts ...websocket.DialOption) DialFunc {
	return func(ctx context.Context, tokens auth.TokenProvider) (Session, error) {
		s, err := websocket.Dial(ctx, url, tokens, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Open connects the session and immediately starts a roster fetch
func Open(ctx context.Context, opts Options) (*Client, error) {
	if opts.Tokens == nil || opts.Backend == nil || opts.Dial == nil {
		return nil, errors.New("chat: tokens, backend and dial are required")
	}

	token, err := opts.Tokens.Token()
	if err != nil {
		return nil, err
	}
	localUser, err := auth.UserIDFromToken(token)
	if err != nil {
		return nil, err
	}

	session, err := opts.Dial(ctx, opts.Tokens)
	if err != nil {
		return nil, fmt.Errorf("open chat session: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		localUser: localUser,
		opts:      opts,
		session:   session,
		ctx:       runCtx,
		cancel:    cancel,
		roster:    newRoster(localUser),
		presence:  newPresence(),
		conv:      newConversation(localUser),
		done:      make(chan struct{}),
	}

	go c.RefreshRoster(runCtx)
	go c.run()

	log.Info("Chat opened for user %s", localUser)
	return c, nil
}

// LocalUserID is the id carried by the token
func (c *Client) LocalUserID() string {
	return c.localUser
}

// Done is closed when the event loop stops, either by Close or a lost connection
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close tears down the session. In-flight fetches and sends are abandoned:
// their results are dropped without notices or state changes.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	err := c.session.Close()
	log.Info("Chat closed")
	return err
}

func (c *Client) run() {
	defer close(c.done)
	for ev := range c.session.Events() {
		c.dispatch(ev)
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if !closed {
		log.Warn("Real-time connection lost")
		c.notify(Notice{Level: NoticeError, Text: "Chat connection lost"})
		c.changed()
	}
}

// dispatch routes one event through each component in turn
func (c *Client) dispatch(ev websocket.Event) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	log.Debug("Event %s", ev.EventName())

	refresh, notice := c.roster.Dispatch(ev, c.conv.activeID())
	c.presence.Dispatch(ev)
	unseen := c.conv.Dispatch(ev)
	c.mu.Unlock()

	if notice != nil {
		c.notify(*notice)
	}
	c.markSeen(unseen)
	if refresh {
		go c.RefreshRoster(c.ctx)
	}
	c.changed()
}

// RefreshRoster refetches the contact list. On failure the previous list stays.
func (c *Client) RefreshRoster(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	seq := c.roster.beginRefresh()
	c.mu.Unlock()

	contacts, err := c.opts.Backend.ChatUsers(ctx)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if err != nil {
		c.mu.Unlock()
		log.Warn("Roster refresh failed: %v", err)
		c.notify(Notice{Level: NoticeError, Text: "Could not load chats", Err: err})
		return err
	}
	applied := c.roster.applyRefresh(seq, contacts)
	if applied && c.conv.State() != Idle && c.conv.State() != Loading {
		// the open conversation has been read even if the server has not caught up
		c.roster.MarkRead(c.conv.activeID())
	}
	c.mu.Unlock()

	if applied {
		c.changed()
	}
	return nil
}

// SelectContact opens the conversation with contact: subscribes to its
// presence, loads the history and acknowledges unseen messages
func (c *Client) SelectContact(ctx context.Context, contact models.Contact) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	gen := c.conv.selectContact(contact)
	c.mu.Unlock()
	c.changed()

	if err := c.session.Emit(websocket.SubscribeToUserStatus{ContactID: contact.ID}); err != nil {
		log.Warn("Presence subscription for %s failed: %v", contact.ID, err)
	}

	history, err := c.opts.Backend.History(ctx, contact.ID)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if err != nil {
		unseen, restored := c.conv.historyFailed(gen)
		c.mu.Unlock()
		log.Warn("History for %s failed: %v", contact.ID, err)
		if restored {
			c.notify(Notice{Level: NoticeError, Text: "Could not load conversation with " + contact.DisplayName(), Err: err})
			c.markSeen(unseen)
			c.changed()
		}
		return err
	}
	unseen, ok := c.conv.historyLoaded(gen, history)
	if ok {
		c.roster.MarkRead(contact.ID)
	}
	c.mu.Unlock()

	if !ok {
		log.Debug("Discarding stale history for %s", contact.ID)
		return ErrSuperseded
	}
	c.markSeen(unseen)
	c.changed()
	return nil
}

// Send uploads the attachment if any, then submits the message. The
// backend's canonical record is appended only once the backend answered.
func (c *Client) Send(ctx context.Context, content string, media *models.MediaFile) (*models.Message, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	contact, gen, err := c.conv.beginSend(content, media)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	c.changed()

	var mediaURL *string
	if media != nil {
		url, err := c.upload(ctx, media)
		if err != nil {
			if c.isClosed() {
				return nil, ErrClosed
			}
			c.mu.Lock()
			c.conv.uploadFailed(gen)
			c.mu.Unlock()
			uerr := &MediaUploadError{Err: err}
			log.Warn("%v", uerr)
			c.notify(Notice{Level: NoticeError, Text: "Failed to upload media", Err: uerr})
			c.changed()
			return nil, uerr
		}
		mediaURL = &url
	}

	msg, err := c.opts.Backend.SendMessage(ctx, models.SendRequest{
		Receiver:    contact.ID,
		Content:     content,
		MediaURL:    mediaURL,
		MessageType: media.Kind(),
	})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if err != nil {
		c.conv.sendFailed(gen)
		c.mu.Unlock()
		serr := &SendError{Err: err}
		log.Warn("Send to %s failed: %v", contact.ID, err)
		c.notify(Notice{Level: NoticeError, Text: "Message not sent", Err: serr})
		c.changed()
		return nil, serr
	}
	c.conv.sendSucceeded(gen, *msg)
	c.mu.Unlock()

	c.changed()
	return msg, nil
}

// SendDraft sends whatever the draft holds
func (c *Client) SendDraft(ctx context.Context) (*models.Message, error) {
	d := c.Draft()
	return c.Send(ctx, d.Text, d.Media)
}

// SetDraftText replaces the draft text of the open conversation
func (c *Client) SetDraftText(text string) {
	c.mu.Lock()
	c.conv.draft.Text = text
	c.mu.Unlock()
	c.changed()
}

// AttachMedia sets the single attachment of the draft
func (c *Client) AttachMedia(file *models.MediaFile) {
	c.mu.Lock()
	c.conv.draft.Media = file
	c.mu.Unlock()
	c.changed()
}

// ClearMedia drops the draft attachment
func (c *Client) ClearMedia() {
	c.AttachMedia(nil)
}

// Draft returns the draft of the open conversation
func (c *Client) Draft() models.Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv.Draft()
}

// SetQuery sets the roster search text
func (c *Client) SetQuery(q string) {
	c.mu.Lock()
	c.query = q
	c.mu.Unlock()
	c.changed()
}

// IsOnline reports the last known presence of a contact
func (c *Client) IsOnline(contactID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.presence.IsOnline(contactID)
}

// Snapshot copies the render state
func (c *Client) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return View{
		LocalUserID:  c.localUser,
		Connected:    !c.closed && c.session.Connected(),
		State:        c.conv.State(),
		Active:       c.conv.Active(),
		Messages:     c.conv.Messages(),
		Contacts:     c.roster.Filter(c.query),
		RosterLoaded: c.roster.Loaded(),
		Query:        c.query,
		Online:       c.presence.Snapshot(),
		Draft:        c.conv.Draft(),
	}
}

// markSeen is the one path that acknowledges messages, whether they came
// from a history load or a live push. The backend takes one id per request.
func (c *Client) markSeen(ids []string) {
	for _, id := range ids {
		if err := c.session.Emit(websocket.MarkAsSeen{MessageID: id}); err != nil {
			log.Warn("markAsSeen %s failed: %v", id, err)
			c.mu.Lock()
			c.conv.forget(id)
			c.mu.Unlock()
		}
	}
}

func (c *Client) upload(ctx context.Context, media *models.MediaFile) (string, error) {
	if c.opts.Uploader == nil {
		return "", errors.New("attachments are not configured")
	}
	return c.opts.Uploader.Upload(ctx, media)
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) notify(n Notice) {
	if c.opts.Notify != nil && !c.isClosed() {
		c.opts.Notify(n)
	}
}

func (c *Client) changed() {
	if c.opts.OnChange != nil && !c.isClosed() {
		c.opts.OnChange()
	}
}
