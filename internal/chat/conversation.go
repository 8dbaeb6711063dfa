package chat

import (
	"sort"

	"github.com/sesmanagement/discussions/internal/models"
	"github.com/sesmanagement/discussions/internal/websocket"
)

// State is the lifecycle of the active conversation
type State int

const (
	Idle State = iota
	Loading
	Ready
	Sending
	SendFailed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Sending:
		return "sending"
	case SendFailed:
		return "send failed"
	default:
		return "unknown"
	}
}

// what was on screen before a selection, restored if the history fetch fails.
// It keeps receiving pushes and the result of its pending send meanwhile.
type conversationView struct {
	state      State
	active     *models.Contact
	generation uint64
	messages   []models.Message
	draft      models.Draft
	requested  map[string]bool
}

// Conversation owns the message sequence of the active contact. It performs
// no I/O: the Client feeds it results and events and carries out the
// mark-seen requests it returns.
type Conversation struct {
	localUser  string
	state      State
	active     *models.Contact
	generation uint64
	// last generation handed out; generations are never reused
	issued     uint64
	messages   []models.Message
	draft      models.Draft
	prev       *conversationView

	// ids for which a markAsSeen request is already out
	requested map[string]bool
}

func newConversation(localUser string) *Conversation {
	return &Conversation{
		localUser: localUser,
		requested: make(map[string]bool),
	}
}

// State returns the current lifecycle state
func (c *Conversation) State() State {
	return c.state
}

// Active returns the selected contact, nil when idle
func (c *Conversation) Active() *models.Contact {
	if c.active == nil {
		return nil
	}
	cp := *c.active
	return &cp
}

// Messages returns a copy of the rendered sequence
func (c *Conversation) Messages() []models.Message {
	out := make([]models.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Draft returns the not-yet-sent content
func (c *Conversation) Draft() models.Draft {
	return c.draft
}

func (c *Conversation) activeID() string {
	if c.active == nil {
		return ""
	}
	return c.active.ID
}

// selectContact switches to contact and enters Loading; the returned
// generation identifies this selection's history response
func (c *Conversation) selectContact(contact models.Contact) uint64 {
	if c.prev == nil {
		c.prev = &conversationView{
			state:      c.state,
			active:     c.active,
			generation: c.generation,
			messages:   c.messages,
			draft:      c.draft,
			requested:  c.requested,
		}
	}

	c.issued++
	c.generation = c.issued
	c.active = &contact
	c.state = Loading
	c.messages = nil
	c.draft = models.Draft{}
	c.requested = make(map[string]bool)
	return c.generation
}

// historyLoaded applies a history response. It reports false when the
// response belongs to an older selection and was discarded.
func (c *Conversation) historyLoaded(gen uint64, history []models.Message) ([]string, bool) {
	if gen != c.generation || c.state != Loading {
		return nil, false
	}

	// messages pushed while loading are already in c.messages
	live := c.messages
	c.messages = make([]models.Message, 0, len(history)+len(live))
	for _, m := range history {
		if m.Involves(c.localUser, c.active.ID) {
			c.messages = append(c.messages, m)
		}
	}
	sort.SliceStable(c.messages, func(i, j int) bool {
		return c.messages[i].CreatedAt.Before(c.messages[j].CreatedAt)
	})
	for _, m := range live {
		c.messages = upsertMessage(c.messages, m)
	}

	c.state = Ready
	c.prev = nil

	var unseen []string
	for _, m := range c.messages {
		if c.needsSeen(m) {
			unseen = append(unseen, m.ID)
		}
	}
	return c.claim(unseen), true
}

// historyFailed restores the view from before the selection, including a send
// still in flight there, and returns the restored messages that need a
// markAsSeen. Stale failures are ignored.
func (c *Conversation) historyFailed(gen uint64) ([]string, bool) {
	if gen != c.generation || c.state != Loading {
		return nil, false
	}
	v := c.prev
	c.prev = nil
	if v == nil || v.active == nil {
		c.state = Idle
		c.active = nil
		c.messages = nil
		c.draft = models.Draft{}
		return nil, true
	}

	c.state = v.state
	c.active = v.active
	c.generation = v.generation
	c.messages = v.messages
	c.draft = v.draft
	c.requested = v.requested

	var unseen []string
	for _, m := range c.messages {
		if c.needsSeen(m) {
			unseen = append(unseen, m.ID)
		}
	}
	return c.claim(unseen), true
}

// beginSend validates a send and enters Sending
func (c *Conversation) beginSend(content string, media *models.MediaFile) (models.Contact, uint64, error) {
	if c.active == nil {
		return models.Contact{}, 0, ErrNoActiveContact
	}
	if (models.Draft{Text: content, Media: media}).Empty() {
		return models.Contact{}, 0, ErrEmptyMessage
	}
	if c.state != Ready && c.state != SendFailed {
		return models.Contact{}, 0, ErrNotReady
	}

	c.draft = models.Draft{Text: content, Media: media}
	c.state = Sending
	return *c.active, c.generation, nil
}

// saved returns the view set aside by a selection when gen is its pending send
func (c *Conversation) saved(gen uint64) *conversationView {
	if c.prev != nil && c.prev.generation == gen && c.prev.state == Sending {
		return c.prev
	}
	return nil
}

// uploadFailed returns to Ready keeping the draft
func (c *Conversation) uploadFailed(gen uint64) {
	if gen == c.generation && c.state == Sending {
		c.state = Ready
	} else if v := c.saved(gen); v != nil {
		v.state = Ready
	}
}

// sendFailed enters SendFailed keeping the draft
func (c *Conversation) sendFailed(gen uint64) {
	if gen == c.generation && c.state == Sending {
		c.state = SendFailed
	} else if v := c.saved(gen); v != nil {
		v.state = SendFailed
	}
}

// sendSucceeded appends the canonical message and clears the draft. It
// reports false when the conversation the send belonged to is gone.
func (c *Conversation) sendSucceeded(gen uint64, msg models.Message) bool {
	if gen == c.generation && c.state == Sending {
		c.state = Ready
		c.draft = models.Draft{}
		if msg.Involves(c.localUser, c.active.ID) {
			c.messages = upsertMessage(c.messages, msg)
		}
		return true
	}
	if v := c.saved(gen); v != nil {
		v.state = Ready
		v.draft = models.Draft{}
		if msg.Involves(c.localUser, v.active.ID) {
			v.messages = upsertMessage(v.messages, msg)
		}
		return true
	}
	return false
}

// Dispatch applies one inbound event and returns the ids that need a markAsSeen
func (c *Conversation) Dispatch(ev websocket.Event) []string {
	if v := c.prev; v != nil && v.active != nil {
		// the set-aside view is off screen: it is kept current but nothing is acknowledged
		switch e := ev.(type) {
		case websocket.NewMessage:
			if e.Message.Involves(c.localUser, v.active.ID) {
				v.messages = upsertMessage(v.messages, e.Message)
			}
		case websocket.MessageSeen:
			replaceMessage(v.messages, e.Message)
		}
	}

	if c.active == nil {
		return nil
	}

	switch e := ev.(type) {
	case websocket.NewMessage:
		msg := e.Message
		if !msg.Involves(c.localUser, c.active.ID) {
			return nil
		}
		c.messages = upsertMessage(c.messages, msg)
		if c.needsSeen(msg) {
			return c.claim([]string{msg.ID})
		}
	case websocket.MessageSeen:
		replaceMessage(c.messages, e.Message)
	}
	return nil
}

// forget clears a pending mark-seen claim so a later attempt may retry it
func (c *Conversation) forget(id string) {
	delete(c.requested, id)
}

func (c *Conversation) needsSeen(m models.Message) bool {
	return !m.IsSeen && m.Receiver == c.localUser && m.Sender == c.activeID()
}

func (c *Conversation) claim(ids []string) []string {
	var out []string
	for _, id := range ids {
		if id == "" || c.requested[id] {
			continue
		}
		c.requested[id] = true
		out = append(out, id)
	}
	return out
}

func indexOf(msgs []models.Message, id string) int {
	if id == "" {
		return -1
	}
	for i := range msgs {
		if msgs[i].ID == id {
			return i
		}
	}
	return -1
}

// upsertMessage replaces a message with the same id in place, or inserts it
// after every message with an equal or earlier timestamp
func upsertMessage(msgs []models.Message, msg models.Message) []models.Message {
	if replaceMessage(msgs, msg) {
		return msgs
	}
	i := sort.Search(len(msgs), func(i int) bool {
		return msgs[i].CreatedAt.After(msg.CreatedAt)
	})
	msgs = append(msgs, models.Message{})
	copy(msgs[i+1:], msgs[i:])
	msgs[i] = msg
	return msgs
}

func replaceMessage(msgs []models.Message, msg models.Message) bool {
	i := indexOf(msgs, msg.ID)
	if i < 0 {
		return false
	}
	// seen never reverts
	msg.IsSeen = msg.IsSeen || msgs[i].IsSeen
	msg.CreatedAt = msgs[i].CreatedAt
	msgs[i] = msg
	return true
}
