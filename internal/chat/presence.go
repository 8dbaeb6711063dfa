package chat

import "github.com/sesmanagement/discussions/internal/websocket"

// Presence tracks which contacts are online. Entries are only ever updated one at a time.
type Presence struct {
	online map[string]bool
}

func newPresence() *Presence {
	return &Presence{online: make(map[string]bool)}
}

// IsOnline treats unknown contacts as offline
func (p *Presence) IsOnline(contactID string) bool {
	return p.online[contactID]
}

// Snapshot copies the current map
func (p *Presence) Snapshot() map[string]bool {
	out := make(map[string]bool, len(p.online))
	for k, v := range p.online {
		out[k] = v
	}
	return out
}

// Dispatch applies a userStatus event and reports whether anything changed
func (p *Presence) Dispatch(ev websocket.Event) bool {
	st, ok := ev.(websocket.UserStatus)
	if !ok || st.UserID == "" {
		return false
	}
	prev, known := p.online[st.UserID]
	p.online[st.UserID] = st.IsOnline
	return !known || prev != st.IsOnline
}
