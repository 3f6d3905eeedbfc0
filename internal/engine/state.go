package engine

import "github.com/chatline/internal/model"

// Snapshot is the read side of the presentation boundary: a deep copy of
// everything the UI needs, safe to hold across further mutation.
type Snapshot struct {
	Connected     bool                       `json:"connected"`
	Username      string                     `json:"username"`
	CurrentRoom   string                     `json:"current_room"`
	Messages      []model.Message            `json:"messages"`
	Users         []model.User               `json:"users"`
	TypingUsers   []string                   `json:"typing_users"`
	Rooms         []string                   `json:"rooms"`
	Direct        map[string][]model.Message `json:"direct,omitempty"`
	UnreadCounts  map[string]int             `json:"unread_counts"`
	Notifications int                        `json:"notifications"`
}

// Snapshot returns the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	counts, total := e.unread.snapshot()
	snap := Snapshot{
		Connected:     e.connected,
		Username:      e.username,
		CurrentRoom:   e.currentRoom,
		Messages:      model.CloneMessages(e.messages),
		Users:         append([]model.User(nil), e.users...),
		TypingUsers:   append([]string(nil), e.typing...),
		Rooms:         append([]string(nil), e.rooms...),
		UnreadCounts:  counts,
		Notifications: total,
	}
	if len(e.direct) > 0 {
		snap.Direct = make(map[string][]model.Message, len(e.direct))
		for peer, msgs := range e.direct {
			snap.Direct[peer] = model.CloneMessages(msgs)
		}
	}
	return snap
}
