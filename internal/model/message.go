package model

import "time"

type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
)

// statusRank orders delivery states; a message never moves backwards.
func statusRank(s DeliveryStatus) int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

// MaxStatus returns the further-along of two delivery states.
func MaxStatus(a, b DeliveryStatus) DeliveryStatus {
	if statusRank(b) > statusRank(a) {
		return b
	}
	return a
}

// Reaction is one (actor, emoji) pair in the order it was applied.
type Reaction struct {
	Emoji  string `json:"emoji"`
	UserID string `json:"user_id"`
}

// Message is a single chat message. Two identity regimes coexist: a
// client-generated temp-<uuid> id on optimistic entries (Pending=true) and
// the server-assigned id once the send has been acknowledged. System
// messages carry only Text, Room and CreatedAt and render as announcements.
type Message struct {
	ID        string         `json:"id"`
	Sender    string         `json:"sender,omitempty"`
	SenderID  string         `json:"sender_id,omitempty"`
	Room      string         `json:"room"`
	Text      string         `json:"text"`
	Image     string         `json:"image,omitempty"` // data URL
	CreatedAt time.Time      `json:"created_at"`
	Edited    bool           `json:"edited,omitempty"`
	Status    DeliveryStatus `json:"status,omitempty"`
	Reactions []Reaction     `json:"reactions,omitempty"`
	System    bool           `json:"system,omitempty"`
	Pending   bool           `json:"pending,omitempty"`
}

// Clone returns a deep copy (the reaction slice is the only reference field).
func (m Message) Clone() Message {
	out := m
	if len(m.Reactions) > 0 {
		out.Reactions = make([]Reaction, len(m.Reactions))
		copy(out.Reactions, m.Reactions)
	}
	return out
}

// CloneMessages deep-copies a message slice for snapshots.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}
