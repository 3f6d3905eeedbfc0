package engine

import (
	"errors"

	"github.com/chatline/internal/channel"
	"github.com/chatline/internal/model"
)

// Intent validation errors. A rejected intent mutates nothing and emits
// nothing (spec'd as local no-ops, never forwarded).
var (
	ErrEmptyUsername    = errors.New("engine: username required")
	ErrEmptyMessage     = errors.New("engine: message text or image required")
	ErrMissingID        = errors.New("engine: message id required")
	ErrEmptyRoom        = errors.New("engine: room required")
	ErrMissingRecipient = errors.New("engine: recipient required")
	ErrEmptyEmoji       = errors.New("engine: emoji required")
)

// Wire payload shapes for outbound intents. Field names follow the server
// protocol, hence the camelCase keys.
type sendPayload struct {
	Message string `json:"message"`
	Room    string `json:"room"`
	Image   string `json:"image,omitempty"`
}

type editPayload struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

type deletePayload struct {
	ID string `json:"id"`
}

type privatePayload struct {
	ToUserID string `json:"toUserId"`
	Message  string `json:"message"`
}

type reactionPayload struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

type readPayload struct {
	MessageID string `json:"messageId"`
}

// SendMessage appends an optimistic entry for text and emits send_message.
// The entry stays pending until a matching broadcast replaces it; there is
// deliberately no timeout or retry for lost intents.
func (e *Engine) SendMessage(text, room string) error {
	return e.send(text, "", room)
}

// SendImage sends an image (as a data URL) with an optional caption.
func (e *Engine) SendImage(image, caption, room string) error {
	if image == "" {
		return ErrEmptyMessage
	}
	if caption == "" {
		caption = "Sent an image"
	}
	return e.send(caption, image, room)
}

func (e *Engine) send(text, image, room string) error {
	if text == "" && image == "" {
		return ErrEmptyMessage
	}
	e.mu.Lock()
	if room == "" {
		room = e.currentRoom
	}
	msg := model.Message{
		ID:        "temp-" + e.newID(),
		Sender:    e.username,
		SenderID:  e.selfID,
		Room:      room,
		Text:      text,
		Image:     image,
		CreatedAt: e.now(),
		Status:    model.StatusSent,
		Pending:   true,
	}
	e.messages = append(e.messages, msg)
	e.mu.Unlock()
	e.signal()
	return e.ch.Emit(channel.EventSendMessage, sendPayload{Message: text, Room: room, Image: image})
}

// EditMessage emits an edit intent. No optimistic mutation: the new text
// takes effect when the message_updated broadcast returns. Editing to the
// text a message already has emits nothing.
func (e *Engine) EditMessage(id, newText string) error {
	if id == "" {
		return ErrMissingID
	}
	if newText == "" {
		return ErrEmptyMessage
	}
	e.mu.RLock()
	for i := range e.messages {
		if e.messages[i].ID == id {
			if e.messages[i].Text == newText {
				e.mu.RUnlock()
				return nil
			}
			break
		}
	}
	e.mu.RUnlock()
	return e.ch.Emit(channel.EventEditMessage, editPayload{ID: id, Content: newText})
}

// DeleteMessage emits a delete intent; removal happens on the confirmation
// broadcast.
func (e *Engine) DeleteMessage(id string) error {
	if id == "" {
		return ErrMissingID
	}
	return e.ch.Emit(channel.EventDeleteMessage, deletePayload{ID: id})
}

// AddReaction optimistically appends the reaction locally for immediate
// feedback and emits the intent. The next authoritative copy of the message
// replaces the guess.
func (e *Engine) AddReaction(messageID, emoji string) error {
	if messageID == "" {
		return ErrMissingID
	}
	if emoji == "" {
		return ErrEmptyEmoji
	}
	e.mu.Lock()
	actor := e.selfID
	if actor == "" {
		actor = e.username
	}
	for i := range e.messages {
		if e.messages[i].ID == messageID {
			e.messages[i].Reactions = append(e.messages[i].Reactions,
				model.Reaction{Emoji: emoji, UserID: actor})
			break
		}
	}
	e.mu.Unlock()
	e.signal()
	return e.ch.Emit(channel.EventAddReaction, reactionPayload{MessageID: messageID, Emoji: emoji})
}

// MarkMessageRead emits a read receipt for the given message.
func (e *Engine) MarkMessageRead(messageID string) error {
	if messageID == "" {
		return ErrMissingID
	}
	return e.ch.Emit(channel.EventMessageRead, readPayload{MessageID: messageID})
}

// SetTyping forwards the typing flag. Debouncing keystrokes into a single
// stop-after-inactivity signal is the presentation layer's job.
func (e *Engine) SetTyping(typing bool) error {
	if typing {
		return e.ch.Emit(channel.EventTypingStart, nil)
	}
	return e.ch.Emit(channel.EventTypingStop, nil)
}

// JoinRoom emits the join intent and updates the focused room immediately;
// a later room_joined broadcast overwrites the local guess if the server
// placed us elsewhere. Focusing a room zeroes its unread counter.
func (e *Engine) JoinRoom(room string) error {
	if room == "" {
		return ErrEmptyRoom
	}
	err := e.ch.Emit(channel.EventJoinRoom, room)
	e.mu.Lock()
	e.currentRoom = room
	e.unread.focus(room)
	e.mu.Unlock()
	e.signal()
	return err
}

// SendPrivateMessage emits an addressed message to one user. Private
// messages live in a per-peer collection, not in the room collection.
func (e *Engine) SendPrivateMessage(toUserID, text string) error {
	if toUserID == "" {
		return ErrMissingRecipient
	}
	if text == "" {
		return ErrEmptyMessage
	}
	e.mu.Lock()
	msg := model.Message{
		ID:        "temp-" + e.newID(),
		Sender:    e.username,
		SenderID:  e.selfID,
		Room:      model.PrivateRoomName(e.selfID, toUserID),
		Text:      text,
		CreatedAt: e.now(),
		Status:    model.StatusSent,
		Pending:   true,
	}
	e.direct[toUserID] = append(e.direct[toUserID], msg)
	e.mu.Unlock()
	e.signal()
	return e.ch.Emit(channel.EventPrivateMessage, privatePayload{ToUserID: toUserID, Message: text})
}
