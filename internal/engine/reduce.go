package engine

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/chatline/internal/channel"
	"github.com/chatline/internal/logger"
	"github.com/chatline/internal/model"
)

// registerHandlers subscribes the full inbound set. Connect calls this
// before opening the channel; Disconnect removes everything, so each
// connection starts from a clean handler set.
func (e *Engine) registerHandlers() {
	e.ch.On(channel.EventConnect, e.handleConnect)
	e.ch.On(channel.EventDisconnect, e.handleDisconnect)
	e.ch.On(channel.EventConnectError, e.handleConnectError)
	e.ch.On(channel.EventReceiveMessage, e.handleReceiveMessage)
	e.ch.On(channel.EventMessageHistory, e.handleMessageHistory)
	e.ch.On(channel.EventMessageUpdated, e.handleMessageUpdated)
	e.ch.On(channel.EventMessageDeleted, e.handleMessageDeleted)
	e.ch.On(channel.EventUserList, e.handleUserList)
	e.ch.On(channel.EventNotification, e.handleNotification)
	e.ch.On(channel.EventTypingUsers, e.handleTypingUsers)
	e.ch.On(channel.EventRoomJoined, e.handleRoomJoined)
	e.ch.On(channel.EventAvailableRooms, e.handleAvailableRooms)
}

func (e *Engine) handleConnect(json.RawMessage) {
	e.mu.Lock()
	e.connected = true
	e.mu.Unlock()
	e.signal()
}

func (e *Engine) handleDisconnect(json.RawMessage) {
	e.mu.Lock()
	e.connected = false
	e.mu.Unlock()
	e.signal()
}

func (e *Engine) handleConnectError(raw json.RawMessage) {
	var p struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &p); err == nil && p.Error != "" {
		logger.Errorf("engine: connect error: %s", p.Error)
	}
	e.mu.Lock()
	e.connected = false
	e.mu.Unlock()
	e.signal()
}

// reconcile merges one canonical broadcast into a collection. Known ids are
// refreshed in place (delivery state never moves backwards, same rule as
// message_updated); otherwise the newest pending temporary matching
// (sender, room, text) is promoted, order kept; anything else is appended.
// Reports whether the message was a fresh arrival.
func reconcile(list []model.Message, msg model.Message) ([]model.Message, bool) {
	for i := range list {
		if list[i].ID == msg.ID {
			msg.Status = model.MaxStatus(list[i].Status, msg.Status)
			list[i] = msg
			return list, false
		}
	}
	for i := len(list) - 1; i >= 0; i-- {
		m := &list[i]
		if m.Pending && m.Sender == msg.Sender && m.Room == msg.Room && m.Text == msg.Text {
			list[i] = msg
			return list, false
		}
	}
	return append(list, msg), true
}

// handleReceiveMessage reconciles one broadcast message. Messages for a
// private room go to the per-peer direct collection; everything else goes to
// the room collection. Either way at most one entry per logical message is
// ever visible.
func (e *Engine) handleReceiveMessage(raw json.RawMessage) {
	var msg model.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		logger.Errorf("engine: receive_message payload: %v", err)
		return
	}
	if msg.ID == "" || msg.Room == "" {
		logger.Errorf("engine: receive_message missing id or room, dropping")
		return
	}
	msg.Pending = false

	e.mu.Lock()
	var fresh bool
	if strings.HasPrefix(msg.Room, "private-") {
		peer := e.privatePeer(msg)
		e.direct[peer], fresh = reconcile(e.direct[peer], msg)
	} else {
		e.messages, fresh = reconcile(e.messages, msg)
	}
	alert := fresh && !msg.System && msg.Sender != "" &&
		msg.Sender != e.username && msg.Room != e.currentRoom
	if alert {
		e.unread.record(msg.Room)
	}
	e.mu.Unlock()
	e.signal()

	if alert {
		e.notifier.Notify(context.Background(), msg.Sender, msg.Text, msg.Room)
	}
}

// privatePeer resolves which direct conversation a private-room broadcast
// belongs to: the sender when it is not us, otherwise the conversation
// already holding that room, otherwise the room name minus our own id.
// Callers hold the engine lock.
func (e *Engine) privatePeer(msg model.Message) string {
	if msg.SenderID != "" && msg.SenderID != e.selfID {
		return msg.SenderID
	}
	for peer, msgs := range e.direct {
		for i := range msgs {
			if msgs[i].Room == msg.Room {
				return peer
			}
		}
	}
	rest := strings.TrimPrefix(msg.Room, "private-")
	if e.selfID != "" {
		if p, ok := strings.CutPrefix(rest, e.selfID+"-"); ok {
			return p
		}
		if p, ok := strings.CutSuffix(rest, "-"+e.selfID); ok {
			return p
		}
	}
	return rest
}

// handleMessageHistory replaces the whole collection with the server's
// snapshot (sent on room join). Pending temporaries are dropped with it;
// fresh history is the recovery path for optimistic state lost across a
// reconnect.
func (e *Engine) handleMessageHistory(raw json.RawMessage) {
	var msgs []model.Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		logger.Errorf("engine: message_history payload: %v", err)
		return
	}
	for i := range msgs {
		msgs[i].Pending = false
	}
	e.mu.Lock()
	e.messages = msgs
	e.mu.Unlock()
	e.signal()
}

// handleMessageUpdated applies an authoritative copy by canonical id. The
// edited flag is set when the text actually changed (reaction updates reuse
// the same event and must not mark the message edited). Delivery state
// never moves backwards. Unknown ids are idempotent no-ops.
func (e *Engine) handleMessageUpdated(raw json.RawMessage) {
	var msg model.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		logger.Errorf("engine: message_updated payload: %v", err)
		return
	}
	if msg.ID == "" {
		return
	}
	e.mu.Lock()
	for i := range e.messages {
		if e.messages[i].ID == msg.ID {
			updated := msg
			updated.Pending = false
			updated.Edited = msg.Edited || e.messages[i].Text != msg.Text
			updated.Status = model.MaxStatus(e.messages[i].Status, msg.Status)
			e.messages[i] = updated
			break
		}
	}
	e.mu.Unlock()
	e.signal()
}

// handleMessageDeleted removes by canonical id. The payload is either the
// bare id string or {"id": ...}; an id we do not hold is a no-op.
func (e *Engine) handleMessageDeleted(raw json.RawMessage) {
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		var p struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw, &p); err != nil || p.ID == "" {
			logger.Errorf("engine: message_deleted payload: %s", raw)
			return
		}
		id = p.ID
	}
	e.mu.Lock()
	for i := range e.messages {
		if e.messages[i].ID == id {
			e.messages = append(e.messages[:i], e.messages[i+1:]...)
			break
		}
	}
	e.mu.Unlock()
	e.signal()
}

// handleUserList replaces the roster wholesale; every broadcast is a full
// authoritative snapshot. Our own connection id is learned here for
// private-room naming.
func (e *Engine) handleUserList(raw json.RawMessage) {
	var users []model.User
	if err := json.Unmarshal(raw, &users); err != nil {
		logger.Errorf("engine: user_list payload: %v", err)
		return
	}
	e.mu.Lock()
	e.users = users
	for _, u := range users {
		if u.Username == e.username {
			e.selfID = u.ID
			break
		}
	}
	e.mu.Unlock()
	e.signal()
}

// handleNotification appends a server announcement as a system message.
func (e *Engine) handleNotification(raw json.RawMessage) {
	var p struct {
		Message string `json:"message"`
		Room    string `json:"room"`
	}
	if err := json.Unmarshal(raw, &p); err != nil || p.Message == "" {
		logger.Errorf("engine: notification payload: %s", raw)
		return
	}
	e.mu.Lock()
	e.messages = append(e.messages, model.Message{
		ID:        "notif-" + e.newID(),
		System:    true,
		Text:      p.Message,
		Room:      p.Room,
		CreatedAt: e.now(),
	})
	e.mu.Unlock()
	e.signal()
}

// handleTypingUsers replaces the typing set; the broadcast is the source of
// truth, there is no local prediction.
func (e *Engine) handleTypingUsers(raw json.RawMessage) {
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		logger.Errorf("engine: typing_users payload: %v", err)
		return
	}
	e.mu.Lock()
	e.typing = names
	e.mu.Unlock()
	e.signal()
}

// handleRoomJoined is the server's confirmation of the focused room; it
// overwrites the optimistic JoinRoom guess.
func (e *Engine) handleRoomJoined(raw json.RawMessage) {
	var room string
	if err := json.Unmarshal(raw, &room); err != nil || room == "" {
		logger.Errorf("engine: room_joined payload: %s", raw)
		return
	}
	e.mu.Lock()
	e.currentRoom = room
	e.unread.focus(room)
	e.mu.Unlock()
	e.signal()
}

func (e *Engine) handleAvailableRooms(raw json.RawMessage) {
	var rooms []string
	if err := json.Unmarshal(raw, &rooms); err != nil {
		logger.Errorf("engine: available_rooms payload: %v", err)
		return
	}
	e.mu.Lock()
	e.rooms = rooms
	e.mu.Unlock()
	e.signal()
}
