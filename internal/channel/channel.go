// Package channel defines the duplex event channel the synchronization
// engine speaks over, plus its WebSocket implementation and an in-memory
// fake for tests. The channel delivers named events in arrival order for the
// lifetime of one connection; nothing is guaranteed across disconnects.
package channel

import "encoding/json"

// Handler receives the raw payload of one named event. Handlers for a given
// channel are invoked sequentially in arrival order.
type Handler func(payload json.RawMessage)

// EventChannel is the transport boundary. It is owned by the engine's
// lifecycle and injected, never a process-wide singleton, so tests can
// substitute a Fake.
type EventChannel interface {
	Connect() error
	Disconnect()
	Emit(event string, payload any) error
	On(event string, h Handler)
	RemoveAllListeners()
}

// Synthetic lifecycle events, delivered by the channel itself.
const (
	EventConnect      = "connect"
	EventDisconnect   = "disconnect"
	EventConnectError = "connect_error"
)

// Outbound intent events (engine -> server).
const (
	EventUserJoin       = "user_join"
	EventSendMessage    = "send_message"
	EventEditMessage    = "edit_message"
	EventDeleteMessage  = "delete_message"
	EventPrivateMessage = "private_message"
	EventTypingStart    = "typing_start"
	EventTypingStop     = "typing_stop"
	EventJoinRoom       = "join_room"
	EventAddReaction    = "add_reaction"
	EventMessageRead    = "message_read"
)

// Inbound broadcast events (server -> engine).
const (
	EventReceiveMessage = "receive_message"
	EventMessageHistory = "message_history"
	EventMessageUpdated = "message_updated"
	EventMessageDeleted = "message_deleted"
	EventUserList       = "user_list"
	EventNotification   = "notification"
	EventTypingUsers    = "typing_users"
	EventRoomJoined     = "room_joined"
	EventAvailableRooms = "available_rooms"
)

// Frame is the wire shape of one named event.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func marshalPayload(payload any) (json.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return raw, nil
}
