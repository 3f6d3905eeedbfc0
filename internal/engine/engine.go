// Package engine owns the client's authoritative in-memory view of
// messages, users, rooms, typing and notification state. Local intents
// mutate the view optimistically and emit events on the channel; inbound
// channel events mutate it authoritatively. The presentation layer reads a
// deep-copied Snapshot and never touches engine internals.
//
// All mutation happens behind one mutex. Inbound events are applied in
// arrival order because the channel dispatches handlers sequentially on a
// single goroutine; intents serialize against them on the same lock.
package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chatline/internal/channel"
	"github.com/chatline/internal/model"
	"github.com/chatline/internal/notify"
)

const defaultRoom = "general"

type Engine struct {
	ch       channel.EventChannel
	notifier notify.Notifier

	// Injection points for tests.
	now   func() time.Time
	newID func() string

	mu          sync.RWMutex
	connected   bool
	username    string
	selfID      string
	currentRoom string
	messages    []model.Message
	users       []model.User
	typing      []string
	rooms       []string
	direct      map[string][]model.Message
	unread      unreadTracker

	watchMu  sync.Mutex
	watchers map[int]chan struct{}
	watchSeq int
}

// New creates an engine over the given channel. The notifier may be nil
// (alerts disabled). room is the initially focused room; empty means
// "general".
func New(ch channel.EventChannel, notifier notify.Notifier, room string) *Engine {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	if room == "" {
		room = defaultRoom
	}
	return &Engine{
		ch:          ch,
		notifier:    notifier,
		now:         time.Now,
		newID:       uuid.NewString,
		currentRoom: room,
		direct:      make(map[string][]model.Message),
		unread:      newUnreadTracker(),
		watchers:    make(map[int]chan struct{}),
	}
}

// Connect registers the handler set, opens the channel and announces the
// username. Message history is kept across reconnect cycles; the server's
// fresh history on join replaces it.
func (e *Engine) Connect(username string) error {
	if username == "" {
		return ErrEmptyUsername
	}
	e.registerHandlers()
	if err := e.ch.Connect(); err != nil {
		return err
	}
	e.mu.Lock()
	e.username = username
	e.mu.Unlock()
	e.signal()
	return e.ch.Emit(channel.EventUserJoin, username)
}

// Disconnect tears the session down. Handlers are removed before the
// channel closes so a later connection starts from a clean set and nothing
// stale reconciles against its events.
func (e *Engine) Disconnect() {
	e.ch.RemoveAllListeners()
	e.ch.Disconnect()
	e.mu.Lock()
	e.username = ""
	e.connected = false
	e.mu.Unlock()
	e.signal()
}

// Watch returns a coalescing change-signal channel and a stop function.
// One token is pending after any number of state changes.
func (e *Engine) Watch() (<-chan struct{}, func()) {
	e.watchMu.Lock()
	defer e.watchMu.Unlock()
	e.watchSeq++
	id := e.watchSeq
	ch := make(chan struct{}, 1)
	e.watchers[id] = ch
	return ch, func() {
		e.watchMu.Lock()
		delete(e.watchers, id)
		e.watchMu.Unlock()
	}
}

func (e *Engine) signal() {
	e.watchMu.Lock()
	defer e.watchMu.Unlock()
	for _, ch := range e.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
