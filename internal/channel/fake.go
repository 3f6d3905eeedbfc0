package channel

import (
	"encoding/json"
	"sync"
)

// Emitted records one outbound event captured by a Fake.
type Emitted struct {
	Event   string
	Payload json.RawMessage
}

// Fake is an in-memory EventChannel for tests: it records every Emit and
// lets the test inject inbound events with Deliver. Handler bookkeeping is
// exposed so double-registration after a reconnect is detectable.
type Fake struct {
	mu        sync.Mutex
	handlers  map[string][]Handler
	emitted   []Emitted
	connected bool

	// ConnectErr, when set, is returned by Connect.
	ConnectErr error

	Connects    int
	Disconnects int
	Removals    int
}

// NewFake returns a disconnected fake channel.
func NewFake() *Fake {
	return &Fake{handlers: make(map[string][]Handler)}
}

func (f *Fake) Connect() error {
	if f.ConnectErr != nil {
		return f.ConnectErr
	}
	f.mu.Lock()
	f.connected = true
	f.Connects++
	f.mu.Unlock()
	f.dispatch(EventConnect, nil)
	return nil
}

func (f *Fake) Disconnect() {
	f.mu.Lock()
	f.connected = false
	f.Disconnects++
	f.mu.Unlock()
	f.dispatch(EventDisconnect, nil)
}

func (f *Fake) Emit(event string, payload any) error {
	raw, err := marshalPayload(payload)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.emitted = append(f.emitted, Emitted{Event: event, Payload: raw})
	f.mu.Unlock()
	return nil
}

func (f *Fake) On(event string, h Handler) {
	f.mu.Lock()
	f.handlers[event] = append(f.handlers[event], h)
	f.mu.Unlock()
}

func (f *Fake) RemoveAllListeners() {
	f.mu.Lock()
	f.handlers = make(map[string][]Handler)
	f.Removals++
	f.mu.Unlock()
}

// Deliver injects an inbound event, marshalling payload the same way a real
// frame would arrive. Handlers run synchronously on the caller's goroutine.
func (f *Fake) Deliver(event string, payload any) {
	raw, err := marshalPayload(payload)
	if err != nil {
		panic("channel: fake deliver: " + err.Error())
	}
	f.dispatch(event, raw)
}

func (f *Fake) dispatch(event string, payload json.RawMessage) {
	f.mu.Lock()
	hs := append([]Handler(nil), f.handlers[event]...)
	f.mu.Unlock()
	for _, h := range hs {
		h(payload)
	}
}

// Emits returns a copy of everything emitted so far.
func (f *Fake) Emits() []Emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Emitted(nil), f.emitted...)
}

// CountEmitted returns how many times a named event was emitted.
func (f *Fake) CountEmitted(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.emitted {
		if e.Event == event {
			n++
		}
	}
	return n
}

// LastEmitted returns the most recent payload emitted for the named event.
func (f *Fake) LastEmitted(event string) (json.RawMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.emitted) - 1; i >= 0; i-- {
		if f.emitted[i].Event == event {
			return f.emitted[i].Payload, true
		}
	}
	return nil, false
}

// HandlerCount returns the total number of registered handlers.
func (f *Fake) HandlerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, hs := range f.handlers {
		n += len(hs)
	}
	return n
}

// Connected reports the fake's connection flag.
func (f *Fake) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}
