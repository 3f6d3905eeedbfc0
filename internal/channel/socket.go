package channel

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatline/internal/logger"
)

const (
	defaultDialTimeout       = 10 * time.Second
	defaultWriteTimeout      = 10 * time.Second
	defaultPongTimeout       = 60 * time.Second
	defaultMaxMessageSize    = 1 << 20 // images travel as data URLs
	defaultSendBuffer        = 256
	defaultReconnectAttempts = 5
	defaultReconnectDelay    = time.Second
	defaultReconnectDelayMax = 5 * time.Second
)

// ErrSendBufferFull is returned by Emit when the outbound buffer is full
// (slow or absent connection). The event is dropped, matching the channel's
// no-guarantee-across-disconnects contract.
var ErrSendBufferFull = errors.New("channel: send buffer full")

// bufPool pools bytes.Buffer for JSON encoding in the write pump.
var bufPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// Options configures a Socket.
type Options struct {
	URL               string
	Header            http.Header
	DialTimeout       time.Duration
	WriteTimeout      time.Duration
	PongTimeout       time.Duration
	MaxMessageSize    int64
	SendBuffer        int
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	ReconnectDelayMax time.Duration
}

func (o Options) withDefaults() Options {
	if o.DialTimeout <= 0 {
		o.DialTimeout = defaultDialTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = defaultPongTimeout
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = defaultMaxMessageSize
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = defaultSendBuffer
	}
	if o.ReconnectAttempts <= 0 {
		o.ReconnectAttempts = defaultReconnectAttempts
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = defaultReconnectDelay
	}
	if o.ReconnectDelayMax <= 0 {
		o.ReconnectDelayMax = defaultReconnectDelayMax
	}
	return o
}

// Socket is the WebSocket EventChannel. One read pump and one write pump run
// per connection; inbound frames are dispatched to handlers on the read
// goroutine, which preserves arrival order. After an unexpected drop the
// socket redials with doubling delay up to ReconnectAttempts; handlers
// registered before Connect survive reconnects.
type Socket struct {
	opts Options

	mu       sync.Mutex
	handlers map[string][]Handler
	conn     *websocket.Conn
	closed   chan struct{}
	off      bool

	send chan Frame
	wg   sync.WaitGroup
}

// NewSocket creates a disconnected socket for the given endpoint.
func NewSocket(opts Options) *Socket {
	opts = opts.withDefaults()
	return &Socket{
		opts:     opts,
		handlers: make(map[string][]Handler),
		send:     make(chan Frame, opts.SendBuffer),
	}
}

// Connect dials the endpoint and starts the pumps. A synthetic "connect"
// event is dispatched before Connect returns; on dial failure a
// "connect_error" event is dispatched and the error returned.
func (s *Socket) Connect() error {
	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		return nil
	}
	s.off = false
	s.closed = make(chan struct{})
	closed := s.closed
	s.mu.Unlock()

	conn, err := s.dial()
	if err != nil {
		s.dispatch(EventConnectError, errPayload(err))
		return err
	}
	s.startSession(conn, closed)
	return nil
}

// Disconnect closes the connection, stops any reconnect attempts and waits
// for the pumps to exit. Registered handlers are left in place; callers that
// want a clean slate call RemoveAllListeners first.
func (s *Socket) Disconnect() {
	s.mu.Lock()
	if !s.off {
		s.off = true
		if s.closed != nil {
			close(s.closed)
		}
	}
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}
	s.wg.Wait()
}

// Emit queues a named event for sending. The payload is marshalled
// immediately so encoding errors surface to the caller.
func (s *Socket) Emit(event string, payload any) error {
	raw, err := marshalPayload(payload)
	if err != nil {
		return err
	}
	select {
	case s.send <- Frame{Type: event, Payload: raw}:
		return nil
	default:
		logger.Errorf("channel: send buffer full, dropping %s", event)
		return ErrSendBufferFull
	}
}

// On registers a handler for a named event.
func (s *Socket) On(event string, h Handler) {
	s.mu.Lock()
	s.handlers[event] = append(s.handlers[event], h)
	s.mu.Unlock()
}

// RemoveAllListeners drops every registered handler.
func (s *Socket) RemoveAllListeners() {
	s.mu.Lock()
	s.handlers = make(map[string][]Handler)
	s.mu.Unlock()
}

func (s *Socket) dial() (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: s.opts.DialTimeout}
	conn, _, err := dialer.Dial(s.opts.URL, s.opts.Header)
	return conn, err
}

func (s *Socket) startSession(conn *websocket.Conn, closed chan struct{}) {
	s.mu.Lock()
	if s.off {
		// Disconnect won the race with a reconnect dial; nobody else will
		// ever close this connection.
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = conn
	s.mu.Unlock()

	sessDone := make(chan struct{})
	s.wg.Add(2)
	go s.writePump(conn, sessDone)
	go s.readPump(conn, closed, sessDone)
	s.dispatch(EventConnect, nil)
}

// readPump reads frames until the connection errors, then dispatches a
// synthetic "disconnect" and, unless Disconnect was requested, starts the
// reconnect loop.
func (s *Socket) readPump(conn *websocket.Conn, closed, sessDone chan struct{}) {
	defer s.wg.Done()
	defer close(sessDone)

	conn.SetReadLimit(s.opts.MaxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout)); err != nil {
		logger.Errorf("channel: set read deadline: %v", err)
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Errorf("channel: read: %v", err)
			}
			break
		}
		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			logger.Errorf("channel: bad frame: %v", err)
			continue
		}
		if f.Type == "" {
			continue
		}
		logger.Debugf("channel: <- %s", f.Type)
		s.dispatch(f.Type, f.Payload)
	}

	conn.Close()
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	off := s.off
	s.mu.Unlock()

	s.dispatch(EventDisconnect, nil)
	if !off {
		go s.reconnect(closed)
	}
}

// writePump drains the send buffer and keeps the connection alive with
// pings. It exits when the session ends or a write fails; closing the
// connection here unblocks the read pump.
func (s *Socket) writePump(conn *websocket.Conn, sessDone chan struct{}) {
	defer s.wg.Done()
	pingPeriod := s.opts.PongTimeout * 9 / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-sessDone:
			return
		case f := <-s.send:
			if err := conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
				logger.Errorf("channel: set write deadline: %v", err)
				return
			}
			buf := bufPool.Get().(*bytes.Buffer)
			buf.Reset()
			if err := json.NewEncoder(buf).Encode(f); err != nil {
				bufPool.Put(buf)
				logger.Errorf("channel: encode %s: %v", f.Type, err)
				continue
			}
			data := buf.Bytes()
			// json.Encoder appends '\n'; trim it for WebSocket text messages.
			if len(data) > 0 && data[len(data)-1] == '\n' {
				data = data[:len(data)-1]
			}
			writeErr := conn.WriteMessage(websocket.TextMessage, data)
			bufPool.Put(buf)
			if writeErr != nil {
				logger.Errorf("channel: write %s: %v", f.Type, writeErr)
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// reconnect redials with doubling delay, dispatching "connect_error" per
// failed attempt. It stops when closed is closed (manual Disconnect) or the
// attempt budget is spent.
func (s *Socket) reconnect(closed chan struct{}) {
	delay := s.opts.ReconnectDelay
	for attempt := 1; attempt <= s.opts.ReconnectAttempts; attempt++ {
		select {
		case <-closed:
			return
		case <-time.After(delay):
		}
		conn, err := s.dial()
		if err == nil {
			select {
			case <-closed:
				conn.Close()
				return
			default:
			}
			logger.Infof("channel: reconnected on attempt %d", attempt)
			s.startSession(conn, closed)
			return
		}
		logger.Errorf("channel: reconnect %d/%d: %v", attempt, s.opts.ReconnectAttempts, err)
		s.dispatch(EventConnectError, errPayload(err))
		delay *= 2
		if delay > s.opts.ReconnectDelayMax {
			delay = s.opts.ReconnectDelayMax
		}
	}
	logger.Errorf("channel: giving up after %d reconnect attempts", s.opts.ReconnectAttempts)
}

func (s *Socket) dispatch(event string, payload json.RawMessage) {
	s.mu.Lock()
	hs := append([]Handler(nil), s.handlers[event]...)
	s.mu.Unlock()
	for _, h := range hs {
		h(payload)
	}
}

func errPayload(err error) json.RawMessage {
	raw, _ := json.Marshal(struct {
		Error string `json:"error"`
	}{Error: err.Error()})
	return raw
}
