package websocket

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/havencare/chatsync/internal/protocol/wire"
	"github.com/havencare/chatsync/pkg/logger"
	socket "github.com/zishang520/socket.io/clients/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"
)

// ErrNotConnected is returned by Send when the socket is not connected. The
// command is dropped, not queued.
var ErrNotConnected = errors.New("socket not connected")

// State is the connection lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Disconnect reasons reported by socket.io that do not trigger an automatic
// reconnect.
const (
	reasonClientDisconnect = "io client disconnect"
	reasonServerDisconnect = "io server disconnect"
)

// EventType identifies an inbound event delivered to handlers. Besides the
// server's chat events it covers the connection lifecycle.
type EventType string

const (
	EventConnect    EventType = "connect"
	EventDisconnect EventType = "disconnect"
	EventError      EventType = "error"
)

// Event is delivered to registered handlers.
type Event struct {
	Type EventType
	// Data is the raw socket argument for chat events. Decode it with
	// wire.Decode.
	Data any
	// Reason is set for EventDisconnect.
	Reason string
	// Err is set for EventError.
	Err error
}

// Handler receives inbound events. Handlers run synchronously on the socket's
// delivery goroutine, so they must not block.
type Handler func(Event)

// Client owns one Socket.IO connection to the chat server. It does not
// interpret chat semantics; it only tracks connection state and the set of
// rooms the server acknowledged.
type Client struct {
	serverURL string
	path      string

	mu       sync.RWMutex
	socket   *socket.Socket
	emit     func(event string, payload any)
	state    State
	gen      uint64
	handlers map[EventType]Handler
	rooms    map[string]struct{}
}

// Option configures a Client.
type Option func(*Client)

// WithPath overrides the Socket.IO endpoint path (default "/socket.io/").
func WithPath(path string) Option {
	return func(c *Client) { c.path = path }
}

// NewClient creates a disconnected Socket.IO client for serverURL.
func NewClient(serverURL string, opts ...Option) *Client {
	c := &Client{
		serverURL: serverURL,
		state:     StateDisconnected,
		handlers:  make(map[EventType]Handler),
		rooms:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// On registers the handler for an event type, replacing any previous one.
func (c *Client) On(eventType EventType, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if handler == nil {
		delete(c.handlers, eventType)
		return
	}
	c.handlers[eventType] = handler
}

// Connect tears down any existing connection and dials the server with the
// given bearer credential. The connection completes asynchronously; the
// connect handler fires once the server accepts it. Dial failures are both
// returned and delivered to the error handler, leaving the client
// disconnected.
func (c *Client) Connect(credential string) error {
	c.teardown(reasonClientDisconnect)

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.state = StateConnecting
	c.mu.Unlock()

	logger.Debugf("Connecting to Socket.IO: %s", c.serverURL)

	opts := socket.DefaultOptions()
	if c.path != "" {
		opts.SetPath(c.path)
	}
	opts.SetTransports(types.NewSet(socket.Polling, socket.WebSocket))
	opts.SetAuth(map[string]any{"token": credential})

	sock, err := socket.Connect(c.serverURL, opts)
	if err != nil {
		err = fmt.Errorf("failed to connect: %w", err)
		c.handleError(gen, err)
		return err
	}

	c.mu.Lock()
	if c.gen != gen {
		// A concurrent Connect/Disconnect superseded this dial.
		c.mu.Unlock()
		sock.Disconnect()
		return nil
	}
	c.socket = sock
	c.emit = func(event string, payload any) { sock.Emit(event, payload) }
	c.mu.Unlock()

	sock.On(types.EventName("connect"), func(args ...any) {
		c.handleConnect(gen)
	})
	sock.On(types.EventName("disconnect"), func(args ...any) {
		reason := ""
		if len(args) > 0 {
			if r, ok := args[0].(string); ok {
				reason = r
			}
		}
		c.handleDisconnect(gen, reason)
	})
	sock.On(types.EventName("connect_error"), func(args ...any) {
		var err error = errors.New("connect error")
		if len(args) > 0 {
			if e, ok := args[0].(error); ok {
				err = e
			} else {
				err = fmt.Errorf("%v", args[0])
			}
		}
		c.handleError(gen, fmt.Errorf("connection error: %w", err))
	})
	for _, name := range wire.InboundEvents {
		et := EventType(name)
		sock.On(types.EventName(name), func(args ...any) {
			var data any
			if len(args) > 0 {
				data = args[0]
			}
			c.handleEvent(gen, et, data)
		})
	}

	return nil
}

// WaitForConnect waits for the socket to report connected or times out.
func (c *Client) WaitForConnect(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.IsConnected() {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return c.IsConnected()
}

// Disconnect releases the connection and clears the joined-room set. It is
// safe to call when already disconnected.
func (c *Client) Disconnect() {
	c.teardown(reasonClientDisconnect)
}

// teardown closes the current socket, if any, and reports a disconnect to the
// handler when the client was not already disconnected.
func (c *Client) teardown(reason string) {
	c.mu.Lock()
	sock := c.socket
	wasDown := c.state == StateDisconnected
	c.gen++
	c.socket = nil
	c.emit = nil
	c.state = StateDisconnected
	c.rooms = make(map[string]struct{})
	handler := c.handlers[EventDisconnect]
	c.mu.Unlock()

	if sock != nil {
		sock.Disconnect()
	}
	if !wasDown && handler != nil {
		handler(Event{Type: EventDisconnect, Reason: reason})
	}
}

// IsConnected reports whether the socket is connected.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// State returns the connection lifecycle state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Rooms returns the rooms the server acknowledged joining on the current
// connection, sorted.
func (c *Client) Rooms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Send emits a command to the server. It never blocks on delivery. When the
// socket is not connected the command is skipped and ErrNotConnected is
// returned.
func (c *Client) Send(command wire.EventName, payload any) error {
	c.mu.RLock()
	emit := c.emit
	state := c.state
	c.mu.RUnlock()

	if state != StateConnected || emit == nil {
		logger.Warnf("Socket not connected, cannot send %s", command)
		return ErrNotConnected
	}

	logger.Tracef("Sending event: %s", command)
	emit(string(command), payload)
	return nil
}

func (c *Client) handleConnect(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.state = StateConnected
	sock := c.socket
	handler := c.handlers[EventConnect]
	c.mu.Unlock()

	if sock != nil {
		logger.Infof("Connected to realtime server (id %s)", sock.Id())
	}
	if handler != nil {
		handler(Event{Type: EventConnect})
	}
}

func (c *Client) handleDisconnect(gen uint64, reason string) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	// Anything but an explicit disconnect is retried by the socket.io manager.
	if reason == reasonClientDisconnect || reason == reasonServerDisconnect {
		c.state = StateDisconnected
	} else {
		c.state = StateConnecting
	}
	c.rooms = make(map[string]struct{})
	handler := c.handlers[EventDisconnect]
	c.mu.Unlock()

	logger.Infof("Disconnected from realtime server: %s", reason)
	if handler != nil {
		handler(Event{Type: EventDisconnect, Reason: reason})
	}
}

func (c *Client) handleError(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	if c.state != StateConnected {
		c.state = StateDisconnected
	}
	handler := c.handlers[EventError]
	c.mu.Unlock()

	logger.Errorf("Realtime connection error: %v", err)
	if handler != nil {
		handler(Event{Type: EventError, Err: err})
	}
}

func (c *Client) handleEvent(gen uint64, et EventType, data any) {
	logger.Tracef("Received event: %s", et)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	switch wire.EventName(et) {
	case wire.EventRoomJoined, wire.EventRoomLeft:
		var room wire.RoomPayload
		if err := wire.Decode(data, &room); err == nil && room.RoomID != "" {
			if wire.EventName(et) == wire.EventRoomJoined {
				c.rooms[room.RoomID] = struct{}{}
			} else {
				delete(c.rooms, room.RoomID)
			}
		}
	}
	handler := c.handlers[et]
	c.mu.Unlock()

	if handler != nil {
		handler(Event{Type: et, Data: data})
	}
}
