// Package chat keeps a client's view of the chat rooms consistent with the
// server.
//
// One actor loop owns every room log, typing map and presence snapshot.
// Transport events, history results, timer firings and caller commands are all
// serialized through it, and readers get immutable snapshots.
package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/havencare/chatsync/internal/actor"
	"github.com/havencare/chatsync/internal/metrics"
	"github.com/havencare/chatsync/internal/protocol/wire"
	"github.com/havencare/chatsync/internal/websocket"
	"github.com/havencare/chatsync/pkg/logger"
)

// Transport is the realtime connection the client drives.
// *websocket.Client implements it.
type Transport interface {
	Connect(credential string) error
	Disconnect()
	IsConnected() bool
	Send(command wire.EventName, payload any) error
	On(eventType websocket.EventType, handler websocket.Handler)
}

// Config configures a Client. Every field is optional.
type Config struct {
	// Self authors optimistic messages.
	Self Identity
	// TypingWindow defaults to DefaultTypingWindow.
	TypingWindow time.Duration
	// TypingTTL defaults to DefaultTypingTTL.
	TypingTTL time.Duration
	// Clock defaults to the wall clock.
	Clock actor.Clock
	// Reporter receives every caught failure. It runs on the loop goroutine
	// and must not call back into the Client synchronously.
	Reporter func(Report)
	// OnUpdate is called after every state change, on the loop goroutine.
	OnUpdate func(Update)
	// Metrics may be nil.
	Metrics *metrics.Metrics
	// NewTempID defaults to "temp_" followed by a random UUID.
	NewTempID func() string
}

// Client is the chat synchronization client.
type Client struct {
	transport Transport
	actor     *actor.Actor[State]
	runtime   *Runtime
	clock     actor.Clock
	self      Identity
	newTempID func() string
	metrics   *metrics.Metrics
}

// New creates a Client on top of transport and starts its loop. history may
// be nil, in which case joins do not fetch a backlog.
func New(transport Transport, history HistorySource, cfg Config) *Client {
	clock := cfg.Clock
	if clock == nil {
		clock = actor.RealClock{}
	}
	newTempID := cfg.NewTempID
	if newTempID == nil {
		newTempID = func() string { return "temp_" + uuid.NewString() }
	}

	rt := NewRuntime(transport, history, clock, cfg.Reporter, cfg.OnUpdate, cfg.Metrics)
	state := NewState(Settings{TypingWindow: cfg.TypingWindow, TypingTTL: cfg.TypingTTL})
	state.Connected = transport.IsConnected()

	c := &Client{
		transport: transport,
		runtime:   rt,
		clock:     clock,
		self:      cfg.Self,
		newTempID: newTempID,
		metrics:   cfg.Metrics,
	}
	c.actor = actor.New(state, Reduce, rt, actor.WithHooks(actor.Hooks[State]{
		OnPanic: func(in actor.Input, recovered any) {
			logger.Errorf("chat: recovered panic handling %T: %v", in, recovered)
			err := fmt.Errorf("%w: %T: %v", ErrPanic, in, recovered)
			rt.report(Report{Kind: KindTransportError, Err: err})
			if f, ok := in.(failer); ok {
				f.fail(err)
			}
		},
		OnStep: func(in actor.Input, effects int) {
			logger.Tracef("chat: %T -> %d effects", in, effects)
		},
	}))
	c.bindTransport()
	c.actor.Start()
	return c
}

// Connect dials the transport with the given bearer credential. Connection
// completes asynchronously; failures are also delivered to the reporter.
func (c *Client) Connect(credential string) error {
	return c.transport.Connect(credential)
}

// Disconnect releases the transport. Room logs are kept.
func (c *Client) Disconnect() {
	c.transport.Disconnect()
}

// IsConnected reports whether the transport is connected.
func (c *Client) IsConnected() bool {
	return c.transport.IsConnected()
}

// JoinRoom makes roomID the current room, leaving the previous one first.
// While disconnected the room is only recorded and a CommandSkipped report is
// delivered.
func (c *Client) JoinRoom(ctx context.Context, roomID string) error {
	return c.requestErr(ctx, func(reply chan error) actor.Input { return JoinRoom(roomID, reply) })
}

// LeaveRoom leaves roomID if it is the current room.
func (c *Client) LeaveRoom(ctx context.Context, roomID string) error {
	return c.requestErr(ctx, func(reply chan error) actor.Input { return LeaveRoom(roomID, reply) })
}

// Send appends an optimistic message to roomID and issues send_message. It
// returns the optimistic entry without waiting for the server.
func (c *Client) Send(ctx context.Context, roomID, content string) (Message, error) {
	tempID := c.newTempID()
	createdAt := c.clock.Now().UTC().Format(time.RFC3339Nano)
	res, err := request(ctx, c, func(reply chan SendResult) actor.Input {
		return SendMessage(roomID, content, tempID, createdAt, c.self, reply)
	})
	if err != nil {
		return Message{}, err
	}
	return res.Message, res.Err
}

// Resend re-issues send_message for an unconfirmed message.
func (c *Client) Resend(ctx context.Context, roomID, tempID string) error {
	return c.requestErr(ctx, func(reply chan error) actor.Input { return Resend(roomID, tempID, reply) })
}

// Ack acknowledges a confirmed message.
func (c *Client) Ack(ctx context.Context, messageID string) error {
	return c.requestErr(ctx, func(reply chan error) actor.Input { return AckMessage(messageID, reply) })
}

// SendTyping forwards the local typing signal. typing=true is followed by an
// automatic typing=false once the typing window passes without a refresh.
func (c *Client) SendTyping(ctx context.Context, roomID string, isTyping bool) error {
	return c.requestErr(ctx, func(reply chan error) actor.Input { return SendTyping(roomID, isTyping, reply) })
}

// Messages returns the room log in display order.
func (c *Client) Messages(roomID string) []Message {
	return slices.Clone(c.actor.State().Logs[roomID])
}

// TypingUsers returns the users currently typing in roomID, sorted by id.
func (c *Client) TypingUsers(roomID string) []TypingUser {
	users := c.actor.State().Typing[roomID]
	out := make([]TypingUser, 0, len(users))
	for _, u := range users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// OnlineUsers returns the last presence snapshot of roomID.
func (c *Client) OnlineUsers(roomID string) []OnlineUser {
	return slices.Clone(c.actor.State().Presence[roomID])
}

// Membership returns the current-room marker.
func (c *Client) Membership() Membership {
	return c.actor.State().Membership
}

// CurrentRoom returns the current room id, or "" when idle.
func (c *Client) CurrentRoom() string {
	m := c.Membership()
	if m.Phase == PhaseIdle {
		return ""
	}
	return m.RoomID
}

// Rooms returns the ids of every room with a log, sorted.
func (c *Client) Rooms() []string {
	return sortedKeys(c.actor.State().Logs)
}

// Close stops the loop and cancels pending timers. The transport is left to
// the caller.
func (c *Client) Close() {
	c.actor.Stop()
	<-c.actor.Done()
}

func (c *Client) requestErr(ctx context.Context, build func(chan error) actor.Input) error {
	res, err := request(ctx, c, build)
	if err != nil {
		return err
	}
	return res
}

// request delivers a command and waits for the reducer's reply.
func request[T any](ctx context.Context, c *Client, build func(chan T) actor.Input) (T, error) {
	var zero T
	reply := make(chan T, 1)
	if err := c.actor.Send(ctx, build(reply)); err != nil {
		if errors.Is(err, actor.ErrStopped) {
			return zero, ErrStopped
		}
		return zero, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-c.actor.Done():
		return zero, ErrStopped
	}
}

// post delivers a transport event to the loop. It blocks while the mailbox is
// full so that no event is dropped.
func (c *Client) post(in actor.Input) {
	if err := c.actor.Send(context.Background(), in); err != nil {
		logger.Debugf("chat: dropping %T: %v", in, err)
	}
}
