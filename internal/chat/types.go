package chat

import (
	"time"

	"github.com/havencare/chatsync/internal/actor"
	"github.com/havencare/chatsync/internal/protocol/wire"
)

// Delivery is the client-side delivery marker of a message.
type Delivery string

const (
	// DeliveryPending marks an optimistic message whose send command was
	// issued but not yet echoed back by the server.
	DeliveryPending Delivery = "pending"
	// DeliveryUnsent marks an optimistic message whose send command was
	// skipped because the transport was disconnected.
	DeliveryUnsent Delivery = "unsent"
	// DeliveryConfirmed marks a message received from the server.
	DeliveryConfirmed Delivery = "confirmed"
)

// Message is an entry of a room log.
type Message struct {
	// ID is the durable server id, or TempID while the message is optimistic.
	ID         string
	RoomID     string
	SenderID   string
	SenderName string
	Content    string
	CreatedAt  string
	// TempID is the correlation token of a locally sent message.
	TempID   string
	Delivery Delivery
}

// Optimistic reports whether the message has not been confirmed by the
// server yet.
func (m Message) Optimistic() bool {
	return m.Delivery != DeliveryConfirmed
}

// TypingUser is an entry of a room's typing map.
type TypingUser struct {
	UserID     string
	UserName   string
	IsTyping   bool
	LastUpdate time.Time
}

// OnlineUser is an entry of a room's presence snapshot.
type OnlineUser struct {
	ID        string
	Name      string
	AvatarURL string
}

// Identity is the local user that authors optimistic messages.
type Identity struct {
	UserID string
	Name   string
}

// Phase is the room membership tracker state.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseJoining Phase = "joining"
	PhaseActive  Phase = "active"
)

// Membership is the single "current room" marker.
type Membership struct {
	Phase  Phase
	RoomID string
	// Issued reports whether join_room was emitted for RoomID on the current
	// connection. A join requested while disconnected is recorded with Issued
	// false so that an explicit retry issues it.
	Issued bool
}

// UpdateKind classifies a state change delivered to Config.OnUpdate.
type UpdateKind string

const (
	UpdateConnection UpdateKind = "connection"
	UpdateMembership UpdateKind = "membership"
	UpdateMessages   UpdateKind = "messages"
	UpdateTyping     UpdateKind = "typing"
	UpdatePresence   UpdateKind = "presence"
)

// Update describes a state change. Read the affected snapshot through the
// Client accessors.
type Update struct {
	Kind   UpdateKind
	RoomID string
	// MessageID is set for message appends, replacements and deletions.
	MessageID string
}

// Inputs

// cmdJoinRoom requests membership in RoomID.
type cmdJoinRoom struct {
	actor.InputBase
	RoomID string
	Reply  chan error
}

// cmdLeaveRoom requests leaving RoomID if it is the current room.
type cmdLeaveRoom struct {
	actor.InputBase
	RoomID string
	Reply  chan error
}

// cmdSendMessage appends an optimistic message and sends it. TempID and
// CreatedAt are generated by the caller so the reducer stays deterministic.
type cmdSendMessage struct {
	actor.InputBase
	RoomID    string
	Content   string
	TempID    string
	CreatedAt string
	Sender    Identity
	Reply     chan SendResult
}

// SendResult is the reply of a send command.
type SendResult struct {
	Message Message
	Err     error
}

// cmdResend re-issues send_message for an optimistic message.
type cmdResend struct {
	actor.InputBase
	RoomID string
	TempID string
	Reply  chan error
}

// cmdAckMessage emits ack_message.
type cmdAckMessage struct {
	actor.InputBase
	MessageID string
	Reply     chan error
}

// cmdSendTyping forwards the local typing signal.
type cmdSendTyping struct {
	actor.InputBase
	RoomID   string
	IsTyping bool
	Reply    chan error
}

// failer is implemented by commands whose caller waits on a reply.
type failer interface {
	fail(err error)
}

func (c cmdJoinRoom) fail(err error)    { trySend(c.Reply, err) }
func (c cmdLeaveRoom) fail(err error)   { trySend(c.Reply, err) }
func (c cmdResend) fail(err error)      { trySend(c.Reply, err) }
func (c cmdAckMessage) fail(err error)  { trySend(c.Reply, err) }
func (c cmdSendTyping) fail(err error)  { trySend(c.Reply, err) }
func (c cmdSendMessage) fail(err error) { trySend(c.Reply, SendResult{Err: err}) }

// Events from the transport.

type evConnected struct {
	actor.InputBase
}

type evDisconnected struct {
	actor.InputBase
	Reason string
}

type evTransportError struct {
	actor.InputBase
	Err error
}

type evMessageReceived struct {
	actor.InputBase
	Message wire.Message
}

type evMessageDeleted struct {
	actor.InputBase
	MessageID string
	RoomID    string
}

type evUserTyping struct {
	actor.InputBase
	Typing wire.UserTypingPayload
	At     time.Time
}

type evPresenceUpdate struct {
	actor.InputBase
	Presence wire.PresenceUpdatePayload
}

type evRoomJoined struct {
	actor.InputBase
	RoomID string
}

type evRoomLeft struct {
	actor.InputBase
	RoomID string
}

// evMalformedEvent reports an inbound payload that failed to decode.
type evMalformedEvent struct {
	actor.InputBase
	Event wire.EventName
	Err   error
}

// Events from the runtime.

type evHistoryLoaded struct {
	actor.InputBase
	RoomID   string
	Messages []wire.Message
}

type evHistoryFailed struct {
	actor.InputBase
	RoomID string
	Err    error
}

// evCommandSkipped is emitted when the transport refused a command the
// reducer believed it could send (the connection dropped in between).
type evCommandSkipped struct {
	actor.InputBase
	Command wire.EventName
	RoomID  string
	TempID  string
}

type evTimerFired struct {
	actor.InputBase
	Name string
	Gen  uint64
}

// Effects

// effEmit sends a command through the transport. RoomID and TempID are
// bookkeeping for evCommandSkipped.
type effEmit struct {
	actor.EffectBase
	Command wire.EventName
	Payload any
	RoomID  string
	TempID  string
}

// effLoadHistory fetches the backlog of RoomID.
type effLoadHistory struct {
	actor.EffectBase
	RoomID string
}

// effStartTimer (re)arms the named timer. Gen is echoed by evTimerFired.
type effStartTimer struct {
	actor.EffectBase
	Name  string
	Gen   uint64
	After time.Duration
}

type effCancelTimer struct {
	actor.EffectBase
	Name string
}

// effReport delivers a Report to the reporter hook.
type effReport struct {
	actor.EffectBase
	Report Report
}

// effReconciled records that an optimistic message was confirmed.
type effReconciled struct {
	actor.EffectBase
	RoomID    string
	TempID    string
	MessageID string
}

// effReply completes a command's reply channel.
type effReply struct {
	actor.EffectBase
	deliver func()
}

// effNotify delivers an Update to the update hook.
type effNotify struct {
	actor.EffectBase
	Update Update
}
