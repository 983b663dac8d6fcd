// Package wire defines the Socket.IO event names and JSON payload shapes
// exchanged with the chat server, plus the REST bodies used by the history
// and auth clients.
package wire

// EventName is a Socket.IO event name, inbound or outbound.
type EventName string

// Inbound events emitted by the server.
const (
	// EventNewMessage carries a confirmed Message.
	EventNewMessage EventName = "new_message"
	// EventMessageDeleted carries a MessageDeletedPayload.
	EventMessageDeleted EventName = "message_deleted"
	// EventUserTyping carries a UserTypingPayload.
	EventUserTyping EventName = "user_typing"
	// EventPresenceUpdate carries a PresenceUpdatePayload.
	EventPresenceUpdate EventName = "presence_update"
	// EventRoomJoined carries a RoomPayload once the server accepted a join.
	EventRoomJoined EventName = "room_joined"
	// EventRoomLeft carries a RoomPayload once the server processed a leave.
	EventRoomLeft EventName = "room_left"
)

// Outbound commands emitted by the client.
const (
	CommandJoinRoom    EventName = "join_room"
	CommandLeaveRoom   EventName = "leave_room"
	CommandSendMessage EventName = "send_message"
	CommandTyping      EventName = "typing"
	CommandAckMessage  EventName = "ack_message"
)

// InboundEvents lists every server event the transport subscribes to.
var InboundEvents = []EventName{
	EventNewMessage,
	EventMessageDeleted,
	EventUserTyping,
	EventPresenceUpdate,
	EventRoomJoined,
	EventRoomLeft,
}

// Message is the server's chat message shape, used by new_message and (with
// TempID empty) by the REST history endpoint.
type Message struct {
	// ID is the durable server-assigned message id.
	ID string `json:"id"`
	// RoomID is the room the message belongs to.
	RoomID string `json:"room_id"`
	// SenderID is the author's user id.
	SenderID string `json:"sender_id"`
	// SenderName is the author's display name. The history endpoint may omit it.
	SenderName string `json:"sender_name,omitempty"`
	// Content is the plaintext message body.
	Content string `json:"content"`
	// CreatedAt is the server timestamp (RFC 3339).
	CreatedAt string `json:"created_at"`
	// TempID is the client correlation token this message fulfills, if any.
	TempID string `json:"temp_id,omitempty"`
}

// MessageDeletedPayload is the body of message_deleted.
//
// The observed server omits the room id; RoomID is honored when present.
type MessageDeletedPayload struct {
	MessageID string `json:"message_id"`
	RoomID    string `json:"room_id,omitempty"`
}

// UserTypingPayload is the body of user_typing.
type UserTypingPayload struct {
	RoomID   string `json:"room_id"`
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	IsTyping bool   `json:"is_typing"`
}

// OnlineUser is one entry of a presence snapshot.
type OnlineUser struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// PresenceUpdatePayload is the body of presence_update. UsersOnline is the
// complete list of users online in the room.
type PresenceUpdatePayload struct {
	RoomID      string       `json:"room_id"`
	UsersOnline []OnlineUser `json:"users_online"`
}

// RoomPayload is the body of room_joined, room_left, join_room and leave_room.
type RoomPayload struct {
	RoomID string `json:"room_id"`
}
