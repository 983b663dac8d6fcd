package chat

import (
	"time"

	"github.com/havencare/chatsync/internal/actor"
	"github.com/havencare/chatsync/internal/protocol/wire"
)

// JoinRoom returns a command input that makes roomID the current room. If
// reply is non-nil it receives the validation result.
func JoinRoom(roomID string, reply chan error) actor.Input {
	return cmdJoinRoom{RoomID: roomID, Reply: reply}
}

// LeaveRoom returns a command input that leaves roomID if it is the current
// room.
func LeaveRoom(roomID string, reply chan error) actor.Input {
	return cmdLeaveRoom{RoomID: roomID, Reply: reply}
}

// SendMessage returns a command input that appends an optimistic message and
// sends it with tempID as correlation token.
func SendMessage(roomID, content, tempID, createdAt string, sender Identity, reply chan SendResult) actor.Input {
	return cmdSendMessage{
		RoomID:    roomID,
		Content:   content,
		TempID:    tempID,
		CreatedAt: createdAt,
		Sender:    sender,
		Reply:     reply,
	}
}

// Resend returns a command input that re-issues send_message for the
// optimistic entry identified by tempID.
func Resend(roomID, tempID string, reply chan error) actor.Input {
	return cmdResend{RoomID: roomID, TempID: tempID, Reply: reply}
}

// AckMessage returns a command input that acknowledges a confirmed message.
func AckMessage(messageID string, reply chan error) actor.Input {
	return cmdAckMessage{MessageID: messageID, Reply: reply}
}

// SendTyping returns a command input that forwards the local typing signal.
func SendTyping(roomID string, isTyping bool, reply chan error) actor.Input {
	return cmdSendTyping{RoomID: roomID, IsTyping: isTyping, Reply: reply}
}

// Connected returns an event input for a transport connect.
func Connected() actor.Input {
	return evConnected{}
}

// Disconnected returns an event input for a transport disconnect.
func Disconnected(reason string) actor.Input {
	return evDisconnected{Reason: reason}
}

// TransportFailed returns an event input for a transport error.
func TransportFailed(err error) actor.Input {
	return evTransportError{Err: err}
}

// MessageReceived returns an event input for new_message.
func MessageReceived(msg wire.Message) actor.Input {
	return evMessageReceived{Message: msg}
}

// MessageDeleted returns an event input for message_deleted.
func MessageDeleted(messageID, roomID string) actor.Input {
	return evMessageDeleted{MessageID: messageID, RoomID: roomID}
}

// UserTyping returns an event input for user_typing observed at the given
// time.
func UserTyping(payload wire.UserTypingPayload, at time.Time) actor.Input {
	return evUserTyping{Typing: payload, At: at}
}

// PresenceUpdated returns an event input for presence_update.
func PresenceUpdated(payload wire.PresenceUpdatePayload) actor.Input {
	return evPresenceUpdate{Presence: payload}
}

// RoomJoined returns an event input for room_joined.
func RoomJoined(roomID string) actor.Input {
	return evRoomJoined{RoomID: roomID}
}

// RoomLeft returns an event input for room_left.
func RoomLeft(roomID string) actor.Input {
	return evRoomLeft{RoomID: roomID}
}

// MalformedEvent returns an event input for a payload that failed to decode.
func MalformedEvent(event wire.EventName, err error) actor.Input {
	return evMalformedEvent{Event: event, Err: err}
}

// HistoryLoaded returns an event input for a fetched backlog page.
func HistoryLoaded(roomID string, msgs []wire.Message) actor.Input {
	return evHistoryLoaded{RoomID: roomID, Messages: msgs}
}

// HistoryFailed returns an event input for a failed backlog fetch.
func HistoryFailed(roomID string, err error) actor.Input {
	return evHistoryFailed{RoomID: roomID, Err: err}
}
