package chat

import (
	"github.com/havencare/chatsync/internal/actor"
	"github.com/havencare/chatsync/internal/protocol/wire"
	"github.com/havencare/chatsync/internal/websocket"
)

// bindTransport registers one handler per transport event. Registration is
// last-writer-wins on the transport, so binding a second Client to the same
// transport detaches the first.
func (c *Client) bindTransport() {
	c.transport.On(websocket.EventConnect, func(websocket.Event) {
		c.metrics.SetConnected(true)
		c.post(Connected())
	})
	c.transport.On(websocket.EventDisconnect, func(ev websocket.Event) {
		c.metrics.SetConnected(false)
		c.post(Disconnected(ev.Reason))
	})
	c.transport.On(websocket.EventError, func(ev websocket.Event) {
		c.post(TransportFailed(ev.Err))
	})

	c.onWire(wire.EventNewMessage, func(data any) actor.Input {
		var msg wire.Message
		if err := wire.Decode(data, &msg); err != nil {
			return MalformedEvent(wire.EventNewMessage, err)
		}
		return MessageReceived(msg)
	})
	c.onWire(wire.EventMessageDeleted, func(data any) actor.Input {
		var p wire.MessageDeletedPayload
		if err := wire.Decode(data, &p); err != nil {
			return MalformedEvent(wire.EventMessageDeleted, err)
		}
		return MessageDeleted(p.MessageID, p.RoomID)
	})
	c.onWire(wire.EventUserTyping, func(data any) actor.Input {
		var p wire.UserTypingPayload
		if err := wire.Decode(data, &p); err != nil {
			return MalformedEvent(wire.EventUserTyping, err)
		}
		return UserTyping(p, c.clock.Now())
	})
	c.onWire(wire.EventPresenceUpdate, func(data any) actor.Input {
		var p wire.PresenceUpdatePayload
		if err := wire.Decode(data, &p); err != nil {
			return MalformedEvent(wire.EventPresenceUpdate, err)
		}
		return PresenceUpdated(p)
	})
	c.onWire(wire.EventRoomJoined, func(data any) actor.Input {
		var p wire.RoomPayload
		if err := wire.Decode(data, &p); err != nil {
			return MalformedEvent(wire.EventRoomJoined, err)
		}
		return RoomJoined(p.RoomID)
	})
	c.onWire(wire.EventRoomLeft, func(data any) actor.Input {
		var p wire.RoomPayload
		if err := wire.Decode(data, &p); err != nil {
			return MalformedEvent(wire.EventRoomLeft, err)
		}
		return RoomLeft(p.RoomID)
	})
}

func (c *Client) onWire(name wire.EventName, decode func(data any) actor.Input) {
	c.transport.On(websocket.EventType(name), func(ev websocket.Event) {
		c.metrics.EventReceived(string(name))
		c.post(decode(ev.Data))
	})
}
