package chat

import (
	"slices"
	"strings"

	"github.com/havencare/chatsync/internal/actor"
	"github.com/havencare/chatsync/internal/protocol/wire"
)

// reduceSendMessage appends an optimistic message to the room tail and emits
// send_message carrying the same temp id. The caller never waits for the
// server echo.
func reduceSendMessage(state State, cmd cmdSendMessage) (State, []actor.Effect) {
	if cmd.RoomID == "" {
		return state, withReply(nil, cmd.Reply, SendResult{Err: ErrEmptyRoomID})
	}
	if strings.TrimSpace(cmd.Content) == "" {
		return state, withReply(nil, cmd.Reply, SendResult{Err: ErrEmptyMessage})
	}

	msg := Message{
		ID:         cmd.TempID,
		RoomID:     cmd.RoomID,
		SenderID:   cmd.Sender.UserID,
		SenderName: cmd.Sender.Name,
		Content:    cmd.Content,
		CreatedAt:  cmd.CreatedAt,
		TempID:     cmd.TempID,
		Delivery:   DeliveryPending,
	}

	var effects []actor.Effect
	if state.Connected {
		effects = append(effects, emitSend(msg))
	} else {
		msg.Delivery = DeliveryUnsent
		effects = append(effects, skipped(wire.CommandSendMessage, cmd.RoomID))
	}

	log := append(slices.Clone(state.Logs[cmd.RoomID]), msg)
	state = state.withLog(cmd.RoomID, log)
	effects = append(effects, effNotify{Update: Update{Kind: UpdateMessages, RoomID: cmd.RoomID, MessageID: msg.ID}})

	return state, withReply(effects, cmd.Reply, SendResult{Message: msg})
}

// reduceResend re-issues send_message for an optimistic entry, keeping its
// temp id so the eventual echo still reconciles in place.
func reduceResend(state State, cmd cmdResend) (State, []actor.Effect) {
	idx := indexByTempID(state.Logs[cmd.RoomID], cmd.TempID)
	if cmd.TempID == "" || idx < 0 || !state.Logs[cmd.RoomID][idx].Optimistic() {
		return state, withReply(nil, cmd.Reply, ErrUnknownMessage)
	}

	msg := state.Logs[cmd.RoomID][idx]
	if !state.Connected {
		return state, withReply([]actor.Effect{skipped(wire.CommandSendMessage, cmd.RoomID)}, cmd.Reply, nil)
	}

	effects := []actor.Effect{emitSend(msg)}
	var markEffects []actor.Effect
	state, markEffects = markDelivery(state, cmd.RoomID, cmd.TempID, DeliveryPending)
	effects = append(effects, markEffects...)

	return state, withReply(effects, cmd.Reply, nil)
}

// reduceAckMessage emits ack_message for a confirmed message id.
func reduceAckMessage(state State, cmd cmdAckMessage) (State, []actor.Effect) {
	if cmd.MessageID == "" {
		return state, withReply(nil, cmd.Reply, ErrUnknownMessage)
	}
	if !state.Connected {
		return state, withReply([]actor.Effect{skipped(wire.CommandAckMessage, "")}, cmd.Reply, nil)
	}
	effects := []actor.Effect{effEmit{
		Command: wire.CommandAckMessage,
		Payload: wire.AckMessagePayload{MessageID: cmd.MessageID},
	}}
	return state, withReply(effects, cmd.Reply, nil)
}

// reduceMessageReceived merges a confirmed message into its room log.
//
// An entry with the same temp id is replaced in place, so the server echo of
// our own message never duplicates it. An entry with the same server id is
// replaced too; anything else is appended.
func reduceMessageReceived(state State, ev evMessageReceived) (State, []actor.Effect) {
	in := ev.Message
	if in.RoomID == "" {
		return state, []actor.Effect{inconsistent("", "new_message %q without room id", in.ID)}
	}
	if in.ID == "" {
		return state, []actor.Effect{inconsistent(in.RoomID, "new_message without id")}
	}

	msg := confirmed(in)
	log := state.Logs[in.RoomID]
	notify := effNotify{Update: Update{Kind: UpdateMessages, RoomID: in.RoomID, MessageID: msg.ID}}

	if idx := indexByTempID(log, in.TempID); idx >= 0 {
		wasOptimistic := log[idx].Optimistic()
		log = slices.Clone(log)
		log[idx] = msg
		// The backlog may already hold the stored copy of our message.
		log = withoutOtherCopies(log, idx)
		state = state.withLog(in.RoomID, log)
		if !wasOptimistic {
			return state, []actor.Effect{notify}
		}
		return state, []actor.Effect{
			effReconciled{RoomID: in.RoomID, TempID: in.TempID, MessageID: msg.ID},
			notify,
		}
	}
	if idx := indexByID(log, in.ID); idx >= 0 {
		log = slices.Clone(log)
		log[idx] = msg
		return state.withLog(in.RoomID, log), []actor.Effect{notify}
	}

	log = append(slices.Clone(log), msg)
	return state.withLog(in.RoomID, log), []actor.Effect{notify}
}

// reduceMessageDeleted removes a message by id. Without a room id in the
// payload the removal spans every room log.
func reduceMessageDeleted(state State, ev evMessageDeleted) (State, []actor.Effect) {
	if ev.MessageID == "" {
		return state, []actor.Effect{inconsistent(ev.RoomID, "message_deleted without message id")}
	}

	rooms := sortedKeys(state.Logs)
	if ev.RoomID != "" {
		if !state.knowsRoom(ev.RoomID) {
			return state, []actor.Effect{inconsistent(ev.RoomID, "message_deleted for unknown room")}
		}
		rooms = []string{ev.RoomID}
	}

	var effects []actor.Effect
	for _, roomID := range rooms {
		log := state.Logs[roomID]
		idx := indexByID(log, ev.MessageID)
		if idx < 0 {
			continue
		}
		state = state.withLog(roomID, slices.Delete(slices.Clone(log), idx, idx+1))
		effects = append(effects, effNotify{Update: Update{Kind: UpdateMessages, RoomID: roomID, MessageID: ev.MessageID}})
	}
	if len(effects) == 0 {
		return state, []actor.Effect{inconsistent(ev.RoomID, "message_deleted for unknown message %q", ev.MessageID)}
	}
	return state, effects
}

// reduceHistoryLoaded appends a backlog page. Messages already in the log,
// typically ones that arrived live while the request was in flight, are
// skipped.
func reduceHistoryLoaded(state State, ev evHistoryLoaded) (State, []actor.Effect) {
	log := slices.Clone(state.Logs[ev.RoomID])
	if log == nil {
		log = []Message{}
	}
	added := 0
	for _, in := range ev.Messages {
		if in.ID == "" || indexByID(log, in.ID) >= 0 {
			continue
		}
		if in.RoomID == "" {
			in.RoomID = ev.RoomID
		}
		log = append(log, confirmed(in))
		added++
	}
	state = state.withLog(ev.RoomID, log)
	if added == 0 {
		return state, nil
	}
	return state, []actor.Effect{effNotify{Update: Update{Kind: UpdateMessages, RoomID: ev.RoomID}}}
}

// markDelivery updates the delivery marker of an optimistic entry.
func markDelivery(state State, roomID, tempID string, delivery Delivery) (State, []actor.Effect) {
	log := state.Logs[roomID]
	idx := indexByTempID(log, tempID)
	if tempID == "" || idx < 0 || !log[idx].Optimistic() || log[idx].Delivery == delivery {
		return state, nil
	}
	log = slices.Clone(log)
	log[idx].Delivery = delivery
	state = state.withLog(roomID, log)
	return state, []actor.Effect{effNotify{Update: Update{Kind: UpdateMessages, RoomID: roomID, MessageID: log[idx].ID}}}
}

// withoutOtherCopies drops every entry except keep that shares its id. log
// must be owned by the caller.
func withoutOtherCopies(log []Message, keep int) []Message {
	id := log[keep].ID
	out := log[:0]
	for i, m := range log {
		if i != keep && m.ID == id {
			continue
		}
		out = append(out, m)
	}
	return out
}

func emitSend(msg Message) effEmit {
	return effEmit{
		Command: wire.CommandSendMessage,
		Payload: wire.SendMessagePayload{RoomID: msg.RoomID, Content: msg.Content, TempID: msg.TempID},
		RoomID:  msg.RoomID,
		TempID:  msg.TempID,
	}
}

func confirmed(in wire.Message) Message {
	name := in.SenderName
	if name == "" {
		name = in.SenderID
	}
	return Message{
		ID:         in.ID,
		RoomID:     in.RoomID,
		SenderID:   in.SenderID,
		SenderName: name,
		Content:    in.Content,
		CreatedAt:  in.CreatedAt,
		TempID:     in.TempID,
		Delivery:   DeliveryConfirmed,
	}
}

func indexByTempID(log []Message, tempID string) int {
	if tempID == "" {
		return -1
	}
	return slices.IndexFunc(log, func(m Message) bool { return m.TempID == tempID })
}

func indexByID(log []Message, id string) int {
	return slices.IndexFunc(log, func(m Message) bool { return m.ID == id })
}
