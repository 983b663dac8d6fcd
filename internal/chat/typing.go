package chat

import (
	"maps"

	"github.com/havencare/chatsync/internal/actor"
	"github.com/havencare/chatsync/internal/protocol/wire"
)

// reduceSendTyping forwards the local typing signal. typing=true (re)arms a
// window after which typing=false is sent automatically; typing=false cancels
// it.
func reduceSendTyping(state State, cmd cmdSendTyping) (State, []actor.Effect) {
	if cmd.RoomID == "" {
		return state, withReply(nil, cmd.Reply, ErrEmptyRoomID)
	}

	var effects []actor.Effect
	if state.Connected {
		effects = append(effects, effEmit{
			Command: wire.CommandTyping,
			Payload: wire.TypingPayload{RoomID: cmd.RoomID, IsTyping: cmd.IsTyping},
			RoomID:  cmd.RoomID,
		})
	} else {
		effects = append(effects, skipped(wire.CommandTyping, cmd.RoomID))
	}

	var timerEffects []actor.Effect
	if cmd.IsTyping {
		state, timerEffects = startOutboundTyping(state, cmd.RoomID)
	} else {
		state, timerEffects = stopOutboundTyping(state, cmd.RoomID)
	}
	effects = append(effects, timerEffects...)

	return state, withReply(effects, cmd.Reply, nil)
}

func startOutboundTyping(state State, roomID string) (State, []actor.Effect) {
	outbound := maps.Clone(state.OutboundTyping)
	if outbound == nil {
		outbound = map[string]bool{}
	}
	outbound[roomID] = true
	state.OutboundTyping = outbound
	return state.armTimer(typingOutTimer(roomID), timerRecord{Kind: timerTypingOut, RoomID: roomID}, state.Settings.TypingWindow)
}

func stopOutboundTyping(state State, roomID string) (State, []actor.Effect) {
	if state.OutboundTyping[roomID] {
		outbound := maps.Clone(state.OutboundTyping)
		delete(outbound, roomID)
		state.OutboundTyping = outbound
	}
	return state.disarmTimer(typingOutTimer(roomID))
}

// expireOutboundTyping sends typing=false once the local window elapsed
// without a refresh.
func expireOutboundTyping(state State, rec timerRecord) (State, []actor.Effect) {
	// The timer already fired; the cancel effect is moot.
	state, _ = stopOutboundTyping(state, rec.RoomID)
	if !state.Connected {
		return state, []actor.Effect{skipped(wire.CommandTyping, rec.RoomID)}
	}
	return state, []actor.Effect{effEmit{
		Command: wire.CommandTyping,
		Payload: wire.TypingPayload{RoomID: rec.RoomID, IsTyping: false},
		RoomID:  rec.RoomID,
	}}
}

// reduceUserTyping applies a remote typing signal. A repeated typing=true
// refreshes the single entry of that user and restarts its expiry.
func reduceUserTyping(state State, ev evUserTyping) (State, []actor.Effect) {
	in := ev.Typing
	if in.RoomID == "" || in.UserID == "" {
		return state, []actor.Effect{inconsistent(in.RoomID, "user_typing without room or user id")}
	}
	if !state.knowsRoom(in.RoomID) {
		return state, []actor.Effect{inconsistent(in.RoomID, "user_typing for unknown room")}
	}

	name := typingInTimer(in.RoomID, in.UserID)
	notify := effNotify{Update: Update{Kind: UpdateTyping, RoomID: in.RoomID}}

	if !in.IsTyping {
		_, present := state.Typing[in.RoomID][in.UserID]
		var effects []actor.Effect
		state, effects = state.withoutTyping(in.RoomID, in.UserID).disarmTimer(name)
		if present {
			effects = append(effects, notify)
		}
		return state, effects
	}

	state = state.withTyping(TypingUser{
		UserID:     in.UserID,
		UserName:   in.UserName,
		IsTyping:   true,
		LastUpdate: ev.At,
	}, in.RoomID)
	state, effects := state.armTimer(name, timerRecord{Kind: timerTypingIn, RoomID: in.RoomID, UserID: in.UserID}, state.Settings.TypingTTL)
	return state, append(effects, notify)
}

// expireRemoteTyping drops a remote typing entry that was not refreshed
// within the TTL.
func expireRemoteTyping(state State, name string, rec timerRecord) (State, []actor.Effect) {
	state, _ = state.disarmTimer(name)
	if _, ok := state.Typing[rec.RoomID][rec.UserID]; !ok {
		return state, nil
	}
	state = state.withoutTyping(rec.RoomID, rec.UserID)
	return state, []actor.Effect{effNotify{Update: Update{Kind: UpdateTyping, RoomID: rec.RoomID}}}
}

func (s State) withTyping(user TypingUser, roomID string) State {
	typing := maps.Clone(s.Typing)
	if typing == nil {
		typing = map[string]map[string]TypingUser{}
	}
	users := maps.Clone(typing[roomID])
	if users == nil {
		users = map[string]TypingUser{}
	}
	users[user.UserID] = user
	typing[roomID] = users
	s.Typing = typing
	return s
}

func (s State) withoutTyping(roomID, userID string) State {
	if _, ok := s.Typing[roomID][userID]; !ok {
		return s
	}
	typing := maps.Clone(s.Typing)
	users := maps.Clone(typing[roomID])
	delete(users, userID)
	if len(users) == 0 {
		delete(typing, roomID)
	} else {
		typing[roomID] = users
	}
	s.Typing = typing
	return s
}
