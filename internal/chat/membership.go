package chat

import (
	"github.com/havencare/chatsync/internal/actor"
	"github.com/havencare/chatsync/internal/protocol/wire"
)

// reduceJoinRoom moves the current-room marker to cmd.RoomID.
//
// When another room is current and its join was issued, leave_room for it is
// emitted before the backlog request and join_room for the new room. While
// disconnected nothing is emitted; the room is recorded as the desired room
// and a later explicit join issues it.
func reduceJoinRoom(state State, cmd cmdJoinRoom) (State, []actor.Effect) {
	if cmd.RoomID == "" {
		return state, withReply(nil, cmd.Reply, ErrEmptyRoomID)
	}

	prev := state.Membership
	if prev.RoomID == cmd.RoomID && prev.Phase != PhaseIdle && prev.Issued {
		return state, withReply(nil, cmd.Reply, nil)
	}

	state = state.ensureRoom(cmd.RoomID)
	notify := effNotify{Update: Update{Kind: UpdateMembership, RoomID: cmd.RoomID}}

	if !state.Connected {
		state.Membership = Membership{Phase: PhaseJoining, RoomID: cmd.RoomID}
		return state, withReply([]actor.Effect{skipped(wire.CommandJoinRoom, cmd.RoomID), notify}, cmd.Reply, nil)
	}

	var effects []actor.Effect
	if prev.Phase != PhaseIdle && prev.Issued && prev.RoomID != cmd.RoomID {
		var leaveEffects []actor.Effect
		state, leaveEffects = leaveEffectsFor(state, prev.RoomID)
		effects = append(effects, leaveEffects...)
	}
	effects = append(effects,
		effLoadHistory{RoomID: cmd.RoomID},
		effEmit{
			Command: wire.CommandJoinRoom,
			Payload: wire.RoomPayload{RoomID: cmd.RoomID},
			RoomID:  cmd.RoomID,
		},
		notify,
	)
	state.Membership = Membership{Phase: PhaseJoining, RoomID: cmd.RoomID, Issued: true}

	return state, withReply(effects, cmd.Reply, nil)
}

// reduceLeaveRoom leaves cmd.RoomID when it is the current room.
func reduceLeaveRoom(state State, cmd cmdLeaveRoom) (State, []actor.Effect) {
	m := state.Membership
	if cmd.RoomID == "" || m.Phase == PhaseIdle || m.RoomID != cmd.RoomID {
		return state, withReply(nil, cmd.Reply, nil)
	}

	var effects []actor.Effect
	if m.Issued {
		state, effects = leaveEffectsFor(state, m.RoomID)
	}
	state.Membership = Membership{Phase: PhaseIdle}
	effects = append(effects, effNotify{Update: Update{Kind: UpdateMembership, RoomID: cmd.RoomID}})

	return state, withReply(effects, cmd.Reply, nil)
}

// leaveEffectsFor stops the local typing signal in roomID and emits
// leave_room. The caller must know the transport is connected.
func leaveEffectsFor(state State, roomID string) (State, []actor.Effect) {
	var effects []actor.Effect
	if state.OutboundTyping[roomID] {
		var timerEffects []actor.Effect
		state, timerEffects = stopOutboundTyping(state, roomID)
		effects = append(effects, timerEffects...)
		effects = append(effects, effEmit{
			Command: wire.CommandTyping,
			Payload: wire.TypingPayload{RoomID: roomID, IsTyping: false},
			RoomID:  roomID,
		})
	}
	effects = append(effects, effEmit{
		Command: wire.CommandLeaveRoom,
		Payload: wire.RoomPayload{RoomID: roomID},
		RoomID:  roomID,
	})
	return state, effects
}

// reduceRoomJoined completes a pending join of the current room.
func reduceRoomJoined(state State, ev evRoomJoined) (State, []actor.Effect) {
	if ev.RoomID == "" {
		return state, []actor.Effect{inconsistent("", "room_joined without room id")}
	}
	m := state.Membership
	if m.RoomID != ev.RoomID || m.Phase != PhaseJoining {
		return state, nil
	}
	state = state.ensureRoom(ev.RoomID)
	state.Membership = Membership{Phase: PhaseActive, RoomID: ev.RoomID, Issued: true}
	return state, []actor.Effect{effNotify{Update: Update{Kind: UpdateMembership, RoomID: ev.RoomID}}}
}

// reduceRoomLeft drops the current room when the server removed us from it.
//
// Only an active membership is affected: a room_left that arrives while a
// rejoin of the same room is pending belongs to the earlier leave.
func reduceRoomLeft(state State, ev evRoomLeft) (State, []actor.Effect) {
	if ev.RoomID == "" {
		return state, []actor.Effect{inconsistent("", "room_left without room id")}
	}
	m := state.Membership
	if m.RoomID != ev.RoomID || m.Phase != PhaseActive {
		return state, nil
	}
	state.Membership = Membership{Phase: PhaseIdle}
	return state, []actor.Effect{effNotify{Update: Update{Kind: UpdateMembership, RoomID: ev.RoomID}}}
}

// reduceConnected records that the transport is connected. A join recorded
// while disconnected is not replayed.
func reduceConnected(state State) (State, []actor.Effect) {
	state.Connected = true
	return state, []actor.Effect{effNotify{Update: Update{Kind: UpdateConnection}}}
}

// reduceDisconnected records the connection loss. The current room stays the
// desired room but its join must be issued again; local typing timers are
// dropped since typing=false could not be delivered anyway.
func reduceDisconnected(state State) (State, []actor.Effect) {
	state.Connected = false
	if state.Membership.Phase != PhaseIdle {
		state.Membership = Membership{Phase: PhaseJoining, RoomID: state.Membership.RoomID}
	}

	var effects []actor.Effect
	for _, roomID := range sortedKeys(state.OutboundTyping) {
		var timerEffects []actor.Effect
		state, timerEffects = stopOutboundTyping(state, roomID)
		effects = append(effects, timerEffects...)
	}
	effects = append(effects, effNotify{Update: Update{Kind: UpdateConnection}})
	return state, effects
}
