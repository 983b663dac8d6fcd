package chat

import (
	"maps"

	"github.com/havencare/chatsync/internal/actor"
)

// reducePresenceUpdate replaces the room's presence snapshot. Updates never
// merge, and an update for one room leaves every other room untouched.
func reducePresenceUpdate(state State, ev evPresenceUpdate) (State, []actor.Effect) {
	roomID := ev.Presence.RoomID
	if roomID == "" {
		return state, []actor.Effect{inconsistent("", "presence_update without room id")}
	}
	if !state.knowsRoom(roomID) {
		return state, []actor.Effect{inconsistent(roomID, "presence_update for unknown room")}
	}

	users := make([]OnlineUser, 0, len(ev.Presence.UsersOnline))
	for _, u := range ev.Presence.UsersOnline {
		users = append(users, OnlineUser{ID: u.ID, Name: u.Name, AvatarURL: u.AvatarURL})
	}

	presence := maps.Clone(state.Presence)
	if presence == nil {
		presence = map[string][]OnlineUser{}
	}
	presence[roomID] = users
	state.Presence = presence
	return state, []actor.Effect{effNotify{Update: Update{Kind: UpdatePresence, RoomID: roomID}}}
}
