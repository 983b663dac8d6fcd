package chat

import (
	"sort"

	"github.com/havencare/chatsync/internal/actor"
	"github.com/havencare/chatsync/internal/protocol/wire"
)

// Reduce is the chat client reducer. It is pure: every side effect is
// returned as an effect for the Runtime to execute.
func Reduce(state State, input actor.Input) (State, []actor.Effect) {
	switch in := input.(type) {
	case cmdJoinRoom:
		return reduceJoinRoom(state, in)
	case cmdLeaveRoom:
		return reduceLeaveRoom(state, in)
	case cmdSendMessage:
		return reduceSendMessage(state, in)
	case cmdResend:
		return reduceResend(state, in)
	case cmdAckMessage:
		return reduceAckMessage(state, in)
	case cmdSendTyping:
		return reduceSendTyping(state, in)

	case evConnected:
		return reduceConnected(state)
	case evDisconnected:
		return reduceDisconnected(state)
	case evTransportError:
		return state, []actor.Effect{effReport{Report: Report{Kind: KindTransportError, Err: in.Err}}}
	case evMessageReceived:
		return reduceMessageReceived(state, in)
	case evMessageDeleted:
		return reduceMessageDeleted(state, in)
	case evUserTyping:
		return reduceUserTyping(state, in)
	case evPresenceUpdate:
		return reducePresenceUpdate(state, in)
	case evRoomJoined:
		return reduceRoomJoined(state, in)
	case evRoomLeft:
		return reduceRoomLeft(state, in)
	case evMalformedEvent:
		return state, []actor.Effect{inconsistent("", "malformed %s payload: %v", in.Event, in.Err)}
	case evHistoryLoaded:
		return reduceHistoryLoaded(state, in)
	case evHistoryFailed:
		return state, []actor.Effect{effReport{Report: Report{Kind: KindHistoryLoadError, RoomID: in.RoomID, Err: in.Err}}}
	case evCommandSkipped:
		return reduceCommandSkipped(state, in)
	case evTimerFired:
		return reduceTimerFired(state, in)
	default:
		return state, nil
	}
}

// reduceCommandSkipped reconciles state with a command the transport refused
// after the reducer had considered it sent.
func reduceCommandSkipped(state State, ev evCommandSkipped) (State, []actor.Effect) {
	switch ev.Command {
	case wire.CommandSendMessage:
		return markDelivery(state, ev.RoomID, ev.TempID, DeliveryUnsent)
	case wire.CommandJoinRoom:
		m := state.Membership
		if m.RoomID == ev.RoomID && m.Phase == PhaseJoining {
			state.Membership.Issued = false
		}
		return state, nil
	default:
		return state, nil
	}
}

// reduceTimerFired dispatches a named timer. Firings whose generation does
// not match the armed one are stale and ignored.
func reduceTimerFired(state State, ev evTimerFired) (State, []actor.Effect) {
	rec, ok := state.Timers[ev.Name]
	if !ok || rec.Gen != ev.Gen {
		return state, nil
	}
	switch rec.Kind {
	case timerTypingOut:
		return expireOutboundTyping(state, rec)
	case timerTypingIn:
		return expireRemoteTyping(state, ev.Name, rec)
	default:
		return state.disarmTimer(ev.Name)
	}
}

// withReply appends the effect that completes a command's reply channel.
// Replies run after every other effect of the step, so a caller that resumes
// observes the published state and the commands already handed to the
// transport.
func withReply[T any](effects []actor.Effect, ch chan T, v T) []actor.Effect {
	if ch == nil {
		return effects
	}
	return append(effects, effReply{deliver: func() { trySend(ch, v) }})
}

// trySend completes a reply channel without blocking. Reply channels are
// buffered for one value; a second value is dropped.
func trySend[T any](ch chan T, v T) {
	if ch == nil {
		return
	}
	select {
	case ch <- v:
	default:
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
