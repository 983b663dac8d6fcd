package chat

import (
	"errors"
	"testing"
	"time"

	"github.com/havencare/chatsync/internal/actor"
	"github.com/havencare/chatsync/internal/protocol/wire"
	"github.com/stretchr/testify/require"
)

func emitsOf(effects []actor.Effect) []effEmit {
	var out []effEmit
	for _, eff := range effects {
		if e, ok := eff.(effEmit); ok {
			out = append(out, e)
		}
	}
	return out
}

func commandsOf(effects []actor.Effect) []wire.EventName {
	var out []wire.EventName
	for _, e := range emitsOf(effects) {
		out = append(out, e.Command)
	}
	return out
}

func reportsOf(effects []actor.Effect) []Report {
	var out []Report
	for _, eff := range effects {
		if e, ok := eff.(effReport); ok {
			out = append(out, e.Report)
		}
	}
	return out
}

func startedTimers(effects []actor.Effect) []effStartTimer {
	var out []effStartTimer
	for _, eff := range effects {
		if e, ok := eff.(effStartTimer); ok {
			out = append(out, e)
		}
	}
	return out
}

// settle completes the reply channels carried by effects and returns the
// remaining effects.
func settle(effects []actor.Effect) []actor.Effect {
	var rest []actor.Effect
	for _, eff := range effects {
		if e, ok := eff.(effReply); ok {
			e.deliver()
			continue
		}
		rest = append(rest, eff)
	}
	return rest
}

func connectedState() State {
	s := NewState(Settings{})
	s.Connected = true
	return s
}

func activeIn(roomID string) State {
	s, _ := actor.Steps(connectedState(), Reduce, JoinRoom(roomID, nil), RoomJoined(roomID))
	return s
}

func TestJoinRoomWhileActiveLeavesBeforeJoining(t *testing.T) {
	s := activeIn("A")
	require.Equal(t, Membership{Phase: PhaseActive, RoomID: "A", Issued: true}, s.Membership)

	next, effects := actor.Step(s, JoinRoom("B", nil), Reduce)

	require.Equal(t, []wire.EventName{wire.CommandLeaveRoom, wire.CommandJoinRoom}, commandsOf(effects))
	emits := emitsOf(effects)
	require.Equal(t, wire.RoomPayload{RoomID: "A"}, emits[0].Payload)
	require.Equal(t, wire.RoomPayload{RoomID: "B"}, emits[1].Payload)
	require.Contains(t, effects, actor.Effect(effLoadHistory{RoomID: "B"}))
	require.Equal(t, Membership{Phase: PhaseJoining, RoomID: "B", Issued: true}, next.Membership)
	require.True(t, next.knowsRoom("B"))
}

func TestJoinRoomSameRoomIsNoop(t *testing.T) {
	s := activeIn("A")

	next, effects := actor.Step(s, JoinRoom("A", nil), Reduce)
	require.Empty(t, effects)
	require.Equal(t, s.Membership, next.Membership)
}

func TestJoinRoomValidatesRoomID(t *testing.T) {
	reply := make(chan error, 1)
	_, effects := actor.Step(connectedState(), JoinRoom("", reply), Reduce)
	effects = settle(effects)
	require.Empty(t, effects)
	require.ErrorIs(t, <-reply, ErrEmptyRoomID)
}

func TestJoinRoomWhileDisconnectedIsRecordedOnly(t *testing.T) {
	reply := make(chan error, 1)
	next, effects := actor.Step(NewState(Settings{}), JoinRoom("r1", reply), Reduce)
	effects = settle(effects)

	require.NoError(t, <-reply)
	require.Empty(t, emitsOf(effects))
	require.NotContains(t, effects, actor.Effect(effLoadHistory{RoomID: "r1"}))
	reports := reportsOf(effects)
	require.Len(t, reports, 1)
	require.Equal(t, KindCommandSkipped, reports[0].Kind)
	require.Equal(t, wire.CommandJoinRoom, reports[0].Command)
	require.Equal(t, Membership{Phase: PhaseJoining, RoomID: "r1"}, next.Membership)

	// An explicit retry after connecting issues the join.
	next, _ = actor.Step(next, Connected(), Reduce)
	_, effects = actor.Step(next, JoinRoom("r1", nil), Reduce)
	require.Equal(t, []wire.EventName{wire.CommandJoinRoom}, commandsOf(effects))
}

func TestLeaveRoomStopsTypingThenLeaves(t *testing.T) {
	s, _ := actor.Steps(activeIn("A"), Reduce, SendTyping("A", true, nil))
	require.True(t, s.OutboundTyping["A"])

	next, effects := actor.Step(s, LeaveRoom("A", nil), Reduce)

	require.Equal(t, []wire.EventName{wire.CommandTyping, wire.CommandLeaveRoom}, commandsOf(effects))
	require.Equal(t, wire.TypingPayload{RoomID: "A", IsTyping: false}, emitsOf(effects)[0].Payload)
	require.Contains(t, effects, actor.Effect(effCancelTimer{Name: typingOutTimer("A")}))
	require.Equal(t, PhaseIdle, next.Membership.Phase)
	require.Empty(t, next.OutboundTyping)
}

func TestLeaveRoomIgnoresOtherRooms(t *testing.T) {
	s := activeIn("A")
	next, effects := actor.Step(s, LeaveRoom("B", nil), Reduce)
	require.Empty(t, effects)
	require.Equal(t, s.Membership, next.Membership)
}

func TestRoomLeftOnlyEndsActiveMembership(t *testing.T) {
	// A stale room_left for A arriving while the rejoin is pending is ignored.
	s, _ := actor.Steps(activeIn("A"), Reduce, LeaveRoom("A", nil), JoinRoom("A", nil), RoomLeft("A"))
	require.Equal(t, Membership{Phase: PhaseJoining, RoomID: "A", Issued: true}, s.Membership)

	s, _ = actor.Steps(s, Reduce, RoomJoined("A"), RoomLeft("A"))
	require.Equal(t, PhaseIdle, s.Membership.Phase)
}

func TestDisconnectResetsIssuedJoin(t *testing.T) {
	s, _ := actor.Steps(activeIn("A"), Reduce, SendTyping("A", true, nil))

	next, effects := actor.Step(s, Disconnected("transport close"), Reduce)

	require.False(t, next.Connected)
	require.Equal(t, Membership{Phase: PhaseJoining, RoomID: "A"}, next.Membership)
	require.Empty(t, emitsOf(effects))
	require.Contains(t, effects, actor.Effect(effCancelTimer{Name: typingOutTimer("A")}))
	require.Empty(t, next.OutboundTyping)

	// Reconnecting does not replay the join.
	next, effects = actor.Step(next, Connected(), Reduce)
	require.True(t, next.Connected)
	require.Empty(t, emitsOf(effects))
}

func TestSendAppendsOptimisticAndEmits(t *testing.T) {
	s := activeIn("r1")
	reply := make(chan SendResult, 1)
	self := Identity{UserID: "u1", Name: "Ada"}

	next, effects := actor.Step(s, SendMessage("r1", "hello", "temp_1", "2026-01-01T00:00:00Z", self, reply), Reduce)
	effects = settle(effects)

	res := <-reply
	require.NoError(t, res.Err)
	want := Message{
		ID:         "temp_1",
		RoomID:     "r1",
		SenderID:   "u1",
		SenderName: "Ada",
		Content:    "hello",
		CreatedAt:  "2026-01-01T00:00:00Z",
		TempID:     "temp_1",
		Delivery:   DeliveryPending,
	}
	require.Equal(t, want, res.Message)
	require.Equal(t, []Message{want}, next.Logs["r1"])
	require.Equal(t, []effEmit{{
		Command: wire.CommandSendMessage,
		Payload: wire.SendMessagePayload{RoomID: "r1", Content: "hello", TempID: "temp_1"},
		RoomID:  "r1",
		TempID:  "temp_1",
	}}, emitsOf(effects))

	// The published log of the previous state is untouched.
	require.Empty(t, s.Logs["r1"])
}

func TestSendWhileDisconnectedIsSkipped(t *testing.T) {
	reply := make(chan SendResult, 1)
	next, effects := actor.Step(NewState(Settings{}), SendMessage("r1", "hi", "temp_1", "", Identity{}, reply), Reduce)
	effects = settle(effects)

	res := <-reply
	require.NoError(t, res.Err)
	require.Equal(t, DeliveryUnsent, res.Message.Delivery)
	require.Empty(t, emitsOf(effects))
	require.Len(t, reportsOf(effects), 1)
	require.Equal(t, KindCommandSkipped, reportsOf(effects)[0].Kind)
	require.Len(t, next.Logs["r1"], 1)
}

func TestSendRejectsBlankContent(t *testing.T) {
	reply := make(chan SendResult, 1)
	next, effects := actor.Step(connectedState(), SendMessage("r1", "  ", "temp_1", "", Identity{}, reply), Reduce)
	effects = settle(effects)
	require.ErrorIs(t, (<-reply).Err, ErrEmptyMessage)
	require.Empty(t, effects)
	require.False(t, next.knowsRoom("r1"))
}

func TestReceivedEchoReplacesOptimisticInPlace(t *testing.T) {
	s, _ := actor.Steps(activeIn("r1"), Reduce,
		HistoryLoaded("r1", []wire.Message{{ID: "m1", RoomID: "r1", SenderID: "u2", Content: "hello"}}),
		SendMessage("r1", "world", "T", "", Identity{UserID: "u1"}, nil),
	)
	require.Equal(t, []string{"m1", "T"}, ids(s.Logs["r1"]))

	next, effects := actor.Step(s, MessageReceived(wire.Message{
		ID: "m2", RoomID: "r1", SenderID: "u1", SenderName: "Ada", Content: "world", TempID: "T",
	}), Reduce)

	log := next.Logs["r1"]
	require.Equal(t, []string{"m1", "m2"}, ids(log))
	require.Equal(t, "world", log[1].Content)
	require.Equal(t, DeliveryConfirmed, log[1].Delivery)
	require.Contains(t, effects, actor.Effect(effReconciled{RoomID: "r1", TempID: "T", MessageID: "m2"}))

	// A duplicate echo neither appends nor reconciles again.
	again, effects := actor.Step(next, MessageReceived(wire.Message{ID: "m2", RoomID: "r1", Content: "world", TempID: "T"}), Reduce)
	require.Equal(t, []string{"m1", "m2"}, ids(again.Logs["r1"]))
	for _, eff := range effects {
		_, reconciled := eff.(effReconciled)
		require.False(t, reconciled)
	}
}

func TestEchoAfterBacklogDoesNotDuplicate(t *testing.T) {
	s, effects := actor.Steps(connectedState(), Reduce,
		JoinRoom("r1", nil),
		SendMessage("r1", "world", "T", "", Identity{UserID: "u1"}, nil),
		HistoryLoaded("r1", []wire.Message{{ID: "m1", Content: "hello"}, {ID: "m2", Content: "world"}}),
	)
	require.Equal(t, []wire.EventName{wire.CommandJoinRoom, wire.CommandSendMessage}, commandsOf(effects))
	require.Equal(t, []string{"T", "m1", "m2"}, ids(s.Logs["r1"]))

	next, _ := actor.Step(s, MessageReceived(wire.Message{ID: "m2", RoomID: "r1", Content: "world", TempID: "T"}), Reduce)
	require.Equal(t, []string{"m2", "m1"}, ids(next.Logs["r1"]))
	require.Equal(t, "T", next.Logs["r1"][0].TempID)
	require.Equal(t, DeliveryConfirmed, next.Logs["r1"][0].Delivery)
}

func TestReceivedAppendsAndDefaultsSenderName(t *testing.T) {
	s, _ := actor.Steps(activeIn("r1"), Reduce,
		MessageReceived(wire.Message{ID: "m1", RoomID: "r1", SenderID: "u2", Content: "a"}),
		MessageReceived(wire.Message{ID: "m2", RoomID: "r1", SenderID: "u3", Content: "b"}),
		MessageReceived(wire.Message{ID: "m1", RoomID: "r1", SenderID: "u2", Content: "a (edited)"}),
	)
	log := s.Logs["r1"]
	require.Equal(t, []string{"m1", "m2"}, ids(log))
	require.Equal(t, "a (edited)", log[0].Content)
	require.Equal(t, "u2", log[0].SenderName)
}

func TestReceivedWithoutRoomIsInconsistent(t *testing.T) {
	s := activeIn("r1")
	next, effects := actor.Step(s, MessageReceived(wire.Message{ID: "m1"}), Reduce)
	require.Equal(t, s.Logs, next.Logs)
	require.Len(t, reportsOf(effects), 1)
	require.Equal(t, KindProtocolInconsistency, reportsOf(effects)[0].Kind)
}

func TestDeleteWithoutRoomSpansAllRooms(t *testing.T) {
	s, _ := actor.Steps(connectedState(), Reduce,
		MessageReceived(wire.Message{ID: "m1", RoomID: "a"}),
		MessageReceived(wire.Message{ID: "m2", RoomID: "a"}),
		MessageReceived(wire.Message{ID: "m1", RoomID: "b"}),
	)

	next, effects := actor.Step(s, MessageDeleted("m1", ""), Reduce)
	require.Equal(t, []string{"m2"}, ids(next.Logs["a"]))
	require.Empty(t, next.Logs["b"])
	require.Empty(t, reportsOf(effects))

	scoped, _ := actor.Step(s, MessageDeleted("m1", "b"), Reduce)
	require.Equal(t, []string{"m1", "m2"}, ids(scoped.Logs["a"]))
	require.Empty(t, scoped.Logs["b"])
}

func TestDeleteUnknownMessageIsInconsistent(t *testing.T) {
	s := activeIn("r1")
	next, effects := actor.Step(s, MessageDeleted("nope", ""), Reduce)
	require.Equal(t, s.Logs, next.Logs)
	reports := reportsOf(effects)
	require.Len(t, reports, 1)
	require.ErrorIs(t, reports[0], ErrInconsistent)
}

func TestPresenceUpdateDoesNotLeakAcrossRooms(t *testing.T) {
	s, _ := actor.Steps(connectedState(), Reduce, JoinRoom("a", nil), JoinRoom("b", nil),
		PresenceUpdated(wire.PresenceUpdatePayload{RoomID: "b", UsersOnline: []wire.OnlineUser{{ID: "u9", Name: "Bo"}}}),
	)

	next, _ := actor.Step(s, PresenceUpdated(wire.PresenceUpdatePayload{
		RoomID:      "a",
		UsersOnline: []wire.OnlineUser{{ID: "u1", Name: "Ada"}, {ID: "u2", Name: "Cy"}},
	}), Reduce)

	require.Equal(t, []OnlineUser{{ID: "u1", Name: "Ada"}, {ID: "u2", Name: "Cy"}}, next.Presence["a"])
	require.Equal(t, []OnlineUser{{ID: "u9", Name: "Bo"}}, next.Presence["b"])

	// Snapshots replace, never merge.
	next, _ = actor.Step(next, PresenceUpdated(wire.PresenceUpdatePayload{RoomID: "a"}), Reduce)
	require.Empty(t, next.Presence["a"])
	require.Len(t, next.Presence["b"], 1)
}

func TestPresenceForUnknownRoomIsNoop(t *testing.T) {
	s := connectedState()
	next, effects := actor.Step(s, PresenceUpdated(wire.PresenceUpdatePayload{RoomID: "ghost"}), Reduce)
	require.Empty(t, next.Presence)
	require.Len(t, reportsOf(effects), 1)
	require.Equal(t, KindProtocolInconsistency, reportsOf(effects)[0].Kind)
}

func TestRepeatedTypingKeepsSingleEntry(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	typing := wire.UserTypingPayload{RoomID: "r1", UserID: "u2", UserName: "Bo", IsTyping: true}

	s, effects := actor.Steps(activeIn("r1"), Reduce,
		UserTyping(typing, t0),
		UserTyping(typing, t0.Add(time.Second)),
	)

	require.Len(t, s.Typing["r1"], 1)
	require.Equal(t, TypingUser{UserID: "u2", UserName: "Bo", IsTyping: true, LastUpdate: t0.Add(time.Second)}, s.Typing["r1"]["u2"])

	timers := startedTimers(effects)
	require.Len(t, timers, 2)
	require.Equal(t, DefaultTypingTTL, timers[1].After)

	// The first firing is stale; only the latest generation expires the entry.
	s, _ = actor.Step(s, evTimerFired{Name: timers[0].Name, Gen: timers[0].Gen}, Reduce)
	require.Len(t, s.Typing["r1"], 1)
	s, _ = actor.Step(s, evTimerFired{Name: timers[1].Name, Gen: timers[1].Gen}, Reduce)
	require.Empty(t, s.Typing["r1"])
}

func TestTypingFalseRemovesEntry(t *testing.T) {
	s, _ := actor.Steps(activeIn("r1"), Reduce,
		UserTyping(wire.UserTypingPayload{RoomID: "r1", UserID: "u2", IsTyping: true}, time.Time{}),
		UserTyping(wire.UserTypingPayload{RoomID: "r1", UserID: "u2", IsTyping: false}, time.Time{}),
	)
	require.Empty(t, s.Typing["r1"])
	require.Empty(t, s.Timers)
}

func TestTypingForUnknownRoomIsNoop(t *testing.T) {
	next, effects := actor.Step(connectedState(), UserTyping(wire.UserTypingPayload{RoomID: "x", UserID: "u2", IsTyping: true}, time.Time{}), Reduce)
	require.Empty(t, next.Typing)
	require.Len(t, reportsOf(effects), 1)
}

func TestOutboundTypingExpiresAfterWindow(t *testing.T) {
	s, effects := actor.Step(activeIn("r1"), SendTyping("r1", true, nil), Reduce)
	require.Equal(t, []wire.EventName{wire.CommandTyping}, commandsOf(effects))
	timers := startedTimers(effects)
	require.Len(t, timers, 1)
	require.Equal(t, DefaultTypingWindow, timers[0].After)

	// A refresh re-arms the window; the earlier firing is stale.
	s, effects = actor.Step(s, SendTyping("r1", true, nil), Reduce)
	refreshed := startedTimers(effects)[0]
	next, effects := actor.Step(s, evTimerFired{Name: timers[0].Name, Gen: timers[0].Gen}, Reduce)
	require.Empty(t, effects)
	require.True(t, next.OutboundTyping["r1"])

	next, effects = actor.Step(next, evTimerFired{Name: refreshed.Name, Gen: refreshed.Gen}, Reduce)
	require.Equal(t, []effEmit{{
		Command: wire.CommandTyping,
		Payload: wire.TypingPayload{RoomID: "r1", IsTyping: false},
		RoomID:  "r1",
	}}, emitsOf(effects))
	require.Empty(t, next.OutboundTyping)
	require.Empty(t, next.Timers)
}

func TestHistoryLoadedSkipsKnownMessages(t *testing.T) {
	s, _ := actor.Steps(activeIn("r1"), Reduce,
		MessageReceived(wire.Message{ID: "m3", RoomID: "r1"}),
		HistoryLoaded("r1", []wire.Message{{ID: "m1"}, {ID: "m2"}, {ID: "m3"}}),
	)
	require.Equal(t, []string{"m3", "m1", "m2"}, ids(s.Logs["r1"]))
	require.Equal(t, "r1", s.Logs["r1"][1].RoomID)
}

func TestHistoryFailedLeavesLogUntouched(t *testing.T) {
	s, _ := actor.Steps(activeIn("r1"), Reduce, MessageReceived(wire.Message{ID: "m1", RoomID: "r1"}))
	boom := errors.New("boom")

	next, effects := actor.Step(s, HistoryFailed("r1", boom), Reduce)
	require.Equal(t, s.Logs, next.Logs)
	reports := reportsOf(effects)
	require.Len(t, reports, 1)
	require.Equal(t, KindHistoryLoadError, reports[0].Kind)
	require.ErrorIs(t, reports[0], boom)
}

func TestCommandSkippedMarksMessageUnsent(t *testing.T) {
	s, _ := actor.Steps(activeIn("r1"), Reduce, SendMessage("r1", "hi", "T", "", Identity{}, nil))
	require.Equal(t, DeliveryPending, s.Logs["r1"][0].Delivery)

	s, _ = actor.Step(s, evCommandSkipped{Command: wire.CommandSendMessage, RoomID: "r1", TempID: "T"}, Reduce)
	require.Equal(t, DeliveryUnsent, s.Logs["r1"][0].Delivery)

	reply := make(chan error, 1)
	s, effects := actor.Step(s, Resend("r1", "T", reply), Reduce)
	effects = settle(effects)
	require.NoError(t, <-reply)
	require.Equal(t, []wire.EventName{wire.CommandSendMessage}, commandsOf(effects))
	require.Equal(t, wire.SendMessagePayload{RoomID: "r1", Content: "hi", TempID: "T"}, emitsOf(effects)[0].Payload)
	require.Equal(t, DeliveryPending, s.Logs["r1"][0].Delivery)
}

func TestCommandSkippedJoinCanBeRetried(t *testing.T) {
	s, _ := actor.Steps(connectedState(), Reduce,
		JoinRoom("r1", nil),
		evCommandSkipped{Command: wire.CommandJoinRoom, RoomID: "r1"},
	)
	require.Equal(t, Membership{Phase: PhaseJoining, RoomID: "r1"}, s.Membership)

	_, effects := actor.Step(s, JoinRoom("r1", nil), Reduce)
	require.Equal(t, []wire.EventName{wire.CommandJoinRoom}, commandsOf(effects))
}

func TestResendUnknownTempID(t *testing.T) {
	reply := make(chan error, 1)
	_, effects := actor.Step(activeIn("r1"), Resend("r1", "missing", reply), Reduce)
	effects = settle(effects)
	require.ErrorIs(t, <-reply, ErrUnknownMessage)
	require.Empty(t, effects)
}

func TestAckMessage(t *testing.T) {
	_, effects := actor.Step(connectedState(), AckMessage("m1", nil), Reduce)
	require.Equal(t, []effEmit{{Command: wire.CommandAckMessage, Payload: wire.AckMessagePayload{MessageID: "m1"}}}, emitsOf(effects))

	_, effects = actor.Step(NewState(Settings{}), AckMessage("m1", nil), Reduce)
	require.Empty(t, emitsOf(effects))
	require.Equal(t, KindCommandSkipped, reportsOf(effects)[0].Kind)
}

func TestMalformedEventIsReported(t *testing.T) {
	_, effects := actor.Step(connectedState(), MalformedEvent(wire.EventNewMessage, errors.New("bad json")), Reduce)
	reports := reportsOf(effects)
	require.Len(t, reports, 1)
	require.Equal(t, KindProtocolInconsistency, reports[0].Kind)
	require.Contains(t, reports[0].Error(), "new_message")
}

func ids(log []Message) []string {
	out := make([]string, 0, len(log))
	for _, m := range log {
		out = append(out, m.ID)
	}
	return out
}
