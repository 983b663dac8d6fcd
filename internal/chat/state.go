package chat

import (
	"maps"
	"time"

	"github.com/havencare/chatsync/internal/actor"
)

const (
	// DefaultTypingWindow is how long a local typing=true signal stays active
	// before typing=false is sent automatically.
	DefaultTypingWindow = 3 * time.Second
	// DefaultTypingTTL is how long a remote user's typing entry survives
	// without a refresh.
	DefaultTypingTTL = 5 * time.Second
)

// Settings are the reducer's fixed parameters.
type Settings struct {
	TypingWindow time.Duration
	TypingTTL    time.Duration
}

// timerKind identifies what a named timer does when it fires.
type timerKind int

const (
	timerTypingOut timerKind = iota + 1
	timerTypingIn
)

// timerRecord is the reducer's view of an armed timer.
type timerRecord struct {
	Gen    uint64
	Kind   timerKind
	RoomID string
	UserID string
}

// State is the loop-owned state of the chat client.
//
// State is published to readers after every input, so maps and slices are
// copy-on-write: reducers replace them and never mutate a published value.
type State struct {
	Settings Settings

	// Connected mirrors the transport's connect/disconnect events.
	Connected bool

	Membership Membership

	// Logs is the per-room message log. A room is "known" once it has an
	// entry, even an empty one.
	Logs map[string][]Message

	// Typing is room id → user id → entry.
	Typing map[string]map[string]TypingUser

	// Presence is room id → last full snapshot.
	Presence map[string][]OnlineUser

	// OutboundTyping holds rooms with an armed local typing timer.
	OutboundTyping map[string]bool

	// Timers are keyed by timer name. timerSeq is the last generation handed
	// out; generations are unique across names so stale firings never match.
	Timers   map[string]timerRecord
	timerSeq uint64
}

// NewState returns the initial state for the given settings.
func NewState(settings Settings) State {
	if settings.TypingWindow <= 0 {
		settings.TypingWindow = DefaultTypingWindow
	}
	if settings.TypingTTL <= 0 {
		settings.TypingTTL = DefaultTypingTTL
	}
	return State{
		Settings:       settings,
		Membership:     Membership{Phase: PhaseIdle},
		Logs:           map[string][]Message{},
		Typing:         map[string]map[string]TypingUser{},
		Presence:       map[string][]OnlineUser{},
		OutboundTyping: map[string]bool{},
		Timers:         map[string]timerRecord{},
	}
}

// knowsRoom reports whether the room has a log.
func (s State) knowsRoom(roomID string) bool {
	_, ok := s.Logs[roomID]
	return ok
}

// ensureRoom creates an empty log for roomID if it has none.
func (s State) ensureRoom(roomID string) State {
	if s.knowsRoom(roomID) {
		return s
	}
	return s.withLog(roomID, []Message{})
}

// withLog returns a state whose log for roomID is replaced by msgs.
func (s State) withLog(roomID string, msgs []Message) State {
	logs := maps.Clone(s.Logs)
	if logs == nil {
		logs = map[string][]Message{}
	}
	logs[roomID] = msgs
	s.Logs = logs
	return s
}

// armTimer records a new generation for name and returns the effects that
// (re)start it.
func (s State) armTimer(name string, rec timerRecord, after time.Duration) (State, []actor.Effect) {
	s.timerSeq++
	rec.Gen = s.timerSeq
	timers := maps.Clone(s.Timers)
	if timers == nil {
		timers = map[string]timerRecord{}
	}
	timers[name] = rec
	s.Timers = timers
	return s, []actor.Effect{
		effCancelTimer{Name: name},
		effStartTimer{Name: name, Gen: rec.Gen, After: after},
	}
}

// disarmTimer forgets name and returns the effect that cancels it. It is a
// no-op for unknown names.
func (s State) disarmTimer(name string) (State, []actor.Effect) {
	if _, ok := s.Timers[name]; !ok {
		return s, nil
	}
	timers := maps.Clone(s.Timers)
	delete(timers, name)
	s.Timers = timers
	return s, []actor.Effect{effCancelTimer{Name: name}}
}

func typingOutTimer(roomID string) string {
	return "typing-out:" + roomID
}

func typingInTimer(roomID, userID string) string {
	return "typing-in:" + roomID + ":" + userID
}
