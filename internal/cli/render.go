package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/havencare/chatsync/internal/chat"
)

// view is the read side of the chat client used for rendering.
type view interface {
	Messages(roomID string) []chat.Message
	TypingUsers(roomID string) []chat.TypingUser
	OnlineUsers(roomID string) []chat.OnlineUser
	Membership() chat.Membership
	IsConnected() bool
}

// renderer prints state changes as they happen. Output is serialized so that
// REPL replies and inbound events do not interleave mid-line.
type renderer struct {
	mu     sync.Mutex
	out    io.Writer
	selfID string
	view   view

	// printed is keyed by room id and message id.
	printed map[string]chat.Message
	typing  map[string]string
}

func newRenderer(out io.Writer, selfID string) *renderer {
	return &renderer{
		out:     out,
		selfID:  selfID,
		printed: make(map[string]chat.Message),
		typing:  make(map[string]string),
	}
}

func (r *renderer) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

// run renders updates until stop is closed.
func (r *renderer) run(updates <-chan chat.Update, stop <-chan struct{}) {
	for {
		select {
		case u := <-updates:
			r.render(u)
		case <-stop:
			return
		}
	}
}

func (r *renderer) render(u chat.Update) {
	switch u.Kind {
	case chat.UpdateConnection:
		if r.view.IsConnected() {
			r.printf("%s\n", Green("● connected"))
		} else {
			r.printf("%s\n", Red("● disconnected"))
		}

	case chat.UpdateMembership:
		m := r.view.Membership()
		switch {
		case m.Phase == chat.PhaseIdle:
			r.printf("%s\n", Dim("» left "+u.RoomID))
		case m.RoomID != u.RoomID:
			// Superseded by a later join.
		case m.Phase == chat.PhaseActive:
			r.printf("%s\n", Green("» joined "+m.RoomID))
		case m.Issued:
			r.printf("%s\n", Dim("» joining "+m.RoomID+"…"))
		}

	case chat.UpdateMessages:
		r.renderMessages(u.RoomID, u.MessageID)

	case chat.UpdateTyping:
		r.renderTyping(u.RoomID)

	case chat.UpdatePresence:
		users := r.view.OnlineUsers(u.RoomID)
		names := make([]string, 0, len(users))
		for _, o := range users {
			names = append(names, displayName(o.Name, o.ID))
		}
		r.printf("%s\n", Dim(fmt.Sprintf("online in %s: %s", u.RoomID, strings.Join(names, ", "))))
	}
}

func (r *renderer) renderMessages(roomID, messageID string) {
	msgs := r.view.Messages(roomID)
	if messageID == "" {
		for _, m := range msgs {
			r.renderMessage(m)
		}
		return
	}

	for _, m := range msgs {
		// A reconciled message is looked up by its former temp id.
		if m.ID == messageID || m.TempID == messageID {
			r.renderMessage(m)
			return
		}
	}

	key := roomID + "/" + messageID
	if _, ok := r.printed[key]; ok {
		delete(r.printed, key)
		r.printf("%s\n", Dim("✗ message "+messageID+" deleted"))
	}
}

func (r *renderer) renderMessage(m chat.Message) {
	key := m.RoomID + "/" + m.ID
	if prev, ok := r.printed[key]; ok {
		r.printed[key] = m
		switch {
		case prev.Content != m.Content:
			r.printf("%s %s\n", r.format(m), Dim("(edited)"))
		case prev.Delivery != m.Delivery && m.Delivery == chat.DeliveryUnsent:
			r.printf("%s\n", Red("✗ not sent, /resend "+m.TempID))
		}
		return
	}

	if m.TempID != "" && !m.Optimistic() {
		tempKey := m.RoomID + "/" + m.TempID
		if _, ok := r.printed[tempKey]; ok {
			// Our own echo: already on screen.
			delete(r.printed, tempKey)
			r.printed[key] = m
			return
		}
	}

	r.printed[key] = m
	r.printf("%s\n", r.format(m))
}

func (r *renderer) format(m chat.Message) string {
	name := displayName(m.SenderName, m.SenderID)
	if m.SenderID == r.selfID {
		name = Cyan(name)
	} else {
		name = Bold(name)
	}

	line := fmt.Sprintf("%s %s: %s", Dim(clockTime(m.CreatedAt)), name, m.Content)
	switch m.Delivery {
	case chat.DeliveryPending:
		line += Dim(" …")
	case chat.DeliveryUnsent:
		line += Red(" (unsent, /resend " + m.TempID + ")")
	}
	return line
}

func (r *renderer) renderTyping(roomID string) {
	var names []string
	for _, u := range r.view.TypingUsers(roomID) {
		if u.UserID == r.selfID {
			continue
		}
		names = append(names, displayName(u.UserName, u.UserID))
	}

	line := ""
	switch len(names) {
	case 0:
	case 1:
		line = names[0] + " is typing…"
	default:
		line = strings.Join(names, ", ") + " are typing…"
	}
	if line == r.typing[roomID] {
		return
	}
	r.typing[roomID] = line
	if line != "" {
		r.printf("%s\n", Yellow(line))
	}
}

// report prints a caught failure. It is called on the chat loop goroutine.
func (r *renderer) report(rep chat.Report) {
	switch rep.Kind {
	case chat.KindCommandSkipped:
		r.printf("%s\n", Yellow("! "+rep.Error()))
	case chat.KindProtocolInconsistency:
		// Logged by the client at debug level.
	default:
		r.printf("%s\n", Red("! "+rep.Error()))
	}
}

func displayName(name, id string) string {
	if name != "" {
		return name
	}
	return id
}

func clockTime(createdAt string) string {
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return "--:--"
	}
	return t.Local().Format("15:04")
}
