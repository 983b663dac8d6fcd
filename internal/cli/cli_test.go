package cli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/golang-jwt/jwt/v5"
	"github.com/havencare/chatsync/internal/chat"
	"github.com/havencare/chatsync/internal/config"
	"github.com/havencare/chatsync/internal/protocol/wire"
	"github.com/havencare/chatsync/internal/storage"
	"github.com/havencare/chatsync/internal/websocket"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

// syncBuffer is a bytes.Buffer safe for the renderer and the test to share.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig(t *testing.T, apiURL string) *config.Config {
	t.Helper()
	home := t.TempDir()
	return &config.Config{
		APIURL:    apiURL,
		ServerURL: apiURL,
		HomeDir:   home,
		TokenPath: filepath.Join(home, "token"),
	}
}

func TestLoginStoresToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/auth/login", r.URL.Path)
		_, _ = io.WriteString(w, `{"user":{"id":"u1","name":"Ada"},"access_token":"at-1"}`)
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	var out bytes.Buffer
	err := LoginCommand(context.Background(), cfg, strings.NewReader("ada@example.com\nsecret\n"), &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), "Logged in as Ada")

	token, err := storage.LoadToken(cfg.TokenPath)
	require.NoError(t, err)
	require.Equal(t, "at-1", token)

	require.NoError(t, LogoutCommand(cfg, &out))
	_, err = storage.LoadToken(cfg.TokenPath)
	require.ErrorIs(t, err, storage.ErrNoToken)
}

func TestLoginRequiresEmail(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	err := LoginCommand(context.Background(), cfg, strings.NewReader("\n"), io.Discard)
	require.Error(t, err)
}

func TestRoomsCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"success":true,"data":[{"id":"r1","title":"General"},{"id":"r2","slug":"ops","is_private":true}]}`)
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	require.ErrorIs(t, RoomsCommand(context.Background(), cfg, io.Discard), ErrNotLoggedIn)

	require.NoError(t, storage.SaveToken(cfg.TokenPath, "tok"))
	var out bytes.Buffer
	require.NoError(t, RoomsCommand(context.Background(), cfg, &out))
	require.Contains(t, out.String(), "r1  General")
	require.Contains(t, out.String(), "r2  ops (private)")
}

func TestRoomsCommandHonorsAPITimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		_, _ = io.WriteString(w, `{"success":true,"data":[]}`)
	}))
	defer srv.Close()
	defer close(release)

	cfg := testConfig(t, srv.URL)
	cfg.APITimeout = 50 * time.Millisecond
	require.NoError(t, storage.SaveToken(cfg.TokenPath, "tok"))

	start := time.Now()
	err := RoomsCommand(context.Background(), cfg, io.Discard)
	require.Error(t, err)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestCredentialIdentity(t *testing.T) {
	cfg := testConfig(t, "")
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u7", "name": "Grace"}).
		SignedString([]byte("k"))
	require.NoError(t, err)
	require.NoError(t, storage.SaveToken(cfg.TokenPath, token))

	_, self, err := loadCredential(cfg)
	require.NoError(t, err)
	require.Equal(t, chat.Identity{UserID: "u7", Name: "Grace"}, self)

	cfg.UserID, cfg.UserName = "override", ""
	_, self, err = loadCredential(cfg)
	require.NoError(t, err)
	require.Equal(t, chat.Identity{UserID: "override", Name: "override"}, self)
}

// fakeView serves fixed snapshots to the renderer.
type fakeView struct {
	logs      map[string][]chat.Message
	typing    map[string][]chat.TypingUser
	online    map[string][]chat.OnlineUser
	member    chat.Membership
	connected bool
}

func (v *fakeView) Messages(roomID string) []chat.Message       { return v.logs[roomID] }
func (v *fakeView) TypingUsers(roomID string) []chat.TypingUser { return v.typing[roomID] }
func (v *fakeView) OnlineUsers(roomID string) []chat.OnlineUser { return v.online[roomID] }
func (v *fakeView) Membership() chat.Membership                 { return v.member }
func (v *fakeView) IsConnected() bool                           { return v.connected }

func TestRendererHidesOwnEcho(t *testing.T) {
	var out bytes.Buffer
	v := &fakeView{logs: map[string][]chat.Message{}}
	r := newRenderer(&out, "u1")
	r.view = v

	v.logs["r1"] = []chat.Message{{ID: "temp_1", TempID: "temp_1", RoomID: "r1", SenderID: "u1", SenderName: "Ada", Content: "hi", Delivery: chat.DeliveryPending}}
	r.render(chat.Update{Kind: chat.UpdateMessages, RoomID: "r1", MessageID: "temp_1"})

	v.logs["r1"] = []chat.Message{{ID: "m1", TempID: "temp_1", RoomID: "r1", SenderID: "u1", SenderName: "Ada", Content: "hi", Delivery: chat.DeliveryConfirmed}}
	r.render(chat.Update{Kind: chat.UpdateMessages, RoomID: "r1", MessageID: "m1"})

	require.Equal(t, 1, strings.Count(out.String(), "Ada: hi"))

	v.logs["r1"] = nil
	r.render(chat.Update{Kind: chat.UpdateMessages, RoomID: "r1", MessageID: "m1"})
	require.Contains(t, out.String(), "message m1 deleted")
}

func TestRendererBacklogAndUnsent(t *testing.T) {
	var out bytes.Buffer
	v := &fakeView{logs: map[string][]chat.Message{"r1": {
		{ID: "m1", RoomID: "r1", SenderID: "u2", SenderName: "Bob", Content: "one", Delivery: chat.DeliveryConfirmed},
		{ID: "m2", RoomID: "r1", SenderID: "u2", Content: "two", Delivery: chat.DeliveryConfirmed},
	}}}
	r := newRenderer(&out, "u1")
	r.view = v

	r.render(chat.Update{Kind: chat.UpdateMessages, RoomID: "r1"})
	r.render(chat.Update{Kind: chat.UpdateMessages, RoomID: "r1"})
	require.Equal(t, 1, strings.Count(out.String(), "Bob: one"))
	require.Equal(t, 1, strings.Count(out.String(), "u2: two"))

	v.logs["r1"] = append(v.logs["r1"], chat.Message{ID: "temp_9", TempID: "temp_9", RoomID: "r1", SenderID: "u1", Content: "lost", Delivery: chat.DeliveryUnsent})
	r.render(chat.Update{Kind: chat.UpdateMessages, RoomID: "r1", MessageID: "temp_9"})
	require.Contains(t, out.String(), "(unsent, /resend temp_9)")
}

func TestRendererTypingSkipsSelf(t *testing.T) {
	var out bytes.Buffer
	v := &fakeView{typing: map[string][]chat.TypingUser{"r1": {
		{UserID: "u1", UserName: "Ada", IsTyping: true},
		{UserID: "u2", UserName: "Bob", IsTyping: true},
	}}}
	r := newRenderer(&out, "u1")
	r.view = v

	r.render(chat.Update{Kind: chat.UpdateTyping, RoomID: "r1"})
	r.render(chat.Update{Kind: chat.UpdateTyping, RoomID: "r1"})
	require.Equal(t, "Bob is typing…\n", out.String())
}

// loopback is a connected transport that records commands and confirms
// joins and sends the way the server would.
type loopback struct {
	mu       sync.Mutex
	handlers map[websocket.EventType]websocket.Handler
	sent     []wire.EventName
}

func (l *loopback) Connect(string) error { return nil }
func (l *loopback) Disconnect()          {}
func (l *loopback) IsConnected() bool    { return true }

func (l *loopback) On(et websocket.EventType, h websocket.Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[et] = h
}

func (l *loopback) Send(cmd wire.EventName, payload any) error {
	l.mu.Lock()
	l.sent = append(l.sent, cmd)
	l.mu.Unlock()

	// Echo asynchronously: the chat loop is the caller.
	go func() {
		switch p := payload.(type) {
		case wire.RoomPayload:
			if cmd == wire.CommandJoinRoom {
				l.deliver(wire.EventRoomJoined, map[string]any{"room_id": p.RoomID})
			}
		case wire.SendMessagePayload:
			l.deliver(wire.EventNewMessage, map[string]any{
				"id": "m-" + p.TempID, "room_id": p.RoomID, "sender_id": "u1", "sender_name": "Ada",
				"content": p.Content, "temp_id": p.TempID,
			})
		}
	}()
	return nil
}

func (l *loopback) deliver(name wire.EventName, data any) {
	l.mu.Lock()
	h := l.handlers[websocket.EventType(name)]
	l.mu.Unlock()
	if h != nil {
		h(websocket.Event{Type: websocket.EventType(name), Data: data})
	}
}

func (l *loopback) commands() []wire.EventName {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]wire.EventName(nil), l.sent...)
}

type noHistory struct{}

func (noHistory) LoadBacklog(context.Context, string) ([]wire.Message, error) { return nil, nil }

func TestSessionJoinSendQuit(t *testing.T) {
	var out syncBuffer
	r := newRenderer(&out, "u1")
	tr := &loopback{handlers: make(map[websocket.EventType]websocket.Handler)}
	updates := make(chan chat.Update, 64)
	client := chat.New(tr, noHistory{}, chat.Config{
		Self:     chat.Identity{UserID: "u1", Name: "Ada"},
		OnUpdate: func(u chat.Update) { updates <- u },
	})
	defer client.Close()
	r.view = client

	stop := make(chan struct{})
	defer close(stop)
	go r.run(updates, stop)

	input := strings.NewReader("/typing\nhello there\n/bogus\n/quit\nnever sent\n")
	require.NoError(t, runSession(context.Background(), client, r, "r1", input))

	require.Equal(t, []wire.EventName{wire.CommandJoinRoom, wire.CommandTyping, wire.CommandSendMessage}, tr.commands())
	require.Eventually(t, func() bool {
		msgs := client.Messages("r1")
		return len(msgs) == 1 && !msgs[0].Optimistic()
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "unknown command /bogus")
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, 1, strings.Count(out.String(), "Ada: hello there"))
}

func TestSessionRequiresRoom(t *testing.T) {
	var out syncBuffer
	r := newRenderer(&out, "u1")
	tr := &loopback{handlers: make(map[websocket.EventType]websocket.Handler)}
	client := chat.New(tr, noHistory{}, chat.Config{})
	defer client.Close()
	r.view = client

	require.NoError(t, runSession(context.Background(), client, r, "", strings.NewReader("hi\n/leave\n")))
	require.Empty(t, tr.commands())
	require.Contains(t, out.String(), "join a room first")
	require.Contains(t, out.String(), "not in a room")
}
