package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/havencare/chatsync/internal/chat"
	"github.com/havencare/chatsync/internal/config"
	"github.com/havencare/chatsync/internal/history"
	"github.com/havencare/chatsync/internal/metrics"
	"github.com/havencare/chatsync/internal/websocket"
	"github.com/havencare/chatsync/pkg/logger"
)

const (
	connectTimeout = 10 * time.Second
	requestTimeout = 5 * time.Second
)

const chatHelp = `commands:
  /join <room>        switch to a room
  /leave              leave the current room
  /typing             tell the room you are typing
  /who                list online users
  /log                print the current room log
  /resend <temp_id>   retry an unsent message
  /ack <message_id>   acknowledge a message
  /quit               exit
anything else is sent to the current room`

// ChatCommand connects to the server and runs the interactive chat loop
// until in is exhausted, /quit is entered or ctx is cancelled.
func ChatCommand(ctx context.Context, cfg *config.Config, room string, in io.Reader, out io.Writer) error {
	token, self, err := loadCredential(cfg)
	if err != nil {
		return err
	}

	apiClient := newAPIClient(cfg, token)
	defer apiClient.Close()

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, m)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	r := newRenderer(out, self.UserID)
	updates := make(chan chat.Update, 256)

	var wsOpts []websocket.Option
	if cfg.SocketPath != "" {
		wsOpts = append(wsOpts, websocket.WithPath(cfg.SocketPath))
	}
	ws := websocket.NewClient(cfg.ServerURL, wsOpts...)
	client := chat.New(ws, history.NewLoader(apiClient, cfg.HistoryLimit), chat.Config{
		Self:         self,
		TypingWindow: cfg.TypingWindow,
		TypingTTL:    cfg.TypingTTL,
		Metrics:      m,
		Reporter:     r.report,
		OnUpdate: func(u chat.Update) {
			select {
			case updates <- u:
			default:
				logger.Debugf("Render queue full, dropping %s update", u.Kind)
			}
		},
	})
	r.view = client

	stop := make(chan struct{})
	go r.run(updates, stop)
	defer func() {
		ws.Disconnect()
		client.Close()
		close(stop)
	}()

	logger.Infof("Connecting to %s as %s", cfg.ServerURL, self.Name)
	if err := client.Connect(token); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	if !ws.WaitForConnect(connectTimeout) {
		r.printf("%s\n", Yellow("! still connecting, commands are skipped until the connection is up"))
	}

	return runSession(ctx, client, r, room, in)
}

// runSession drives the REPL over an already constructed client.
func runSession(ctx context.Context, client *chat.Client, r *renderer, room string, in io.Reader) error {
	s := &session{client: client, r: r}
	if room != "" {
		s.join(ctx, room)
	}

	lines := make(chan string)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case line := <-lines:
			if quit := s.handle(ctx, line); quit {
				return nil
			}
		}
	}
}

type session struct {
	client *chat.Client
	r      *renderer
}

// handle executes one REPL line and reports whether the session should end.
func (s *session) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	if !strings.HasPrefix(line, "/") {
		s.send(ctx, line)
		return false
	}

	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]
	room := s.client.CurrentRoom()

	switch cmd {
	case "/quit", "/exit":
		return true

	case "/help":
		s.r.printf("%s\n", chatHelp)

	case "/join":
		if len(args) != 1 {
			s.fail(errors.New("usage: /join <room>"))
			return false
		}
		s.join(ctx, args[0])

	case "/leave":
		if room == "" {
			s.fail(errors.New("not in a room"))
			return false
		}
		s.fail(s.client.LeaveRoom(ctx, room))

	case "/typing":
		if room == "" {
			s.fail(errors.New("not in a room"))
			return false
		}
		s.fail(s.client.SendTyping(ctx, room, true))

	case "/who":
		users := s.client.OnlineUsers(room)
		if len(users) == 0 {
			s.r.printf("%s\n", Dim("nobody online"))
			return false
		}
		for _, u := range users {
			s.r.printf("  %s %s\n", Green("●"), displayName(u.Name, u.ID))
		}

	case "/log":
		for _, m := range s.client.Messages(room) {
			s.r.printf("%s\n", s.r.format(m))
		}

	case "/resend":
		if len(args) != 1 {
			s.fail(errors.New("usage: /resend <temp_id>"))
			return false
		}
		s.fail(s.client.Resend(ctx, room, args[0]))

	case "/ack":
		if len(args) != 1 {
			s.fail(errors.New("usage: /ack <message_id>"))
			return false
		}
		s.fail(s.client.Ack(ctx, args[0]))

	default:
		s.fail(fmt.Errorf("unknown command %s, try /help", cmd))
	}
	return false
}

func (s *session) join(ctx context.Context, room string) {
	s.fail(s.client.JoinRoom(ctx, room))
}

func (s *session) send(ctx context.Context, content string) {
	room := s.client.CurrentRoom()
	if room == "" {
		s.fail(errors.New("join a room first, /join <room>"))
		return
	}
	if _, err := s.client.Send(ctx, room, content); err != nil {
		s.fail(err)
	}
}

func (s *session) fail(err error) {
	if err != nil {
		s.r.printf("%s\n", Red("! "+err.Error()))
	}
}

func serveMetrics(addr string, m *metrics.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: requestTimeout}
	go func() {
		logger.Infof("Serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Metrics server failed: %v", err)
		}
	}()
	return srv
}
