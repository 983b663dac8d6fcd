package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/havencare/chatsync/internal/cli"
	"github.com/havencare/chatsync/internal/config"
	"github.com/havencare/chatsync/internal/version"
	"github.com/havencare/chatsync/pkg/logger"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", cli.Red("Error:"), err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	args, err := parseFlags(cfg, os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		printUsage()
		return nil
	}
	if err != nil {
		return err
	}
	if err := setupLogging(cfg); err != nil {
		return err
	}
	defer logger.Sync()

	logger.Debugf("Config: ServerURL=%s, APIURL=%s, Home=%s", cfg.ServerURL, cfg.APIURL, cfg.HomeDir)

	if len(args) == 0 {
		printUsage()
		return nil
	}

	ctx := context.Background()
	switch args[0] {
	case "login":
		return cli.LoginCommand(ctx, cfg, os.Stdin, os.Stdout)
	case "logout":
		return cli.LogoutCommand(cfg, os.Stdout)
	case "rooms":
		return cli.RoomsCommand(ctx, cfg, os.Stdout)
	case "chat":
		room := ""
		if len(args) > 1 {
			room = args[1]
		}
		return runChat(cfg, room)
	case "help", "--help", "-h":
		printUsage()
		return nil
	case "version", "--version", "-v":
		fmt.Println("chatsync " + version.Full())
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// runChat runs the chat session until it ends on its own or a termination
// signal arrives.
func runChat(cfg *config.Config, room string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- cli.ChatCommand(ctx, cfg, room, os.Stdin, os.Stdout)
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"chat": func(ctx context.Context) error {
				logger.Infof("Shutting down...")
				cancel()
				select {
				case err := <-done:
					return err
				case <-ctx.Done():
					return ctx.Err()
				}
			},
		},
	)

	select {
	case err := <-done:
		return err
	case code := <-wait:
		logger.Sync()
		os.Exit(code)
		return nil
	}
}

func parseFlags(cfg *config.Config, args []string) ([]string, error) {
	fs := flag.NewFlagSet("chatsync", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	serverURL := fs.String("server", "", "Socket.IO server URL")
	apiURL := fs.String("api", "", "REST API base URL")
	debug := fs.Bool("debug", false, "Enable debug logging")
	logLevel := fs.String("log-level", "", "Log level (trace|debug|info|warn|error)")
	metricsAddr := fs.String("metrics-addr", "", "Serve Prometheus metrics on this address")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *serverURL != "" {
		// An API URL that was only derived from the server URL follows it.
		if *apiURL == "" && cfg.APIURL == cfg.ServerURL {
			cfg.APIURL = *serverURL
		}
		cfg.ServerURL = *serverURL
	}
	if *apiURL != "" {
		cfg.APIURL = *apiURL
	}
	if *debug {
		cfg.Debug = true
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	return fs.Args(), nil
}

func setupLogging(cfg *config.Config) error {
	raw := cfg.LogLevel
	if cfg.Debug && (raw == "" || raw == config.DefaultLogLevel) {
		raw = "debug"
	}
	level, err := logger.ParseLevel(raw)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logger.SetOutput(os.Stderr)
	logger.SetLevel(level)
	return nil
}

func printUsage() {
	fmt.Println(`chatsync - realtime chat client

Usage:
  chatsync [flags] login        Log in and store the access token
  chatsync [flags] logout       Remove the stored access token
  chatsync [flags] rooms        List rooms
  chatsync [flags] chat [room]  Open an interactive chat session
  chatsync version              Show version information
  chatsync help                 Show this help message

Environment Variables:
  CHATSYNC_SERVER_URL     Socket.IO server URL (default: http://localhost:5000)
  CHATSYNC_SOCKET_PATH    Socket.IO handshake path (default: /socket.io/)
  CHATSYNC_API_URL        REST API URL (default: the server URL)
  CHATSYNC_API_TIMEOUT    REST request timeout (default: 15s)
  CHATSYNC_HOME_DIR       Config directory (default: ~/.chatsync)
  CHATSYNC_LOG_LEVEL      trace|debug|info|warn|error (default: info)
  CHATSYNC_USER_ID        Override the user id read from the token
  CHATSYNC_USER_NAME      Override the display name read from the token
  CHATSYNC_HISTORY_LIMIT  Backlog messages per room (default: 50)
  CHATSYNC_TYPING_WINDOW  Local typing indicator duration (default: 3s)
  CHATSYNC_TYPING_TTL     Remote typing indicator lifetime (default: 5s)
  CHATSYNC_METRICS_ADDR   Serve /metrics on this address
  DEBUG                   Enable debug logging (true/1)

Settings may also be placed in $CHATSYNC_HOME_DIR/config.yaml.

Flags:
  -server        Socket.IO server URL
  -api           REST API base URL
  -debug         Enable debug logging
  -log-level     Log level
  -metrics-addr  Serve Prometheus metrics on this address`)
}
