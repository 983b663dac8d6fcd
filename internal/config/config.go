// Package config loads the client configuration from the environment and an
// optional YAML file in the client home directory.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultServerURL is used for both the socket and REST endpoints when
	// nothing else is configured.
	DefaultServerURL = "http://localhost:5000"
	// DefaultLogLevel is used when neither debug nor a level is configured.
	DefaultLogLevel = "info"
)

type Config struct {
	// ServerURL is the socket.io endpoint.
	ServerURL string `yaml:"server_url"`
	// SocketPath overrides the socket.io handshake path when set.
	SocketPath string `yaml:"socket_path"`
	// APIURL is the base URL of the REST API.
	APIURL string `yaml:"api_url"`
	// APITimeout bounds each REST request. Zero selects the client default.
	APITimeout time.Duration `yaml:"api_timeout"`

	// HomeDir is where chatsync stores local state.
	HomeDir string `yaml:"-"`
	// TokenPath is the stored bearer credential.
	TokenPath string `yaml:"-"`

	// Debug enables verbose logging.
	Debug bool `yaml:"debug"`
	// LogLevel is one of trace, debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// UserID and UserName override the identity read from the credential.
	UserID   string `yaml:"user_id"`
	UserName string `yaml:"user_name"`

	// HistoryLimit is the backlog size requested per room. Zero selects the
	// loader default.
	HistoryLimit int `yaml:"history_limit"`
	// TypingWindow and TypingTTL override the typing timeouts when non-zero.
	TypingWindow time.Duration `yaml:"typing_window"`
	TypingTTL    time.Duration `yaml:"typing_ttl"`

	// MetricsAddr serves /metrics when set.
	MetricsAddr string `yaml:"metrics_addr"`
}

// Load loads configuration from defaults, <home>/config.yaml and the
// environment, in increasing precedence.
func Load() (*Config, error) {
	homeDir := os.Getenv("CHATSYNC_HOME_DIR")
	if homeDir == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		homeDir = filepath.Join(userHome, ".chatsync")
	}
	if err := os.MkdirAll(homeDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create chatsync home: %w", err)
	}

	cfg := &Config{LogLevel: DefaultLogLevel}
	if err := cfg.loadFile(filepath.Join(homeDir, "config.yaml")); err != nil {
		return nil, err
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	cfg.HomeDir = homeDir
	cfg.TokenPath = filepath.Join(homeDir, "token")
	if cfg.ServerURL == "" {
		cfg.ServerURL = DefaultServerURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = cfg.ServerURL
	}
	if cfg.HistoryLimit < 0 {
		return nil, fmt.Errorf("invalid history limit %d", cfg.HistoryLimit)
	}
	if cfg.TypingWindow < 0 || cfg.TypingTTL < 0 {
		return nil, errors.New("typing durations must not be negative")
	}
	if cfg.APITimeout < 0 {
		return nil, fmt.Errorf("invalid api timeout %s", cfg.APITimeout)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	setString(&c.ServerURL, "CHATSYNC_SERVER_URL")
	setString(&c.APIURL, "CHATSYNC_API_URL")
	setString(&c.SocketPath, "CHATSYNC_SOCKET_PATH")
	setString(&c.LogLevel, "CHATSYNC_LOG_LEVEL")
	setString(&c.UserID, "CHATSYNC_USER_ID")
	setString(&c.UserName, "CHATSYNC_USER_NAME")
	setString(&c.MetricsAddr, "CHATSYNC_METRICS_ADDR")

	if raw := getenvFirst("CHATSYNC_DEBUG", "DEBUG"); raw != "" {
		c.Debug = raw == "true" || raw == "1"
	}
	if raw := os.Getenv("CHATSYNC_HISTORY_LIMIT"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid CHATSYNC_HISTORY_LIMIT %q: %w", raw, err)
		}
		c.HistoryLimit = n
	}
	if err := setDuration(&c.APITimeout, "CHATSYNC_API_TIMEOUT"); err != nil {
		return err
	}
	if err := setDuration(&c.TypingWindow, "CHATSYNC_TYPING_WINDOW"); err != nil {
		return err
	}
	return setDuration(&c.TypingTTL, "CHATSYNC_TYPING_TTL")
}

func setString(dst *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func setDuration(dst *time.Duration, key string) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	*dst = d
	return nil
}

func getenvFirst(primary, fallback string) string {
	if val := os.Getenv(primary); val != "" {
		return val
	}
	return os.Getenv(fallback)
}
