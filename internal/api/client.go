// Package api is the REST client for the chat backend: authentication, the
// room list and room message history.
package api

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/havencare/chatsync/internal/protocol/wire"
	"github.com/havencare/chatsync/pkg/logger"
	"resty.dev/v3"
)

// ErrRequestFailed wraps every failed REST call: transport errors, non-2xx
// responses and {success:false} bodies.
var ErrRequestFailed = errors.New("api request failed")

// DefaultTimeout bounds a single REST call.
const DefaultTimeout = 15 * time.Second

// Client calls the REST backend. It is safe for concurrent use.
type Client struct {
	http *resty.Client

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// WithToken sets the initial bearer credential.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// NewClient returns a client for baseURL. A trailing slash is ignored.
func NewClient(baseURL string, opts ...Option) *Client {
	rc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(DefaultTimeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	c := &Client{http: rc}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken replaces the bearer credential. An empty token clears it.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the current bearer credential.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.http.Close()
}

// Login exchanges credentials for tokens. The client keeps using its current
// token; call SetToken with the returned access token to switch.
func (c *Client) Login(ctx context.Context, email, password string) (wire.LoginResponse, error) {
	body, err := wire.Marshal(wire.LoginRequest{Email: email, Password: password})
	if err != nil {
		return wire.LoginResponse{}, fmt.Errorf("encode login request: %w", err)
	}
	req := c.http.R().SetContext(ctx).SetBody(body)

	var out wire.LoginResponse
	if err := c.do(req, resty.MethodPost, "/api/auth/login", &out); err != nil {
		return wire.LoginResponse{}, err
	}
	if out.AccessToken == "" {
		return wire.LoginResponse{}, fmt.Errorf("%w: login response without access token", ErrRequestFailed)
	}
	return out, nil
}

// ListRooms returns the rooms visible to the authenticated user.
func (c *Client) ListRooms(ctx context.Context) ([]wire.Room, error) {
	var rooms []wire.Room
	if err := c.do(c.authed(ctx), resty.MethodGet, "/api/rooms", &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// RoomMessages returns up to limit messages of roomID in server order.
func (c *Client) RoomMessages(ctx context.Context, roomID string, limit int) ([]wire.Message, error) {
	req := c.authed(ctx).
		SetPathParam("roomID", roomID).
		SetQueryParam("limit", strconv.Itoa(limit))

	var msgs []wire.Message
	if err := c.do(req, resty.MethodGet, "/api/rooms/{roomID}/messages", &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (c *Client) authed(ctx context.Context) *resty.Request {
	req := c.http.R().SetContext(ctx)
	if token := c.Token(); token != "" {
		req.SetAuthToken(token)
	}
	return req
}

// do executes req and decodes the body into out.
func (c *Client) do(req *resty.Request, method, path string, out any) error {
	logger.Tracef("%s %s", method, path)

	res, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrRequestFailed, method, path, err)
	}

	body := res.String()
	if res.IsError() {
		return fmt.Errorf("%w: %s %s: %s", ErrRequestFailed, method, path, failureReason(res.StatusCode(), body))
	}
	if err := decodeBody(body, out); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrRequestFailed, method, path, err)
	}
	return nil
}

// envelope is the {success,data,error,message} wrapper some endpoints use.
type envelope struct {
	Success *bool            `json:"success"`
	Data    *wire.RawMessage `json:"data"`
	Error   string           `json:"error"`
	Message string           `json:"message"`
}

// decodeBody accepts either the bare payload or the envelope around it.
func decodeBody(body string, out any) error {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return errors.New("empty response body")
	}
	if !strings.HasPrefix(trimmed, "{") {
		return wire.Unmarshal([]byte(trimmed), out)
	}

	var env envelope
	if err := wire.Unmarshal([]byte(trimmed), &env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if env.Success != nil && !*env.Success {
		reason := wire.APIError{Error: env.Error, Message: env.Message}.Reason()
		if reason == "" {
			reason = "request rejected"
		}
		return errors.New(reason)
	}
	if env.Success != nil && env.Data != nil {
		return wire.Unmarshal(*env.Data, out)
	}
	return wire.Unmarshal([]byte(trimmed), out)
}

// failureReason extracts the backend's reason from an error body, falling
// back to the status code.
func failureReason(status int, body string) string {
	var apiErr wire.APIError
	if err := wire.Unmarshal([]byte(body), &apiErr); err == nil {
		if reason := apiErr.Reason(); reason != "" {
			return fmt.Sprintf("%s (status %d)", reason, status)
		}
	}
	return fmt.Sprintf("request failed with status %d", status)
}
