// Package wsbridge is the websocket transport adapter. It holds one
// connection to the bridge, multiplexes req/res calls over it and turns
// bridge events into inbound messages and connection states. Dropped
// connections are redialled after a fixed delay.
package wsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mattjoyce/herald/internal/config"
	"github.com/mattjoyce/herald/internal/transport"
)

// Frame types.
const (
	FrameRequest  = "req"
	FrameResponse = "res"
	FrameEvent    = "event"
)

// Bridge methods and events.
const (
	MethodSend          = "message.send"
	MethodGroupMetadata = "group.metadata"
	MethodChats         = "chats.list"

	EventMessage    = "message"
	EventConnection = "connection"
)

const (
	DefaultReconnectDelay = 5 * time.Second
	DefaultRequestTimeout = 30 * time.Second

	inboundBuffer = 256
)

// ErrNotConnected is returned by calls made while no session is up.
var ErrNotConnected = errors.New("bridge not connected")

// Frame is the wire envelope for every websocket message.
type Frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  any             `json:"params,omitempty"`
	OK      bool            `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *FrameError     `json:"error,omitempty"`
	Event   string          `json:"event,omitempty"`
}

// FrameError is a failed response.
type FrameError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *FrameError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

// ConnectionEvent is the payload of a "connection" event.
type ConnectionEvent struct {
	State  transport.ConnectionState `json:"state"`
	SelfID string                    `json:"self_id,omitempty"`
}

// SendParams are the params of message.send.
type SendParams struct {
	ChatID  string                `json:"chat_id"`
	Content transport.Content     `json:"content"`
	Options transport.SendOptions `json:"options"`
}

type chatParams struct {
	ChatID string `json:"chat_id"`
}

// Config holds the client settings.
type Config struct {
	URL            string
	Token          string
	SelfID         string
	ReconnectDelay time.Duration
	RequestTimeout time.Duration
}

// FromConfig converts the transport section of the global config.
func FromConfig(tc config.TransportConfig) (Config, error) {
	if tc.Websocket.URL == "" {
		return Config{}, errors.New("websocket transport: url is required")
	}
	return Config{
		URL:            tc.Websocket.URL,
		Token:          tc.Websocket.Token,
		SelfID:         tc.SelfID,
		ReconnectDelay: tc.Websocket.ReconnectDelay,
		RequestTimeout: tc.Websocket.RequestTimeout,
	}, nil
}

type session struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	done    chan struct{}
}

// Client implements transport.Transport over one websocket.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *slog.Logger

	messages chan transport.Message
	states   chan transport.ConnectionState
	selfID   atomic.Value // string
	nextID   atomic.Int64

	mu   sync.Mutex
	sess *session

	pendingMu sync.Mutex
	pending   map[string]chan Frame
}

var _ transport.Transport = (*Client)(nil)

// New creates a client. Nothing is dialled until Start.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := &Client{
		cfg:      cfg,
		dialer:   websocket.DefaultDialer,
		logger:   logger,
		messages: make(chan transport.Message, inboundBuffer),
		states:   make(chan transport.ConnectionState, 8),
		pending:  make(map[string]chan Frame),
	}
	c.selfID.Store(cfg.SelfID)
	return c
}

func (c *Client) Messages() <-chan transport.Message { return c.messages }

func (c *Client) States() <-chan transport.ConnectionState { return c.states }

func (c *Client) SelfID() string { return c.selfID.Load().(string) }

// Connected reports whether a session is up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess != nil
}

// Start dials the bridge and serves the connection, redialling after
// ReconnectDelay whenever it drops. Messages is closed on return.
func (c *Client) Start(ctx context.Context) error {
	defer close(c.messages)

	for {
		transport.NotifyState(c.states, transport.StateConnecting)
		if err := c.runSession(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warn("bridge session ended", "url", c.cfg.URL, "error", err)
		}
		transport.NotifyState(c.states, transport.StateClosed)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}
}

func (c *Client) runSession(ctx context.Context) error {
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}

	s := &session{conn: conn, done: make(chan struct{})}
	c.mu.Lock()
	c.sess = s
	c.mu.Unlock()
	c.logger.Info("bridge connected", "url", c.cfg.URL)
	transport.NotifyState(c.states, transport.StateOpen)

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stop()
		c.mu.Lock()
		c.sess = nil
		c.mu.Unlock()
		close(s.done)
		_ = conn.Close()
		c.failPending()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Debug("bridge frame undecodable", "error", err)
			continue
		}
		switch f.Type {
		case FrameResponse:
			c.resolve(f)
		case FrameEvent:
			c.handleEvent(ctx, f)
		default:
			c.logger.Debug("bridge frame ignored", "type", f.Type)
		}
	}
}

func (c *Client) handleEvent(ctx context.Context, f Frame) {
	switch f.Event {
	case EventMessage:
		var msg transport.Message
		if err := json.Unmarshal(f.Payload, &msg); err != nil {
			c.logger.Warn("bridge message undecodable", "error", err)
			return
		}
		select {
		case c.messages <- msg:
		case <-ctx.Done():
		}
	case EventConnection:
		var ev ConnectionEvent
		if err := json.Unmarshal(f.Payload, &ev); err != nil {
			c.logger.Warn("bridge connection event undecodable", "error", err)
			return
		}
		if ev.SelfID != "" {
			c.selfID.Store(ev.SelfID)
		}
		if ev.State != "" {
			transport.NotifyState(c.states, ev.State)
		}
	default:
		c.logger.Debug("bridge event ignored", "event", f.Event)
	}
}

func (c *Client) resolve(f Frame) {
	c.pendingMu.Lock()
	ch, ok := c.pending[f.ID]
	delete(c.pending, f.ID)
	c.pendingMu.Unlock()
	if ok {
		ch <- f
	}
}

func (c *Client) failPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// call sends a request and decodes the response payload into out.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()
	if s == nil {
		return fmt.Errorf("%s: %w", method, ErrNotConnected)
	}

	id := fmt.Sprintf("h-%d", c.nextID.Add(1))
	ch := make(chan Frame, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	forget := func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}

	data, err := json.Marshal(Frame{Type: FrameRequest, ID: id, Method: method, Params: params})
	if err != nil {
		forget()
		return fmt.Errorf("%s: encode: %w", method, err)
	}
	s.writeMu.Lock()
	err = s.conn.WriteMessage(websocket.TextMessage, data)
	s.writeMu.Unlock()
	if err != nil {
		forget()
		return fmt.Errorf("%s: write: %w", method, err)
	}

	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case res, ok := <-ch:
		if !ok {
			return fmt.Errorf("%s: %w", method, ErrNotConnected)
		}
		if res.Error != nil {
			return fmt.Errorf("%s: %w", method, res.Error)
		}
		if !res.OK {
			return fmt.Errorf("%s: rejected", method)
		}
		if out != nil && len(res.Payload) > 0 {
			if err := json.Unmarshal(res.Payload, out); err != nil {
				return fmt.Errorf("%s: decode payload: %w", method, err)
			}
		}
		return nil
	case <-timer.C:
		forget()
		return fmt.Errorf("%s: timeout after %s", method, c.cfg.RequestTimeout)
	case <-ctx.Done():
		forget()
		return ctx.Err()
	case <-s.done:
		return fmt.Errorf("%s: %w", method, ErrNotConnected)
	}
}

func (c *Client) SendMessage(ctx context.Context, chatID string, content transport.Content, opts transport.SendOptions) error {
	return c.call(ctx, MethodSend, SendParams{ChatID: chatID, Content: content, Options: opts}, nil)
}

func (c *Client) GroupMetadata(ctx context.Context, chatID string) (*transport.GroupMetadata, error) {
	var meta transport.GroupMetadata
	if err := c.call(ctx, MethodGroupMetadata, chatParams{ChatID: chatID}, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (c *Client) Chats(ctx context.Context) ([]transport.Chat, error) {
	var chats []transport.Chat
	if err := c.call(ctx, MethodChats, struct{}{}, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}
