package wsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/herald/internal/transport"
)

// fakeBridge answers requests through handle and lets tests push events.
type fakeBridge struct {
	t      *testing.T
	srv    *httptest.Server
	handle func(Frame) *Frame

	mu       sync.Mutex
	conns    chan *websocket.Conn
	authSeen string
	requests []Frame
}

func newFakeBridge(t *testing.T, handle func(Frame) *Frame) *fakeBridge {
	t.Helper()
	b := &fakeBridge{t: t, handle: handle, conns: make(chan *websocket.Conn, 4)}
	upgrader := websocket.Upgrader{}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.authSeen = r.Header.Get("Authorization")
		b.mu.Unlock()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.conns <- conn
		var writeMu sync.Mutex
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f Frame
			if json.Unmarshal(data, &f) != nil {
				continue
			}
			b.mu.Lock()
			b.requests = append(b.requests, f)
			b.mu.Unlock()
			if b.handle == nil {
				continue
			}
			if res := b.handle(f); res != nil {
				res.Type = FrameResponse
				res.ID = f.ID
				writeMu.Lock()
				_ = conn.WriteJSON(res)
				writeMu.Unlock()
			}
		}
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBridge) url() string { return "ws" + strings.TrimPrefix(b.srv.URL, "http") }

func (b *fakeBridge) nextConn() *websocket.Conn {
	b.t.Helper()
	select {
	case c := <-b.conns:
		return c
	case <-time.After(3 * time.Second):
		b.t.Fatal("client never connected")
		return nil
	}
}

func startClient(t *testing.T, b *fakeBridge, cfg Config) (*Client, context.CancelFunc, chan error) {
	t.Helper()
	cfg.URL = b.url()
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = 50 * time.Millisecond
	}
	c := New(cfg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()
	t.Cleanup(cancel)
	return c, cancel, done
}

func waitConnected(t *testing.T, c *Client) {
	t.Helper()
	require.Eventually(t, c.Connected, 3*time.Second, 10*time.Millisecond)
}

func TestCallsRoundTrip(t *testing.T) {
	b := newFakeBridge(t, func(f Frame) *Frame {
		switch f.Method {
		case MethodSend:
			return &Frame{OK: true}
		case MethodGroupMetadata:
			return &Frame{OK: true, Payload: json.RawMessage(`{"id":"9@g.us","participants":[{"id":"1@s.whatsapp.net","admin":"superadmin"}]}`)}
		case MethodChats:
			return &Frame{OK: true, Payload: json.RawMessage(`[{"id":"9@g.us","is_group":true}]`)}
		}
		return &Frame{Error: &FrameError{Code: "unknown_method", Message: f.Method}}
	})
	c, _, _ := startClient(t, b, Config{Token: "tok"})
	b.nextConn()
	waitConnected(t, c)
	ctx := context.Background()

	require.NoError(t, c.SendMessage(ctx, "1@s.whatsapp.net", transport.Content{Text: "hi"}, transport.SendOptions{}))

	meta, err := c.GroupMetadata(ctx, "9@g.us")
	require.NoError(t, err)
	assert.True(t, meta.IsAdmin("1@s.whatsapp.net"))

	chats, err := c.Chats(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.True(t, chats[0].IsGroup)

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Equal(t, "Bearer tok", b.authSeen)
	require.Len(t, b.requests, 3)
	params, _ := json.Marshal(b.requests[0].Params)
	assert.JSONEq(t, `{"chat_id":"1@s.whatsapp.net","content":{"text":"hi"},"options":{}}`, string(params))
}

func TestCallErrorResponse(t *testing.T) {
	b := newFakeBridge(t, func(f Frame) *Frame {
		return &Frame{Error: &FrameError{Code: "not_found", Message: "no such group"}}
	})
	c, _, _ := startClient(t, b, Config{})
	b.nextConn()
	waitConnected(t, c)

	_, err := c.GroupMetadata(context.Background(), "9@g.us")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such group")
	var fe *FrameError
	assert.True(t, errors.As(err, &fe))
}

func TestCallTimeout(t *testing.T) {
	b := newFakeBridge(t, nil)
	c, _, _ := startClient(t, b, Config{RequestTimeout: 100 * time.Millisecond})
	b.nextConn()
	waitConnected(t, c)

	err := c.SendMessage(context.Background(), "c", transport.Content{Text: "x"}, transport.SendOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestCallWithoutSession(t *testing.T) {
	c := New(Config{URL: "ws://127.0.0.1:1"}, nil)
	err := c.SendMessage(context.Background(), "c", transport.Content{Text: "x"}, transport.SendOptions{})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestEventsBecomeMessagesAndStates(t *testing.T) {
	b := newFakeBridge(t, nil)
	c, _, _ := startClient(t, b, Config{SelfID: "initial"})
	conn := b.nextConn()
	waitConnected(t, c)

	require.NoError(t, conn.WriteJSON(Frame{Type: FrameEvent, Event: EventConnection,
		Payload: json.RawMessage(`{"state":"open","self_id":"15550009999@s.whatsapp.net"}`)}))
	require.NoError(t, conn.WriteJSON(Frame{Type: FrameEvent, Event: EventMessage,
		Payload: json.RawMessage(`{"id":"M1","chat_id":"1@s.whatsapp.net","conversation":".ping"}`)}))

	select {
	case msg := <-c.Messages():
		assert.Equal(t, "M1", msg.ID)
		assert.Equal(t, ".ping", msg.Conversation)
	case <-time.After(3 * time.Second):
		t.Fatal("message event not delivered")
	}
	assert.Equal(t, "15550009999@s.whatsapp.net", c.SelfID())

	var states []transport.ConnectionState
	for len(c.States()) > 0 {
		states = append(states, <-c.States())
	}
	assert.Equal(t, []transport.ConnectionState{
		transport.StateConnecting, transport.StateOpen, transport.StateOpen,
	}, states)
}

func TestReconnectsAfterDrop(t *testing.T) {
	b := newFakeBridge(t, func(Frame) *Frame { return &Frame{OK: true} })
	c, _, _ := startClient(t, b, Config{})

	first := b.nextConn()
	waitConnected(t, c)
	_ = first.Close()

	b.nextConn()
	waitConnected(t, c)
	assert.NoError(t, c.SendMessage(context.Background(), "c", transport.Content{Text: "x"}, transport.SendOptions{}))
}

func TestStartReturnsOnCancel(t *testing.T) {
	b := newFakeBridge(t, nil)
	c, cancel, done := startClient(t, b, Config{})
	b.nextConn()
	waitConnected(t, c)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Start did not return")
	}
	_, open := <-c.Messages()
	assert.False(t, open)
	assert.False(t, c.Connected())
}
