// Package webhook is the HTTP transport adapter. The bridge POSTs signed
// events to /inbound; herald calls the bridge's send, group and chat
// endpoints with requests signed the same way.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/herald/internal/config"
	"github.com/mattjoyce/herald/internal/transport"
)

const (
	DefaultMaxBodySize     = 1 << 20
	DefaultSignatureHeader = "X-Herald-Signature"

	inboundBuffer = 256
)

// Config holds the resolved adapter settings.
type Config struct {
	Listen          string
	Secret          string
	SendURL         string
	SignatureHeader string
	MaxBodySize     int64
	SelfID          string
}

// FromConfig converts the transport section of the global config.
func FromConfig(tc config.TransportConfig) (Config, error) {
	wc := tc.Webhook
	if wc.Secret == "" {
		return Config{}, errors.New("webhook transport: secret is required")
	}
	if wc.SendURL == "" {
		return Config{}, errors.New("webhook transport: send_url is required")
	}
	cfg := Config{
		Listen:          wc.Listen,
		Secret:          wc.Secret,
		SendURL:         wc.SendURL,
		SignatureHeader: wc.SignatureHeader,
		MaxBodySize:     DefaultMaxBodySize,
		SelfID:          tc.SelfID,
	}
	if wc.MaxBodySize != "" {
		n, err := config.ParseSize(wc.MaxBodySize)
		if err != nil {
			return Config{}, fmt.Errorf("webhook transport: max_body_size: %w", err)
		}
		cfg.MaxBodySize = n
	}
	if cfg.SignatureHeader == "" {
		cfg.SignatureHeader = DefaultSignatureHeader
	}
	return cfg, nil
}

// Inbound is the body of a POST /inbound request.
type Inbound struct {
	Type    string                    `json:"type"` // message | connection
	Message *transport.Message        `json:"message,omitempty"`
	State   transport.ConnectionState `json:"state,omitempty"`
	SelfID  string                    `json:"self_id,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Adapter implements transport.Transport over HTTP.
type Adapter struct {
	cfg    Config
	client *Client
	logger *slog.Logger

	messages chan transport.Message
	states   chan transport.ConnectionState
	selfID   atomic.Value // string

	ready     chan struct{}
	readyOnce sync.Once
	addr      atomic.Value // string
}

var _ transport.Transport = (*Adapter)(nil)

// New creates an adapter. httpClient may be nil.
func New(cfg Config, httpClient *http.Client, logger *slog.Logger) *Adapter {
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.SignatureHeader == "" {
		cfg.SignatureHeader = DefaultSignatureHeader
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	a := &Adapter{
		cfg:      cfg,
		client:   NewClient(cfg.SendURL, cfg.Secret, cfg.SignatureHeader, httpClient),
		logger:   logger,
		messages: make(chan transport.Message, inboundBuffer),
		states:   make(chan transport.ConnectionState, 8),
		ready:    make(chan struct{}),
	}
	a.selfID.Store(cfg.SelfID)
	return a
}

func (a *Adapter) Messages() <-chan transport.Message { return a.messages }

func (a *Adapter) States() <-chan transport.ConnectionState { return a.states }

func (a *Adapter) SelfID() string { return a.selfID.Load().(string) }

func (a *Adapter) SendMessage(ctx context.Context, chatID string, content transport.Content, opts transport.SendOptions) error {
	return a.client.SendMessage(ctx, chatID, content, opts)
}

func (a *Adapter) GroupMetadata(ctx context.Context, chatID string) (*transport.GroupMetadata, error) {
	return a.client.GroupMetadata(ctx, chatID)
}

func (a *Adapter) Chats(ctx context.Context) ([]transport.Chat, error) {
	return a.client.Chats(ctx)
}

// Addr returns the bound listen address once Start is serving.
func (a *Adapter) Addr() string {
	s, _ := a.addr.Load().(string)
	return s
}

// Ready is closed once the listener is bound.
func (a *Adapter) Ready() <-chan struct{} { return a.ready }

// Start serves /inbound until ctx is cancelled, then closes Messages.
func (a *Adapter) Start(ctx context.Context) error {
	transport.NotifyState(a.states, transport.StateConnecting)

	ln, err := net.Listen("tcp", a.cfg.Listen)
	if err != nil {
		transport.NotifyState(a.states, transport.StateClosed)
		close(a.messages)
		return fmt.Errorf("webhook listen %s: %w", a.cfg.Listen, err)
	}
	a.addr.Store(ln.Addr().String())

	srv := &http.Server{
		Handler:      a.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	a.logger.Info("webhook transport listening", "listen", ln.Addr().String())
	a.readyOnce.Do(func() { close(a.ready) })
	transport.NotifyState(a.states, transport.StateOpen)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var result error
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			result = fmt.Errorf("webhook shutdown: %w", err)
		}
	case err := <-errCh:
		if err != nil {
			result = fmt.Errorf("webhook serve: %w", err)
		}
	}

	// Shutdown waits for in-flight handlers, so nothing sends after this.
	close(a.messages)
	transport.NotifyState(a.states, transport.StateClosed)
	return result
}

// Handler returns the inbound router.
func (a *Adapter) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Post("/inbound", a.handleInbound)
	return r
}

func (a *Adapter) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.logger.Debug("webhook request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (a *Adapter) handleInbound(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, a.cfg.MaxBodySize+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if int64(len(body)) > a.cfg.MaxBodySize {
		respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}
	if err := Verify(body, r.Header.Get(a.cfg.SignatureHeader), a.cfg.Secret); err != nil {
		a.logger.Warn("inbound signature rejected", "remote_addr", r.RemoteAddr)
		respondError(w, http.StatusForbidden, "forbidden")
		return
	}

	var in Inbound
	if err := json.Unmarshal(body, &in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	switch in.Type {
	case "message":
		if in.Message == nil {
			respondError(w, http.StatusBadRequest, "message is required")
			return
		}
		select {
		case a.messages <- *in.Message:
		case <-r.Context().Done():
			respondError(w, http.StatusServiceUnavailable, "inbound queue full")
			return
		}
	case "connection":
		if in.SelfID != "" {
			a.selfID.Store(in.SelfID)
		}
		switch in.State {
		case transport.StateConnecting, transport.StateOpen, transport.StateClosed:
			transport.NotifyState(a.states, in.State)
		default:
			respondError(w, http.StatusBadRequest, "unknown connection state")
			return
		}
	default:
		respondError(w, http.StatusBadRequest, "unknown event type")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
