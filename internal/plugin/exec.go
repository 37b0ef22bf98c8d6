package plugin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mattjoyce/herald/internal/command"
	"github.com/mattjoyce/herald/internal/protocol"
)

const (
	// maxStderrBytes caps the amount of stderr captured from a plugin run.
	maxStderrBytes = 64 * 1024

	// terminationGracePeriod is the time we wait after SIGTERM before sending SIGKILL.
	terminationGracePeriod = 5 * time.Second
)

// ErrTimeout is returned when a plugin exceeds its timeout.
var ErrTimeout = errors.New("plugin timed out")

// ExecHandler runs a command plugin as a subprocess speaking the JSON protocol.
type ExecHandler struct {
	Entrypoint string
	Dir        string
	Timeout    time.Duration
	Config     map[string]any
	Logger     *slog.Logger

	// grace overrides terminationGracePeriod in tests.
	grace time.Duration
}

// Handle implements command.Handler.
func (h *ExecHandler) Handle(ctx context.Context, c *command.Context) error {
	inv := c.Invocation
	req := &protocol.Request{
		Protocol:     protocol.Version,
		InvocationID: inv.ID,
		Command:      c.Descriptor.Name,
		Args:         inv.Args,
		ArgText:      inv.ArgText,
		Sender:       inv.SenderID,
		PushName:     inv.PushName,
		Chat:         inv.ChatID,
		IsGroup:      inv.IsGroup,
		Mentions:     inv.Mentions,
		Prefix:       c.Prefix(),
		Config:       h.Config,
		DeadlineAt:   time.Now().Add(h.Timeout),
	}
	if inv.Quoted != nil {
		req.Quoted = &protocol.Quoted{
			ID:          inv.Quoted.ID,
			Participant: inv.Quoted.Participant,
			Text:        inv.Quoted.Text,
		}
	}

	logger := h.logger().With("invocation_id", inv.ID)
	resp, stderr, err := h.spawn(ctx, req, logger)
	if stderr != "" {
		logger.Debug("plugin stderr", "stderr", stderr)
	}
	if err != nil {
		return fmt.Errorf("run %s: %w", c.Descriptor.Name, err)
	}

	for _, entry := range resp.Logs {
		logger.Log(ctx, pluginLogLevel(entry.Level), entry.Message, "source", "plugin")
	}

	// Replies and reactions are delivered even for error responses so a
	// plugin can explain its own failure.
	for _, reply := range resp.Replies {
		if err := c.Reply(ctx, reply.Text); err != nil {
			return fmt.Errorf("send reply: %w", err)
		}
	}
	for _, emoji := range resp.Reactions {
		if err := c.React(ctx, emoji); err != nil {
			logger.Warn("failed to send reaction", "error", err)
		}
	}

	if resp.Status == "error" {
		return fmt.Errorf("plugin %s reported error: %s", c.Descriptor.Name, resp.Error)
	}
	return nil
}

func (h *ExecHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// spawn runs the entrypoint once. On timeout or cancellation the process gets
// SIGTERM, then SIGKILL after the grace period.
func (h *ExecHandler) spawn(ctx context.Context, req *protocol.Request, logger *slog.Logger) (*protocol.Response, string, error) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	timeoutTimer := time.NewTimer(timeout)
	defer timeoutTimer.Stop()

	cmd := exec.Command(h.Entrypoint)
	cmd.Dir = h.Dir
	// Orphaned grandchildren may hold stdout open after the plugin exits.
	cmd.WaitDelay = time.Second

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, "", fmt.Errorf("create stdin pipe: %w", err)
	}

	var stdout bytes.Buffer
	stderr := &cappedBuffer{limit: maxStderrBytes}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	logger.Debug("spawning plugin", "entrypoint", h.Entrypoint, "timeout", timeout)

	if err := cmd.Start(); err != nil {
		return nil, "", fmt.Errorf("start process: %w", err)
	}

	writeErr := make(chan error, 1)
	go func() {
		defer stdin.Close()
		if err := protocol.EncodeRequest(stdin, req); err != nil {
			writeErr <- fmt.Errorf("encode request: %w", err)
			return
		}
		writeErr <- nil
	}()

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	var cause error
	select {
	case <-timeoutTimer.C:
		cause = ErrTimeout
	case <-ctx.Done():
		cause = ctx.Err()
	case err := <-waitErr:
		// A plugin may exit without reading stdin; the broken pipe is not
		// interesting when it produced a response.
		werr := <-writeErr
		if err != nil && !errors.Is(err, exec.ErrWaitDelay) {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				return nil, stderr.String(), fmt.Errorf("wait for process: %w", err)
			}
			logger.Warn("plugin exited with non-zero status", "exit_code", exitErr.ExitCode())
		}

		resp, raw, err := protocol.DecodeResponseLenient(bytes.NewReader(stdout.Bytes()))
		if err != nil {
			if werr != nil {
				return nil, stderr.String(), werr
			}
			logger.Error("failed to decode plugin response", "error", err, "stdout", string(raw))
			return nil, stderr.String(), fmt.Errorf("decode response: %w", err)
		}
		return resp, stderr.String(), nil
	}

	logger.Warn("stopping plugin, sending SIGTERM", "reason", cause)
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		logger.Error("failed to send SIGTERM", "error", err)
	}

	grace := h.grace
	if grace <= 0 {
		grace = terminationGracePeriod
	}
	graceTimer := time.NewTimer(grace)
	defer graceTimer.Stop()

	select {
	case <-waitErr:
		logger.Info("plugin exited after SIGTERM")
	case <-graceTimer.C:
		logger.Warn("plugin did not exit after SIGTERM, sending SIGKILL")
		if err := cmd.Process.Kill(); err != nil {
			logger.Error("failed to send SIGKILL", "error", err)
		}
		<-waitErr
	}
	return nil, stderr.String(), cause
}

func pluginLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// cappedBuffer keeps the first limit bytes written and discards the rest.
type cappedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
