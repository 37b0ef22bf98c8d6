package plugin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/herald/internal/command"
)

type fakeResponder struct {
	replies []string
	reacts  []string
	fail    error
}

func (f *fakeResponder) Reply(_ context.Context, _ *command.Invocation, text string) error {
	if f.fail != nil {
		return f.fail
	}
	f.replies = append(f.replies, text)
	return nil
}

func (f *fakeResponder) React(_ context.Context, _ *command.Invocation, emoji string) error {
	f.reacts = append(f.reacts, emoji)
	return nil
}

func newExecHandler(t *testing.T, script string, timeout time.Duration) *ExecHandler {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "run.sh")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return &ExecHandler{Entrypoint: path, Dir: dir, Timeout: timeout, grace: 200 * time.Millisecond}
}

func newTestContext(resp command.Responder) *command.Context {
	reg := command.NewRegistry(".")
	d := reg.MustRegister(&command.Descriptor{
		Name:    "echo",
		Handler: command.HandlerFunc(func(context.Context, *command.Context) error { return nil }),
	})
	inv := &command.Invocation{
		ID:       "inv-1",
		Name:     "echo",
		Args:     []string{"hello", "world"},
		ArgText:  "hello world",
		SenderID: "1555@s.whatsapp.net",
		ChatID:   "1555@s.whatsapp.net",
	}
	return command.NewContext(inv, d, reg, resp)
}

func TestExecHandlerRepliesFromResponse(t *testing.T) {
	// The script echoes the first arg back, proving the request reached stdin.
	h := newExecHandler(t, `#!/bin/sh
read -r line
case "$line" in
  *'"args":["hello","world"]'*) arg=hello ;;
  *) arg=missing ;;
esac
printf '{"status":"ok","replies":[{"text":"%s"}],"reactions":["✅"],"logs":[{"level":"info","message":"ran"}]}\n' "$arg"
`, 5*time.Second)

	resp := &fakeResponder{}
	err := h.Handle(context.Background(), newTestContext(resp))
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, resp.replies)
	assert.Equal(t, []string{"✅"}, resp.reacts)
}

func TestExecHandlerErrorStatus(t *testing.T) {
	h := newExecHandler(t, `#!/bin/sh
cat >/dev/null
echo '{"status":"error","error":"city not found","replies":[{"text":"no such city"}]}'
`, 5*time.Second)

	resp := &fakeResponder{}
	err := h.Handle(context.Background(), newTestContext(resp))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "city not found")
	assert.Equal(t, []string{"no such city"}, resp.replies)
}

func TestExecHandlerInvalidOutput(t *testing.T) {
	h := newExecHandler(t, "#!/bin/sh\ncat >/dev/null\necho not-json\n", 5*time.Second)

	err := h.Handle(context.Background(), newTestContext(&fakeResponder{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestExecHandlerNonZeroExitWithResponse(t *testing.T) {
	h := newExecHandler(t, "#!/bin/sh\ncat >/dev/null\necho '{\"status\":\"ok\"}'\nexit 3\n", 5*time.Second)

	err := h.Handle(context.Background(), newTestContext(&fakeResponder{}))
	assert.NoError(t, err)
}

func TestExecHandlerTimeout(t *testing.T) {
	h := newExecHandler(t, "#!/bin/sh\nexec sleep 30\n", 300*time.Millisecond)

	start := time.Now()
	err := h.Handle(context.Background(), newTestContext(&fakeResponder{}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout), "got %v", err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExecHandlerIgnoresSIGTERM(t *testing.T) {
	h := newExecHandler(t, "#!/bin/sh\ntrap '' TERM\nwhile true; do sleep 0.1; done\n", 200*time.Millisecond)

	start := time.Now()
	err := h.Handle(context.Background(), newTestContext(&fakeResponder{}))
	require.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExecHandlerContextCancel(t *testing.T) {
	h := newExecHandler(t, "#!/bin/sh\nexec sleep 30\n", time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	err := h.Handle(ctx, newTestContext(&fakeResponder{}))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecHandlerReplyFailure(t *testing.T) {
	h := newExecHandler(t, "#!/bin/sh\ncat >/dev/null\necho '{\"status\":\"ok\",\"replies\":[{\"text\":\"hi\"}]}'\n", 5*time.Second)

	err := h.Handle(context.Background(), newTestContext(&fakeResponder{fail: errors.New("offline")}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "offline")
}

func TestCappedBuffer(t *testing.T) {
	b := &cappedBuffer{limit: 8}
	n, err := b.Write([]byte("0123456789"))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	_, _ = b.Write([]byte("more"))
	assert.Equal(t, "01234567", b.String())
}

func TestPluginLogLevel(t *testing.T) {
	for in, want := range map[string]string{
		"debug":   "DEBUG",
		"WARNING": "WARN",
		"error":   "ERROR",
		"info":    "INFO",
		"":        "INFO",
	} {
		assert.Equal(t, want, strings.ToUpper(pluginLogLevel(in).String()), in)
	}
}
