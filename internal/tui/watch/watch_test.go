package watch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/herald/internal/events"
)

func event(t *testing.T, id int64, typ string, data any) events.Event {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return events.Event{ID: id, Type: typ, At: time.Unix(1700000000, 0), Data: raw}
}

func TestUpdateCommandStats(t *testing.T) {
	stats := map[string]*CommandStats{}
	inFlight := map[string]string{}

	updateCommandStats(stats, inFlight, event(t, 1, events.TypeCommandStarted, map[string]any{"invocation_id": "a", "command": "ping"}))
	require.Contains(t, stats, "ping")
	assert.Equal(t, 1, stats["ping"].Active)
	assert.Equal(t, "▶", statusIcon(stats["ping"]))

	updateCommandStats(stats, inFlight, event(t, 2, events.TypeCommandCompleted, map[string]any{
		"invocation_id": "a", "command": "ping", "outcome": "executed", "duration_ms": 12,
	}))
	assert.Equal(t, 0, stats["ping"].Active)
	assert.Equal(t, 1, stats["ping"].Runs)
	assert.Equal(t, 12*time.Millisecond, stats["ping"].LastLatency)
	assert.Empty(t, inFlight)

	updateCommandStats(stats, inFlight, event(t, 3, events.TypeCommandDenied, map[string]any{
		"invocation_id": "b", "command": "ping", "outcome": "denied", "reason": "cooldown",
	}))
	assert.Equal(t, 1, stats["ping"].Denials)
	assert.Equal(t, 0, stats["ping"].Active)
	assert.Equal(t, "⊘", statusIcon(stats["ping"]))

	updateCommandStats(stats, inFlight, event(t, 4, events.TypeCommandStarted, map[string]any{"invocation_id": "c", "command": "dice"}))
	updateCommandStats(stats, inFlight, event(t, 5, events.TypeCommandFailed, map[string]any{
		"invocation_id": "c", "command": "dice", "outcome": "failed", "error": "boom",
	}))
	assert.Equal(t, 1, stats["dice"].Failures)
	assert.Equal(t, 1, stats["dice"].Runs)
	assert.Equal(t, "✗", statusIcon(stats["dice"]))

	updateCommandStats(stats, inFlight, event(t, 6, events.TypeConnection, map[string]any{"state": "open"}))
	assert.Len(t, stats, 2)

	rows := commandRows(stats)
	require.Len(t, rows, 2)
	assert.Equal(t, "dice", rows[0][1])
	assert.Equal(t, "denied (cooldown)", rows[1][5])
}

func TestReadStream(t *testing.T) {
	stream := "id: 3\nevent: command.started\ndata: {\"command\":\"ping\"}\n\n" +
		": keep-alive\n\n" +
		"id: 4\nevent: connection.state\ndata: {\"state\":\"open\"}\n\n"
	ch := make(chan events.Event, 4)

	last := readStream(bufio.NewScanner(strings.NewReader(stream)), 2, ch)
	assert.Equal(t, int64(4), last)
	require.Len(t, ch, 2)
	first := <-ch
	assert.Equal(t, int64(3), first.ID)
	assert.Equal(t, "command.started", first.Type)
	assert.JSONEq(t, `{"command":"ping"}`, string(first.Data))
	assert.False(t, first.At.IsZero())
}

func TestSubscribeToEventsResumes(t *testing.T) {
	var gotLastID, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLastID = r.Header.Get("Last-Event-ID")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "id: 8\nevent: command.completed\ndata: {\"command\":\"menu\"}\n\n")
	}))
	defer srv.Close()

	ch := make(chan events.Event, 4)
	msg := subscribeToEvents(srv.URL, "tok", 7, ch)()

	assert.Equal(t, "7", gotLastID)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, sseDisconnectedMsg{lastID: 8}, msg)
	require.Len(t, ch, 1)
}

func TestSubscribeToEventsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	msg := subscribeToEvents(srv.URL, "tok", 0, make(chan events.Event, 1))()
	err, ok := msg.(errMsg)
	require.True(t, ok, "got %T", msg)
	assert.Contains(t, err.Error(), "403")
}

func TestFetchHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/healthz", r.URL.Path)
		fmt.Fprint(w, `{"status":"ok","connection":"open","uptime_seconds":90,"commands":7}`)
	}))
	defer srv.Close()

	msg := fetchHealth(srv.URL, "tok")
	assert.Equal(t, healthMsg{Status: "ok", Connection: "open", UptimeSeconds: 90, Commands: 7}, msg)
}

func TestModelRendersActivity(t *testing.T) {
	now := time.Unix(1700000100, 0)
	m := New("http://127.0.0.1:0", "tok")
	m.now = func() time.Time { return now }

	var model tea.Model = *m
	model, _ = model.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	model, _ = model.Update(healthMsg{Status: "ok", Connection: "open", UptimeSeconds: 125, Commands: 7})
	model, _ = model.Update(eventMsg(event(t, 1, events.TypeCommandCompleted, map[string]any{
		"invocation_id": "a", "command": "ping", "sender": "15550001111@s.whatsapp.net", "outcome": "executed",
	})))
	model, _ = model.Update(eventMsg(event(t, 2, events.TypeRegistryReloaded, map[string]any{"commands": 9})))

	got := model.(Model)
	assert.Equal(t, int64(2), got.lastID)
	assert.Equal(t, 9, got.health.Commands)
	assert.Len(t, got.eventLog, 2)
	assert.Equal(t, 5, got.activity.dots)

	view := got.View()
	assert.Contains(t, view, "HERALD WATCH")
	assert.Contains(t, view, "CONNECTED")
	assert.Contains(t, view, "2m 5s")
	assert.Contains(t, view, "ping")
	assert.Contains(t, view, "by 15550001111")
	assert.Contains(t, view, "9 commands")
}

func TestModelDisconnectSchedulesResume(t *testing.T) {
	m := New("http://127.0.0.1:0", "tok")
	model, cmd := tea.Model(*m).Update(sseDisconnectedMsg{lastID: 12})
	got := model.(Model)
	assert.Equal(t, int64(12), got.lastID)
	assert.Contains(t, got.lastError, "reconnecting")
	assert.NotNil(t, cmd)

	model, _ = got.Update(errMsg(fmt.Errorf("dial tcp: refused")))
	got = model.(Model)
	assert.False(t, got.health.Reachable)
	assert.Equal(t, "dial tcp: refused", got.lastError)
}

func TestActivityDecay(t *testing.T) {
	start := time.Unix(1700000000, 0)
	var a activity
	a.onEvent(start)
	a.decay(start.Add(3 * time.Second))
	assert.Equal(t, 4, a.dots)
	a.decay(start.Add(11 * time.Second))
	assert.Equal(t, 0, a.dots)
}
