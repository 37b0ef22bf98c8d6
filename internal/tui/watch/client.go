package watch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/herald/internal/events"
)

type eventMsg events.Event

type healthMsg struct {
	Status        string `json:"status"`
	Connection    string `json:"connection"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Commands      int    `json:"commands"`
}

type tickMsg time.Time

type errMsg error

// sseDisconnectedMsg carries the last event id seen so the next
// subscription can resume from it.
type sseDisconnectedMsg struct{ lastID int64 }

type reconnectMsg struct{ lastID int64 }

// subscribeToEvents streams /events into ch until the connection drops.
// A positive lastID is sent as Last-Event-ID so missed events are replayed.
func subscribeToEvents(apiURL, token string, lastID int64, ch chan<- events.Event) tea.Cmd {
	return func() tea.Msg {
		req, err := http.NewRequest(http.MethodGet, apiURL+"/events", nil)
		if err != nil {
			return errMsg(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "text/event-stream")
		if lastID > 0 {
			req.Header.Set("Last-Event-ID", strconv.FormatInt(lastID, 10))
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return sseDisconnectedMsg{lastID: lastID}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return errMsg(fmt.Errorf("events: %s", resp.Status))
		}

		return sseDisconnectedMsg{lastID: readStream(bufio.NewScanner(resp.Body), lastID, ch)}
	}
}

// readStream parses SSE frames and returns the highest id delivered.
func readStream(scanner *bufio.Scanner, lastID int64, ch chan<- events.Event) int64 {
	var cur events.Event
	var data string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data != "" {
				cur.Data = json.RawMessage(data)
				if cur.At.IsZero() {
					cur.At = time.Now()
				}
				ch <- cur
				if cur.ID > lastID {
					lastID = cur.ID
				}
			}
			cur, data = events.Event{}, ""
		case strings.HasPrefix(line, ":"):
			// keepalive comment
		case strings.HasPrefix(line, "id: "):
			if id, err := strconv.ParseInt(line[4:], 10, 64); err == nil {
				cur.ID = id
			}
		case strings.HasPrefix(line, "event: "):
			cur.Type = line[7:]
		case strings.HasPrefix(line, "data: "):
			data = line[6:]
		}
	}
	return lastID
}

func receiveNextEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}

func fetchHealth(apiURL, token string) tea.Msg {
	client := &http.Client{Timeout: 2 * time.Second}
	req, err := http.NewRequest(http.MethodGet, apiURL+"/healthz", nil)
	if err != nil {
		return errMsg(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return errMsg(err)
	}
	defer resp.Body.Close()

	var h healthMsg
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return errMsg(err)
	}
	return h
}
