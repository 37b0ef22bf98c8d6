package watch

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/herald/internal/events"
)

// CommandStats aggregates what the event stream has shown for one command.
type CommandStats struct {
	Name        string
	Active      int
	Runs        int
	Failures    int
	Denials     int
	LastOutcome string
	LastReason  string
	LastLatency time.Duration
	LastSeen    time.Time
}

type commandPayload struct {
	InvocationID string `json:"invocation_id"`
	Command      string `json:"command"`
	Sender       string `json:"sender"`
	Chat         string `json:"chat"`
	Outcome      string `json:"outcome"`
	Reason       string `json:"reason"`
	Remaining    int    `json:"remaining"`
	Error        string `json:"error"`
	DurationMs   int64  `json:"duration_ms"`
}

// updateCommandStats folds one command.* event into stats. inFlight maps
// invocation ids to command names so a finish can close its start.
func updateCommandStats(stats map[string]*CommandStats, inFlight map[string]string, e events.Event) {
	switch e.Type {
	case events.TypeCommandStarted, events.TypeCommandCompleted, events.TypeCommandFailed, events.TypeCommandDenied:
	default:
		return
	}

	var p commandPayload
	if err := json.Unmarshal(e.Data, &p); err != nil || p.Command == "" {
		return
	}
	s, ok := stats[p.Command]
	if !ok {
		s = &CommandStats{Name: p.Command}
		stats[p.Command] = s
	}
	s.LastSeen = e.At

	if e.Type == events.TypeCommandStarted {
		if _, seen := inFlight[p.InvocationID]; !seen {
			inFlight[p.InvocationID] = p.Command
			s.Active++
		}
		return
	}

	if _, started := inFlight[p.InvocationID]; started {
		delete(inFlight, p.InvocationID)
		if s.Active > 0 {
			s.Active--
		}
	}
	s.LastOutcome = p.Outcome
	s.LastReason = p.Reason
	s.LastLatency = time.Duration(p.DurationMs) * time.Millisecond
	switch e.Type {
	case events.TypeCommandDenied:
		s.Denials++
	case events.TypeCommandFailed:
		s.Runs++
		s.Failures++
	default:
		s.Runs++
	}
}

func sortedCommandNames(stats map[string]*CommandStats) []string {
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newCommandTable(theme Theme) table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "Command", Width: 16},
			{Title: "Runs", Width: 6},
			{Title: "Fail", Width: 6},
			{Title: "Denied", Width: 7},
			{Title: "Last", Width: 22},
			{Title: "Latency", Width: 9},
		}),
		table.WithFocused(true),
		table.WithHeight(8),
	)
	t.SetStyles(theme.tableStyles())
	return t
}

func commandRows(stats map[string]*CommandStats) []table.Row {
	names := sortedCommandNames(stats)
	rows := make([]table.Row, 0, len(names))
	for _, name := range names {
		s := stats[name]
		last := s.LastOutcome
		if s.LastReason != "" {
			last += " (" + s.LastReason + ")"
		}
		latency := "-"
		if s.LastOutcome != "" {
			latency = fmt.Sprintf("%dms", s.LastLatency.Milliseconds())
		}
		rows = append(rows, table.Row{
			statusIcon(s),
			s.Name,
			fmt.Sprint(s.Runs),
			fmt.Sprint(s.Failures),
			fmt.Sprint(s.Denials),
			last,
			latency,
		})
	}
	return rows
}

func statusIcon(s *CommandStats) string {
	switch {
	case s.Active > 0:
		return "▶"
	case s.LastOutcome == "failed":
		return "✗"
	case s.LastOutcome == "denied":
		return "⊘"
	case s.LastOutcome != "":
		return "✓"
	default:
		return "·"
	}
}

func renderCommands(t table.Model, empty bool, theme Theme, width int) string {
	body := t.View()
	if empty {
		body = theme.Dim.Render("  No command activity yet...")
	}
	content := lipgloss.JoinVertical(lipgloss.Left, theme.Title.Render("COMMANDS"), body)
	return theme.Border.Width(width - 4).Render(content)
}
