package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/herald/internal/events"
)

const eventLogSize = 50

func renderEventStream(eventLog []events.Event, theme Theme, width int) string {
	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENT STREAM"),
			theme.Dim.Render("  Waiting for events..."),
		)
		return theme.Border.Width(width - 4).Render(content)
	}

	var lines []string
	for i, e := range eventLog {
		if i >= 10 {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EVENT STREAM"),
		lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n")),
	)
	return theme.Border.Width(width - 4).Render(content)
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Format("15:04:05"))

	var typeStyle lipgloss.Style
	switch e.Type {
	case events.TypeCommandCompleted, events.TypeBroadcastDone, events.TypeRegistryReloaded:
		typeStyle = theme.OK
	case events.TypeCommandFailed:
		typeStyle = theme.Failed
	case events.TypeCommandDenied:
		typeStyle = theme.Denied
	case events.TypeCommandStarted:
		typeStyle = theme.Running
	case events.TypeConnection:
		typeStyle = theme.Highlight
	default:
		typeStyle = theme.Dim
	}

	return fmt.Sprintf("%s %s %s", ts, typeStyle.Render(fmt.Sprintf("%-20s", e.Type)), describeEvent(e))
}

// describeEvent picks the few payload fields worth a glance.
func describeEvent(e events.Event) string {
	data := make(map[string]any)
	_ = json.Unmarshal(e.Data, &data)

	var parts []string
	if cmd, ok := data["command"].(string); ok && cmd != "" {
		parts = append(parts, cmd)
	}
	if sender, ok := data["sender"].(string); ok && sender != "" {
		parts = append(parts, "by "+shortID(sender))
	}
	if reason, ok := data["reason"].(string); ok && reason != "" {
		parts = append(parts, reason)
	}
	if errText, ok := data["error"].(string); ok && errText != "" {
		parts = append(parts, truncate(errText, 40))
	}
	if state, ok := data["state"].(string); ok {
		parts = append(parts, state)
	}
	if n, ok := data["commands"].(float64); ok {
		parts = append(parts, fmt.Sprintf("%d commands", int(n)))
	}
	if sent, ok := data["sent"].(float64); ok {
		total, _ := data["total"].(float64)
		parts = append(parts, fmt.Sprintf("%d/%d sent", int(sent), int(total)))
	}

	if len(parts) == 0 {
		return truncate(string(e.Data), 60)
	}
	return strings.Join(parts, " ")
}

// shortID drops the server part of a chat id.
func shortID(id string) string {
	if i := strings.IndexByte(id, '@'); i > 0 {
		return id[:i]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
