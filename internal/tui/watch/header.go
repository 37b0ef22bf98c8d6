package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// HealthState is the last /healthz answer.
type HealthState struct {
	Status        string
	Connection    string
	UptimeSeconds int64
	Commands      int
	Reachable     bool
	LastCheck     time.Time
}

// activity lights five dots on each event and lets them fade over ten
// seconds, so a stalled stream is visible at a glance.
type activity struct {
	dots      int
	lastEvent time.Time
}

func (a *activity) onEvent(now time.Time) {
	a.dots = 5
	a.lastEvent = now
}

func (a *activity) decay(now time.Time) {
	if a.dots == 0 {
		return
	}
	a.dots = 5 - int(now.Sub(a.lastEvent)/(2*time.Second))
	if a.dots < 0 {
		a.dots = 0
	}
}

func (a activity) render(theme Theme) string {
	var b strings.Builder
	for i := range 5 {
		if i < a.dots {
			b.WriteString(theme.DotOn.Render("●"))
		} else {
			b.WriteString(theme.DotOff.Render("○"))
		}
	}
	return b.String()
}

func renderHeader(h HealthState, act activity, now time.Time, theme Theme, width int) string {
	innerWidth := width - 4

	var bridge string
	switch {
	case !h.Reachable:
		bridge = theme.Failed.Render("🔌 API UNREACHABLE")
	case h.Connection == "open":
		bridge = theme.OK.Render("✅ CONNECTED")
	case h.Connection == "connecting" || h.Connection == "":
		bridge = theme.Running.Render("⏳ CONNECTING")
	default:
		bridge = theme.Failed.Render("⚠️ DISCONNECTED")
	}

	lastEvent := "never"
	if !act.lastEvent.IsZero() {
		lastEvent = fmt.Sprintf("%s ago", now.Sub(act.lastEvent).Round(time.Second))
	}

	title := " HERALD WATCH"
	clock := theme.Dim.Render(now.Format("15:04:05"))
	pad := innerWidth - lipgloss.Width(title) - lipgloss.Width(clock) - 4
	if pad < 1 {
		pad = 1
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		title+strings.Repeat(" ", pad)+clock+" ",
		fmt.Sprintf(" %s  ⏱ %s  Commands: %d", bridge,
			formatDuration(time.Duration(h.UptimeSeconds)*time.Second), h.Commands),
		fmt.Sprintf(" Last event: %s %s", lastEvent, act.render(theme)),
	)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
