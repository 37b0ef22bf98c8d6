package watch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/herald/internal/events"
)

// Model is the bubbletea model behind herald system watch.
type Model struct {
	apiURL string
	token  string

	width  int
	height int

	health   HealthState
	stats    map[string]*CommandStats
	inFlight map[string]string
	eventLog []events.Event
	lastID   int64
	activity activity

	theme Theme
	table table.Model

	hubEvents chan events.Event
	lastError string
	now       func() time.Time
}

// New creates a dashboard reading from the herald API at apiURL.
func New(apiURL, token string) *Model {
	theme := NewDefaultTheme()
	return &Model{
		apiURL:    apiURL,
		token:     token,
		stats:     make(map[string]*CommandStats),
		inFlight:  make(map[string]string),
		theme:     theme,
		table:     newCommandTable(theme),
		hubEvents: make(chan events.Event, 100),
		now:       time.Now,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.apiURL, m.token, 0, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		func() tea.Msg { return fetchHealth(m.apiURL, m.token) },
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(m.width - 6)

	case tickMsg:
		m.activity.decay(m.now())
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case eventMsg:
		m.applyEvent(events.Event(msg))
		return m, receiveNextEvent(m.hubEvents)

	case healthMsg:
		m.health = HealthState{
			Status:        msg.Status,
			Connection:    msg.Connection,
			UptimeSeconds: msg.UptimeSeconds,
			Commands:      msg.Commands,
			Reachable:     true,
			LastCheck:     m.now(),
		}
		m.lastError = ""
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg {
			return fetchHealth(m.apiURL, m.token)
		})

	case sseDisconnectedMsg:
		m.lastID = max(m.lastID, msg.lastID)
		m.lastError = "event stream disconnected, reconnecting..."
		// The pending receiveNextEvent keeps reading the same channel, so
		// only the subscription needs restarting.
		return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg {
			return reconnectMsg{lastID: m.lastID}
		})

	case reconnectMsg:
		return m, subscribeToEvents(m.apiURL, m.token, msg.lastID, m.hubEvents)

	case errMsg:
		m.health.Reachable = false
		m.lastError = msg.Error()
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg {
			return fetchHealth(m.apiURL, m.token)
		})
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) applyEvent(e events.Event) {
	m.eventLog = append([]events.Event{e}, m.eventLog...)
	if len(m.eventLog) > eventLogSize {
		m.eventLog = m.eventLog[:eventLogSize]
	}
	if e.ID > m.lastID {
		m.lastID = e.ID
	}
	m.activity.onEvent(m.now())

	switch e.Type {
	case events.TypeConnection:
		var p struct {
			State string `json:"state"`
		}
		if err := json.Unmarshal(e.Data, &p); err == nil {
			m.health.Connection = p.State
		}
	case events.TypeRegistryReloaded:
		var p struct {
			Commands int `json:"commands"`
		}
		if err := json.Unmarshal(e.Data, &p); err == nil {
			m.health.Commands = p.Commands
		}
	default:
		updateCommandStats(m.stats, m.inFlight, e)
		m.table.SetRows(commandRows(m.stats))
	}
	m.health.Reachable = true
	m.lastError = ""
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to herald..."
	}

	parts := []string{
		renderHeader(m.health, m.activity, m.now(), m.theme, m.width),
		renderCommands(m.table, len(m.stats) == 0, m.theme, m.width),
		renderEventStream(m.eventLog, m.theme, m.width),
	}
	if m.lastError != "" {
		parts = append(parts, m.theme.Failed.Render(fmt.Sprintf(" ⚠ %s", m.lastError)))
	}
	parts = append(parts, lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(" [q] Quit • [↑/↓] Scroll commands"))

	return lipgloss.NewStyle().Margin(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}
