package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/armsd/internal/api"
	"github.com/mattjoyce/armsd/internal/events"
)

// Model is the BubbleTea model for the dashboard.
type Model struct {
	client Client

	width  int
	height int

	health   HealthState
	board    *Board
	eventLog []events.Event
	lastID   int64

	pulse    Pulse
	theme    Theme
	armTable table.Model
	keys     keyMap
	help     help.Model

	hubEvents chan events.Event

	lastError string
}

// New creates a dashboard for the API at client.BaseURL.
func New(client Client) Model {
	t := table.New(
		table.WithColumns(armColumns()),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	theme := NewDefaultTheme()
	t.SetStyles(theme.tableStyles())

	h := help.New()
	h.Styles.ShortKey = theme.Highlight
	h.Styles.ShortDesc = theme.Dim
	h.Styles.FullKey = theme.Highlight
	h.Styles.FullDesc = theme.Dim

	return Model{
		client:    client,
		board:     NewBoard(),
		hubEvents: make(chan events.Event, 100),
		theme:     theme,
		armTable:  t,
		keys:      defaultKeyMap(),
		help:      h,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.client, 0, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		fetchArms(m.client),
		func() tea.Msg { return fetchHealth(m.client) },
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Refresh):
			return m, fetchArms(m.client)
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		}
		var cmd tea.Cmd
		m.armTable, cmd = m.armTable.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.armTable.SetWidth(m.width - 6)
		m.help.Width = m.width - 4
		if h := m.height/2 - 4; h > 3 {
			m.armTable.SetHeight(h)
		}

	case tickMsg:
		m.pulse.Decay(time.Time(msg))
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case eventMsg:
		e := events.Event(msg)
		if e.ID > m.lastID {
			m.lastID = e.ID
		}
		m.eventLog = append([]events.Event{e}, m.eventLog...)
		if len(m.eventLog) > eventLogSize {
			m.eventLog = m.eventLog[:eventLogSize]
		}
		m.pulse.Hit(time.Now())
		if m.board.Apply(e) {
			m.armTable.SetRows(m.board.Rows())
		}
		m.health.Connected = true
		m.lastError = ""
		return m, receiveNextEvent(m.hubEvents)

	case armsMsg:
		m.board.Reset(api.ArmsResponse(msg))
		m.armTable.SetRows(m.board.Rows())
		m.lastError = ""

	case healthMsg:
		m.health.Status = msg.Status
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.Store = msg.Store
		m.health.StoredArms = msg.StoredArms
		m.health.Connected = true
		m.health.LastCheck = time.Now()
		m.lastError = ""
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg {
			return fetchHealth(m.client)
		})

	case sseDisconnectedMsg:
		m.health.Connected = false
		m.lastError = "event stream disconnected, reconnecting..."
		if msg.lastID > m.lastID {
			m.lastID = msg.lastID
		}
		last := m.lastID
		return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg {
			return reconnectMsg{lastID: last}
		})

	case reconnectMsg:
		// Resync beliefs in case the replay buffer no longer covers the gap.
		return m, tea.Batch(
			subscribeToEvents(m.client, msg.lastID, m.hubEvents),
			fetchArms(m.client),
		)

	case errMsg:
		m.lastError = msg.Error()
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg {
			return fetchHealth(m.client)
		})
	}

	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to armsd..."
	}

	header := renderHeader(m.health, m.board.catalog, m.pulse, m.theme, m.width, time.Now())
	arms := m.theme.Border.Width(m.width - 4).Render(lipgloss.JoinVertical(lipgloss.Left,
		m.theme.Title.Render("ARMS"),
		m.armTable.View(),
	))
	eventRows := m.height/2 - 8
	if eventRows < 3 {
		eventRows = 3
	}
	stream := renderEventStream(m.eventLog, m.theme, m.width, eventRows)

	parts := []string{header, arms, stream}
	if m.lastError != "" {
		parts = append(parts, m.theme.Failure.Render(fmt.Sprintf(" ⚠ %s", m.lastError)))
	}
	parts = append(parts, " "+m.help.View(m.keys))

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}
