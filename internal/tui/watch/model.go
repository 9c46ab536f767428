package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/modhost/internal/events"
)

const maxEventLog = 50

type keyMap struct {
	Up   key.Binding
	Down key.Binding
	Quit key.Binding
}

func (k keyMap) ShortHelp() []key.Binding { return []key.Binding{k.Up, k.Down, k.Quit} }

func (k keyMap) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }

var keys = keyMap{
	Up:   key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down: key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// Model is the bubbletea model of the watch view.
type Model struct {
	client *Client

	width  int
	height int

	board     *Board
	eventLog  []events.Event
	health    healthMsg
	connected bool
	lastError string
	activity  Activity

	modules table.Model
	help    help.Model
	theme   Theme

	feed chan events.Event
}

// New creates a watch model reading from client.
func New(client *Client) Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Module", Width: 24},
			{Title: "Outcome", Width: 18},
			{Title: "Path", Width: 40},
		}),
		table.WithFocused(true),
		table.WithHeight(8),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return Model{
		client:  client,
		board:   newBoard(),
		modules: t,
		help:    help.New(),
		theme:   NewDefaultTheme(),
		feed:    make(chan events.Event, 100),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribe(m.client, 0, m.feed),
		receive(m.feed),
		fetchHealth(m.client),
		tick(),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.modules, cmd = m.modules.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case tickMsg:
		m.activity.Decay(time.Time(msg))
		return m, tick()

	case eventMsg:
		e := events.Event(msg)
		m.board.Apply(e)
		m.eventLog = append([]events.Event{e}, m.eventLog...)
		if len(m.eventLog) > maxEventLog {
			m.eventLog = m.eventLog[:maxEventLog]
		}
		m.activity.OnEvent(time.Now())
		m.connected = true
		m.lastError = ""
		m.modules.SetRows(moduleRows(m.board))
		return m, receive(m.feed)

	case healthMsg:
		m.health = msg
		m.connected = true
		m.lastError = ""
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg {
			return fetchHealth(m.client)()
		})

	case streamClosedMsg:
		m.connected = false
		m.lastError = "event stream closed, reconnecting..."
		if msg.err != nil {
			m.lastError = fmt.Sprintf("event stream: %v, reconnecting...", msg.err)
		}
		return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		// The pending receive keeps reading from the same channel.
		return m, subscribe(m.client, m.board.LastSeq, m.feed)

	case errMsg:
		m.connected = false
		m.lastError = msg.Error()
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg {
			return fetchHealth(m.client)()
		})
	}

	return m, nil
}

func moduleRows(b *Board) []table.Row {
	mods := b.SortedModules()
	rows := make([]table.Row, 0, len(mods))
	for _, s := range mods {
		rows = append(rows, table.Row{s.ID, s.Outcome, s.Path})
	}
	return rows
}
