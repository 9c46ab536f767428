package watch

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/modhost/internal/events"
)

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting..."
	}

	parts := []string{
		m.renderHeader(),
		m.renderCategories(),
		m.theme.Border.Width(m.width - 4).Render(lipgloss.JoinVertical(lipgloss.Left,
			m.theme.Title.Render("MODULES"),
			m.modules.View(),
		)),
		renderEventStream(m.eventLog, m.theme, m.width),
	}
	if m.lastError != "" {
		parts = append(parts, m.theme.Failed.Render(" ⚠ "+m.lastError))
	}
	parts = append(parts, " "+m.help.View(keys))

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}

func (m Model) renderHeader() string {
	inner := m.width - 4

	status := m.theme.OK.Render("CONNECTED")
	if !m.connected {
		status = m.theme.Failed.Render("CONNECTING")
	}
	startup := m.board.Startup
	if startup == "" {
		startup = "unknown"
	}

	clock := m.theme.Dim.Render(time.Now().Format("15:04:05"))
	title := " MODHOST WATCH"
	pad := inner - lipgloss.Width(title) - lipgloss.Width(clock) - 4
	if pad < 1 {
		pad = 1
	}

	bootID := m.board.BootID
	if bootID == "" {
		bootID = m.health.BootID
	}

	last := "never"
	if !m.activity.Last().IsZero() {
		last = time.Since(m.activity.Last()).Round(time.Second).String() + " ago"
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		title+strings.Repeat(" ", pad)+clock+" ",
		fmt.Sprintf(" %s  boot %s  startup %s  up %s  modules %d  pending %d",
			status,
			m.theme.Highlight.Render(short(bootID)),
			m.theme.outcome(startup).Render(startup),
			formatDuration(time.Duration(m.health.UptimeSeconds)*time.Second),
			m.health.ModulesLoaded,
			m.health.Pending,
		),
		fmt.Sprintf(" Last event: %s %s", last, m.activity.Render(m.theme)),
	)
	return m.theme.Border.Width(inner).Render(content)
}

func (m Model) renderCategories() string {
	body := m.theme.Dim.Render("  No category dispatched yet")
	if len(m.board.Dispatched) > 0 {
		names := make([]string, 0, len(m.board.Dispatched))
		for _, c := range m.board.Dispatched {
			names = append(names, m.theme.OK.Render("✓ "+c))
		}
		body = " " + strings.Join(names, "  ")
	}
	if m.board.Error != "" {
		body = lipgloss.JoinVertical(lipgloss.Left, body, m.theme.Failed.Render(" "+m.board.Error))
	}
	return m.theme.Border.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left, m.theme.Title.Render("CATEGORIES"), body),
	)
}

func renderEventStream(log []events.Event, theme Theme, width int) string {
	inner := width - 4
	if len(log) == 0 {
		return theme.Border.Width(inner).Render(lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENTS"),
			theme.Dim.Render("  Waiting for events..."),
		))
	}

	var lines []string
	for i, e := range log {
		if i >= 10 {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}
	return theme.Border.Width(inner).Render(lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EVENTS"),
		lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n")),
	))
}

func formatEvent(e events.Event, theme Theme) string {
	style := theme.Dim
	switch e.Kind {
	case events.ModuleLoaded, events.StartupComplete:
		style = theme.OK
	case events.ModuleFailed, events.StartupFailed:
		style = theme.Failed
	case events.CategoryDispatched:
		style = theme.Highlight
	}
	return fmt.Sprintf("%s %s %s",
		theme.Dim.Render(e.At.Local().Format("15:04:05")),
		style.Render(fmt.Sprintf("%-20s", e.Kind)),
		describe(e),
	)
}

// describe picks the interesting fields out of an event payload.
func describe(e events.Event) string {
	var data map[string]any
	_ = json.Unmarshal(e.Data, &data)

	var parts []string
	for _, k := range []string{"module_id", "category", "outcome", "error"} {
		if v, ok := data[k].(string); ok && v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		raw := string(e.Data)
		if len(raw) > 60 {
			raw = raw[:60] + "..."
		}
		return raw
	}
	return strings.Join(parts, " ")
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "-"
	}
	return id
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
