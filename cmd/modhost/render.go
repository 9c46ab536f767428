package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/modhost/internal/boot"
	"github.com/mattjoyce/modhost/internal/journal"
	"github.com/mattjoyce/modhost/internal/loader"
)

// theme keeps every CLI colour in one place.
type theme struct {
	Title   lipgloss.Style
	Header  lipgloss.Style
	OK      lipgloss.Style
	Warn    lipgloss.Style
	Failed  lipgloss.Style
	Dim     lipgloss.Style
	Section lipgloss.Style
}

func newTheme() theme {
	return theme{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FAFAFA")),
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#61AFEF")),
		OK:      lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		Warn:    lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),
		Failed:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Section: lipgloss.NewStyle().MarginTop(1),
	}
}

// outcomeStyle colours a loader outcome.
func (t theme) outcomeStyle(outcome string) lipgloss.Style {
	switch loader.Result(outcome) {
	case loader.Success:
		return t.OK
	case loader.Failed:
		return t.Failed
	default:
		return t.Warn
	}
}

// table renders rows as left-aligned columns under a styled header.
func (t theme) table(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); i < len(widths) && w > widths[i] {
				widths[i] = w
			}
		}
	}

	pad := func(cells []string) string {
		parts := make([]string, len(cells))
		for i, c := range cells {
			parts[i] = c + strings.Repeat(" ", widths[i]-lipgloss.Width(c))
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}

	lines := []string{t.Header.Render(pad(header))}
	for _, row := range rows {
		lines = append(lines, pad(row))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderReport(w io.Writer, r *boot.Report) {
	th := newTheme()
	parts := []string{th.Title.Render("modhost startup " + r.BootID)}

	static := th.Dim.Render("none")
	if len(r.Static) > 0 {
		static = strings.Join(r.Static, ", ")
	}
	loaded := th.Dim.Render("none")
	if len(r.Loaded) > 0 {
		loaded = th.OK.Render(strings.Join(r.Loaded, ", "))
	}
	dispatched := make([]string, 0, len(r.Dispatched))
	for _, c := range r.Dispatched {
		dispatched = append(dispatched, c.String())
	}
	parts = append(parts,
		fmt.Sprintf("built-in:   %s", static),
		fmt.Sprintf("loaded:     %s", loaded),
		fmt.Sprintf("dispatched: %s", strings.Join(dispatched, " > ")),
	)

	if len(r.Failed) > 0 {
		rows := make([][]string, 0, len(r.Failed))
		for _, f := range r.Failed {
			req := "optional"
			if f.Required {
				req = "required"
			}
			rows = append(rows, []string{f.ID, th.outcomeStyle(string(f.Outcome)).Render(string(f.Outcome)), req, f.Error})
		}
		parts = append(parts, th.Section.Render(th.table([]string{"MODULE", "OUTCOME", "", "ERROR"}, rows)))
	}
	fmt.Fprintln(w, lipgloss.JoinVertical(lipgloss.Left, parts...))
}

// moduleRow is one line of `module list`.
type moduleRow struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Path   string `json:"path,omitempty"`
}

func renderModules(w io.Writer, rows []moduleRow) {
	th := newTheme()
	if len(rows) == 0 {
		fmt.Fprintln(w, th.Dim.Render("no modules found"))
		return
	}
	cells := make([][]string, 0, len(rows))
	for _, r := range rows {
		cells = append(cells, []string{r.ID, r.Source, r.Path})
	}
	fmt.Fprintln(w, th.table([]string{"MODULE", "SOURCE", "PATH"}, cells))
}

func renderHistory(w io.Writer, attempts []journal.Attempt) {
	th := newTheme()
	if len(attempts) == 0 {
		fmt.Fprintln(w, th.Dim.Render("no load attempts recorded"))
		return
	}
	rows := make([][]string, 0, len(attempts))
	for _, a := range attempts {
		rows = append(rows, []string{
			a.AttemptedAt.Local().Format("2006-01-02 15:04:05"),
			a.ModuleID,
			th.outcomeStyle(a.Outcome).Render(a.Outcome),
			shortenCommit(a.BootID),
			a.Detail,
		})
	}
	fmt.Fprintln(w, th.table([]string{"TIME", "MODULE", "OUTCOME", "BOOT", "DETAIL"}, rows))
}

// categoryRow is one line of `category list`.
type categoryRow struct {
	Position int    `json:"position"`
	Name     string `json:"name"`
	Listed   bool   `json:"configured"`
}

func renderCategories(w io.Writer, rows []categoryRow) {
	th := newTheme()
	cells := make([][]string, 0, len(rows))
	for _, r := range rows {
		origin := th.Dim.Render("default")
		if r.Listed {
			origin = "configured"
		}
		cells = append(cells, []string{fmt.Sprintf("%d", r.Position), r.Name, origin})
	}
	fmt.Fprintln(w, th.table([]string{"#", "CATEGORY", "ORDER"}, cells))
}
