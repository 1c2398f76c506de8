package ui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 {
		return "loading..."
	}
	switch m.mode {
	case modeDetails:
		return m.viewDetails()
	case modeHelp:
		return m.viewHelp()
	}

	var b strings.Builder
	b.WriteString(m.viewTitle())
	b.WriteString("\n")
	b.WriteString(m.viewTable())

	switch m.mode {
	case modeFilter:
		b.WriteString(m.viewFilter())
	case modeSearch:
		b.WriteString(m.viewSearch())
	case modeEdit, modeAddKV, modeAddColumn, modeFiles:
		b.WriteString(m.viewInput())
	case modeConfirm:
		b.WriteString(m.viewConfirm())
	default:
		b.WriteString(m.viewStatus())
	}
	b.WriteString("\n")
	b.WriteString(m.viewNotice())
	b.WriteString("\n")
	b.WriteString(m.help.ShortHelpView(m.keys.ShortHelp()))
	return b.String()
}

func (m Model) viewTitle() string {
	left := titleStyle.Render(" texase ") + dimStyle.Render(filepath.Base(m.db.Path()))
	counts := fmt.Sprintf("%d/%d rows", m.table.Len(), m.table.Total())
	if n := len(m.table.Marked()); n > 0 {
		counts += fmt.Sprintf(", %d marked", n)
	}
	if m.loading {
		counts = m.spin.View() + " loading  " + counts
	}
	right := statusStyle.Render(counts + " ")
	gap := max(1, m.width-lipgloss.Width(left)-lipgloss.Width(right))
	return left + strings.Repeat(" ", gap) + right
}

func (m Model) viewStatus() string {
	parts := []string{}
	if f := m.filterSummary(); f != "" {
		parts = append(parts, "filter: "+f)
	}
	if keys, rev := m.table.SortKeys(); keys[0] != "id" || rev {
		dir := "ascending"
		if rev {
			dir = "descending"
		}
		parts = append(parts, fmt.Sprintf("sort: %s %s", keys[0], dir))
	}
	if n := m.viewers.count(); n > 0 {
		parts = append(parts, plural(n, "viewer"))
	}
	return statusStyle.Render(" " + strings.Join(parts, "  "))
}

func (m Model) viewNotice() string {
	if m.notice.text == "" {
		return ""
	}
	s := " " + m.notice.text
	switch m.notice.level {
	case levelError:
		return errorStyle.Render(s)
	case levelWarning:
		return warningStyle.Render(s)
	}
	return infoStyle.Render(s)
}

func (m *Model) openHelp() {
	m.mode = modeHelp
	var b strings.Builder
	b.WriteString(m.help.FullHelpView(m.keys.FullHelp()))
	b.WriteString("\n\n")
	b.WriteString(sectionStyle.Render("Filter"))
	b.WriteString("\n")
	b.WriteString(" tab next field, ←/→ change operator, enter apply, ctrl+t only mark\n")
	b.WriteString(" the matching rows, ctrl+r remove the last filter, ctrl+x clear all.\n")
	b.WriteString(" Operators: == != < <= > >= in (comma separated values).\n\n")
	b.WriteString(sectionStyle.Render("Search"))
	b.WriteString("\n")
	b.WriteString(" Regular expression over the shown cells, plain text when it does\n")
	b.WriteString(" not compile. ctrl+s next match, ctrl+r previous, enter stay, esc return.\n\n")
	b.WriteString(sectionStyle.Render("Viewer"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf(" v opens the selection with %q. Viewers are closed on quit.\n", strings.Join(m.cfg.Viewer, " ")))
	m.helpVP.SetContent(b.String())
	m.helpVP.GotoTop()
}

func (m Model) updateHelp(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel), key.Matches(msg, m.keys.Help), key.Matches(msg, m.keys.Quit):
		m.toTable()
		return m, nil
	}
	var cmd tea.Cmd
	m.helpVP, cmd = m.helpVP.Update(msg)
	return m, cmd
}

func (m Model) viewHelp() string {
	return titleStyle.Render(" Help") + "\n" + m.helpVP.View() + "\n" +
		dimStyle.Render(" ↑/↓ scroll  esc close")
}
