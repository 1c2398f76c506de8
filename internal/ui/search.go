package ui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/steenlysgaard/texase/internal/table"
)

type searchDialog struct {
	input  textinput.Model
	origin table.Coord // cursor when the search started
	match  func(string) bool
}

func newSearchDialog() searchDialog {
	in := textinput.New()
	in.Placeholder = "regular expression or text"
	in.Width = 40
	return searchDialog{input: in}
}

// matches highlights cells while searching.
func (s searchDialog) matches(cell string) bool {
	return s.match != nil && cell != "" && s.match(cell)
}

func (s *searchDialog) compile() {
	s.match = nil
	if q := s.input.Value(); q != "" {
		s.match = table.Matcher(q)
	}
}

func (m *Model) openSearch() tea.Cmd {
	m.mode = modeSearch
	m.search.origin = table.Coord{Row: m.cy, Col: m.cx}
	m.search.input.CursorEnd()
	m.search.compile()
	return m.search.input.Focus()
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := m.keys
	q := m.search.input.Value()
	switch {
	case key.Matches(msg, k.Cancel):
		m.cy, m.cx = m.search.origin.Row, m.search.origin.Col
		m.search.input.Blur()
		m.toTable()
		m.follow()
		return m, nil
	case key.Matches(msg, k.Apply):
		m.search.input.Blur()
		m.toTable()
		return m, nil
	case key.Matches(msg, k.Search):
		return m, m.jump(q, table.Coord{Row: m.cy, Col: m.cx}, false)
	case key.Matches(msg, k.Prev):
		return m, m.jump(q, table.Coord{Row: m.cy, Col: m.cx}, true)
	}
	var cmd tea.Cmd
	m.search.input, cmd = m.search.input.Update(msg)
	if nq := m.search.input.Value(); nq != q {
		m.search.compile()
		// include the cell the search started on
		from := m.search.origin
		from.Col--
		return m, tea.Batch(cmd, m.jump(nq, from, false))
	}
	return m, cmd
}

// jump moves the cursor to the next match of q after from.
func (m *Model) jump(q string, from table.Coord, backwards bool) tea.Cmd {
	if q == "" {
		return nil
	}
	c, ok := m.table.Search(q, from, backwards)
	if !ok {
		return m.notify(levelWarning, "No match for "+q)
	}
	m.cy, m.cx = c.Row, c.Col
	m.follow()
	return nil
}

func (m Model) viewSearch() string {
	return dialogStyle.Render("Search: ") + m.search.input.View() +
		dimStyle.Render("  ctrl+s next  ctrl+r previous")
}
