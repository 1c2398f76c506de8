package ui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/steenlysgaard/texase/internal/asedb"
)

const (
	fieldKey = iota
	fieldOp
	fieldValue
)

type filterDialog struct {
	key, value textinput.Model
	op         int    // index into asedb.Ops
	opTyped    string // operator characters typed so far
	focus      int
	markOnly   bool
}

func newFilterDialog() filterDialog {
	k := textinput.New()
	k.Placeholder = "key"
	k.ShowSuggestions = true
	k.CharLimit = 64
	k.Width = 16
	v := textinput.New()
	v.Placeholder = "value"
	v.Width = 24
	return filterDialog{key: k, value: v}
}

func (f filterDialog) criterion() asedb.Criterion {
	return asedb.Criterion{
		Key:   strings.TrimSpace(f.key.Value()),
		Op:    asedb.Ops[f.op],
		Value: strings.TrimSpace(f.value.Value()),
	}
}

// typeOp adds s to the typed operator and selects it once it spells one,
// so "<" then "=" ends on "<=".
func (f *filterDialog) typeOp(s string) {
	buf := f.opTyped + s
	if !opPrefix(buf) {
		buf = s
	}
	if !opPrefix(buf) {
		f.opTyped = ""
		return
	}
	f.opTyped = buf
	if op, err := asedb.ParseOp(buf); err == nil {
		f.op = slices.Index(asedb.Ops, op)
	}
}

func opPrefix(s string) bool {
	if s == "=" {
		return true
	}
	for _, op := range asedb.Ops {
		if strings.HasPrefix(string(op), s) {
			return true
		}
	}
	return false
}

func (f *filterDialog) setFocus(i int) tea.Cmd {
	f.focus = (i + 3) % 3
	f.opTyped = ""
	f.key.Blur()
	f.value.Blur()
	switch f.focus {
	case fieldKey:
		return f.key.Focus()
	case fieldValue:
		return f.value.Focus()
	}
	return nil
}

func (m *Model) openFilter() tea.Cmd {
	m.mode = modeFilter
	keys := append(slices.Clone(m.table.UnusedColumns()), m.table.Columns()...)
	keys = append(keys, "unique_id")
	slices.Sort(keys)
	m.filter.key.SetSuggestions(slices.Compact(keys))
	m.filter.key.SetValue("")
	m.filter.value.SetValue("")
	if c, ok := m.column(); ok {
		m.filter.key.SetValue(c)
		m.filter.key.CursorEnd()
	}
	return m.filter.setFocus(fieldKey)
}

func (m Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := m.keys
	f := &m.filter
	switch {
	case key.Matches(msg, k.Cancel):
		m.toTable()
		return m, nil
	case key.Matches(msg, k.NextField):
		if s := f.key.CurrentSuggestion(); f.focus == fieldKey && s != "" {
			f.key.SetValue(s)
		}
		return m, f.setFocus(f.focus + 1)
	case msg.String() == "shift+tab":
		return m, f.setFocus(f.focus - 1)
	case key.Matches(msg, k.MarkOnly):
		f.markOnly = !f.markOnly
		return m, nil
	case key.Matches(msg, k.Prev):
		c, ok := m.table.RemoveLastFilter()
		m.follow()
		if !ok {
			return m, m.notify(levelWarning, "No filters to remove")
		}
		return m, m.notify(levelInfo, "Removed filter "+c.String())
	case key.Matches(msg, k.ClearAll):
		m.table.ClearFilters()
		m.follow()
		return m, m.notify(levelInfo, "Cleared all filters")
	case f.focus == fieldOp && key.Matches(msg, k.PrevOption):
		f.op = (f.op + len(asedb.Ops) - 1) % len(asedb.Ops)
		f.opTyped = ""
		return m, nil
	case f.focus == fieldOp && key.Matches(msg, k.NextOption):
		f.op = (f.op + 1) % len(asedb.Ops)
		f.opTyped = ""
		return m, nil
	case key.Matches(msg, k.Apply):
		return m.applyFilter()
	}

	var cmd tea.Cmd
	switch f.focus {
	case fieldKey:
		f.key, cmd = f.key.Update(msg)
	case fieldValue:
		f.value, cmd = f.value.Update(msg)
	case fieldOp:
		switch msg.Type {
		case tea.KeyRunes:
			f.typeOp(string(msg.Runes))
		case tea.KeyBackspace:
			f.opTyped = ""
		}
	}
	return m, cmd
}

// applyFilter adds the criterion, or marks the rows it matches in
// only-mark mode. A rejected criterion keeps the dialog open.
func (m Model) applyFilter() (tea.Model, tea.Cmd) {
	c := m.filter.criterion()
	if m.filter.markOnly {
		n, err := m.table.MarkMatching(c)
		if err != nil {
			return m, m.fail(err)
		}
		m.toTable()
		return m, m.notify(levelInfo, fmt.Sprintf("Marked %s matching %s", plural(n, "row"), c))
	}
	if err := m.table.AddFilter(c); err != nil {
		return m, m.fail(err)
	}
	m.toTable()
	m.cy = 0
	m.follow()
	return m, nil
}

func (m Model) viewFilter() string {
	f := m.filter
	op := " " + string(asedb.Ops[f.op]) + " "
	if f.focus == fieldOp {
		op = cursorStyle.Render(op)
	} else {
		op = keyStyle.Render(op)
	}
	line := dialogStyle.Render("Filter: ") + f.key.View() + op + f.value.View()
	if f.markOnly {
		line += " " + markedStyle.Render("[only mark]")
	}
	return line
}

// filterSummary lists the active filters for the status line.
func (m Model) filterSummary() string {
	fs := m.table.Filters()
	if len(fs) == 0 {
		return ""
	}
	parts := make([]string, len(fs))
	for i, c := range fs {
		parts[i] = c.String()
	}
	return strings.Join(parts, " & ")
}
