package ui

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/steenlysgaard/texase/internal/structio"
	"github.com/steenlysgaard/texase/internal/table"
	"github.com/steenlysgaard/texase/internal/transfer"
)

// inputTarget is what a one-line input box applies to.
type inputTarget struct {
	ids    []int64
	key    string // edited column
	old    any    // value before the edit, nil when the rows differ
	export bool
}

func (m *Model) openInput(md mode, prompt, value string, suggestions []string) tea.Cmd {
	m.mode = md
	m.input.Reset()
	m.input.Prompt = prompt
	m.input.ShowSuggestions = len(suggestions) > 0
	m.input.SetSuggestions(suggestions)
	m.input.SetValue(value)
	m.input.CursorEnd()
	m.input.Width = max(20, m.width-len(prompt)-2)
	return m.input.Focus()
}

func (m *Model) openEdit() tea.Cmd {
	c, ok := m.column()
	if !ok {
		return nil
	}
	ids, err := m.selection()
	if err != nil {
		return m.fail(err)
	}
	if !m.table.Editable(c) {
		return m.fail(fmt.Errorf("%w: %s can't be edited", table.ErrNotEditable, c))
	}
	old := m.table.Value(ids[0], c)
	for _, id := range ids[1:] {
		if table.FormatValue(m.table.Value(id, c)) != table.FormatValue(old) {
			old = nil
			break
		}
	}
	m.target = inputTarget{ids: ids, key: c, old: old}
	return m.openInput(modeEdit, c+" = ", editText(old), nil)
}

// editText is the full precision text of a value for editing.
func editText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	}
	return table.FormatValue(v)
}

func (m *Model) openAddKV() tea.Cmd {
	ids, err := m.selection()
	if err != nil {
		return m.fail(err)
	}
	m.target = inputTarget{ids: ids}
	prompt := fmt.Sprintf("Add to %s: ", plural(len(ids), "row"))
	return m.openInput(modeAddKV, prompt, "", nil)
}

func (m *Model) openAddColumn() tea.Cmd {
	unused := m.table.UnusedColumns()
	if len(unused) == 0 {
		return m.notify(levelWarning, "All columns are shown")
	}
	return m.openInput(modeAddColumn, "Add column: ", "", unused)
}

func (m *Model) openFiles(export bool) tea.Cmd {
	m.target = inputTarget{export: export}
	if export {
		ids, err := m.selection()
		if err != nil {
			return m.fail(err)
		}
		m.target.ids = ids
		return m.openInput(modeFiles, fmt.Sprintf("Export %s to: ", plural(len(ids), "row")), "", fileSuggestions("", false))
	}
	return m.openInput(modeFiles, "Import file[@index]: ", "", fileSuggestions("", true))
}

// fileSuggestions completes prefix with the entries of its directory,
// only structure files when readable is set.
func fileSuggestions(prefix string, readable bool) []string {
	dir := "."
	if i := strings.LastIndex(prefix, string(filepath.Separator)); i >= 0 {
		dir = prefix[:i+1]
	}
	entries, err := os.ReadDir(expandHome(dir))
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if dir != "." {
			name = dir + name
		}
		switch {
		case e.IsDir():
			out = append(out, name+string(filepath.Separator))
		case !readable || structio.CanRead(name):
			out = append(out, name)
		}
	}
	return out
}

func expandHome(p string) string {
	if rest, ok := strings.CutPrefix(p, "~"+string(filepath.Separator)); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return p
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.toTable()
		return m, nil
	case key.Matches(msg, m.keys.Apply):
		var cmd tea.Cmd
		switch m.mode {
		case modeEdit:
			cmd = m.commitEdit()
		case modeAddKV:
			cmd = m.commitAddKV()
		case modeAddColumn:
			cmd = m.commitAddColumn()
		case modeFiles:
			cmd = m.commitFiles()
		}
		m.follow()
		return m, cmd
	}
	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if v := m.input.Value(); m.mode == modeFiles && v != before {
		m.input.SetSuggestions(fileSuggestions(v, !m.target.export))
	}
	return m, cmd
}

// commitEdit writes the edited cell to the target rows. Rejected input
// keeps the box open.
func (m *Model) commitEdit() tea.Cmd {
	t := m.target
	s := m.input.Value()
	if err := table.CheckInput(s, false); err != nil {
		return m.fail(err)
	}
	v, err := table.ParseValue(t.key, s)
	if err != nil {
		return m.fail(err)
	}
	if err := m.table.SetValue(m.ctx, t.ids, t.key, v); err != nil {
		return m.fail(err)
	}
	m.toTable()
	if t.key != "pbc" {
		if w := table.TypeChanged(t.key, t.old, v); w != "" {
			return m.notify(levelWarning, w)
		}
	}
	return nil
}

func (m *Model) commitAddKV() tea.Cmd {
	t := m.target
	k, v, err := table.ParseKeyValue(m.input.Value())
	if err != nil {
		return m.fail(err)
	}
	old := m.table.Value(t.ids[0], k)
	if err := m.table.SetValue(m.ctx, t.ids, k, v); err != nil {
		return m.fail(err)
	}
	m.toTable()
	if k != "pbc" {
		if w := table.TypeChanged(k, old, v); w != "" {
			return m.notify(levelWarning, w)
		}
	}
	return m.notify(levelInfo, fmt.Sprintf("Added %s to %s", k, plural(len(t.ids), "row")))
}

func (m *Model) commitAddColumn() tea.Cmd {
	c := strings.TrimSpace(m.input.Value())
	if err := m.table.AddColumn(c); err != nil {
		return m.fail(fmt.Errorf("%w: %q", err, c))
	}
	m.toTable()
	m.cx = len(m.table.Columns()) - 1
	m.saveColumns()
	return nil
}

func (m *Model) commitFiles() tea.Cmd {
	path := expandHome(strings.TrimSpace(m.input.Value()))
	if path == "" {
		return m.notify(levelWarning, "No file given")
	}
	if !m.target.export {
		ids, err := transfer.Import(m.ctx, m.db, path)
		if err != nil {
			return m.fail(err)
		}
		m.toTable()
		if err := m.table.AddRows(m.ctx, ids); err != nil {
			return m.fail(err)
		}
		return m.notify(levelInfo, fmt.Sprintf("Imported %s", plural(len(ids), "row")))
	}

	ids := m.target.ids
	err := transfer.Export(m.ctx, m.db, ids, path, false)
	if errors.Is(err, transfer.ErrExists) {
		m.ask(fmt.Sprintf("%s exists. Overwrite?", path), func(m *Model) tea.Cmd {
			return m.export(ids, path, true)
		})
		return nil
	}
	m.toTable()
	if err != nil {
		return m.fail(err)
	}
	return m.notify(levelInfo, fmt.Sprintf("Exported %s to %s", plural(len(ids), "row"), path))
}

func (m *Model) export(ids []int64, path string, overwrite bool) tea.Cmd {
	if err := transfer.Export(m.ctx, m.db, ids, path, overwrite); err != nil {
		return m.fail(err)
	}
	return m.notify(levelInfo, fmt.Sprintf("Exported %s to %s", plural(len(ids), "row"), path))
}

func (m Model) viewInput() string {
	return m.input.View()
}
