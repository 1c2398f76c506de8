package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"

	"github.com/steenlysgaard/texase/internal/table"
	"github.com/steenlysgaard/texase/internal/transfer"
)

const (
	maxColWidth = 30
	minColWidth = 4
	// title, header, separator, status, notice and help lines
	chromeLines = 6
)

func (m Model) updateTable(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := m.keys
	var cmd tea.Cmd
	switch {
	case key.Matches(msg, k.Quit):
		return m.quit()
	case key.Matches(msg, k.Up):
		m.cy--
	case key.Matches(msg, k.Down):
		m.cy++
	case key.Matches(msg, k.Left):
		m.cx--
	case key.Matches(msg, k.Right):
		m.cx++
	case key.Matches(msg, k.PageUp):
		m.cy -= m.dataHeight()
	case key.Matches(msg, k.PageDown):
		m.cy += m.dataHeight()
	case key.Matches(msg, k.Top):
		m.cy = 0
	case key.Matches(msg, k.Bottom):
		m.cy = m.table.Len() - 1
	case key.Matches(msg, k.FirstCol):
		m.cx = 0
	case key.Matches(msg, k.LastCol):
		m.cx = len(m.table.Columns()) - 1

	case key.Matches(msg, k.Help):
		m.openHelp()
	case key.Matches(msg, k.Mark):
		if id, ok := m.table.IDAt(m.cy); ok {
			m.table.ToggleMark(id)
			m.cy++
		}
	case key.Matches(msg, k.Unmark):
		if id, ok := m.table.IDAt(m.cy); ok {
			m.table.Unmark(id)
		}
	case key.Matches(msg, k.UnmarkAll):
		m.table.UnmarkAll()
	case key.Matches(msg, k.ToggleAll):
		m.table.ToggleAll()
	case key.Matches(msg, k.Filter):
		cmd = m.openFilter()
	case key.Matches(msg, k.Search):
		cmd = m.openSearch()
	case key.Matches(msg, k.Sort):
		if c, ok := m.column(); ok {
			m.table.Sort(c)
		}
	case key.Matches(msg, k.Reload):
		return m.reload()
	case key.Matches(msg, k.Suspend):
		m.saveColumns()
		return m, tea.Suspend

	case key.Matches(msg, k.Details):
		cmd = m.openDetails()
	case key.Matches(msg, k.Edit):
		cmd = m.openEdit()
	case key.Matches(msg, k.AddKV):
		cmd = m.openAddKV()
	case key.Matches(msg, k.DeleteKV):
		cmd = m.askDeleteKey()
	case key.Matches(msg, k.AddCol):
		cmd = m.openAddColumn()
	case key.Matches(msg, k.RemoveCol):
		cmd = m.removeColumn()
	case key.Matches(msg, k.DeleteRows):
		cmd = m.askDeleteRows()
	case key.Matches(msg, k.View):
		cmd = m.openViewer()
	case key.Matches(msg, k.Import):
		cmd = m.openFiles(false)
	case key.Matches(msg, k.Export):
		cmd = m.openFiles(true)
	}
	m.follow()
	return m, cmd
}

// reload picks up changes other programs made to the database.
func (m Model) reload() (tea.Model, tea.Cmd) {
	res, err := m.table.Refresh(m.ctx)
	if err != nil {
		return m, m.fail(err)
	}
	m.follow()
	if !res.Changed() {
		return m, m.notify(levelInfo, "Up to date")
	}
	return m, m.notify(levelInfo, fmt.Sprintf("Reloaded: %d removed, %d updated, %d added", res.Removed, res.Updated, res.Added))
}

func (m *Model) removeColumn() tea.Cmd {
	c, ok := m.column()
	if !ok {
		return nil
	}
	if err := m.table.RemoveColumn(c); err != nil {
		return m.fail(err)
	}
	m.saveColumns()
	return nil
}

func (m *Model) askDeleteRows() tea.Cmd {
	ids, err := m.selection()
	if err != nil {
		return m.fail(err)
	}
	m.ask(fmt.Sprintf("Delete %s?", plural(len(ids), "row")), func(m *Model) tea.Cmd {
		if err := m.table.DeleteRows(m.ctx, ids); err != nil {
			return m.fail(err)
		}
		return m.notify(levelInfo, fmt.Sprintf("Deleted %s", plural(len(ids), "row")))
	})
	return nil
}

func (m *Model) askDeleteKey() tea.Cmd {
	c, ok := m.column()
	if !ok {
		return nil
	}
	ids, err := m.selection()
	if err != nil {
		return m.fail(err)
	}
	if !m.table.Editable(c) || c == "pbc" {
		return m.fail(fmt.Errorf("%w: %s is not a key-value pair", table.ErrNotEditable, c))
	}
	m.ask(fmt.Sprintf("Delete %s from %s?", c, plural(len(ids), "row")), func(m *Model) tea.Cmd {
		if err := m.table.DeleteKey(m.ctx, ids, c); err != nil {
			return m.fail(err)
		}
		return m.notify(levelInfo, fmt.Sprintf("Deleted %s", c))
	})
	return nil
}

// openViewer writes the selection to a snapshot and starts the viewer on it.
func (m *Model) openViewer() tea.Cmd {
	ids, err := m.selection()
	if err != nil {
		return m.fail(err)
	}
	file, err := transfer.Snapshot(m.ctx, m.db, ids, m.tempDir)
	if err != nil {
		return m.fail(err)
	}
	wait, err := m.viewers.start(m.cfg.Viewer, file)
	if err != nil {
		return m.fail(err)
	}
	return tea.Batch(wait, m.notify(levelInfo, fmt.Sprintf("Viewing %s", plural(len(ids), "row"))))
}

// follow clamps the cursor and scrolls it into view.
func (m *Model) follow() {
	n := m.table.Len()
	m.cy = max(0, min(m.cy, n-1))
	ncol := len(m.table.Columns())
	m.cx = max(0, min(m.cx, ncol-1))

	h := m.dataHeight()
	if m.cy < m.offY {
		m.offY = m.cy
	}
	if m.cy >= m.offY+h {
		m.offY = m.cy - h + 1
	}
	m.offY = max(0, min(m.offY, max(0, n-h)))

	if m.cx < m.offX {
		m.offX = m.cx
	}
	widths := m.colWidths()
	for m.offX < m.cx && m.spanWidth(widths, m.offX, m.cx) > m.width {
		m.offX++
	}
}

func (m Model) dataHeight() int {
	return max(1, m.height-chromeLines)
}

// spanWidth is the screen width of columns from..to inclusive.
func (m Model) spanWidth(widths []int, from, to int) int {
	w := 0
	for i := from; i <= to && i < len(widths); i++ {
		w += widths[i] + 3
	}
	return w
}

// colWidths sizes each column to its header and the rows on screen.
func (m Model) colWidths() []int {
	cols := m.table.Columns()
	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = max(minColWidth, runewidth.StringWidth(c)+1)
	}
	end := min(m.table.Len(), m.offY+m.dataHeight())
	for r := m.offY; r < end; r++ {
		id, _ := m.table.IDAt(r)
		for i, c := range cols {
			widths[i] = max(widths[i], runewidth.StringWidth(m.table.Cell(id, c)))
		}
	}
	for i := range widths {
		widths[i] = min(widths[i], maxColWidth)
	}
	return widths
}

func (m Model) visibleColRange(widths []int) (int, int) {
	end := m.offX
	used := 0
	for end < len(widths) {
		w := widths[end] + 3
		if used+w > m.width && end > m.offX {
			break
		}
		used += w
		end++
	}
	return m.offX, end
}

func (m Model) viewTable() string {
	var b strings.Builder
	cols := m.table.Columns()
	if len(cols) == 0 {
		b.WriteString(dimStyle.Render(" (no columns, press + to add one)"))
		b.WriteString("\n")
		return b.String()
	}
	widths := m.colWidths()
	start, end := m.visibleColRange(widths)
	sortKeys, reverse := m.table.SortKeys()
	// the default id order gets no arrow
	arrow := ""
	if sortKeys[0] != "id" || reverse {
		arrow = "↑"
		if reverse {
			arrow = "↓"
		}
	}

	var hdr strings.Builder
	hdr.WriteString("  ")
	for ci := start; ci < end; ci++ {
		name := cols[ci]
		if name == sortKeys[0] {
			name += arrow
		}
		hdr.WriteString(headerStyle.Render(" " + pad(name, widths[ci], false) + " "))
		if ci < end-1 {
			hdr.WriteString(dimStyle.Render("│"))
		}
	}
	b.WriteString(hdr.String())
	b.WriteString("\n")

	var sep strings.Builder
	sep.WriteString("  ")
	for ci := start; ci < end; ci++ {
		sep.WriteString(strings.Repeat("─", widths[ci]+2))
		if ci < end-1 {
			sep.WriteString("┼")
		}
	}
	b.WriteString(dimStyle.Render(sep.String()))
	b.WriteString("\n")

	h := m.dataHeight()
	last := min(m.table.Len(), m.offY+h)
	for ri := m.offY; ri < last; ri++ {
		id, _ := m.table.IDAt(ri)
		marker := "  "
		if m.table.IsMarked(id) {
			marker = markedStyle.Render("* ")
		}
		b.WriteString(marker)
		for ci := start; ci < end; ci++ {
			c := cols[ci]
			cell := " " + pad(m.table.Cell(id, c), widths[ci], m.table.RightAligned(id, c)) + " "
			switch {
			case ri == m.cy && ci == m.cx:
				cell = cursorStyle.Render(cell)
			case m.table.IsMarked(id):
				cell = markedStyle.Render(cell)
			case ri == m.cy:
				cell = rowStyle.Render(cell)
			case m.mode == modeSearch && m.search.matches(m.table.Cell(id, c)):
				cell = matchStyle.Render(cell)
			}
			b.WriteString(cell)
			if ci < end-1 {
				b.WriteString(dimStyle.Render("│"))
			}
		}
		b.WriteString("\n")
	}
	for ri := last - m.offY; ri < h; ri++ {
		b.WriteString("\n")
	}
	return b.String()
}

// pad truncates or pads s to width cells.
func pad(s string, width int, right bool) string {
	if runewidth.StringWidth(s) > width {
		return runewidth.Truncate(s, width, "…")
	}
	if right {
		return runewidth.FillLeft(s, width)
	}
	return runewidth.FillRight(s, width)
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
