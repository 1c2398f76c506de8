package ui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"

	"github.com/steenlysgaard/texase/internal/asedb"
	"github.com/steenlysgaard/texase/internal/table"
)

const maxKeyWidth = 24

// detailsPanel shows the key-value pairs of the selection and collects
// edits to them until they are saved or thrown away.
type detailsPanel struct {
	d      *table.Details
	keys   []string // editable keys in display order, added ones last
	old    map[string]any
	edits  table.Edits
	cursor int

	input   textinput.Model
	editing string // key whose value is being typed
	adding  bool
	vp      viewport.Model
	width   int
}

func newDetailsPanel(d *table.Details, width, height int) *detailsPanel {
	p := &detailsPanel{
		d:     d,
		old:   map[string]any{},
		edits: table.Edits{Set: map[string]any{}},
		input: textinput.New(),
		vp:    viewport.New(width, height),
	}
	for _, pair := range d.Editable {
		p.keys = append(p.keys, pair.Key)
		p.old[pair.Key] = pair.Value
	}
	p.resize(width, height)
	return p
}

func (p *detailsPanel) resize(width, height int) {
	p.width = max(width, 40)
	p.vp.Width = p.width
	// title and footer lines
	p.vp.Height = max(height-4, 3)
	p.refresh()
}

func (p *detailsPanel) dirty() bool {
	return len(p.edits.Set) > 0 || len(p.edits.Delete) > 0 || p.edits.PBC != nil
}

func (p *detailsPanel) current() (string, bool) {
	if p.cursor < 0 || p.cursor >= len(p.keys) {
		return "", false
	}
	return p.keys[p.cursor], true
}

func (p *detailsPanel) deleted(k string) bool { return slices.Contains(p.edits.Delete, k) }

// set records a new value for k, undoing a pending delete of it.
func (p *detailsPanel) set(k string, v any) {
	if k == "pbc" {
		pbc := v.([3]bool)
		p.edits.PBC = &pbc
	} else {
		p.edits.Set[k] = v
	}
	p.edits.Delete = slices.DeleteFunc(p.edits.Delete, func(d string) bool { return d == k })
	if !slices.Contains(p.keys, k) {
		p.keys = append(p.keys, k)
		p.cursor = len(p.keys) - 1
	}
}

// toggleDelete marks k for deletion, or brings it back. Keys added in this
// panel are simply dropped.
func (p *detailsPanel) toggleDelete(k string) {
	if _, existed := p.old[k]; !existed {
		delete(p.edits.Set, k)
		p.keys = slices.DeleteFunc(p.keys, func(s string) bool { return s == k })
		p.cursor = min(p.cursor, len(p.keys)-1)
		return
	}
	if p.deleted(k) {
		p.edits.Delete = slices.DeleteFunc(p.edits.Delete, func(d string) bool { return d == k })
		return
	}
	delete(p.edits.Set, k)
	p.edits.Delete = append(p.edits.Delete, k)
}

// value returns the text shown for k and how it changed.
func (p *detailsPanel) value(k string) (text string, changed bool) {
	if k == "pbc" && p.edits.PBC != nil {
		return asedb.FormatPBC(*p.edits.PBC), true
	}
	if v, ok := p.edits.Set[k]; ok {
		return table.FormatValue(v), true
	}
	for _, pair := range p.d.Editable {
		if pair.Key == k {
			return pair.Text, false
		}
	}
	return "", false
}

func (p *detailsPanel) title() string {
	if len(p.d.IDs) == 1 {
		return fmt.Sprintf("Row %d", p.d.IDs[0])
	}
	ids := make([]string, len(p.d.IDs))
	for i, id := range p.d.IDs {
		ids[i] = fmt.Sprint(id)
	}
	return truncate.StringWithTail(fmt.Sprintf("%d rows: %s", len(ids), strings.Join(ids, ", ")), uint(p.width-2), "…")
}

// refresh renders the pairs into the viewport and keeps the cursor line
// on screen.
func (p *detailsPanel) refresh() {
	var b strings.Builder
	line, cursorLine := 0, 0
	write := func(s string) {
		b.WriteString(s)
		b.WriteString("\n")
		line += strings.Count(s, "\n") + 1
	}
	kw := 0
	for _, pair := range slices.Concat(p.d.Static, p.d.Editable, p.d.Data) {
		kw = max(kw, runewidth.StringWidth(pair.Key))
	}
	for _, k := range p.keys {
		kw = max(kw, runewidth.StringWidth(k))
	}
	kw = min(kw, maxKeyWidth)
	vw := max(p.width-kw-6, 10)
	row := func(k, v string) string {
		k = runewidth.FillRight(runewidth.Truncate(k, kw, "…"), kw)
		wrapped := wordwrap.String(v, vw)
		indent := "\n" + strings.Repeat(" ", kw+4)
		return keyStyle.Render(k) + "  " + strings.ReplaceAll(wrapped, "\n", indent)
	}

	write(sectionStyle.Render("Structure"))
	for _, pair := range p.d.Static {
		write("  " + row(pair.Key, pair.Text))
	}
	write("")
	write(sectionStyle.Render("Key-value pairs"))
	for i, k := range p.keys {
		text, changed := p.value(k)
		if i == p.cursor && p.editing == k {
			text = p.input.View()
		}
		r := row(k, text)
		switch {
		case p.deleted(k):
			r = deletedStyle.Render(r)
		case changed:
			r = changedStyle.Render(r)
		}
		marker := "  "
		if i == p.cursor {
			marker = "> "
			cursorLine = line
		}
		write(marker + r)
	}
	if p.adding {
		cursorLine = line
		write("+ " + p.input.View())
	}
	if len(p.d.Data) > 0 {
		write("")
		write(sectionStyle.Render("Data"))
		for _, pair := range p.d.Data {
			write("  " + row(pair.Key, pair.Text))
		}
	}
	p.vp.SetContent(b.String())
	if cursorLine < p.vp.YOffset {
		p.vp.SetYOffset(cursorLine)
	} else if cursorLine >= p.vp.YOffset+p.vp.Height {
		p.vp.SetYOffset(cursorLine - p.vp.Height + 1)
	}
}

func (m *Model) openDetails() tea.Cmd {
	ids, err := m.selection()
	if err != nil {
		return m.fail(err)
	}
	d, err := m.table.Details(m.ctx, ids)
	if err != nil {
		return m.fail(err)
	}
	m.details = newDetailsPanel(d, m.width, m.height)
	m.mode = modeDetails
	return nil
}

func (m Model) updateDetails(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := m.details
	k := m.keys
	if key.Matches(msg, k.Cancel) {
		m.toTable()
		return m, nil
	}
	if p.editing != "" || p.adding {
		return m.updateDetailsInput(msg)
	}
	var cmd tea.Cmd
	switch {
	case key.Matches(msg, k.Save):
		cmd = m.saveDetails()
	case key.Matches(msg, k.Up):
		p.cursor = max(0, p.cursor-1)
	case key.Matches(msg, k.Down):
		p.cursor = min(len(p.keys)-1, p.cursor+1)
	case key.Matches(msg, k.Edit), key.Matches(msg, k.Apply):
		if cur, ok := p.current(); ok {
			text, _ := p.value(cur)
			if text == table.Differs {
				text = ""
			}
			p.input.Reset()
			p.input.Prompt = ""
			p.input.SetValue(text)
			p.input.CursorEnd()
			p.editing = cur
			cmd = p.input.Focus()
		}
	case key.Matches(msg, k.AddKV):
		p.input.Reset()
		p.input.Prompt = ""
		p.input.Placeholder = "key = value"
		p.adding = true
		cmd = p.input.Focus()
	case key.Matches(msg, k.DeleteKV):
		if cur, ok := p.current(); ok {
			if cur == "pbc" {
				cmd = m.fail(fmt.Errorf("%w: pbc can't be deleted", table.ErrNotEditable))
			} else {
				p.toggleDelete(cur)
			}
		}
	default:
		p.vp, cmd = p.vp.Update(msg)
		return m, cmd
	}
	p.refresh()
	return m, cmd
}

// updateDetailsInput handles keys while a value is typed in the panel.
func (m Model) updateDetailsInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := m.details
	if !key.Matches(msg, m.keys.Apply) {
		var cmd tea.Cmd
		p.input, cmd = p.input.Update(msg)
		p.refresh()
		return m, cmd
	}
	s := p.input.Value()
	var (
		k   string
		v   any
		err error
	)
	if p.adding {
		k, v, err = table.ParseKeyValue(s)
		if err == nil && !m.table.Editable(k) {
			err = fmt.Errorf("%w: %w: %s is a structural column", table.ErrNotEditable, asedb.ErrReservedKey, k)
		}
	} else {
		k = p.editing
		if err = table.CheckInput(s, false); err == nil {
			v, err = table.ParseValue(k, s)
		}
	}
	if err != nil {
		return m, m.fail(err)
	}
	p.set(k, v)
	p.editing, p.adding = "", false
	p.input.Blur()
	p.refresh()
	if k != "pbc" {
		if w := table.TypeChanged(k, p.old[k], v); w != "" {
			return m, m.notify(levelWarning, w)
		}
	}
	return m, nil
}

// saveDetails writes the pending edits and reloads the panel.
func (m *Model) saveDetails() tea.Cmd {
	p := m.details
	if !p.dirty() {
		return m.notify(levelInfo, "Nothing to save")
	}
	if err := m.table.SaveDetails(m.ctx, p.d.IDs, p.edits); err != nil {
		return m.fail(err)
	}
	d, err := m.table.Details(m.ctx, p.d.IDs)
	if err != nil {
		m.toTable()
		return m.fail(err)
	}
	m.details = newDetailsPanel(d, m.width, m.height)
	return m.notify(levelInfo, "Saved")
}

func (m Model) viewDetails() string {
	p := m.details
	var b strings.Builder
	b.WriteString(titleStyle.Render(" " + p.title()))
	if p.dirty() {
		b.WriteString("  " + unsavedStyle.Render("Unsaved changes!"))
	}
	b.WriteString("\n")
	b.WriteString(p.vp.View())
	b.WriteString("\n")
	b.WriteString(m.viewNotice())
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(" ↑/↓ move  e edit  k add  d delete  ctrl+s save  esc close"))
	return b.String()
}
