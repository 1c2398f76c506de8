// Package table holds the in-memory projection of database rows shown by
// the terminal UI: chosen columns, filters, sort order, marks and the
// per-row display cache.
package table

import (
	"context"
	"errors"
	"slices"
	"sort"

	"github.com/steenlysgaard/texase/internal/asedb"
)

var (
	ErrNothingSelected = errors.New("nothing selected")
	ErrNotEditable     = errors.New("column is not editable")
	ErrUnknownColumn   = errors.New("unknown column")
)

// Store is the part of the database the model reads and writes through.
type Store interface {
	Select(ctx context.Context, q asedb.Query) ([]*asedb.Row, error)
	Get(ctx context.Context, id int64) (*asedb.Row, error)
	Update(ctx context.Context, ids []int64, ch asedb.Change) error
	Delete(ctx context.Context, ids []int64) error
	Stamps(ctx context.Context) ([]asedb.Stamp, error)
}

// Model is not safe for concurrent use; the UI mutates it only from its
// event loop.
type Model struct {
	store Store
	now   func() float64

	rows     []*asedb.Row // id order
	index    map[int64]int
	userKeys []string

	columns []string
	// chosen columns in order, including saved names no loaded row has yet
	layout []string

	filters  []asedb.Criterion
	sortKeys []string
	reverse  bool

	visible []int64
	marked  map[int64]bool
	cache   map[int64]map[string]string
}

// New builds a model over rows already read from store. columns is the
// saved column set, nil for the defaults.
func New(store Store, rows []*asedb.Row, columns []string) *Model {
	m := &Model{
		store:    store,
		now:      asedb.Now,
		marked:   map[int64]bool{},
		sortKeys: []string{"id"},
	}
	m.setRows(rows)
	if columns == nil {
		columns = asedb.DefaultColumns
	}
	m.applyColumns(columns)
	m.rebuild()
	return m
}

// SetClock replaces the time source used for the age columns.
func (m *Model) SetClock(now func() float64) {
	m.now = now
	m.invalidate()
}

func (m *Model) setRows(rows []*asedb.Row) {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	m.rows = rows
	m.reindex()
}

func (m *Model) reindex() {
	m.index = make(map[int64]int, len(m.rows))
	keys := map[string]bool{}
	for i, r := range m.rows {
		m.index[r.ID] = i
		for k := range r.KeyValuePairs {
			keys[k] = true
		}
	}
	m.userKeys = m.userKeys[:0]
	for k := range keys {
		m.userKeys = append(m.userKeys, k)
	}
	sort.Strings(m.userKeys)
}

// applyColumns keeps cols as the layout. Names no row has yet stay in
// place and show up once rows carrying them are loaded.
func (m *Model) applyColumns(cols []string) {
	m.layout = nil
	for _, c := range cols {
		if !slices.Contains(m.layout, c) {
			m.layout = append(m.layout, c)
		}
	}
	m.syncColumns()
}

// syncColumns derives the shown columns from the layout.
func (m *Model) syncColumns() {
	m.columns = m.columns[:0]
	for _, c := range m.layout {
		if m.known(c) {
			m.columns = append(m.columns, c)
		}
	}
}

// showColumn appends c to the layout.
func (m *Model) showColumn(c string) {
	if !slices.Contains(m.layout, c) {
		m.layout = append(m.layout, c)
	}
	m.syncColumns()
}

func (m *Model) known(column string) bool {
	return slices.Contains(asedb.StructuralColumns, column) || slices.Contains(m.userKeys, column)
}

// rebuild recomputes the visible sequence and prunes marks to it.
func (m *Model) rebuild() {
	m.visible = m.visible[:0]
	for _, r := range m.rows {
		if m.passes(r) {
			m.visible = append(m.visible, r.ID)
		}
	}
	sort.SliceStable(m.visible, func(i, j int) bool {
		a, b := m.rows[m.index[m.visible[i]]], m.rows[m.index[m.visible[j]]]
		for _, k := range m.sortKeys {
			va, _ := a.Get(k)
			vb, _ := b.Get(k)
			if c := compare(va, vb); c != 0 {
				if m.reverse {
					return c > 0
				}
				return c < 0
			}
		}
		return false
	})
	vis := make(map[int64]bool, len(m.visible))
	for _, id := range m.visible {
		vis[id] = true
	}
	for id := range m.marked {
		if !vis[id] {
			delete(m.marked, id)
		}
	}
}

func (m *Model) passes(r *asedb.Row) bool {
	for _, c := range m.filters {
		v, ok := r.Get(c.Key)
		if !c.Match(v, ok) {
			return false
		}
	}
	return true
}

// compare orders missing values last, numbers before strings.
func compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return 1
		}
		return -1
	}
	fa, aNum := number(a)
	fb, bNum := number(b)
	switch {
	case aNum && bNum:
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case aNum:
		return -1
	case bNum:
		return 1
	}
	sa, sb := FormatValue(a), FormatValue(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	}
	return 0
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	}
	return 0, false
}

// --- Accessors ---

// Len is the number of visible rows.
func (m *Model) Len() int { return len(m.visible) }

// Total is the number of loaded rows.
func (m *Model) Total() int { return len(m.rows) }

// IDAt returns the id of visible row i.
func (m *Model) IDAt(i int) (int64, bool) {
	if i < 0 || i >= len(m.visible) {
		return 0, false
	}
	return m.visible[i], true
}

// PositionOf returns the visible position of id.
func (m *Model) PositionOf(id int64) (int, bool) {
	i := slices.Index(m.visible, id)
	return i, i >= 0
}

// Row returns a loaded row.
func (m *Model) Row(id int64) (*asedb.Row, bool) {
	i, ok := m.index[id]
	if !ok {
		return nil, false
	}
	return m.rows[i], true
}

// LastID is the largest loaded id.
func (m *Model) LastID() int64 {
	if len(m.rows) == 0 {
		return 0
	}
	return m.rows[len(m.rows)-1].ID
}

func (m *Model) Columns() []string  { return slices.Clone(m.columns) }
func (m *Model) UserKeys() []string { return slices.Clone(m.userKeys) }

// Layout is the column set to persist: the shown columns plus saved names
// that are not loaded yet, in their saved order.
func (m *Model) Layout() []string { return slices.Clone(m.layout) }

// Cell returns the display text of column for row id.
func (m *Model) Cell(id int64, column string) string {
	if c, ok := m.cache[id][column]; ok {
		return c
	}
	r, ok := m.Row(id)
	if !ok {
		return ""
	}
	v, _ := r.Get(column)
	s := FormatColumn(column, v, m.now())
	if m.cache == nil {
		m.cache = map[int64]map[string]string{}
	}
	if m.cache[id] == nil {
		m.cache[id] = map[string]string{}
	}
	m.cache[id][column] = s
	return s
}

// Value returns the raw value of column for row id.
func (m *Model) Value(id int64, column string) any {
	r, ok := m.Row(id)
	if !ok {
		return nil
	}
	v, _ := r.Get(column)
	return v
}

// RightAligned reports whether column holds numbers for row id.
func (m *Model) RightAligned(id int64, column string) bool {
	if column == "age" || column == "modified" {
		return true
	}
	return IsNumeric(m.Value(id, column))
}

func (m *Model) invalidate(ids ...int64) {
	if len(ids) == 0 {
		m.cache = nil
		return
	}
	for _, id := range ids {
		delete(m.cache, id)
	}
}

// --- Marks ---

// ToggleMark flips the mark of a visible row.
func (m *Model) ToggleMark(id int64) {
	if m.marked[id] {
		delete(m.marked, id)
		return
	}
	if _, ok := m.PositionOf(id); ok {
		m.marked[id] = true
	}
}

// ToggleAll flips the marks of every visible row.
func (m *Model) ToggleAll() {
	for _, id := range m.visible {
		if m.marked[id] {
			delete(m.marked, id)
		} else {
			m.marked[id] = true
		}
	}
}

func (m *Model) Unmark(id int64) { delete(m.marked, id) }

func (m *Model) UnmarkAll() { clear(m.marked) }

func (m *Model) IsMarked(id int64) bool { return m.marked[id] }

// Marked returns the marked ids in display order.
func (m *Model) Marked() []int64 {
	var out []int64
	for _, id := range m.visible {
		if m.marked[id] {
			out = append(out, id)
		}
	}
	return out
}

// Selection resolves what a batch action works on: the marked rows, else
// the row under the cursor.
func (m *Model) Selection(cursor int) ([]int64, error) {
	if ids := m.Marked(); len(ids) > 0 {
		return ids, nil
	}
	if id, ok := m.IDAt(cursor); ok {
		return []int64{id}, nil
	}
	return nil, ErrNothingSelected
}

// --- Columns ---

// UnusedColumns lists known columns that are not displayed.
func (m *Model) UnusedColumns() []string {
	var out []string
	for _, c := range append(slices.Clone(asedb.StructuralColumns), m.userKeys...) {
		if !slices.Contains(m.columns, c) {
			out = append(out, c)
		}
	}
	return out
}

// AddColumn appends a known column that is not shown yet.
func (m *Model) AddColumn(column string) error {
	if !slices.Contains(m.UnusedColumns(), column) {
		return ErrUnknownColumn
	}
	m.showColumn(column)
	return nil
}

// RemoveColumn hides column.
func (m *Model) RemoveColumn(column string) error {
	if !slices.Contains(m.columns, column) {
		return ErrUnknownColumn
	}
	m.layout = slices.DeleteFunc(m.layout, func(c string) bool { return c == column })
	m.syncColumns()
	return nil
}

// Editable reports whether values of column can be edited.
func (m *Model) Editable(column string) bool {
	return column == "pbc" || !slices.Contains(asedb.StructuralColumns, column)
}

// --- Sorting ---

// Sort puts column first in the sort order, or reverses the order when it
// already is first.
func (m *Model) Sort(column string) {
	if len(m.sortKeys) > 0 && m.sortKeys[0] == column {
		m.reverse = !m.reverse
	} else {
		if i := slices.Index(m.sortKeys, column); i >= 0 {
			m.sortKeys = slices.Delete(m.sortKeys, i, i+1)
		}
		m.sortKeys = slices.Insert(m.sortKeys, 0, column)
		m.reverse = false
	}
	m.rebuild()
}

// SortKeys returns the sort columns and whether the order is reversed.
func (m *Model) SortKeys() ([]string, bool) { return slices.Clone(m.sortKeys), m.reverse }
