package table

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/steenlysgaard/texase/internal/asedb"
)

// Differs is shown in place of a value that is not the same on all rows.
const Differs = "<differs>"

// Pair is one line of the details panel.
type Pair struct {
	Key     string
	Value   any
	Text    string
	Differs bool
}

// Details is what the details panel shows for one or more rows.
type Details struct {
	IDs      []int64
	Static   []Pair
	Editable []Pair
	Data     []Pair // single row only
}

var staticKeys = append(slices.DeleteFunc(slices.Clone(asedb.StructuralColumns),
	func(k string) bool { return k == "pbc" }), "unique_id")

// Details collects the key-value pairs of rows ids. With several rows only
// keys present on all of them are listed.
func (m *Model) Details(ctx context.Context, ids []int64) (*Details, error) {
	if len(ids) == 0 {
		return nil, ErrNothingSelected
	}
	rows := make([]*asedb.Row, len(ids))
	for i, id := range ids {
		r, ok := m.Row(id)
		if !ok {
			return nil, fmt.Errorf("row %d: %w", id, asedb.ErrNotFound)
		}
		rows[i] = r
	}
	now := m.now()
	d := &Details{IDs: slices.Clone(ids)}
	for _, k := range staticKeys {
		if p, ok := aggregate(rows, k, now); ok {
			d.Static = append(d.Static, p)
		}
	}
	keys := append([]string{"pbc"}, rows[0].UserKeys()...)
	for _, k := range keys {
		if p, ok := aggregate(rows, k, now); ok {
			d.Editable = append(d.Editable, p)
		}
	}
	if len(rows) == 1 {
		full, err := m.store.Get(ctx, ids[0])
		if err != nil {
			return nil, err
		}
		dk := make([]string, 0, len(full.Data))
		for k := range full.Data {
			dk = append(dk, k)
		}
		sort.Strings(dk)
		for _, k := range dk {
			v := full.Data[k]
			d.Data = append(d.Data, Pair{Key: k, Value: v, Text: fmt.Sprint(v)})
		}
	}
	return d, nil
}

// aggregate returns the pair for key when every row has it.
func aggregate(rows []*asedb.Row, key string, now float64) (Pair, bool) {
	first, ok := rows[0].Get(key)
	if !ok || first == nil {
		return Pair{}, false
	}
	p := Pair{Key: key, Value: first, Text: FormatColumn(key, first, now)}
	for _, r := range rows[1:] {
		v, ok := r.Get(key)
		if !ok || v == nil {
			return Pair{}, false
		}
		if !p.Differs && FormatValue(v) != FormatValue(first) {
			p.Differs = true
			p.Value = nil
			p.Text = Differs
		}
	}
	return p, true
}

// Edits are the pending changes of the details panel.
type Edits struct {
	Set    map[string]any
	Delete []string
	PBC    *[3]bool
}

func (e Edits) Empty() bool { return len(e.Set) == 0 && len(e.Delete) == 0 && e.PBC == nil }

// SaveDetails writes the panel edits to rows ids.
func (m *Model) SaveDetails(ctx context.Context, ids []int64, e Edits) error {
	if e.Empty() {
		return nil
	}
	for k := range e.Set {
		if !m.Editable(k) || k == "pbc" {
			return fmt.Errorf("%w: %w: %s is a structural column", ErrNotEditable, asedb.ErrReservedKey, k)
		}
	}
	var added []string
	for k := range e.Set {
		if !m.known(k) {
			added = append(added, k)
		}
	}
	sort.Strings(added)
	if err := m.store.Update(ctx, ids, asedb.Change{Set: e.Set, Delete: e.Delete, PBC: e.PBC}); err != nil {
		return err
	}
	if err := m.reload(ctx, ids); err != nil {
		return err
	}
	for _, k := range added {
		if m.known(k) {
			m.showColumn(k)
		}
	}
	return nil
}
