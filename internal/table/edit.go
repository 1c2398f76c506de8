package table

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/steenlysgaard/texase/internal/asedb"
)

// SetValue writes key=value to rows ids. A key not seen before is added to
// the displayed columns. pbc takes a [3]bool or a "TFT" string.
func (m *Model) SetValue(ctx context.Context, ids []int64, key string, value any) error {
	var ch asedb.Change
	if key == "pbc" {
		pbc, err := pbcValue(value)
		if err != nil {
			return err
		}
		ch.PBC = &pbc
	} else {
		if !m.Editable(key) {
			return fmt.Errorf("%w: %w: %s is a structural column", ErrNotEditable, asedb.ErrReservedKey, key)
		}
		ch.Set = map[string]any{key: value}
	}
	isNew := !m.known(key)
	if err := m.store.Update(ctx, ids, ch); err != nil {
		return err
	}
	if err := m.reload(ctx, ids); err != nil {
		return err
	}
	if isNew {
		m.showColumn(key)
	}
	return nil
}

func pbcValue(v any) ([3]bool, error) {
	switch x := v.(type) {
	case [3]bool:
		return x, nil
	case string:
		return asedb.ParsePBC(x)
	}
	return [3]bool{}, fmt.Errorf("%w: pbc must be three T/F letters", asedb.ErrBadValue)
}

// DeleteKey removes a user key from rows ids.
func (m *Model) DeleteKey(ctx context.Context, ids []int64, key string) error {
	if !slices.Contains(m.userKeys, key) {
		return fmt.Errorf("%w: %s is not a key-value pair", ErrNotEditable, key)
	}
	if err := m.store.Update(ctx, ids, asedb.Change{Delete: []string{key}}); err != nil {
		return err
	}
	return m.reload(ctx, ids)
}

// reload re-reads rows ids after a write, refreshing only their display
// entries. Keys that no longer occur on any row are dropped.
func (m *Model) reload(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		r, err := m.store.Get(ctx, id)
		if err != nil {
			return err
		}
		r.Data = nil
		if i, ok := m.index[id]; ok {
			m.rows[i] = r
		}
	}
	m.invalidate(ids...)
	m.afterChange()
	return nil
}

// afterChange updates user keys and columns after rows changed.
func (m *Model) afterChange() {
	m.reindex()
	// a shown key that left every row is dropped, saved names not loaded
	// yet keep their place
	m.layout = slices.DeleteFunc(m.layout, func(c string) bool {
		return slices.Contains(m.columns, c) && !m.known(c)
	})
	m.syncColumns()
	m.rebuild()
}

// DeleteRows removes rows from the database and the model.
func (m *Model) DeleteRows(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return ErrNothingSelected
	}
	if err := m.store.Delete(ctx, ids); err != nil {
		return err
	}
	m.drop(ids)
	return nil
}

func (m *Model) drop(ids []int64) {
	gone := make(map[int64]bool, len(ids))
	for _, id := range ids {
		gone[id] = true
		delete(m.marked, id)
	}
	m.rows = slices.DeleteFunc(m.rows, func(r *asedb.Row) bool { return gone[r.ID] })
	m.invalidate(ids...)
	m.afterChange()
}

// Append adds rows read elsewhere, e.g. by a background load. Rows already
// loaded are replaced.
func (m *Model) Append(rows []*asedb.Row) {
	if len(rows) == 0 {
		return
	}
	for _, r := range rows {
		if i, ok := m.index[r.ID]; ok {
			m.rows[i] = r
			m.invalidate(r.ID)
			continue
		}
		m.rows = append(m.rows, r)
	}
	sort.SliceStable(m.rows, func(i, j int) bool { return m.rows[i].ID < m.rows[j].ID })
	m.afterChange()
}

// AddRows reads the rows ids from the database into the model.
func (m *Model) AddRows(ctx context.Context, ids []int64) error {
	rows := make([]*asedb.Row, 0, len(ids))
	for _, id := range ids {
		r, err := m.store.Get(ctx, id)
		if err != nil {
			return err
		}
		r.Data = nil
		rows = append(rows, r)
	}
	m.Append(rows)
	return nil
}

// LoadRemaining reads the rows after the last loaded id.
func (m *Model) LoadRemaining(ctx context.Context) (int, error) {
	rows, err := m.store.Select(ctx, asedb.Query{AfterID: m.LastID()})
	if err != nil {
		return 0, err
	}
	m.Append(rows)
	return len(rows), nil
}

// RefreshResult counts what Refresh changed.
type RefreshResult struct {
	Removed, Updated, Added int
}

func (r RefreshResult) Changed() bool { return r.Removed+r.Updated+r.Added > 0 }

// Refresh picks up changes made to the database by someone else: removed
// rows, rows with a newer mtime and rows added after the last loaded id.
func (m *Model) Refresh(ctx context.Context) (RefreshResult, error) {
	var res RefreshResult
	stamps, err := m.store.Stamps(ctx)
	if err != nil {
		return res, err
	}
	inDB := make(map[int64]bool, len(stamps))
	var updated []int64
	last := m.LastID()
	for _, s := range stamps {
		inDB[s.ID] = true
		if r, ok := m.Row(s.ID); ok && s.MTime > r.MTime {
			updated = append(updated, s.ID)
		}
	}
	var removed []int64
	for _, r := range m.rows {
		if !inDB[r.ID] {
			removed = append(removed, r.ID)
		}
	}
	if len(removed) > 0 {
		m.drop(removed)
	}
	if len(updated) > 0 {
		if err := m.reload(ctx, updated); err != nil {
			return res, err
		}
	}
	added, err := m.store.Select(ctx, asedb.Query{AfterID: last})
	if err != nil {
		return res, err
	}
	m.Append(added)
	m.invalidate()
	return RefreshResult{Removed: len(removed), Updated: len(updated), Added: len(added)}, nil
}
