package ui

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steenlysgaard/texase/internal/asedb"
	"github.com/steenlysgaard/texase/internal/prefs"
)

// newTestShell opens a database with five rows: odd ids are H2, even ids
// H2O, energy is -id, every row has n=id and rows 1 and 2 have tag=bulk.
func newTestShell(t *testing.T, initialRows int) (Model, *asedb.DB) {
	t.Helper()
	ctx := context.Background()
	db, err := asedb.Open(ctx, filepath.Join(t.TempDir(), "A.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var atoms []*asedb.Atoms
	for i := 1; i <= 5; i++ {
		e := -float64(i)
		a := &asedb.Atoms{
			Numbers:       []int{1, 1},
			Positions:     [][3]float64{{0, 0, 0}, {0, 0, 0.74}},
			Energy:        &e,
			KeyValuePairs: map[string]any{"n": int64(i)},
		}
		if i%2 == 0 {
			a.Numbers = []int{8, 1, 1}
			a.Positions = [][3]float64{{0, 0, 0}, {0.76, 0.59, 0}, {-0.76, 0.59, 0}}
		}
		if i <= 2 {
			a.KeyValuePairs["tag"] = "bulk"
		}
		atoms = append(atoms, a)
	}
	_, err = db.Write(ctx, atoms...)
	require.NoError(t, err)

	cfg := prefs.Default()
	cfg.InitialRows = initialRows
	rows, err := db.Select(ctx, asedb.Query{Limit: initialRows})
	require.NoError(t, err)
	m := New(Options{
		DB:      db,
		Rows:    rows,
		Config:  cfg,
		Columns: prefs.NewColumns(t.TempDir()),
		TempDir: t.TempDir(),
	})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 160, Height: 30})
	return next.(Model), db
}

var specialKeys = map[string]tea.KeyType{
	"enter":     tea.KeyEnter,
	"esc":       tea.KeyEsc,
	"up":        tea.KeyUp,
	"down":      tea.KeyDown,
	"left":      tea.KeyLeft,
	"right":     tea.KeyRight,
	"tab":       tea.KeyTab,
	"backspace": tea.KeyBackspace,
	"ctrl+a":    tea.KeyCtrlA,
	"ctrl+r":    tea.KeyCtrlR,
	"ctrl+s":    tea.KeyCtrlS,
	"ctrl+t":    tea.KeyCtrlT,
	"ctrl+u":    tea.KeyCtrlU,
	"ctrl+x":    tea.KeyCtrlX,
}

// press sends each key in turn. Anything that is not a named key is typed
// as text.
func press(m Model, keys ...string) (Model, tea.Cmd) {
	var cmd tea.Cmd
	for _, k := range keys {
		msg := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		if kt, ok := specialKeys[k]; ok {
			msg = tea.KeyMsg{Type: kt}
		} else if k == " " {
			msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
		}
		var next tea.Model
		next, cmd = m.Update(msg)
		m = next.(Model)
	}
	return m, cmd
}

func cursorID(m Model) int64 {
	id, _ := m.table.IDAt(m.cy)
	return id
}

func toColumn(m Model, name string) Model {
	for i, c := range m.table.Columns() {
		if c == name {
			m.cx = i
			m.follow()
		}
	}
	return m
}

func TestMarkKeys(t *testing.T) {
	m, _ := newTestShell(t, 100)
	m, _ = press(m, " ", " ")
	assert.Equal(t, []int64{1, 2}, m.table.Marked())
	assert.Equal(t, int64(3), cursorID(m))

	m, _ = press(m, "up", "u")
	assert.Equal(t, []int64{1}, m.table.Marked())
	m, _ = press(m, "ctrl+a")
	assert.Equal(t, []int64{2, 3, 4, 5}, m.table.Marked())
	m, _ = press(m, "U")
	assert.Empty(t, m.table.Marked())
}

func TestFilterDialog(t *testing.T) {
	m, _ := newTestShell(t, 100)
	m = toColumn(m, "energy")
	m, _ = press(m, "/")
	require.Equal(t, modeFilter, m.mode)
	assert.Equal(t, "energy", m.filter.key.Value())

	m, _ = press(m, "tab", "<", "tab", "-2.5", "enter")
	assert.Equal(t, modeTable, m.mode)
	assert.Equal(t, 3, m.table.Len())
	assert.Contains(t, m.View(), "energy < -2.5")

	// esc leaves without applying
	m, _ = press(m, "/", "tab", "tab", "-4.5", "esc")
	assert.Equal(t, modeTable, m.mode)
	assert.Equal(t, 3, m.table.Len())

	m, _ = press(m, "/", "ctrl+r")
	assert.Empty(t, m.table.Filters())
	assert.Equal(t, 5, m.table.Len())
	m, _ = press(m, "esc")
	assert.Equal(t, modeTable, m.mode)
}

func TestTypedOperators(t *testing.T) {
	m, _ := newTestShell(t, 100)
	m = toColumn(m, "energy")
	m, _ = press(m, "/", "tab")
	require.Equal(t, fieldOp, m.filter.focus)

	for _, c := range []struct {
		keys []string
		want asedb.Op
	}{
		{[]string{"<", "="}, asedb.OpLe},
		{[]string{">", "="}, asedb.OpGe},
		{[]string{"!", "="}, asedb.OpNe},
		{[]string{"<"}, asedb.OpLt},
		{[]string{"i", "n"}, asedb.OpIn},
		{[]string{"="}, asedb.OpEq},
	} {
		m, _ = press(m, "right")
		m, _ = press(m, c.keys...)
		assert.Equal(t, c.want, asedb.Ops[m.filter.op], c.keys)
	}

	m, _ = press(m, "<", "=", "tab", "-3", "enter")
	assert.Equal(t, modeTable, m.mode)
	assert.Equal(t, 3, m.table.Len())
}

func TestRejectedFilterKeepsDialog(t *testing.T) {
	m, _ := newTestShell(t, 100)
	m = toColumn(m, "energy")
	m, _ = press(m, "/", "tab", ">", "tab", "high", "enter")
	assert.Equal(t, modeFilter, m.mode)
	assert.Empty(t, m.table.Filters())
	assert.Equal(t, levelError, m.notice.level)
	assert.NotEmpty(t, m.notice.text)
}

func TestFilterOnlyMark(t *testing.T) {
	m, _ := newTestShell(t, 100)
	m = toColumn(m, "formula")
	m, _ = press(m, "/", "ctrl+t", "tab", "tab", "H2O", "enter")
	assert.Equal(t, modeTable, m.mode)
	assert.Equal(t, 5, m.table.Len())
	assert.Equal(t, []int64{2, 4}, m.table.Marked())
}

func TestSearchCyclesAndWraps(t *testing.T) {
	m, _ := newTestShell(t, 100)
	formula := 3
	require.Equal(t, "formula", m.table.Columns()[formula])

	m, _ = press(m, "ctrl+s", "H2O")
	require.Equal(t, modeSearch, m.mode)
	assert.Equal(t, int64(2), cursorID(m))
	assert.Equal(t, formula, m.cx)

	m, _ = press(m, "ctrl+s")
	assert.Equal(t, int64(4), cursorID(m))
	m, _ = press(m, "ctrl+s")
	assert.Equal(t, int64(2), cursorID(m), "wraps to the first match")
	m, _ = press(m, "ctrl+r")
	assert.Equal(t, int64(4), cursorID(m))

	// esc returns to where the search started
	m, _ = press(m, "esc")
	assert.Equal(t, modeTable, m.mode)
	assert.Equal(t, int64(1), cursorID(m))

	// the query is kept, enter stays on the match
	m, _ = press(m, "ctrl+s", "ctrl+s", "enter")
	assert.Equal(t, modeTable, m.mode)
	assert.Equal(t, int64(2), cursorID(m))
}

func TestEditStructuralColumnRejected(t *testing.T) {
	m, db := newTestShell(t, 100)
	m = toColumn(m, "energy")
	m, _ = press(m, "e")
	assert.Equal(t, modeTable, m.mode)
	assert.Equal(t, levelError, m.notice.level)

	r, err := db.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, -1.0, *r.Energy)
}

func TestAddAndEditKeyValue(t *testing.T) {
	ctx := context.Background()
	m, db := newTestShell(t, 100)

	m, _ = press(m, "k", "note = hi", "enter")
	assert.Equal(t, modeTable, m.mode)
	assert.Contains(t, m.table.Columns(), "note")
	r, err := db.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "hi", r.KeyValuePairs["note"])

	m, _ = press(m, "k", "Cu = 1", "enter")
	assert.Equal(t, modeAddKV, m.mode)
	assert.Equal(t, levelError, m.notice.level)
	m, _ = press(m, "esc")
	assert.Equal(t, modeTable, m.mode)

	m, _ = press(m, "+", "n", "enter")
	require.Equal(t, "n", m.table.Columns()[m.cx])
	m, _ = press(m, "e")
	require.Equal(t, modeEdit, m.mode)
	assert.Equal(t, "1", m.input.Value())
	m, _ = press(m, "ctrl+u", "seven", "enter")
	assert.Equal(t, modeTable, m.mode)
	assert.Equal(t, levelWarning, m.notice.level)
	assert.Contains(t, m.notice.text, "from int to str")
	r, err = db.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "seven", r.KeyValuePairs["n"])
}

func TestDeleteKeyAsksFirst(t *testing.T) {
	m, db := newTestShell(t, 100)
	m, _ = press(m, "+", "tag", "enter", "d")
	require.Equal(t, modeConfirm, m.mode)
	m, _ = press(m, "n")
	assert.Equal(t, modeTable, m.mode)
	m, _ = press(m, "d", "y")
	assert.Equal(t, modeTable, m.mode)

	r, err := db.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.NotContains(t, r.KeyValuePairs, "tag")
	assert.Contains(t, m.table.Columns(), "tag", "row 2 still has a tag")
}

func TestDetailsPanel(t *testing.T) {
	ctx := context.Background()
	m, db := newTestShell(t, 100)

	m, _ = press(m, "enter")
	require.Equal(t, modeDetails, m.mode)
	require.Equal(t, []string{"pbc", "n", "tag"}, m.details.keys)

	// discard with esc
	m, _ = press(m, "down", "d")
	assert.Contains(t, m.View(), "Unsaved changes!")
	m, _ = press(m, "esc")
	assert.Equal(t, modeTable, m.mode)
	r, err := db.Get(ctx, 1)
	require.NoError(t, err)
	assert.Contains(t, r.KeyValuePairs, "n")

	// delete n, change tag, add a pair, then save
	m, _ = press(m, "enter", "down", "d", "down", "e", "ctrl+u", "surface", "enter", "k", "weight = 2.5", "enter")
	assert.True(t, m.details.dirty())
	m, _ = press(m, "ctrl+s")
	assert.Equal(t, modeDetails, m.mode)
	assert.False(t, m.details.dirty())
	assert.NotContains(t, m.View(), "Unsaved changes!")

	r, err = db.Get(ctx, 1)
	require.NoError(t, err)
	assert.NotContains(t, r.KeyValuePairs, "n")
	assert.Equal(t, "surface", r.KeyValuePairs["tag"])
	assert.Equal(t, 2.5, r.KeyValuePairs["weight"])

	// reserved keys are refused inside the panel too
	m, _ = press(m, "k", "energy = 1", "enter")
	assert.Equal(t, levelError, m.notice.level)
	assert.True(t, m.details.adding)
}

func TestDetailsOfMarkedRows(t *testing.T) {
	m, _ := newTestShell(t, 100)
	m, _ = press(m, " ", " ", " ", "enter")
	require.Equal(t, modeDetails, m.mode)
	assert.Equal(t, []int64{1, 2, 3}, m.details.d.IDs)
	// tag is not on row 3
	assert.Equal(t, []string{"pbc", "n"}, m.details.keys)
	text, _ := m.details.value("n")
	assert.Equal(t, "<differs>", text)
}

func TestExportImport(t *testing.T) {
	m, _ := newTestShell(t, 100)
	out := filepath.Join(t.TempDir(), "out.xyz")

	// nothing visible, nothing selected
	m = toColumn(m, "energy")
	m, _ = press(m, "/", "tab", "<", "tab", "-10", "enter")
	require.Zero(t, m.table.Len())
	m, _ = press(m, "x")
	assert.Equal(t, modeTable, m.mode)
	assert.Contains(t, m.notice.text, "Nothing selected")
	assert.NoFileExists(t, out)

	m, _ = press(m, "/", "ctrl+x", "esc", " ", " ", "x", out, "enter")
	assert.Equal(t, modeTable, m.mode)
	require.FileExists(t, out)

	// an existing file needs confirmation
	m, _ = press(m, "x", out, "enter")
	require.Equal(t, modeConfirm, m.mode)
	m, _ = press(m, "y")
	assert.Equal(t, modeTable, m.mode)
	assert.Contains(t, m.notice.text, "Exported 2 rows")

	m, _ = press(m, "i", out+"@:", "enter")
	assert.Equal(t, modeTable, m.mode)
	assert.Equal(t, 7, m.table.Total())

	m, _ = press(m, "i", filepath.Join(t.TempDir(), "missing.xyz"), "enter")
	assert.Equal(t, levelError, m.notice.level)
	assert.Equal(t, 7, m.table.Total())
}

func TestDeleteRows(t *testing.T) {
	m, db := newTestShell(t, 100)
	m, _ = press(m, " ", " ", "#")
	require.Equal(t, modeConfirm, m.mode)
	m, _ = press(m, "n")
	assert.Equal(t, 5, m.table.Total())

	m, _ = press(m, "#", "y")
	assert.Equal(t, 3, m.table.Total())
	n, err := db.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestColumnsPersist(t *testing.T) {
	m, db := newTestShell(t, 100)
	m, _ = press(m, "+", "tag", "enter", "<", "-")
	want := m.table.Columns()
	assert.Equal(t, "age", want[0])
	assert.Equal(t, "tag", want[len(want)-1])

	rows, err := db.Select(context.Background(), asedb.Query{})
	require.NoError(t, err)
	again := New(Options{DB: db, Rows: rows, Config: m.cfg, Columns: m.store})
	assert.Equal(t, want, again.table.Columns())
}

func TestBackgroundLoad(t *testing.T) {
	m, _ := newTestShell(t, 2)
	require.True(t, m.loading)
	assert.Equal(t, 2, m.table.Total())
	assert.NotNil(t, m.Init())

	next, _ := m.Update(m.loadRemaining()())
	m = next.(Model)
	assert.False(t, m.loading)
	assert.Equal(t, 5, m.table.Total())
}

func TestResumeRefreshes(t *testing.T) {
	m, db := newTestShell(t, 100)
	require.NoError(t, db.Delete(context.Background(), []int64{5}))
	next, _ := m.Update(tea.ResumeMsg{})
	m = next.(Model)
	assert.Equal(t, 4, m.table.Total())
	assert.Contains(t, m.notice.text, "1 removed")
}

func TestHelpAndQuit(t *testing.T) {
	m, _ := newTestShell(t, 100)
	m, _ = press(m, "?")
	assert.Equal(t, modeHelp, m.mode)
	assert.Contains(t, m.View(), "Help")
	m, _ = press(m, "esc")
	assert.Equal(t, modeTable, m.mode)

	m, cmd := press(m, "q")
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, m.quitting)
}

func TestNoticeExpires(t *testing.T) {
	m, _ := newTestShell(t, 100)
	m, _ = press(m, "g")
	require.Equal(t, "Up to date", m.notice.text)
	next, _ := m.Update(noticeExpiredMsg{id: m.notice.id - 1})
	m = next.(Model)
	assert.Equal(t, "Up to date", m.notice.text, "stale timers are ignored")
	next, _ = m.Update(noticeExpiredMsg{id: m.notice.id})
	assert.Empty(t, next.(Model).notice.text)
}

func TestViewersStopOnQuit(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	v := newViewers()
	file := filepath.Join(t.TempDir(), "snap.extxyz")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	wait, err := v.start([]string{"sleep", "30"}, file)
	require.NoError(t, err)
	assert.Equal(t, 1, v.count())

	done := make(chan tea.Msg, 1)
	go func() { done <- wait() }()
	v.stopAll()
	select {
	case msg := <-done:
		assert.Error(t, msg.(viewerExitedMsg).err)
	case <-time.After(5 * time.Second):
		t.Fatal("viewer still running")
	}
	assert.Zero(t, v.count())
	assert.NoFileExists(t, file)
}
