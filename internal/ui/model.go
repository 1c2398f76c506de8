// Package ui is the terminal shell: a bubbletea model that dispatches key
// events to the row table and the database.
package ui

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/steenlysgaard/texase/internal/asedb"
	"github.com/steenlysgaard/texase/internal/prefs"
	"github.com/steenlysgaard/texase/internal/table"
	"github.com/steenlysgaard/texase/internal/transfer"
)

type mode int

const (
	modeTable mode = iota
	modeFilter
	modeSearch
	modeDetails
	modeEdit
	modeAddKV
	modeAddColumn
	modeFiles
	modeConfirm
	modeHelp
)

func (m mode) String() string {
	return [...]string{"table", "filter", "search", "details", "edit", "add", "column", "files", "confirm", "help"}[m]
}

type severity int

const (
	levelInfo severity = iota
	levelWarning
	levelError
)

type notice struct {
	text  string
	level severity
	id    int
}

type (
	rowsLoadedMsg struct {
		rows []*asedb.Row
		err  error
	}
	noticeExpiredMsg struct{ id int }
)

// Options configure a shell.
type Options struct {
	DB      *asedb.DB
	Rows    []*asedb.Row // first page, already read
	Config  prefs.Config
	Columns *prefs.Columns // nil disables the column store
	// TempDir receives viewer snapshots, the system temp dir when empty.
	TempDir string
}

type Model struct {
	ctx     context.Context
	db      *asedb.DB
	cfg     prefs.Config
	store   *prefs.Columns
	tempDir string

	table   *table.Model
	keys    keyMap
	help    help.Model
	spin    spinner.Model
	loading bool
	viewers *viewers

	mode          mode
	width, height int
	cy, cx        int // cursor: visible row, column
	offY, offX    int
	notice        notice
	quitting      bool

	filter  filterDialog
	search  searchDialog
	input   textinput.Model
	target  inputTarget
	details *detailsPanel
	confirm confirmDialog
	helpVP  viewport.Model
}

// New builds the shell over the rows already loaded. When the first page
// is full the remaining rows are loaded in the background by Init.
func New(opts Options) Model {
	cols := opts.Config.DefaultColumns
	if opts.Columns != nil {
		if saved, ok, err := opts.Columns.Load(opts.DB.Path()); err != nil {
			slog.Warn("load columns", "db", opts.DB.Path(), "err", err)
		} else if ok {
			cols = saved
		}
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	m := Model{
		ctx:     context.Background(),
		db:      opts.DB,
		cfg:     opts.Config,
		store:   opts.Columns,
		tempDir: opts.TempDir,
		table:   table.New(opts.DB, opts.Rows, cols),
		keys:    defaultKeys(),
		help:    help.New(),
		spin:    sp,
		viewers: newViewers(),
		input:   textinput.New(),
		helpVP:  viewport.New(80, 20),
	}
	m.loading = opts.Config.InitialRows > 0 && len(opts.Rows) >= opts.Config.InitialRows
	m.filter = newFilterDialog()
	m.search = newSearchDialog()
	return m
}

func (m Model) Init() tea.Cmd {
	if !m.loading {
		return nil
	}
	return tea.Batch(m.spin.Tick, m.loadRemaining())
}

// loadRemaining reads the rows after the first page off the event loop;
// the result is applied in Update.
func (m Model) loadRemaining() tea.Cmd {
	db, ctx, after := m.db, m.ctx, m.table.LastID()
	return func() tea.Msg {
		rows, err := db.Select(ctx, asedb.Query{AfterID: after})
		return rowsLoadedMsg{rows: rows, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.resizePanels()
		m.follow()
		return m, nil
	case rowsLoadedMsg:
		m.loading = false
		if msg.err != nil {
			return m, m.fail(fmt.Errorf("load rows: %w", msg.err))
		}
		m.table.Append(msg.rows)
		slog.Debug("rows loaded", "rows", len(msg.rows), "total", m.table.Total())
		return m, nil
	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	case noticeExpiredMsg:
		if msg.id == m.notice.id {
			m.notice.text = ""
		}
		return m, nil
	case viewerExitedMsg:
		if msg.err != nil && !m.quitting {
			return m, m.notify(levelWarning, "Viewer exited: "+msg.err.Error())
		}
		return m, nil
	case tea.ResumeMsg:
		return m.reload()
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m.quit()
		}
		switch m.mode {
		case modeTable:
			return m.updateTable(msg)
		case modeFilter:
			return m.updateFilter(msg)
		case modeSearch:
			return m.updateSearch(msg)
		case modeDetails:
			return m.updateDetails(msg)
		case modeEdit, modeAddKV, modeAddColumn, modeFiles:
			return m.updateInput(msg)
		case modeConfirm:
			return m.updateConfirm(msg)
		case modeHelp:
			return m.updateHelp(msg)
		}
	}
	return m, nil
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	m.saveColumns()
	m.viewers.stopAll()
	return m, tea.Quit
}

func (m Model) saveColumns() {
	if m.store == nil {
		return
	}
	if err := m.store.Save(m.db.Path(), m.table.Layout()); err != nil {
		slog.Error("save columns", "db", m.db.Path(), "err", err)
	}
}

// toTable leaves any dialog without committing it.
func (m *Model) toTable() {
	m.mode = modeTable
	m.input.Blur()
	m.details = nil
	m.confirm = confirmDialog{}
}

// notify shows text until the notice time runs out or another notice
// replaces it.
func (m *Model) notify(level severity, text string) tea.Cmd {
	m.notice = notice{text: text, level: level, id: m.notice.id + 1}
	id := m.notice.id
	d := m.cfg.NoticeDuration()
	if d <= 0 {
		d = 3 * time.Second
	}
	if level == levelError {
		d *= 2
	}
	return tea.Tick(d, func(time.Time) tea.Msg { return noticeExpiredMsg{id: id} })
}

// fail reports err as a notice. Rejected input only warns the user; I/O
// and unexpected failures are also logged.
func (m *Model) fail(err error) tea.Cmd {
	switch {
	case isInputError(err):
		slog.Debug("rejected", "mode", m.mode, "err", err)
	case isIOError(err):
		slog.Warn("i/o failure", "mode", m.mode, "err", err)
	default:
		slog.Error("unexpected failure", "mode", m.mode, "err", err)
	}
	return m.notify(levelError, errorText(err))
}

func isInputError(err error) bool {
	for _, target := range []error{
		table.ErrNothingSelected, table.ErrNotEditable, table.ErrUnknownColumn,
		table.ErrInvalidInput, asedb.ErrReservedKey, asedb.ErrBadValue,
		asedb.ErrBadCriterion, transfer.ErrExists,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isIOError(err error) bool {
	return errors.Is(err, transfer.ErrRead) || errors.Is(err, transfer.ErrWrite) ||
		errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission)
}

func errorText(err error) string {
	if errors.Is(err, table.ErrNothingSelected) {
		return "Nothing selected: mark rows or move the cursor to a row."
	}
	return err.Error()
}

// selection resolves the rows a batch action works on.
func (m Model) selection() ([]int64, error) {
	return m.table.Selection(m.cy)
}

func (m Model) column() (string, bool) {
	cols := m.table.Columns()
	if m.cx < 0 || m.cx >= len(cols) {
		return "", false
	}
	return cols[m.cx], true
}

func (m *Model) resizePanels() {
	m.helpVP.Width = max(m.width, 20)
	m.helpVP.Height = max(m.height-2, 3)
	if m.details != nil {
		m.details.resize(m.width, m.height)
	}
}
