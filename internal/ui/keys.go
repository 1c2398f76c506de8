package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up, Down, Left, Right key.Binding
	PageUp, PageDown      key.Binding
	Top, Bottom           key.Binding
	FirstCol, LastCol     key.Binding

	Help       key.Binding
	Mark       key.Binding
	Unmark     key.Binding
	UnmarkAll  key.Binding
	ToggleAll  key.Binding
	Filter     key.Binding
	Search     key.Binding
	View       key.Binding
	Import     key.Binding
	Export     key.Binding
	AddKV      key.Binding
	DeleteKV   key.Binding
	Edit       key.Binding
	Details    key.Binding
	AddCol     key.Binding
	RemoveCol  key.Binding
	DeleteRows key.Binding
	Sort       key.Binding
	Reload     key.Binding
	Suspend    key.Binding
	Quit       key.Binding

	// dialogs
	Cancel     key.Binding
	Apply      key.Binding
	NextField  key.Binding
	Prev       key.Binding
	MarkOnly   key.Binding
	ClearAll   key.Binding
	Save       key.Binding
	Yes        key.Binding
	No         key.Binding
	PrevOption key.Binding
	NextOption key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Up:       key.NewBinding(key.WithKeys("up"), key.WithHelp("↑", "up")),
		Down:     key.NewBinding(key.WithKeys("down"), key.WithHelp("↓", "down")),
		Left:     key.NewBinding(key.WithKeys("left"), key.WithHelp("←", "left")),
		Right:    key.NewBinding(key.WithKeys("right"), key.WithHelp("→", "right")),
		PageUp:   key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "page up")),
		PageDown: key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "page down")),
		Top:      key.NewBinding(key.WithKeys("home"), key.WithHelp("home", "first row")),
		Bottom:   key.NewBinding(key.WithKeys("end"), key.WithHelp("end", "last row")),
		FirstCol: key.NewBinding(key.WithKeys("<"), key.WithHelp("<", "first column")),
		LastCol:  key.NewBinding(key.WithKeys(">"), key.WithHelp(">", "last column")),

		Help:       key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Mark:       key.NewBinding(key.WithKeys(" ", "space"), key.WithHelp("space", "mark row")),
		Unmark:     key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "unmark row")),
		UnmarkAll:  key.NewBinding(key.WithKeys("U"), key.WithHelp("U", "unmark all")),
		ToggleAll:  key.NewBinding(key.WithKeys("ctrl+a"), key.WithHelp("ctrl+a", "toggle all marks")),
		Filter:     key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "filter")),
		Search:     key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "search")),
		View:       key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "view")),
		Import:     key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "import")),
		Export:     key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "export")),
		AddKV:      key.NewBinding(key.WithKeys("k"), key.WithHelp("k", "add key-value")),
		DeleteKV:   key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete key-value")),
		Edit:       key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit")),
		Details:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "details")),
		AddCol:     key.NewBinding(key.WithKeys("+"), key.WithHelp("+", "add column")),
		RemoveCol:  key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "remove column")),
		DeleteRows: key.NewBinding(key.WithKeys("#"), key.WithHelp("#", "delete rows")),
		Sort:       key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sort")),
		Reload:     key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "reload")),
		Suspend:    key.NewBinding(key.WithKeys("ctrl+z"), key.WithHelp("ctrl+z", "suspend")),
		Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),

		Cancel:     key.NewBinding(key.WithKeys("esc", "ctrl+g"), key.WithHelp("esc", "cancel")),
		Apply:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "apply")),
		NextField:  key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next field")),
		Prev:       key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "previous")),
		MarkOnly:   key.NewBinding(key.WithKeys("ctrl+t"), key.WithHelp("ctrl+t", "only mark")),
		ClearAll:   key.NewBinding(key.WithKeys("ctrl+x"), key.WithHelp("ctrl+x", "clear filters")),
		Save:       key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "save")),
		Yes:        key.NewBinding(key.WithKeys("y", "Y", "enter"), key.WithHelp("y", "yes")),
		No:         key.NewBinding(key.WithKeys("n", "N", "esc", "ctrl+g"), key.WithHelp("n", "no")),
		PrevOption: key.NewBinding(key.WithKeys("left"), key.WithHelp("←", "previous operator")),
		NextOption: key.NewBinding(key.WithKeys("right"), key.WithHelp("→", "next operator")),
	}
}

// ShortHelp is the one-line hint under the table.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Mark, k.Filter, k.Search, k.Details, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Left, k.Right, k.PageUp, k.PageDown, k.Top, k.Bottom, k.FirstCol, k.LastCol},
		{k.Mark, k.Unmark, k.UnmarkAll, k.ToggleAll, k.Filter, k.Search, k.Sort, k.Reload},
		{k.Details, k.Edit, k.AddKV, k.DeleteKV, k.AddCol, k.RemoveCol, k.DeleteRows},
		{k.View, k.Import, k.Export, k.Suspend, k.Help, k.Quit},
	}
}
