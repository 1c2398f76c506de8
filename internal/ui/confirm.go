package ui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

type confirmDialog struct {
	prompt string
	yes    func(m *Model) tea.Cmd
}

// ask switches to a yes/no question; yes runs after returning to the
// table.
func (m *Model) ask(prompt string, yes func(m *Model) tea.Cmd) {
	m.confirm = confirmDialog{prompt: prompt, yes: yes}
	m.mode = modeConfirm
}

func (m Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Yes):
		yes := m.confirm.yes
		m.toTable()
		var cmd tea.Cmd
		if yes != nil {
			cmd = yes(&m)
		}
		m.follow()
		return m, cmd
	case key.Matches(msg, m.keys.No):
		m.toTable()
		return m, nil
	}
	return m, nil
}

func (m Model) viewConfirm() string {
	return warningStyle.Render(m.confirm.prompt) + dimStyle.Render(" (y/n)")
}
