package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.fetchCmd()
		case "j", "down":
			if m.selectedRow < m.rowCount()-1 {
				m.selectedRow++
			}
		case "k", "up":
			if m.selectedRow > 0 {
				m.selectedRow--
			}
		case "tab":
			m.activeTab = (m.activeTab + 1) % tabCount
			m.selectedRow = 0
		case "c":
			m.activeTab = TabClaims
			m.selectedRow = 0
		case "i":
			m.activeTab = TabInstances
			m.selectedRow = 0
		case "a":
			m.activeTab = TabActivity
			m.selectedRow = 0
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		return m, tea.Batch(m.fetchCmd(), m.tickCmd())

	case DataMsg:
		m.lastRefresh = msg.At
		m.err = msg.Err
		if msg.Err == nil {
			m.claims = msg.Claims
			m.instances = msg.Instances
			m.activity = msg.Activity
		}
		if n := m.rowCount(); m.selectedRow >= n {
			m.selectedRow = max(n-1, 0)
		}
	}

	return m, nil
}

func (m Model) rowCount() int {
	switch m.activeTab {
	case TabClaims:
		return len(m.claims)
	case TabInstances:
		return len(m.instances)
	case TabActivity:
		return len(m.activity)
	}
	return 0
}

func (m Model) staleThreshold() time.Duration {
	if m.source == nil {
		return defaultStale
	}
	return m.source.StaleThreshold()
}

// staleCount returns the number of claims past the stale threshold
func (m Model) staleCount() int {
	now := m.now()
	stale := m.staleThreshold()
	n := 0
	for i := range m.claims {
		if m.claims[i].Age(now) > stale {
			n++
		}
	}
	return n
}
