package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	freshStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	dimmedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	selectedStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("238"))

	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Underline(true)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("244"))
)

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	header := fmt.Sprintf(" swarm │ Milestone: %s │ Claims: %d │ Stale: %d │ Instances: %d ",
		m.milestoneLabel(), len(m.claims), m.staleCount(), len(m.instances))
	b.WriteString(headerStyle.Width(m.width).Render(header))
	b.WriteString("\n")

	b.WriteString(m.renderTabs())
	b.WriteString("\n")

	var section string
	switch m.activeTab {
	case TabClaims:
		section = m.renderClaims()
	case TabInstances:
		section = m.renderInstances()
	case TabActivity:
		section = m.renderActivity()
	}
	b.WriteString(sectionStyle.Width(m.width - 2).Render(section))
	b.WriteString("\n")

	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m Model) milestoneLabel() string {
	if m.milestone == "" {
		return "(none)"
	}
	return m.milestone
}

func (m Model) renderTabs() string {
	tabs := make([]string, 0, tabCount)
	for t := Tab(0); t < tabCount; t++ {
		label := t.String()
		if t == m.activeTab {
			tabs = append(tabs, tabActiveStyle.Render(label))
		} else {
			tabs = append(tabs, tabInactiveStyle.Render(label))
		}
	}
	return " " + strings.Join(tabs, "  ")
}

func (m Model) row(i int, line string) string {
	if i == m.selectedRow {
		return selectedStyle.Render(line)
	}
	return line
}

func (m Model) renderClaims() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("CLAIMS"))
	b.WriteString("\n")
	if len(m.claims) == 0 {
		b.WriteString(dimmedStyle.Render("  no units claimed"))
		return b.String()
	}

	now := m.now()
	stale := m.staleThreshold()
	for i := range m.claims {
		c := &m.claims[i]
		age := c.Age(now)
		ageText := freshStyle.Render(formatAge(age))
		if age > stale {
			ageText = warningStyle.Render(formatAge(age) + " stale")
		}
		line := fmt.Sprintf("  %-20s %-16s %s", c.UnitID, c.InstanceID, ageText)
		b.WriteString(m.row(i, line))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderInstances() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("INSTANCES"))
	b.WriteString("\n")
	if len(m.instances) == 0 {
		b.WriteString(dimmedStyle.Render("  no active instances"))
		return b.String()
	}

	now := m.now()
	for i, in := range m.instances {
		line := fmt.Sprintf("  %-16s %-8s %-12s %s  %s", in.InstanceID, in.Status, in.CurrentMilestone,
			formatAge(now.Sub(in.HeartbeatAt)), dimmedStyle.Render(in.Workspace))
		b.WriteString(m.row(i, line))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderActivity() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("ACTIVITY"))
	b.WriteString("\n")
	if len(m.activity) == 0 {
		b.WriteString(dimmedStyle.Render("  no activity"))
		return b.String()
	}

	// newest first, limited to the visible area
	limit := len(m.activity)
	if m.height > 8 && limit > m.height-8 {
		limit = m.height - 8
	}
	for i := 0; i < limit; i++ {
		e := m.activity[len(m.activity)-1-i]
		line := fmt.Sprintf("  %s  %-12s %-16s %s", e.Timestamp.Local().Format("15:04:05"), e.Action, e.InstanceID, e.UnitID)
		b.WriteString(m.row(i, line))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderStatusBar() string {
	status := " q quit │ tab/c/i/a switch │ j/k move │ r refresh"
	if !m.lastRefresh.IsZero() {
		status += " │ updated " + m.lastRefresh.Local().Format("15:04:05")
	}
	if m.err != nil {
		status += " │ " + errorStyle.Render(m.err.Error())
	}
	return status
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
