// Package tui is a terminal dashboard over one milestone's claims, the active
// instances and the milestone activity log.
package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/claude-swarm-coordinator/internal/domain"
)

// DefaultRefresh is the polling interval
const DefaultRefresh = 2 * time.Second

const defaultStale = 5 * time.Minute

// Tab identifies a dashboard section
type Tab int

const (
	TabClaims Tab = iota
	TabInstances
	TabActivity
	tabCount
)

func (t Tab) String() string {
	switch t {
	case TabClaims:
		return "Claims"
	case TabInstances:
		return "Instances"
	case TabActivity:
		return "Activity"
	default:
		return "?"
	}
}

// Source supplies dashboard data
type Source interface {
	ListClaims(ctx context.Context, milestone string) ([]domain.ClaimRecord, error)
	ListActive(ctx context.Context, milestone string) ([]domain.InstanceRecord, error)
	Activity(ctx context.Context, milestone string) ([]domain.ActivityEntry, error)
	StaleThreshold() time.Duration
}

// Model is the TUI application model
type Model struct {
	source    Source
	milestone string
	refresh   time.Duration

	// Data
	claims    []domain.ClaimRecord
	instances []domain.InstanceRecord
	activity  []domain.ActivityEntry
	err       error

	// UI state
	width       int
	height      int
	activeTab   Tab
	selectedRow int

	// Refresh
	lastRefresh time.Time
	now         func() time.Time
}

// ModelConfig holds initial settings for the TUI model
type ModelConfig struct {
	Source    Source
	Milestone string
	Refresh   time.Duration
}

// NewModel creates a new TUI model
func NewModel(cfg ModelConfig) Model {
	refresh := cfg.Refresh
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	return Model{
		source:    cfg.Source,
		milestone: cfg.Milestone,
		refresh:   refresh,
		activeTab: TabClaims,
		now:       time.Now,
	}
}

// Init loads data and starts the refresh ticker
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetchCmd(), m.tickCmd())
}

// TickMsg triggers a refresh
type TickMsg time.Time

// DataMsg carries one refresh result
type DataMsg struct {
	Claims    []domain.ClaimRecord
	Instances []domain.InstanceRecord
	Activity  []domain.ActivityEntry
	Err       error
	At        time.Time
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m Model) fetchCmd() tea.Cmd {
	src, milestone := m.source, m.milestone
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		msg := DataMsg{At: time.Now()}
		if src == nil {
			return msg
		}
		var err error
		if msg.Claims, err = src.ListClaims(ctx, milestone); err != nil {
			msg.Err = err
			return msg
		}
		if msg.Instances, err = src.ListActive(ctx, milestone); err != nil {
			msg.Err = err
			return msg
		}
		if msg.Activity, err = src.Activity(ctx, milestone); err != nil {
			msg.Err = err
		}
		return msg
	}
}
