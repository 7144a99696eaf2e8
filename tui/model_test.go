package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/claude-swarm-coordinator/internal/domain"
)

type fakeSource struct {
	claims    []domain.ClaimRecord
	instances []domain.InstanceRecord
	activity  []domain.ActivityEntry
	err       error
}

func (f *fakeSource) ListClaims(ctx context.Context, milestone string) ([]domain.ClaimRecord, error) {
	return f.claims, f.err
}

func (f *fakeSource) ListActive(ctx context.Context, milestone string) ([]domain.InstanceRecord, error) {
	return f.instances, nil
}

func (f *fakeSource) Activity(ctx context.Context, milestone string) ([]domain.ActivityEntry, error) {
	return f.activity, nil
}

func (f *fakeSource) StaleThreshold() time.Duration { return 5 * time.Minute }

func fixture() (*fakeSource, time.Time) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	return &fakeSource{
		claims: []domain.ClaimRecord{
			{MilestoneID: "MS1", UnitID: "U1", InstanceID: "W-A", HeartbeatAt: now.Add(-time.Minute)},
			{MilestoneID: "MS1", UnitID: "U2", InstanceID: "W-B", HeartbeatAt: now.Add(-10 * time.Minute)},
		},
		instances: []domain.InstanceRecord{
			{InstanceID: "W-A", Status: domain.InstanceBusy, HeartbeatAt: now, CurrentMilestone: "MS1"},
		},
		activity: []domain.ActivityEntry{
			{Timestamp: now, InstanceID: "W-A", Action: domain.ActionClaim, UnitID: "U1"},
		},
	}, now
}

func loaded(t *testing.T) Model {
	t.Helper()
	src, now := fixture()
	m := NewModel(ModelConfig{Source: src, Milestone: "MS1"})
	m.now = func() time.Time { return now }

	msg := m.fetchCmd()()
	updated, _ := m.Update(msg)
	updated, _ = updated.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return updated.(Model)
}

func TestNewModel(t *testing.T) {
	model := NewModel(ModelConfig{Milestone: "MS1"})

	if model.refresh != DefaultRefresh {
		t.Errorf("refresh = %v, want %v", model.refresh, DefaultRefresh)
	}
	if model.activeTab != TabClaims {
		t.Errorf("activeTab = %v, want Claims", model.activeTab)
	}
	if model.View() != "Loading..." {
		t.Errorf("View() before size = %q, want Loading...", model.View())
	}
}

func TestModel_DataRefresh(t *testing.T) {
	m := loaded(t)

	if len(m.claims) != 2 {
		t.Errorf("claims = %d, want 2", len(m.claims))
	}
	if len(m.instances) != 1 {
		t.Errorf("instances = %d, want 1", len(m.instances))
	}
	if got := m.staleCount(); got != 1 {
		t.Errorf("staleCount() = %d, want 1", got)
	}
}

func TestModel_RefreshErrorKeepsData(t *testing.T) {
	m := loaded(t)

	updated, _ := m.Update(DataMsg{Err: errors.New("store down"), At: time.Now()})
	m = updated.(Model)

	if len(m.claims) != 2 {
		t.Errorf("claims = %d, want previous 2", len(m.claims))
	}
	if !strings.Contains(m.View(), "store down") {
		t.Error("View() should show the refresh error")
	}
}

func TestModel_Navigation(t *testing.T) {
	m := loaded(t)

	press := func(key string) {
		var msg tea.KeyMsg
		if key == "tab" {
			msg = tea.KeyMsg{Type: tea.KeyTab}
		} else {
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
		}
		updated, _ := m.Update(msg)
		m = updated.(Model)
	}

	press("j")
	press("j")
	if m.selectedRow != 1 {
		t.Errorf("selectedRow = %d, want 1 (clamped)", m.selectedRow)
	}

	press("tab")
	if m.activeTab != TabInstances || m.selectedRow != 0 {
		t.Errorf("after tab: activeTab = %v, selectedRow = %d", m.activeTab, m.selectedRow)
	}

	press("a")
	if m.activeTab != TabActivity {
		t.Errorf("activeTab = %v, want Activity", m.activeTab)
	}

	press("tab")
	if m.activeTab != TabClaims {
		t.Errorf("tab should wrap to Claims, got %v", m.activeTab)
	}
}

func TestModel_Quit(t *testing.T) {
	m := loaded(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}

func TestView(t *testing.T) {
	m := loaded(t)
	view := m.View()

	for _, want := range []string{"MS1", "CLAIMS", "U1", "U2", "stale"} {
		if !strings.Contains(view, want) {
			t.Errorf("claims view missing %q", want)
		}
	}

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("i")})
	view = updated.(Model).View()
	if !strings.Contains(view, "INSTANCES") || !strings.Contains(view, "busy") {
		t.Error("instances view incomplete")
	}
}

func TestFormatAge(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{42 * time.Second, "42s"},
		{5*time.Minute + 3*time.Second, "5m03s"},
		{2*time.Hour + 7*time.Minute, "2h07m"},
	}
	for _, tt := range tests {
		if got := formatAge(tt.d); got != tt.want {
			t.Errorf("formatAge(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
