package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hochfrequenz/claude-swarm-coordinator/internal/domain"
)

func ids(groups []domain.TaskGroup) []string {
	out := make([]string, len(groups))
	for i, g := range groups {
		out[i] = g.ID
	}
	return out
}

func TestPartition(t *testing.T) {
	groups := []domain.TaskGroup{
		{ID: "A"},
		{ID: "B", DependsOn: []string{"A"}},
		{ID: "C", DependsOn: []string{}},
	}

	independent, dependent := Partition(groups)
	assert.Equal(t, []string{"A", "C"}, ids(independent))
	assert.Equal(t, []string{"B"}, ids(dependent))
}

func TestOrderDependents_StableByWave(t *testing.T) {
	groups := []domain.TaskGroup{
		{ID: "X", DependsOn: []string{"A"}, Wave: 2},
		{ID: "Y", DependsOn: []string{"A"}},
		{ID: "Z", DependsOn: []string{"A"}, Wave: 1},
		{ID: "W", DependsOn: []string{"A"}, Wave: 2},
	}

	ordered := OrderDependents(groups)
	assert.Equal(t, []string{"Y", "Z", "X", "W"}, ids(ordered))
	// Input untouched
	assert.Equal(t, "X", groups[0].ID)
}

func TestLint(t *testing.T) {
	groups := []domain.TaskGroup{
		{ID: "A"},
		{ID: "X", DependsOn: []string{"Y"}, Wave: 1},
		{ID: "Y", DependsOn: []string{"A"}, Wave: 1},
		{ID: "S", DependsOn: []string{"S"}, Wave: 3},
		{ID: "U", DependsOn: []string{"missing"}, Wave: 2},
		{ID: "A"},
	}

	kinds := map[IssueKind][]string{}
	for _, is := range Lint(groups) {
		kinds[is.Kind] = append(kinds[is.Kind], is.GroupID)
	}

	assert.Equal(t, []string{"X"}, kinds[IssueWaveOrder])
	assert.Equal(t, []string{"S"}, kinds[IssueSelfDep])
	assert.Equal(t, []string{"U"}, kinds[IssueUnknownDep])
	assert.Equal(t, []string{"A"}, kinds[IssueDuplicateID])
}

func TestLint_Clean(t *testing.T) {
	groups := []domain.TaskGroup{
		{ID: "A"},
		{ID: "B", DependsOn: []string{"A"}, Wave: 1},
		{ID: "C", DependsOn: []string{"B"}, Wave: 2},
	}
	assert.Empty(t, Lint(groups))
}

func TestTopologicalSort(t *testing.T) {
	groups := []domain.TaskGroup{
		{ID: "C", DependsOn: []string{"B"}},
		{ID: "B", DependsOn: []string{"A"}},
		{ID: "A"},
	}

	sorted, err := TopologicalSort(groups)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, ids(sorted))
}

func TestTopologicalSort_Cycle(t *testing.T) {
	groups := []domain.TaskGroup{
		{ID: "A", DependsOn: []string{"B"}},
		{ID: "B", DependsOn: []string{"A"}},
	}
	_, err := TopologicalSort(groups)
	assert.Error(t, err)
}

func TestTopologicalSort_DuplicateIDReleasesOnce(t *testing.T) {
	groups := []domain.TaskGroup{
		{ID: "A"},
		{ID: "A"},
		{ID: "B", DependsOn: []string{"A", "X"}},
		{ID: "X", DependsOn: []string{"B"}},
	}
	_, err := TopologicalSort(groups)
	assert.Error(t, err, "B and X still form a cycle")

	sorted, err := TopologicalSort([]domain.TaskGroup{
		{ID: "A"},
		{ID: "A"},
		{ID: "B", DependsOn: []string{"A"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "A", "B"}, ids(sorted))
}

func TestSuggestWaves(t *testing.T) {
	groups := []domain.TaskGroup{
		{ID: "A"},
		{ID: "X", DependsOn: []string{"Y"}, Wave: 1},
		{ID: "Y", DependsOn: []string{"A"}, Wave: 1},
		{ID: "Z", DependsOn: []string{"A", "X"}},
	}

	waves, err := SuggestWaves(groups)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"A": 0, "Y": 1, "X": 2, "Z": 3}, waves)
}
