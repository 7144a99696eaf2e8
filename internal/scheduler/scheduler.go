// Package scheduler plans the order in which task groups run. The batch
// executor orders dependent groups by their declared wave, not by the actual
// dependency graph: a dependent declared at the same or a lower wave than one
// of its dependencies runs first and never sees that dependency's result.
// Callers must declare dependents at a strictly higher wave than their
// dependencies; Lint reports where they do not.
package scheduler

import (
	"fmt"
	"sort"

	"github.com/hochfrequenz/claude-swarm-coordinator/internal/domain"
)

// Partition splits groups into those without dependencies and those with,
// preserving input order.
func Partition(groups []domain.TaskGroup) (independent, dependent []domain.TaskGroup) {
	for _, g := range groups {
		if g.IsDependent() {
			dependent = append(dependent, g)
		} else {
			independent = append(independent, g)
		}
	}
	return independent, dependent
}

// OrderDependents sorts dependent groups ascending by wave. Ties keep their
// original order.
func OrderDependents(groups []domain.TaskGroup) []domain.TaskGroup {
	ordered := make([]domain.TaskGroup, len(groups))
	copy(ordered, groups)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].EffectiveWave() < ordered[j].EffectiveWave()
	})
	return ordered
}

// IssueKind classifies a Lint finding
type IssueKind string

const (
	IssueDuplicateID   IssueKind = "duplicate_id"
	IssueUnknownDep    IssueKind = "unknown_dependency"
	IssueSelfDep       IssueKind = "self_dependency"
	IssueWaveOrder     IssueKind = "wave_order"
	IssueMissingID     IssueKind = "missing_id"
	IssueDependencyCyc IssueKind = "cycle"
)

// Issue is one problem found by Lint
type Issue struct {
	Kind    IssueKind
	GroupID string
	DepID   string
	Message string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Kind, i.Message)
}

// Lint reports groups whose declared dependencies the executor will not
// honour, including dependencies that run after the dependent in wave order.
func Lint(groups []domain.TaskGroup) []Issue {
	var issues []Issue
	byID := make(map[string]domain.TaskGroup, len(groups))

	for _, g := range groups {
		if g.ID == "" {
			issues = append(issues, Issue{Kind: IssueMissingID, Message: fmt.Sprintf("group %q has no id", g.Name)})
			continue
		}
		if _, dup := byID[g.ID]; dup {
			issues = append(issues, Issue{Kind: IssueDuplicateID, GroupID: g.ID,
				Message: fmt.Sprintf("group id %s declared more than once", g.ID)})
			continue
		}
		byID[g.ID] = g
	}

	// position of each dependent group in execution order
	_, dependent := Partition(groups)
	position := make(map[string]int, len(dependent))
	for i, g := range OrderDependents(dependent) {
		if _, seen := position[g.ID]; !seen {
			position[g.ID] = i
		}
	}

	for _, g := range groups {
		for _, dep := range g.DependsOn {
			d, ok := byID[dep]
			switch {
			case dep == g.ID:
				issues = append(issues, Issue{Kind: IssueSelfDep, GroupID: g.ID, DepID: dep,
					Message: fmt.Sprintf("%s depends on itself", g.ID)})
			case !ok:
				issues = append(issues, Issue{Kind: IssueUnknownDep, GroupID: g.ID, DepID: dep,
					Message: fmt.Sprintf("%s depends on unknown group %s", g.ID, dep)})
			case d.IsDependent() && g.IsDependent() && position[dep] > position[g.ID]:
				issues = append(issues, Issue{Kind: IssueWaveOrder, GroupID: g.ID, DepID: dep,
					Message: fmt.Sprintf("%s (wave %d) depends on %s (wave %d); its result will not be injected",
						g.ID, g.EffectiveWave(), dep, d.EffectiveWave())})
			}
		}
	}

	if _, err := TopologicalSort(groups); err != nil {
		issues = append(issues, Issue{Kind: IssueDependencyCyc, Message: err.Error()})
	}
	return issues
}

// TopologicalSort returns groups in dependency order. Unknown dependencies
// are ignored; a cycle is an error.
func TopologicalSort(groups []domain.TaskGroup) ([]domain.TaskGroup, error) {
	index := make(map[string]int, len(groups))
	for i, g := range groups {
		if _, dup := index[g.ID]; !dup {
			index[g.ID] = i
		}
	}

	inDegree := make([]int, len(groups))
	dependents := make(map[string][]int) // group -> groups that depend on it
	for i, g := range groups {
		for _, dep := range g.DependsOn {
			if _, ok := index[dep]; !ok || dep == g.ID {
				continue
			}
			inDegree[i]++
			dependents[dep] = append(dependents[dep], i)
		}
	}

	var queue []int
	for i := range groups {
		if inDegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	result := make([]domain.TaskGroup, 0, len(groups))
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		result = append(result, groups[i])
		if index[groups[i].ID] != i {
			// a repeated id releases its dependents only once
			continue
		}

		for _, j := range dependents[groups[i].ID] {
			inDegree[j]--
			if inDegree[j] == 0 {
				queue = append(queue, j)
			}
		}
	}

	if len(result) != len(groups) {
		var stuck []string
		for i, deg := range inDegree {
			if deg > 0 {
				stuck = append(stuck, groups[i].ID)
			}
		}
		return nil, fmt.Errorf("dependency cycle among groups %v", stuck)
	}
	return result, nil
}

// SuggestWaves assigns every dependent group the smallest wave strictly
// greater than the waves of its dependent dependencies, which makes the
// declared-wave order agree with the dependency graph.
func SuggestWaves(groups []domain.TaskGroup) (map[string]int, error) {
	sorted, err := TopologicalSort(groups)
	if err != nil {
		return nil, err
	}

	waves := make(map[string]int, len(groups))
	for _, g := range sorted {
		if !g.IsDependent() {
			waves[g.ID] = 0
			continue
		}
		wave := domain.DefaultWave
		for _, dep := range g.DependsOn {
			if w, ok := waves[dep]; ok && w >= wave {
				wave = w + 1
			}
		}
		waves[g.ID] = wave
	}
	return waves, nil
}
