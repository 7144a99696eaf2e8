// Package synth distills short human-readable findings from raw group results.
package synth

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hochfrequenz/claude-swarm-coordinator/internal/domain"
	"github.com/hochfrequenz/claude-swarm-coordinator/internal/engine"
)

const (
	DefaultMax    = 3
	DefaultMaxLen = 150
	// agentFallback is how many agent outputs are considered when there is
	// no aggregated output
	agentFallback = 3
)

// findingFields are the sub-fields pulled from structured outputs, in order
var findingFields = []string{"summary", "result", "output", "finding", "findings", "recommendation", "recommendations"}

// ExtractFindings returns up to max findings of at most maxLen runes each.
// Sources in priority order: the aggregated output, the first agent outputs,
// then the consensus value.
func ExtractFindings(res *engine.Result, max, maxLen int) []string {
	if max <= 0 {
		max = DefaultMax
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	if res == nil {
		return []string{}
	}

	var out []string
	add := func(s string) bool {
		s = strings.TrimSpace(s)
		if s != "" && len(out) < max {
			out = append(out, Truncate(s, maxLen))
		}
		return len(out) >= max
	}

	if res.AggregatedOutput != nil {
		for _, s := range unwrap(res.AggregatedOutput) {
			if add(s) {
				break
			}
		}
	}

	if len(out) == 0 {
		for i, ar := range res.AgentResults {
			if i >= agentFallback {
				break
			}
			if ar.Output == nil {
				continue
			}
			if add(firstOf(unwrap(ar.Output))) {
				break
			}
		}
	}

	if len(out) == 0 && res.Consensus != nil {
		if c := render(res.Consensus); c != "" {
			add("Consensus: " + c)
		}
	}

	if out == nil {
		return []string{}
	}
	return out
}

// Synthesize concatenates the findings of every result in order and keeps
// the first max.
func Synthesize(results []*domain.GroupResult, max int) []string {
	if max <= 0 {
		max = DefaultMax
	}
	out := []string{}
	for _, r := range results {
		if r == nil {
			continue
		}
		for _, f := range r.KeyFindings {
			if len(out) == max {
				return out
			}
			out = append(out, f)
		}
	}
	return out
}

// Truncate shortens s to at most n runes, marking the cut with "..."
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	if n <= 3 {
		return string([]rune(s)[:n])
	}
	return string([]rune(s)[:n-3]) + "..."
}

// unwrap flattens scalar, array and object outputs into candidate strings
func unwrap(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return []string{t}
	case []string:
		return t
	case []any:
		var out []string
		for _, item := range t {
			if s := firstOf(unwrap(item)); s != "" {
				out = append(out, s)
			}
		}
		return out
	case map[string]any:
		var out []string
		for _, field := range findingFields {
			if sub, ok := t[field]; ok {
				out = append(out, unwrap(sub)...)
			}
		}
		if len(out) == 0 {
			if s := render(t); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		if s := render(t); s != "" {
			return []string{s}
		}
		return nil
	}
}

func firstOf(ss []string) string {
	for _, s := range ss {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func render(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
