package synth

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/hochfrequenz/claude-swarm-coordinator/internal/domain"
	"github.com/hochfrequenz/claude-swarm-coordinator/internal/engine"
)

func TestExtractFindings_Sources(t *testing.T) {
	tests := []struct {
		name string
		res  *engine.Result
		want []string
	}{
		{
			name: "nil result",
			res:  nil,
			want: []string{},
		},
		{
			name: "aggregated string",
			res:  &engine.Result{AggregatedOutput: "use carbide tooling"},
			want: []string{"use carbide tooling"},
		},
		{
			name: "aggregated array",
			res:  &engine.Result{AggregatedOutput: []any{"a", "b", "c", "d"}},
			want: []string{"a", "b", "c"},
		},
		{
			name: "aggregated object fields",
			res: &engine.Result{AggregatedOutput: map[string]any{
				"summary":        "summary text",
				"recommendation": "do this",
				"ignored":        "x",
			}},
			want: []string{"summary text", "do this"},
		},
		{
			name: "aggregated object without known fields",
			res:  &engine.Result{AggregatedOutput: map[string]any{"score": 3}},
			want: []string{`{"score":3}`},
		},
		{
			name: "agent outputs fallback",
			res: &engine.Result{AgentResults: []engine.AgentResult{
				{Agent: "a1", Output: "first"},
				{Agent: "a2"},
				{Agent: "a3", Output: map[string]any{"finding": "third"}},
				{Agent: "a4", Output: "fourth"},
			}},
			want: []string{"first", "third"},
		},
		{
			name: "consensus fallback",
			res:  &engine.Result{Consensus: "approve"},
			want: []string{"Consensus: approve"},
		},
		{
			name: "nothing",
			res:  &engine.Result{Status: "completed"},
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractFindings(tt.res, 3, 150)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractFindings_Truncates(t *testing.T) {
	long := strings.Repeat("é", 400)
	got := ExtractFindings(&engine.Result{AggregatedOutput: long}, 0, 0)
	if assert.Len(t, got, 1) {
		assert.Equal(t, DefaultMaxLen, utf8.RuneCountInString(got[0]))
		assert.True(t, strings.HasSuffix(got[0], "..."))
	}
}

func TestSynthesize(t *testing.T) {
	results := []*domain.GroupResult{
		{GroupID: "A", KeyFindings: []string{"a1"}},
		nil,
		{GroupID: "B"},
		{GroupID: "C", KeyFindings: []string{"c1", "c2", "c3"}},
	}
	assert.Equal(t, []string{"a1", "c1", "c2"}, Synthesize(results, 3))
	assert.Equal(t, []string{}, Synthesize(nil, 3))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab...", Truncate("abcdefgh", 5))
	assert.Equal(t, "ab", Truncate("abcdefgh", 2))
}
