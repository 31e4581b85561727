package rulebook

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/dealscope/internal/propagation"
	"github.com/mbd888/dealscope/internal/scoring"
)

func TestDefaultRulebook(t *testing.T) {
	rb, err := Default()
	require.NoError(t, err)

	assert.Equal(t, scoring.DefaultThresholds, rb.Thresholds)
	assert.Equal(t, propagation.DefaultConfig(), rb.Propagation)
	assert.Len(t, rb.Weights, len(scoring.Categories))
	assert.NoError(t, rb.Weights.Validate())
	assert.Contains(t, rb.RuleNames(), "dscr")
	require.Len(t, rb.Modules, 2)
	assert.Equal(t, "financial", rb.Modules[0].Name)
}

func TestEvaluateModule(t *testing.T) {
	rb, err := Default()
	require.NoError(t, err)

	sum, err := rb.EvaluateModule("financial", map[string]string{
		"DSCR":   "4.3x",
		"ICR":    "N/A",
		"LTV":    "15.00%",
		"Rating": "BBB+",
	})
	require.NoError(t, err)

	// 5 + 3 (fallback) + 5 + 4
	assert.Equal(t, 17, sum.Total)
	assert.Equal(t, 20, sum.Max)
	assert.Equal(t, 1, sum.Fallbacks)
	require.Len(t, sum.Categories, 3)
	assert.Equal(t, "N/A", sum.Categories[0].Items[1].RawValue)
}

func TestEvaluateModuleMissingValues(t *testing.T) {
	rb, err := Default()
	require.NoError(t, err)

	sum, err := rb.EvaluateModule("structure", nil)
	require.NoError(t, err)
	// every item falls back: 3 + 2 + 3
	assert.Equal(t, 8, sum.Total)
	assert.Equal(t, 3, sum.Fallbacks)

	_, err = rb.EvaluateModule("esg", nil)
	assert.ErrorIs(t, err, ErrUnknownModule)
}

func TestRuleLookup(t *testing.T) {
	rb, err := Default()
	require.NoError(t, err)

	r, err := rb.Rule("litigation")
	require.NoError(t, err)
	assert.Equal(t, 5, scoring.EvaluateItem("없음", r).Score)

	_, err = rb.Rule("nope")
	assert.ErrorIs(t, err, ErrUnknownRule)
}

func mutate(t *testing.T, old, replacement string) []byte {
	t.Helper()
	src := string(defaultYAML)
	require.Contains(t, src, old)
	return []byte(strings.Replace(src, old, replacement, 1))
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		msg  string
	}{
		{"weights off", mutate(t, "OTHER: 0.05", "OTHER: 0.06"), "sum to 1"},
		{"missing category", mutate(t, "  OTHER: 0.05\n", ""), ""},
		{"unknown category", mutate(t, "OTHER: 0.05", "OTHER: 0.05\n  FX: 0"), "unknown category"},
		{"thresholds inverted", mutate(t, "fail: 75", "fail: 40"), "gtfield"},
		{"band score", mutate(t, "threshold: 2.0, score: 5", "threshold: 2.0, score: 7"), "max"},
		{"bad op", mutate(t, "op: gte, threshold: 2.0", "op: between, threshold: 2.0"), "oneof"},
		{"module weights", mutate(t, "rule: dscr, weight: 30", "rule: dscr, weight: 35"), "sum to"},
		{"unknown rule", mutate(t, "rule: icr", "rule: icr_v2"), "unknown rule"},
		{"unknown key", mutate(t, "version: 1", "version: 1\nowner: risk"), "decode"},
		{"bad damping", mutate(t, "damping: 0.3", "damping: 3"), "damping"},
		{"version", mutate(t, "version: 1", "version: 2"), "Version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidRulebook)
			if tt.msg != "" {
				assert.Contains(t, err.Error(), tt.msg)
			}
		})
	}
}

func TestParsePartialPropagation(t *testing.T) {
	block := "propagation:\n  mode: flat\n  damping: 0.3\n  tier_decay: 0.5\n  source: direct\n"

	rb, err := Parse(mutate(t, block, "propagation:\n  mode: tiered\n"))
	require.NoError(t, err)
	assert.Equal(t, propagation.Config{
		Mode:      propagation.ModeTiered,
		Damping:   propagation.DefaultDamping,
		TierDecay: propagation.DefaultTierDecay,
		Source:    propagation.SourceDirect,
	}, rb.Propagation)

	e, err := propagation.NewEngine(rb.Propagation, nil)
	require.NoError(t, err)
	res, err := e.Propagate(context.Background(),
		map[string]float64{"a": 60, "b": 40, "c": 0},
		[]propagation.RelationEdge{{From: "a", To: "c"}, {From: "b", To: "c"}},
	)
	require.NoError(t, err)
	assert.Equal(t, 30.0, res.Scores["c"])

	rb, err = Parse(mutate(t, block, ""))
	require.NoError(t, err)
	assert.Equal(t, propagation.DefaultConfig(), rb.Propagation)

	rb, err = Parse(mutate(t, block, "propagation:\n  damping: 0.2\n"))
	require.NoError(t, err)
	assert.Equal(t, 0.2, rb.Propagation.Damping)
	assert.Equal(t, propagation.ModeFlat, rb.Propagation.Mode)
}

func TestLoad(t *testing.T) {
	rb, err := Load("")
	require.NoError(t, err)
	assert.NotEmpty(t, rb.Modules)

	dir := t.TempDir()
	path := filepath.Join(dir, "rulebook.yaml")
	require.NoError(t, os.WriteFile(path, mutate(t, "warning: 50", "warning: 45"), 0o600))

	rb, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, 45.0, rb.Thresholds.Warning)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
