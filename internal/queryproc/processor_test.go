package queryproc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnalyze_IntentClassification(t *testing.T) {
	p := New()
	tests := []struct {
		query string
		want  Intent
	}{
		{"What is the capital of France?", IntentFactual},
		{"How to configure the scheduler", IntentProcedural},
		{"Compare local and s3 storage", IntentComparative},
		{"Why does the snapshot pointer exist", IntentAnalytical},
		{"Define cosine similarity", IntentDefinitional},
		{"When was the index last rebuilt", IntentTemporal},
		{"repeated timeouts causes dropped batches", IntentCausal},
		{"zebra", IntentUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := p.Analyze(tt.query)
			require.Equal(t, tt.want, got.Intent)
		})
	}
}

func TestAnalyze_KeywordsDropStopWords(t *testing.T) {
	p := New()
	got := p.Analyze("What is the capital of France?")
	require.Contains(t, got.Keywords, "capital")
	require.Contains(t, got.Keywords, "france")
	require.NotContains(t, got.Keywords, "the")
	require.NotContains(t, got.Keywords, "of")
	require.NotContains(t, got.Keywords, "is")
}

func TestAnalyze_SynonymExpansion(t *testing.T) {
	p := New()
	got := p.Analyze("Which algorithm handles the data?")
	require.Contains(t, got.ExpandedTerms, "method")
	require.Contains(t, got.ExpandedTerms, "dataset")
}

func TestAnalyze_NormalizesWhitespaceAndCase(t *testing.T) {
	p := New()
	got := p.Analyze("  What   IS   the\tCapital  of France? ")
	require.Equal(t, "what is the capital of france?", got.Query)
}

func TestAnalyze_Confidence(t *testing.T) {
	p := New()
	clear := p.Analyze("What is the capital of France?")
	vague := p.Analyze("zebra")
	require.Greater(t, clear.Confidence, vague.Confidence)
	require.LessOrEqual(t, clear.Confidence, 1.0)
}

func TestSearchQueries_OriginalFirstDedupedCapped(t *testing.T) {
	p := New()
	analysis := p.Analyze("What is the capital of France?")
	queries := p.SearchQueries(analysis)

	require.NotEmpty(t, queries)
	require.Equal(t, analysis.Query, queries[0])
	require.LessOrEqual(t, len(queries), 5)

	seen := map[string]bool{}
	for _, q := range queries {
		require.False(t, seen[q], "duplicate query %q", q)
		seen[q] = true
	}
}

func TestSearchQueries_Deterministic(t *testing.T) {
	p := New()
	analysis := p.Analyze("How to tune retrieval performance")
	first := p.SearchQueries(analysis)
	second := p.SearchQueries(analysis)
	require.Equal(t, first, second)
}
