package queryproc

import (
	"regexp"
	"strings"
)

// Intent is the coarse category of a question, used to pick reformulation
// templates.
type Intent string

const (
	IntentFactual      Intent = "factual"
	IntentComparative  Intent = "comparative"
	IntentProcedural   Intent = "procedural"
	IntentAnalytical   Intent = "analytical"
	IntentDefinitional Intent = "definitional"
	IntentTemporal     Intent = "temporal"
	IntentCausal       Intent = "causal"
	IntentUnknown      Intent = "unknown"
)

// Analysis is the structured breakdown of a raw question.
type Analysis struct {
	Query          string
	Intent         Intent
	Keywords       []string
	ExpandedTerms  []string
	Reformulations []string
	Confidence     float64
}

// maxSearchQueries bounds multi-query retrieval; every extra query costs an
// embedding call.
const maxSearchQueries = 5

type intentRule struct {
	intent   Intent
	patterns []*regexp.Regexp
}

// Processor classifies intent and expands questions with synonyms and
// reformulations. It is stateless after construction and safe for concurrent
// use.
type Processor struct {
	rules    []intentRule
	synonyms map[string][]string
	stop     map[string]bool
}

func New() *Processor {
	compile := func(intent Intent, exprs ...string) intentRule {
		rule := intentRule{intent: intent}
		for _, e := range exprs {
			rule.patterns = append(rule.patterns, regexp.MustCompile(e))
		}
		return rule
	}
	return &Processor{
		rules: []intentRule{
			compile(IntentProcedural, `how to`, `how do`, `how can`, `how does`, `steps to`, `process of`, `method to`),
			compile(IntentComparative, `compare`, `difference`, `versus`, `\bvs\b`, `better than`, `worse than`, `advantage`, `disadvantage`),
			compile(IntentDefinitional, `define`, `definition`, `meaning of`, `what does .* mean`),
			compile(IntentCausal, `causes`, `results in`, `leads to`, `because of`),
			compile(IntentAnalytical, `why`, `explain`, `analyze`, `reason for`, `cause of`, `purpose of`),
			compile(IntentTemporal, `when`, `\btime\b`, `\bdate\b`, `history`, `timeline`),
			compile(IntentFactual, `what is`, `what are`, `who is`, `who are`, `which is`, `which are`, `where is`, `where are`),
		},
		synonyms: map[string][]string{
			"algorithm":   {"method", "technique", "approach"},
			"data":        {"information", "dataset", "records"},
			"model":       {"system", "framework", "architecture"},
			"training":    {"learning", "optimization", "fitting"},
			"performance": {"accuracy", "efficiency", "effectiveness"},
			"error":       {"failure", "fault", "bug"},
			"config":      {"configuration", "settings", "options"},
		},
		stop: buildStopWords(),
	}
}

func buildStopWords() map[string]bool {
	words := []string{
		"the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for",
		"of", "with", "by", "is", "are", "was", "were", "be", "been", "have",
		"has", "had", "do", "does", "did", "will", "would", "could", "should",
		"may", "might", "can", "this", "that", "these", "those",
	}
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

var (
	spaceRe   = regexp.MustCompile(`\s+`)
	cleanupRe = regexp.MustCompile(`[^\w\s?!.]`)
)

func (p *Processor) Analyze(query string) Analysis {
	cleaned := p.clean(query)
	intent := p.classify(cleaned)
	keywords := p.keywords(cleaned)
	expanded := p.expand(keywords)
	return Analysis{
		Query:          cleaned,
		Intent:         intent,
		Keywords:       keywords,
		ExpandedTerms:  expanded,
		Reformulations: p.reformulate(cleaned, intent),
		Confidence:     p.confidence(cleaned, intent, keywords),
	}
}

// SearchQueries returns the queries to run for multi-query retrieval, the
// original first, duplicates removed, in deterministic order.
func (p *Processor) SearchQueries(a Analysis) []string {
	candidates := make([]string, 0, 1+len(a.Reformulations)+len(a.ExpandedTerms))
	candidates = append(candidates, a.Query)
	candidates = append(candidates, a.Reformulations...)
	for _, term := range a.ExpandedTerms {
		candidates = append(candidates, a.Query+" "+term)
	}

	seen := make(map[string]bool, len(candidates))
	out := make([]string, 0, maxSearchQueries)
	for _, q := range candidates {
		if seen[q] {
			continue
		}
		seen[q] = true
		out = append(out, q)
		if len(out) >= maxSearchQueries {
			break
		}
	}
	return out
}

func (p *Processor) clean(query string) string {
	query = cleanupRe.ReplaceAllString(query, " ")
	query = spaceRe.ReplaceAllString(strings.TrimSpace(query), " ")
	return strings.ToLower(query)
}

func (p *Processor) classify(cleaned string) Intent {
	for _, rule := range p.rules {
		for _, re := range rule.patterns {
			if re.MatchString(cleaned) {
				return rule.intent
			}
		}
	}
	return IntentUnknown
}

func (p *Processor) keywords(cleaned string) []string {
	var out []string
	for _, word := range strings.Fields(cleaned) {
		word = strings.Trim(word, "?!.")
		if len(word) > 2 && !p.stop[word] {
			out = append(out, word)
		}
	}
	return out
}

func (p *Processor) expand(keywords []string) []string {
	var out []string
	for _, kw := range keywords {
		out = append(out, p.synonyms[kw]...)
	}
	return out
}

func (p *Processor) reformulate(cleaned string, intent Intent) []string {
	var out []string
	switch intent {
	case IntentFactual:
		if strings.HasPrefix(cleaned, "what is") {
			out = append(out, "explain "+cleaned)
		}
		if strings.HasPrefix(cleaned, "who is") {
			out = append(out, "describe "+cleaned)
		}
	case IntentProcedural:
		out = append(out, "step by step "+cleaned, "process of "+cleaned)
	case IntentComparative:
		out = append(out, "analysis of "+cleaned, "pros and cons of "+cleaned)
	}
	out = append(out, "information about "+cleaned, "details on "+cleaned)
	return out
}

func (p *Processor) confidence(cleaned string, intent Intent, keywords []string) float64 {
	conf := 0.5
	if intent != IntentUnknown {
		conf += 0.2
	}
	if len(keywords) > 0 {
		boost := float64(len(keywords)) * 0.05
		if boost > 0.2 {
			boost = 0.2
		}
		conf += boost
	}
	if len(strings.Fields(cleaned)) > 3 {
		conf += 0.1
	}
	if conf > 1.0 {
		conf = 1.0
	}
	return conf
}
