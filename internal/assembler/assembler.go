package assembler

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hearth-labs/corpusqa/internal/model"
)

// NoContextSentinel is the context text handed to the generator when
// retrieval produced nothing usable. Generators key off this marker to
// decline instead of hallucinating.
const NoContextSentinel = "No context was retrieved from the knowledge base."

const blockSeparator = "\n\n"

// Assembler turns scored chunks into a single prompt context within a rune
// budget. Chunks are included whole; a chunk that would overflow the budget
// ends assembly rather than being split.
type Assembler struct {
	budget int
}

// New builds an assembler with the given rune budget. A non-positive budget
// means unlimited.
func New(budget int) *Assembler {
	return &Assembler{budget: budget}
}

// Assemble orders results by descending score, drops spans of the same
// document that substantially overlap an already kept span (the higher-scored
// span wins), and concatenates provenance marked blocks until the budget runs
// out. It reports the chunks actually included and whether any context made
// it in.
func (a *Assembler) Assemble(results []model.ScoredChunk) (string, []model.ScoredChunk, bool) {
	if len(results) == 0 {
		return NoContextSentinel, nil, false
	}

	ordered := make([]model.ScoredChunk, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Score > ordered[j].Score
	})

	deduped := ordered[:0]
	for _, cand := range ordered {
		if overlapsAny(deduped, cand) {
			continue
		}
		deduped = append(deduped, cand)
	}

	var sb strings.Builder
	var used []model.ScoredChunk
	total := 0
	for _, res := range deduped {
		block := formatBlock(res.Chunk)
		cost := utf8.RuneCountInString(block)
		if len(used) > 0 {
			cost += utf8.RuneCountInString(blockSeparator)
		}
		if a.budget > 0 && total+cost > a.budget {
			break
		}
		if len(used) > 0 {
			sb.WriteString(blockSeparator)
		}
		sb.WriteString(block)
		total += cost
		used = append(used, res)
	}
	if len(used) == 0 {
		return NoContextSentinel, nil, false
	}
	return sb.String(), used, true
}

func formatBlock(c model.Chunk) string {
	return fmt.Sprintf("[source: %s#%d] %s", c.DocumentID, c.Index, c.Text)
}

func overlapsAny(kept []model.ScoredChunk, cand model.ScoredChunk) bool {
	for _, k := range kept {
		if overlapsSubstantially(k.Chunk, cand.Chunk) {
			return true
		}
	}
	return false
}

// overlapsSubstantially reports whether two spans of the same document share
// more than half of the smaller span. Consecutive chunks carry a small shared
// margin from the chunker; that alone must not get a chunk discarded.
func overlapsSubstantially(a, b model.Chunk) bool {
	if a.DocumentID != b.DocumentID {
		return false
	}
	lo := max(a.Start, b.Start)
	hi := min(a.End, b.End)
	if hi <= lo {
		return false
	}
	smaller := min(a.End-a.Start, b.End-b.Start)
	return 2*(hi-lo) > smaller
}
