package chunker

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gtext "github.com/yuin/goldmark/text"

	"github.com/hearth-labs/corpusqa/internal/model"
	appErr "github.com/hearth-labs/corpusqa/internal/pkg/errors"
)

// Config controls chunk sizing. Both values count runes.
type Config struct {
	MaxChars     int `json:"max_chars"`
	OverlapChars int `json:"overlap_chars"`
}

const (
	DefaultMaxChars     = 1000
	DefaultOverlapChars = 120
)

// Chunker splits documents into bounded, overlapping text windows. Splitting
// is deterministic: the same document and config always produce the same
// chunk sequence, so index rebuilds are reproducible and embeddings can be
// cached by content hash.
type Chunker struct {
	cfg Config
}

func New(cfg Config) (*Chunker, error) {
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxChars
	}
	if cfg.OverlapChars < 0 {
		return nil, fmt.Errorf("%w: overlap_chars must not be negative", appErr.ErrInvalidConfig)
	}
	if cfg.OverlapChars >= cfg.MaxChars {
		return nil, fmt.Errorf("%w: overlap_chars (%d) must be smaller than max_chars (%d)",
			appErr.ErrInvalidConfig, cfg.OverlapChars, cfg.MaxChars)
	}
	return &Chunker{cfg: cfg}, nil
}

func (c *Chunker) Config() Config {
	return c.cfg
}

func (c *Chunker) Chunk(doc model.Document) ([]model.Chunk, error) {
	canonical := []rune(canonicalText(doc.Text))
	if len(canonical) == 0 {
		return nil, nil
	}

	var chunks []model.Chunk
	start := 0
	for start < len(canonical) {
		end := start + c.cfg.MaxChars
		if end >= len(canonical) {
			end = len(canonical)
		} else {
			// Prefer to break on whitespace so no word is cut in half, but
			// never shrink the window below half of max_chars.
			if cut := lastBreak(canonical, start, end); cut > start+c.cfg.MaxChars/2 {
				end = cut
			}
		}

		cs, ce := trimSpan(canonical, start, end)
		if cs < ce {
			chunks = append(chunks, model.Chunk{
				DocumentID: doc.ID,
				Index:      len(chunks),
				Text:       string(canonical[cs:ce]),
				Start:      cs,
				End:        ce,
			})
		}

		if end == len(canonical) {
			break
		}
		next := end - c.cfg.OverlapChars
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks, nil
}

// canonicalText reduces a document to its plain-text blocks. Markdown
// structure is parsed so headings, paragraphs and code blocks become separate
// blocks; plain text passes through as paragraphs.
func canonicalText(text string) string {
	md := goldmark.New()
	reader := gtext.NewReader([]byte(text))
	doc := md.Parser().Parse(reader)

	var blocks []string
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		switch n := node.(type) {
		case *ast.FencedCodeBlock:
			var sb strings.Builder
			for i := 0; i < n.Lines().Len(); i++ {
				line := n.Lines().At(i)
				sb.Write(line.Value(reader.Source()))
			}
			if s := strings.TrimSpace(sb.String()); s != "" {
				blocks = append(blocks, s)
			}
		default:
			if s := extractText(node, reader.Source()); s != "" {
				blocks = append(blocks, s)
			}
		}
	}
	if len(blocks) == 0 {
		return strings.TrimSpace(text)
	}
	return strings.Join(blocks, "\n\n")
}

func extractText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := node.(*ast.Text); ok {
			sb.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}

// lastBreak returns the index just past the last whitespace rune in
// [start,end), or start if there is none.
func lastBreak(runes []rune, start, end int) int {
	for i := end - 1; i > start; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return start
}

func trimSpan(runes []rune, start, end int) (int, int) {
	for start < end && unicode.IsSpace(runes[start]) {
		start++
	}
	for end > start && unicode.IsSpace(runes[end-1]) {
		end--
	}
	return start, end
}
