package model

// Document is a raw source document to be ingested. Documents are immutable;
// re-ingesting under the same ID supersedes the previous version in the next
// snapshot.
type Document struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Chunk is a bounded span of document text, the unit of retrieval.
// Start/End are rune offsets into the canonical text the chunker derived the
// chunk from, so overlapping spans of the same document can be detected.
type Chunk struct {
	DocumentID string `json:"document_id"`
	Index      int    `json:"index"`
	Text       string `json:"text"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
}

// ScoredChunk pairs a chunk with its similarity score for one query.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float32 `json:"score"`
}

// Source identifies where a retrieved passage came from.
type Source struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float32 `json:"score"`
}

// Answer is the response to one question.
type Answer struct {
	Question   string   `json:"question"`
	Answer     string   `json:"answer"`
	Sources    []Source `json:"sources"`
	HadContext bool     `json:"had_context"`
}

// IngestResult reports a completed ingest run.
type IngestResult struct {
	Handle  string `json:"handle"`
	Entries int    `json:"entries"`
}
