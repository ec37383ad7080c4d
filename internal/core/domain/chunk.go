package domain

import "time"

// ChunkWindow is the chunker's output unit: a span of the document text with
// stable character offsets. Windows for one document, ordered by index, cover
// the text with bounded overlap between neighbours and no gaps.
type ChunkWindow struct {
	Text      string `json:"text"`
	CharStart int    `json:"char_start"`
	CharEnd   int    `json:"char_end"`
}

// ChunkMetadata is the fixed, versioned metadata schema attached to each
// stored vector. Extra is the escape hatch for provider-specific fields and
// must never be required for correctness.
type ChunkMetadata struct {
	TenantID   string            `json:"tenant_id"`
	DocumentID string            `json:"document_id"`
	Visibility string            `json:"visibility,omitempty"`
	Workspace  string            `json:"workspace,omitempty"`
	CharStart  int               `json:"char_start"`
	CharEnd    int               `json:"char_end"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Chunk is a contiguous span of a document plus, once computed, its
// embedding. Embedding stays nil between chunk creation and the asynchronous
// embedding step.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	TenantID   string    `json:"tenant_id"`
	Index      int       `json:"index"`
	Text       string    `json:"text"`
	CharStart  int       `json:"char_start"`
	CharEnd    int       `json:"char_end"`
	WordCount  int       `json:"word_count"`
	Embedding  []float32 `json:"-"`
	Visibility string    `json:"visibility,omitempty"`
	Workspace  string    `json:"workspace,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func (c Chunk) Metadata() ChunkMetadata {
	return ChunkMetadata{
		TenantID:   c.TenantID,
		DocumentID: c.DocumentID,
		Visibility: c.Visibility,
		Workspace:  c.Workspace,
		CharStart:  c.CharStart,
		CharEnd:    c.CharEnd,
	}
}
