package domain

// VectorRecord is one entry written to the vector store. ID is externally
// assigned (the chunk id), so upserting the same id replaces the prior value.
type VectorRecord struct {
	ID       string
	Vector   []float32
	Metadata ChunkMetadata
}

// ScoredChunk is one similarity-search hit.
type ScoredChunk struct {
	ChunkID    string        `json:"chunk_id"`
	DocumentID string        `json:"document_id"`
	Score      float64       `json:"score"`
	Metadata   ChunkMetadata `json:"metadata"`
}

// OrphanGroup lists chunks whose owning document points at a source that no
// longer exists in the catalog, grouped per document.
type OrphanGroup struct {
	DocumentID string   `json:"document_id"`
	SourceID   string   `json:"source_id"`
	ChunkIDs   []string `json:"chunk_ids"`
}

// ReconcileReport summarizes one sweep. A dry run carries the same content
// as a real run would act upon, with zero mutations issued.
type ReconcileReport struct {
	DryRun           bool     `json:"dry_run"`
	DeletedChunks    int      `json:"deleted_chunks"`
	DeletedDocuments int      `json:"deleted_documents"`
	DocumentIDs      []string `json:"document_ids"`
}
