package model

// PipelineResult is returned to the caller of every pipeline invocation,
// including failed ones.
type PipelineResult struct {
	Success  bool     `json:"success"`
	Decision Decision `json:"decision,omitempty"`

	// StoragePath is set when the candidate was written to the blob store.
	StoragePath string `json:"storage_path,omitempty"`
	// VectorID is set when an index entry was upserted for the candidate.
	VectorID string `json:"vector_id,omitempty"`

	Stored  bool `json:"stored"`
	Indexed bool `json:"indexed"`

	// EmbeddingUnavailable marks a run that proceeded without a vector after
	// exhausting embedding retries. Storage and dedup outrank indexing.
	EmbeddingUnavailable bool `json:"embedding_unavailable,omitempty"`

	Error string `json:"error,omitempty"`
}
