package common

import "time"

// DocumentStatus is the lifecycle state of a document in the ingestion
// pipeline. Documents move pending -> processing -> ready, or to error
// when any ingestion stage fails.
type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusReady      DocumentStatus = "ready"
	DocumentStatusError      DocumentStatus = "error"
)

// Document is a logical source unit uploaded by an owner. Deleting a
// document cascades to its chunks and chunk-entity links.
type Document struct {
	ID           string         `json:"id"`
	OwnerID      string         `json:"owner_id"`
	Name         string         `json:"name"`
	FileType     string         `json:"file_type"`
	SizeBytes    int64          `json:"size_bytes"`
	Status       DocumentStatus `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Title        string         `json:"title,omitempty"`
	Summary      string         `json:"summary,omitempty"`
	Topics       []string       `json:"topics,omitempty"`
	ContentHash  string         `json:"content_hash,omitempty"`
	ChunkCount   int            `json:"chunk_count"`
	DocumentDate *time.Time     `json:"document_date,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Chunk is the atomic retrievable unit of text derived from a document.
//
// Indices are zero-based and contiguous within a document. The content
// embedding is always present once the document is ready; the summary and
// its embedding are added by a best-effort enrichment pass and may be
// missing.
type Chunk struct {
	ID               string    `json:"id"`
	DocumentID       string    `json:"document_id"`
	Index            int       `json:"chunk_index"`
	Content          string    `json:"content"`
	TokenCount       int       `json:"token_count"`
	ContentHash      string    `json:"content_hash"`
	Embedding        []float32 `json:"-"`
	Summary          string    `json:"summary,omitempty"`
	SummaryEmbedding []float32 `json:"-"`
}

// Entity is a named concept extracted from chunk content. Identity is
// (owner, lowercase name): repeated extraction merges into the same row,
// filling the description if it was empty and unioning the document ids.
type Entity struct {
	ID          string   `json:"id"`
	OwnerID     string   `json:"owner_id"`
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	DocumentIDs []string `json:"document_ids"`
}

// Relationship is a directed, typed edge between two entities. Identity is
// (owner, source, target, type); re-observing the same triple increments
// the weight.
type Relationship struct {
	ID          string   `json:"id"`
	OwnerID     string   `json:"owner_id"`
	SourceID    string   `json:"source_id"`
	TargetID    string   `json:"target_id"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Weight      float64  `json:"weight"`
	DocumentIDs []string `json:"document_ids"`
}

// Community is a derived cluster of related entities. Communities are
// disposable: every rebuild deletes and regenerates all of an owner's rows.
type Community struct {
	ID          string   `json:"id"`
	OwnerID     string   `json:"owner_id"`
	Title       string   `json:"title"`
	Summary     string   `json:"summary"`
	EntityIDs   []string `json:"entity_ids"`
	DocumentIDs []string `json:"document_ids"`
	Size        int      `json:"size"`
}

// ChunkEntityLink ties a chunk to an entity it mentions. Used by the
// graph expander to find neighbor chunks.
type ChunkEntityLink struct {
	ChunkID  string `json:"chunk_id"`
	EntityID string `json:"entity_id"`
}
