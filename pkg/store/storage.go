package store

import (
	"context"
	"errors"
	"time"

	"github.com/arborlabs/arbor/backend/pkg/common"
)

// ErrNotFound is returned when a requested row does not exist or is not
// visible to the requesting owner.
var ErrNotFound = errors.New("store: not found")

// VectorSearchParams configures an embedding similarity search over an
// owner's chunks. Similarity blends the content embedding with the chunk
// summary embedding when one exists; RecencyWeight optionally mixes in a
// document age signal.
type VectorSearchParams struct {
	OwnerID       string
	Embedding     []float32
	Limit         int
	RecencyWeight float64
	DocumentIDs   []string // restrict to these documents when non-empty
}

// KeywordSearchParams configures a full-text search over an owner's chunks.
type KeywordSearchParams struct {
	OwnerID     string
	Query       string
	Limit       int
	DocumentIDs []string
}

// ScoredChunk is a chunk returned from a ranked search together with the
// score that ranked it.
type ScoredChunk struct {
	common.Chunk
	DocumentTitle string
	DocumentDate  *time.Time
	// Score is the ranking score of the search that produced the chunk.
	Score float64
	// Similarity is the raw match score before any recency blending.
	// Equal to Score when no recency weight is in play.
	Similarity float64
}

// SetDocumentReadyParams carries the metadata written when ingestion
// completes successfully.
type SetDocumentReadyParams struct {
	DocumentID   string
	Title        string
	Summary      string
	Topics       []string
	DocumentDate *time.Time
	ChunkCount   int
}

// UpsertEntityParams identifies an entity by owner and case-insensitive
// name. Upserting fills the description only when the stored one is empty
// and unions the document ids into the existing set.
type UpsertEntityParams struct {
	OwnerID     string
	Name        string
	Type        string
	Description string
	DocumentIDs []string
}

// UpsertRelationshipParams identifies a relationship by owner, endpoints
// and type. Upserting an existing edge increments its weight and unions
// the document ids.
type UpsertRelationshipParams struct {
	OwnerID     string
	SourceID    string
	TargetID    string
	Type        string
	Description string
	DocumentIDs []string
}

// DocumentStorage persists documents and their lifecycle state.
type DocumentStorage interface {
	CreateDocument(ctx context.Context, doc *common.Document) error
	GetDocument(ctx context.Context, ownerID, documentID string) (*common.Document, error)
	ListDocuments(ctx context.Context, ownerID string) ([]common.Document, error)
	SetDocumentStatus(ctx context.Context, documentID string, status common.DocumentStatus, errorMessage string) error
	SetDocumentReady(ctx context.Context, params SetDocumentReadyParams) error
	// DeleteDocument removes the document, its chunks and chunk-entity
	// links, prunes the document id from entities, relationships and
	// communities, and removes graph rows left without any document.
	DeleteDocument(ctx context.Context, ownerID, documentID string) error
}

// ChunkStorage persists chunks and serves ranked retrieval over them.
type ChunkStorage interface {
	InsertChunks(ctx context.Context, ownerID string, chunks []common.Chunk) error
	ListChunksByDocument(ctx context.Context, documentID string) ([]common.Chunk, error)
	GetChunksByIDs(ctx context.Context, ownerID string, chunkIDs []string) ([]common.Chunk, error)
	SetChunkSummary(ctx context.Context, chunkID, summary string, summaryEmbedding []float32) error

	SearchChunksByVector(ctx context.Context, params VectorSearchParams) ([]ScoredChunk, error)
	SearchChunksByKeyword(ctx context.Context, params KeywordSearchParams) ([]ScoredChunk, error)
}

// GraphStorage persists the entity graph extracted from chunks.
type GraphStorage interface {
	UpsertEntity(ctx context.Context, params UpsertEntityParams) (string, error)
	UpsertRelationship(ctx context.Context, params UpsertRelationshipParams) error
	LinkChunkEntities(ctx context.Context, links []common.ChunkEntityLink) error

	ListEntities(ctx context.Context, ownerID string) ([]common.Entity, error)
	ListRelationships(ctx context.Context, ownerID string) ([]common.Relationship, error)
	ListEntityOwners(ctx context.Context) ([]string, error)

	// GetEntitiesForChunks returns the entities linked to any of the given
	// chunks, most frequently linked first.
	GetEntitiesForChunks(ctx context.Context, ownerID string, chunkIDs []string) ([]common.Entity, error)
	// GetEntityNeighborChunks returns ids of chunks linked to any of the
	// given entities, ranked by how many of those entities they share.
	GetEntityNeighborChunks(ctx context.Context, ownerID string, entityIDs []string, limit int) ([]string, error)
}

// CommunityStorage persists derived entity communities. Rebuilds replace
// an owner's full set atomically.
type CommunityStorage interface {
	ReplaceCommunities(ctx context.Context, ownerID string, communities []common.Community) error
	TopCommunities(ctx context.Context, ownerID string, limit int) ([]common.Community, error)
}

// Storage is the full persistence surface the pipeline runs against.
type Storage interface {
	DocumentStorage
	ChunkStorage
	GraphStorage
	CommunityStorage
}
