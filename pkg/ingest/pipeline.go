// Package ingest runs the document ingestion pipeline: fetch, extract,
// chunk, embed, persist, then graph extraction and community rebuild.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/arborlabs/arbor/backend/internal/util"
	"github.com/arborlabs/arbor/backend/pkg/ai"
	"github.com/arborlabs/arbor/backend/pkg/chunk"
	"github.com/arborlabs/arbor/backend/pkg/common"
	"github.com/arborlabs/arbor/backend/pkg/extract"
	"github.com/arborlabs/arbor/backend/pkg/graph"
	"github.com/arborlabs/arbor/backend/pkg/logger"
	"github.com/arborlabs/arbor/backend/pkg/store"
)

const (
	embeddingBatchSize    = 100
	errorMessageMaxLength = 500
)

// FileStore fetches and removes the raw uploaded bytes of a document.
type FileStore interface {
	Download(ctx context.Context, ownerID, documentID string) ([]byte, error)
	Delete(ctx context.Context, ownerID, documentID string) error
}

// Pipeline ingests uploaded documents into retrievable chunks and the
// entity graph.
type Pipeline struct {
	storage     store.Storage
	files       FileStore
	aiClient    ai.Client
	chunker     *chunk.Chunker
	extractor   *graph.Extractor
	communities *graph.CommunityBuilder
	enricher    *Enricher
}

type NewPipelineParams struct {
	Storage  store.Storage
	Files    FileStore
	AIClient ai.Client
	Chunker  *chunk.Chunker

	// Extractor and Communities are optional; without them ingestion
	// skips the graph stages.
	Extractor   *graph.Extractor
	Communities *graph.CommunityBuilder
	// Enricher is optional; with it ready documents get chunk summaries.
	Enricher *Enricher
}

func NewPipeline(params NewPipelineParams) (*Pipeline, error) {
	if params.Storage == nil {
		return nil, fmt.Errorf("pipeline: storage is nil")
	}
	if params.Files == nil {
		return nil, fmt.Errorf("pipeline: file store is nil")
	}
	if params.AIClient == nil {
		return nil, fmt.Errorf("pipeline: ai client is nil")
	}
	if params.Chunker == nil {
		return nil, fmt.Errorf("pipeline: chunker is nil")
	}
	return &Pipeline{
		storage:     params.Storage,
		files:       params.Files,
		aiClient:    params.AIClient,
		chunker:     params.Chunker,
		extractor:   params.Extractor,
		communities: params.Communities,
		enricher:    params.Enricher,
	}, nil
}

// IngestDocument processes one uploaded document end to end. The
// document moves to processing at the start and to ready or error at the
// end; the graph stages are best effort and never fail the ingestion.
func (p *Pipeline) IngestDocument(ctx context.Context, ownerID, documentID string) error {
	doc, err := p.storage.GetDocument(ctx, ownerID, documentID)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", documentID, err)
	}

	if err := p.storage.SetDocumentStatus(ctx, documentID, common.DocumentStatusProcessing, ""); err != nil {
		return fmt.Errorf("ingest %s: %w", documentID, err)
	}

	if err := p.run(ctx, doc); err != nil {
		p.markFailed(ctx, documentID, err)
		return fmt.Errorf("ingest %s: %w", documentID, err)
	}
	return nil
}

func (p *Pipeline) run(ctx context.Context, doc *common.Document) error {
	content, err := p.files.Download(ctx, doc.OwnerID, doc.ID)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}

	text, err := extract.Extract(ctx, content, doc.FileType)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("file is empty")
	}

	metadata := extractMetadata(ctx, p.aiClient, text)

	chunks := p.chunker.Split(text)
	if len(chunks) == 0 {
		return fmt.Errorf("file is empty")
	}

	rows, err := p.embedChunks(ctx, doc.ID, chunks)
	if err != nil {
		return err
	}
	if err := p.storage.InsertChunks(ctx, doc.OwnerID, rows); err != nil {
		return fmt.Errorf("insert chunks: %w", err)
	}

	if p.extractor != nil {
		count, err := p.extractor.ExtractDocument(ctx, doc.OwnerID, doc.ID, rows)
		if err != nil {
			logger.Warn("graph extraction failed", "documentId", doc.ID, "error", err)
		} else {
			logger.Debug("graph extraction done", "documentId", doc.ID, "entities", count)
		}
		if p.communities != nil {
			if err := p.communities.BuildForOwner(ctx, doc.OwnerID); err != nil {
				logger.Warn("community rebuild failed", "documentId", doc.ID, "error", err)
			}
		}
	}

	err = p.storage.SetDocumentReady(ctx, store.SetDocumentReadyParams{
		DocumentID:   doc.ID,
		Title:        metadata.Title,
		Summary:      metadata.Summary,
		Topics:       metadata.Topics,
		DocumentDate: metadata.date(),
		ChunkCount:   len(rows),
	})
	if err != nil {
		return fmt.Errorf("mark ready: %w", err)
	}

	if p.enricher != nil {
		p.enricher.EnrichDocument(ctx, doc.OwnerID, doc.ID)
	}

	logger.Info("document ingested",
		"documentId", doc.ID,
		"ownerId", doc.OwnerID,
		"chunks", len(rows),
	)
	return nil
}

func (p *Pipeline) embedChunks(ctx context.Context, documentID string, chunks []chunk.Chunk) ([]common.Chunk, error) {
	rows := make([]common.Chunk, len(chunks))
	for i, c := range chunks {
		rows[i] = common.Chunk{
			DocumentID:  documentID,
			Index:       c.Index,
			Content:     c.Content,
			TokenCount:  c.TokenCount,
			ContentHash: c.ContentHash,
		}
	}

	err := store.ChunkRange(len(rows), embeddingBatchSize, func(start, end int) error {
		inputs := make([][]byte, end-start)
		for i := start; i < end; i++ {
			inputs[i-start] = []byte(rows[i].Content)
		}
		embeddings, err := p.aiClient.GenerateEmbeddings(ctx, inputs)
		if err != nil {
			return fmt.Errorf("embed chunks %d-%d: %w", start, end, err)
		}
		if len(embeddings) != end-start {
			return fmt.Errorf("embed chunks %d-%d: got %d embeddings", start, end, len(embeddings))
		}
		for i := start; i < end; i++ {
			rows[i].Embedding = embeddings[i-start]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (p *Pipeline) markFailed(ctx context.Context, documentID string, cause error) {
	message := util.TruncateString(cause.Error(), errorMessageMaxLength)
	if err := p.storage.SetDocumentStatus(ctx, documentID, common.DocumentStatusError, message); err != nil {
		logger.Error("marking document failed", "documentId", documentID, "error", err)
	}
}

// DeleteDocument removes the stored file, the document with its chunks,
// and rebuilds the owner's communities since the graph shrank.
func (p *Pipeline) DeleteDocument(ctx context.Context, ownerID, documentID string) error {
	if err := p.files.Delete(ctx, ownerID, documentID); err != nil {
		// The database row is the source of truth; a missing object in
		// the file store must not block deletion.
		logger.Warn("deleting stored file failed", "documentId", documentID, "error", err)
	}

	if err := p.storage.DeleteDocument(ctx, ownerID, documentID); err != nil {
		return fmt.Errorf("delete %s: %w", documentID, err)
	}

	if p.communities != nil {
		if err := p.communities.BuildForOwner(ctx, ownerID); err != nil {
			logger.Warn("community rebuild failed", "ownerId", ownerID, "error", err)
		}
	}
	logger.Info("document deleted", "documentId", documentID, "ownerId", ownerID)
	return nil
}
