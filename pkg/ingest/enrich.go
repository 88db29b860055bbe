package ingest

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/arborlabs/arbor/backend/pkg/ai"
	"github.com/arborlabs/arbor/backend/pkg/common"
	"github.com/arborlabs/arbor/backend/pkg/logger"
	"github.com/arborlabs/arbor/backend/pkg/store"
)

const defaultEnrichParallelism = 4

// Enricher adds a short summary and summary embedding to each chunk of a
// ready document. Retrieval blends these into the similarity score, so
// enrichment improves ranking but nothing depends on it existing.
type Enricher struct {
	storage     store.ChunkStorage
	aiClient    ai.Client
	parallelism int
}

func NewEnricher(storage store.ChunkStorage, aiClient ai.Client, parallelism int) (*Enricher, error) {
	if storage == nil {
		return nil, fmt.Errorf("enricher: storage is nil")
	}
	if aiClient == nil {
		return nil, fmt.Errorf("enricher: ai client is nil")
	}
	if parallelism <= 0 {
		parallelism = defaultEnrichParallelism
	}
	return &Enricher{storage: storage, aiClient: aiClient, parallelism: parallelism}, nil
}

// EnrichDocument summarizes every chunk of the document that does not
// have a summary yet. Failures are logged per chunk and skipped.
func (e *Enricher) EnrichDocument(ctx context.Context, ownerID, documentID string) {
	chunks, err := e.storage.ListChunksByDocument(ctx, documentID)
	if err != nil {
		logger.Warn("enrichment failed", "documentId", documentID, "error", err)
		return
	}

	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(e.parallelism)
	enriched := 0
	for _, chunk := range chunks {
		if chunk.Summary != "" {
			continue
		}
		enriched++
		eg.Go(func() error {
			if err := e.enrichChunk(ectx, chunk); err != nil {
				logger.Warn("enriching chunk failed",
					"documentId", documentID,
					"chunkIndex", chunk.Index,
					"error", err,
				)
			}
			return nil
		})
	}
	_ = eg.Wait()

	if enriched > 0 {
		logger.Debug("chunk enrichment done", "documentId", documentID, "chunks", enriched)
	}
}

func (e *Enricher) enrichChunk(ctx context.Context, chunk common.Chunk) error {
	summary, err := e.aiClient.GenerateCompletion(ctx, ai.BuildChunkSummaryPrompt(chunk.Content))
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return fmt.Errorf("summarize: empty response")
	}

	embedding, err := e.aiClient.GenerateEmbedding(ctx, []byte(summary))
	if err != nil {
		return fmt.Errorf("embed summary: %w", err)
	}
	return e.storage.SetChunkSummary(ctx, chunk.ID, summary, embedding)
}
