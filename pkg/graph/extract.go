// Package graph builds and queries the entity graph derived from chunk
// content: extraction, community detection, neighbor expansion and path
// finding between entities.
package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/arborlabs/arbor/backend/internal/util"
	"github.com/arborlabs/arbor/backend/pkg/ai"
	"github.com/arborlabs/arbor/backend/pkg/common"
	"github.com/arborlabs/arbor/backend/pkg/logger"
	"github.com/arborlabs/arbor/backend/pkg/store"
)

const (
	defaultExtractionBatchSize = 5
	defaultRelationType        = "RELATED_TO"
	defaultEntityType          = "UNKNOWN"
)

// DefaultEntityTypes is the extraction vocabulary used when none is
// configured.
var DefaultEntityTypes = []string{"PERSON", "ORGANIZATION", "LOCATION", "CONCEPT", "EVENT", "PRODUCT"}

type extractedEntity struct {
	Name        string `json:"name" jsonschema_description:"Name of the entity as it appears in the text"`
	Type        string `json:"type" jsonschema_description:"Entity type from the allowed list"`
	Description string `json:"description" jsonschema_description:"One sentence describing the entity"`
}

type extractedRelationship struct {
	Source string `json:"source" jsonschema_description:"Name of the source entity"`
	Target string `json:"target" jsonschema_description:"Name of the target entity"`
	Type   string `json:"type" jsonschema_description:"Short uppercase relation type"`
}

type chunkExtraction struct {
	ChunkIndex    int                     `json:"chunk_index" jsonschema_description:"One-based index of the chunk in the prompt"`
	Entities      []extractedEntity       `json:"entities" jsonschema_description:"Entities mentioned in the chunk"`
	Relationships []extractedRelationship `json:"relationships" jsonschema_description:"Relationships between extracted entities"`
}

type batchExtraction struct {
	Chunks []chunkExtraction `json:"chunks" jsonschema_description:"Extraction results, one per input chunk"`
}

// Extractor pulls entities and relationships out of chunks and persists
// them through the graph store.
type Extractor struct {
	storage     store.GraphStorage
	aiClient    ai.Client
	entityTypes []string
	batchSize   int
	maxRetries  int
}

type NewExtractorParams struct {
	Storage     store.GraphStorage
	AIClient    ai.Client
	EntityTypes []string
	BatchSize   int
	MaxRetries  int
}

func NewExtractor(params NewExtractorParams) (*Extractor, error) {
	if params.Storage == nil {
		return nil, fmt.Errorf("extractor: storage is nil")
	}
	if params.AIClient == nil {
		return nil, fmt.Errorf("extractor: ai client is nil")
	}
	if len(params.EntityTypes) == 0 {
		params.EntityTypes = DefaultEntityTypes
	}
	if params.BatchSize <= 0 {
		params.BatchSize = defaultExtractionBatchSize
	}
	if params.MaxRetries <= 0 {
		params.MaxRetries = 2
	}
	return &Extractor{
		storage:     params.Storage,
		aiClient:    params.AIClient,
		entityTypes: params.EntityTypes,
		batchSize:   params.BatchSize,
		maxRetries:  params.MaxRetries,
	}, nil
}

// ExtractDocument runs extraction over all chunks of a document in
// batches. A failing batch is logged and skipped; extraction never fails
// ingestion. Returns how many entities were written.
func (e *Extractor) ExtractDocument(
	ctx context.Context,
	ownerID string,
	documentID string,
	chunks []common.Chunk,
) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	entityCount := 0
	// Entity ids accumulate across batches so relationships can reference
	// entities first seen in an earlier batch of the same document.
	entityIDs := make(map[string]string)
	err := store.ChunkRange(len(chunks), e.batchSize, func(start, end int) error {
		batch := chunks[start:end]
		result, err := e.extractBatch(ctx, batch)
		if err != nil {
			logger.Warn("extraction batch failed",
				"documentId", documentID,
				"batchStart", start,
				"error", err,
			)
			return nil
		}
		n, err := e.persistBatch(ctx, ownerID, documentID, batch, entityIDs, result)
		if err != nil {
			logger.Warn("persisting extraction batch failed",
				"documentId", documentID,
				"batchStart", start,
				"error", err,
			)
			return nil
		}
		entityCount += n
		return nil
	})
	if err != nil {
		return entityCount, err
	}
	return entityCount, nil
}

func (e *Extractor) extractBatch(ctx context.Context, batch []common.Chunk) (*batchExtraction, error) {
	texts := make([]string, len(batch))
	for i, chunk := range batch {
		texts[i] = chunk.Content
	}
	prompt := ai.BuildExtractionPrompt(e.entityTypes, texts)

	return util.RetryWithContext(ctx, e.maxRetries, func(ctx context.Context) (*batchExtraction, error) {
		var result batchExtraction
		err := e.aiClient.GenerateCompletionWithFormat(
			ctx,
			"graph_extraction",
			"Entities and relationships extracted from text chunks",
			prompt,
			&result,
		)
		if err != nil {
			return nil, err
		}
		return &result, nil
	})
}

// persistBatch upserts the extracted entities, links them to their source
// chunks, and upserts relationships whose endpoints resolved. Entity
// identity is the lowercase name, so repeated mentions merge.
func (e *Extractor) persistBatch(
	ctx context.Context,
	ownerID string,
	documentID string,
	batch []common.Chunk,
	entityIDs map[string]string,
	result *batchExtraction,
) (int, error) {
	links := make([]common.ChunkEntityLink, 0)
	written := 0

	for _, chunkResult := range result.Chunks {
		idx := chunkResult.ChunkIndex - 1
		if idx < 0 || idx >= len(batch) {
			continue
		}
		chunk := batch[idx]

		for _, entity := range chunkResult.Entities {
			name := strings.TrimSpace(entity.Name)
			if name == "" {
				continue
			}
			entityType := strings.TrimSpace(entity.Type)
			if entityType == "" {
				entityType = defaultEntityType
			}

			// Every mention is upserted, not just the first: the store
			// merge fills in a description an earlier mention lacked.
			key := strings.ToLower(name)
			id, err := e.storage.UpsertEntity(ctx, store.UpsertEntityParams{
				OwnerID:     ownerID,
				Name:        name,
				Type:        entityType,
				Description: strings.TrimSpace(entity.Description),
				DocumentIDs: []string{documentID},
			})
			if err != nil {
				return written, fmt.Errorf("upsert entity %q: %w", name, err)
			}
			if _, seen := entityIDs[key]; !seen {
				written++
			}
			entityIDs[key] = id
			links = append(links, common.ChunkEntityLink{ChunkID: chunk.ID, EntityID: id})
		}

		for _, rel := range chunkResult.Relationships {
			sourceID, okSource := entityIDs[strings.ToLower(strings.TrimSpace(rel.Source))]
			targetID, okTarget := entityIDs[strings.ToLower(strings.TrimSpace(rel.Target))]
			if !okSource || !okTarget || sourceID == targetID {
				continue
			}
			relType := strings.TrimSpace(rel.Type)
			if relType == "" {
				relType = defaultRelationType
			}
			err := e.storage.UpsertRelationship(ctx, store.UpsertRelationshipParams{
				OwnerID:     ownerID,
				SourceID:    sourceID,
				TargetID:    targetID,
				Type:        relType,
				DocumentIDs: []string{documentID},
			})
			if err != nil {
				return written, fmt.Errorf("upsert relationship %q -> %q: %w", rel.Source, rel.Target, err)
			}
		}
	}

	if err := e.storage.LinkChunkEntities(ctx, links); err != nil {
		return written, fmt.Errorf("link chunk entities: %w", err)
	}
	return written, nil
}
