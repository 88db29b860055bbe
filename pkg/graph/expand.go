package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/arborlabs/arbor/backend/pkg/common"
	"github.com/arborlabs/arbor/backend/pkg/logger"
	"github.com/arborlabs/arbor/backend/pkg/store"
)

const defaultExpansionTopK = 3

// Expander finds chunks related to a result set through shared entities.
type Expander struct {
	storage store.Storage
	topK    int
}

func NewExpander(storage store.Storage, topK int) (*Expander, error) {
	if storage == nil {
		return nil, fmt.Errorf("expander: storage is nil")
	}
	if topK <= 0 {
		topK = defaultExpansionTopK
	}
	return &Expander{storage: storage, topK: topK}, nil
}

// ExpandChunks returns up to topK chunks that share entities with the
// given chunks, excluding the chunks themselves. Expansion is additive
// context, so every failure degrades to an empty result instead of an
// error.
func (x *Expander) ExpandChunks(ctx context.Context, ownerID string, chunkIDs []string) []common.Chunk {
	if len(chunkIDs) == 0 {
		return nil
	}

	entities, err := x.storage.GetEntitiesForChunks(ctx, ownerID, chunkIDs)
	if err != nil {
		logger.Warn("graph expansion failed", "ownerId", ownerID, "error", err)
		return nil
	}
	if len(entities) == 0 {
		return nil
	}
	entityIDs := make([]string, len(entities))
	for i, entity := range entities {
		entityIDs[i] = entity.ID
	}

	exclude := make(map[string]bool, len(chunkIDs))
	for _, id := range chunkIDs {
		exclude[id] = true
	}

	// Over-fetch so the seed chunks can be filtered out and topK
	// neighbors still remain.
	neighborIDs, err := x.storage.GetEntityNeighborChunks(ctx, ownerID, entityIDs, x.topK+len(chunkIDs))
	if err != nil {
		logger.Warn("graph expansion failed", "ownerId", ownerID, "error", err)
		return nil
	}

	keep := make([]string, 0, x.topK)
	for _, id := range neighborIDs {
		if exclude[id] {
			continue
		}
		keep = append(keep, id)
		if len(keep) == x.topK {
			break
		}
	}
	if len(keep) == 0 {
		return nil
	}

	chunks, err := x.storage.GetChunksByIDs(ctx, ownerID, keep)
	if err != nil {
		logger.Warn("graph expansion failed", "ownerId", ownerID, "error", err)
		return nil
	}
	return chunks
}

// GlobalContext formats an owner's largest communities as markdown
// context for corpus-wide questions. Returns an empty string when no
// communities exist yet.
func GlobalContext(ctx context.Context, storage store.CommunityStorage, ownerID string, topN int) string {
	communities, err := storage.TopCommunities(ctx, ownerID, topN)
	if err != nil {
		logger.Warn("loading communities failed", "ownerId", ownerID, "error", err)
		return ""
	}
	if len(communities) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Knowledge Graph Communities\n")
	for i, community := range communities {
		fmt.Fprintf(&sb, "\n### %d. %s (%d entities)\n%s\n", i+1, community.Title, community.Size, community.Summary)
	}
	return sb.String()
}
