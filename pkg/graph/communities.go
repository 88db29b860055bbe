package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/arborlabs/arbor/backend/pkg/ai"
	"github.com/arborlabs/arbor/backend/pkg/common"
	"github.com/arborlabs/arbor/backend/pkg/logger"
	"github.com/arborlabs/arbor/backend/pkg/store"
)

const (
	defaultCommunityMinSize = 3
	defaultChunksPerSummary = 5
	maxPropagationRounds    = 20
	maxTitleLength          = 50
)

type communitySummary struct {
	Title   string `json:"title" jsonschema_description:"Short title naming the community theme"`
	Summary string `json:"summary" jsonschema_description:"Two to three sentence summary of the community"`
}

// CommunityBuilder groups an owner's entities into communities and writes
// them back, replacing the previous set.
type CommunityBuilder struct {
	storage          store.Storage
	aiClient         ai.Client
	minSize          int
	chunksPerSummary int
}

type NewCommunityBuilderParams struct {
	Storage          store.Storage
	AIClient         ai.Client
	MinSize          int
	ChunksPerSummary int
}

func NewCommunityBuilder(params NewCommunityBuilderParams) (*CommunityBuilder, error) {
	if params.Storage == nil {
		return nil, fmt.Errorf("community builder: storage is nil")
	}
	if params.AIClient == nil {
		return nil, fmt.Errorf("community builder: ai client is nil")
	}
	if params.MinSize <= 0 {
		params.MinSize = defaultCommunityMinSize
	}
	if params.ChunksPerSummary <= 0 {
		params.ChunksPerSummary = defaultChunksPerSummary
	}
	return &CommunityBuilder{
		storage:          params.Storage,
		aiClient:         params.AIClient,
		minSize:          params.MinSize,
		chunksPerSummary: params.ChunksPerSummary,
	}, nil
}

// BuildForOwner recomputes all communities for one owner. Summarization
// failures fall back to deterministic titles, so the rebuild only fails
// on storage errors.
func (b *CommunityBuilder) BuildForOwner(ctx context.Context, ownerID string) error {
	entities, err := b.storage.ListEntities(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("build communities: %w", err)
	}
	relationships, err := b.storage.ListRelationships(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("build communities: %w", err)
	}

	byID := make(map[string]common.Entity, len(entities))
	for _, entity := range entities {
		byID[entity.ID] = entity
	}

	groups := detectCommunities(entities, relationships)

	communities := make([]common.Community, 0, len(groups))
	for _, group := range groups {
		if len(group) < b.minSize {
			continue
		}

		names := make([]string, 0, len(group))
		documentIDs := make([]string, 0)
		for _, id := range group {
			entity := byID[id]
			names = append(names, entity.Name)
			documentIDs = append(documentIDs, entity.DocumentIDs...)
		}

		title, summary := b.summarize(ctx, ownerID, group, names)
		communities = append(communities, common.Community{
			OwnerID:     ownerID,
			Title:       title,
			Summary:     summary,
			EntityIDs:   group,
			DocumentIDs: store.DedupeStrings(documentIDs),
			Size:        len(group),
		})
	}

	if err := b.storage.ReplaceCommunities(ctx, ownerID, communities); err != nil {
		return fmt.Errorf("build communities: %w", err)
	}
	logger.Info("rebuilt communities", "ownerId", ownerID, "count", len(communities))
	return nil
}

// BuildForAllOwners rebuilds every owner that has entities. Per-owner
// failures are logged and the remaining owners still rebuild.
func (b *CommunityBuilder) BuildForAllOwners(ctx context.Context) error {
	owners, err := b.storage.ListEntityOwners(ctx)
	if err != nil {
		return fmt.Errorf("build communities: list owners: %w", err)
	}
	for _, owner := range owners {
		if err := b.BuildForOwner(ctx, owner); err != nil {
			logger.Error("community rebuild failed", "ownerId", owner, "error", err)
		}
	}
	return nil
}

func (b *CommunityBuilder) summarize(
	ctx context.Context,
	ownerID string,
	entityIDs []string,
	names []string,
) (string, string) {
	excerpts := b.representativeExcerpts(ctx, ownerID, entityIDs)

	var result communitySummary
	err := b.aiClient.GenerateCompletionWithFormat(
		ctx,
		"community_summary",
		"Title and summary for a cluster of related entities",
		ai.BuildCommunityPrompt(names, excerpts),
		&result,
	)
	if err == nil {
		result.Title = strings.TrimSpace(result.Title)
		result.Summary = strings.TrimSpace(result.Summary)
		if result.Title != "" && result.Summary != "" {
			return result.Title, result.Summary
		}
	} else {
		logger.Warn("community summarization failed", "ownerId", ownerID, "error", err)
	}
	return fallbackTitle(names), fallbackSummary(names, len(entityIDs))
}

func (b *CommunityBuilder) representativeExcerpts(
	ctx context.Context,
	ownerID string,
	entityIDs []string,
) []string {
	chunkIDs, err := b.storage.GetEntityNeighborChunks(ctx, ownerID, entityIDs, b.chunksPerSummary)
	if err != nil {
		logger.Warn("loading representative chunks failed", "ownerId", ownerID, "error", err)
		return nil
	}
	chunks, err := b.storage.GetChunksByIDs(ctx, ownerID, chunkIDs)
	if err != nil {
		logger.Warn("loading representative chunks failed", "ownerId", ownerID, "error", err)
		return nil
	}

	excerpts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		excerpts = append(excerpts, chunk.Content)
	}
	return excerpts
}

func fallbackTitle(names []string) string {
	joined := strings.Join(names[:min(len(names), 5)], ", ")
	title := "Community: " + joined
	runes := []rune(title)
	if len(runes) > maxTitleLength {
		title = string(runes[:maxTitleLength])
	}
	return title
}

func fallbackSummary(names []string, size int) string {
	joined := strings.Join(names[:min(len(names), 5)], ", ")
	return fmt.Sprintf("A cluster of %d related entities including %s.", size, joined)
}

// detectCommunities groups entities by label propagation over the
// relationship graph. Nodes repeatedly adopt the label carrying the most
// edge weight among their neighbors; processing nodes in sorted id order
// and breaking label ties toward the smaller label makes the result
// deterministic. Isolated entities form singleton groups, which the
// minimum size filter discards later.
func detectCommunities(entities []common.Entity, relationships []common.Relationship) [][]string {
	if len(entities) == 0 {
		return nil
	}

	ids := make([]string, 0, len(entities))
	known := make(map[string]bool, len(entities))
	for _, entity := range entities {
		ids = append(ids, entity.ID)
		known[entity.ID] = true
	}
	sort.Strings(ids)

	weights := make(map[string]map[string]float64, len(entities))
	addEdge := func(a, b string, w float64) {
		if weights[a] == nil {
			weights[a] = make(map[string]float64)
		}
		weights[a][b] += w
	}
	for _, rel := range relationships {
		if !known[rel.SourceID] || !known[rel.TargetID] || rel.SourceID == rel.TargetID {
			continue
		}
		w := rel.Weight
		if w <= 0 {
			w = 1
		}
		addEdge(rel.SourceID, rel.TargetID, w)
		addEdge(rel.TargetID, rel.SourceID, w)
	}

	labels := make(map[string]string, len(ids))
	for _, id := range ids {
		labels[id] = id
	}

	for range maxPropagationRounds {
		changed := false
		for _, id := range ids {
			neighbors := weights[id]
			if len(neighbors) == 0 {
				continue
			}

			labelWeight := make(map[string]float64, len(neighbors))
			for neighbor, w := range neighbors {
				labelWeight[labels[neighbor]] += w
			}

			best := labels[id]
			bestWeight := labelWeight[best]
			for label, w := range labelWeight {
				if w > bestWeight || (w == bestWeight && label < best) {
					best = label
					bestWeight = w
				}
			}
			if best != labels[id] {
				labels[id] = best
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	grouped := make(map[string][]string)
	for _, id := range ids {
		grouped[labels[id]] = append(grouped[labels[id]], id)
	}

	labelsSorted := make([]string, 0, len(grouped))
	for label := range grouped {
		labelsSorted = append(labelsSorted, label)
	}
	sort.Strings(labelsSorted)

	out := make([][]string, 0, len(grouped))
	for _, label := range labelsSorted {
		out = append(out, grouped[label])
	}
	return out
}
