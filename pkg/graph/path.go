package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/arborlabs/arbor/backend/internal/util"
	"github.com/arborlabs/arbor/backend/pkg/common"
	"github.com/arborlabs/arbor/backend/pkg/store"
)

const (
	defaultMaxHops     = 4
	defaultMaxExcerpts = 5
	excerptLength      = 500
)

// PathStep is one edge along a found path.
type PathStep struct {
	From         string `json:"from"`
	To           string `json:"to"`
	RelationType string `json:"relation_type"`
}

// PathResult describes the outcome of a path search. When no path (or no
// matching entity) exists, Found is false and Message explains why;
// lookups do not fail outright on unknown names.
type PathResult struct {
	Found    bool       `json:"found"`
	Message  string     `json:"message,omitempty"`
	Steps    []PathStep `json:"steps,omitempty"`
	Excerpts []string   `json:"excerpts,omitempty"`
}

// Text renders the result as context for prompting.
func (r PathResult) Text() string {
	if !r.Found {
		return r.Message
	}

	var sb strings.Builder
	sb.WriteString(r.Steps[0].From)
	for _, step := range r.Steps {
		fmt.Fprintf(&sb, " -[%s]-> %s", step.RelationType, step.To)
	}
	for _, excerpt := range r.Excerpts {
		sb.WriteString("\n\n")
		sb.WriteString(excerpt)
	}
	return sb.String()
}

// PathFinder searches for connection paths between two named entities.
type PathFinder struct {
	storage     store.Storage
	maxHops     int
	maxExcerpts int
}

func NewPathFinder(storage store.Storage, maxHops int) (*PathFinder, error) {
	if storage == nil {
		return nil, fmt.Errorf("path finder: storage is nil")
	}
	if maxHops <= 0 {
		maxHops = defaultMaxHops
	}
	return &PathFinder{storage: storage, maxHops: maxHops, maxExcerpts: defaultMaxExcerpts}, nil
}

// FindPath looks for the shortest relationship path between two entities,
// matched case-insensitively by name. Traversal treats edges as
// undirected and stops after maxHops hops.
func (p *PathFinder) FindPath(ctx context.Context, ownerID, sourceName, targetName string) (PathResult, error) {
	entities, err := p.storage.ListEntities(ctx, ownerID)
	if err != nil {
		return PathResult{}, fmt.Errorf("find path: %w", err)
	}

	source := resolveEntity(entities, sourceName)
	if source == nil {
		return PathResult{Message: fmt.Sprintf("No entity named %q was found.", sourceName)}, nil
	}
	target := resolveEntity(entities, targetName)
	if target == nil {
		return PathResult{Message: fmt.Sprintf("No entity named %q was found.", targetName)}, nil
	}
	if source.ID == target.ID {
		return PathResult{Message: fmt.Sprintf("%q and %q resolve to the same entity.", sourceName, targetName)}, nil
	}

	relationships, err := p.storage.ListRelationships(ctx, ownerID)
	if err != nil {
		return PathResult{}, fmt.Errorf("find path: %w", err)
	}

	steps := shortestPath(entities, relationships, source.ID, target.ID, p.maxHops)
	if steps == nil {
		return PathResult{
			Message: fmt.Sprintf("No path between %q and %q within %d hops.", source.Name, target.Name, p.maxHops),
		}, nil
	}

	return PathResult{
		Found:    true,
		Steps:    steps,
		Excerpts: p.pathExcerpts(ctx, ownerID, entities, steps),
	}, nil
}

// pathExcerpts collects a few chunks mentioning entities along the path.
// Excerpt loading is best effort.
func (p *PathFinder) pathExcerpts(
	ctx context.Context,
	ownerID string,
	entities []common.Entity,
	steps []PathStep,
) []string {
	names := make(map[string]bool, len(steps)+1)
	names[strings.ToLower(steps[0].From)] = true
	for _, step := range steps {
		names[strings.ToLower(step.To)] = true
	}
	entityIDs := make([]string, 0, len(names))
	for _, entity := range entities {
		if names[strings.ToLower(entity.Name)] {
			entityIDs = append(entityIDs, entity.ID)
		}
	}

	chunkIDs, err := p.storage.GetEntityNeighborChunks(ctx, ownerID, entityIDs, p.maxExcerpts)
	if err != nil {
		return nil
	}
	chunks, err := p.storage.GetChunksByIDs(ctx, ownerID, chunkIDs)
	if err != nil {
		return nil
	}

	excerpts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		excerpts = append(excerpts, util.TruncateString(chunk.Content, excerptLength))
	}
	return excerpts
}

// resolveEntity matches by exact name, case-insensitively. A name that
// matches no entity resolves to nil; partial names are not guessed at.
func resolveEntity(entities []common.Entity, name string) *common.Entity {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil
	}
	for i := range entities {
		if strings.ToLower(entities[i].Name) == needle {
			return &entities[i]
		}
	}
	return nil
}

type pathEdge struct {
	to           string
	relationType string
}

// shortestPath runs a breadth-first search over the undirected
// relationship graph, visiting neighbors in sorted order so equal-length
// paths resolve the same way every run.
func shortestPath(
	entities []common.Entity,
	relationships []common.Relationship,
	sourceID, targetID string,
	maxHops int,
) []PathStep {
	nameOf := make(map[string]string, len(entities))
	for _, entity := range entities {
		nameOf[entity.ID] = entity.Name
	}

	adjacency := make(map[string][]pathEdge)
	for _, rel := range relationships {
		adjacency[rel.SourceID] = append(adjacency[rel.SourceID], pathEdge{to: rel.TargetID, relationType: rel.Type})
		adjacency[rel.TargetID] = append(adjacency[rel.TargetID], pathEdge{to: rel.SourceID, relationType: rel.Type})
	}
	for id := range adjacency {
		edges := adjacency[id]
		for i := 1; i < len(edges); i++ {
			for j := i; j > 0 && edges[j].to < edges[j-1].to; j-- {
				edges[j], edges[j-1] = edges[j-1], edges[j]
			}
		}
	}

	type visit struct {
		parent  string
		viaType string
	}
	visited := map[string]visit{sourceID: {}}
	frontier := []string{sourceID}

	for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
		next := make([]string, 0)
		for _, id := range frontier {
			for _, edge := range adjacency[id] {
				if _, seen := visited[edge.to]; seen {
					continue
				}
				visited[edge.to] = visit{parent: id, viaType: edge.relationType}
				if edge.to != targetID {
					next = append(next, edge.to)
					continue
				}

				// Walk parents back to the source.
				steps := make([]PathStep, 0, hop+1)
				for cur := targetID; cur != sourceID; cur = visited[cur].parent {
					v := visited[cur]
					steps = append(steps, PathStep{
						From:         nameOf[v.parent],
						To:           nameOf[cur],
						RelationType: v.viaType,
					})
				}
				for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
					steps[i], steps[j] = steps[j], steps[i]
				}
				return steps
			}
		}
		frontier = next
	}
	return nil
}
