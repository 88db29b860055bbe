package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/arborlabs/arbor/backend/pkg/common"
	"github.com/arborlabs/arbor/backend/pkg/store"
)

func (s *Store) UpsertEntity(ctx context.Context, params store.UpsertEntityParams) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nameLower := strings.ToLower(strings.TrimSpace(params.Name))
	if nameLower == "" {
		return "", store.ErrNotFound
	}

	for _, entity := range s.entities {
		if entity.OwnerID != params.OwnerID || strings.ToLower(entity.Name) != nameLower {
			continue
		}
		if entity.Description == "" {
			entity.Description = params.Description
		}
		entity.DocumentIDs = store.UnionStrings(entity.DocumentIDs, params.DocumentIDs)
		return entity.ID, nil
	}

	entity := &common.Entity{
		ID:          newID(),
		OwnerID:     params.OwnerID,
		Name:        strings.TrimSpace(params.Name),
		Type:        params.Type,
		Description: params.Description,
		DocumentIDs: store.DedupeStrings(params.DocumentIDs),
	}
	s.entities[entity.ID] = entity
	return entity.ID, nil
}

func (s *Store) UpsertRelationship(ctx context.Context, params store.UpsertRelationshipParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rel := range s.relationships {
		if rel.OwnerID != params.OwnerID ||
			rel.SourceID != params.SourceID ||
			rel.TargetID != params.TargetID ||
			rel.Type != params.Type {
			continue
		}
		rel.Weight++
		if rel.Description == "" {
			rel.Description = params.Description
		}
		rel.DocumentIDs = store.UnionStrings(rel.DocumentIDs, params.DocumentIDs)
		return nil
	}

	rel := &common.Relationship{
		ID:          newID(),
		OwnerID:     params.OwnerID,
		SourceID:    params.SourceID,
		TargetID:    params.TargetID,
		Type:        params.Type,
		Description: params.Description,
		Weight:      1,
		DocumentIDs: store.DedupeStrings(params.DocumentIDs),
	}
	s.relationships[rel.ID] = rel
	return nil
}

func (s *Store) LinkChunkEntities(ctx context.Context, links []common.ChunkEntityLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, link := range links {
		if _, ok := s.chunks[link.ChunkID]; !ok {
			continue
		}
		if _, ok := s.entities[link.EntityID]; !ok {
			continue
		}
		if s.chunkEntities[link.ChunkID] == nil {
			s.chunkEntities[link.ChunkID] = make(map[string]bool)
		}
		s.chunkEntities[link.ChunkID][link.EntityID] = true
	}
	return nil
}

func (s *Store) ListEntities(ctx context.Context, ownerID string) ([]common.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]common.Entity, 0)
	for _, entity := range s.entities {
		if entity.OwnerID == ownerID {
			out = append(out, *entity)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) ListRelationships(ctx context.Context, ownerID string) ([]common.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]common.Relationship, 0)
	for _, rel := range s.relationships {
		if rel.OwnerID == ownerID {
			out = append(out, *rel)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListEntityOwners(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owners := make([]string, 0)
	for _, entity := range s.entities {
		owners = append(owners, entity.OwnerID)
	}
	owners = store.DedupeStrings(owners)
	sort.Strings(owners)
	return owners, nil
}

func (s *Store) GetEntitiesForChunks(ctx context.Context, ownerID string, chunkIDs []string) ([]common.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, chunkID := range chunkIDs {
		for entityID := range s.chunkEntities[chunkID] {
			counts[entityID]++
		}
	}

	out := make([]common.Entity, 0, len(counts))
	for entityID := range counts {
		entity, ok := s.entities[entityID]
		if !ok || entity.OwnerID != ownerID {
			continue
		}
		out = append(out, *entity)
	}
	sort.Slice(out, func(i, j int) bool {
		if counts[out[i].ID] != counts[out[j].ID] {
			return counts[out[i].ID] > counts[out[j].ID]
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) GetEntityNeighborChunks(
	ctx context.Context,
	ownerID string,
	entityIDs []string,
	limit int,
) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]bool, len(entityIDs))
	for _, id := range entityIDs {
		wanted[id] = true
	}

	shared := make(map[string]int)
	for chunkID, links := range s.chunkEntities {
		if s.chunkOwners[chunkID] != ownerID {
			continue
		}
		for entityID := range links {
			if wanted[entityID] {
				shared[chunkID]++
			}
		}
	}

	ids := make([]string, 0, len(shared))
	for chunkID := range shared {
		ids = append(ids, chunkID)
	}
	sort.Slice(ids, func(i, j int) bool {
		if shared[ids[i]] != shared[ids[j]] {
			return shared[ids[i]] > shared[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}
