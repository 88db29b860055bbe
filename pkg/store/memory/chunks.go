package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/arborlabs/arbor/backend/pkg/common"
	"github.com/arborlabs/arbor/backend/pkg/store"
)

func (s *Store) InsertChunks(ctx context.Context, ownerID string, chunks []common.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range chunks {
		chunk := chunks[i]
		doc, ok := s.documents[chunk.DocumentID]
		if !ok || doc.OwnerID != ownerID {
			return fmt.Errorf("insert chunks: document %s: %w", chunk.DocumentID, store.ErrNotFound)
		}
		if chunk.ID == "" {
			chunk.ID = newID()
			chunks[i].ID = chunk.ID
		}
		cp := chunk
		s.chunks[chunk.ID] = &cp
		s.chunkOwners[chunk.ID] = ownerID
	}
	return nil
}

func (s *Store) ListChunksByDocument(ctx context.Context, documentID string) ([]common.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]common.Chunk, 0)
	for _, chunk := range s.chunks {
		if chunk.DocumentID == documentID {
			out = append(out, *chunk)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (s *Store) GetChunksByIDs(ctx context.Context, ownerID string, chunkIDs []string) ([]common.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]common.Chunk, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		chunk, ok := s.chunks[id]
		if !ok || s.chunkOwners[id] != ownerID {
			continue
		}
		out = append(out, *chunk)
	}
	return out, nil
}

func (s *Store) SetChunkSummary(ctx context.Context, chunkID, summary string, summaryEmbedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunk, ok := s.chunks[chunkID]
	if !ok {
		return store.ErrNotFound
	}
	chunk.Summary = summary
	chunk.SummaryEmbedding = append([]float32{}, summaryEmbedding...)
	return nil
}
