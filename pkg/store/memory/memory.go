// Package memory provides an in-memory Storage implementation. It backs
// unit tests and single-process setups where Postgres is not available.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/arborlabs/arbor/backend/pkg/common"
	"github.com/arborlabs/arbor/backend/pkg/store"
)

// Store keeps all rows in maps guarded by a single RWMutex. All returned
// slices are copies; callers may mutate them freely.
type Store struct {
	mu sync.RWMutex

	documents     map[string]*common.Document
	chunks        map[string]*common.Chunk
	chunkOwners   map[string]string
	entities      map[string]*common.Entity
	relationships map[string]*common.Relationship
	chunkEntities map[string]map[string]bool // chunk id -> entity ids
	communities   map[string]*common.Community

	now func() time.Time
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		documents:     make(map[string]*common.Document),
		chunks:        make(map[string]*common.Chunk),
		chunkOwners:   make(map[string]string),
		entities:      make(map[string]*common.Entity),
		relationships: make(map[string]*common.Relationship),
		chunkEntities: make(map[string]map[string]bool),
		communities:   make(map[string]*common.Community),
		now:           time.Now,
	}
}

var _ store.Storage = (*Store)(nil)

func newID() string {
	id, err := gonanoid.New()
	if err != nil {
		panic(fmt.Sprintf("generate id: %v", err))
	}
	return id
}

func (s *Store) CreateDocument(ctx context.Context, doc *common.Document) error {
	if doc.OwnerID == "" {
		return fmt.Errorf("create document: owner id is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.ID == "" {
		doc.ID = newID()
	}
	if doc.Status == "" {
		doc.Status = common.DocumentStatusPending
	}
	now := s.now()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	cp := *doc
	s.documents[doc.ID] = &cp
	return nil
}

func (s *Store) GetDocument(ctx context.Context, ownerID, documentID string) (*common.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[documentID]
	if !ok || doc.OwnerID != ownerID {
		return nil, store.ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (s *Store) ListDocuments(ctx context.Context, ownerID string) ([]common.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]common.Document, 0)
	for _, doc := range s.documents {
		if doc.OwnerID == ownerID {
			out = append(out, *doc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) SetDocumentStatus(
	ctx context.Context,
	documentID string,
	status common.DocumentStatus,
	errorMessage string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[documentID]
	if !ok {
		return store.ErrNotFound
	}
	doc.Status = status
	doc.ErrorMessage = errorMessage
	doc.UpdatedAt = s.now()
	return nil
}

func (s *Store) SetDocumentReady(ctx context.Context, params store.SetDocumentReadyParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[params.DocumentID]
	if !ok {
		return store.ErrNotFound
	}
	doc.Status = common.DocumentStatusReady
	doc.ErrorMessage = ""
	doc.Title = params.Title
	doc.Summary = params.Summary
	doc.Topics = append([]string{}, params.Topics...)
	doc.DocumentDate = params.DocumentDate
	doc.ChunkCount = params.ChunkCount
	doc.UpdatedAt = s.now()
	return nil
}

func (s *Store) DeleteDocument(ctx context.Context, ownerID, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[documentID]
	if !ok || doc.OwnerID != ownerID {
		return store.ErrNotFound
	}
	delete(s.documents, documentID)

	for id, chunk := range s.chunks {
		if chunk.DocumentID == documentID {
			delete(s.chunks, id)
			delete(s.chunkOwners, id)
			delete(s.chunkEntities, id)
		}
	}

	for id, entity := range s.entities {
		entity.DocumentIDs = removeString(entity.DocumentIDs, documentID)
		if len(entity.DocumentIDs) == 0 {
			delete(s.entities, id)
			for _, links := range s.chunkEntities {
				delete(links, id)
			}
		}
	}
	for id, rel := range s.relationships {
		rel.DocumentIDs = removeString(rel.DocumentIDs, documentID)
		_, srcOK := s.entities[rel.SourceID]
		_, tgtOK := s.entities[rel.TargetID]
		if len(rel.DocumentIDs) == 0 || !srcOK || !tgtOK {
			delete(s.relationships, id)
		}
	}
	for id, community := range s.communities {
		community.DocumentIDs = removeString(community.DocumentIDs, documentID)
		kept := make([]string, 0, len(community.EntityIDs))
		for _, eid := range community.EntityIDs {
			if _, ok := s.entities[eid]; ok {
				kept = append(kept, eid)
			}
		}
		community.EntityIDs = kept
		community.Size = len(kept)
		if community.Size == 0 {
			delete(s.communities, id)
		}
	}
	return nil
}

func removeString(in []string, drop string) []string {
	out := in[:0]
	for _, v := range in {
		if v != drop {
			out = append(out, v)
		}
	}
	return out
}
