package memory

import (
	"context"
	"testing"
	"time"

	"github.com/arborlabs/arbor/backend/pkg/common"
	"github.com/arborlabs/arbor/backend/pkg/store"
)

func mustCreateDocument(t *testing.T, s *Store, owner, name string) *common.Document {
	t.Helper()
	doc := &common.Document{OwnerID: owner, Name: name, FileType: "txt"}
	if err := s.CreateDocument(context.Background(), doc); err != nil {
		t.Fatalf("create document: %v", err)
	}
	return doc
}

func mustInsertChunks(t *testing.T, s *Store, owner string, chunks []common.Chunk) []common.Chunk {
	t.Helper()
	if err := s.InsertChunks(context.Background(), owner, chunks); err != nil {
		t.Fatalf("insert chunks: %v", err)
	}
	return chunks
}

func TestDocumentLifecycle(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	doc := mustCreateDocument(t, s, "owner-1", "notes.txt")
	if doc.Status != common.DocumentStatusPending {
		t.Fatalf("expected pending status, got %s", doc.Status)
	}

	if _, err := s.GetDocument(ctx, "owner-2", doc.ID); err != store.ErrNotFound {
		t.Fatalf("expected ErrNotFound for foreign owner, got %v", err)
	}

	if err := s.SetDocumentStatus(ctx, doc.ID, common.DocumentStatusProcessing, ""); err != nil {
		t.Fatalf("set status: %v", err)
	}

	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	err := s.SetDocumentReady(ctx, store.SetDocumentReadyParams{
		DocumentID:   doc.ID,
		Title:        "Notes",
		Summary:      "A summary.",
		Topics:       []string{"notes"},
		DocumentDate: &date,
		ChunkCount:   3,
	})
	if err != nil {
		t.Fatalf("set ready: %v", err)
	}

	got, err := s.GetDocument(ctx, "owner-1", doc.ID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if got.Status != common.DocumentStatusReady || got.Title != "Notes" || got.ChunkCount != 3 {
		t.Fatalf("unexpected document after ready: %+v", got)
	}
}

func TestVectorSearchBlendsSummaryEmbedding(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	doc := mustCreateDocument(t, s, "owner-1", "doc.txt")

	// Chunk a matches the query on content, chunk b only on its summary.
	chunks := mustInsertChunks(t, s, "owner-1", []common.Chunk{
		{DocumentID: doc.ID, Index: 0, Content: "a", Embedding: []float32{1, 0, 0}},
		{DocumentID: doc.ID, Index: 1, Content: "b", Embedding: []float32{0, 1, 0}},
	})
	if err := s.SetChunkSummary(ctx, chunks[1].ID, "summary", []float32{1, 0, 0}); err != nil {
		t.Fatalf("set summary: %v", err)
	}

	results, err := s.SearchChunksByVector(ctx, store.VectorSearchParams{
		OwnerID:   "owner-1",
		Embedding: []float32{1, 0, 0},
		Limit:     10,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Content != "a" {
		t.Fatalf("expected pure content match first, got %q", results[0].Content)
	}
	// 0.7*0 + 0.3*1 for the summary-only match.
	if results[1].Score < 0.29 || results[1].Score > 0.31 {
		t.Fatalf("expected blended score near 0.3, got %f", results[1].Score)
	}
}

func TestVectorSearchRecencyWeight(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	old := mustCreateDocument(t, s, "owner-1", "old.txt")
	recent := mustCreateDocument(t, s, "owner-1", "recent.txt")

	oldDate := time.Now().AddDate(-10, 0, 0)
	newDate := time.Now()
	if err := s.SetDocumentReady(ctx, store.SetDocumentReadyParams{DocumentID: old.ID, DocumentDate: &oldDate}); err != nil {
		t.Fatalf("set ready: %v", err)
	}
	if err := s.SetDocumentReady(ctx, store.SetDocumentReadyParams{DocumentID: recent.ID, DocumentDate: &newDate}); err != nil {
		t.Fatalf("set ready: %v", err)
	}

	mustInsertChunks(t, s, "owner-1", []common.Chunk{
		{DocumentID: old.ID, Index: 0, Content: "old", Embedding: []float32{1, 0}},
		{DocumentID: recent.ID, Index: 0, Content: "recent", Embedding: []float32{0.95, 0.3122}},
	})

	noRecency, err := s.SearchChunksByVector(ctx, store.VectorSearchParams{
		OwnerID:   "owner-1",
		Embedding: []float32{1, 0},
		Limit:     2,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if noRecency[0].Content != "old" {
		t.Fatalf("expected exact match first without recency, got %q", noRecency[0].Content)
	}

	withRecency, err := s.SearchChunksByVector(ctx, store.VectorSearchParams{
		OwnerID:       "owner-1",
		Embedding:     []float32{1, 0},
		Limit:         2,
		RecencyWeight: 0.5,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if withRecency[0].Content != "recent" {
		t.Fatalf("expected recent chunk first with recency weight, got %q", withRecency[0].Content)
	}
}

func TestSortScoredBreaksTiesOnSimilarity(t *testing.T) {
	results := []store.ScoredChunk{
		{Chunk: common.Chunk{ID: "c1", Index: 0}, Score: 0.8, Similarity: 0.6},
		{Chunk: common.Chunk{ID: "c2", Index: 1}, Score: 0.8, Similarity: 0.9},
		{Chunk: common.Chunk{ID: "c3", Index: 2}, Score: 0.9, Similarity: 0.5},
	}

	sortScored(results)

	got := []string{results[0].ID, results[1].ID, results[2].ID}
	want := []string{"c3", "c2", "c1"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestKeywordSearch(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	doc := mustCreateDocument(t, s, "owner-1", "doc.txt")

	mustInsertChunks(t, s, "owner-1", []common.Chunk{
		{DocumentID: doc.ID, Index: 0, Content: "the solar panel output dropped"},
		{DocumentID: doc.ID, Index: 1, Content: "solar solar solar everywhere"},
		{DocumentID: doc.ID, Index: 2, Content: "nothing relevant here"},
	})

	results, err := s.SearchChunksByKeyword(ctx, store.KeywordSearchParams{
		OwnerID: "owner-1",
		Query:   "Solar",
		Limit:   10,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(results))
	}
	if results[0].Index != 1 {
		t.Fatalf("expected highest term frequency first, got index %d", results[0].Index)
	}
}

func TestUpsertEntityMergesByLowercaseName(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	id1, err := s.UpsertEntity(ctx, store.UpsertEntityParams{
		OwnerID:     "owner-1",
		Name:        "Ada Lovelace",
		Type:        "PERSON",
		DocumentIDs: []string{"doc-1"},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	id2, err := s.UpsertEntity(ctx, store.UpsertEntityParams{
		OwnerID:     "owner-1",
		Name:        "ada lovelace",
		Type:        "PERSON",
		Description: "Mathematician",
		DocumentIDs: []string{"doc-2"},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected case-insensitive merge, got %s and %s", id1, id2)
	}

	entities, err := s.ListEntities(ctx, "owner-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entities) != 1 {
		t.Fatalf("expected 1 entity, got %d", len(entities))
	}
	if entities[0].Description != "Mathematician" {
		t.Fatalf("expected empty description filled, got %q", entities[0].Description)
	}
	if len(entities[0].DocumentIDs) != 2 {
		t.Fatalf("expected unioned document ids, got %v", entities[0].DocumentIDs)
	}
}

func TestUpsertRelationshipIncrementsWeight(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	params := store.UpsertRelationshipParams{
		OwnerID:  "owner-1",
		SourceID: "e1",
		TargetID: "e2",
		Type:     "RELATED_TO",
	}
	for range 3 {
		if err := s.UpsertRelationship(ctx, params); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	rels, err := s.ListRelationships(ctx, "owner-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rels) != 1 {
		t.Fatalf("expected 1 relationship, got %d", len(rels))
	}
	if rels[0].Weight != 3 {
		t.Fatalf("expected weight 3, got %f", rels[0].Weight)
	}
}

func TestGetEntityNeighborChunksRanksBySharedEntities(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	doc := mustCreateDocument(t, s, "owner-1", "doc.txt")

	chunks := mustInsertChunks(t, s, "owner-1", []common.Chunk{
		{DocumentID: doc.ID, Index: 0, Content: "c0"},
		{DocumentID: doc.ID, Index: 1, Content: "c1"},
		{DocumentID: doc.ID, Index: 2, Content: "c2"},
	})

	e1, _ := s.UpsertEntity(ctx, store.UpsertEntityParams{OwnerID: "owner-1", Name: "E1", DocumentIDs: []string{doc.ID}})
	e2, _ := s.UpsertEntity(ctx, store.UpsertEntityParams{OwnerID: "owner-1", Name: "E2", DocumentIDs: []string{doc.ID}})

	links := []common.ChunkEntityLink{
		{ChunkID: chunks[0].ID, EntityID: e1},
		{ChunkID: chunks[1].ID, EntityID: e1},
		{ChunkID: chunks[1].ID, EntityID: e2},
	}
	if err := s.LinkChunkEntities(ctx, links); err != nil {
		t.Fatalf("link: %v", err)
	}

	ids, err := s.GetEntityNeighborChunks(ctx, "owner-1", []string{e1, e2}, 10)
	if err != nil {
		t.Fatalf("neighbors: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 neighbor chunks, got %d", len(ids))
	}
	if ids[0] != chunks[1].ID {
		t.Fatalf("expected chunk sharing both entities first")
	}
}

func TestDeleteDocumentCascades(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	doc1 := mustCreateDocument(t, s, "owner-1", "a.txt")
	doc2 := mustCreateDocument(t, s, "owner-1", "b.txt")

	chunks := mustInsertChunks(t, s, "owner-1", []common.Chunk{
		{DocumentID: doc1.ID, Index: 0, Content: "c0"},
	})

	soloID, _ := s.UpsertEntity(ctx, store.UpsertEntityParams{OwnerID: "owner-1", Name: "Solo", DocumentIDs: []string{doc1.ID}})
	sharedID, _ := s.UpsertEntity(ctx, store.UpsertEntityParams{OwnerID: "owner-1", Name: "Shared", DocumentIDs: []string{doc1.ID, doc2.ID}})
	if err := s.UpsertRelationship(ctx, store.UpsertRelationshipParams{
		OwnerID:     "owner-1",
		SourceID:    soloID,
		TargetID:    sharedID,
		Type:        "RELATED_TO",
		DocumentIDs: []string{doc1.ID},
	}); err != nil {
		t.Fatalf("upsert relationship: %v", err)
	}
	if err := s.LinkChunkEntities(ctx, []common.ChunkEntityLink{{ChunkID: chunks[0].ID, EntityID: soloID}}); err != nil {
		t.Fatalf("link: %v", err)
	}

	if err := s.DeleteDocument(ctx, "owner-1", doc1.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if got, _ := s.ListChunksByDocument(ctx, doc1.ID); len(got) != 0 {
		t.Fatalf("expected chunks removed, got %d", len(got))
	}

	entities, _ := s.ListEntities(ctx, "owner-1")
	if len(entities) != 1 || entities[0].Name != "Shared" {
		t.Fatalf("expected only shared entity to survive, got %+v", entities)
	}
	if len(entities[0].DocumentIDs) != 1 || entities[0].DocumentIDs[0] != doc2.ID {
		t.Fatalf("expected document id pruned, got %v", entities[0].DocumentIDs)
	}

	rels, _ := s.ListRelationships(ctx, "owner-1")
	if len(rels) != 0 {
		t.Fatalf("expected relationship removed with its endpoint, got %d", len(rels))
	}
}

func TestReplaceAndTopCommunities(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	first := []common.Community{
		{Title: "Old", Size: 4, EntityIDs: []string{"a", "b", "c", "d"}},
	}
	if err := s.ReplaceCommunities(ctx, "owner-1", first); err != nil {
		t.Fatalf("replace: %v", err)
	}

	second := []common.Community{
		{Title: "Small", Size: 3, EntityIDs: []string{"a", "b", "c"}},
		{Title: "Large", Size: 6, EntityIDs: []string{"d", "e", "f", "g", "h", "i"}},
	}
	if err := s.ReplaceCommunities(ctx, "owner-1", second); err != nil {
		t.Fatalf("replace: %v", err)
	}

	top, err := s.TopCommunities(ctx, "owner-1", 1)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 1 || top[0].Title != "Large" {
		t.Fatalf("expected largest community, got %+v", top)
	}

	all, _ := s.TopCommunities(ctx, "owner-1", 0)
	if len(all) != 2 {
		t.Fatalf("expected old communities replaced, got %d", len(all))
	}
}
