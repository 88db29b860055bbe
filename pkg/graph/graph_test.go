package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/arborlabs/arbor/backend/pkg/ai"
	"github.com/arborlabs/arbor/backend/pkg/common"
	"github.com/arborlabs/arbor/backend/pkg/store"
	"github.com/arborlabs/arbor/backend/pkg/store/memory"
)

type fakeAIClient struct {
	formatted string
	// responses, when set, is consumed one call at a time ahead of
	// formatted.
	responses []string
	formatErr error
}

func (f *fakeAIClient) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	return "", nil
}

func (f *fakeAIClient) GenerateCompletionWithFormat(
	ctx context.Context,
	name, description, prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	if f.formatErr != nil {
		return f.formatErr
	}
	payload := f.formatted
	if len(f.responses) > 0 {
		payload = f.responses[0]
		f.responses = f.responses[1:]
	}
	return json.Unmarshal([]byte(payload), out)
}

func (f *fakeAIClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (f *fakeAIClient) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (f *fakeAIClient) ResetMetrics()               {}
func (f *fakeAIClient) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func seedEntities(t *testing.T, s *memory.Store, owner string, names ...string) map[string]string {
	t.Helper()
	ids := make(map[string]string, len(names))
	for _, name := range names {
		id, err := s.UpsertEntity(context.Background(), store.UpsertEntityParams{
			OwnerID:     owner,
			Name:        name,
			Type:        "CONCEPT",
			DocumentIDs: []string{"doc-1"},
		})
		if err != nil {
			t.Fatalf("seed entity %s: %v", name, err)
		}
		ids[name] = id
	}
	return ids
}

func seedRelationship(t *testing.T, s *memory.Store, owner, sourceID, targetID, relType string) {
	t.Helper()
	err := s.UpsertRelationship(context.Background(), store.UpsertRelationshipParams{
		OwnerID:     owner,
		SourceID:    sourceID,
		TargetID:    targetID,
		Type:        relType,
		DocumentIDs: []string{"doc-1"},
	})
	if err != nil {
		t.Fatalf("seed relationship: %v", err)
	}
}

func TestDetectCommunitiesSplitsDisconnectedClusters(t *testing.T) {
	entities := []common.Entity{
		{ID: "a"}, {ID: "b"}, {ID: "c"},
		{ID: "x"}, {ID: "y"}, {ID: "z"},
		{ID: "lone"},
	}
	relationships := []common.Relationship{
		{SourceID: "a", TargetID: "b", Weight: 1},
		{SourceID: "b", TargetID: "c", Weight: 1},
		{SourceID: "a", TargetID: "c", Weight: 1},
		{SourceID: "x", TargetID: "y", Weight: 1},
		{SourceID: "y", TargetID: "z", Weight: 1},
		{SourceID: "x", TargetID: "z", Weight: 1},
	}

	groups := detectCommunities(entities, relationships)
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %d: %v", len(groups), groups)
	}

	sizes := make(map[int]int)
	for _, group := range groups {
		sizes[len(group)]++
	}
	if sizes[3] != 2 || sizes[1] != 1 {
		t.Fatalf("expected two triangles and one singleton, got %v", groups)
	}

	again := detectCommunities(entities, relationships)
	if !reflect.DeepEqual(groups, again) {
		t.Fatalf("expected deterministic grouping, got %v then %v", groups, again)
	}
}

func TestDetectCommunitiesEmpty(t *testing.T) {
	if got := detectCommunities(nil, nil); got != nil {
		t.Fatalf("expected nil for no entities, got %v", got)
	}
}

func TestBuildForOwnerFallsBackOnSummaryFailure(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	ids := seedEntities(t, s, "owner-1", "Alpha", "Beta", "Gamma", "Stray")
	seedRelationship(t, s, "owner-1", ids["Alpha"], ids["Beta"], "RELATED_TO")
	seedRelationship(t, s, "owner-1", ids["Beta"], ids["Gamma"], "RELATED_TO")

	builder, err := NewCommunityBuilder(NewCommunityBuilderParams{
		Storage:  s,
		AIClient: &fakeAIClient{formatErr: fmt.Errorf("model unavailable")},
		MinSize:  3,
	})
	if err != nil {
		t.Fatalf("new builder: %v", err)
	}

	if err := builder.BuildForOwner(ctx, "owner-1"); err != nil {
		t.Fatalf("build: %v", err)
	}

	communities, err := s.TopCommunities(ctx, "owner-1", 0)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	// The stray singleton falls below the minimum size.
	if len(communities) != 1 {
		t.Fatalf("expected 1 community, got %d", len(communities))
	}
	community := communities[0]
	if community.Size != 3 {
		t.Fatalf("expected size 3, got %d", community.Size)
	}
	if !strings.HasPrefix(community.Title, "Community: ") {
		t.Fatalf("expected fallback title, got %q", community.Title)
	}
	if !strings.Contains(community.Summary, "A cluster of 3 related entities") {
		t.Fatalf("expected fallback summary, got %q", community.Summary)
	}
}

func TestBuildForOwnerUsesModelSummary(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	ids := seedEntities(t, s, "owner-1", "Alpha", "Beta", "Gamma")
	seedRelationship(t, s, "owner-1", ids["Alpha"], ids["Beta"], "RELATED_TO")
	seedRelationship(t, s, "owner-1", ids["Beta"], ids["Gamma"], "RELATED_TO")

	builder, err := NewCommunityBuilder(NewCommunityBuilderParams{
		Storage:  s,
		AIClient: &fakeAIClient{formatted: `{"title": "Greek Letters", "summary": "Letters of the Greek alphabet."}`},
	})
	if err != nil {
		t.Fatalf("new builder: %v", err)
	}
	if err := builder.BuildForOwner(ctx, "owner-1"); err != nil {
		t.Fatalf("build: %v", err)
	}

	communities, _ := s.TopCommunities(ctx, "owner-1", 1)
	if len(communities) != 1 || communities[0].Title != "Greek Letters" {
		t.Fatalf("expected model title, got %+v", communities)
	}
}

func TestFallbackTitleTruncates(t *testing.T) {
	names := []string{"A very long entity name", "Another very long entity name", "Third one"}
	title := fallbackTitle(names)
	if len([]rune(title)) > maxTitleLength {
		t.Fatalf("title too long: %q", title)
	}
	if !strings.HasPrefix(title, "Community: ") {
		t.Fatalf("unexpected title %q", title)
	}
}

func TestFindPath(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	ids := seedEntities(t, s, "owner-1", "Ada", "Babbage", "Engine", "Distant", "Far", "Farther", "Farthest", "Isolated")
	seedRelationship(t, s, "owner-1", ids["Ada"], ids["Babbage"], "COLLABORATED_WITH")
	seedRelationship(t, s, "owner-1", ids["Babbage"], ids["Engine"], "DESIGNED")
	// A chain longer than the hop limit.
	seedRelationship(t, s, "owner-1", ids["Engine"], ids["Distant"], "RELATED_TO")
	seedRelationship(t, s, "owner-1", ids["Distant"], ids["Far"], "RELATED_TO")
	seedRelationship(t, s, "owner-1", ids["Far"], ids["Farther"], "RELATED_TO")
	seedRelationship(t, s, "owner-1", ids["Farther"], ids["Farthest"], "RELATED_TO")

	finder, err := NewPathFinder(s, 4)
	if err != nil {
		t.Fatalf("new finder: %v", err)
	}

	t.Run("two hop path", func(t *testing.T) {
		result, err := finder.FindPath(ctx, "owner-1", "ada", "engine")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if !result.Found {
			t.Fatalf("expected path, got message %q", result.Message)
		}
		want := []PathStep{
			{From: "Ada", To: "Babbage", RelationType: "COLLABORATED_WITH"},
			{From: "Babbage", To: "Engine", RelationType: "DESIGNED"},
		}
		if !reflect.DeepEqual(result.Steps, want) {
			t.Fatalf("got steps %v, want %v", result.Steps, want)
		}
		if !strings.Contains(result.Text(), "-[DESIGNED]-> Engine") {
			t.Fatalf("unexpected text %q", result.Text())
		}
	})

	t.Run("beyond hop limit", func(t *testing.T) {
		result, err := finder.FindPath(ctx, "owner-1", "Ada", "Farthest")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if result.Found {
			t.Fatalf("expected no path within 4 hops, got %v", result.Steps)
		}
		if !strings.Contains(result.Message, "No path") {
			t.Fatalf("unexpected message %q", result.Message)
		}
	})

	t.Run("disconnected entity", func(t *testing.T) {
		result, err := finder.FindPath(ctx, "owner-1", "Ada", "Isolated")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if result.Found {
			t.Fatal("expected no path to isolated entity")
		}
	})

	t.Run("unknown entity", func(t *testing.T) {
		result, err := finder.FindPath(ctx, "owner-1", "Ada", "Nobody")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if result.Found || !strings.Contains(result.Message, "No entity named") {
			t.Fatalf("unexpected result %+v", result)
		}
	})

	t.Run("partial name does not resolve", func(t *testing.T) {
		result, err := finder.FindPath(ctx, "owner-1", "Ad", "Engine")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if result.Found || !strings.Contains(result.Message, "No entity named") {
			t.Fatalf("expected unresolved name, got %+v", result)
		}
	})
}

func TestExpandChunksExcludesSeeds(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()

	doc := &common.Document{OwnerID: "owner-1", Name: "doc.txt", FileType: "txt"}
	if err := s.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("create document: %v", err)
	}
	chunks := []common.Chunk{
		{DocumentID: doc.ID, Index: 0, Content: "seed"},
		{DocumentID: doc.ID, Index: 1, Content: "neighbor one"},
		{DocumentID: doc.ID, Index: 2, Content: "neighbor two"},
	}
	if err := s.InsertChunks(ctx, "owner-1", chunks); err != nil {
		t.Fatalf("insert chunks: %v", err)
	}

	ids := seedEntities(t, s, "owner-1", "Shared")
	links := []common.ChunkEntityLink{
		{ChunkID: chunks[0].ID, EntityID: ids["Shared"]},
		{ChunkID: chunks[1].ID, EntityID: ids["Shared"]},
		{ChunkID: chunks[2].ID, EntityID: ids["Shared"]},
	}
	if err := s.LinkChunkEntities(ctx, links); err != nil {
		t.Fatalf("link: %v", err)
	}

	expander, err := NewExpander(s, 2)
	if err != nil {
		t.Fatalf("new expander: %v", err)
	}

	got := expander.ExpandChunks(ctx, "owner-1", []string{chunks[0].ID})
	if len(got) != 2 {
		t.Fatalf("expected 2 neighbors, got %d", len(got))
	}
	for _, chunk := range got {
		if chunk.ID == chunks[0].ID {
			t.Fatal("seed chunk must not be returned")
		}
	}
}

func TestGlobalContextFormatsCommunities(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()

	communities := []common.Community{
		{Title: "Energy", Summary: "Power generation topics.", Size: 5},
		{Title: "Finance", Summary: "Budget topics.", Size: 3},
	}
	if err := s.ReplaceCommunities(ctx, "owner-1", communities); err != nil {
		t.Fatalf("replace: %v", err)
	}

	text := GlobalContext(ctx, s, "owner-1", 5)
	if !strings.HasPrefix(text, "## Knowledge Graph Communities") {
		t.Fatalf("unexpected header in %q", text)
	}
	if !strings.Contains(text, "### 1. Energy (5 entities)") {
		t.Fatalf("expected largest community first, got %q", text)
	}
	if !strings.Contains(text, "Power generation topics.") {
		t.Fatalf("missing summary in %q", text)
	}
}

func TestGlobalContextEmpty(t *testing.T) {
	if got := GlobalContext(context.Background(), memory.NewStore(), "owner-1", 5); got != "" {
		t.Fatalf("expected empty context, got %q", got)
	}
}

func TestExtractDocumentPersistsGraph(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()

	doc := &common.Document{OwnerID: "owner-1", Name: "doc.txt", FileType: "txt"}
	if err := s.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("create document: %v", err)
	}
	chunks := []common.Chunk{
		{DocumentID: doc.ID, Index: 0, Content: "Ada worked with Babbage."},
		{DocumentID: doc.ID, Index: 1, Content: "Babbage designed the Engine."},
	}
	if err := s.InsertChunks(ctx, "owner-1", chunks); err != nil {
		t.Fatalf("insert chunks: %v", err)
	}

	client := &fakeAIClient{formatted: `{"chunks": [
		{
			"chunk_index": 1,
			"entities": [
				{"name": "Ada", "type": "PERSON", "description": "A mathematician"},
				{"name": "Babbage", "type": "PERSON", "description": ""}
			],
			"relationships": [
				{"source": "Ada", "target": "Babbage", "type": "COLLABORATED_WITH"}
			]
		},
		{
			"chunk_index": 2,
			"entities": [
				{"name": "Engine", "type": "", "description": "A machine"}
			],
			"relationships": [
				{"source": "babbage", "target": "engine", "type": ""},
				{"source": "Nobody", "target": "Engine", "type": "MADE"}
			]
		}
	]}`}

	extractor, err := NewExtractor(NewExtractorParams{Storage: s, AIClient: client})
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}

	count, err := extractor.ExtractDocument(ctx, "owner-1", doc.ID, chunks)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 entities written, got %d", count)
	}

	entities, _ := s.ListEntities(ctx, "owner-1")
	if len(entities) != 3 {
		t.Fatalf("expected 3 entities, got %d", len(entities))
	}
	for _, entity := range entities {
		if entity.Name == "Engine" && entity.Type != "UNKNOWN" {
			t.Fatalf("expected default entity type, got %q", entity.Type)
		}
	}

	rels, _ := s.ListRelationships(ctx, "owner-1")
	// The edge naming an unresolved entity is skipped.
	if len(rels) != 2 {
		t.Fatalf("expected 2 relationships, got %d", len(rels))
	}
	for _, rel := range rels {
		if rel.Type == "" {
			t.Fatal("expected default relation type for empty type")
		}
	}

	neighborIDs, _ := s.GetEntityNeighborChunks(ctx, "owner-1", []string{entities[0].ID, entities[1].ID, entities[2].ID}, 10)
	if len(neighborIDs) != 2 {
		t.Fatalf("expected both chunks linked, got %d", len(neighborIDs))
	}
}

func TestExtractDocumentMergesLaterDescriptions(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()

	doc := &common.Document{OwnerID: "owner-1", Name: "doc.txt", FileType: "txt"}
	if err := s.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("create document: %v", err)
	}
	chunks := []common.Chunk{
		{DocumentID: doc.ID, Index: 0, Content: "Ada appears here."},
		{DocumentID: doc.ID, Index: 1, Content: "Ada, pioneer of computing."},
	}
	if err := s.InsertChunks(ctx, "owner-1", chunks); err != nil {
		t.Fatalf("insert chunks: %v", err)
	}

	// The first batch names the entity without a description; the second
	// carries one, which must still reach the store.
	client := &fakeAIClient{responses: []string{
		`{"chunks": [{"chunk_index": 1, "entities": [{"name": "Ada", "type": "PERSON", "description": ""}], "relationships": []}]}`,
		`{"chunks": [{"chunk_index": 1, "entities": [{"name": "Ada", "type": "PERSON", "description": "Pioneer of computing"}], "relationships": []}]}`,
	}}

	extractor, err := NewExtractor(NewExtractorParams{Storage: s, AIClient: client, BatchSize: 1})
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}

	count, err := extractor.ExtractDocument(ctx, "owner-1", doc.ID, chunks)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 distinct entity, got %d", count)
	}

	entities, _ := s.ListEntities(ctx, "owner-1")
	if len(entities) != 1 {
		t.Fatalf("expected 1 entity, got %d", len(entities))
	}
	if entities[0].Description != "Pioneer of computing" {
		t.Fatalf("expected merged description, got %q", entities[0].Description)
	}
}

func TestExtractDocumentSoftFailure(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()

	doc := &common.Document{OwnerID: "owner-1", Name: "doc.txt", FileType: "txt"}
	if err := s.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("create document: %v", err)
	}
	chunks := []common.Chunk{{DocumentID: doc.ID, Index: 0, Content: "text"}}
	if err := s.InsertChunks(ctx, "owner-1", chunks); err != nil {
		t.Fatalf("insert chunks: %v", err)
	}

	extractor, err := NewExtractor(NewExtractorParams{
		Storage:  s,
		AIClient: &fakeAIClient{formatErr: fmt.Errorf("model unavailable")},
	})
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}

	count, err := extractor.ExtractDocument(ctx, "owner-1", doc.ID, chunks)
	if err != nil {
		t.Fatalf("expected soft failure, got %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no entities, got %d", count)
	}
}
