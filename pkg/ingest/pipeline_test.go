package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/arborlabs/arbor/backend/pkg/ai"
	"github.com/arborlabs/arbor/backend/pkg/chunk"
	"github.com/arborlabs/arbor/backend/pkg/common"
	"github.com/arborlabs/arbor/backend/pkg/graph"
	"github.com/arborlabs/arbor/backend/pkg/store"
	"github.com/arborlabs/arbor/backend/pkg/store/memory"
)

type fakeFileStore struct {
	files   map[string][]byte
	deleted []string
}

func (f *fakeFileStore) key(ownerID, documentID string) string {
	return ownerID + "/" + documentID
}

func (f *fakeFileStore) Download(ctx context.Context, ownerID, documentID string) ([]byte, error) {
	content, ok := f.files[f.key(ownerID, documentID)]
	if !ok {
		return nil, fmt.Errorf("object not found")
	}
	return content, nil
}

func (f *fakeFileStore) Delete(ctx context.Context, ownerID, documentID string) error {
	f.deleted = append(f.deleted, f.key(ownerID, documentID))
	delete(f.files, f.key(ownerID, documentID))
	return nil
}

type fakeAIClient struct {
	completion  string
	formatted   map[string]string // keyed by format name
	formatErr   error
	embedErr    error
	formatCalls []string
}

func (f *fakeAIClient) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	return f.completion, nil
}

func (f *fakeAIClient) GenerateCompletionWithFormat(
	ctx context.Context,
	name, description, prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	f.formatCalls = append(f.formatCalls, name)
	if f.formatErr != nil {
		return f.formatErr
	}
	payload, ok := f.formatted[name]
	if !ok {
		return fmt.Errorf("no canned response for %s", name)
	}
	return json.Unmarshal([]byte(payload), out)
}

func (f *fakeAIClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeAIClient) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *fakeAIClient) ResetMetrics()               {}
func (f *fakeAIClient) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func newTestPipeline(t *testing.T, s *memory.Store, files *fakeFileStore, client *fakeAIClient) *Pipeline {
	t.Helper()
	chunker, err := chunk.NewChunker(chunk.NewChunkerParams{MaxTokens: 500, OverlapTokens: 50})
	if err != nil {
		t.Fatalf("new chunker: %v", err)
	}
	pipeline, err := NewPipeline(NewPipelineParams{
		Storage:  s,
		Files:    files,
		AIClient: client,
		Chunker:  chunker,
	})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return pipeline
}

func createPendingDocument(t *testing.T, s *memory.Store, files *fakeFileStore, content string) *common.Document {
	t.Helper()
	doc := &common.Document{OwnerID: "owner-1", Name: "notes.md", FileType: "md"}
	if err := s.CreateDocument(context.Background(), doc); err != nil {
		t.Fatalf("create document: %v", err)
	}
	if files.files == nil {
		files.files = make(map[string][]byte)
	}
	files.files[files.key(doc.OwnerID, doc.ID)] = []byte(content)
	return doc
}

func TestIngestDocument(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	files := &fakeFileStore{}
	client := &fakeAIClient{
		formatted: map[string]string{
			"document_metadata": `{
				"title": "Quarterly Report",
				"summary": "Revenue and costs for Q1.",
				"topics": ["finance", "quarterly"],
				"document_date": "2024-03-31"
			}`,
		},
	}

	doc := createPendingDocument(t, s, files, "# Quarterly Report\n\nRevenue grew by ten percent.")
	pipeline := newTestPipeline(t, s, files, client)

	if err := pipeline.IngestDocument(ctx, "owner-1", doc.ID); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	got, err := s.GetDocument(ctx, "owner-1", doc.ID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if got.Status != common.DocumentStatusReady {
		t.Fatalf("expected ready, got %s (%s)", got.Status, got.ErrorMessage)
	}
	if got.Title != "Quarterly Report" || got.ChunkCount == 0 {
		t.Fatalf("unexpected document metadata: %+v", got)
	}
	if got.DocumentDate == nil || got.DocumentDate.Year() != 2024 {
		t.Fatalf("expected parsed document date, got %v", got.DocumentDate)
	}

	chunks, err := s.ListChunksByDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("list chunks: %v", err)
	}
	if len(chunks) != got.ChunkCount {
		t.Fatalf("chunk count mismatch: %d rows, %d recorded", len(chunks), got.ChunkCount)
	}
	if len(chunks[0].Embedding) == 0 {
		t.Fatal("expected chunk embeddings")
	}
}

func TestIngestEmptyFileMarksError(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	files := &fakeFileStore{}
	client := &fakeAIClient{}

	doc := createPendingDocument(t, s, files, "   \n\n  ")
	pipeline := newTestPipeline(t, s, files, client)

	if err := pipeline.IngestDocument(ctx, "owner-1", doc.ID); err == nil {
		t.Fatal("expected error for empty file")
	}

	got, _ := s.GetDocument(ctx, "owner-1", doc.ID)
	if got.Status != common.DocumentStatusError {
		t.Fatalf("expected error status, got %s", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "file is empty") {
		t.Fatalf("unexpected error message %q", got.ErrorMessage)
	}
}

func TestIngestMetadataFallback(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	files := &fakeFileStore{}
	client := &fakeAIClient{formatErr: fmt.Errorf("model unavailable")}

	doc := createPendingDocument(t, s, files, "# The Actual Heading\n\nBody text follows here.")
	pipeline := newTestPipeline(t, s, files, client)

	if err := pipeline.IngestDocument(ctx, "owner-1", doc.ID); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	got, _ := s.GetDocument(ctx, "owner-1", doc.ID)
	if got.Status != common.DocumentStatusReady {
		t.Fatalf("expected ready despite metadata failure, got %s", got.Status)
	}
	if got.Title != "The Actual Heading" {
		t.Fatalf("expected first line fallback title, got %q", got.Title)
	}
}

func TestIngestEmbeddingFailureMarksError(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	files := &fakeFileStore{}
	client := &fakeAIClient{
		formatted: map[string]string{"document_metadata": `{"title": "T", "summary": "S"}`},
		embedErr:  fmt.Errorf("embedding backend down"),
	}

	doc := createPendingDocument(t, s, files, "Some real content.")
	pipeline := newTestPipeline(t, s, files, client)

	if err := pipeline.IngestDocument(ctx, "owner-1", doc.ID); err == nil {
		t.Fatal("expected error")
	}

	got, _ := s.GetDocument(ctx, "owner-1", doc.ID)
	if got.Status != common.DocumentStatusError {
		t.Fatalf("expected error status, got %s", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "embedding backend down") {
		t.Fatalf("unexpected error message %q", got.ErrorMessage)
	}
}

func TestIngestGraphFailureIsNonFatal(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	files := &fakeFileStore{}
	client := &fakeAIClient{
		formatted: map[string]string{"document_metadata": `{"title": "T", "summary": "S"}`},
	}

	doc := createPendingDocument(t, s, files, "Some real content about entities.")

	chunker, err := chunk.NewChunker(chunk.NewChunkerParams{MaxTokens: 500, OverlapTokens: 50})
	if err != nil {
		t.Fatalf("new chunker: %v", err)
	}
	extractor, err := graph.NewExtractor(graph.NewExtractorParams{
		Storage:  s,
		AIClient: client, // no canned graph_extraction response, so batches fail
	})
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}
	pipeline, err := NewPipeline(NewPipelineParams{
		Storage:   s,
		Files:     files,
		AIClient:  client,
		Chunker:   chunker,
		Extractor: extractor,
	})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	if err := pipeline.IngestDocument(ctx, "owner-1", doc.ID); err != nil {
		t.Fatalf("expected graph failure to be non-fatal, got %v", err)
	}
	got, _ := s.GetDocument(ctx, "owner-1", doc.ID)
	if got.Status != common.DocumentStatusReady {
		t.Fatalf("expected ready, got %s", got.Status)
	}
}

func TestDeleteDocumentRemovesFileAndRows(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	files := &fakeFileStore{}
	client := &fakeAIClient{
		formatted: map[string]string{"document_metadata": `{"title": "T", "summary": "S"}`},
	}

	doc := createPendingDocument(t, s, files, "Some content to delete later.")
	pipeline := newTestPipeline(t, s, files, client)

	if err := pipeline.IngestDocument(ctx, "owner-1", doc.ID); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if err := pipeline.DeleteDocument(ctx, "owner-1", doc.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := s.GetDocument(ctx, "owner-1", doc.ID); err != store.ErrNotFound {
		t.Fatalf("expected document gone, got %v", err)
	}
	if len(files.deleted) != 1 {
		t.Fatalf("expected stored file deleted, got %v", files.deleted)
	}
}

func TestEnricherFillsSummaries(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()

	doc := &common.Document{OwnerID: "owner-1", Name: "doc.txt", FileType: "txt"}
	if err := s.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("create document: %v", err)
	}
	chunks := []common.Chunk{
		{DocumentID: doc.ID, Index: 0, Content: "first chunk"},
		{DocumentID: doc.ID, Index: 1, Content: "second chunk", Summary: "already summarized"},
	}
	if err := s.InsertChunks(ctx, "owner-1", chunks); err != nil {
		t.Fatalf("insert chunks: %v", err)
	}

	enricher, err := NewEnricher(s, &fakeAIClient{completion: "A short summary."}, 2)
	if err != nil {
		t.Fatalf("new enricher: %v", err)
	}
	enricher.EnrichDocument(ctx, "owner-1", doc.ID)

	got, _ := s.ListChunksByDocument(ctx, doc.ID)
	if got[0].Summary != "A short summary." {
		t.Fatalf("expected summary set, got %q", got[0].Summary)
	}
	if len(got[0].SummaryEmbedding) == 0 {
		t.Fatal("expected summary embedding set")
	}
	if got[1].Summary != "already summarized" {
		t.Fatalf("expected existing summary untouched, got %q", got[1].Summary)
	}
}
