package memory

import (
	"context"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/arborlabs/arbor/backend/pkg/common"
	"github.com/arborlabs/arbor/backend/pkg/store"
)

// Similarity blends the content match with the chunk summary match when a
// summary embedding exists.
const (
	contentWeight = 0.7
	summaryWeight = 0.3
)

func (s *Store) SearchChunksByVector(ctx context.Context, params store.VectorSearchParams) ([]store.ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]store.ScoredChunk, 0)
	for id, chunk := range s.chunks {
		if s.chunkOwners[id] != params.OwnerID {
			continue
		}
		if len(params.DocumentIDs) > 0 && !slices.Contains(params.DocumentIDs, chunk.DocumentID) {
			continue
		}
		doc := s.documents[chunk.DocumentID]
		if doc == nil || doc.Status == common.DocumentStatusError {
			continue
		}

		sim := cosineSimilarity(params.Embedding, chunk.Embedding)
		if len(chunk.SummaryEmbedding) > 0 {
			sim = contentWeight*sim + summaryWeight*cosineSimilarity(params.Embedding, chunk.SummaryEmbedding)
		}
		score := sim
		if params.RecencyWeight > 0 {
			score = (1-params.RecencyWeight)*sim + params.RecencyWeight*recencyScore(doc, s.now())
		}
		results = append(results, scored(*chunk, doc, score, sim))
	}

	sortScored(results)
	return limitScored(results, params.Limit), nil
}

func (s *Store) SearchChunksByKeyword(ctx context.Context, params store.KeywordSearchParams) ([]store.ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	terms := strings.Fields(strings.ToLower(params.Query))
	if len(terms) == 0 {
		return nil, nil
	}

	results := make([]store.ScoredChunk, 0)
	for id, chunk := range s.chunks {
		if s.chunkOwners[id] != params.OwnerID {
			continue
		}
		if len(params.DocumentIDs) > 0 && !slices.Contains(params.DocumentIDs, chunk.DocumentID) {
			continue
		}
		doc := s.documents[chunk.DocumentID]
		if doc == nil || doc.Status == common.DocumentStatusError {
			continue
		}

		content := strings.ToLower(chunk.Content)
		score := 0.0
		for _, term := range terms {
			score += float64(strings.Count(content, term))
		}
		if score == 0 {
			continue
		}
		results = append(results, scored(*chunk, doc, score, score))
	}

	sortScored(results)
	return limitScored(results, params.Limit), nil
}

func scored(chunk common.Chunk, doc *common.Document, score, similarity float64) store.ScoredChunk {
	title := doc.Title
	if title == "" {
		title = doc.Name
	}
	return store.ScoredChunk{
		Chunk:         chunk,
		DocumentTitle: title,
		DocumentDate:  doc.DocumentDate,
		Score:         score,
		Similarity:    similarity,
	}
}

// sortScored orders by blended score, breaking ties on the raw
// similarity before falling back to chunk position.
func sortScored(results []store.ScoredChunk) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		if results[i].Index != results[j].Index {
			return results[i].Index < results[j].Index
		}
		return results[i].ID < results[j].ID
	})
}

func limitScored(results []store.ScoredChunk, limit int) []store.ScoredChunk {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}

// recencyScore maps document age to (0, 1], newer documents scoring
// higher. Falls back to the ingestion time when no document date is set.
func recencyScore(doc *common.Document, now time.Time) float64 {
	ref := doc.CreatedAt
	if doc.DocumentDate != nil {
		ref = *doc.DocumentDate
	}
	ageYears := now.Sub(ref).Hours() / (24 * 365)
	if ageYears < 0 {
		ageYears = 0
	}
	return 1 / (1 + ageYears)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
