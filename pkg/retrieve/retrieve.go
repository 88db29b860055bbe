// Package retrieve implements ranked chunk retrieval: hybrid vector and
// keyword search per query, multi-query fusion, and LLM reranking.
package retrieve

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/arborlabs/arbor/backend/pkg/ai"
	"github.com/arborlabs/arbor/backend/pkg/logger"
	"github.com/arborlabs/arbor/backend/pkg/store"
)

// Retriever runs the retrieval pipeline against a chunk store.
type Retriever struct {
	storage       store.ChunkStorage
	aiClient      ai.Client
	candidates    int
	rerankTopN    int
	fusionQueries int
	rrfK          int
}

type NewRetrieverParams struct {
	Storage  store.ChunkStorage
	AIClient ai.Client

	// Candidates is how many fused results feed the reranker.
	Candidates int
	// RerankTopN is how many results a search returns.
	RerankTopN int
	// FusionQueries is how many alternative phrasings are generated per
	// search. Zero disables multi-query fusion.
	FusionQueries int
	// RRFK is the reciprocal rank fusion constant.
	RRFK int
}

func NewRetriever(params NewRetrieverParams) (*Retriever, error) {
	if params.Storage == nil {
		return nil, fmt.Errorf("retriever: storage is nil")
	}
	if params.AIClient == nil {
		return nil, fmt.Errorf("retriever: ai client is nil")
	}
	if params.Candidates <= 0 {
		params.Candidates = 20
	}
	if params.RerankTopN <= 0 {
		params.RerankTopN = 5
	}
	if params.RRFK <= 0 {
		params.RRFK = DefaultRRFK
	}
	return &Retriever{
		storage:       params.Storage,
		aiClient:      params.AIClient,
		candidates:    params.Candidates,
		rerankTopN:    params.RerankTopN,
		fusionQueries: params.FusionQueries,
		rrfK:          params.RRFK,
	}, nil
}

// SearchParams configures a single retrieval run.
type SearchParams struct {
	OwnerID       string
	Query         string
	DocumentIDs   []string
	RecencyWeight float64
	// TopN overrides the retriever's configured result count when > 0.
	TopN int
	// SkipRerank returns the fused order without the LLM rerank pass.
	SkipRerank bool
}

// Search runs hybrid retrieval for the query. Each sub-query produces a
// vector ranking and a keyword ranking; all rankings are fused with
// reciprocal rank fusion before the top candidates are reranked. A
// failing sub-query is logged and skipped rather than failing the whole
// search, as long as at least one ranking survives.
func (r *Retriever) Search(ctx context.Context, params SearchParams) ([]Result, error) {
	if params.Query == "" {
		return nil, fmt.Errorf("search: query is empty")
	}
	topN := params.TopN
	if topN <= 0 {
		topN = r.rerankTopN
	}

	queries := []string{params.Query}
	if r.fusionQueries > 0 {
		queries = append(queries, ExpandQuery(ctx, r.aiClient, params.Query, r.fusionQueries)...)
	}

	var (
		mu       sync.Mutex
		lists    [][]store.ScoredChunk
		softErrs []error
	)
	eg, ectx := errgroup.WithContext(ctx)
	for _, query := range queries {
		eg.Go(func() error {
			vector, keyword, err := r.searchOne(ectx, params, query)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				softErrs = append(softErrs, err)
				logger.Warn("sub-query search failed", "query", query, "error", err)
				return nil
			}
			if len(vector) > 0 {
				lists = append(lists, vector)
			}
			if len(keyword) > 0 {
				lists = append(lists, keyword)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	if len(lists) == 0 {
		if len(softErrs) > 0 {
			return nil, fmt.Errorf("search: all sub-queries failed: %w", softErrs[0])
		}
		return nil, nil
	}

	fused := FuseRankedLists(lists, r.rrfK)
	if len(fused) > r.candidates {
		fused = fused[:r.candidates]
	}

	if params.SkipRerank {
		if len(fused) > topN {
			fused = fused[:topN]
		}
		return fused, nil
	}
	return Rerank(ctx, r.aiClient, params.Query, fused, topN), nil
}

func (r *Retriever) searchOne(
	ctx context.Context,
	params SearchParams,
	query string,
) ([]store.ScoredChunk, []store.ScoredChunk, error) {
	embedding, err := r.aiClient.GenerateEmbedding(ctx, []byte(query))
	if err != nil {
		return nil, nil, fmt.Errorf("embed query: %w", err)
	}

	vector, err := r.storage.SearchChunksByVector(ctx, store.VectorSearchParams{
		OwnerID:       params.OwnerID,
		Embedding:     embedding,
		Limit:         r.candidates,
		RecencyWeight: params.RecencyWeight,
		DocumentIDs:   params.DocumentIDs,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("vector search: %w", err)
	}

	keyword, err := r.storage.SearchChunksByKeyword(ctx, store.KeywordSearchParams{
		OwnerID:     params.OwnerID,
		Query:       query,
		Limit:       r.candidates,
		DocumentIDs: params.DocumentIDs,
	})
	if err != nil {
		// Keyword search is an enrichment on top of the vector ranking.
		logger.Warn("keyword search failed", "query", query, "error", err)
		return vector, nil, nil
	}
	return vector, keyword, nil
}
