package retrieve

import (
	"context"
	"sort"

	"github.com/arborlabs/arbor/backend/pkg/ai"
	"github.com/arborlabs/arbor/backend/pkg/logger"
)

type chunkRelevance struct {
	ChunkID        string  `json:"chunk_id" jsonschema_description:"Id of the chunk being scored"`
	RelevanceScore float64 `json:"relevance_score" jsonschema_description:"Relevance of the chunk to the query from 0.0 to 1.0"`
}

type rerankResult struct {
	Rankings []chunkRelevance `json:"rankings" jsonschema_description:"Relevance scores for every candidate chunk"`
}

// Rerank asks the model to score each candidate's relevance to the query
// and returns the topN best. Chunks the model fails to score default to
// 0.0. When the call itself fails the input order is trusted and the
// first topN candidates are returned, so retrieval never fails on a
// rerank outage.
func Rerank(ctx context.Context, client ai.Client, query string, candidates []Result, topN int) []Result {
	if topN <= 0 || len(candidates) == 0 {
		return nil
	}
	if len(candidates) <= topN {
		topN = len(candidates)
	}

	ids := make([]string, len(candidates))
	contents := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
		contents[i] = c.Content
	}

	var result rerankResult
	err := client.GenerateCompletionWithFormat(
		ctx,
		"rerank",
		"Relevance scores for retrieved chunks",
		ai.BuildRerankPrompt(query, ids, contents),
		&result,
	)
	if err != nil {
		logger.Warn("rerank failed, keeping fused order", "error", err)
		return append([]Result{}, candidates[:topN]...)
	}

	scores := make(map[string]float64, len(result.Rankings))
	for _, r := range result.Rankings {
		scores[r.ChunkID] = r.RelevanceScore
	}

	out := append([]Result{}, candidates...)
	sort.SliceStable(out, func(i, j int) bool {
		return scores[out[i].ID] > scores[out[j].ID]
	})
	return out[:topN]
}
