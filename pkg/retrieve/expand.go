package retrieve

import (
	"context"
	"strings"

	"github.com/arborlabs/arbor/backend/pkg/ai"
	"github.com/arborlabs/arbor/backend/pkg/logger"
)

type expansionResult struct {
	Queries []string `json:"queries" jsonschema_description:"Alternative phrasings of the search query"`
}

// ExpandQuery asks the model for alternative phrasings of query. It
// returns at most count alternatives, never including the original.
// Expansion is best effort: any failure returns an empty slice so the
// caller falls back to searching with the original query alone.
func ExpandQuery(ctx context.Context, client ai.Client, query string, count int) []string {
	if count <= 0 {
		return nil
	}

	var result expansionResult
	err := client.GenerateCompletionWithFormat(
		ctx,
		"query_expansion",
		"Alternative phrasings of a search query",
		ai.BuildQueryExpansionPrompt(query, count),
		&result,
	)
	if err != nil {
		logger.Warn("query expansion failed", "error", err)
		return nil
	}

	out := make([]string, 0, count)
	for _, q := range result.Queries {
		q = strings.TrimSpace(q)
		if q == "" || strings.EqualFold(q, query) {
			continue
		}
		out = append(out, q)
		if len(out) == count {
			break
		}
	}
	return out
}
