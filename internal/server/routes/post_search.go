package routes

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/arborlabs/arbor/backend/internal/server/middleware"
	"github.com/arborlabs/arbor/backend/pkg/graph"
	"github.com/arborlabs/arbor/backend/pkg/logger"
	"github.com/arborlabs/arbor/backend/pkg/retrieve"
)

// SearchHandler runs a hybrid search over the caller's documents with
// optional graph neighbor expansion and community context.
func SearchHandler(c echo.Context) error {
	type searchBody struct {
		Query              string   `json:"query"`
		DocumentIDs        []string `json:"document_ids"`
		RecencyWeight      float64  `json:"recency_weight"`
		TopN               int      `json:"top_n"`
		SkipRerank         bool     `json:"skip_rerank"`
		ExpandGraph        bool     `json:"expand_graph"`
		IncludeCommunities bool     `json:"include_communities"`
	}

	type searchResult struct {
		ChunkID       string  `json:"chunk_id"`
		DocumentID    string  `json:"document_id"`
		DocumentTitle string  `json:"document_title,omitempty"`
		ChunkIndex    int     `json:"chunk_index"`
		Content       string  `json:"content"`
		Summary       string  `json:"summary,omitempty"`
		Score         float64 `json:"score"`
		RRFScore      float64 `json:"rrf_score"`
		GraphExpanded bool    `json:"graph_expanded,omitempty"`
	}

	type searchResponse struct {
		Message       string         `json:"message"`
		Results       []searchResult `json:"results"`
		GlobalContext string         `json:"global_context,omitempty"`
	}

	body := new(searchBody)
	if err := c.Bind(body); err != nil {
		return c.JSON(http.StatusBadRequest, searchResponse{
			Message: "Invalid request body",
		})
	}
	if strings.TrimSpace(body.Query) == "" {
		return c.JSON(http.StatusBadRequest, searchResponse{
			Message: "Query is empty",
		})
	}

	user := c.(*middleware.AppContext).User
	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()

	results, err := app.Retriever.Search(ctx, retrieve.SearchParams{
		OwnerID:       user.OwnerID,
		Query:         body.Query,
		DocumentIDs:   body.DocumentIDs,
		RecencyWeight: body.RecencyWeight,
		TopN:          body.TopN,
		SkipRerank:    body.SkipRerank,
	})
	if err != nil {
		logger.Error("Search failed", "owner_id", user.OwnerID, "err", err)
		return c.JSON(http.StatusInternalServerError, searchResponse{
			Message: "Internal server error",
		})
	}

	out := make([]searchResult, 0, len(results))
	for _, res := range results {
		out = append(out, searchResult{
			ChunkID:       res.ID,
			DocumentID:    res.DocumentID,
			DocumentTitle: res.DocumentTitle,
			ChunkIndex:    res.Index,
			Content:       res.Content,
			Summary:       res.Summary,
			Score:         res.Score,
			RRFScore:      res.RRFScore,
		})
	}

	if body.ExpandGraph && len(results) > 0 {
		chunkIDs := make([]string, 0, len(results))
		for _, res := range results {
			chunkIDs = append(chunkIDs, res.ID)
		}
		for _, chunk := range app.Expander.ExpandChunks(ctx, user.OwnerID, chunkIDs) {
			out = append(out, searchResult{
				ChunkID:       chunk.ID,
				DocumentID:    chunk.DocumentID,
				ChunkIndex:    chunk.Index,
				Content:       chunk.Content,
				Summary:       chunk.Summary,
				GraphExpanded: true,
			})
		}
	}

	response := searchResponse{
		Message: "OK",
		Results: out,
	}
	if body.IncludeCommunities {
		response.GlobalContext = graph.GlobalContext(ctx, app.Storage, user.OwnerID, 5)
	}

	return c.JSON(http.StatusOK, response)
}
