package pgx

import (
	"context"
	"fmt"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/arborlabs/arbor/backend/pkg/store"
)

// Similarity blends the content match with the chunk summary match when a
// summary embedding exists.
const (
	contentWeight = 0.7
	summaryWeight = 0.3
)

func scanScored(rows pgxv5.Rows) ([]store.ScoredChunk, error) {
	out := make([]store.ScoredChunk, 0)
	for rows.Next() {
		var sc store.ScoredChunk
		err := rows.Scan(
			&sc.ID, &sc.DocumentID, &sc.Index, &sc.Content, &sc.TokenCount,
			&sc.ContentHash, &sc.Summary, &sc.DocumentTitle, &sc.DocumentDate,
			&sc.Score, &sc.Similarity,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *Store) SearchChunksByVector(ctx context.Context, params store.VectorSearchParams) ([]store.ScoredChunk, error) {
	if len(params.Embedding) == 0 {
		return nil, fmt.Errorf("vector search: embedding is empty")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}

	embedding := pgvector.NewVector(params.Embedding)
	rows, err := s.conn.Query(ctx, `
		WITH scored AS (
			SELECT c.id, c.document_id, c.chunk_index, c.content, c.token_count,
				c.content_hash, coalesce(c.summary, '') AS summary,
				coalesce(d.title, d.name) AS document_title,
				d.document_date,
				CASE WHEN c.summary_embedding IS NOT NULL THEN
					$4 * (1 - (c.embedding <=> $2)) + $5 * (1 - (c.summary_embedding <=> $2))
				ELSE
					1 - (c.embedding <=> $2)
				END AS similarity,
				1 / (1 + greatest(
					extract(epoch FROM now() - coalesce(d.document_date, d.created_at)) / (86400.0 * 365.0),
					0)) AS recency
			FROM chunks c
			JOIN documents d ON d.id = c.document_id
			WHERE d.owner_id = $1
				AND d.status <> 'error'
				AND c.embedding IS NOT NULL
				AND (coalesce(cardinality($6::text[]), 0) = 0 OR c.document_id = ANY($6))
		)
		SELECT id, document_id, chunk_index, content, token_count, content_hash,
			summary, document_title, document_date,
			(1 - $7) * similarity + $7 * recency AS score,
			similarity
		FROM scored
		ORDER BY score DESC, similarity DESC, chunk_index, id
		LIMIT $3`,
		params.OwnerID, embedding, limit, contentWeight, summaryWeight,
		params.DocumentIDs, params.RecencyWeight,
	)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	out, err := scanScored(rows)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return out, nil
}

func (s *Store) SearchChunksByKeyword(ctx context.Context, params store.KeywordSearchParams) ([]store.ScoredChunk, error) {
	if params.Query == "" {
		return nil, nil
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.conn.Query(ctx, `
		SELECT c.id, c.document_id, c.chunk_index, c.content, c.token_count,
			c.content_hash, coalesce(c.summary, ''),
			coalesce(d.title, d.name), d.document_date,
			ts_rank_cd(c.content_tsv, query)::float8 AS score,
			ts_rank_cd(c.content_tsv, query)::float8 AS similarity
		FROM chunks c
		JOIN documents d ON d.id = c.document_id,
			websearch_to_tsquery('english', $2) query
		WHERE d.owner_id = $1
			AND d.status <> 'error'
			AND c.content_tsv @@ query
			AND (coalesce(cardinality($4::text[]), 0) = 0 OR c.document_id = ANY($4))
		ORDER BY score DESC, c.chunk_index, c.id
		LIMIT $3`,
		params.OwnerID, params.Query, limit, params.DocumentIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	out, err := scanScored(rows)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	return out, nil
}
