package pgx

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/arborlabs/arbor/backend/pkg/common"
	"github.com/arborlabs/arbor/backend/pkg/store"
)

const chunkInsertBatchSize = 50

func (s *Store) InsertChunks(ctx context.Context, ownerID string, chunks []common.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	for i := range chunks {
		if chunks[i].ID == "" {
			id, err := newID()
			if err != nil {
				return err
			}
			chunks[i].ID = id
		}
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("insert chunks: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = store.ChunkRange(len(chunks), chunkInsertBatchSize, func(start, end int) error {
		for _, chunk := range chunks[start:end] {
			var embedding any
			if len(chunk.Embedding) > 0 {
				embedding = pgvector.NewVector(chunk.Embedding)
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO chunks (id, document_id, chunk_index, content, token_count, content_hash, embedding)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				chunk.ID, chunk.DocumentID, chunk.Index, chunk.Content,
				chunk.TokenCount, chunk.ContentHash, embedding,
			)
			if err != nil {
				return fmt.Errorf("insert chunk %d: %w", chunk.Index, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("insert chunks: commit: %w", err)
	}
	return nil
}

func (s *Store) ListChunksByDocument(ctx context.Context, documentID string) ([]common.Chunk, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, document_id, chunk_index, content, token_count, content_hash, coalesce(summary, '')
		FROM chunks
		WHERE document_id = $1
		ORDER BY chunk_index`,
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	out := make([]common.Chunk, 0)
	for rows.Next() {
		var chunk common.Chunk
		err := rows.Scan(
			&chunk.ID, &chunk.DocumentID, &chunk.Index, &chunk.Content,
			&chunk.TokenCount, &chunk.ContentHash, &chunk.Summary,
		)
		if err != nil {
			return nil, fmt.Errorf("list chunks: %w", err)
		}
		out = append(out, chunk)
	}
	return out, rows.Err()
}

func (s *Store) GetChunksByIDs(ctx context.Context, ownerID string, chunkIDs []string) ([]common.Chunk, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}

	rows, err := s.conn.Query(ctx, `
		SELECT c.id, c.document_id, c.chunk_index, c.content, c.token_count, c.content_hash, coalesce(c.summary, '')
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.id = ANY($1) AND d.owner_id = $2`,
		chunkIDs, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]common.Chunk)
	for rows.Next() {
		var chunk common.Chunk
		err := rows.Scan(
			&chunk.ID, &chunk.DocumentID, &chunk.Index, &chunk.Content,
			&chunk.TokenCount, &chunk.ContentHash, &chunk.Summary,
		)
		if err != nil {
			return nil, fmt.Errorf("get chunks: %w", err)
		}
		byID[chunk.ID] = chunk
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Preserve the caller's id order.
	out := make([]common.Chunk, 0, len(byID))
	for _, id := range chunkIDs {
		if chunk, ok := byID[id]; ok {
			out = append(out, chunk)
		}
	}
	return out, nil
}

func (s *Store) SetChunkSummary(ctx context.Context, chunkID, summary string, summaryEmbedding []float32) error {
	var embedding any
	if len(summaryEmbedding) > 0 {
		embedding = pgvector.NewVector(summaryEmbedding)
	}
	tag, err := s.conn.Exec(ctx, `
		UPDATE chunks
		SET summary = nullif($2, ''), summary_embedding = $3
		WHERE id = $1`,
		chunkID, summary, embedding,
	)
	if err != nil {
		return fmt.Errorf("set chunk summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
