package pgx

import (
	"context"
	"errors"
	"fmt"

	pgxv5 "github.com/jackc/pgx/v5"

	"github.com/arborlabs/arbor/backend/pkg/common"
	"github.com/arborlabs/arbor/backend/pkg/store"
)

const documentColumns = `id, owner_id, name, file_type, size_bytes, status,
	coalesce(error_message, ''), coalesce(title, ''), coalesce(summary, ''),
	coalesce(topics, '{}'), coalesce(content_hash, ''), document_date,
	chunk_count, created_at, updated_at`

func scanDocument(row pgxv5.Row) (*common.Document, error) {
	var doc common.Document
	err := row.Scan(
		&doc.ID, &doc.OwnerID, &doc.Name, &doc.FileType, &doc.SizeBytes,
		&doc.Status, &doc.ErrorMessage, &doc.Title, &doc.Summary,
		&doc.Topics, &doc.ContentHash, &doc.DocumentDate,
		&doc.ChunkCount, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgxv5.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &doc, nil
}

func (s *Store) CreateDocument(ctx context.Context, doc *common.Document) error {
	if doc.OwnerID == "" {
		return fmt.Errorf("create document: owner id is empty")
	}
	if doc.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}
		doc.ID = id
	}
	if doc.Status == "" {
		doc.Status = common.DocumentStatusPending
	}

	_, err := s.conn.Exec(ctx, `
		INSERT INTO documents (id, owner_id, name, file_type, size_bytes, status, content_hash)
		VALUES ($1, $2, $3, $4, $5, $6, nullif($7, ''))`,
		doc.ID, doc.OwnerID, doc.Name, doc.FileType, doc.SizeBytes, doc.Status, doc.ContentHash,
	)
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

func (s *Store) GetDocument(ctx context.Context, ownerID, documentID string) (*common.Document, error) {
	row := s.conn.QueryRow(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE id = $1 AND owner_id = $2`,
		documentID, ownerID,
	)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func (s *Store) ListDocuments(ctx context.Context, ownerID string) ([]common.Document, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE owner_id = $1
		ORDER BY created_at DESC, id`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]common.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("list documents: %w", err)
		}
		out = append(out, *doc)
	}
	return out, rows.Err()
}

func (s *Store) SetDocumentStatus(
	ctx context.Context,
	documentID string,
	status common.DocumentStatus,
	errorMessage string,
) error {
	tag, err := s.conn.Exec(ctx, `
		UPDATE documents
		SET status = $2, error_message = nullif($3, ''), updated_at = now()
		WHERE id = $1`,
		documentID, status, errorMessage,
	)
	if err != nil {
		return fmt.Errorf("set document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SetDocumentReady(ctx context.Context, params store.SetDocumentReadyParams) error {
	tag, err := s.conn.Exec(ctx, `
		UPDATE documents
		SET status = $2,
			error_message = NULL,
			title = nullif($3, ''),
			summary = nullif($4, ''),
			topics = $5,
			document_date = $6,
			chunk_count = $7,
			updated_at = now()
		WHERE id = $1`,
		params.DocumentID, common.DocumentStatusReady, params.Title, params.Summary,
		params.Topics, params.DocumentDate, params.ChunkCount,
	)
	if err != nil {
		return fmt.Errorf("set document ready: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteDocument removes the document row (chunks and chunk-entity links
// go with it via foreign keys) and prunes the document id out of the
// graph tables, dropping rows left without any document.
func (s *Store) DeleteDocument(ctx context.Context, ownerID, documentID string) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("delete document: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		DELETE FROM documents WHERE id = $1 AND owner_id = $2`,
		documentID, ownerID,
	)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}

	_, err = tx.Exec(ctx, `
		UPDATE entities
		SET document_ids = array_remove(document_ids, $2)
		WHERE owner_id = $1 AND $2 = ANY(document_ids)`,
		ownerID, documentID,
	)
	if err != nil {
		return fmt.Errorf("delete document: prune entities: %w", err)
	}
	_, err = tx.Exec(ctx, `
		DELETE FROM entities
		WHERE owner_id = $1 AND cardinality(document_ids) = 0`,
		ownerID,
	)
	if err != nil {
		return fmt.Errorf("delete document: drop empty entities: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE relationships
		SET document_ids = array_remove(document_ids, $2)
		WHERE owner_id = $1 AND $2 = ANY(document_ids)`,
		ownerID, documentID,
	)
	if err != nil {
		return fmt.Errorf("delete document: prune relationships: %w", err)
	}
	_, err = tx.Exec(ctx, `
		DELETE FROM relationships
		WHERE owner_id = $1
			AND (cardinality(document_ids) = 0
				OR source_id NOT IN (SELECT id FROM entities WHERE owner_id = $1)
				OR target_id NOT IN (SELECT id FROM entities WHERE owner_id = $1))`,
		ownerID,
	)
	if err != nil {
		return fmt.Errorf("delete document: drop empty relationships: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE communities
		SET document_ids = array_remove(document_ids, $2)
		WHERE owner_id = $1 AND $2 = ANY(document_ids)`,
		ownerID, documentID,
	)
	if err != nil {
		return fmt.Errorf("delete document: prune communities: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("delete document: commit: %w", err)
	}
	return nil
}
