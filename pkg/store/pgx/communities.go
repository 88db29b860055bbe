package pgx

import (
	"context"
	"fmt"

	"github.com/arborlabs/arbor/backend/pkg/common"
)

func (s *Store) ReplaceCommunities(ctx context.Context, ownerID string, communities []common.Community) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("replace communities: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM communities WHERE owner_id = $1`, ownerID); err != nil {
		return fmt.Errorf("replace communities: delete: %w", err)
	}

	for i := range communities {
		community := &communities[i]
		if community.ID == "" {
			id, err := newID()
			if err != nil {
				return err
			}
			community.ID = id
		}
		community.OwnerID = ownerID

		_, err := tx.Exec(ctx, `
			INSERT INTO communities (id, owner_id, title, summary, entity_ids, document_ids, size)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			community.ID, ownerID, community.Title, community.Summary,
			community.EntityIDs, community.DocumentIDs, community.Size,
		)
		if err != nil {
			return fmt.Errorf("replace communities: insert: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("replace communities: commit: %w", err)
	}
	return nil
}

func (s *Store) TopCommunities(ctx context.Context, ownerID string, limit int) ([]common.Community, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.conn.Query(ctx, `
		SELECT id, owner_id, title, summary, entity_ids, document_ids, size
		FROM communities
		WHERE owner_id = $1
		ORDER BY size DESC, title
		LIMIT $2`,
		ownerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("top communities: %w", err)
	}
	defer rows.Close()

	out := make([]common.Community, 0)
	for rows.Next() {
		var community common.Community
		err := rows.Scan(
			&community.ID, &community.OwnerID, &community.Title, &community.Summary,
			&community.EntityIDs, &community.DocumentIDs, &community.Size,
		)
		if err != nil {
			return nil, fmt.Errorf("top communities: %w", err)
		}
		out = append(out, community)
	}
	return out, rows.Err()
}
